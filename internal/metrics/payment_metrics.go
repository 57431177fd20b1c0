package metrics

import (
	"time"

	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PaymentMetrics интерфейс для метрик расчетов
type PaymentMetrics interface {
	IncPaymentInitiated(plan string)
	IncPaymentSettled(plan string)
	IncPaymentFailed(plan, reason string)
	IncMonitorPoll(mode, result string)
	ObserveRateFetch(source, result string, d time.Duration)
	SetExchangeRate(rate float64)
	ObserveSettlementDuration(mode string, d time.Duration)
	IncReconcileAttempt(result string)
}

type paymentMetrics struct {
	log                *logger.Logger
	paymentsInitiated  *prometheus.CounterVec
	paymentsStatus     *prometheus.CounterVec
	monitorPolls       *prometheus.CounterVec
	rateFetchDuration  *prometheus.HistogramVec
	exchangeRate       prometheus.Gauge
	settlementDuration *prometheus.HistogramVec
	reconcileAttempts  *prometheus.CounterVec
}

// NewPaymentMetrics создает метрики расчетов и регистрирует их в registry
func NewPaymentMetrics(registry prometheus.Registerer, log *logger.Logger) PaymentMetrics {
	factory := promauto.With(registry)

	return &paymentMetrics{
		log: log,
		paymentsInitiated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_payments_initiated_total",
				Help: "The total number of initiated payment intents",
			},
			[]string{"plan"},
		),
		paymentsStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_payments_status_total",
				Help: "The total number of payments by terminal status",
			},
			[]string{"status", "plan", "reason"},
		),
		monitorPolls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_monitor_polls_total",
				Help: "Ledger polls performed by payment monitors",
			},
			[]string{"mode", "result"},
		),
		rateFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settlement_rate_fetch_duration_seconds",
				Help:    "Exchange rate fetch latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source", "result"},
		),
		exchangeRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "settlement_exchange_rate_eur",
				Help: "Last exchange rate served, EUR per SOL",
			},
		),
		settlementDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settlement_duration_seconds",
				Help:    "Time from watch start to terminal state",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~8.5m
			},
			[]string{"mode"},
		),
		reconcileAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_reconcile_attempts_total",
				Help: "Subscription reconcile attempts by result",
			},
			[]string{"result"},
		),
	}
}

// IncPaymentInitiated увеличивает счетчик созданных намерений оплаты
func (m *paymentMetrics) IncPaymentInitiated(plan string) {
	m.paymentsInitiated.WithLabelValues(plan).Inc()
}

// IncPaymentSettled увеличивает счетчик успешных расчетов
func (m *paymentMetrics) IncPaymentSettled(plan string) {
	m.paymentsStatus.WithLabelValues("succeeded", plan, "").Inc()
}

// IncPaymentFailed увеличивает счетчик неудачных платежей
func (m *paymentMetrics) IncPaymentFailed(plan, reason string) {
	m.paymentsStatus.WithLabelValues("failed", plan, reason).Inc()
}

func (m *paymentMetrics) IncMonitorPoll(mode, result string) {
	m.monitorPolls.WithLabelValues(mode, result).Inc()
}

func (m *paymentMetrics) ObserveRateFetch(source, result string, d time.Duration) {
	m.rateFetchDuration.WithLabelValues(source, result).Observe(d.Seconds())
}

func (m *paymentMetrics) SetExchangeRate(rate float64) {
	m.exchangeRate.Set(rate)
}

func (m *paymentMetrics) ObserveSettlementDuration(mode string, d time.Duration) {
	m.settlementDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *paymentMetrics) IncReconcileAttempt(result string) {
	m.reconcileAttempts.WithLabelValues(result).Inc()
}

type nopMetrics struct{}

// NewNop возвращает метрики, которые ничего не записывают.
func NewNop() PaymentMetrics { return nopMetrics{} }

func (nopMetrics) IncPaymentInitiated(string) {}
func (nopMetrics) IncPaymentSettled(string) {}
func (nopMetrics) IncPaymentFailed(string, string) {}
func (nopMetrics) IncMonitorPoll(string, string) {}
func (nopMetrics) ObserveRateFetch(string, string, time.Duration) {}
func (nopMetrics) SetExchangeRate(float64) {}
func (nopMetrics) ObserveSettlementDuration(string, time.Duration) {}
func (nopMetrics) IncReconcileAttempt(string) {}
