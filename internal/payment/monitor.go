package payment

import (
	"context"
	"errors"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/internal/ledger"
	"github.com/Dhoini/findxo-settlement/internal/metrics"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/shopspring/decimal"
)

// MonitorConfig интервалы опроса реестра.
type MonitorConfig struct {
	ReferenceInterval time.Duration
	ScanInterval      time.Duration
	ErrorBackoff      time.Duration
	Timeout           time.Duration
	ScanLimit         int
}

// DefaultMonitorConfig значения по умолчанию.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ReferenceInterval: 2 * time.Second,
		ScanInterval:      3 * time.Second,
		ErrorBackoff:      5 * time.Second,
		Timeout:           5 * time.Minute,
		ScanLimit:         10,
	}
}

const (
	modeReference = "reference"
	modeRecipient = "recipient"
)

// Monitor опрашивает реестр до появления платежа или истечения таймаута.
// Подписку не трогает.
type Monitor struct {
	reader    ledger.Reader
	verifier  *Verifier
	recipient string
	cfg       MonitorConfig
	log       *logger.Logger
	metrics   metrics.PaymentMetrics
}

// NewMonitor создает монитор для получателя recipient.
func NewMonitor(reader ledger.Reader, verifier *Verifier, recipient string, cfg MonitorConfig, m metrics.PaymentMetrics, log *logger.Logger) *Monitor {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Monitor{
		reader:    reader,
		verifier:  verifier,
		recipient: recipient,
		cfg:       cfg,
		log:       log.Named("monitor"),
		metrics:   m,
	}
}

// Timeout возвращает таймаут наблюдения.
func (m *Monitor) Timeout() time.Duration { return m.cfg.Timeout }

// MonitorTransaction ждет появления транзакции reference и проверяет ее.
// true - платеж найден и совпал. (false, nil) - таймаут.
// Найденная, но не совпавшая транзакция возвращает ошибку ErrVerificationMismatch.
func (m *Monitor) MonitorTransaction(ctx context.Context, reference string, expected decimal.Decimal) (bool, error) {
	if !domain.ValidReference(reference) {
		return false, domain.NewPaymentError("invalid_reference", "invalid transaction signature format", reference, domain.ErrInvalidInput)
	}

	watchCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	log := m.log.With("reference", reference)
	log.Infow("Watching transaction", "expected", expected.String(), "timeout", m.cfg.Timeout)

	for {
		if watchCtx.Err() != nil {
			return m.expired(ctx, log)
		}

		record, err := m.reader.GetTransaction(watchCtx, reference, m.verifier.commitment)
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			m.metrics.IncMonitorPoll(modeReference, "rejected")
			log.Warnw("Reference rejected by ledger", "error", err)
			return false, domain.NewPaymentError("invalid_reference", "invalid transaction signature format", reference, err)
		case err != nil:
			if watchCtx.Err() != nil {
				return m.expired(ctx, log)
			}
			m.metrics.IncMonitorPoll(modeReference, "error")
			log.Warnw("Transaction poll failed, backing off", "error", err, "backoff", m.cfg.ErrorBackoff)
			if wait(watchCtx, m.cfg.ErrorBackoff) != nil {
				return m.expired(ctx, log)
			}
			continue
		case record == nil:
			m.metrics.IncMonitorPoll(modeReference, "pending")
		default:
			m.metrics.IncMonitorPoll(modeReference, "found")
			if m.verifier.Check(record, expected, m.recipient) {
				log.Infow("Transaction matched")
				return true, nil
			}
			return false, domain.NewPaymentError("verification_mismatch",
				"transaction does not match the expected payment", reference, domain.ErrVerificationMismatch)
		}

		if wait(watchCtx, m.cfg.ReferenceInterval) != nil {
			return m.expired(ctx, log)
		}
	}
}

// ScanRequest параметры поиска входящего перевода.
type ScanRequest struct {
	Payer    string
	Expected decimal.Decimal
	// Exclude пропускает уже использованные ссылки.
	Exclude func(reference string) bool
}

// MonitorRecipient сканирует последние подписи получателя и возвращает первую подходящую ссылку.
// Пустая строка без ошибки - таймаут.
func (m *Monitor) MonitorRecipient(ctx context.Context, req ScanRequest) (string, error) {
	watchCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	log := m.log.With("payer", req.Payer, "recipient", m.recipient)
	log.Infow("Scanning recipient activity", "expected", req.Expected.String(), "timeout", m.cfg.Timeout)

	var highWater string
	for {
		if watchCtx.Err() != nil {
			_, err := m.expired(ctx, log)
			return "", err
		}

		match, newest, err := m.scanOnce(watchCtx, req, highWater)
		if err != nil {
			if watchCtx.Err() == nil {
				m.metrics.IncMonitorPoll(modeRecipient, "error")
				log.Warnw("Recipient scan failed, backing off", "error", err, "backoff", m.cfg.ErrorBackoff)
				_ = wait(watchCtx, m.cfg.ErrorBackoff)
			}
			continue
		}
		if match != "" {
			m.metrics.IncMonitorPoll(modeRecipient, "found")
			log.Infow("Inbound payment matched", "reference", match)
			return match, nil
		}
		m.metrics.IncMonitorPoll(modeRecipient, "pending")
		if newest != "" {
			highWater = newest
		}

		_ = wait(watchCtx, m.cfg.ScanInterval)
	}
}

// scanOnce проверяет подписи новее highWater. Ошибка RPC прерывает раунд.
// Еще не видимая транзакция пропускается, остальные подписи проверяются;
// highWater в этом случае не сдвигается, чтобы она была проверена снова.
func (m *Monitor) scanOnce(ctx context.Context, req ScanRequest, highWater string) (match, newest string, err error) {
	sigs, err := m.reader.GetSignaturesForAddress(ctx, m.recipient, m.cfg.ScanLimit, m.verifier.commitment)
	if err != nil {
		return "", "", err
	}
	if len(sigs) == 0 {
		return "", "", nil
	}

	deferred := 0
	for _, sig := range sigs {
		if sig.Reference == highWater {
			break
		}
		if sig.Failed {
			continue
		}
		if req.Exclude != nil && req.Exclude(sig.Reference) {
			continue
		}

		record, err := m.reader.GetTransaction(ctx, sig.Reference, m.verifier.commitment)
		if err != nil {
			return "", "", err
		}
		if record == nil {
			m.log.Debugw("Signature not yet visible, skipping", "reference", sig.Reference)
			deferred++
			continue
		}
		if m.verifier.Matches(record, req.Payer, m.recipient, req.Expected) {
			return sig.Reference, sigs[0].Reference, nil
		}
	}
	if deferred > 0 {
		return "", "", nil
	}
	return "", sigs[0].Reference, nil
}

// expired различает истечение таймаута наблюдения и отмену родительского контекста.
func (m *Monitor) expired(parent context.Context, log *logger.Logger) (bool, error) {
	if err := parent.Err(); err != nil {
		log.Infow("Watch cancelled", "error", err)
		return false, err
	}
	log.Infow("Watch timed out")
	return false, nil
}

// wait ждет d или отмены ctx.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
