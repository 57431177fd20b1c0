// Package rate хранит курс фиат/крипто и конвертирует суммы.
package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/internal/metrics"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL окно свежести кеша.
	DefaultTTL = 60 * time.Second
	// DefaultFetchTimeout ограничение на один запрос курса.
	DefaultFetchTimeout = 10 * time.Second
)

// DefaultFallback курс на случай, когда кеш пуст и источник недоступен.
var DefaultFallback = decimal.NewFromInt(180)

// ExchangeRate курс: фиат за одну монету. Rate > 0.
type ExchangeRate struct {
	Rate      decimal.Decimal `json:"rate"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Quote ответ Oracle вместе с происхождением значения.
type Quote struct {
	ExchangeRate
	Stale    bool `json:"stale"`
	Fallback bool `json:"fallback"`
}

// Oracle кеширует курс. Ошибка источника не инвалидирует кеш.
type Oracle struct {
	source       Source
	ttl          time.Duration
	fallback     decimal.Decimal
	fetchTimeout time.Duration
	now          func() time.Time
	log          *logger.Logger
	metrics      metrics.PaymentMetrics

	mu     sync.RWMutex
	cached *ExchangeRate

	group singleflight.Group
}

// Option настраивает Oracle.
type Option func(*Oracle)

func WithTTL(ttl time.Duration) Option {
	return func(o *Oracle) { o.ttl = ttl }
}

func WithFallback(rate decimal.Decimal) Option {
	return func(o *Oracle) {
		if rate.IsPositive() {
			o.fallback = rate
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Oracle) { o.now = now }
}

func WithMetrics(m metrics.PaymentMetrics) Option {
	return func(o *Oracle) { o.metrics = m }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(o *Oracle) { o.fetchTimeout = d }
}

// NewOracle создает кеш курса поверх source.
func NewOracle(source Source, log *logger.Logger, opts ...Option) *Oracle {
	o := &Oracle{
		source:       source,
		ttl:          DefaultTTL,
		fallback:     DefaultFallback,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		log:          log.Named("rate"),
		metrics:      metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Seed помещает известный курс в кеш. Неположительные значения игнорируются.
func (o *Oracle) Seed(rate decimal.Decimal, fetchedAt time.Time) {
	if !rate.IsPositive() {
		return
	}
	o.mu.Lock()
	o.cached = &ExchangeRate{Rate: rate, FetchedAt: fetchedAt}
	o.mu.Unlock()
}

// Cached возвращает текущее значение кеша, если оно есть.
func (o *Oracle) Cached() (ExchangeRate, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.cached == nil {
		return ExchangeRate{}, false
	}
	return *o.cached, true
}

// Rate возвращает курс. Никогда не возвращает ошибку.
func (o *Oracle) Rate(ctx context.Context) decimal.Decimal {
	return o.Quote(ctx).Rate
}

// Quote возвращает курс с признаками устаревания.
// Свежий кеш отдается без обращения к источнику. Иначе источник опрашивается
// (параллельные вызовы объединяются); при ошибке отдается старый кеш или запасной курс.
func (o *Oracle) Quote(ctx context.Context) Quote {
	if cached, ok := o.Cached(); ok && o.now().Sub(cached.FetchedAt) < o.ttl {
		return Quote{ExchangeRate: cached}
	}

	v, err, _ := o.group.Do("rate", func() (interface{}, error) {
		return o.refresh(ctx)
	})
	if err == nil {
		return Quote{ExchangeRate: v.(ExchangeRate)}
	}

	if cached, ok := o.Cached(); ok {
		o.log.Warnw("Exchange rate fetch failed, serving stale value",
			"error", err, "rate", cached.Rate.String(), "fetchedAt", cached.FetchedAt)
		return Quote{ExchangeRate: cached, Stale: true}
	}

	o.log.Warnw("Exchange rate fetch failed, serving fallback", "error", err, "fallback", o.fallback.String())
	return Quote{ExchangeRate: ExchangeRate{Rate: o.fallback, FetchedAt: o.now()}, Fallback: true}
}

func (o *Oracle) refresh(ctx context.Context) (ExchangeRate, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	defer cancel()

	start := time.Now()
	rate, err := o.source.FetchRate(fetchCtx)
	if err == nil && !rate.IsPositive() {
		err = fmt.Errorf("%w: non-positive rate %s", domain.ErrRateUnavailable, rate)
	}
	if err != nil {
		o.metrics.ObserveRateFetch(o.source.Name(), "error", time.Since(start))
		return ExchangeRate{}, err
	}
	o.metrics.ObserveRateFetch(o.source.Name(), "ok", time.Since(start))

	fresh := ExchangeRate{Rate: rate, FetchedAt: o.now()}
	o.mu.Lock()
	o.cached = &fresh
	o.mu.Unlock()

	f, _ := rate.Float64()
	o.metrics.SetExchangeRate(f)
	o.log.Debugw("Exchange rate refreshed", "rate", rate.String())
	return fresh, nil
}

// Convert переводит фиатную сумму в монеты: fiat / rate. Без округления до лампортов.
func (o *Oracle) Convert(ctx context.Context, fiat decimal.Decimal) decimal.Decimal {
	return Convert(fiat, o.Rate(ctx))
}

// Convert делит сумму на курс.
func Convert(fiat, rate decimal.Decimal) decimal.Decimal {
	return fiat.Div(rate)
}
