package rate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
)

// DefaultCoinGeckoURL публичный API котировок.
const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3/simple/price"

// Source внешний источник курса: фиат за одну монету.
type Source interface {
	Name() string
	FetchRate(ctx context.Context) (decimal.Decimal, error)
}

// CoinGeckoSource получает курс из simple/price.
type CoinGeckoSource struct {
	client     *http.Client
	baseURL    string
	coinID     string
	vsCurrency string
	maxRetries uint64
	retryDelay time.Duration
}

// NewCoinGeckoSource создает источник курса coinID/vsCurrency.
func NewCoinGeckoSource(baseURL, coinID, vsCurrency string, timeout time.Duration) *CoinGeckoSource {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	return &CoinGeckoSource{
		client:     &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		coinID:     coinID,
		vsCurrency: vsCurrency,
		maxRetries: 2,
		retryDelay: 200 * time.Millisecond,
	}
}

func (s *CoinGeckoSource) Name() string { return "coingecko" }

// FetchRate выполняет запрос с коротким повтором на сетевых ошибках и 5xx.
func (s *CoinGeckoSource) FetchRate(ctx context.Context) (decimal.Decimal, error) {
	var rate decimal.Decimal

	operation := func() error {
		r, err := s.fetchOnce(ctx)
		if err != nil {
			return err
		}
		rate = r
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), s.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}

func (s *CoinGeckoSource) fetchOnce(ctx context.Context) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", s.coinID)
	q.Set("vs_currencies", s.vsCurrency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrRateUnavailable, err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrRateUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return decimal.Zero, fmt.Errorf("%w: status %d", domain.ErrRateUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, backoff.Permanent(fmt.Errorf("%w: status %d", domain.ErrRateUnavailable, resp.StatusCode))
	}

	var body map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, backoff.Permanent(fmt.Errorf("%w: decode: %v", domain.ErrRateUnavailable, err))
	}

	rate, ok := body[s.coinID][s.vsCurrency]
	if !ok {
		return decimal.Zero, backoff.Permanent(fmt.Errorf("%w: %s/%s missing in response", domain.ErrRateUnavailable, s.coinID, s.vsCurrency))
	}
	if !rate.IsPositive() {
		return decimal.Zero, backoff.Permanent(fmt.Errorf("%w: non-positive rate %s", domain.ErrRateUnavailable, rate))
	}
	return rate, nil
}
