package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus статус платежа
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusWatching  PaymentStatus = "watching"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusTimedOut  PaymentStatus = "timed_out"
)

// Terminal сообщает, завершен ли платеж.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusTimedOut:
		return true
	default:
		return false
	}
}

// WatchMode способ обнаружения перевода
type WatchMode string

const (
	WatchByReference WatchMode = "reference"
	WatchByRecipient WatchMode = "recipient"
	WatchBySubmit    WatchMode = "submit"
)

const minWalletLength = 32

// Подпись транзакции кодируется base58: без 0, O, I и l.
var referencePattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{64,}$`)

// ValidReference проверяет формат подписи транзакции (>= 64 символов алфавита base58).
func ValidReference(reference string) bool {
	return referencePattern.MatchString(reference)
}

// PaymentIntent представляет намерение оплатить план.
// Неизменяем после отправки транзакции.
type PaymentIntent struct {
	FiatAmount           decimal.Decimal `json:"fiat_amount"`
	FiatCurrency         string          `json:"fiat_currency"`
	PlanName             PlanName        `json:"plan_name"`
	BillingPeriod        BillingPeriod   `json:"billing_period"`
	PayerAddress         string          `json:"payer_address"`
	ExpectedCryptoAmount decimal.Decimal `json:"expected_crypto_amount"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Validate проверяет план, период, сумму и кошелек плательщика по каталогу.
func (i PaymentIntent) Validate() error {
	var errs ValidationErrors

	plan, planOK := ParsePlanName(string(i.PlanName))
	if !planOK {
		errs.Add("plan_name", fmt.Sprintf("invalid plan name: %s", i.PlanName))
	}
	period, periodOK := ParseBillingPeriod(string(i.BillingPeriod))
	if !periodOK {
		errs.Add("billing_period", fmt.Sprintf("invalid billing period: %s", i.BillingPeriod))
	}
	if !i.FiatAmount.IsPositive() {
		errs.Add("fiat_amount", "amount must be greater than 0")
	}
	if planOK && plan == PlanFree {
		errs.Add("plan_name", "free plan requires no payment")
	}
	if planOK && periodOK && i.FiatAmount.IsPositive() {
		if expected, ok := ExpectedPrice(plan, period); ok && !expected.Equal(i.FiatAmount) {
			errs.Add("fiat_amount", fmt.Sprintf("invalid amount for %s %s: expected €%s, got €%s",
				plan, period, expected.String(), i.FiatAmount.String()))
		}
	}
	if len(i.PayerAddress) < minWalletLength {
		errs.Add("payer_address", "invalid wallet address")
	}

	return errs.Err()
}

// PaymentResult снимок состояния платежа для awaitResult.
type PaymentResult struct {
	Handle       string        `json:"handle"`
	Status       PaymentStatus `json:"status"`
	Mode         WatchMode     `json:"mode,omitempty"`
	Reference    string        `json:"reference,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Settlement запись об обработанной транзакции. Ссылка используется один раз.
type Settlement struct {
	Reference    string          `db:"reference" json:"reference"`
	UserID       string          `db:"user_id" json:"user_id"`
	PlanID       string          `db:"plan_id" json:"plan_id"`
	CryptoAmount decimal.Decimal `db:"crypto_amount" json:"crypto_amount"`
	FiatAmount   decimal.Decimal `db:"fiat_amount" json:"fiat_amount"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// SettlementEvent публикуется в Kafka после терминального исхода платежа.
type SettlementEvent struct {
	Handle         string          `json:"handle"`
	UserID         string          `json:"user_id"`
	PlanName       PlanName        `json:"plan_name"`
	BillingPeriod  BillingPeriod   `json:"billing_period"`
	Status         PaymentStatus   `json:"status"`
	Reference      string          `json:"reference,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	CryptoAmount   decimal.Decimal `json:"crypto_amount"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}
