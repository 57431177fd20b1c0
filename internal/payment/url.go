package payment

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/shopspring/decimal"
)

// PaymentURL формирует ссылку solana: для оплаты по QR-коду.
func PaymentURL(recipient string, amount decimal.Decimal, plan domain.PlanName, period domain.BillingPeriod) string {
	label := fmt.Sprintf("findxo %s Plan", titleCase(string(plan)))
	message := fmt.Sprintf("Subscribe to %s plan (%s)", plan, period)

	return fmt.Sprintf("solana:%s?amount=%s&label=%s&message=%s",
		recipient, amount.Truncate(9).String(), escape(label), escape(message))
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
