package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PlanName название тарифного плана
type PlanName string

const (
	PlanFree         PlanName = "free"
	PlanInvestigator PlanName = "investigator"
	PlanPro          PlanName = "pro"
)

// BillingPeriod период оплаты
type BillingPeriod string

const (
	BillingMonthly BillingPeriod = "monthly"
	BillingYearly  BillingPeriod = "yearly"
)

// Plan представляет тарифный план из справочника subscription_plans.
type Plan struct {
	ID              string          `db:"id" json:"id"`
	Name            PlanName        `db:"name" json:"name"`
	DailyRequests   int             `db:"daily_requests" json:"daily_requests"`
	MonthlyPriceEUR decimal.Decimal `db:"monthly_price_eur" json:"monthly_price_eur"`
	YearlyPriceEUR  decimal.Decimal `db:"yearly_price_eur" json:"yearly_price_eur"`
}

// PriceFor возвращает цену плана за период.
func (p Plan) PriceFor(period BillingPeriod) decimal.Decimal {
	if period == BillingYearly {
		return p.YearlyPriceEUR
	}
	return p.MonthlyPriceEUR
}

type planTerms struct {
	id            string
	dailyRequests int
	monthly       decimal.Decimal
	yearly        decimal.Decimal
}

var catalogue = map[PlanName]planTerms{
	PlanFree: {
		id:            "00000000-0000-0000-0000-000000000001",
		dailyRequests: 10,
	},
	PlanInvestigator: {
		id:            "00000000-0000-0000-0000-000000000002",
		dailyRequests: 100000,
		monthly:       decimal.NewFromInt(300),
		yearly:        decimal.NewFromInt(2500),
	},
	PlanPro: {
		id:            "00000000-0000-0000-0000-000000000003",
		dailyRequests: 500000,
		monthly:       decimal.NewFromInt(1000),
		yearly:        decimal.NewFromInt(12000),
	},
}

// Catalogue возвращает справочник планов в том виде, в каком он засеян миграцией.
func Catalogue() []Plan {
	names := []PlanName{PlanFree, PlanInvestigator, PlanPro}
	plans := make([]Plan, 0, len(names))
	for _, name := range names {
		terms := catalogue[name]
		plans = append(plans, Plan{
			ID:              terms.id,
			Name:            name,
			DailyRequests:   terms.dailyRequests,
			MonthlyPriceEUR: terms.monthly,
			YearlyPriceEUR:  terms.yearly,
		})
	}
	return plans
}

// ParsePlanName нормализует название плана. Неизвестные имена - ошибка.
func ParsePlanName(s string) (PlanName, bool) {
	name := PlanName(strings.ToLower(strings.TrimSpace(s)))
	_, ok := catalogue[name]
	return name, ok
}

// ParseBillingPeriod нормализует период оплаты.
func ParseBillingPeriod(s string) (BillingPeriod, bool) {
	switch p := BillingPeriod(strings.ToLower(strings.TrimSpace(s))); p {
	case BillingMonthly, BillingYearly:
		return p, true
	default:
		return "", false
	}
}

// ExpectedPrice возвращает каталожную цену плана в EUR.
// Для бесплатного плана ok == false: оплата не требуется.
func ExpectedPrice(plan PlanName, period BillingPeriod) (decimal.Decimal, bool) {
	terms, ok := catalogue[plan]
	if !ok || plan == PlanFree {
		return decimal.Zero, false
	}
	if period == BillingYearly {
		return terms.yearly, true
	}
	return terms.monthly, true
}

// DailyRequests возвращает суточную квоту запросов плана.
func DailyRequests(plan PlanName) int {
	if terms, ok := catalogue[plan]; ok {
		return terms.dailyRequests
	}
	return catalogue[PlanFree].dailyRequests
}

// ExpiresAt вычисляет окончание оплаченного периода начиная с from.
func (p BillingPeriod) ExpiresAt(from time.Time) time.Time {
	if p == BillingYearly {
		return from.AddDate(0, 12, 0)
	}
	return from.AddDate(0, 1, 0)
}
