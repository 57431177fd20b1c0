// Package payment строит переводы и проверяет их исполнение в реестре.
package payment

import (
	"github.com/shopspring/decimal"
)

var (
	// DefaultToleranceFloor абсолютный допуск: комиссия сети в пределах 0.001 SOL.
	DefaultToleranceFloor = decimal.RequireFromString("0.001")
	// DefaultToleranceRelative относительный допуск 0.1%.
	DefaultToleranceRelative = decimal.RequireFromString("0.001")
)

// Tolerance допуск расхождения суммы: max(Floor, expected*Relative).
type Tolerance struct {
	Floor    decimal.Decimal
	Relative decimal.Decimal
}

// DefaultTolerance используется и проверкой по ссылке, и сканированием получателя.
func DefaultTolerance() Tolerance {
	return Tolerance{Floor: DefaultToleranceFloor, Relative: DefaultToleranceRelative}
}

// For возвращает допуск для ожидаемой суммы.
func (t Tolerance) For(expected decimal.Decimal) decimal.Decimal {
	return decimal.Max(t.Floor, expected.Abs().Mul(t.Relative))
}

// Within сообщает, что |actual - expected| <= допуск.
func (t Tolerance) Within(actual, expected decimal.Decimal) bool {
	return actual.Sub(expected).Abs().LessThanOrEqual(t.For(expected))
}
