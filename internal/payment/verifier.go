package payment

import (
	"context"
	"fmt"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/internal/ledger"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/shopspring/decimal"
)

// Verifier сверяет исполненную транзакцию с ожидаемым платежом. Только чтение.
type Verifier struct {
	reader     ledger.Reader
	tolerance  Tolerance
	commitment ledger.Commitment
	log        *logger.Logger
}

// NewVerifier создает Verifier с допуском tolerance.
func NewVerifier(reader ledger.Reader, tolerance Tolerance, log *logger.Logger) *Verifier {
	return &Verifier{
		reader:     reader,
		tolerance:  tolerance,
		commitment: ledger.CommitmentConfirmed,
		log:        log.Named("verifier"),
	}
}

// Tolerance возвращает допуск проверки.
func (v *Verifier) Tolerance() Tolerance { return v.tolerance }

// Verify загружает транзакцию на уровне confirmed и проверяет поступление на recipient.
// Отсутствующая транзакция или получатель дают false без ошибки.
func (v *Verifier) Verify(ctx context.Context, reference string, expected decimal.Decimal, recipient string) (bool, error) {
	if !domain.ValidReference(reference) {
		return false, fmt.Errorf("%w: invalid transaction signature format", domain.ErrInvalidInput)
	}

	record, err := v.reader.GetTransaction(ctx, reference, v.commitment)
	if err != nil {
		return false, err
	}
	if record == nil {
		v.log.Debugw("Transaction not found", "reference", reference)
		return false, nil
	}
	return v.Check(record, expected, recipient), nil
}

// Check проверяет уже загруженную запись.
func (v *Verifier) Check(record *ledger.TransferRecord, expected decimal.Decimal, recipient string) bool {
	if record.Failed {
		v.log.Infow("Transaction failed on ledger", "reference", record.Reference)
		return false
	}
	delta, ok := record.BalanceDelta(recipient)
	if !ok {
		v.log.Infow("Recipient not found in transaction", "reference", record.Reference, "recipient", recipient)
		return false
	}

	received := ledger.FromLamports(delta)
	if !v.tolerance.Within(received, expected) {
		v.log.Infow("Payment amount mismatch",
			"reference", record.Reference, "expected", expected.String(), "received", received.String())
		return false
	}
	return true
}

// Matches предикат сканирования получателя. Плательщик может стоять на любой
// позиции среди аккаунтов (комиссию может платить другой аккаунт), но его баланс
// должен уменьшиться на ожидаемую сумму в пределах допуска, а получатель
// должен получить положительную сумму.
func (v *Verifier) Matches(record *ledger.TransferRecord, payer, recipient string, expected decimal.Decimal) bool {
	if record == nil || record.Failed {
		return false
	}
	payerDelta, ok := record.BalanceDelta(payer)
	if !ok || payerDelta >= 0 {
		return false
	}
	recipientDelta, ok := record.BalanceDelta(recipient)
	if !ok || recipientDelta <= 0 {
		return false
	}
	sent := ledger.FromLamports(-payerDelta)
	return v.tolerance.Within(sent, expected)
}
