// Package ledger описывает внешний реестр (блокчейн), в который сервис не пишет ничего,
// кроме подписанных плательщиком переводов.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL число минимальных единиц в одной монете.
const LamportsPerSOL = 1_000_000_000

// Currency код криптовалюты расчетов.
const Currency = "SOL"

// Commitment уровень согласованности чтения.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// ErrConfirmTimeout транзакция не подтвердилась за отведенное время.
var ErrConfirmTimeout = errors.New("ledger: confirmation timeout")

// TransferRecord запись об исполненной транзакции. Только чтение.
type TransferRecord struct {
	Reference    string
	Slot         uint64
	AccountKeys  []string
	PreBalances  []uint64
	PostBalances []uint64
	Failed       bool
}

// IndexOf возвращает индекс адреса в списке аккаунтов или -1.
func (r *TransferRecord) IndexOf(address string) int {
	for i, key := range r.AccountKeys {
		if key == address {
			return i
		}
	}
	return -1
}

// BalanceDelta возвращает post-pre для адреса в минимальных единицах.
// ok == false, если адреса нет в транзакции.
func (r *TransferRecord) BalanceDelta(address string) (delta int64, ok bool) {
	idx := r.IndexOf(address)
	if idx < 0 || idx >= len(r.PreBalances) || idx >= len(r.PostBalances) {
		return 0, false
	}
	return int64(r.PostBalances[idx]) - int64(r.PreBalances[idx]), true
}

// SignatureInfo элемент истории подписей адреса, от новых к старым.
type SignatureInfo struct {
	Reference string
	Slot      uint64
	Failed    bool
}

// UnsignedTransfer неподписанный перевод payer -> recipient.
type UnsignedTransfer struct {
	Payer           string          `json:"payer"`
	Recipient       string          `json:"recipient"`
	Lamports        uint64          `json:"lamports"`
	CryptoAmount    decimal.Decimal `json:"crypto_amount"`
	RecentBlockhash string          `json:"recent_blockhash"`
	Payload         []byte          `json:"payload"`
}

// Reader API чтения реестра.
type Reader interface {
	// GetTransaction возвращает (nil, nil), если транзакция еще не видна.
	GetTransaction(ctx context.Context, reference string, commitment Commitment) (*TransferRecord, error)
	GetSignaturesForAddress(ctx context.Context, address string, limit int, commitment Commitment) ([]SignatureInfo, error)
	GetBalance(ctx context.Context, address string, commitment Commitment) (uint64, error)
	LatestBlockhash(ctx context.Context, commitment Commitment) (string, error)
}

// Writer API записи в реестр.
type Writer interface {
	SendTransaction(ctx context.Context, signedTx []byte) (string, error)
	// ConfirmTransaction блокируется до подтверждения или ErrConfirmTimeout при истечении ctx.
	ConfirmTransaction(ctx context.Context, reference string, commitment Commitment) error
}

// Encoder проверяет адреса и сериализует неподписанный перевод.
type Encoder interface {
	ValidateAddress(address string) error
	EncodeTransfer(payer, recipient string, lamports uint64, recentBlockhash string) ([]byte, error)
}

// Client полный клиент реестра.
type Client interface {
	Reader
	Writer
	Encoder
}

// ToLamports переводит сумму в минимальные единицы с округлением вниз.
func ToLamports(amount decimal.Decimal) uint64 {
	v := amount.Mul(decimal.NewFromInt(LamportsPerSOL)).Floor()
	if v.IsNegative() {
		return 0
	}
	return uint64(v.IntPart())
}

// FromLamports переводит минимальные единицы в монеты.
func FromLamports(lamports int64) decimal.Decimal {
	return decimal.New(lamports, -9)
}
