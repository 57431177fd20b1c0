// Package ledgertest содержит подменный реестр для тестов.
package ledgertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/internal/ledger"
)

// FakeLedger реализует ledger.Client. Незаданные Func поля ведут себя как пустой реестр.
type FakeLedger struct {
	GetTransactionFunc          func(ctx context.Context, reference string) (*ledger.TransferRecord, error)
	GetSignaturesForAddressFunc func(ctx context.Context, address string, limit int) ([]ledger.SignatureInfo, error)
	GetBalanceFunc              func(ctx context.Context, address string) (uint64, error)
	SendTransactionFunc         func(ctx context.Context, signedTx []byte) (string, error)
	ConfirmTransactionFunc      func(ctx context.Context, reference string) error

	Blockhash string

	mu    sync.Mutex
	calls map[string]int
}

var _ ledger.Client = (*FakeLedger)(nil)

func (f *FakeLedger) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++
}

// Calls возвращает число вызовов метода.
func (f *FakeLedger) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FakeLedger) GetTransaction(ctx context.Context, reference string, _ ledger.Commitment) (*ledger.TransferRecord, error) {
	f.record("GetTransaction")
	if f.GetTransactionFunc == nil {
		return nil, nil
	}
	return f.GetTransactionFunc(ctx, reference)
}

func (f *FakeLedger) GetSignaturesForAddress(ctx context.Context, address string, limit int, _ ledger.Commitment) ([]ledger.SignatureInfo, error) {
	f.record("GetSignaturesForAddress")
	if f.GetSignaturesForAddressFunc == nil {
		return nil, nil
	}
	return f.GetSignaturesForAddressFunc(ctx, address, limit)
}

func (f *FakeLedger) GetBalance(ctx context.Context, address string, _ ledger.Commitment) (uint64, error) {
	f.record("GetBalance")
	if f.GetBalanceFunc == nil {
		return 0, nil
	}
	return f.GetBalanceFunc(ctx, address)
}

func (f *FakeLedger) LatestBlockhash(context.Context, ledger.Commitment) (string, error) {
	f.record("LatestBlockhash")
	if f.Blockhash == "" {
		return "11111111111111111111111111111111", nil
	}
	return f.Blockhash, nil
}

func (f *FakeLedger) SendTransaction(ctx context.Context, signedTx []byte) (string, error) {
	f.record("SendTransaction")
	if f.SendTransactionFunc == nil {
		return "", fmt.Errorf("%w: no sender configured", domain.ErrTransactionRejected)
	}
	return f.SendTransactionFunc(ctx, signedTx)
}

func (f *FakeLedger) ConfirmTransaction(ctx context.Context, reference string, _ ledger.Commitment) error {
	f.record("ConfirmTransaction")
	if f.ConfirmTransactionFunc == nil {
		return nil
	}
	return f.ConfirmTransactionFunc(ctx, reference)
}

// ValidateAddress принимает любые адреса длиной от 32 символов без пробелов.
func (f *FakeLedger) ValidateAddress(address string) error {
	if len(address) < 32 || strings.ContainsAny(address, " \t") {
		return fmt.Errorf("%w: %s", domain.ErrMalformedAddress, address)
	}
	return nil
}

// EncodeTransfer возвращает читаемое представление перевода.
func (f *FakeLedger) EncodeTransfer(payer, recipient string, lamports uint64, recentBlockhash string) ([]byte, error) {
	if err := f.ValidateAddress(payer); err != nil {
		return nil, err
	}
	if err := f.ValidateAddress(recipient); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("%s>%s:%d@%s", payer, recipient, lamports, recentBlockhash)), nil
}

// Transfer строит запись перевода payer -> recipient на amount лампортов с комиссией fee.
func Transfer(reference, payer, recipient string, amount, fee uint64) *ledger.TransferRecord {
	const start = 100 * ledger.LamportsPerSOL
	return &ledger.TransferRecord{
		Reference:    reference,
		AccountKeys:  []string{payer, recipient, "11111111111111111111111111111111"},
		PreBalances:  []uint64{start, start, 1},
		PostBalances: []uint64{start - amount - fee, start + amount, 1},
	}
}

var base58Safe = strings.NewReplacer("0", "1", "O", "o", "I", "i", "l", "L")

// Reference генерирует валидную подпись-ссылку из префикса.
// Символы вне алфавита base58 заменяются.
func Reference(prefix string) string {
	return base58Safe.Replace(prefix) + strings.Repeat("a", 88-len(prefix))
}
