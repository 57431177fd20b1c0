// Package solana реализует ledger.Client поверх JSON-RPC узла Solana.
package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/internal/ledger"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
)

const defaultConfirmPollInterval = 500 * time.Millisecond

// Client адаптер RPC узла.
type Client struct {
	rpc                 *rpc.Client
	log                 *logger.Logger
	confirmPollInterval time.Duration
}

// Option настраивает Client.
type Option func(*Client)

// WithConfirmPollInterval задает интервал опроса статуса при подтверждении.
func WithConfirmPollInterval(d time.Duration) Option {
	return func(c *Client) { c.confirmPollInterval = d }
}

// NewClient создает клиента RPC узла по адресу endpoint.
func NewClient(endpoint string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		rpc:                 rpc.New(endpoint),
		log:                 log.Named("solana"),
		confirmPollInterval: defaultConfirmPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ledger.Client = (*Client)(nil)

// Close закрывает RPC клиента.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// ValidateAddress проверяет, что адрес является корректным base58 ключом.
func (c *Client) ValidateAddress(address string) error {
	if _, err := sol.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrMalformedAddress, address, err)
	}
	return nil
}

// EncodeTransfer собирает транзакцию с одной инструкцией system transfer.
// Подписи заполняются нулями: их ставит кошелек плательщика.
func (c *Client) EncodeTransfer(payer, recipient string, lamports uint64, recentBlockhash string) ([]byte, error) {
	from, err := sol.PublicKeyFromBase58(payer)
	if err != nil {
		return nil, fmt.Errorf("%w: payer %s: %v", domain.ErrMalformedAddress, payer, err)
	}
	to, err := sol.PublicKeyFromBase58(recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: recipient %s: %v", domain.ErrMalformedAddress, recipient, err)
	}
	hash, err := sol.HashFromBase58(recentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("solana: invalid blockhash %q: %w", recentBlockhash, err)
	}

	tx, err := sol.NewTransaction(
		[]sol.Instruction{system.NewTransferInstruction(lamports, from, to).Build()},
		hash,
		sol.TransactionPayer(from),
	)
	if err != nil {
		return nil, fmt.Errorf("solana: failed to build transaction: %w", err)
	}
	tx.Signatures = make([]sol.Signature, tx.Message.Header.NumRequiredSignatures)

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("solana: failed to serialize transaction: %w", err)
	}
	return raw, nil
}

// GetTransaction загружает исполненную транзакцию. (nil, nil) если ее еще нет.
func (c *Client) GetTransaction(ctx context.Context, reference string, commitment ledger.Commitment) (*ledger.TransferRecord, error) {
	sig, err := sol.SignatureFromBase58(reference)
	if err != nil {
		return nil, fmt.Errorf("%w: reference %s: %v", domain.ErrInvalidInput, reference, err)
	}

	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       sol.EncodingBase64,
		Commitment:                     rpc.CommitmentType(commitment),
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("solana: getTransaction %s: %w", reference, err)
	}
	if out == nil || out.Meta == nil || out.Transaction == nil {
		return nil, nil
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("solana: failed to decode transaction %s: %w", reference, err)
	}

	keys := make([]string, 0, len(tx.Message.AccountKeys)+len(out.Meta.LoadedAddresses.Writable)+len(out.Meta.LoadedAddresses.ReadOnly))
	for _, k := range tx.Message.AccountKeys {
		keys = append(keys, k.String())
	}
	for _, k := range out.Meta.LoadedAddresses.Writable {
		keys = append(keys, k.String())
	}
	for _, k := range out.Meta.LoadedAddresses.ReadOnly {
		keys = append(keys, k.String())
	}

	return &ledger.TransferRecord{
		Reference:    reference,
		Slot:         out.Slot,
		AccountKeys:  keys,
		PreBalances:  out.Meta.PreBalances,
		PostBalances: out.Meta.PostBalances,
		Failed:       out.Meta.Err != nil,
	}, nil
}

// GetSignaturesForAddress возвращает последние подписи адреса, от новых к старым.
func (c *Client) GetSignaturesForAddress(ctx context.Context, address string, limit int, commitment ledger.Commitment) ([]ledger.SignatureInfo, error) {
	pk, err := sol.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedAddress, address, err)
	}

	out, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, pk, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentType(commitment),
	})
	if err != nil {
		return nil, fmt.Errorf("solana: getSignaturesForAddress %s: %w", address, err)
	}

	infos := make([]ledger.SignatureInfo, 0, len(out))
	for _, s := range out {
		if s == nil {
			continue
		}
		infos = append(infos, ledger.SignatureInfo{
			Reference: s.Signature.String(),
			Slot:      s.Slot,
			Failed:    s.Err != nil,
		})
	}
	return infos, nil
}

// GetBalance возвращает баланс адреса в лампортах.
func (c *Client) GetBalance(ctx context.Context, address string, commitment ledger.Commitment) (uint64, error) {
	pk, err := sol.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrMalformedAddress, address, err)
	}
	out, err := c.rpc.GetBalance(ctx, pk, rpc.CommitmentType(commitment))
	if err != nil {
		return 0, fmt.Errorf("solana: getBalance %s: %w", address, err)
	}
	return out.Value, nil
}

// LatestBlockhash возвращает свежий blockhash.
func (c *Client) LatestBlockhash(ctx context.Context, commitment ledger.Commitment) (string, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentType(commitment))
	if err != nil {
		return "", fmt.Errorf("solana: getLatestBlockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return "", errors.New("solana: getLatestBlockhash: empty response")
	}
	return out.Value.Blockhash.String(), nil
}

// SendTransaction отправляет подписанную транзакцию и возвращает ее подпись.
func (c *Client) SendTransaction(ctx context.Context, signedTx []byte) (string, error) {
	sig, err := c.rpc.SendRawTransactionWithOpts(ctx, signedTx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTransactionRejected, err)
	}
	c.log.Infow("Transaction submitted", "reference", sig.String())
	return sig.String(), nil
}

// ConfirmTransaction опрашивает статус подписи до нужного уровня согласованности.
func (c *Client) ConfirmTransaction(ctx context.Context, reference string, commitment ledger.Commitment) error {
	sig, err := sol.SignatureFromBase58(reference)
	if err != nil {
		return fmt.Errorf("%w: reference %s: %v", domain.ErrInvalidInput, reference, err)
	}

	ticker := time.NewTicker(c.confirmPollInterval)
	defer ticker.Stop()

	for {
		out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		switch {
		case err != nil:
			c.log.Debugw("Signature status poll failed", "reference", reference, "error", err)
		case out != nil && len(out.Value) > 0 && out.Value[0] != nil:
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %v", domain.ErrTransactionRejected, status.Err)
			}
			if reached(status.ConfirmationStatus, commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ledger.ErrConfirmTimeout, reference)
		case <-ticker.C:
		}
	}
}

func reached(status rpc.ConfirmationStatusType, want ledger.Commitment) bool {
	switch want {
	case ledger.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	case ledger.CommitmentConfirmed:
		return status == rpc.ConfirmationStatusConfirmed || status == rpc.ConfirmationStatusFinalized
	default:
		return status != ""
	}
}
