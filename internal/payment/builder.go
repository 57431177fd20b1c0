package payment

import (
	"context"
	"fmt"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/internal/ledger"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/shopspring/decimal"
)

// Converter переводит фиатную сумму в монеты.
type Converter interface {
	Convert(ctx context.Context, fiat decimal.Decimal) decimal.Decimal
}

// Builder строит неподписанные переводы плательщик -> получатель.
type Builder struct {
	converter  Converter
	reader     ledger.Reader
	encoder    ledger.Encoder
	recipient  string
	commitment ledger.Commitment
	log        *logger.Logger
}

// NewBuilder создает Builder с фиксированным получателем.
func NewBuilder(converter Converter, reader ledger.Reader, encoder ledger.Encoder, recipient string, log *logger.Logger) *Builder {
	return &Builder{
		converter:  converter,
		reader:     reader,
		encoder:    encoder,
		recipient:  recipient,
		commitment: ledger.CommitmentConfirmed,
		log:        log.Named("builder"),
	}
}

// Recipient возвращает адрес получателя.
func (b *Builder) Recipient() string { return b.recipient }

// Build конвертирует сумму по текущему курсу, округляет вниз до лампортов
// и прикрепляет blockhash, полученный в момент вызова. В реестр ничего не пишет.
func (b *Builder) Build(ctx context.Context, payer string, fiat decimal.Decimal) (*ledger.UnsignedTransfer, error) {
	if b.recipient == "" {
		return nil, domain.ErrRecipientNotConfigured
	}
	if err := b.encoder.ValidateAddress(b.recipient); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRecipientNotConfigured, err)
	}
	if err := b.encoder.ValidateAddress(payer); err != nil {
		return nil, err
	}
	if !fiat.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than 0", domain.ErrInvalidInput)
	}

	crypto := b.converter.Convert(ctx, fiat)
	lamports := ledger.ToLamports(crypto)
	if lamports == 0 {
		return nil, fmt.Errorf("%w: amount %s converts to zero lamports", domain.ErrInvalidInput, fiat)
	}

	blockhash, err := b.reader.LatestBlockhash(ctx, b.commitment)
	if err != nil {
		return nil, fmt.Errorf("payment: failed to get recent blockhash: %w", err)
	}

	payload, err := b.encoder.EncodeTransfer(payer, b.recipient, lamports, blockhash)
	if err != nil {
		return nil, fmt.Errorf("payment: failed to encode transfer: %w", err)
	}

	b.log.Debugw("Transfer built", "payer", payer, "lamports", lamports, "crypto", crypto.String())
	return &ledger.UnsignedTransfer{
		Payer:           payer,
		Recipient:       b.recipient,
		Lamports:        lamports,
		CryptoAmount:    crypto,
		RecentBlockhash: blockhash,
		Payload:         payload,
	}, nil
}
