package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/internal/ledger"
	"github.com/Dhoini/findxo-settlement/internal/ledger/ledgertest"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	payer     = "PayerWa11etPayerWa11etPayerWa11etPay"
	recipient = "MerchantWa11etMerchantWa11etMerchant"
)

type fixedRate decimal.Decimal

func (r fixedRate) Convert(_ context.Context, fiat decimal.Decimal) decimal.Decimal {
	return fiat.Div(decimal.Decimal(r))
}

func lamports(sol string) uint64 {
	return ledger.ToLamports(decimal.RequireFromString(sol))
}

func testMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ReferenceInterval: time.Millisecond,
		ScanInterval:      time.Millisecond,
		ErrorBackoff:      time.Millisecond,
		Timeout:           200 * time.Millisecond,
		ScanLimit:         10,
	}
}

func TestBuilder_Build(t *testing.T) {
	fake := &ledgertest.FakeLedger{Blockhash: "RecentB1ockhashRecentB1ockhashRecent"}
	b := NewBuilder(fixedRate(decimal.NewFromInt(150)), fake, fake, recipient, logger.NewNop())

	transfer, err := b.Build(context.Background(), payer, decimal.NewFromInt(300))
	require.NoError(t, err)

	assert.Equal(t, uint64(2_000_000_000), transfer.Lamports)
	assert.True(t, transfer.CryptoAmount.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, fake.Blockhash, transfer.RecentBlockhash)
	assert.Equal(t, recipient, transfer.Recipient)
	assert.NotEmpty(t, transfer.Payload)
	assert.Equal(t, 1, fake.Calls("LatestBlockhash"))
}

func TestBuilder_FloorsToLamports(t *testing.T) {
	fake := &ledgertest.FakeLedger{}
	// 1000 / 3 = 333.3333333333333333... -> floor at 9 decimals
	b := NewBuilder(fixedRate(decimal.NewFromInt(3)), fake, fake, recipient, logger.NewNop())

	transfer, err := b.Build(context.Background(), payer, decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.Equal(t, uint64(333_333_333_333), transfer.Lamports)
}

func TestBuilder_Errors(t *testing.T) {
	fake := &ledgertest.FakeLedger{}

	t.Run("recipient not configured", func(t *testing.T) {
		b := NewBuilder(fixedRate(decimal.NewFromInt(150)), fake, fake, "", logger.NewNop())
		_, err := b.Build(context.Background(), payer, decimal.NewFromInt(300))
		assert.ErrorIs(t, err, domain.ErrRecipientNotConfigured)
	})

	t.Run("malformed payer", func(t *testing.T) {
		b := NewBuilder(fixedRate(decimal.NewFromInt(150)), fake, fake, recipient, logger.NewNop())
		_, err := b.Build(context.Background(), "short", decimal.NewFromInt(300))
		assert.ErrorIs(t, err, domain.ErrMalformedAddress)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		b := NewBuilder(fixedRate(decimal.NewFromInt(150)), fake, fake, recipient, logger.NewNop())
		_, err := b.Build(context.Background(), payer, decimal.Zero)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestTolerance(t *testing.T) {
	tol := DefaultTolerance()

	tests := []struct {
		name     string
		expected string
		actual   string
		want     bool
	}{
		{name: "exact", expected: "2", actual: "2", want: true},
		{name: "fee below floor", expected: "0.5", actual: "0.499", want: true},
		{name: "just outside floor", expected: "0.5", actual: "0.4989", want: false},
		{name: "relative above floor", expected: "2", actual: "1.998", want: true},
		{name: "outside relative at 2", expected: "2", actual: "1.9979", want: false},
		{name: "relative dominates", expected: "75", actual: "74.93", want: true},
		{name: "outside relative", expected: "75", actual: "74.9", want: false},
		{name: "overpaid within", expected: "2", actual: "2.0005", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tol.Within(decimal.RequireFromString(tt.actual), decimal.RequireFromString(tt.expected))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifier_Verify(t *testing.T) {
	ref := ledgertest.Reference("verify")
	expected := decimal.NewFromInt(2)

	tests := []struct {
		name   string
		record *ledger.TransferRecord
		want   bool
	}{
		{name: "within tolerance", record: ledgertest.Transfer(ref, payer, recipient, lamports("1.9995"), 5000), want: true},
		{name: "outside tolerance", record: ledgertest.Transfer(ref, payer, recipient, lamports("1.5"), 5000), want: false},
		{name: "recipient absent", record: ledgertest.Transfer(ref, payer, "SomeoneE1seSomeoneE1seSomeoneE1se", lamports("2"), 5000), want: false},
		{name: "absent transaction", record: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &ledgertest.FakeLedger{
				GetTransactionFunc: func(context.Context, string) (*ledger.TransferRecord, error) {
					return tt.record, nil
				},
			}
			v := NewVerifier(fake, DefaultTolerance(), logger.NewNop())

			ok, err := v.Verify(context.Background(), ref, expected, recipient)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestVerifier_FailedTransaction(t *testing.T) {
	rec := ledgertest.Transfer(ledgertest.Reference("failed"), payer, recipient, lamports("2"), 5000)
	rec.Failed = true
	v := NewVerifier(&ledgertest.FakeLedger{}, DefaultTolerance(), logger.NewNop())

	assert.False(t, v.Check(rec, decimal.NewFromInt(2), recipient))
}

func TestVerifier_RejectsMalformedReference(t *testing.T) {
	fake := &ledgertest.FakeLedger{}
	v := NewVerifier(fake, DefaultTolerance(), logger.NewNop())

	_, err := v.Verify(context.Background(), "too-short", decimal.NewFromInt(2), recipient)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, fake.Calls("GetTransaction"))
}

func TestVerifier_Matches(t *testing.T) {
	v := NewVerifier(&ledgertest.FakeLedger{}, DefaultTolerance(), logger.NewNop())
	ref := ledgertest.Reference("scan")
	expected := decimal.NewFromInt(2)

	assert.True(t, v.Matches(ledgertest.Transfer(ref, payer, recipient, lamports("2"), 5000), payer, recipient, expected))
	assert.False(t, v.Matches(ledgertest.Transfer(ref, "AnotherPayerAnotherPayerAnotherPay", recipient, lamports("2"), 5000), payer, recipient, expected))
	assert.False(t, v.Matches(ledgertest.Transfer(ref, payer, recipient, lamports("1"), 5000), payer, recipient, expected))
	assert.False(t, v.Matches(ledgertest.Transfer(ref, payer, recipient, 0, 5000), payer, recipient, expected))
}

func TestVerifier_MatchesRelayedFee(t *testing.T) {
	const (
		relayer = "Re1ayerRe1ayerRe1ayerRe1ayerRe1ayer"
		start   = 100 * ledger.LamportsPerSOL
	)
	v := NewVerifier(&ledgertest.FakeLedger{}, DefaultTolerance(), logger.NewNop())
	ref := ledgertest.Reference("relayed")
	amount := lamports("2")

	relayed := &ledger.TransferRecord{
		Reference:    ref,
		AccountKeys:  []string{relayer, payer, recipient},
		PreBalances:  []uint64{start, start, start},
		PostBalances: []uint64{start - 5000, start - amount, start + amount},
	}
	assert.True(t, v.Matches(relayed, payer, recipient, decimal.NewFromInt(2)))

	// Плательщик присутствует, но ничего не списано.
	untouched := &ledger.TransferRecord{
		Reference:    ref,
		AccountKeys:  []string{relayer, payer, recipient},
		PreBalances:  []uint64{start + amount, start, start},
		PostBalances: []uint64{start - 5000, start, start + amount},
	}
	assert.False(t, v.Matches(untouched, payer, recipient, decimal.NewFromInt(2)))
}

func TestMonitorTransaction_MatchesAtPollN(t *testing.T) {
	const foundAt = 4
	ref := ledgertest.Reference("poll")
	var polls atomic.Int32

	fake := &ledgertest.FakeLedger{
		GetTransactionFunc: func(context.Context, string) (*ledger.TransferRecord, error) {
			if polls.Add(1) < foundAt {
				return nil, nil
			}
			return ledgertest.Transfer(ref, payer, recipient, lamports("2"), 5000), nil
		},
	}
	v := NewVerifier(fake, DefaultTolerance(), logger.NewNop())
	m := NewMonitor(fake, v, recipient, testMonitorConfig(), nil, logger.NewNop())

	ok, err := m.MonitorTransaction(context.Background(), ref, decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(foundAt), polls.Load())
}

func TestMonitorTransaction_TransientErrorsSwallowed(t *testing.T) {
	ref := ledgertest.Reference("flaky")
	var polls atomic.Int32

	fake := &ledgertest.FakeLedger{
		GetTransactionFunc: func(context.Context, string) (*ledger.TransferRecord, error) {
			if polls.Add(1) <= 2 {
				return nil, errors.New("rpc unavailable")
			}
			return ledgertest.Transfer(ref, payer, recipient, lamports("2"), 5000), nil
		},
	}
	v := NewVerifier(fake, DefaultTolerance(), logger.NewNop())
	m := NewMonitor(fake, v, recipient, testMonitorConfig(), nil, logger.NewNop())

	ok, err := m.MonitorTransaction(context.Background(), ref, decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMonitorTransaction_Timeout(t *testing.T) {
	cfg := testMonitorConfig()
	cfg.Timeout = 30 * time.Millisecond
	fake := &ledgertest.FakeLedger{}
	v := NewVerifier(fake, DefaultTolerance(), logger.NewNop())
	m := NewMonitor(fake, v, recipient, cfg, nil, logger.NewNop())

	ok, err := m.MonitorTransaction(context.Background(), ledgertest.Reference("never"), decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.False(t, ok)

	calls := fake.Calls("GetTransaction")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, fake.Calls("GetTransaction"), "no polls after timeout")
}

func TestMonitorTransaction_Mismatch(t *testing.T) {
	ref := ledgertest.Reference("short")
	fake := &ledgertest.FakeLedger{
		GetTransactionFunc: func(context.Context, string) (*ledger.TransferRecord, error) {
			return ledgertest.Transfer(ref, payer, recipient, lamports("1"), 5000), nil
		},
	}
	v := NewVerifier(fake, DefaultTolerance(), logger.NewNop())
	m := NewMonitor(fake, v, recipient, testMonitorConfig(), nil, logger.NewNop())

	ok, err := m.MonitorTransaction(context.Background(), ref, decimal.NewFromInt(2))
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrVerificationMismatch)

	var perr *domain.PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ref, perr.Reference)
}

func TestMonitorTransaction_RejectedReferenceFailsFast(t *testing.T) {
	ref := ledgertest.Reference("rejected")
	fake := &ledgertest.FakeLedger{
		GetTransactionFunc: func(_ context.Context, reference string) (*ledger.TransferRecord, error) {
			return nil, fmt.Errorf("%w: reference %s: invalid signature", domain.ErrInvalidInput, reference)
		},
	}
	cfg := testMonitorConfig()
	cfg.Timeout = 5 * time.Second
	v := NewVerifier(fake, DefaultTolerance(), logger.NewNop())
	m := NewMonitor(fake, v, recipient, cfg, nil, logger.NewNop())

	start := time.Now()
	ok, err := m.MonitorTransaction(context.Background(), ref, decimal.NewFromInt(2))
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, fake.Calls("GetTransaction"))

	var perr *domain.PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "invalid_reference", perr.Code)
}

func TestMonitorTransaction_NonBase58ReferenceRejected(t *testing.T) {
	fake := &ledgertest.FakeLedger{}
	v := NewVerifier(fake, DefaultTolerance(), logger.NewNop())
	m := NewMonitor(fake, v, recipient, testMonitorConfig(), nil, logger.NewNop())

	ref := "0" + strings.Repeat("a", 87)
	ok, err := m.MonitorTransaction(context.Background(), ref, decimal.NewFromInt(2))
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, fake.Calls("GetTransaction"))
}

func TestMonitorTransaction_ParentCancelled(t *testing.T) {
	fake := &ledgertest.FakeLedger{}
	v := NewVerifier(fake, DefaultTolerance(), logger.NewNop())
	m := NewMonitor(fake, v, recipient, testMonitorConfig(), nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := m.MonitorTransaction(ctx, ledgertest.Reference("cancel"), decimal.NewFromInt(2))
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMonitorRecipient_FindsNewTransfer(t *testing.T) {
	old := ledgertest.Reference("old")
	noise := ledgertest.Reference("noise")
	match := ledgertest.Reference("match")

	var rounds atomic.Int32
	fake := &ledgertest.FakeLedger{
		GetSignaturesForAddressFunc: func(_ context.Context, address string, limit int) ([]ledger.SignatureInfo, error) {
			assert.Equal(t, recipient, address)
			assert.Equal(t, 10, limit)
			if rounds.Add(1) == 1 {
				return []ledger.SignatureInfo{{Reference: old}}, nil
			}
			return []ledger.SignatureInfo{{Reference: match}, {Reference: noise}, {Reference: old}}, nil
		},
		GetTransactionFunc: func(_ context.Context, ref string) (*ledger.TransferRecord, error) {
			switch ref {
			case match:
				return ledgertest.Transfer(ref, payer, recipient, lamports("2"), 5000), nil
			case noise:
				return ledgertest.Transfer(ref, "AnotherPayerAnotherPayerAnotherPay", recipient, lamports("2"), 5000), nil
			default:
				return ledgertest.Transfer(ref, payer, recipient, lamports("0.5"), 5000), nil
			}
		},
	}
	v := NewVerifier(fake, DefaultTolerance(), logger.NewNop())
	m := NewMonitor(fake, v, recipient, testMonitorConfig(), nil, logger.NewNop())

	got, err := m.MonitorRecipient(context.Background(), ScanRequest{Payer: payer, Expected: decimal.NewFromInt(2)})
	require.NoError(t, err)
	assert.Equal(t, match, got)
}

func TestMonitorRecipient_StopsAtHighWater(t *testing.T) {
	seen := ledgertest.Reference("seen")
	var fetched []string

	fake := &ledgertest.FakeLedger{
		GetSignaturesForAddressFunc: func(context.Context, string, int) ([]ledger.SignatureInfo, error) {
			return []ledger.SignatureInfo{{Reference: seen}}, nil
		},
		GetTransactionFunc: func(_ context.Context, ref string) (*ledger.TransferRecord, error) {
			fetched = append(fetched, ref)
			return ledgertest.Transfer(ref, payer, recipient, lamports("0.1"), 5000), nil
		},
	}
	cfg := testMonitorConfig()
	cfg.Timeout = 40 * time.Millisecond
	v := NewVerifier(fake, DefaultTolerance(), logger.NewNop())
	m := NewMonitor(fake, v, recipient, cfg, nil, logger.NewNop())

	got, err := m.MonitorRecipient(context.Background(), ScanRequest{Payer: payer, Expected: decimal.NewFromInt(2)})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, []string{seen}, fetched, "a signature behind the high-water mark is fetched once")
}

func TestMonitorRecipient_ExcludesConsumedReferences(t *testing.T) {
	consumed := ledgertest.Reference("consumed")
	fake := &ledgertest.FakeLedger{
		GetSignaturesForAddressFunc: func(context.Context, string, int) ([]ledger.SignatureInfo, error) {
			return []ledger.SignatureInfo{{Reference: consumed}}, nil
		},
		GetTransactionFunc: func(_ context.Context, ref string) (*ledger.TransferRecord, error) {
			return ledgertest.Transfer(ref, payer, recipient, lamports("2"), 5000), nil
		},
	}
	cfg := testMonitorConfig()
	cfg.Timeout = 30 * time.Millisecond
	v := NewVerifier(fake, DefaultTolerance(), logger.NewNop())
	m := NewMonitor(fake, v, recipient, cfg, nil, logger.NewNop())

	got, err := m.MonitorRecipient(context.Background(), ScanRequest{
		Payer:    payer,
		Expected: decimal.NewFromInt(2),
		Exclude:  func(ref string) bool { return ref == consumed },
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, fake.Calls("GetTransaction"))
}

func TestMonitorRecipient_SkipsSignatureNotYetVisible(t *testing.T) {
	pruned := ledgertest.Reference("pruned")
	match := ledgertest.Reference("match")

	fake := &ledgertest.FakeLedger{
		GetSignaturesForAddressFunc: func(context.Context, string, int) ([]ledger.SignatureInfo, error) {
			return []ledger.SignatureInfo{{Reference: pruned}, {Reference: match}}, nil
		},
		GetTransactionFunc: func(_ context.Context, ref string) (*ledger.TransferRecord, error) {
			if ref == pruned {
				return nil, nil
			}
			return ledgertest.Transfer(ref, payer, recipient, lamports("2"), 5000), nil
		},
	}
	v := NewVerifier(fake, DefaultTolerance(), logger.NewNop())
	m := NewMonitor(fake, v, recipient, testMonitorConfig(), nil, logger.NewNop())

	got, err := m.MonitorRecipient(context.Background(), ScanRequest{Payer: payer, Expected: decimal.NewFromInt(2)})
	require.NoError(t, err)
	assert.Equal(t, match, got)
	assert.Equal(t, 1, fake.Calls("GetSignaturesForAddress"))
}

func TestMonitorRecipient_RechecksInvisibleSignature(t *testing.T) {
	late := ledgertest.Reference("late")
	var lookups atomic.Int32

	fake := &ledgertest.FakeLedger{
		GetSignaturesForAddressFunc: func(context.Context, string, int) ([]ledger.SignatureInfo, error) {
			return []ledger.SignatureInfo{{Reference: late}}, nil
		},
		GetTransactionFunc: func(_ context.Context, ref string) (*ledger.TransferRecord, error) {
			if lookups.Add(1) < 3 {
				return nil, nil
			}
			return ledgertest.Transfer(ref, payer, recipient, lamports("2"), 5000), nil
		},
	}
	v := NewVerifier(fake, DefaultTolerance(), logger.NewNop())
	m := NewMonitor(fake, v, recipient, testMonitorConfig(), nil, logger.NewNop())

	got, err := m.MonitorRecipient(context.Background(), ScanRequest{Payer: payer, Expected: decimal.NewFromInt(2)})
	require.NoError(t, err)
	assert.Equal(t, late, got)
	assert.Equal(t, int32(3), lookups.Load())
}

func TestPaymentURL(t *testing.T) {
	got := PaymentURL(recipient, decimal.RequireFromString("2.0000000001"), domain.PlanInvestigator, domain.BillingMonthly)

	assert.True(t, strings.HasPrefix(got, "solana:"+recipient+"?amount=2&"), got)
	assert.Contains(t, got, "label=findxo%20Investigator%20Plan")
	assert.Contains(t, got, "message=Subscribe%20to%20investigator%20plan%20%28monthly%29")
}
