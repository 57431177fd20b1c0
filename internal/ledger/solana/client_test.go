package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/internal/ledger"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlockhash = "4sGjMW1sUnHzSxGspuhpqLDx6wiyjNtZAMdL4VZHirAn"

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// newRPCServer отвечает result по имени метода.
func newRPCServer(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, ok := results[req.Method]
		if !ok {
			t.Errorf("unexpected method %s", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEncodeTransfer(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", logger.NewNop())
	payer := sol.NewWallet().PublicKey()
	recipient := sol.NewWallet().PublicKey()

	raw, err := c.EncodeTransfer(payer.String(), recipient.String(), 2_000_000_000, testBlockhash)
	require.NoError(t, err)

	tx, err := sol.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)

	assert.Equal(t, testBlockhash, tx.Message.RecentBlockhash.String())
	assert.Len(t, tx.Message.Instructions, 1)
	assert.Len(t, tx.Signatures, int(tx.Message.Header.NumRequiredSignatures))
	assert.True(t, tx.Message.AccountKeys[0].Equals(payer))
	assert.Contains(t, tx.Message.AccountKeys, recipient)
}

func TestEncodeTransfer_MalformedPayer(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", logger.NewNop())

	_, err := c.EncodeTransfer("not-a-key", sol.NewWallet().PublicKey().String(), 1, testBlockhash)
	assert.ErrorIs(t, err, domain.ErrMalformedAddress)
}

func TestValidateAddress(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", logger.NewNop())

	assert.NoError(t, c.ValidateAddress(sol.NewWallet().PublicKey().String()))
	assert.ErrorIs(t, c.ValidateAddress("0OIl"), domain.ErrMalformedAddress)
}

func TestGetTransaction(t *testing.T) {
	payer := sol.NewWallet().PublicKey()
	recipient := sol.NewWallet().PublicKey()

	enc := NewClient("http://127.0.0.1:1", logger.NewNop())
	raw, err := enc.EncodeTransfer(payer.String(), recipient.String(), 1_000, testBlockhash)
	require.NoError(t, err)

	srv := newRPCServer(t, map[string]any{
		"getTransaction": map[string]any{
			"slot":        42,
			"transaction": []string{base64.StdEncoding.EncodeToString(raw), "base64"},
			"meta": map[string]any{
				"err":          nil,
				"fee":          5000,
				"preBalances":  []uint64{10_000, 0, 1},
				"postBalances": []uint64{4_000, 1_000, 1},
			},
		},
	})

	c := NewClient(srv.URL, logger.NewNop())
	ref := sol.Signature{1, 2, 3}.String()

	rec, err := c.GetTransaction(context.Background(), ref, ledger.CommitmentConfirmed)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, uint64(42), rec.Slot)
	assert.False(t, rec.Failed)

	delta, ok := rec.BalanceDelta(recipient.String())
	require.True(t, ok)
	assert.Equal(t, int64(1_000), delta)

	delta, ok = rec.BalanceDelta(payer.String())
	require.True(t, ok)
	assert.Equal(t, int64(-6_000), delta)
}

func TestGetTransaction_NotFound(t *testing.T) {
	srv := newRPCServer(t, map[string]any{"getTransaction": nil})
	c := NewClient(srv.URL, logger.NewNop())

	rec, err := c.GetTransaction(context.Background(), sol.Signature{9}.String(), ledger.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGetSignaturesForAddress(t *testing.T) {
	first := sol.Signature{1}
	second := sol.Signature{2}
	srv := newRPCServer(t, map[string]any{
		"getSignaturesForAddress": []map[string]any{
			{"signature": first.String(), "slot": 11, "err": nil},
			{"signature": second.String(), "slot": 10, "err": map[string]any{"InstructionError": []any{0, "Custom"}}},
		},
	})
	c := NewClient(srv.URL, logger.NewNop())

	infos, err := c.GetSignaturesForAddress(context.Background(), sol.NewWallet().PublicKey().String(), 10, ledger.CommitmentConfirmed)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, first.String(), infos[0].Reference)
	assert.False(t, infos[0].Failed)
	assert.True(t, infos[1].Failed)
}

func TestConfirmTransaction_TimesOut(t *testing.T) {
	srv := newRPCServer(t, map[string]any{
		"getSignatureStatuses": map[string]any{
			"context": map[string]any{"slot": 1},
			"value":   []any{nil},
		},
	})
	c := NewClient(srv.URL, logger.NewNop(), WithConfirmPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.ConfirmTransaction(ctx, sol.Signature{7}.String(), ledger.CommitmentConfirmed)
	assert.ErrorIs(t, err, ledger.ErrConfirmTimeout)
}

func TestConfirmTransaction_Confirmed(t *testing.T) {
	srv := newRPCServer(t, map[string]any{
		"getSignatureStatuses": map[string]any{
			"context": map[string]any{"slot": 1},
			"value": []any{map[string]any{
				"slot":               1,
				"confirmations":      nil,
				"err":                nil,
				"confirmationStatus": "confirmed",
			}},
		},
	})
	c := NewClient(srv.URL, logger.NewNop(), WithConfirmPollInterval(5*time.Millisecond))

	err := c.ConfirmTransaction(context.Background(), sol.Signature{7}.String(), ledger.CommitmentConfirmed)
	assert.NoError(t, err)
}
