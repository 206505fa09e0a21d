package aggregator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-executor/internal/domain"
)

const (
	wsol = "So11111111111111111111111111111111111111112"
	mint = "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"
)

const quoteJSON = `{
	"inputMint": "So11111111111111111111111111111111111111112",
	"outputMint": "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr",
	"inAmount": "1000000000",
	"outAmount": "4200000",
	"otherAmountThreshold": "4179000",
	"slippageBps": 50,
	"priceImpactPct": "0.001",
	"routePlan": [{"percent": 100}],
	"contextSlot": 12345
}`

func swapTxBase64(t *testing.T, payer solanago.PublicKey) string {
	t.Helper()
	ix := solanago.NewInstruction(
		solanago.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"),
		solanago.AccountMetaSlice{{PublicKey: payer, IsSigner: true, IsWritable: true}},
		[]byte("swap"),
	)
	tx, err := solanago.NewTransaction([]solanago.Instruction{ix},
		solanago.MustHashFromBase58("EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N"),
		solanago.TransactionPayer(payer))
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v6/quote", r.URL.Path)
		assert.Equal(t, wsol, r.URL.Query().Get("inputMint"))
		assert.Equal(t, "1000000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "50", r.URL.Query().Get("slippageBps"))
		_, _ = w.Write([]byte(quoteJSON))
	}))
	defer srv.Close()

	c := New(srv.URL, 0, zerolog.Nop())
	q, err := c.Quote(context.Background(), QuoteRequest{InputMint: wsol, OutputMint: mint, Amount: 1_000_000_000, SlippageBps: 50})
	require.NoError(t, err)

	out, err := q.Out()
	require.NoError(t, err)
	assert.Equal(t, uint64(4_200_000), out)
	minOut, err := q.MinOut()
	require.NoError(t, err)
	assert.Equal(t, uint64(4_179_000), minOut)
	assert.Contains(t, string(q.Raw), "contextSlot")
}

func TestQuote_NoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Could not find any route","errorCode":"COULD_NOT_FIND_ANY_ROUTE"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0, zerolog.Nop())
	_, err := c.Quote(context.Background(), QuoteRequest{InputMint: wsol, OutputMint: mint, Amount: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = c.Quote(context.Background(), QuoteRequest{InputMint: wsol, OutputMint: mint})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSwapTransaction(t *testing.T) {
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	user := key.PublicKey()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v6/quote":
			_, _ = w.Write([]byte(quoteJSON))
		case "/v6/swap":
			var body map[string]json.RawMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.JSONEq(t, `"`+user.String()+`"`, string(body["userPublicKey"]))
			assert.Contains(t, string(body["quoteResponse"]), "contextSlot")
			assert.JSONEq(t, `25000`, string(body["prioritizationFeeLamports"]))

			_ = json.NewEncoder(w).Encode(map[string]any{
				"swapTransaction":           swapTxBase64(t, user),
				"lastValidBlockHeight":      2000,
				"prioritizationFeeLamports": 25000,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, 0, zerolog.Nop())
	ctx := context.Background()
	q, err := c.Quote(ctx, QuoteRequest{InputMint: wsol, OutputMint: mint, Amount: 1_000_000_000, SlippageBps: 50})
	require.NoError(t, err)

	swap, err := c.SwapTransaction(ctx, q, user, 25_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), swap.LastValidBlockHeight)
	require.NotNil(t, swap.Tx)
	assert.Equal(t, user, swap.Tx.Message.AccountKeys[0])

	_, err = c.SwapTransaction(ctx, &Quote{}, user, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDecodeTransaction_Invalid(t *testing.T) {
	_, err := DecodeTransaction("!!!")
	assert.Error(t, err)
	_, err = DecodeTransaction(base64.StdEncoding.EncodeToString([]byte{1, 2}))
	assert.Error(t, err)
}
