package signer

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
	"solana-trade-executor/internal/solana/stub"
)

var memoProgram = solanago.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

func newKey(t *testing.T) solanago.PrivateKey {
	t.Helper()
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func unsignedTx(t *testing.T, payer solanago.PublicKey) *solanago.Transaction {
	t.Helper()
	ix := solanago.NewInstruction(memoProgram, solanago.AccountMetaSlice{
		{PublicKey: payer, IsSigner: true, IsWritable: true},
	}, []byte("hello"))
	tx, err := solanago.NewTransaction(
		[]solanago.Instruction{ix},
		solanago.MustHashFromBase58("EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N"),
		solanago.TransactionPayer(payer),
	)
	require.NoError(t, err)
	return tx
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"local": KindLocal, "": KindLocal, "REMOTE": KindRemote, "mpc": KindRemote} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseKind("hsm")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNew_Local(t *testing.T) {
	key := newKey(t)
	t.Setenv("TEST_SIGNER_KEY", key.String())

	s, err := New(Config{Kind: KindLocal, PrivateKeyEnv: "TEST_SIGNER_KEY"}, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, KindLocal, s.Kind())
	assert.Equal(t, key.PublicKey(), s.PublicKey())

	t.Setenv("TEST_SIGNER_KEY", "")
	_, err = New(Config{Kind: KindLocal, PrivateKeyEnv: "TEST_SIGNER_KEY"}, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Config{}, nil, zerolog.Nop())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLocal_SignTransaction(t *testing.T) {
	key := newKey(t)
	rpc := stub.NewRPCClient()
	rpc.Balances[key.PublicKey().String()] = 2_500_000_000
	s := NewLocal(key, rpc)

	tx := unsignedTx(t, key.PublicKey())
	require.NoError(t, s.SignTransaction(context.Background(), tx))
	require.Len(t, tx.Signatures, 1)
	assert.NoError(t, tx.VerifySignatures())

	bal, err := s.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000_000), bal)
}

func TestLocal_RejectsForeignTransaction(t *testing.T) {
	s := NewLocal(newKey(t), nil)
	tx := unsignedTx(t, newKey(t).PublicKey())

	err := s.SignTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, domain.ErrSigningFailed)
}

func signingServer(t *testing.T, key solanago.PrivateKey, token string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sign" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req signRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		msg, err := base64.StdEncoding.DecodeString(req.Message)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		sig, err := key.Sign(msg)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(signResponse{Signature: sig.String()})
	}))
}

func TestRemote_SignTransaction(t *testing.T) {
	key := newKey(t)
	srv := signingServer(t, key, "secret")
	defer srv.Close()

	s, err := New(Config{
		Kind:   KindRemote,
		Remote: RemoteConfig{URL: srv.URL, Token: "secret", PublicKey: key.PublicKey().String()},
	}, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, KindRemote, s.Kind())

	tx := unsignedTx(t, key.PublicKey())
	require.NoError(t, s.SignTransaction(context.Background(), tx))
	assert.NoError(t, tx.VerifySignatures())
}

func TestRemote_VerifiesReturnedSignature(t *testing.T) {
	expected := newKey(t)
	// the service signs with a different key than the one configured
	srv := signingServer(t, newKey(t), "secret")
	defer srv.Close()

	s, err := NewRemote(RemoteConfig{URL: srv.URL, Token: "secret", PublicKey: expected.PublicKey().String()}, nil, zerolog.Nop())
	require.NoError(t, err)

	tx := unsignedTx(t, expected.PublicKey())
	err = s.SignTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, domain.ErrSigningFailed)
}

func TestRemote_HTTPErrors(t *testing.T) {
	key := newKey(t)
	srv := signingServer(t, key, "secret")
	defer srv.Close()

	s, err := NewRemote(RemoteConfig{URL: srv.URL, Token: "wrong", PublicKey: key.PublicKey().String()}, nil, zerolog.Nop())
	require.NoError(t, err)

	err = s.SignTransaction(context.Background(), unsignedTx(t, key.PublicKey()))
	assert.ErrorIs(t, err, domain.ErrSigningFailed)
	assert.Contains(t, err.Error(), "401")

	_, err = NewRemote(RemoteConfig{URL: srv.URL, PublicKey: "bad"}, nil, zerolog.Nop())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
