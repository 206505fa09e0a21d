package settlement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/solana"
	"solana-trade-executor/internal/solana/stub"
)

const testSig = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

func fastConfirmer(chain StatusReader, watcher SignatureWatcher) *Confirmer {
	return NewConfirmer(chain, ConfirmerConfig{
		InitialInterval:  5 * time.Millisecond,
		MaxInterval:      20 * time.Millisecond,
		FinalReadTimeout: 100 * time.Millisecond,
		Watcher:          watcher,
		Logger:           zerolog.Nop(),
	})
}

func TestSubmitter_Success(t *testing.T) {
	rpc := stub.NewRPCClient()
	s := NewSubmitter(rpc, SubmitterConfig{Logger: zerolog.Nop()})

	sig, attempts, err := s.Submit(context.Background(), []byte{1, 2, 3})
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
	assert.Equal(t, 1, attempts)
	assert.Len(t, rpc.Sent, 1)
}

func TestSubmitter_RetriesTransportFailures(t *testing.T) {
	rpc := stub.NewRPCClient()
	var calls atomic.Int32
	rpc.SendFunc = func([]byte) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("connection reset")
		}
		return testSig, nil
	}
	s := NewSubmitter(rpc, SubmitterConfig{MaxAttempts: 3, Backoff: time.Millisecond, Logger: zerolog.Nop()})

	sig, attempts, err := s.Submit(context.Background(), []byte{1})
	require.NoError(t, err)
	assert.Equal(t, testSig, sig)
	assert.Equal(t, 3, attempts)
}

func TestSubmitter_Exhaustion(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SendFunc = func([]byte) (string, error) { return "", stub.ErrSendRejected }
	s := NewSubmitter(rpc, SubmitterConfig{MaxAttempts: 2, Backoff: time.Millisecond, Logger: zerolog.Nop()})

	_, attempts, err := s.Submit(context.Background(), []byte{1})
	assert.ErrorIs(t, err, domain.ErrSubmissionFailed)
	assert.Equal(t, 2, attempts)
}

func TestSubmitter_RPCErrorIsNotRetried(t *testing.T) {
	rpc := stub.NewRPCClient()
	var calls atomic.Int32
	rpc.SendFunc = func([]byte) (string, error) {
		calls.Add(1)
		return "", &solana.RPCError{Code: -32002, Message: "Transaction simulation failed"}
	}
	s := NewSubmitter(rpc, SubmitterConfig{MaxAttempts: 5, Backoff: time.Millisecond, Logger: zerolog.Nop()})

	_, attempts, err := s.Submit(context.Background(), []byte{1})
	assert.ErrorIs(t, err, domain.ErrSubmissionFailed)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, int32(1), calls.Load())
}

// scriptedChain answers status polls from a function of the poll number.
type scriptedChain struct {
	mu     sync.Mutex
	polls  int
	height uint64
	status func(poll int, ctx context.Context) *solana.SignatureStatus
}

func (c *scriptedChain) GetSignatureStatuses(ctx context.Context, _ []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	c.polls++
	n := c.polls
	c.mu.Unlock()
	return []*solana.SignatureStatus{c.status(n, ctx)}, nil
}

func (c *scriptedChain) GetBlockHeight(context.Context, solana.Commitment) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height, nil
}

func TestConfirm_Confirmed(t *testing.T) {
	chain := &scriptedChain{height: 100, status: func(poll int, _ context.Context) *solana.SignatureStatus {
		switch {
		case poll < 2:
			return nil
		case poll < 3:
			return &solana.SignatureStatus{Slot: 42, ConfirmationStatus: solana.CommitmentProcessed}
		default:
			return &solana.SignatureStatus{Slot: 42, ConfirmationStatus: solana.CommitmentConfirmed}
		}
	}}

	res := fastConfirmer(chain, nil).Confirm(context.Background(), ConfirmRequest{
		Signature: testSig, LastValidBlockHeight: 150, Timeout: time.Second,
	})
	assert.Equal(t, StatusConfirmed, res.Status)
	assert.Equal(t, int64(42), res.Slot)
	assert.Equal(t, 3, res.Attempts)
}

func TestConfirm_OnChainErrorIsFailed(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetStatus(testSig, &solana.SignatureStatus{
		Slot:               7,
		Err:                map[string]interface{}{"InstructionError": []interface{}{2, map[string]interface{}{"Custom": 6002}}},
		ConfirmationStatus: solana.CommitmentProcessed,
	})

	res := fastConfirmer(rpc, nil).Confirm(context.Background(), ConfirmRequest{Signature: testSig, Timeout: time.Second})
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Err(), "6002")
}

func TestConfirm_FailureAtTimeoutBoundaryIsFailed(t *testing.T) {
	// the error only becomes visible once the wait has timed out
	start := time.Now()
	chain := &scriptedChain{height: 100, status: func(int, context.Context) *solana.SignatureStatus {
		if time.Since(start) < 30*time.Millisecond {
			return nil
		}
		return &solana.SignatureStatus{Slot: 9, Err: "InsufficientFundsForRent"}
	}}

	c := NewConfirmer(chain, ConfirmerConfig{
		InitialInterval:  time.Second,
		MaxInterval:      time.Second,
		FinalReadTimeout: 100 * time.Millisecond,
		Logger:           zerolog.Nop(),
	})
	res := c.Confirm(context.Background(), ConfirmRequest{Signature: testSig, Timeout: 30 * time.Millisecond})
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "InsufficientFundsForRent", res.Err())
}

func TestConfirm_Timeout(t *testing.T) {
	rpc := stub.NewRPCClient()

	res := fastConfirmer(rpc, nil).Confirm(context.Background(), ConfirmRequest{Signature: testSig, Timeout: 40 * time.Millisecond})
	assert.Equal(t, StatusTimeout, res.Status)
	assert.False(t, res.BlockhashExpired)
	assert.Greater(t, res.Attempts, 1)
}

func TestConfirm_BlockhashExpired(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetBlockHeight(1200)

	res := fastConfirmer(rpc, nil).Confirm(context.Background(), ConfirmRequest{
		Signature: testSig, LastValidBlockHeight: 1150, Timeout: 5 * time.Second,
	})
	assert.Equal(t, StatusTimeout, res.Status)
	assert.True(t, res.BlockhashExpired)
	assert.Less(t, res.Elapsed, time.Second)
}

type fakeWatcher struct {
	note solana.SignatureNotification
}

func (w fakeWatcher) SubscribeSignature(context.Context, string, solana.Commitment) (<-chan solana.SignatureNotification, error) {
	ch := make(chan solana.SignatureNotification, 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		ch <- w.note
		close(ch)
	}()
	return ch, nil
}

func TestConfirm_WatcherFastPath(t *testing.T) {
	rpc := stub.NewRPCClient()
	c := NewConfirmer(rpc, ConfirmerConfig{
		InitialInterval: time.Second,
		Watcher:         fakeWatcher{note: solana.SignatureNotification{Signature: testSig, Slot: 77}},
		Logger:          zerolog.Nop(),
	})

	res := c.Confirm(context.Background(), ConfirmRequest{Signature: testSig, Timeout: 5 * time.Second})
	assert.Equal(t, StatusConfirmed, res.Status)
	assert.Equal(t, int64(77), res.Slot)
	assert.Less(t, res.Elapsed, time.Second)

	c.cfg.Watcher = fakeWatcher{note: solana.SignatureNotification{Signature: testSig, Err: "custom"}}
	res = c.Confirm(context.Background(), ConfirmRequest{Signature: testSig, Timeout: 5 * time.Second})
	assert.Equal(t, StatusFailed, res.Status)
}

func TestReadRealized(t *testing.T) {
	const owner, mint = "Owner111", "Mint111"
	rpc := stub.NewRPCClient()
	rpc.Transactions[testSig] = &solana.Transaction{
		Signature: testSig,
		Meta: &solana.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{10_000_000_000, 1},
			PostBalances: []uint64{8_989_995_000, 1},
			PreTokenBalances: []solana.TokenBalance{
				{AccountIndex: 3, Mint: mint, Owner: "Curve111", Amount: 900},
			},
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 2, Mint: mint, Owner: owner, Amount: 32_258_064},
				{AccountIndex: 3, Mint: mint, Owner: "Curve111", Amount: 800},
			},
		},
		Message: &solana.TransactionMessage{AccountKeys: []string{owner, "Other"}},
	}

	r, err := ReadRealized(context.Background(), rpc, testSig, owner, mint)
	require.NoError(t, err)
	assert.Equal(t, int64(-1_010_005_000), r.SOLDelta)
	assert.Equal(t, int64(32_258_064), r.TokenDelta)
	assert.Equal(t, uint64(5000), r.Fee)

	_, err = ReadRealized(context.Background(), rpc, "missing", owner, mint)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
