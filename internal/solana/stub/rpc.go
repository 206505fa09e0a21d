package stub

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"

	"solana-trade-executor/internal/solana"
)

// ErrSendRejected is a ready-made error for SendFunc implementations.
var ErrSendRejected = errors.New("send rejected")

// RPCClient implements solana.RPCClient for testing.
// All fields may be changed between calls; access is serialized.
type RPCClient struct {
	mu sync.Mutex

	Accounts     map[string]*solana.AccountInfo
	Transactions map[string]*solana.Transaction
	Statuses     map[string]*solana.SignatureStatus
	Balances     map[string]uint64

	Slot        int64
	BlockHeight uint64
	Blockhash   solana.LatestBlockhash

	// Err, when set, is returned by every method.
	Err error
	// SendFunc overrides SendTransaction.
	SendFunc func(raw []byte) (string, error)

	Sent  [][]byte
	calls map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts:     make(map[string]*solana.AccountInfo),
		Transactions: make(map[string]*solana.Transaction),
		Statuses:     make(map[string]*solana.SignatureStatus),
		Balances:     make(map[string]uint64),
		Blockhash: solana.LatestBlockhash{
			Blockhash:            "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
			LastValidBlockHeight: 1150,
		},
		BlockHeight: 1000,
		calls:       make(map[string]int),
	}
}

func (c *RPCClient) enter(method string) error {
	c.calls[method]++
	return c.Err
}

// Calls returns how many times method was invoked.
func (c *RPCClient) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// SetAccount stores an account with raw data.
func (c *RPCClient) SetAccount(address, owner string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[address] = &solana.AccountInfo{
		Lamports: 1_461_600,
		Owner:    owner,
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

// SetStatus stores a signature status.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = status
}

// SetBlockHeight changes the reported block height.
func (c *RPCClient) SetBlockHeight(h uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BlockHeight = h
}

// GetAccountInfo returns the stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getAccountInfo"); err != nil {
		return nil, err
	}
	info, ok := c.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	cp := *info
	return &cp, nil
}

// GetSlot returns Slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getSlot"); err != nil {
		return 0, err
	}
	return c.Slot, nil
}

// GetLatestBlockhash returns Blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context, _ solana.Commitment) (*solana.LatestBlockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getLatestBlockhash"); err != nil {
		return nil, err
	}
	bh := c.Blockhash
	return &bh, nil
}

// GetBlockHeight returns BlockHeight.
func (c *RPCClient) GetBlockHeight(_ context.Context, _ solana.Commitment) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getBlockHeight"); err != nil {
		return 0, err
	}
	return c.BlockHeight, nil
}

// GetBalance returns the stored balance, zero when unknown.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string, _ solana.Commitment) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getBalance"); err != nil {
		return 0, err
	}
	return c.Balances[pubkey], nil
}

// SendTransaction records raw and returns SendFunc's result, or a fixed signature.
func (c *RPCClient) SendTransaction(_ context.Context, raw []byte, _ solana.SendOptions) (string, error) {
	c.mu.Lock()
	if err := c.enter("sendTransaction"); err != nil {
		c.mu.Unlock()
		return "", err
	}
	c.Sent = append(c.Sent, append([]byte(nil), raw...))
	fn := c.SendFunc
	c.mu.Unlock()

	if fn != nil {
		return fn(raw)
	}
	return "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW", nil
}

// GetSignatureStatuses returns stored statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getSignatureStatuses"); err != nil {
		return nil, err
	}
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := c.Statuses[sig]; ok && st != nil {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}

// GetTransaction returns the stored transaction or nil.
func (c *RPCClient) GetTransaction(_ context.Context, signature string, _ solana.Commitment) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("getTransaction"); err != nil {
		return nil, err
	}
	return c.Transactions[signature], nil
}

var _ solana.RPCClient = (*RPCClient)(nil)
