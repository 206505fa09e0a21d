package solana

import "context"

// RPCClient defines the Solana JSON-RPC methods used by the executor.
type RPCClient interface {
	// GetAccountInfo returns nil, nil when the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetSlot returns the current slot. Used as a cheap liveness probe.
	GetSlot(ctx context.Context) (int64, error)

	// GetLatestBlockhash returns a blockhash and the last block height it is valid for.
	GetLatestBlockhash(ctx context.Context, commitment Commitment) (*LatestBlockhash, error)

	// GetBlockHeight returns the current block height.
	GetBlockHeight(ctx context.Context, commitment Commitment) (uint64, error)

	// GetBalance returns an account balance in lamports.
	GetBalance(ctx context.Context, pubkey string, commitment Commitment) (uint64, error)

	// SendTransaction submits a serialized, signed transaction and returns its signature.
	SendTransaction(ctx context.Context, raw []byte, opts SendOptions) (string, error)

	// GetSignatureStatuses returns one entry per signature; unknown signatures map to nil.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetTransaction returns nil, nil when the transaction is not found.
	GetTransaction(ctx context.Context, signature string, commitment Commitment) (*Transaction, error)
}

// Transaction represents a confirmed Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	Fee               uint64
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LogMessages       []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// TokenBalance is an SPL token balance entry of transaction meta.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       uint64
	Decimals     uint8
}
