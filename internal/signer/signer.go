// Package signer produces transaction signatures. The approval workflow
// sits upstream of every implementation.
package signer

import (
	"context"
	"fmt"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/solana"
)

// Kind selects the signer implementation. It is resolved once at startup.
type Kind int

const (
	KindLocal Kind = iota + 1
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// ParseKind parses a configured signer kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "":
		return KindLocal, nil
	case "remote", "mpc":
		return KindRemote, nil
	}
	return 0, fmt.Errorf("%w: unknown signer kind %q", domain.ErrInvalidInput, s)
}

// Signer signs transactions for one wallet.
type Signer interface {
	Kind() Kind
	PublicKey() solanago.PublicKey
	// SignTransaction adds this wallet's signature to tx.
	SignTransaction(ctx context.Context, tx *solanago.Transaction) error
	// Balance returns the wallet's lamport balance.
	Balance(ctx context.Context) (uint64, error)
}

// BalanceReader reads lamport balances.
type BalanceReader interface {
	GetBalance(ctx context.Context, pubkey string, commitment solana.Commitment) (uint64, error)
}

// Config selects and configures a signer.
type Config struct {
	Kind Kind
	// PrivateKeyEnv names the env var holding a base58 secret key.
	PrivateKeyEnv string
	Remote        RemoteConfig
}

// New builds the signer for cfg.Kind.
func New(cfg Config, balances BalanceReader, log zerolog.Logger) (Signer, error) {
	switch cfg.Kind {
	case KindLocal:
		key, err := LoadPrivateKeyFromEnv(cfg.PrivateKeyEnv)
		if err != nil {
			return nil, err
		}
		return NewLocal(key, balances), nil
	case KindRemote:
		return NewRemote(cfg.Remote, balances, log)
	default:
		return nil, fmt.Errorf("%w: signer kind %d", domain.ErrInvalidInput, cfg.Kind)
	}
}

// attachSignature places sig in the slot of pub among the message signers.
func attachSignature(tx *solanago.Transaction, pub solanago.PublicKey, sig solanago.Signature) error {
	n := int(tx.Message.Header.NumRequiredSignatures)
	if n == 0 || n > len(tx.Message.AccountKeys) {
		return fmt.Errorf("%w: message declares %d signers", domain.ErrSigningFailed, n)
	}
	idx := -1
	for i, k := range tx.Message.AccountKeys[:n] {
		if k.Equals(pub) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s is not a signer of this transaction", domain.ErrSigningFailed, pub)
	}
	if len(tx.Signatures) != n {
		sigs := make([]solanago.Signature, n)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	tx.Signatures[idx] = sig
	return nil
}

func messageBytes(tx *solanago.Transaction) ([]byte, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: encode message: %v", domain.ErrSigningFailed, err)
	}
	return msg, nil
}

func balanceOf(ctx context.Context, balances BalanceReader, pub solanago.PublicKey) (uint64, error) {
	if balances == nil {
		return 0, fmt.Errorf("no balance reader configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return balances.GetBalance(ctx, pub.String(), solana.CommitmentConfirmed)
}
