package signer

import (
	"context"
	"errors"
	"fmt"
	"os"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"

	"solana-trade-executor/internal/domain"
)

// DefaultPrivateKeyEnv holds the local wallet secret key.
const DefaultPrivateKeyEnv = "SOLANA_PRIVATE_KEY_BASE58"

// LoadPrivateKeyFromEnv reads a base58 secret key from env, loading .env
// first when present.
func LoadPrivateKeyFromEnv(name string) (solanago.PrivateKey, error) {
	if name == "" {
		name = DefaultPrivateKeyEnv
	}
	_ = godotenv.Load() // best-effort
	b58 := os.Getenv(name)
	if b58 == "" {
		return nil, errors.New(name + " not set")
	}
	key, err := solanago.PrivateKeyFromBase58(b58)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return key, nil
}

// Local signs with an in-process keypair.
type Local struct {
	key      solanago.PrivateKey
	balances BalanceReader
}

// NewLocal wraps key.
func NewLocal(key solanago.PrivateKey, balances BalanceReader) *Local {
	return &Local{key: key, balances: balances}
}

func (s *Local) Kind() Kind { return KindLocal }

func (s *Local) PublicKey() solanago.PublicKey { return s.key.PublicKey() }

func (s *Local) SignTransaction(_ context.Context, tx *solanago.Transaction) error {
	msg, err := messageBytes(tx)
	if err != nil {
		return err
	}
	sig, err := s.key.Sign(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	return attachSignature(tx, s.key.PublicKey(), sig)
}

func (s *Local) Balance(ctx context.Context) (uint64, error) {
	return balanceOf(ctx, s.balances, s.key.PublicKey())
}
