package settlement

import (
	"context"
	"fmt"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/solana"
)

// TransactionReader fetches confirmed transactions.
type TransactionReader interface {
	GetTransaction(ctx context.Context, signature string, commitment solana.Commitment) (*solana.Transaction, error)
}

// Realized is the balance change a transaction caused for one owner.
type Realized struct {
	// SOLDelta is the lamport change of the owner, fee included.
	SOLDelta int64
	// TokenDelta is the change of the owner's balance of the mint.
	TokenDelta int64
	Fee        uint64
}

// ReadRealized computes owner's SOL and mint balance deltas from the
// transaction meta.
func ReadRealized(ctx context.Context, chain TransactionReader, signature, owner, mint string) (*Realized, error) {
	tx, err := chain.GetTransaction(ctx, signature, solana.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if tx == nil || tx.Meta == nil {
		return nil, fmt.Errorf("transaction %s: %w", signature, domain.ErrNotFound)
	}
	meta := tx.Meta
	out := &Realized{Fee: meta.Fee}

	if tx.Message != nil {
		for i, key := range tx.Message.AccountKeys {
			if key != owner {
				continue
			}
			if i < len(meta.PreBalances) && i < len(meta.PostBalances) {
				out.SOLDelta = int64(meta.PostBalances[i]) - int64(meta.PreBalances[i])
			}
			break
		}
	}

	out.TokenDelta = tokenTotal(meta.PostTokenBalances, owner, mint) - tokenTotal(meta.PreTokenBalances, owner, mint)
	return out, nil
}

func tokenTotal(balances []solana.TokenBalance, owner, mint string) int64 {
	var total int64
	for _, b := range balances {
		if b.Owner == owner && b.Mint == mint {
			total += int64(b.Amount)
		}
	}
	return total
}
