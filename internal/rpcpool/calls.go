package rpcpool

import (
	"context"
	"fmt"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/solana"
)

// do runs fn against the selected endpoint, moving to the next best endpoint
// on transport failure. Node-side JSON-RPC errors are returned as-is and
// count as a healthy response.
func do[T any](ctx context.Context, p *Pool, method string, fn func(context.Context, solana.RPCClient) (T, error)) (T, error) {
	var zero T
	tried := make(map[string]bool, p.cfg.MaxFailover)
	var lastErr error

	for attempt := 0; attempt < p.cfg.MaxFailover; attempt++ {
		url, err := p.selectExcluding(ctx, tried)
		if err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%s: %w (last error: %v)", method, domain.ErrEndpointUnavailable, lastErr)
			}
			return zero, fmt.Errorf("%s: %w", method, err)
		}
		tried[url] = true
		if attempt > 0 {
			p.cfg.Metrics.RecordFailover(method)
		}

		client, _ := p.Client(url)
		start := p.now()
		out, err := fn(ctx, client)
		elapsed := p.now().Sub(start)
		p.cfg.Metrics.RecordRPCLatency(method, elapsed)

		if err == nil || solana.IsRPCError(err) {
			p.RecordSuccess(url, elapsed)
			return out, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		p.RecordFailure(url, err)
		p.log.Warn().Str("endpoint", url).Str("method", method).Err(err).Msg("call failed")
		lastErr = err
	}

	return zero, fmt.Errorf("%s: %w: %v", method, domain.ErrEndpointUnavailable, lastErr)
}

// GetAccountInfo implements solana.RPCClient with failover.
func (p *Pool) GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error) {
	return do(ctx, p, "getAccountInfo", func(ctx context.Context, c solana.RPCClient) (*solana.AccountInfo, error) {
		return c.GetAccountInfo(ctx, pubkey)
	})
}

// GetSlot implements solana.RPCClient with failover.
func (p *Pool) GetSlot(ctx context.Context) (int64, error) {
	return do(ctx, p, "getSlot", func(ctx context.Context, c solana.RPCClient) (int64, error) {
		return c.GetSlot(ctx)
	})
}

// GetLatestBlockhash implements solana.RPCClient with failover.
func (p *Pool) GetLatestBlockhash(ctx context.Context, commitment solana.Commitment) (*solana.LatestBlockhash, error) {
	return do(ctx, p, "getLatestBlockhash", func(ctx context.Context, c solana.RPCClient) (*solana.LatestBlockhash, error) {
		return c.GetLatestBlockhash(ctx, commitment)
	})
}

// GetBlockHeight implements solana.RPCClient with failover.
func (p *Pool) GetBlockHeight(ctx context.Context, commitment solana.Commitment) (uint64, error) {
	return do(ctx, p, "getBlockHeight", func(ctx context.Context, c solana.RPCClient) (uint64, error) {
		return c.GetBlockHeight(ctx, commitment)
	})
}

// GetBalance implements solana.RPCClient with failover.
func (p *Pool) GetBalance(ctx context.Context, pubkey string, commitment solana.Commitment) (uint64, error) {
	return do(ctx, p, "getBalance", func(ctx context.Context, c solana.RPCClient) (uint64, error) {
		return c.GetBalance(ctx, pubkey, commitment)
	})
}

// SendTransaction implements solana.RPCClient with failover. Resending the
// same signed bytes elsewhere is safe: the network deduplicates by signature.
func (p *Pool) SendTransaction(ctx context.Context, raw []byte, opts solana.SendOptions) (string, error) {
	return do(ctx, p, "sendTransaction", func(ctx context.Context, c solana.RPCClient) (string, error) {
		return c.SendTransaction(ctx, raw, opts)
	})
}

// GetSignatureStatuses implements solana.RPCClient with failover.
func (p *Pool) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	return do(ctx, p, "getSignatureStatuses", func(ctx context.Context, c solana.RPCClient) ([]*solana.SignatureStatus, error) {
		return c.GetSignatureStatuses(ctx, signatures)
	})
}

// GetTransaction implements solana.RPCClient with failover.
func (p *Pool) GetTransaction(ctx context.Context, signature string, commitment solana.Commitment) (*solana.Transaction, error) {
	return do(ctx, p, "getTransaction", func(ctx context.Context, c solana.RPCClient) (*solana.Transaction, error) {
		return c.GetTransaction(ctx, signature, commitment)
	})
}

var _ solana.RPCClient = (*Pool)(nil)

