package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-trade-executor/internal/observability"
	"solana-trade-executor/internal/solana"
)

// Status is the terminal outcome of a confirmation.
type Status string

const (
	// StatusConfirmed: executed successfully at the requested commitment.
	StatusConfirmed Status = "confirmed"
	// StatusFailed: executed with an on-chain error. Final, never retried.
	StatusFailed Status = "failed"
	// StatusTimeout: neither outcome observed. The transaction may still land.
	StatusTimeout Status = "timeout"
)

// StatusReader polls signature state.
type StatusReader interface {
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*solana.SignatureStatus, error)
	GetBlockHeight(ctx context.Context, commitment solana.Commitment) (uint64, error)
}

// SignatureWatcher pushes signature notifications.
type SignatureWatcher interface {
	SubscribeSignature(ctx context.Context, signature string, commitment solana.Commitment) (<-chan solana.SignatureNotification, error)
}

// ConfirmRequest identifies a sent transaction.
type ConfirmRequest struct {
	Signature string
	Blockhash string
	// LastValidBlockHeight bounds the wait. Zero disables the check.
	LastValidBlockHeight uint64
	Commitment           solana.Commitment
	Timeout              time.Duration
}

// ConfirmationResult is terminal.
type ConfirmationResult struct {
	Signature string        `json:"signature"`
	Status    Status        `json:"status"`
	Slot      int64         `json:"slot,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
	Attempts  int           `json:"attempts"`
	// ChainError is the on-chain error payload of a failed transaction.
	ChainError interface{} `json:"chain_error,omitempty"`
	// BlockhashExpired marks a timeout caused by the blockhash aging out.
	BlockhashExpired bool `json:"blockhash_expired,omitempty"`
}

// Err returns a description of the chain error, or "".
func (r ConfirmationResult) Err() string {
	if r.ChainError == nil {
		return ""
	}
	return fmt.Sprint(r.ChainError)
}

// ConfirmerConfig configures a Confirmer.
type ConfirmerConfig struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	DefaultTimeout  time.Duration
	// FinalReadTimeout bounds the status read made before reporting a timeout.
	FinalReadTimeout time.Duration
	Watcher          SignatureWatcher
	Logger           zerolog.Logger
	Metrics          *observability.Metrics
}

const (
	DefaultInitialInterval = 400 * time.Millisecond
	DefaultMultiplier      = 1.5
	DefaultMaxInterval     = 3 * time.Second
	DefaultConfirmTimeout  = 60 * time.Second
)

// Confirmer polls for confirmation with exponential backoff, optionally
// racing a WebSocket subscription.
type Confirmer struct {
	chain StatusReader
	cfg   ConfirmerConfig
	log   zerolog.Logger
}

// NewConfirmer creates a confirmer.
func NewConfirmer(chain StatusReader, cfg ConfirmerConfig) *Confirmer {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultInitialInterval
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultConfirmTimeout
	}
	if cfg.FinalReadTimeout <= 0 {
		cfg.FinalReadTimeout = 3 * time.Second
	}
	return &Confirmer{
		chain: chain,
		cfg:   cfg,
		log:   cfg.Logger.With().Str("component", "confirmer").Logger(),
	}
}

// Confirm waits for req.Signature to reach a terminal state. It stops
// observing at the timeout or when ctx is done; it never reports Timeout
// without a last status read.
func (c *Confirmer) Confirm(ctx context.Context, req ConfirmRequest) ConfirmationResult {
	if req.Commitment == "" {
		req.Commitment = solana.CommitmentConfirmed
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}
	start := time.Now()
	res := c.confirm(ctx, req, timeout)
	res.Signature = req.Signature
	res.Elapsed = time.Since(start)

	c.cfg.Metrics.RecordConfirmation(string(res.Status), res.Elapsed)
	ev := c.log.Info()
	if res.Status != StatusConfirmed {
		ev = c.log.Warn()
	}
	ev.Str("signature", req.Signature).
		Str("status", string(res.Status)).
		Int("attempts", res.Attempts).
		Dur("elapsed", res.Elapsed).
		Bool("blockhash_expired", res.BlockhashExpired).
		Msg("confirmation finished")
	return res
}

func (c *Confirmer) confirm(parent context.Context, req ConfirmRequest, timeout time.Duration) ConfirmationResult {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	var notes <-chan solana.SignatureNotification
	if c.cfg.Watcher != nil {
		ch, err := c.cfg.Watcher.SubscribeSignature(ctx, req.Signature, req.Commitment)
		if err != nil {
			c.log.Debug().Err(err).Str("signature", req.Signature).Msg("subscription unavailable, polling only")
		} else {
			notes = ch
		}
	}

	var res ConfirmationResult
	interval := c.cfg.InitialInterval
	for {
		res.Attempts++
		if done := c.poll(ctx, req, &res); done {
			return res
		}

		if req.LastValidBlockHeight > 0 {
			height, err := c.chain.GetBlockHeight(ctx, req.Commitment)
			if err == nil && height > req.LastValidBlockHeight {
				// the transaction can no longer be included; one last read
				// covers a landing in the final valid block
				c.finalRead(parent, req, &res)
				if res.Status == "" {
					res.Status = StatusTimeout
					res.BlockhashExpired = true
				}
				return res
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.finalRead(parent, req, &res)
			if res.Status == "" {
				res.Status = StatusTimeout
			}
			return res
		case n, ok := <-notes:
			timer.Stop()
			if !ok {
				notes = nil
				continue
			}
			res.Slot = n.Slot
			if n.Err != nil {
				res.Status, res.ChainError = StatusFailed, n.Err
			} else {
				res.Status = StatusConfirmed
			}
			return res
		case <-timer.C:
		}

		interval = time.Duration(float64(interval) * c.cfg.Multiplier)
		if interval > c.cfg.MaxInterval {
			interval = c.cfg.MaxInterval
		}
	}
}

// poll reads the signature status once and records a terminal outcome.
func (c *Confirmer) poll(ctx context.Context, req ConfirmRequest, res *ConfirmationResult) bool {
	statuses, err := c.chain.GetSignatureStatuses(ctx, []string{req.Signature})
	if err != nil {
		if ctx.Err() == nil {
			c.log.Debug().Err(err).Str("signature", req.Signature).Msg("status poll failed")
		}
		return false
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return false
	}
	st := statuses[0]
	res.Slot = st.Slot
	if st.Err != nil {
		res.Status, res.ChainError = StatusFailed, st.Err
		return true
	}
	if st.ConfirmationStatus.Satisfies(req.Commitment) {
		res.Status = StatusConfirmed
		return true
	}
	return false
}

func (c *Confirmer) finalRead(parent context.Context, req ConfirmRequest, res *ConfirmationResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.cfg.FinalReadTimeout)
	defer cancel()
	res.Attempts++
	c.poll(ctx, req, res)
}
