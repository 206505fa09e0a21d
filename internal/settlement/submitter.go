// Package settlement submits signed transactions and tracks them to a
// terminal outcome.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/observability"
	"solana-trade-executor/internal/solana"
)

// Sender submits raw transactions.
type Sender interface {
	SendTransaction(ctx context.Context, raw []byte, opts solana.SendOptions) (string, error)
}

// SubmitterConfig configures a Submitter.
type SubmitterConfig struct {
	MaxAttempts int
	// Backoff is multiplied by the attempt number between attempts.
	Backoff time.Duration
	Options solana.SendOptions
	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

const (
	DefaultSubmitAttempts = 3
	DefaultSubmitBackoff  = 500 * time.Millisecond
)

// Submitter sends a signed transaction with bounded retries.
type Submitter struct {
	sender Sender
	cfg    SubmitterConfig
	log    zerolog.Logger
}

// NewSubmitter creates a submitter.
func NewSubmitter(sender Sender, cfg SubmitterConfig) *Submitter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultSubmitAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultSubmitBackoff
	}
	return &Submitter{
		sender: sender,
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "submitter").Logger(),
	}
}

// Submit sends raw and returns its signature and the attempts used.
// Transport failures are retried with linear backoff. A JSON-RPC error,
// such as a failed preflight, is returned immediately. Exhaustion wraps
// domain.ErrSubmissionFailed.
func (s *Submitter) Submit(ctx context.Context, raw []byte) (string, int, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		sig, err := s.sender.SendTransaction(ctx, raw, s.cfg.Options)
		s.cfg.Metrics.RecordSubmission(err)
		if err == nil {
			s.log.Debug().Str("signature", sig).Int("attempt", attempt).Msg("transaction sent")
			return sig, attempt, nil
		}
		lastErr = err

		if solana.IsRPCError(err) {
			return "", attempt, fmt.Errorf("%w: rejected by node: %v", domain.ErrSubmissionFailed, err)
		}
		if attempt == s.cfg.MaxAttempts {
			break
		}

		s.log.Warn().Err(err).Int("attempt", attempt).Msg("send failed, retrying")
		select {
		case <-ctx.Done():
			return "", attempt, fmt.Errorf("%w: %v", domain.ErrSubmissionFailed, ctx.Err())
		case <-time.After(time.Duration(attempt) * s.cfg.Backoff):
		}
	}
	return "", s.cfg.MaxAttempts, fmt.Errorf("%w after %d attempts: %v", domain.ErrSubmissionFailed, s.cfg.MaxAttempts, lastErr)
}
