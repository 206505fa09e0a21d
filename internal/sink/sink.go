// Package sink delivers final trade results to their consumers.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/storage"
)

// Sink receives every terminal TradeResult.
type Sink interface {
	Emit(ctx context.Context, r *domain.TradeResult) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, r *domain.TradeResult) error

// Emit calls f.
func (f Func) Emit(ctx context.Context, r *domain.TradeResult) error { return f(ctx, r) }

// Store persists results into a TradeResultStore.
type Store struct {
	store storage.TradeResultStore
}

// NewStore creates a store-backed sink.
func NewStore(store storage.TradeResultStore) *Store {
	return &Store{store: store}
}

// Emit inserts the result. A replayed trade id is not an error.
func (s *Store) Emit(ctx context.Context, r *domain.TradeResult) error {
	err := s.store.Insert(ctx, r)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist trade result %s: %w", r.TradeID, err)
	}
	return nil
}

// Multi fans a result out to every sink and joins their errors.
type Multi []Sink

// Emit delivers to all sinks even when some fail.
func (m Multi) Emit(ctx context.Context, r *domain.TradeResult) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes one structured line per result.
type Log struct {
	log zerolog.Logger
}

// NewLog creates a logging sink.
func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log.With().Str("component", "results").Logger()}
}

// Emit logs the result at info for successes and warn otherwise.
func (l *Log) Emit(_ context.Context, r *domain.TradeResult) error {
	ev := l.log.Info()
	if !r.Success {
		ev = l.log.Warn().Str("error_code", string(r.ErrorCode)).Str("error", r.Error)
	}
	ev.Str("trade_id", r.TradeID).
		Str("mint", r.Token).
		Str("side", string(r.Side)).
		Str("venue", r.Venue.String()).
		Str("signature", r.Signature).
		Str("status", r.Status).
		Uint64("amount_in", r.AmountIn).
		Int64("realized_out", r.RealizedOut).
		Dur("elapsed", r.Elapsed).
		Msg("trade finished")
	return nil
}
