package rpcpool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"solana-trade-executor/internal/domain"
)

// SampleStore persists probe samples.
type SampleStore interface {
	InsertBatch(ctx context.Context, samples []domain.ProbeSample) error
}

// SampleRecorder buffers probe samples and writes them in batches.
// Observe never blocks; samples are dropped when the buffer is full.
type SampleRecorder struct {
	store     SampleStore
	in        chan domain.ProbeSample
	batchSize int
	interval  time.Duration
	log       zerolog.Logger
	dropped   atomic.Int64
}

// NewSampleRecorder creates a recorder. Pass its Observe method as Config.OnProbe.
func NewSampleRecorder(store SampleStore, batchSize int, interval time.Duration, log zerolog.Logger) *SampleRecorder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &SampleRecorder{
		store:     store,
		in:        make(chan domain.ProbeSample, batchSize*4),
		batchSize: batchSize,
		interval:  interval,
		log:       log.With().Str("component", "probe_recorder").Logger(),
	}
}

// Observe enqueues a sample.
func (r *SampleRecorder) Observe(s domain.ProbeSample) {
	select {
	case r.in <- s:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of samples discarded because the buffer was full.
func (r *SampleRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run flushes batches until ctx is done, then flushes what remains.
func (r *SampleRecorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	batch := make([]domain.ProbeSample, 0, r.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := r.store.InsertBatch(ctx, batch); err != nil {
			r.log.Warn().Err(err).Int("samples", len(batch)).Msg("flush failed")
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// drain without blocking
			for {
				select {
				case s := <-r.in:
					batch = append(batch, s)
				default:
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					flush(shutdownCtx)
					cancel()
					return nil
				}
			}
		case s := <-r.in:
			batch = append(batch, s)
			if len(batch) >= r.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}
