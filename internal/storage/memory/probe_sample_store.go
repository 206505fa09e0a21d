package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/storage"
)

// ProbeSampleStore is an in-memory implementation of storage.ProbeSampleStore.
type ProbeSampleStore struct {
	mu   sync.RWMutex
	data map[string][]domain.ProbeSample // keyed by endpoint
}

// NewProbeSampleStore creates a new in-memory probe sample store.
func NewProbeSampleStore() *ProbeSampleStore {
	return &ProbeSampleStore{
		data: make(map[string][]domain.ProbeSample),
	}
}

var _ storage.ProbeSampleStore = (*ProbeSampleStore)(nil)

// InsertBatch appends samples.
func (s *ProbeSampleStore) InsertBatch(_ context.Context, samples []domain.ProbeSample) error {
	for _, p := range samples {
		if p.Endpoint == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range samples {
		s.data[p.Endpoint] = append(s.data[p.Endpoint], p)
	}
	return nil
}

// GetByEndpoint returns samples within [start, end], oldest first.
func (s *ProbeSampleStore) GetByEndpoint(_ context.Context, endpoint string, start, end time.Time) ([]domain.ProbeSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ProbeSample
	for _, p := range s.data[endpoint] {
		if !p.ObservedAt.Before(start) && !p.ObservedAt.After(end) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ObservedAt.Before(out[j].ObservedAt)
	})
	return out, nil
}
