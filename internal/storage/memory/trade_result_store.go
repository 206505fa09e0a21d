package memory

import (
	"context"
	"sort"
	"sync"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/storage"
)

// TradeResultStore is an in-memory implementation of storage.TradeResultStore.
type TradeResultStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.TradeResult // keyed by trade_id
	order []string                       // insertion order
}

// NewTradeResultStore creates a new in-memory trade result store.
func NewTradeResultStore() *TradeResultStore {
	return &TradeResultStore{
		data: make(map[string]*domain.TradeResult),
	}
}

var _ storage.TradeResultStore = (*TradeResultStore)(nil)

// Insert adds a result. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeResultStore) Insert(_ context.Context, r *domain.TradeResult) error {
	if r == nil || r.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.TradeID]; exists {
		return storage.ErrDuplicateKey
	}
	rc := *r
	s.data[r.TradeID] = &rc
	s.order = append(s.order, r.TradeID)
	return nil
}

// GetByTradeID returns ErrNotFound if the trade does not exist.
func (s *TradeResultStore) GetByTradeID(_ context.Context, tradeID string) (*domain.TradeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[tradeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	rc := *r
	return &rc, nil
}

// GetByToken returns results for token, newest first.
func (s *TradeResultStore) GetByToken(_ context.Context, token string, limit int) ([]*domain.TradeResult, error) {
	return s.collect(storage.Limit(limit), func(r *domain.TradeResult) bool { return r.Token == token }), nil
}

// GetRecent returns the newest results.
func (s *TradeResultStore) GetRecent(_ context.Context, limit int) ([]*domain.TradeResult, error) {
	return s.collect(storage.Limit(limit), func(*domain.TradeResult) bool { return true }), nil
}

func (s *TradeResultStore) collect(limit int, keep func(*domain.TradeResult) bool) []*domain.TradeResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TradeResult
	for _, id := range s.order {
		if r := s.data[id]; keep(r) {
			rc := *r
			out = append(out, &rc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
