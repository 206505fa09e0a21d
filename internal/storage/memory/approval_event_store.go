package memory

import (
	"context"
	"sort"
	"sync"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/storage"
)

// ApprovalEventStore is an in-memory implementation of storage.ApprovalEventStore.
type ApprovalEventStore struct {
	mu   sync.RWMutex
	data map[string][]domain.ApprovalEvent // keyed by request_id
}

// NewApprovalEventStore creates a new in-memory approval event store.
func NewApprovalEventStore() *ApprovalEventStore {
	return &ApprovalEventStore{
		data: make(map[string][]domain.ApprovalEvent),
	}
}

var _ storage.ApprovalEventStore = (*ApprovalEventStore)(nil)

// Insert appends an event.
func (s *ApprovalEventStore) Insert(_ context.Context, ev *domain.ApprovalEvent) error {
	if ev == nil || ev.RequestID == "" || ev.Kind == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[ev.RequestID] = append(s.data[ev.RequestID], *ev)
	return nil
}

// GetByRequestID returns events of one request in occurrence order.
func (s *ApprovalEventStore) GetByRequestID(_ context.Context, requestID string) ([]*domain.ApprovalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.data[requestID]
	out := make([]*domain.ApprovalEvent, len(events))
	for i := range events {
		ev := events[i]
		out[i] = &ev
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out, nil
}
