package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/storage"
)

// ApprovalEventStore implements storage.ApprovalEventStore using PostgreSQL.
type ApprovalEventStore struct {
	pool *Pool
}

// NewApprovalEventStore creates a new ApprovalEventStore.
func NewApprovalEventStore(pool *Pool) *ApprovalEventStore {
	return &ApprovalEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ApprovalEventStore = (*ApprovalEventStore)(nil)

// Insert appends an audit event.
func (s *ApprovalEventStore) Insert(ctx context.Context, ev *domain.ApprovalEvent) error {
	if ev == nil || ev.RequestID == "" || ev.Kind == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO approval_events (
			request_id, kind, status, tx_type, signer_id, detail, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		ev.RequestID, ev.Kind, ev.Status, ev.TxType, ev.SignerID, ev.Detail, ev.OccurredAt,
	)
	s.pool.observe("insert_approval_event", start, err)
	if err != nil {
		return fmt.Errorf("insert approval event: %w", err)
	}
	return nil
}

// GetByRequestID retrieves the events of one request in occurrence order.
func (s *ApprovalEventStore) GetByRequestID(ctx context.Context, requestID string) ([]*domain.ApprovalEvent, error) {
	query := `
		SELECT request_id, kind, status, tx_type, signer_id, detail, occurred_at
		FROM approval_events
		WHERE request_id = $1
		ORDER BY occurred_at ASC, id ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, requestID)
	s.pool.observe("approval_events_by_request", start, err)
	if err != nil {
		return nil, fmt.Errorf("get approval events: %w", err)
	}
	defer rows.Close()

	var events []*domain.ApprovalEvent
	for rows.Next() {
		var ev domain.ApprovalEvent
		if err := rows.Scan(
			&ev.RequestID, &ev.Kind, &ev.Status, &ev.TxType, &ev.SignerID, &ev.Detail, &ev.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan approval event row: %w", err)
		}
		ev.OccurredAt = ev.OccurredAt.UTC()
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approval event rows: %w", err)
	}

	return events, nil
}
