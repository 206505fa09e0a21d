package storage

import (
	"context"
	"time"

	"solana-trade-executor/internal/domain"
)

// TradeResultStore persists executor outcomes. Append-only.
type TradeResultStore interface {
	// Insert adds a result. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, r *domain.TradeResult) error

	// GetByTradeID returns ErrNotFound if the trade does not exist.
	GetByTradeID(ctx context.Context, tradeID string) (*domain.TradeResult, error)

	// GetByToken returns results for a token, newest first.
	GetByToken(ctx context.Context, token string, limit int) ([]*domain.TradeResult, error)

	// GetRecent returns the newest results.
	GetRecent(ctx context.Context, limit int) ([]*domain.TradeResult, error)
}

// ApprovalEventStore keeps the approval audit trail. Append-only.
type ApprovalEventStore interface {
	Insert(ctx context.Context, ev *domain.ApprovalEvent) error

	// GetByRequestID returns events of one request in occurrence order.
	GetByRequestID(ctx context.Context, requestID string) ([]*domain.ApprovalEvent, error)
}

// ProbeSampleStore keeps the endpoint probe time series.
type ProbeSampleStore interface {
	InsertBatch(ctx context.Context, samples []domain.ProbeSample) error

	// GetByEndpoint returns samples within [start, end], oldest first.
	GetByEndpoint(ctx context.Context, endpoint string, start, end time.Time) ([]domain.ProbeSample, error)
}

// DefaultListLimit caps list queries when the caller passes limit <= 0.
const DefaultListLimit = 100

// Limit normalizes a caller-supplied limit.
func Limit(n int) int {
	if n <= 0 || n > 10*DefaultListLimit {
		return DefaultListLimit
	}
	return n
}
