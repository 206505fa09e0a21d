package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/storage"
)

// TradeResultStore implements storage.TradeResultStore using PostgreSQL.
type TradeResultStore struct {
	pool *Pool
}

// NewTradeResultStore creates a new TradeResultStore.
func NewTradeResultStore(pool *Pool) *TradeResultStore {
	return &TradeResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeResultStore = (*TradeResultStore)(nil)

const tradeResultColumns = `
	trade_id, request_id, token, side, venue, graduated,
	success, signature, status, error_code, error,
	amount_in, expected_out, min_out, realized_in, realized_out,
	approval_id, auto_approved, attempts, elapsed_ms, completed_at
`

// Insert adds a new result. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeResultStore) Insert(ctx context.Context, r *domain.TradeResult) error {
	if r == nil || r.TradeID == "" {
		return storage.ErrInvalidInput
	}

	query := `INSERT INTO trade_results (` + tradeResultColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11,
		$12, $13, $14, $15, $16,
		$17, $18, $19, $20, $21
	)`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		r.TradeID, r.RequestID, r.Token, string(r.Side), r.Venue.String(), r.Graduated,
		r.Success, r.Signature, r.Status, string(r.ErrorCode), r.Error,
		int64(r.AmountIn), int64(r.ExpectedOut), int64(r.MinOut), r.RealizedIn, r.RealizedOut,
		r.ApprovalID, r.AutoApproved, r.Attempts, r.Elapsed.Milliseconds(), r.CompletedAt,
	)
	s.pool.observe("insert_trade_result", start, err)
	if err != nil {
		if mapped := mapError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert trade result: %w", err)
	}
	return nil
}

// GetByTradeID retrieves a result by trade ID. Returns ErrNotFound if not exists.
func (s *TradeResultStore) GetByTradeID(ctx context.Context, tradeID string) (*domain.TradeResult, error) {
	query := `SELECT ` + tradeResultColumns + ` FROM trade_results WHERE trade_id = $1`

	start := time.Now()
	r, err := scanTradeResult(s.pool.QueryRow(ctx, query, tradeID))
	s.pool.observe("get_trade_result", start, err)
	if err != nil {
		if mapped := mapError(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("get trade result by id: %w", err)
	}
	return r, nil
}

// GetByToken retrieves results for a token, newest first.
func (s *TradeResultStore) GetByToken(ctx context.Context, token string, limit int) ([]*domain.TradeResult, error) {
	query := `SELECT ` + tradeResultColumns + ` FROM trade_results
		WHERE token = $1
		ORDER BY completed_at DESC, trade_id ASC
		LIMIT $2`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, token, storage.Limit(limit))
	s.pool.observe("trade_results_by_token", start, err)
	if err != nil {
		return nil, fmt.Errorf("get trade results by token: %w", err)
	}
	defer rows.Close()

	return scanTradeResults(rows)
}

// GetRecent retrieves the newest results.
func (s *TradeResultStore) GetRecent(ctx context.Context, limit int) ([]*domain.TradeResult, error) {
	query := `SELECT ` + tradeResultColumns + ` FROM trade_results
		ORDER BY completed_at DESC, trade_id ASC
		LIMIT $1`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, storage.Limit(limit))
	s.pool.observe("recent_trade_results", start, err)
	if err != nil {
		return nil, fmt.Errorf("get recent trade results: %w", err)
	}
	defer rows.Close()

	return scanTradeResults(rows)
}

// scanTradeResult scans a single row into a TradeResult.
func scanTradeResult(row pgx.Row) (*domain.TradeResult, error) {
	var (
		r                          domain.TradeResult
		side, venue, code          string
		amountIn, expected, minOut int64
		elapsedMs                  int64
	)

	err := row.Scan(
		&r.TradeID, &r.RequestID, &r.Token, &side, &venue, &r.Graduated,
		&r.Success, &r.Signature, &r.Status, &code, &r.Error,
		&amountIn, &expected, &minOut, &r.RealizedIn, &r.RealizedOut,
		&r.ApprovalID, &r.AutoApproved, &r.Attempts, &elapsedMs, &r.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Side = domain.Side(side)
	_ = r.Venue.UnmarshalText([]byte(venue))
	r.ErrorCode = domain.ErrorCode(code)
	r.AmountIn = uint64(amountIn)
	r.ExpectedOut = uint64(expected)
	r.MinOut = uint64(minOut)
	r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	r.CompletedAt = r.CompletedAt.UTC()
	return &r, nil
}

// scanTradeResults scans multiple rows into a slice of TradeResult.
func scanTradeResults(rows pgx.Rows) ([]*domain.TradeResult, error) {
	var results []*domain.TradeResult

	for rows.Next() {
		r, err := scanTradeResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade result row: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade result rows: %w", err)
	}

	return results, nil
}
