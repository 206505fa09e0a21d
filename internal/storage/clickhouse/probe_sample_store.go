package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/storage"
)

// ProbeSampleStore implements storage.ProbeSampleStore using ClickHouse.
type ProbeSampleStore struct {
	conn *Conn
}

// NewProbeSampleStore creates a new ProbeSampleStore.
func NewProbeSampleStore(conn *Conn) *ProbeSampleStore {
	return &ProbeSampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ProbeSampleStore = (*ProbeSampleStore)(nil)

// InsertBatch writes samples in a single batch.
func (s *ProbeSampleStore) InsertBatch(ctx context.Context, samples []domain.ProbeSample) error {
	if len(samples) == 0 {
		return nil
	}
	for _, p := range samples {
		if p.Endpoint == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO probe_samples (
			endpoint, tier, success, latency_us, error, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range samples {
		var ok uint8
		if p.Success {
			ok = 1
		}
		err = batch.Append(
			p.Endpoint, p.Tier, ok,
			uint64(p.Latency.Microseconds()), p.Error, p.ObservedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByEndpoint retrieves samples within [start, end] (inclusive), oldest first.
func (s *ProbeSampleStore) GetByEndpoint(ctx context.Context, endpoint string, start, end time.Time) ([]domain.ProbeSample, error) {
	query := `
		SELECT endpoint, tier, success, latency_us, error, observed_at
		FROM probe_samples
		WHERE endpoint = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, endpoint, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query probe samples: %w", err)
	}
	defer rows.Close()

	return scanProbeSamples(rows)
}

// scanProbeSamples scans multiple rows.
func scanProbeSamples(rows chRows) ([]domain.ProbeSample, error) {
	var samples []domain.ProbeSample

	for rows.Next() {
		var (
			p         domain.ProbeSample
			ok        uint8
			latencyUs uint64
		)
		if err := rows.Scan(&p.Endpoint, &p.Tier, &ok, &latencyUs, &p.Error, &p.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan probe sample row: %w", err)
		}
		p.Success = ok == 1
		p.Latency = time.Duration(latencyUs) * time.Microsecond
		p.ObservedAt = p.ObservedAt.UTC()
		samples = append(samples, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate probe sample rows: %w", err)
	}

	return samples, nil
}
