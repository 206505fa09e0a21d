package storage

import (
	"errors"
	"fmt"

	"solana-trade-executor/internal/domain"
)

// Sentinels shared by every store implementation. ErrNotFound and
// ErrInvalidInput wrap their domain counterparts so callers can classify
// them with domain.Classify.
var (
	ErrNotFound = fmt.Errorf("record %w", domain.ErrNotFound)

	// ErrDuplicateKey rejects a second insert of the same key. Stores are append-only.
	ErrDuplicateKey = errors.New("duplicate key: record already stored")

	ErrInvalidInput = fmt.Errorf("storage: %w", domain.ErrInvalidInput)
)
