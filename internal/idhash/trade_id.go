// Package idhash derives deterministic identifiers.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"solana-trade-executor/internal/domain"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(token|side|amount|unit|slippage_bps|priority_fee|requested_at_ms)
// Returns hex-encoded hash (64 characters).
// A redelivered request hashes to the same id, so results deduplicate on insert.
func ComputeTradeID(req domain.TradeRequest) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d|%d|%d",
		strings.TrimSpace(req.Token),
		string(req.Side),
		req.Amount.String(),
		string(req.Unit),
		req.SlippageBps,
		req.PriorityFeeMicroLamports,
		req.RequestedAt.UnixMilli(),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
