package domain

import "time"

// TradeResult is emitted for every request that reaches the executor,
// successful or not.
type TradeResult struct {
	TradeID   string    `json:"trade_id"`
	RequestID string    `json:"request_id,omitempty"`
	Token     string    `json:"token"`
	Side      Side      `json:"side"`
	Venue     VenueKind `json:"venue"`
	Graduated bool      `json:"graduated"`

	Success   bool      `json:"success"`
	Signature string    `json:"signature,omitempty"`
	Status    string    `json:"status"` // confirmation status or "not_submitted"
	ErrorCode ErrorCode `json:"error_code,omitempty"`
	Error     string    `json:"error,omitempty"`

	// Base units. For buys AmountIn is lamports, for sells token units.
	AmountIn    uint64 `json:"amount_in"`
	ExpectedOut uint64 `json:"expected_out"`
	MinOut      uint64 `json:"min_out"`
	RealizedIn  int64  `json:"realized_in,omitempty"`
	RealizedOut int64  `json:"realized_out,omitempty"`

	ApprovalID   string `json:"approval_id,omitempty"`
	AutoApproved bool   `json:"auto_approved"`

	Attempts    int           `json:"attempts"`
	Elapsed     time.Duration `json:"elapsed"`
	CompletedAt time.Time     `json:"completed_at"`
}

// StatusNotSubmitted marks results that never reached the network.
const StatusNotSubmitted = "not_submitted"
