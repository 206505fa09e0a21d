package domain

import "time"

// ProbeSample is one endpoint health probe.
type ProbeSample struct {
	Endpoint   string
	Tier       string
	Success    bool
	Latency    time.Duration
	Error      string
	ObservedAt time.Time
}

// ApprovalEvent is an audit entry for an approval request.
type ApprovalEvent struct {
	RequestID  string
	Kind       string // submitted, signature_added, approved, auto_approved, rejected, cancelled, expired, blockhash_refreshed
	Status     string // request status after the event
	TxType     string
	SignerID   string // empty unless a signature was added
	Detail     string
	OccurredAt time.Time
}
