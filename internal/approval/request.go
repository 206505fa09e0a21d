package approval

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-trade-executor/internal/domain"
)

// Status is the lifecycle state of a request. Pending is the only
// non-terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

var (
	ErrNotFound         = fmt.Errorf("approval request %w", domain.ErrNotFound)
	ErrAlreadyResolved  = errors.New("approval request already resolved")
	ErrUnauthorized     = errors.New("signer not authorized")
	ErrDuplicateSigner  = errors.New("signer already signed")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Submission is what a caller asks to have approved.
type Submission struct {
	Type    TxType
	Amount  decimal.Decimal // SOL
	Token   string
	TradeID string
	// Payload is the serialized transaction message signers sign over.
	Payload []byte
}

// Signature is one collected approval.
type Signature struct {
	SignerID  string    `json:"signer_id"`
	PublicKey string    `json:"public_key"`
	Signature string    `json:"signature"`
	SignedAt  time.Time `json:"signed_at"`
}

// Request is a snapshot of one approval request.
type Request struct {
	ID           string          `json:"id"`
	Type         TxType          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Token        string          `json:"token,omitempty"`
	TradeID      string          `json:"trade_id,omitempty"`
	Payload      []byte          `json:"payload"`
	Policy       Policy          `json:"policy"`
	Risk         Risk            `json:"risk"`
	Status       Status          `json:"status"`
	Signatures   []Signature     `json:"signatures"`
	AutoApproved bool            `json:"auto_approved"`
	Reason       string          `json:"reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	ResolvedAt   time.Time       `json:"resolved_at,omitempty"`
}

// Err maps a terminal status to its domain error. Approved and Pending
// return nil.
func (r *Request) Err() error {
	switch r.Status {
	case StatusRejected:
		if r.Reason != "" {
			return fmt.Errorf("%w: %s", domain.ErrApprovalRejected, r.Reason)
		}
		return domain.ErrApprovalRejected
	case StatusExpired:
		return domain.ErrApprovalExpired
	case StatusCancelled:
		return domain.ErrApprovalCancelled
	default:
		return nil
	}
}

func (r *Request) clone() *Request {
	cp := *r
	cp.Signatures = append([]Signature(nil), r.Signatures...)
	cp.Risk.Factors = append([]string(nil), r.Risk.Factors...)
	cp.Policy.AuthorizedSigners = append([]string(nil), r.Policy.AuthorizedSigners...)
	return &cp
}

func (r *Request) hasSigner(signerID, publicKey string) bool {
	for _, s := range r.Signatures {
		if s.PublicKey == publicKey || (signerID != "" && s.SignerID == signerID) {
			return true
		}
	}
	return false
}
