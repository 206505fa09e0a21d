package solana

// Commitment is the confirmation level requested from a node.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// Rank orders commitment levels: processed < confirmed < finalized.
// Unknown values rank 0.
func (c Commitment) Rank() int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// Satisfies reports whether c is at least as strong as want.
func (c Commitment) Satisfies(want Commitment) bool {
	return c.Rank() > 0 && c.Rank() >= want.Rank()
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// LatestBlockhash from getLatestBlockhash.
type LatestBlockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
	Slot                 int64
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *uint64 // nil once rooted
	Err                interface{}
	ConfirmationStatus Commitment
}

// SendOptions controls sendTransaction preflight behavior.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment Commitment
	MaxRetries          *uint // node-side rebroadcast; nil leaves the node default
}
