package approval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/observability"
)

// EventSink receives audit events. It is never called with the workflow
// lock held.
type EventSink interface {
	Insert(ctx context.Context, ev *domain.ApprovalEvent) error
}

// Event kinds.
const (
	EventSubmitted      = "submitted"
	EventSignatureAdded = "signature_added"
	EventApproved       = "approved"
	EventAutoApproved   = "auto_approved"
	EventRejected       = "rejected"
	EventCancelled      = "cancelled"
	EventExpired        = "expired"

	// EventBlockhashRefreshed links an approved message to the one actually
	// signed after its blockhash was replaced.
	EventBlockhashRefreshed = "blockhash_refreshed"
)

const (
	DefaultSweepInterval = 5 * time.Second
	DefaultRetention     = time.Hour
)

// Config configures a Workflow.
type Config struct {
	Policies      map[TxType]Policy
	SweepInterval time.Duration
	// Retention is how long terminal requests stay queryable.
	Retention time.Duration
	Events    EventSink
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
	// Clock overrides time.Now.
	Clock func() time.Time
}

type entry struct {
	req  *Request
	done chan struct{}
}

// Workflow tracks approval requests from submission to a terminal state.
// All state transitions happen under one mutex; network and sink calls
// happen outside it.
type Workflow struct {
	cfg      Config
	policies map[TxType]Policy
	now      func() time.Time
	log      zerolog.Logger

	mu       sync.Mutex
	requests map[string]*entry
}

// New creates a workflow. Missing policies fall back to DefaultPolicies.
func New(cfg Config) (*Workflow, error) {
	policies := DefaultPolicies()
	for t, p := range cfg.Policies {
		if _, err := ParseTxType(string(t)); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy %s: %w", t, err)
		}
		policies[t] = p
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Workflow{
		cfg:      cfg,
		policies: policies,
		now:      now,
		log:      cfg.Logger.With().Str("component", "approval").Logger(),
		requests: make(map[string]*entry),
	}, nil
}

// Policy returns the configured policy for t.
func (w *Workflow) Policy(t TxType) (Policy, bool) {
	p, ok := w.policies[t]
	return p, ok
}

// Submit registers a request and applies auto-approval. Auto-approval only
// skips the gate; the transaction is still signed by the signer.
func (w *Workflow) Submit(ctx context.Context, sub Submission) (*Request, error) {
	policy, ok := w.policies[sub.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidInput, sub.Type)
	}
	if sub.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount", domain.ErrInvalidInput)
	}
	if len(sub.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidInput)
	}

	now := w.now()
	policy = policy.effective(sub.Amount)
	req := &Request{
		ID:        uuid.NewString(),
		Type:      sub.Type,
		Amount:    sub.Amount,
		Token:     sub.Token,
		TradeID:   sub.TradeID,
		Payload:   append([]byte(nil), sub.Payload...),
		Policy:    policy,
		Risk:      AssessRisk(sub.Type, sub.Amount, policy, now),
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(policy.Timeout),
	}
	events := []domain.ApprovalEvent{w.event(req, EventSubmitted, "", fmt.Sprintf("risk=%s", req.Risk.Level))}

	if autoApprovable(req) {
		req.Status = StatusApproved
		req.AutoApproved = true
		req.ResolvedAt = now
		events = append(events, w.event(req, EventAutoApproved, "", "amount below "+policy.AutoApproveBelow.String()+" SOL"))
	}

	e := &entry{req: req, done: make(chan struct{})}
	if req.Status.IsTerminal() {
		close(e.done)
	}

	w.mu.Lock()
	w.requests[req.ID] = e
	snapshot := req.clone()
	pending := w.pendingLocked()
	w.mu.Unlock()

	w.cfg.Metrics.RecordApprovalSubmitted(string(req.Type))
	w.cfg.Metrics.SetApprovalsPending(pending)
	if snapshot.AutoApproved {
		w.cfg.Metrics.RecordApprovalFinished(string(StatusApproved), true)
	}
	w.emit(ctx, events)

	w.log.Info().
		Str("approval_id", snapshot.ID).
		Str("type", string(snapshot.Type)).
		Str("amount", snapshot.Amount.String()).
		Str("risk", string(snapshot.Risk.Level)).
		Str("status", string(snapshot.Status)).
		Msg("approval submitted")

	return snapshot, nil
}

func autoApprovable(r *Request) bool {
	p := r.Policy
	return p.AutoApproveBelow.IsPositive() &&
		r.Amount.LessThan(p.AutoApproveBelow) &&
		!p.RequireManualReview &&
		r.Risk.Level != RiskHigh
}

// Approve adds a signature from publicKey over the request payload. The
// request becomes Approved once the policy's signature count is reached.
// Approving an expired request expires it and returns
// domain.ErrApprovalExpired.
func (w *Workflow) Approve(ctx context.Context, id, signerID, signature, publicKey string) (*Request, error) {
	w.mu.Lock()
	e, ok := w.requests[id]
	if !ok {
		w.mu.Unlock()
		return nil, ErrNotFound
	}
	payload := e.req.Payload
	policy := e.req.Policy
	w.mu.Unlock()

	// Payload and policy are immutable, so verification runs unlocked.
	if !policy.authorized(publicKey) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, publicKey)
	}
	if err := verify(payload, signature, publicKey); err != nil {
		return nil, err
	}

	var events []domain.ApprovalEvent
	w.mu.Lock()
	req := e.req
	now := w.now()

	if req.Status == StatusPending && !now.Before(req.ExpiresAt) {
		events = append(events, w.expireLocked(e, now))
	}
	if req.Status.IsTerminal() {
		snapshot := req.clone()
		w.mu.Unlock()
		w.emit(ctx, events)
		if err := snapshot.Err(); err != nil {
			return snapshot, err
		}
		return snapshot, ErrAlreadyResolved
	}
	if req.hasSigner(signerID, publicKey) {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSigner, publicKey)
	}

	req.Signatures = append(req.Signatures, Signature{
		SignerID:  signerID,
		PublicKey: publicKey,
		Signature: signature,
		SignedAt:  now,
	})
	events = append(events, w.event(req, EventSignatureAdded, signerID,
		fmt.Sprintf("%d/%d", len(req.Signatures), req.Policy.RequiredSignatures)))

	approved := len(req.Signatures) >= req.Policy.RequiredSignatures
	if approved {
		w.resolveLocked(e, StatusApproved, now, "")
		events = append(events, w.event(req, EventApproved, signerID, ""))
	}
	snapshot := req.clone()
	pending := w.pendingLocked()
	w.mu.Unlock()

	if approved {
		w.cfg.Metrics.RecordApprovalFinished(string(StatusApproved), false)
		w.cfg.Metrics.SetApprovalsPending(pending)
		w.log.Info().Str("approval_id", id).Int("signatures", len(snapshot.Signatures)).Msg("approval granted")
	}
	w.emit(ctx, events)
	return snapshot, nil
}

func verify(payload []byte, signature, publicKey string) error {
	pub, err := solanago.PublicKeyFromBase58(publicKey)
	if err != nil {
		return fmt.Errorf("%w: public key: %v", ErrInvalidSignature, err)
	}
	sig, err := solanago.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !sig.Verify(pub, payload) {
		return fmt.Errorf("%w: does not verify for %s", ErrInvalidSignature, publicKey)
	}
	return nil
}

// Reject terminates a pending request.
func (w *Workflow) Reject(ctx context.Context, id, reason string) (*Request, error) {
	return w.terminate(ctx, id, StatusRejected, EventRejected, reason)
}

// Cancel terminates a pending request on behalf of its submitter.
func (w *Workflow) Cancel(ctx context.Context, id string) (*Request, error) {
	return w.terminate(ctx, id, StatusCancelled, EventCancelled, "")
}

func (w *Workflow) terminate(ctx context.Context, id string, status Status, kind, reason string) (*Request, error) {
	var events []domain.ApprovalEvent

	w.mu.Lock()
	e, ok := w.requests[id]
	if !ok {
		w.mu.Unlock()
		return nil, ErrNotFound
	}
	now := w.now()
	if e.req.Status == StatusPending && !now.Before(e.req.ExpiresAt) {
		events = append(events, w.expireLocked(e, now))
	}
	if e.req.Status.IsTerminal() {
		snapshot := e.req.clone()
		w.mu.Unlock()
		w.emit(ctx, events)
		return snapshot, fmt.Errorf("%w: %s", ErrAlreadyResolved, snapshot.Status)
	}

	w.resolveLocked(e, status, now, reason)
	events = append(events, w.event(e.req, kind, "", reason))
	snapshot := e.req.clone()
	pending := w.pendingLocked()
	w.mu.Unlock()

	w.cfg.Metrics.RecordApprovalFinished(string(status), false)
	w.cfg.Metrics.SetApprovalsPending(pending)
	w.emit(ctx, events)
	w.log.Info().Str("approval_id", id).Str("status", string(status)).Str("reason", reason).Msg("approval closed")
	return snapshot, nil
}

// RecordBlockhashRefresh audits that approved request id will be signed with
// a new blockhash. message is the re-encoded message; its digest goes into
// the event so the trail links both payloads.
func (w *Workflow) RecordBlockhashRefresh(ctx context.Context, id, oldHash, newHash string, message []byte) error {
	w.mu.Lock()
	e, ok := w.requests[id]
	if !ok {
		w.mu.Unlock()
		return ErrNotFound
	}
	if e.req.Status != StatusApproved {
		status := e.req.Status
		w.mu.Unlock()
		return fmt.Errorf("approval request %s is %s, not approved", id, status)
	}
	approved := sha256.Sum256(e.req.Payload)
	signed := sha256.Sum256(message)
	ev := w.event(e.req, EventBlockhashRefreshed, "", fmt.Sprintf("blockhash %s -> %s, message sha256 %s -> %s",
		oldHash, newHash, hex.EncodeToString(approved[:]), hex.EncodeToString(signed[:])))
	w.mu.Unlock()

	w.emit(ctx, []domain.ApprovalEvent{ev})
	return nil
}

// Get returns a snapshot of request id.
func (w *Workflow) Get(id string) (*Request, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.req.clone(), nil
}

// List returns requests in creation order, filtered by status when non-empty.
func (w *Workflow) List(status Status) []*Request {
	w.mu.Lock()
	out := make([]*Request, 0, len(w.requests))
	for _, e := range w.requests {
		if status == "" || e.req.Status == status {
			out = append(out, e.req.clone())
		}
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Wait blocks until request id is terminal or ctx is done. A pending
// request is expired at its deadline even when no sweep is running.
func (w *Workflow) Wait(ctx context.Context, id string) (*Request, error) {
	w.mu.Lock()
	e, ok := w.requests[id]
	if !ok {
		w.mu.Unlock()
		return nil, ErrNotFound
	}
	done, expiresAt := e.done, e.req.ExpiresAt
	w.mu.Unlock()

	for {
		wait := expiresAt.Sub(w.now())
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)

		select {
		case <-done:
			timer.Stop()
			return w.Get(id)
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			w.expire(ctx, id)
		}
	}
}

func (w *Workflow) expire(ctx context.Context, id string) {
	w.mu.Lock()
	e, ok := w.requests[id]
	if !ok || e.req.Status.IsTerminal() || w.now().Before(e.req.ExpiresAt) {
		w.mu.Unlock()
		return
	}
	ev := w.expireLocked(e, w.now())
	pending := w.pendingLocked()
	w.mu.Unlock()

	w.cfg.Metrics.SetApprovalsPending(pending)
	w.emit(ctx, []domain.ApprovalEvent{ev})
}

// Sweep expires overdue pending requests and forgets terminal requests
// older than the retention window. It returns the number expired.
func (w *Workflow) Sweep(ctx context.Context) int {
	var events []domain.ApprovalEvent

	w.mu.Lock()
	now := w.now()
	for id, e := range w.requests {
		switch {
		case e.req.Status == StatusPending && !now.Before(e.req.ExpiresAt):
			events = append(events, w.expireLocked(e, now))
		case e.req.Status.IsTerminal() && now.Sub(e.req.ResolvedAt) > w.cfg.Retention:
			delete(w.requests, id)
		}
	}
	pending := w.pendingLocked()
	w.mu.Unlock()

	w.cfg.Metrics.SetApprovalsPending(pending)
	w.emit(ctx, events)
	if len(events) > 0 {
		w.log.Info().Int("expired", len(events)).Msg("approval sweep")
	}
	return len(events)
}

// Run sweeps on an interval until ctx is done.
func (w *Workflow) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

func (w *Workflow) expireLocked(e *entry, now time.Time) domain.ApprovalEvent {
	w.resolveLocked(e, StatusExpired, now, "timeout")
	w.cfg.Metrics.RecordApprovalFinished(string(StatusExpired), false)
	w.log.Info().Str("approval_id", e.req.ID).Msg("approval expired")
	return w.event(e.req, EventExpired, "", fmt.Sprintf("%d/%d signatures", len(e.req.Signatures), e.req.Policy.RequiredSignatures))
}

func (w *Workflow) resolveLocked(e *entry, status Status, now time.Time, reason string) {
	e.req.Status = status
	e.req.ResolvedAt = now
	e.req.Reason = reason
	close(e.done)
}

func (w *Workflow) pendingLocked() int {
	n := 0
	for _, e := range w.requests {
		if e.req.Status == StatusPending {
			n++
		}
	}
	return n
}

func (w *Workflow) event(r *Request, kind, signerID, detail string) domain.ApprovalEvent {
	return domain.ApprovalEvent{
		RequestID:  r.ID,
		Kind:       kind,
		Status:     string(r.Status),
		TxType:     string(r.Type),
		SignerID:   signerID,
		Detail:     detail,
		OccurredAt: w.now(),
	}
}

func (w *Workflow) emit(ctx context.Context, events []domain.ApprovalEvent) {
	if w.cfg.Events == nil {
		return
	}
	for i := range events {
		if err := w.cfg.Events.Insert(ctx, &events[i]); err != nil {
			w.log.Warn().Err(err).Str("approval_id", events[i].RequestID).Str("event", events[i].Kind).Msg("audit event dropped")
		}
	}
}
