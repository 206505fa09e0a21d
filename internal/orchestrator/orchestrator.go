// Package orchestrator executes trade requests end to end.
// It coordinates: route → build → approval → sign → submit → confirm → emit
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-trade-executor/internal/aggregator"
	"solana-trade-executor/internal/approval"
	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/idhash"
	"solana-trade-executor/internal/observability"
	"solana-trade-executor/internal/pumpfun"
	"solana-trade-executor/internal/settlement"
	"solana-trade-executor/internal/signer"
	"solana-trade-executor/internal/sink"
	"solana-trade-executor/internal/solana"
)

// Router resolves venues.
type Router interface {
	Route(ctx context.Context, token string) (domain.VenueRoute, error)
	ForceAggregator(ctx context.Context, token string) (domain.VenueRoute, error)
	Invalidate(ctx context.Context, token string)
}

// CurvePlanner builds bonding-curve trades.
type CurvePlanner interface {
	PlanTrade(ctx context.Context, p pumpfun.TradeParams) (*pumpfun.Plan, error)
}

// SwapBuilder builds aggregator-routed trades.
type SwapBuilder interface {
	Quote(ctx context.Context, req aggregator.QuoteRequest) (*aggregator.Quote, error)
	SwapTransaction(ctx context.Context, quote *aggregator.Quote, user solanago.PublicKey, priorityFeeLamports uint64) (*aggregator.Swap, error)
}

// Approvals gates signing.
type Approvals interface {
	Submit(ctx context.Context, sub approval.Submission) (*approval.Request, error)
	Wait(ctx context.Context, id string) (*approval.Request, error)
	Cancel(ctx context.Context, id string) (*approval.Request, error)
	RecordBlockhashRefresh(ctx context.Context, id, oldHash, newHash string, message []byte) error
}

// Chain reads blockhashes and transactions.
type Chain interface {
	GetLatestBlockhash(ctx context.Context, commitment solana.Commitment) (*solana.LatestBlockhash, error)
	GetBlockHeight(ctx context.Context, commitment solana.Commitment) (uint64, error)
	GetTransaction(ctx context.Context, signature string, commitment solana.Commitment) (*solana.Transaction, error)
}

// Submitter sends signed transactions.
type Submitter interface {
	Submit(ctx context.Context, raw []byte) (string, int, error)
}

// Confirmer waits for a terminal confirmation outcome.
type Confirmer interface {
	Confirm(ctx context.Context, req settlement.ConfirmRequest) settlement.ConfirmationResult
}

// Default timeouts. Buys wait longer than sells.
const (
	DefaultBuyConfirmTimeout  = 90 * time.Second
	DefaultSellConfirmTimeout = 60 * time.Second
	DefaultApprovalWaitSlack  = 5 * time.Second
)

// Options for creating Orchestrator. Router, Curve, Aggregator, Approvals,
// Signer, Chain, Submitter and Confirmer are required.
type Options struct {
	Router     Router
	Curve      CurvePlanner
	Aggregator SwapBuilder
	Approvals  Approvals
	Signer     signer.Signer
	Chain      Chain
	Submitter  Submitter
	Confirmer  Confirmer
	Sink       sink.Sink

	Commitment         solana.Commitment
	BuyConfirmTimeout  time.Duration
	SellConfirmTimeout time.Duration
	// ApprovalWaitSlack is added to the policy timeout when waiting for approval.
	ApprovalWaitSlack time.Duration
	ComputeUnitLimit  uint32

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Orchestrator executes trades. Safe for concurrent use.
type Orchestrator struct {
	opts Options
	log  zerolog.Logger
	now  func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Router == nil, opts.Curve == nil, opts.Aggregator == nil, opts.Approvals == nil:
		return nil, errors.New("orchestrator: router, curve, aggregator and approvals are required")
	case opts.Signer == nil, opts.Chain == nil, opts.Submitter == nil, opts.Confirmer == nil:
		return nil, errors.New("orchestrator: signer, chain, submitter and confirmer are required")
	}
	if opts.Commitment == "" {
		opts.Commitment = solana.CommitmentConfirmed
	}
	if opts.BuyConfirmTimeout <= 0 {
		opts.BuyConfirmTimeout = DefaultBuyConfirmTimeout
	}
	if opts.SellConfirmTimeout <= 0 {
		opts.SellConfirmTimeout = DefaultSellConfirmTimeout
	}
	if opts.ApprovalWaitSlack <= 0 {
		opts.ApprovalWaitSlack = DefaultApprovalWaitSlack
	}
	if opts.ComputeUnitLimit == 0 {
		opts.ComputeUnitLimit = pumpfun.DefaultComputeUnitLimit
	}
	return &Orchestrator{
		opts: opts,
		log:  opts.Logger.With().Str("component", "orchestrator").Logger(),
		now:  time.Now,
	}, nil
}

// prepared is a built, unsigned transaction with its quote.
type prepared struct {
	tx          *solanago.Transaction
	txType      approval.TxType
	lastValid   uint64
	amountIn    uint64
	expectedOut uint64
	minOut      uint64
}

// Execute runs req to a terminal TradeResult. It never returns nil, and the
// result is emitted to the sink before returning.
func (o *Orchestrator) Execute(ctx context.Context, req domain.TradeRequest) *domain.TradeResult {
	start := o.now()
	if req.ID == "" {
		req.ID = idhash.ComputeTradeID(req)
	}
	res := &domain.TradeResult{
		TradeID:   req.ID,
		RequestID: req.ID,
		Token:     req.Token,
		Side:      req.Side,
		Status:    domain.StatusNotSubmitted,
	}
	log := o.log.With().Str("trade_id", req.ID).Str("mint", req.Token).Str("side", string(req.Side)).Logger()

	err := o.execute(ctx, req, res, log)
	return o.finish(ctx, res, err, start, log)
}

func (o *Orchestrator) execute(ctx context.Context, req domain.TradeRequest, res *domain.TradeResult, log zerolog.Logger) error {
	if err := req.Validate(); err != nil {
		return err
	}

	route, err := o.opts.Router.Route(ctx, req.Token)
	if err != nil {
		return err
	}
	if route.Kind == domain.VenueNativeAsset {
		return fmt.Errorf("%w: %s is the native asset", domain.ErrInvalidInput, req.Token)
	}
	res.Token = route.Token

	p, err := o.prepare(ctx, req, route)
	if err != nil && route.Kind == domain.VenueBondingCurve && domain.Classify(err).Retryable() {
		log.Info().Err(err).Msg("curve unavailable, re-routing through aggregator")
		o.opts.Router.Invalidate(ctx, req.Token)
		if route, err = o.opts.Router.ForceAggregator(ctx, req.Token); err != nil {
			return err
		}
		p, err = o.prepare(ctx, req, route)
	}
	res.Venue, res.Graduated = route.Kind, route.Graduated
	if err != nil {
		return err
	}
	res.AmountIn, res.ExpectedOut, res.MinOut = p.amountIn, p.expectedOut, p.minOut

	log = log.With().Str("venue", route.Kind.String()).Logger()

	if err := o.approve(ctx, req, p, res, log); err != nil {
		return err
	}
	if err := o.refreshBlockhash(ctx, p, res.ApprovalID, log); err != nil {
		return err
	}

	if err := o.opts.Signer.SignTransaction(ctx, p.tx); err != nil {
		if !errors.Is(err, domain.ErrSigningFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
		}
		return err
	}
	raw, err := p.tx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}

	sig, attempts, err := o.opts.Submitter.Submit(ctx, raw)
	res.Attempts = attempts
	if err != nil {
		return err
	}
	res.Signature = sig
	log = log.With().Str("signature", sig).Logger()
	log.Info().Int("attempts", attempts).Msg("transaction submitted")

	timeout := o.opts.SellConfirmTimeout
	if req.Side == domain.SideBuy {
		timeout = o.opts.BuyConfirmTimeout
	}
	cr := o.opts.Confirmer.Confirm(ctx, settlement.ConfirmRequest{
		Signature:            sig,
		Blockhash:            p.tx.Message.RecentBlockhash.String(),
		LastValidBlockHeight: p.lastValid,
		Commitment:           o.opts.Commitment,
		Timeout:              timeout,
	})
	res.Status = string(cr.Status)

	switch cr.Status {
	case settlement.StatusFailed:
		return fmt.Errorf("%w: %s", domain.ErrTransactionFailed, cr.Err())
	case settlement.StatusTimeout:
		if cr.BlockhashExpired {
			return fmt.Errorf("%w: blockhash expired after %s", domain.ErrConfirmationTimeout, cr.Elapsed)
		}
		return fmt.Errorf("%w: no outcome after %s", domain.ErrConfirmationTimeout, cr.Elapsed)
	}

	res.Success = true
	o.readRealized(ctx, req.Side, sig, res, log)
	return nil
}

// prepare quotes and builds the unsigned transaction on route's venue.
func (o *Orchestrator) prepare(ctx context.Context, req domain.TradeRequest, route domain.VenueRoute) (*prepared, error) {
	mint, err := solanago.PublicKeyFromBase58(route.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidTokenIdentifier, err)
	}
	decimals := uint8(9)
	if req.Unit == domain.UnitToken {
		decimals = route.Decimals
	}
	amount, err := domain.ToBaseUnits(req.Amount, decimals)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: %s %s is below one base unit", domain.ErrInvalidInput, req.Amount, req.Unit)
	}

	switch route.Kind {
	case domain.VenueBondingCurve:
		return o.prepareCurve(ctx, req, mint, amount)
	case domain.VenueAggregator:
		return o.prepareSwap(ctx, req, mint, amount)
	default:
		return nil, fmt.Errorf("%w: %s has no tradable venue", domain.ErrNotFound, route.Token)
	}
}

func (o *Orchestrator) prepareCurve(ctx context.Context, req domain.TradeRequest, mint solanago.PublicKey, amount uint64) (*prepared, error) {
	plan, err := o.opts.Curve.PlanTrade(ctx, pumpfun.TradeParams{
		Mint:                     mint,
		User:                     o.opts.Signer.PublicKey(),
		Side:                     req.Side,
		Unit:                     req.Unit,
		Amount:                   amount,
		SlippageBps:              req.SlippageBps,
		PriorityFeeMicroLamports: req.PriorityFeeMicroLamports,
		ComputeUnitLimit:         o.opts.ComputeUnitLimit,
	})
	if err != nil {
		return nil, err
	}

	bh, err := o.opts.Chain.GetLatestBlockhash(ctx, o.opts.Commitment)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}
	hash, err := solanago.HashFromBase58(bh.Blockhash)
	if err != nil {
		return nil, fmt.Errorf("parse blockhash: %w", err)
	}
	tx, err := solanago.NewTransaction(plan.Instructions, hash, solanago.TransactionPayer(o.opts.Signer.PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	txType := approval.TxBuy
	if req.Side == domain.SideSell {
		txType = approval.TxSell
	}
	return &prepared{
		tx:          tx,
		txType:      txType,
		lastValid:   bh.LastValidBlockHeight,
		amountIn:    plan.AmountIn,
		expectedOut: plan.ExpectedOut,
		minOut:      plan.MinOut,
	}, nil
}

func (o *Orchestrator) prepareSwap(ctx context.Context, req domain.TradeRequest, mint solanago.PublicKey, amount uint64) (*prepared, error) {
	qr := aggregator.QuoteRequest{Amount: amount, SlippageBps: req.SlippageBps}
	switch {
	case req.Side == domain.SideBuy && req.Unit == domain.UnitSOL:
		qr.InputMint, qr.OutputMint = solana.WrappedSOLMint, mint.String()
	case req.Side == domain.SideSell && req.Unit == domain.UnitToken:
		qr.InputMint, qr.OutputMint = mint.String(), solana.WrappedSOLMint
	default:
		return nil, fmt.Errorf("%w: aggregator trades are exact-in; %s must be denominated in the input asset", domain.ErrInvalidInput, req.Side)
	}

	quote, err := o.opts.Aggregator.Quote(ctx, qr)
	if err != nil {
		return nil, err
	}
	out, err := quote.Out()
	if err != nil {
		return nil, fmt.Errorf("parse quote out amount: %w", err)
	}
	minOut, err := quote.MinOut()
	if err != nil {
		return nil, fmt.Errorf("parse quote threshold: %w", err)
	}

	fee := priorityFeeLamports(req.PriorityFeeMicroLamports, o.opts.ComputeUnitLimit)
	swap, err := o.opts.Aggregator.SwapTransaction(ctx, quote, o.opts.Signer.PublicKey(), fee)
	if err != nil {
		return nil, err
	}
	return &prepared{
		tx:          swap.Tx,
		txType:      approval.TxSwap,
		lastValid:   swap.LastValidBlockHeight,
		amountIn:    amount,
		expectedOut: out,
		minOut:      minOut,
	}, nil
}

// approve submits the transaction message for approval and waits for a
// terminal decision.
func (o *Orchestrator) approve(ctx context.Context, req domain.TradeRequest, p *prepared, res *domain.TradeResult, log zerolog.Logger) error {
	payload, err := p.tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	ar, err := o.opts.Approvals.Submit(ctx, approval.Submission{
		Type:    p.txType,
		Amount:  solValue(req.Side, p),
		Token:   res.Token,
		TradeID: req.ID,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	res.ApprovalID = ar.ID

	if !ar.Status.IsTerminal() {
		log.Info().Str("approval_id", ar.ID).Str("risk", string(ar.Risk.Level)).Msg("waiting for approval")

		waitCtx, cancel := context.WithTimeout(ctx, ar.ExpiresAt.Sub(o.now())+o.opts.ApprovalWaitSlack)
		defer cancel()
		ar, err = o.opts.Approvals.Wait(waitCtx, res.ApprovalID)
		if err != nil {
			if _, cerr := o.opts.Approvals.Cancel(context.WithoutCancel(ctx), res.ApprovalID); cerr != nil {
				log.Debug().Err(cerr).Str("approval_id", res.ApprovalID).Msg("cancel after abandoned wait")
			}
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				// undecided past expiry plus slack
				return fmt.Errorf("wait for approval: %w", domain.ErrApprovalExpired)
			}
			return fmt.Errorf("wait for approval: %w", err)
		}
	}
	res.AutoApproved = ar.AutoApproved
	return ar.Err()
}

// refreshBlockhash swaps in a fresh blockhash when approval outlived the
// original one. Only the blockhash changes, and the approval trail records
// the new message.
func (o *Orchestrator) refreshBlockhash(ctx context.Context, p *prepared, approvalID string, log zerolog.Logger) error {
	if p.lastValid == 0 {
		return nil
	}
	height, err := o.opts.Chain.GetBlockHeight(ctx, o.opts.Commitment)
	if err != nil {
		return fmt.Errorf("get block height: %w", err)
	}
	if height <= p.lastValid {
		return nil
	}

	bh, err := o.opts.Chain.GetLatestBlockhash(ctx, o.opts.Commitment)
	if err != nil {
		return fmt.Errorf("get latest blockhash: %w", err)
	}
	hash, err := solanago.HashFromBase58(bh.Blockhash)
	if err != nil {
		return fmt.Errorf("parse blockhash: %w", err)
	}
	old := p.tx.Message.RecentBlockhash.String()
	p.tx.Message.RecentBlockhash = hash
	p.tx.Signatures = nil
	p.lastValid = bh.LastValidBlockHeight

	message, err := p.tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	log.Info().
		Str("approval_id", approvalID).
		Uint64("block_height", height).
		Str("old_blockhash", old).
		Str("blockhash", bh.Blockhash).
		Msg("blockhash expired during approval, refreshed")
	if err := o.opts.Approvals.RecordBlockhashRefresh(ctx, approvalID, old, bh.Blockhash, message); err != nil {
		log.Warn().Err(err).Str("approval_id", approvalID).Msg("blockhash refresh not audited")
	}
	return nil
}

func (o *Orchestrator) readRealized(ctx context.Context, side domain.Side, sig string, res *domain.TradeResult, log zerolog.Logger) {
	r, err := settlement.ReadRealized(ctx, o.opts.Chain, sig, o.opts.Signer.PublicKey().String(), res.Token)
	if err != nil {
		log.Warn().Err(err).Msg("realized amounts unavailable")
		return
	}
	if side == domain.SideBuy {
		res.RealizedIn, res.RealizedOut = -r.SOLDelta, r.TokenDelta
	} else {
		res.RealizedIn, res.RealizedOut = -r.TokenDelta, r.SOLDelta
	}
}

func (o *Orchestrator) finish(ctx context.Context, res *domain.TradeResult, err error, start time.Time, log zerolog.Logger) *domain.TradeResult {
	res.Elapsed = o.now().Sub(start)
	res.CompletedAt = o.now().UTC()
	if err != nil {
		res.Success = false
		res.ErrorCode = domain.Classify(err)
		res.Error = err.Error()
		log.Warn().
			Err(err).
			Str("error_code", string(res.ErrorCode)).
			Str("approval_id", res.ApprovalID).
			Str("signature", res.Signature).
			Msg("trade failed")
	} else {
		log.Info().
			Str("approval_id", res.ApprovalID).
			Uint64("amount_in", res.AmountIn).
			Uint64("min_out", res.MinOut).
			Int64("realized_out", res.RealizedOut).
			Dur("elapsed", res.Elapsed).
			Msg("trade confirmed")
	}

	o.opts.Metrics.RecordTrade(res.Venue.String(), string(res.Side), string(res.ErrorCode), res.Elapsed)

	if o.opts.Sink != nil {
		if serr := o.opts.Sink.Emit(context.WithoutCancel(ctx), res); serr != nil {
			log.Error().Err(serr).Msg("failed to emit trade result")
		}
	}
	return res
}

// solValue is the SOL size of a trade for approval policy purposes.
func solValue(side domain.Side, p *prepared) decimal.Decimal {
	lamports := p.amountIn
	if side == domain.SideSell {
		lamports = p.expectedOut
	}
	return domain.FromBaseUnits(lamports, 9)
}

// priorityFeeLamports converts a per-compute-unit price to a total fee,
// saturating at the largest uint64.
func priorityFeeLamports(microLamportsPerCU uint64, limit uint32) uint64 {
	fee := new(big.Int).Mul(new(big.Int).SetUint64(microLamportsPerCU), new(big.Int).SetUint64(uint64(limit)))
	fee.Quo(fee, big.NewInt(1_000_000))
	if !fee.IsUint64() {
		return ^uint64(0)
	}
	return fee.Uint64()
}
