package pumpfun

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/solana"
)

// AccountReader fetches raw accounts.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error)
}

// Engine reads curve state from chain and turns trade intents into
// instructions. Curve state is fetched on every call and never cached.
type Engine struct {
	accounts AccountReader
	log      zerolog.Logger
}

// NewEngine creates an engine.
func NewEngine(accounts AccountReader, log zerolog.Logger) *Engine {
	return &Engine{
		accounts: accounts,
		log:      log.With().Str("component", "pumpfun").Logger(),
	}
}

// GetCurveState fetches and decodes the curve of mint. A missing account, or
// one not owned by the curve program, is domain.ErrNotFound.
func (e *Engine) GetCurveState(ctx context.Context, mint solanago.PublicKey) (*CurveState, solanago.PublicKey, error) {
	curve, err := DeriveBondingCurve(mint)
	if err != nil {
		return nil, solanago.PublicKey{}, err
	}

	info, err := e.accounts.GetAccountInfo(ctx, curve.String())
	if err != nil {
		return nil, curve, fmt.Errorf("get curve account: %w", err)
	}
	if info == nil {
		return nil, curve, fmt.Errorf("curve %s: %w", curve, domain.ErrNotFound)
	}
	if info.Owner != ProgramID.String() {
		return nil, curve, fmt.Errorf("curve %s owned by %s: %w", curve, info.Owner, domain.ErrNotFound)
	}

	state, err := DecodeCurveStateBase64(info.Data)
	if err != nil {
		return nil, curve, err
	}
	return state, curve, nil
}

// TradeParams describe one curve trade. Amount is in base units of Unit:
// lamports for UnitSOL, token base units for UnitToken.
type TradeParams struct {
	Mint   solanago.PublicKey
	User   solanago.PublicKey
	Side   domain.Side
	Unit   domain.QuantityUnit
	Amount uint64

	SlippageBps              uint16
	PriorityFeeMicroLamports uint64
	ComputeUnitLimit         uint32
}

// Plan is a quoted, ready-to-sign curve trade.
type Plan struct {
	Instructions []solanago.Instruction
	Curve        solanago.PublicKey
	State        CurveState
	// AmountIn is lamports for buys, tokens for sells.
	AmountIn    uint64
	ExpectedOut uint64
	MinOut      uint64
}

// PlanTrade fetches fresh curve state, quotes the trade and builds its
// instructions: compute budget, idempotent token account creation for buys,
// then the curve instruction.
func (e *Engine) PlanTrade(ctx context.Context, p TradeParams) (*Plan, error) {
	if p.Amount == 0 {
		return nil, fmt.Errorf("%w: zero amount", domain.ErrInvalidInput)
	}

	state, curve, err := e.GetCurveState(ctx, p.Mint)
	if err != nil {
		return nil, err
	}
	if state.Complete {
		return nil, fmt.Errorf("curve %s: %w", curve, domain.ErrCurveComplete)
	}

	plan := &Plan{Curve: curve, State: *state}

	limit := p.ComputeUnitLimit
	if limit == 0 {
		limit = DefaultComputeUnitLimit
	}
	plan.Instructions = append(plan.Instructions, SetComputeUnitLimit(limit))
	if p.PriorityFeeMicroLamports > 0 {
		plan.Instructions = append(plan.Instructions, SetComputeUnitPrice(p.PriorityFeeMicroLamports))
	}

	switch p.Side {
	case domain.SideBuy:
		solIn := p.Amount
		if p.Unit == domain.UnitToken {
			if solIn, err = state.BuyCost(p.Amount); err != nil {
				return nil, err
			}
		}
		out, err := state.BuyQuote(solIn)
		if err != nil {
			return nil, err
		}
		if out == 0 {
			return nil, fmt.Errorf("%w: %d lamports buys zero tokens", domain.ErrInvalidInput, solIn)
		}
		plan.AmountIn, plan.ExpectedOut, plan.MinOut = solIn, out, MinOut(out, p.SlippageBps)

		ata, err := CreateAssociatedTokenAccountIdempotent(p.User, p.User, p.Mint)
		if err != nil {
			return nil, err
		}
		buy, err := BuildBuyInstruction(BuyParams{
			Mint:        p.Mint,
			User:        p.User,
			TokenAmount: plan.MinOut,
			MaxSolCost:  MaxIn(solIn, FeeBps),
		})
		if err != nil {
			return nil, err
		}
		plan.Instructions = append(plan.Instructions, ata, buy)

	case domain.SideSell:
		tokenIn := p.Amount
		if p.Unit == domain.UnitSOL {
			if tokenIn, err = state.SellCost(p.Amount); err != nil {
				return nil, err
			}
		}
		out, err := state.SellQuote(tokenIn)
		if err != nil {
			return nil, err
		}
		if out == 0 {
			return nil, fmt.Errorf("%w: %d tokens sells for zero lamports", domain.ErrInvalidInput, tokenIn)
		}
		plan.AmountIn, plan.ExpectedOut, plan.MinOut = tokenIn, out, MinOut(out, p.SlippageBps)

		sell, err := BuildSellInstruction(SellParams{
			Mint:         p.Mint,
			User:         p.User,
			TokenAmount:  tokenIn,
			MinSolOutput: plan.MinOut,
		})
		if err != nil {
			return nil, err
		}
		plan.Instructions = append(plan.Instructions, sell)

	default:
		return nil, fmt.Errorf("%w: unknown side %q", domain.ErrInvalidInput, p.Side)
	}

	e.log.Debug().
		Str("mint", p.Mint.String()).
		Str("side", string(p.Side)).
		Uint64("amount_in", plan.AmountIn).
		Uint64("expected_out", plan.ExpectedOut).
		Uint64("min_out", plan.MinOut).
		Msg("curve trade planned")

	return plan, nil
}

// Quote is a read-only price check against fresh curve state.
type Quote struct {
	Curve       solanago.PublicKey `json:"curve"`
	State       CurveState         `json:"state"`
	AmountIn    uint64             `json:"amount_in"`
	ExpectedOut uint64             `json:"expected_out"`
	MinOut      uint64             `json:"min_out"`
}

// QuoteBuy quotes spending solIn lamports on mint.
func (e *Engine) QuoteBuy(ctx context.Context, mint solanago.PublicKey, solIn uint64, slippageBps uint16) (*Quote, error) {
	return e.quote(ctx, mint, solIn, slippageBps, CurveState.BuyQuote)
}

// QuoteSell quotes selling tokenIn base units of mint.
func (e *Engine) QuoteSell(ctx context.Context, mint solanago.PublicKey, tokenIn uint64, slippageBps uint16) (*Quote, error) {
	return e.quote(ctx, mint, tokenIn, slippageBps, CurveState.SellQuote)
}

func (e *Engine) quote(ctx context.Context, mint solanago.PublicKey, in uint64, bps uint16, f func(CurveState, uint64) (uint64, error)) (*Quote, error) {
	state, curve, err := e.GetCurveState(ctx, mint)
	if err != nil {
		return nil, err
	}
	out, err := f(*state, in)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Curve:       curve,
		State:       *state,
		AmountIn:    in,
		ExpectedOut: out,
		MinOut:      MinOut(out, bps),
	}, nil
}
