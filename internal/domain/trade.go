package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade relative to the token.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// IsValid reports whether the side is a known value.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// QuantityUnit tells how TradeRequest.Amount is denominated.
type QuantityUnit string

const (
	UnitSOL   QuantityUnit = "sol"
	UnitToken QuantityUnit = "token"
)

// IsValid reports whether the unit is a known value.
func (u QuantityUnit) IsValid() bool {
	return u == UnitSOL || u == UnitToken
}

// MaxSlippageBps is 100% expressed in basis points.
const MaxSlippageBps = 10000

// LamportsPerSOL is the number of base units in one SOL.
const LamportsPerSOL = 1_000_000_000

// TradeRequest is an instruction to buy or sell a token.
// Immutable once handed to the executor.
type TradeRequest struct {
	ID                       string          `json:"id"`
	Token                    string          `json:"token"` // mint address or symbol alias
	Side                     Side            `json:"side"`
	Amount                   decimal.Decimal `json:"amount"` // human units (SOL or whole tokens)
	Unit                     QuantityUnit    `json:"unit"`
	SlippageBps              uint16          `json:"slippage_bps"`
	PriorityFeeMicroLamports uint64          `json:"priority_fee_micro_lamports,omitempty"`
	RequestedAt              time.Time       `json:"requested_at"`
}

// Validate checks the request fields. Returned errors wrap ErrInvalidInput.
func (r TradeRequest) Validate() error {
	if strings.TrimSpace(r.Token) == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidInput)
	}
	if !r.Side.IsValid() {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidInput, r.Side)
	}
	if !r.Unit.IsValid() {
		return fmt.Errorf("%w: unknown unit %q", ErrInvalidInput, r.Unit)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if r.SlippageBps > MaxSlippageBps {
		return fmt.Errorf("%w: slippage %d bps exceeds %d", ErrInvalidInput, r.SlippageBps, MaxSlippageBps)
	}
	return nil
}

// ToBaseUnits converts a human amount into integer base units with the given decimals.
// Fractions below one base unit are truncated.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	scaled := amount.Shift(int32(decimals)).Truncate(0)
	if scaled.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount", ErrInvalidInput)
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("%w: amount %s overflows u64", ErrInvalidInput, amount)
	}
	return bi.Uint64(), nil
}

// FromBaseUnits converts integer base units to a human amount.
func FromBaseUnits(units uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromUint64(units).Shift(-int32(decimals))
}
