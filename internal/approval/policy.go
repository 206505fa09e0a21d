// Package approval gates transaction signing behind per-type policies:
// signature thresholds, auto-approval ceilings and expiry.
package approval

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"solana-trade-executor/internal/domain"
)

// TxType selects the policy for a request.
type TxType string

const (
	TxBuy      TxType = "buy"
	TxSell     TxType = "sell"
	TxTransfer TxType = "transfer"
	TxSwap     TxType = "swap"
)

// ParseTxType parses a transaction type name.
func ParseTxType(s string) (TxType, error) {
	switch t := TxType(strings.ToLower(strings.TrimSpace(s))); t {
	case TxBuy, TxSell, TxTransfer, TxSwap:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidInput, s)
}

// Policy governs how a request of one type is approved. Amounts are in SOL.
type Policy struct {
	RequiredSignatures int           `yaml:"required_signatures" json:"required_signatures"`
	Timeout            time.Duration `yaml:"timeout" json:"timeout"`
	// AutoApproveBelow is a strict ceiling. Zero disables auto-approval.
	AutoApproveBelow decimal.Decimal `yaml:"auto_approve_below" json:"auto_approve_below"`
	// ThresholdAmount, when positive, forces manual review with one extra
	// signature for amounts above it.
	ThresholdAmount     decimal.Decimal `yaml:"threshold_amount" json:"threshold_amount"`
	RequireManualReview bool            `yaml:"require_manual_review" json:"require_manual_review"`
	// AuthorizedSigners lists base58 public keys allowed to sign. Empty
	// allows any key.
	AuthorizedSigners []string `yaml:"authorized_signers" json:"authorized_signers,omitempty"`
}

// Validate checks the policy is usable.
func (p Policy) Validate() error {
	if p.RequiredSignatures < 1 {
		return fmt.Errorf("%w: required signatures must be at least 1", domain.ErrInvalidInput)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", domain.ErrInvalidInput)
	}
	if p.AutoApproveBelow.IsNegative() || p.ThresholdAmount.IsNegative() {
		return fmt.Errorf("%w: negative amount", domain.ErrInvalidInput)
	}
	return nil
}

// DefaultPolicies returns the built-in policy set.
func DefaultPolicies() map[TxType]Policy {
	return map[TxType]Policy{
		TxBuy: {
			RequiredSignatures: 1,
			Timeout:            5 * time.Minute,
			AutoApproveBelow:   decimal.RequireFromString("0.5"),
			ThresholdAmount:    decimal.NewFromInt(10),
		},
		TxSell: {
			RequiredSignatures: 1,
			Timeout:            5 * time.Minute,
			AutoApproveBelow:   decimal.NewFromInt(1),
		},
		TxSwap: {
			RequiredSignatures: 1,
			Timeout:            5 * time.Minute,
			AutoApproveBelow:   decimal.RequireFromString("0.5"),
		},
		TxTransfer: {
			RequiredSignatures: 2,
			Timeout:            10 * time.Minute,
			AutoApproveBelow:   decimal.Zero,
		},
	}
}

// effective applies the threshold escalation for amount.
func (p Policy) effective(amount decimal.Decimal) Policy {
	out := p
	out.AuthorizedSigners = append([]string(nil), p.AuthorizedSigners...)
	if p.ThresholdAmount.IsPositive() && amount.GreaterThan(p.ThresholdAmount) {
		out.RequireManualReview = true
		out.RequiredSignatures++
	}
	return out
}

func (p Policy) authorized(publicKey string) bool {
	if len(p.AuthorizedSigners) == 0 {
		return true
	}
	for _, k := range p.AuthorizedSigners {
		if k == publicKey {
			return true
		}
	}
	return false
}
