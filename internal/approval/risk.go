package approval

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel grades a request.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Risk is the assessed level with the factors that raised it.
type Risk struct {
	Level   RiskLevel `json:"level"`
	Factors []string  `json:"factors,omitempty"`
}

// DefaultRiskThreshold grades amounts for policies without a threshold.
var DefaultRiskThreshold = decimal.NewFromInt(10)

// Off-hours window in UTC, [22:00, 06:00).
const (
	offHoursStart = 22
	offHoursEnd   = 6
)

func (l RiskLevel) raise() RiskLevel {
	switch l {
	case RiskLow:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// AssessRisk grades a request by amount, type and time of day.
func AssessRisk(txType TxType, amount decimal.Decimal, policy Policy, at time.Time) Risk {
	threshold := policy.ThresholdAmount
	if !threshold.IsPositive() {
		threshold = DefaultRiskThreshold
	}

	r := Risk{Level: RiskLow}
	switch {
	case amount.GreaterThanOrEqual(threshold):
		r.Level = RiskHigh
		r.Factors = append(r.Factors, "amount at or above threshold "+threshold.String())
	case amount.GreaterThanOrEqual(threshold.Div(decimal.NewFromInt(2))):
		r.Level = RiskMedium
		r.Factors = append(r.Factors, "amount at or above half threshold")
	}

	if txType == TxTransfer {
		r.Level = r.Level.raise()
		r.Factors = append(r.Factors, "transfer leaves the wallet")
	}

	if h := at.UTC().Hour(); h >= offHoursStart || h < offHoursEnd {
		r.Level = r.Level.raise()
		r.Factors = append(r.Factors, "off-hours submission")
	}
	return r
}
