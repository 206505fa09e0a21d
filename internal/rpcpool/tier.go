package rpcpool

import (
	"fmt"
	"strings"
)

// Tier ranks endpoints; lower values are preferred.
type Tier int

const (
	TierPremium Tier = iota
	TierSecondary
	TierFallback
)

func (t Tier) String() string {
	switch t {
	case TierPremium:
		return "premium"
	case TierSecondary:
		return "secondary"
	case TierFallback:
		return "fallback"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier parses a tier name.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "premium":
		return TierPremium, nil
	case "secondary":
		return TierSecondary, nil
	case "fallback", "":
		return TierFallback, nil
	default:
		return 0, fmt.Errorf("unknown endpoint tier %q", s)
	}
}
