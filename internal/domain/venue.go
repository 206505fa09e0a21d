package domain

import "time"

// VenueKind classifies where a token trades.
type VenueKind int

const (
	VenueUnresolved VenueKind = iota
	VenueBondingCurve
	VenueAggregator
	VenueNativeAsset
)

func (k VenueKind) String() string {
	switch k {
	case VenueBondingCurve:
		return "bonding_curve"
	case VenueAggregator:
		return "aggregator"
	case VenueNativeAsset:
		return "native_asset"
	default:
		return "unresolved"
	}
}

// MarshalText encodes the kind by name.
func (k VenueKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name; unknown names become VenueUnresolved.
func (k *VenueKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "bonding_curve":
		*k = VenueBondingCurve
	case "aggregator":
		*k = VenueAggregator
	case "native_asset":
		*k = VenueNativeAsset
	default:
		*k = VenueUnresolved
	}
	return nil
}

// VenueRoute is the router's decision for one token.
type VenueRoute struct {
	Token         string    `json:"token"` // canonical mint address, or the alias for native
	Kind          VenueKind `json:"kind"`
	Graduated     bool      `json:"graduated"`
	Decimals      uint8     `json:"decimals"`
	CurveAddress  string    `json:"curve_address,omitempty"`
	Justification string    `json:"justification"`
	ResolvedAt    time.Time `json:"resolved_at"`
}
