package pumpfun

import (
	"fmt"
	"math/big"

	"solana-trade-executor/internal/domain"
)

// Quotes use the constant-product invariant over virtual reserves.
// Intermediates are computed in big.Int; results are clamped to u64.

var bpsDenominator = big.NewInt(domain.MaxSlippageBps)

func u(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

func toU64(v *big.Int) (uint64, error) {
	if v.Sign() < 0 {
		return 0, nil
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: result overflows u64", domain.ErrInvalidInput)
	}
	return v.Uint64(), nil
}

// BuyQuote returns the tokens received for solIn lamports,
// Rt - (floor(Rs*Rt/(Rs+in)) + 1), the same rounding the program applies on
// chain. The result never exceeds the real token reserves.
func (s CurveState) BuyQuote(solIn uint64) (uint64, error) {
	if s.Complete {
		return 0, domain.ErrCurveComplete
	}
	if solIn == 0 || s.VirtualSolReserves == 0 || s.VirtualTokenReserves == 0 {
		return 0, nil
	}
	k := new(big.Int).Mul(u(s.VirtualSolReserves), u(s.VirtualTokenReserves))
	newSol := new(big.Int).Add(u(s.VirtualSolReserves), u(solIn))
	newTokens := new(big.Int).Quo(k, newSol)
	newTokens.Add(newTokens, big.NewInt(1))

	out := new(big.Int).Sub(u(s.VirtualTokenReserves), newTokens)
	tokens, err := toU64(out)
	if err != nil {
		return 0, err
	}
	if tokens > s.RealTokenReserves {
		tokens = s.RealTokenReserves
	}
	return tokens, nil
}

// SellQuote returns the lamports received for tokenIn tokens,
// floor(Rs*in/(Rt+in)), clamped to the real SOL reserves.
func (s CurveState) SellQuote(tokenIn uint64) (uint64, error) {
	if s.Complete {
		return 0, domain.ErrCurveComplete
	}
	if tokenIn == 0 || s.VirtualSolReserves == 0 {
		return 0, nil
	}
	num := new(big.Int).Mul(u(s.VirtualSolReserves), u(tokenIn))
	den := new(big.Int).Add(u(s.VirtualTokenReserves), u(tokenIn))
	out := new(big.Int).Quo(num, den)

	sol, err := toU64(out)
	if err != nil {
		return 0, err
	}
	if sol > s.RealSolReserves {
		sol = s.RealSolReserves
	}
	return sol, nil
}

// BuyCost returns the lamports needed to receive tokensOut,
// ceil(Rs*out/(Rt-out)).
func (s CurveState) BuyCost(tokensOut uint64) (uint64, error) {
	if s.Complete {
		return 0, domain.ErrCurveComplete
	}
	if tokensOut >= s.VirtualTokenReserves || tokensOut > s.RealTokenReserves {
		return 0, fmt.Errorf("%w: %d tokens exceeds curve reserves", domain.ErrInvalidInput, tokensOut)
	}
	num := new(big.Int).Mul(u(s.VirtualSolReserves), u(tokensOut))
	den := new(big.Int).Sub(u(s.VirtualTokenReserves), u(tokensOut))
	return toU64(ceilDiv(num, den))
}

// SellCost returns the tokens to sell to receive solOut lamports,
// ceil(Rt*out/(Rs-out)).
func (s CurveState) SellCost(solOut uint64) (uint64, error) {
	if s.Complete {
		return 0, domain.ErrCurveComplete
	}
	if solOut >= s.VirtualSolReserves || solOut > s.RealSolReserves {
		return 0, fmt.Errorf("%w: %d lamports exceeds curve reserves", domain.ErrInvalidInput, solOut)
	}
	num := new(big.Int).Mul(u(s.VirtualTokenReserves), u(solOut))
	den := new(big.Int).Sub(u(s.VirtualSolReserves), u(solOut))
	return toU64(ceilDiv(num, den))
}

// Price returns lamports per base token unit as a float, for display only.
func (s CurveState) Price() float64 {
	if s.VirtualTokenReserves == 0 {
		return 0
	}
	return float64(s.VirtualSolReserves) / float64(s.VirtualTokenReserves)
}

func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// MinOut applies slippage: quoted*(10000-bps)/10000, truncated.
// bps above 10000 is treated as 10000.
func MinOut(quoted uint64, bps uint16) uint64 {
	if bps > domain.MaxSlippageBps {
		bps = domain.MaxSlippageBps
	}
	v := new(big.Int).Mul(u(quoted), big.NewInt(int64(domain.MaxSlippageBps-int(bps))))
	v.Quo(v, bpsDenominator)
	return v.Uint64()
}

// MaxIn is amount*(10000+bps)/10000, truncated and saturated at u64 max.
func MaxIn(amount uint64, bps uint16) uint64 {
	v := new(big.Int).Mul(u(amount), big.NewInt(int64(domain.MaxSlippageBps+int(bps))))
	v.Quo(v, bpsDenominator)
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}
