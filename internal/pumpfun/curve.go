package pumpfun

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"solana-trade-executor/internal/solana"
)

// CurveState is the decoded bonding curve account.
type CurveState struct {
	VirtualTokenReserves uint64 `json:"virtual_token_reserves"`
	VirtualSolReserves   uint64 `json:"virtual_sol_reserves"`
	RealTokenReserves    uint64 `json:"real_token_reserves"`
	RealSolReserves      uint64 `json:"real_sol_reserves"`
	TokenTotalSupply     uint64 `json:"token_total_supply"`
	Complete             bool   `json:"complete"`
}

// curveAccountLen is discriminator(8) + 5*u64 + bool.
const curveAccountLen = 8 + 5*8 + 1

// DecodeCurveState decodes raw curve account bytes.
func DecodeCurveState(data []byte) (*CurveState, error) {
	if len(data) < curveAccountLen {
		return nil, fmt.Errorf("curve account too short: %d bytes", len(data))
	}
	return &CurveState{
		VirtualTokenReserves: binary.LittleEndian.Uint64(data[8:16]),
		VirtualSolReserves:   binary.LittleEndian.Uint64(data[16:24]),
		RealTokenReserves:    binary.LittleEndian.Uint64(data[24:32]),
		RealSolReserves:      binary.LittleEndian.Uint64(data[32:40]),
		TokenTotalSupply:     binary.LittleEndian.Uint64(data[40:48]),
		Complete:             data[48] != 0,
	}, nil
}

// DecodeCurveStateBase64 decodes the base64 data field of getAccountInfo.
func DecodeCurveStateBase64(data string) (*CurveState, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode curve data: %w", err)
	}
	return DecodeCurveState(raw)
}

// Encode renders the state in account layout. The discriminator is left zero.
func (s CurveState) Encode() []byte {
	out := make([]byte, curveAccountLen)
	binary.LittleEndian.PutUint64(out[8:16], s.VirtualTokenReserves)
	binary.LittleEndian.PutUint64(out[16:24], s.VirtualSolReserves)
	binary.LittleEndian.PutUint64(out[24:32], s.RealTokenReserves)
	binary.LittleEndian.PutUint64(out[32:40], s.RealSolReserves)
	binary.LittleEndian.PutUint64(out[40:48], s.TokenTotalSupply)
	if s.Complete {
		out[48] = 1
	}
	return out
}

// DeriveBondingCurve returns the curve account for mint.
func DeriveBondingCurve(mint solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(BondingCurveSeed), mint[:]}, ProgramID)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("derive bonding curve: %w", err)
	}
	return solanago.PublicKey(addr), nil
}

// DeriveAssociatedBondingCurve returns the curve's token account for mint.
func DeriveAssociatedBondingCurve(curve, mint solanago.PublicKey) (solanago.PublicKey, error) {
	return associatedTokenAddress(curve, mint)
}

func associatedTokenAddress(owner, mint solanago.PublicKey) (solanago.PublicKey, error) {
	addr, err := solana.FindAssociatedTokenAddress(owner, mint, TokenProgram)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("derive associated token account: %w", err)
	}
	return solanago.PublicKey(addr), nil
}
