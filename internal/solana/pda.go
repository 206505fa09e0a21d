package solana

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program addresses.
const (
	SystemProgramID          = "11111111111111111111111111111111"
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	ComputeBudgetProgramID   = "ComputeBudget111111111111111111111111111111"
	SysvarRentID             = "SysvarRent111111111111111111111111111111111"
	WrappedSOLMint           = "So11111111111111111111111111111111111111112"
)

const pdaMarker = "ProgramDerivedAddress"

// ErrNoViableBump is returned when every bump seed lands on the curve.
var ErrNoViableBump = errors.New("no viable bump seed")

// ParsePublicKey decodes a base58 address into its 32 raw bytes.
func ParsePublicKey(s string) ([32]byte, error) {
	var key [32]byte
	b, err := base58.Decode(s)
	if err != nil {
		return key, fmt.Errorf("decode base58: %w", err)
	}
	if len(b) != 32 {
		return key, fmt.Errorf("invalid key length %d", len(b))
	}
	copy(key[:], b)
	return key, nil
}

// MustPublicKey is ParsePublicKey for compile-time constants.
func MustPublicKey(s string) [32]byte {
	key, err := ParsePublicKey(s)
	if err != nil {
		panic(fmt.Sprintf("invalid public key %q: %v", s, err))
	}
	return key
}

// EncodePublicKey renders raw key bytes as base58.
func EncodePublicKey(key [32]byte) string {
	return base58.Encode(key[:])
}

// FindProgramAddress derives a program-derived address.
// The first bump from 255 downward whose hash is off the ed25519 curve wins.
func FindProgramAddress(seeds [][]byte, programID [32]byte) ([32]byte, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(programID[:])
		h.Write([]byte(pdaMarker))

		var out [32]byte
		copy(out[:], h.Sum(nil))
		if !isOnCurve(out[:]) {
			return out, uint8(bump), nil
		}
	}
	return [32]byte{}, 0, ErrNoViableBump
}

// FindAssociatedTokenAddress derives the associated token account of owner for mint.
func FindAssociatedTokenAddress(owner, mint, tokenProgram [32]byte) ([32]byte, error) {
	addr, _, err := FindProgramAddress(
		[][]byte{owner[:], tokenProgram[:], mint[:]},
		MustPublicKey(AssociatedTokenProgramID),
	)
	return addr, err
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// Mint holds the SPL mint fields the executor needs.
type Mint struct {
	Supply   uint64
	Decimals uint8
}

// ParseMint decodes base64 SPL Token mint account data.
//
// Layout (82 bytes): mintAuthority Option<Pubkey> (36), supply u64 (8),
// decimals u8 (1), isInitialized bool (1), freezeAuthority Option<Pubkey> (36).
func ParseMint(data string) (*Mint, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode mint data: %w", err)
	}
	if len(decoded) < 82 {
		return nil, fmt.Errorf("mint data too short: %d", len(decoded))
	}
	return &Mint{
		Supply:   binary.LittleEndian.Uint64(decoded[36:44]),
		Decimals: decoded[44],
	}, nil
}
