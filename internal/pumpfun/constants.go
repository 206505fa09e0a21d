// Package pumpfun quotes and builds trades against pump.fun bonding curves.
package pumpfun

import (
	solanago "github.com/gagliardetto/solana-go"

	"solana-trade-executor/internal/solana"
)

// Program and account addresses.
var (
	ProgramID      = solanago.PublicKey(solana.MustPublicKey("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"))
	GlobalAccount  = solanago.PublicKey(solana.MustPublicKey("4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf"))
	FeeRecipient   = solanago.PublicKey(solana.MustPublicKey("CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM"))
	EventAuthority = solanago.PublicKey(solana.MustPublicKey("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1"))

	SystemProgram          = solanago.PublicKey(solana.MustPublicKey(solana.SystemProgramID))
	TokenProgram           = solanago.PublicKey(solana.MustPublicKey(solana.TokenProgramID))
	AssociatedTokenProgram = solanago.PublicKey(solana.MustPublicKey(solana.AssociatedTokenProgramID))
	ComputeBudgetProgram   = solanago.PublicKey(solana.MustPublicKey(solana.ComputeBudgetProgramID))
	RentSysvar             = solanago.PublicKey(solana.MustPublicKey(solana.SysvarRentID))
)

// Anchor instruction discriminators: sha256("global:<name>")[:8].
var (
	buyDiscriminator  = [8]byte{0x66, 0x06, 0x3d, 0x12, 0x01, 0xda, 0xeb, 0xea}
	sellDiscriminator = [8]byte{0x33, 0xe6, 0x85, 0xa4, 0x01, 0x7f, 0x83, 0xad}
)

const (
	// BondingCurveSeed prefixes the curve account derivation.
	BondingCurveSeed = "bonding-curve"

	// FeeBps is the protocol fee charged on top of the SOL cost of a buy.
	FeeBps = 100

	// InstructionDataLen is discriminator + two u64 arguments.
	InstructionDataLen = 24

	// DefaultComputeUnitLimit covers ATA creation plus a curve trade.
	DefaultComputeUnitLimit = 120_000
)
