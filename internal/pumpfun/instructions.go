package pumpfun

import (
	"encoding/binary"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

// BuyParams are the arguments of a curve buy.
type BuyParams struct {
	Mint solanago.PublicKey
	User solanago.PublicKey
	// TokenAmount is the minimum number of tokens to receive.
	TokenAmount uint64
	// MaxSolCost caps lamports spent, protocol fee included.
	MaxSolCost uint64
}

// SellParams are the arguments of a curve sell.
type SellParams struct {
	Mint        solanago.PublicKey
	User        solanago.PublicKey
	TokenAmount uint64
	// MinSolOutput is the slippage floor in lamports.
	MinSolOutput uint64
}

// BuildBuyInstruction builds the buy instruction.
func BuildBuyInstruction(p BuyParams) (solanago.Instruction, error) {
	accounts, err := tradeAccounts(p.Mint, p.User)
	if err != nil {
		return nil, err
	}
	return solanago.NewInstruction(ProgramID, accounts, encodeArgs(buyDiscriminator, p.TokenAmount, p.MaxSolCost)), nil
}

// BuildSellInstruction builds the sell instruction.
func BuildSellInstruction(p SellParams) (solanago.Instruction, error) {
	accounts, err := tradeAccounts(p.Mint, p.User)
	if err != nil {
		return nil, err
	}
	return solanago.NewInstruction(ProgramID, accounts, encodeArgs(sellDiscriminator, p.TokenAmount, p.MinSolOutput)), nil
}

// encodeArgs lays out discriminator(8) | a u64 LE | b u64 LE.
func encodeArgs(disc [8]byte, a, b uint64) []byte {
	data := make([]byte, InstructionDataLen)
	copy(data[0:8], disc[:])
	binary.LittleEndian.PutUint64(data[8:16], a)
	binary.LittleEndian.PutUint64(data[16:24], b)
	return data
}

// tradeAccounts returns the fixed account order shared by buy and sell.
func tradeAccounts(mint, user solanago.PublicKey) (solanago.AccountMetaSlice, error) {
	curve, err := DeriveBondingCurve(mint)
	if err != nil {
		return nil, err
	}
	curveATA, err := DeriveAssociatedBondingCurve(curve, mint)
	if err != nil {
		return nil, err
	}
	userATA, err := associatedTokenAddress(user, mint)
	if err != nil {
		return nil, err
	}

	return solanago.AccountMetaSlice{
		{PublicKey: GlobalAccount},
		{PublicKey: FeeRecipient, IsWritable: true},
		{PublicKey: mint},
		{PublicKey: curve, IsWritable: true},
		{PublicKey: curveATA, IsWritable: true},
		{PublicKey: userATA, IsWritable: true},
		{PublicKey: user, IsWritable: true, IsSigner: true},
		{PublicKey: SystemProgram},
		{PublicKey: TokenProgram},
		{PublicKey: RentSysvar},
		{PublicKey: EventAuthority},
		{PublicKey: ProgramID},
	}, nil
}

// SetComputeUnitPrice sets the priority fee in micro-lamports per compute unit.
func SetComputeUnitPrice(microLamports uint64) solanago.Instruction {
	data := make([]byte, 9)
	data[0] = 3
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return solanago.NewInstruction(ComputeBudgetProgram, solanago.AccountMetaSlice{}, data)
}

// SetComputeUnitLimit caps compute units for the transaction.
func SetComputeUnitLimit(units uint32) solanago.Instruction {
	data := make([]byte, 5)
	data[0] = 2
	binary.LittleEndian.PutUint32(data[1:], units)
	return solanago.NewInstruction(ComputeBudgetProgram, solanago.AccountMetaSlice{}, data)
}

// CreateAssociatedTokenAccountIdempotent creates owner's token account for
// mint if it does not exist yet, paid by payer.
func CreateAssociatedTokenAccountIdempotent(payer, owner, mint solanago.PublicKey) (solanago.Instruction, error) {
	ata, err := associatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("create ata: %w", err)
	}
	accounts := solanago.AccountMetaSlice{
		{PublicKey: payer, IsWritable: true, IsSigner: true},
		{PublicKey: ata, IsWritable: true},
		{PublicKey: owner},
		{PublicKey: mint},
		{PublicKey: SystemProgram},
		{PublicKey: TokenProgram},
	}
	return solanago.NewInstruction(AssociatedTokenProgram, accounts, []byte{1}), nil
}
