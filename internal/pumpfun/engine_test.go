package pumpfun

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/solana/stub"
)

var (
	testMint = solanago.MustPublicKeyFromBase58("7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr")
	testUser = solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
)

func liveCurve() CurveState {
	return CurveState{
		VirtualTokenReserves: 1_073_000_000_000_000,
		VirtualSolReserves:   30_000_000_000,
		RealTokenReserves:    793_100_000_000_000,
		RealSolReserves:      2_000_000_000,
		TokenTotalSupply:     1_000_000_000_000_000,
	}
}

func newTestEngine(t *testing.T, state *CurveState) (*Engine, *stub.RPCClient) {
	t.Helper()
	rpc := stub.NewRPCClient()
	if state != nil {
		curve, err := DeriveBondingCurve(testMint)
		require.NoError(t, err)
		rpc.SetAccount(curve.String(), ProgramID.String(), state.Encode())
	}
	return NewEngine(rpc, zerolog.Nop()), rpc
}

func TestCurveState_EncodeDecode(t *testing.T) {
	s := liveCurve()
	s.Complete = true

	got, err := DecodeCurveState(s.Encode())
	require.NoError(t, err)
	assert.Equal(t, s, *got)

	_, err = DecodeCurveState(make([]byte, curveAccountLen-1))
	assert.Error(t, err)
}

func TestBuildBuyInstruction_Layout(t *testing.T) {
	ix, err := BuildBuyInstruction(BuyParams{
		Mint:        testMint,
		User:        testUser,
		TokenAmount: 30_645_160,
		MaxSolCost:  1_010_000_000,
	})
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, InstructionDataLen)
	assert.Equal(t, buyDiscriminator[:], data[:8])
	assert.Equal(t, uint64(30_645_160), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(1_010_000_000), binary.LittleEndian.Uint64(data[16:24]))
	assert.Equal(t, ProgramID, ix.ProgramID())

	accounts := ix.Accounts()
	require.Len(t, accounts, 12)

	curve, err := DeriveBondingCurve(testMint)
	require.NoError(t, err)
	curveATA, err := DeriveAssociatedBondingCurve(curve, testMint)
	require.NoError(t, err)

	assert.Equal(t, GlobalAccount, accounts[0].PublicKey)
	assert.Equal(t, FeeRecipient, accounts[1].PublicKey)
	assert.True(t, accounts[1].IsWritable)
	assert.Equal(t, testMint, accounts[2].PublicKey)
	assert.Equal(t, curve, accounts[3].PublicKey)
	assert.Equal(t, curveATA, accounts[4].PublicKey)
	assert.Equal(t, testUser, accounts[6].PublicKey)
	assert.True(t, accounts[6].IsSigner)
	assert.Equal(t, SystemProgram, accounts[7].PublicKey)
	assert.Equal(t, TokenProgram, accounts[8].PublicKey)
	assert.Equal(t, RentSysvar, accounts[9].PublicKey)
	assert.Equal(t, EventAuthority, accounts[10].PublicKey)
	assert.Equal(t, ProgramID, accounts[11].PublicKey)

	for i, a := range accounts {
		if i != 6 {
			assert.False(t, a.IsSigner, "account %d", i)
		}
	}
}

func TestBuildSellInstruction_Layout(t *testing.T) {
	ix, err := BuildSellInstruction(SellParams{
		Mint:         testMint,
		User:         testUser,
		TokenAmount:  5_000_000,
		MinSolOutput: 140_000,
	})
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, InstructionDataLen)
	assert.Equal(t, sellDiscriminator[:], data[:8])
	assert.Equal(t, uint64(5_000_000), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(140_000), binary.LittleEndian.Uint64(data[16:24]))
	assert.Len(t, ix.Accounts(), 12)
}

func TestComputeBudgetInstructions(t *testing.T) {
	price, err := SetComputeUnitPrice(50_000).Data()
	require.NoError(t, err)
	assert.Equal(t, byte(3), price[0])
	assert.Equal(t, uint64(50_000), binary.LittleEndian.Uint64(price[1:]))

	limit, err := SetComputeUnitLimit(200_000).Data()
	require.NoError(t, err)
	assert.Equal(t, byte(2), limit[0])
	assert.Equal(t, uint32(200_000), binary.LittleEndian.Uint32(limit[1:]))
}

func TestEngine_PlanBuy(t *testing.T) {
	state := liveCurve()
	engine, rpc := newTestEngine(t, &state)

	plan, err := engine.PlanTrade(context.Background(), TradeParams{
		Mint:        testMint,
		User:        testUser,
		Side:        domain.SideBuy,
		Unit:        domain.UnitSOL,
		Amount:      1_000_000_000,
		SlippageBps: 500,
	})
	require.NoError(t, err)

	want, err := state.BuyQuote(1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), plan.AmountIn)
	assert.Equal(t, want, plan.ExpectedOut)
	assert.Equal(t, MinOut(want, 500), plan.MinOut)
	assert.Equal(t, 1, rpc.Calls("getAccountInfo"))

	// limit, ata, buy
	require.Len(t, plan.Instructions, 3)
	assert.Equal(t, AssociatedTokenProgram, plan.Instructions[1].ProgramID())

	data, err := plan.Instructions[2].Data()
	require.NoError(t, err)
	assert.Equal(t, plan.MinOut, binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, MaxIn(1_000_000_000, FeeBps), binary.LittleEndian.Uint64(data[16:24]))
}

func TestEngine_PlanSellWithPriorityFee(t *testing.T) {
	state := liveCurve()
	engine, _ := newTestEngine(t, &state)

	plan, err := engine.PlanTrade(context.Background(), TradeParams{
		Mint:                     testMint,
		User:                     testUser,
		Side:                     domain.SideSell,
		Unit:                     domain.UnitToken,
		Amount:                   10_000_000_000,
		SlippageBps:              100,
		PriorityFeeMicroLamports: 25_000,
	})
	require.NoError(t, err)

	// limit, price, sell
	require.Len(t, plan.Instructions, 3)
	assert.Equal(t, ComputeBudgetProgram, plan.Instructions[1].ProgramID())
	assert.Equal(t, ProgramID, plan.Instructions[2].ProgramID())
	assert.Equal(t, uint64(10_000_000_000), plan.AmountIn)
	assert.LessOrEqual(t, plan.MinOut, plan.ExpectedOut)
}

func TestEngine_PlanBuyByTokenAmount(t *testing.T) {
	state := liveCurve()
	engine, _ := newTestEngine(t, &state)

	plan, err := engine.PlanTrade(context.Background(), TradeParams{
		Mint:   testMint,
		User:   testUser,
		Side:   domain.SideBuy,
		Unit:   domain.UnitToken,
		Amount: 1_000_000_000_000,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, plan.ExpectedOut+1, uint64(1_000_000_000_000))
}

func TestEngine_CurveErrors(t *testing.T) {
	ctx := context.Background()
	params := TradeParams{Mint: testMint, User: testUser, Side: domain.SideBuy, Unit: domain.UnitSOL, Amount: 1}

	t.Run("missing", func(t *testing.T) {
		engine, _ := newTestEngine(t, nil)
		_, err := engine.PlanTrade(ctx, params)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("wrong owner", func(t *testing.T) {
		engine, rpc := newTestEngine(t, nil)
		curve, err := DeriveBondingCurve(testMint)
		require.NoError(t, err)
		state := liveCurve()
		rpc.SetAccount(curve.String(), TokenProgram.String(), state.Encode())

		_, err = engine.PlanTrade(ctx, params)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("complete", func(t *testing.T) {
		state := liveCurve()
		state.Complete = true
		engine, _ := newTestEngine(t, &state)

		_, err := engine.PlanTrade(ctx, params)
		assert.ErrorIs(t, err, domain.ErrCurveComplete)

		_, err = engine.QuoteBuy(ctx, testMint, 1_000, 100)
		assert.ErrorIs(t, err, domain.ErrCurveComplete)
	})

	t.Run("rpc failure", func(t *testing.T) {
		engine, rpc := newTestEngine(t, nil)
		rpc.Err = errors.New("boom")
		_, err := engine.PlanTrade(ctx, params)
		assert.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("zero amount", func(t *testing.T) {
		state := liveCurve()
		engine, _ := newTestEngine(t, &state)
		p := params
		p.Amount = 0
		_, err := engine.PlanTrade(ctx, p)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestEngine_QuoteSell(t *testing.T) {
	state := liveCurve()
	engine, _ := newTestEngine(t, &state)

	q, err := engine.QuoteSell(context.Background(), testMint, 1_000_000_000_000, 300)
	require.NoError(t, err)
	want, _ := state.SellQuote(1_000_000_000_000)
	assert.Equal(t, want, q.ExpectedOut)
	assert.Equal(t, MinOut(want, 300), q.MinOut)
}
