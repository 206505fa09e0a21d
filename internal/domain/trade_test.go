package domain

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() TradeRequest {
	return TradeRequest{
		Token:       "So11111111111111111111111111111111111111112",
		Side:        SideBuy,
		Amount:      decimal.NewFromFloat(1.5),
		Unit:        UnitSOL,
		SlippageBps: 500,
	}
}

func TestTradeRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TradeRequest)
		wantErr bool
	}{
		{name: "valid", mutate: func(*TradeRequest) {}},
		{name: "empty token", mutate: func(r *TradeRequest) { r.Token = "  " }, wantErr: true},
		{name: "bad side", mutate: func(r *TradeRequest) { r.Side = "hold" }, wantErr: true},
		{name: "bad unit", mutate: func(r *TradeRequest) { r.Unit = "usd" }, wantErr: true},
		{name: "zero amount", mutate: func(r *TradeRequest) { r.Amount = decimal.Zero }, wantErr: true},
		{name: "negative amount", mutate: func(r *TradeRequest) { r.Amount = decimal.NewFromInt(-1) }, wantErr: true},
		{name: "slippage at cap", mutate: func(r *TradeRequest) { r.SlippageBps = 10000 }},
		{name: "slippage above cap", mutate: func(r *TradeRequest) { r.SlippageBps = 10001 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestToBaseUnits(t *testing.T) {
	v, err := ToBaseUnits(decimal.RequireFromString("1.5"), 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), v)

	v, err = ToBaseUnits(decimal.RequireFromString("0.0000001239"), 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)

	_, err = ToBaseUnits(decimal.RequireFromString("100000000000"), 9)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.True(t, FromBaseUnits(1_500_000, 6).Equal(decimal.RequireFromString("1.5")))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, CodeNone, Classify(nil))
	assert.Equal(t, CodeCurveComplete, Classify(fmt.Errorf("build: %w", ErrCurveComplete)))
	assert.Equal(t, CodeInvalidInput, Classify(fmt.Errorf("route: %w", ErrInvalidTokenIdentifier)))
	assert.Equal(t, CodeApprovalExpired, Classify(ErrApprovalExpired))
	assert.Equal(t, CodeInternal, Classify(fmt.Errorf("boom")))
	assert.Equal(t, CodeCancelled, Classify(fmt.Errorf("wait for approval: %w", context.DeadlineExceeded)))
	assert.Equal(t, CodeCancelled, Classify(fmt.Errorf("route: %w", context.Canceled)))
	assert.Equal(t, CodeTimeout, Classify(fmt.Errorf("%w: no outcome after 90s", ErrConfirmationTimeout)))
	assert.Equal(t, CodeSubmissionFailed, Classify(fmt.Errorf("%w: %w", ErrSubmissionFailed, context.DeadlineExceeded)))
	assert.True(t, CodeNotFound.Retryable())
	assert.False(t, CodeTimeout.Retryable())
}

func TestVenueKind_Text(t *testing.T) {
	for _, k := range []VenueKind{VenueUnresolved, VenueBondingCurve, VenueAggregator, VenueNativeAsset} {
		b, err := k.MarshalText()
		require.NoError(t, err)
		var got VenueKind
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, k, got)
	}
}
