package rpcpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/solana"
	"solana-trade-executor/internal/solana/stub"
)

var errTransport = errors.New("dial tcp: connection refused")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testPool struct {
	*Pool
	stubs map[string]*stub.RPCClient
	clock *fakeClock
}

func newTestPool(t *testing.T, cfg Config) *testPool {
	t.Helper()
	stubs := make(map[string]*stub.RPCClient)
	for _, ep := range cfg.Endpoints {
		stubs[ep.URL] = stub.NewRPCClient()
	}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	p, err := New(cfg,
		WithClientFactory(func(url string) solana.RPCClient { return stubs[url] }),
		WithClock(clock.Now),
	)
	require.NoError(t, err)
	return &testPool{Pool: p, stubs: stubs, clock: clock}
}

func threeTierConfig() Config {
	return Config{
		Endpoints: []EndpointConfig{
			{URL: "https://fallback", Tier: TierFallback},
			{URL: "https://secondary", Tier: TierSecondary},
			{URL: "https://premium", Tier: TierPremium},
		},
		ErrorThreshold:    3,
		MaxRecoveryProbes: 1,
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Endpoints: []EndpointConfig{{URL: "a"}, {URL: "a"}}})
	assert.Error(t, err)
}

func TestSelectEndpoint_PrefersTier(t *testing.T) {
	p := newTestPool(t, threeTierConfig())

	url, err := p.SelectEndpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://premium", url)
	assert.Equal(t, "https://premium", p.Active())
}

func TestSelectEndpoint_ActiveKeptWhileProbePasses(t *testing.T) {
	p := newTestPool(t, threeTierConfig())
	ctx := context.Background()

	_, err := p.SelectEndpoint(ctx)
	require.NoError(t, err)
	_, err = p.SelectEndpoint(ctx)
	require.NoError(t, err)

	// one live probe per selection while active
	assert.Equal(t, 1, p.stubs["https://premium"].Calls("getSlot"))
	assert.Equal(t, 0, p.stubs["https://secondary"].Calls("getSlot"))
}

func TestSelectEndpoint_ProbeFreshnessSkipsLiveProbe(t *testing.T) {
	cfg := threeTierConfig()
	cfg.ActiveProbeFreshness = time.Second
	p := newTestPool(t, cfg)
	ctx := context.Background()

	_, err := p.SelectEndpoint(ctx)
	require.NoError(t, err)
	p.RecordSuccess("https://premium", 10*time.Millisecond)

	_, err = p.SelectEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, p.stubs["https://premium"].Calls("getSlot"))

	p.clock.Advance(2 * time.Second)
	_, err = p.SelectEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.stubs["https://premium"].Calls("getSlot"))
}

func TestThreshold_ExcludesUntilRecovery(t *testing.T) {
	p := newTestPool(t, threeTierConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		p.RecordFailure("https://premium", errTransport)
	}
	url, err := p.SelectEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://premium", url, "below threshold the endpoint stays eligible")

	p.RecordFailure("https://premium", errTransport)
	p.stubs["https://premium"].Err = errTransport

	for i := 0; i < 5; i++ {
		url, err = p.SelectEndpoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, "https://secondary", url)
	}

	// a failing recovery probe keeps it out
	p.ProbeAll(ctx)
	assert.False(t, healthOf(p.Pool, "https://premium").Healthy)

	p.stubs["https://premium"].Err = nil
	p.ProbeAll(ctx)
	h := healthOf(p.Pool, "https://premium")
	assert.True(t, h.Healthy)
	assert.Zero(t, h.Errors)

	// secondary is still active and passing; it is kept until it fails a live probe
	url, err = p.SelectEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://secondary", url)

	p.stubs["https://secondary"].Err = errTransport
	url, err = p.SelectEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://premium", url)
}

func TestSelectEndpoint_NoHealthy(t *testing.T) {
	p := newTestPool(t, Config{
		Endpoints:      []EndpointConfig{{URL: "https://only", Tier: TierPremium}},
		ErrorThreshold: 1,
	})
	p.RecordFailure("https://only", errTransport)

	_, err := p.SelectEndpoint(context.Background())
	assert.ErrorIs(t, err, domain.ErrEndpointUnavailable)
}

func TestSelectEndpoint_SingleEndpointSurvivesBlip(t *testing.T) {
	p := newTestPool(t, Config{
		Endpoints:      []EndpointConfig{{URL: "https://only", Tier: TierPremium}},
		ErrorThreshold: 4,
	})
	ctx := context.Background()
	only := p.stubs["https://only"]
	only.Balances["owner"] = 7

	url, err := p.SelectEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://only", url)

	only.Err = errTransport
	url, err = p.SelectEndpoint(ctx)
	require.NoError(t, err, "a healthy endpoint below the threshold stays selectable")
	assert.Equal(t, "https://only", url)
	h := healthOf(p.Pool, "https://only")
	assert.True(t, h.Healthy)
	assert.Equal(t, 1, h.Errors)

	// the real call is still issued during the blip
	_, err = p.GetBalance(ctx, "owner", solana.CommitmentConfirmed)
	require.Error(t, err)
	assert.Equal(t, 1, only.Calls("getBalance"))
	assert.True(t, healthOf(p.Pool, "https://only").Healthy)

	only.Err = nil
	balance, err := p.GetBalance(ctx, "owner", solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), balance)
	assert.Zero(t, healthOf(p.Pool, "https://only").Errors)
}

func TestProbeAll_RecoveryCappedOldestFirst(t *testing.T) {
	cfg := Config{
		Endpoints: []EndpointConfig{
			{URL: "https://a", Tier: TierPremium},
			{URL: "https://b", Tier: TierPremium},
			{URL: "https://c", Tier: TierPremium},
		},
		ErrorThreshold:    1,
		MaxRecoveryProbes: 1,
	}
	p := newTestPool(t, cfg)

	p.RecordFailure("https://b", errTransport)
	p.clock.Advance(time.Second)
	p.RecordFailure("https://c", errTransport)
	p.clock.Advance(time.Second)
	p.RecordFailure("https://a", errTransport)

	p.ProbeAll(context.Background())

	assert.Equal(t, 1, p.stubs["https://b"].Calls("getSlot"))
	assert.Equal(t, 0, p.stubs["https://c"].Calls("getSlot"))
	assert.Equal(t, 0, p.stubs["https://a"].Calls("getSlot"))
	assert.True(t, healthOf(p.Pool, "https://b").Healthy)
	assert.False(t, healthOf(p.Pool, "https://c").Healthy)
}

func TestCalls_FailoverOnTransportError(t *testing.T) {
	p := newTestPool(t, threeTierConfig())
	p.stubs["https://premium"].Err = errTransport
	p.stubs["https://secondary"].Balances["owner"] = 42

	balance, err := p.GetBalance(context.Background(), "owner", solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), balance)
	assert.Equal(t, "https://secondary", p.Active())
	assert.Equal(t, 1, healthOf(p.Pool, "https://premium").Errors)
}

func TestCalls_RPCErrorIsNotFailover(t *testing.T) {
	p := newTestPool(t, threeTierConfig())
	p.stubs["https://premium"].SendFunc = func([]byte) (string, error) {
		return "", &solana.RPCError{Code: -32002, Message: "Transaction simulation failed"}
	}

	_, err := p.SendTransaction(context.Background(), []byte{1}, solana.SendOptions{})
	require.Error(t, err)
	assert.True(t, solana.IsRPCError(err))
	assert.Zero(t, healthOf(p.Pool, "https://premium").Errors)
	assert.Len(t, p.stubs["https://secondary"].Sent, 0)
}

func TestCalls_AllEndpointsFail(t *testing.T) {
	p := newTestPool(t, threeTierConfig())
	for _, s := range p.stubs {
		s.Err = errTransport
	}

	_, err := p.GetBlockHeight(context.Background(), solana.CommitmentConfirmed)
	assert.ErrorIs(t, err, domain.ErrEndpointUnavailable)
}

func TestOnProbeHook(t *testing.T) {
	cfg := threeTierConfig()
	var mu sync.Mutex
	var samples []domain.ProbeSample
	cfg.OnProbe = func(s domain.ProbeSample) {
		mu.Lock()
		samples = append(samples, s)
		mu.Unlock()
	}
	p := newTestPool(t, cfg)
	p.stubs["https://fallback"].Err = errTransport

	p.ProbeAll(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, samples, 3)
	failed := 0
	for _, s := range samples {
		if !s.Success {
			failed++
			assert.Equal(t, "https://fallback", s.Endpoint)
			assert.Equal(t, "fallback", s.Tier)
			assert.NotEmpty(t, s.Error)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("Premium")
	require.NoError(t, err)
	assert.Equal(t, TierPremium, tier)

	_, err = ParseTier("gold")
	assert.Error(t, err)
}

func healthOf(p *Pool, url string) Health {
	for _, h := range p.Snapshot() {
		if h.URL == url {
			return h
		}
	}
	return Health{}
}
