// Package rpcpool maintains a tiered set of RPC endpoints, tracks their
// health, and routes chain calls to the best one with failover.
package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/observability"
	"solana-trade-executor/internal/solana"
)

// Defaults applied by New for zero config values.
const (
	DefaultMaxLatency        = 800 * time.Millisecond
	DefaultErrorThreshold    = 3
	DefaultProbeInterval     = 15 * time.Second
	DefaultProbeTimeout      = 3 * time.Second
	DefaultMaxRecoveryProbes = 2
	DefaultRequestTimeout    = 10 * time.Second
	DefaultMaxFailover       = 2

	DefaultActiveProbeFreshness = 2 * time.Second
)

// EndpointConfig describes one configured endpoint.
type EndpointConfig struct {
	URL  string
	Tier Tier
}

// Config configures the pool.
type Config struct {
	Endpoints []EndpointConfig

	// MaxLatency caps the live probe latency for keeping the active endpoint.
	MaxLatency time.Duration
	// ErrorThreshold consecutive errors mark an endpoint unhealthy.
	ErrorThreshold int
	// ProbeInterval is the background health-check period.
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	// MaxRecoveryProbes caps unhealthy endpoints probed per tick.
	MaxRecoveryProbes int
	// ActiveProbeFreshness lets a recent success stand in for the live probe
	// of the active endpoint. Zero probes on every selection.
	ActiveProbeFreshness time.Duration
	// RequestTimeout bounds each pooled HTTP request.
	RequestTimeout time.Duration
	// MaxFailover is the number of distinct endpoints one call may try.
	MaxFailover int

	Logger  zerolog.Logger
	Metrics *observability.Metrics
	// OnProbe, if set, observes every probe result.
	OnProbe func(domain.ProbeSample)
}

// Health is a snapshot of one endpoint's state.
type Health struct {
	URL         string        `json:"url"`
	Tier        Tier          `json:"-"`
	TierName    string        `json:"tier"`
	Errors      int           `json:"errors"`
	Latency     time.Duration `json:"latency"`
	LastSuccess time.Time     `json:"last_success"`
	LastFailure time.Time     `json:"last_failure"`
	Healthy     bool          `json:"healthy"`
	Active      bool          `json:"active"`
}

type endpoint struct {
	cfg         EndpointConfig
	client      solana.RPCClient
	errors      int
	latency     time.Duration
	lastSuccess time.Time
	lastFailure time.Time
	healthy     bool
}

// ClientFactory builds the RPC client used for one endpoint URL.
type ClientFactory func(url string) solana.RPCClient

// Option configures a Pool.
type Option func(*Pool)

// WithClientFactory replaces the default HTTP client construction.
func WithClientFactory(f ClientFactory) Option {
	return func(p *Pool) {
		p.factory = f
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// Pool is safe for concurrent use. The lock guards only in-memory state
// and is never held across a network call.
type Pool struct {
	cfg     Config
	log     zerolog.Logger
	factory ClientFactory
	now     func() time.Time

	mu        sync.RWMutex
	endpoints []*endpoint
	byURL     map[string]*endpoint
	active    string
}

// New builds a pool. All endpoints start healthy.
func New(cfg Config, opts ...Option) (*Pool, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("rpcpool: no endpoints configured")
	}
	applyDefaults(&cfg)

	p := &Pool{
		cfg:   cfg,
		log:   cfg.Logger.With().Str("component", "rpcpool").Logger(),
		now:   time.Now,
		byURL: make(map[string]*endpoint, len(cfg.Endpoints)),
	}
	p.factory = p.defaultClient
	for _, opt := range opts {
		opt(p)
	}

	for _, ec := range cfg.Endpoints {
		if ec.URL == "" {
			return nil, errors.New("rpcpool: empty endpoint url")
		}
		if _, dup := p.byURL[ec.URL]; dup {
			return nil, fmt.Errorf("rpcpool: duplicate endpoint %s", ec.URL)
		}
		ep := &endpoint{cfg: ec, client: p.factory(ec.URL), healthy: true}
		p.endpoints = append(p.endpoints, ep)
		p.byURL[ec.URL] = ep
		cfg.Metrics.SetEndpointHealth(ec.URL, ec.Tier.String(), true, 0)
	}
	return p, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MaxLatency <= 0 {
		cfg.MaxLatency = DefaultMaxLatency
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = DefaultErrorThreshold
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.MaxRecoveryProbes <= 0 {
		cfg.MaxRecoveryProbes = DefaultMaxRecoveryProbes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxFailover <= 0 {
		cfg.MaxFailover = DefaultMaxFailover
	}
}

// defaultClient gives each endpoint its own keep-alive connection pool.
// Retries are disabled; the pool fails over instead.
func (p *Pool) defaultClient(url string) solana.RPCClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return solana.NewHTTPClient(url,
		solana.WithHTTPClient(&http.Client{Timeout: p.cfg.RequestTimeout, Transport: transport}),
		solana.WithMaxRetries(0),
	)
}

// Client returns the pooled client for url.
func (p *Pool) Client(url string) (solana.RPCClient, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ep, ok := p.byURL[url]
	if !ok {
		return nil, false
	}
	return ep.client, true
}

// SelectEndpoint returns the URL to use for the next call.
//
// The active endpoint is kept while it is healthy and answers a live probe
// within MaxLatency. Otherwise healthy endpoints are ranked by tier, then
// error count, then last latency, and the best becomes active.
func (p *Pool) SelectEndpoint(ctx context.Context) (string, error) {
	return p.selectExcluding(ctx, nil)
}

func (p *Pool) selectExcluding(ctx context.Context, tried map[string]bool) (string, error) {
	p.mu.RLock()
	active := p.active
	var keep, needProbe bool
	if ep, ok := p.byURL[active]; ok && ep.healthy && !tried[active] {
		keep = true
		fresh := p.cfg.ActiveProbeFreshness > 0 &&
			p.now().Sub(ep.lastSuccess) < p.cfg.ActiveProbeFreshness &&
			ep.latency <= p.cfg.MaxLatency
		needProbe = !fresh
	}
	p.mu.RUnlock()

	if keep {
		if !needProbe {
			return active, nil
		}
		latency, err := p.ProbeHealth(ctx, active)
		if err == nil && latency <= p.cfg.MaxLatency {
			return active, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		p.log.Info().Str("endpoint", active).Dur("latency", latency).Err(err).Msg("active endpoint failed live probe")

		excluded := make(map[string]bool, len(tried)+1)
		for url := range tried {
			excluded[url] = true
		}
		excluded[active] = true
		tried = excluded
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	best := p.rankLocked(tried)
	if best == nil {
		// a slow or blipping active endpoint below the error threshold beats nothing
		if ep, ok := p.byURL[active]; keep && ok && ep.healthy {
			return active, nil
		}
		return "", domain.ErrEndpointUnavailable
	}
	if best.cfg.URL != p.active {
		p.log.Info().Str("from", p.active).Str("to", best.cfg.URL).Str("tier", best.cfg.Tier.String()).Msg("switching active endpoint")
		p.active = best.cfg.URL
		p.cfg.Metrics.RecordSelection(best.cfg.URL)
	}
	return best.cfg.URL, nil
}

// rankLocked returns the best healthy endpoint not in tried.
func (p *Pool) rankLocked(tried map[string]bool) *endpoint {
	var candidates []*endpoint
	for _, ep := range p.endpoints {
		if ep.healthy && !tried[ep.cfg.URL] {
			candidates = append(candidates, ep)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.cfg.Tier != b.cfg.Tier {
			return a.cfg.Tier < b.cfg.Tier
		}
		if a.errors != b.errors {
			return a.errors < b.errors
		}
		return a.latency < b.latency
	})
	return candidates[0]
}

// ProbeHealth issues a lightweight getSlot against url and records the outcome.
func (p *Pool) ProbeHealth(ctx context.Context, url string) (time.Duration, error) {
	client, ok := p.Client(url)
	if !ok {
		return 0, fmt.Errorf("rpcpool: unknown endpoint %s", url)
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	start := p.now()
	_, err := client.GetSlot(probeCtx)
	latency := p.now().Sub(start)

	if err != nil && ctx.Err() != nil {
		// caller gave up; says nothing about the endpoint
		return latency, err
	}
	if err != nil {
		p.RecordFailure(url, err)
	} else {
		p.RecordSuccess(url, latency)
	}
	p.emitProbe(url, latency, err)
	return latency, err
}

func (p *Pool) emitProbe(url string, latency time.Duration, err error) {
	p.cfg.Metrics.RecordProbe(url, latency, err)
	if p.cfg.OnProbe == nil {
		return
	}
	p.mu.RLock()
	tier := p.byURL[url].cfg.Tier.String()
	p.mu.RUnlock()

	sample := domain.ProbeSample{
		Endpoint:   url,
		Tier:       tier,
		Success:    err == nil,
		Latency:    latency,
		ObservedAt: p.now(),
	}
	if err != nil {
		sample.Error = err.Error()
	}
	p.cfg.OnProbe(sample)
}

// RecordSuccess resets the error count and marks the endpoint healthy.
func (p *Pool) RecordSuccess(url string, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.byURL[url]
	if !ok {
		return
	}
	if !ep.healthy {
		p.log.Info().Str("endpoint", url).Msg("endpoint recovered")
	}
	ep.errors = 0
	ep.latency = latency
	ep.lastSuccess = p.now()
	ep.healthy = true
	p.cfg.Metrics.SetEndpointHealth(url, ep.cfg.Tier.String(), true, 0)
}

// RecordFailure increments the error count; at the threshold the endpoint
// becomes unhealthy and stays so until a probe succeeds.
func (p *Pool) RecordFailure(url string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.byURL[url]
	if !ok {
		return
	}
	ep.errors++
	ep.lastFailure = p.now()
	if ep.healthy && ep.errors >= p.cfg.ErrorThreshold {
		ep.healthy = false
		p.log.Warn().Str("endpoint", url).Int("errors", ep.errors).Err(err).Msg("endpoint marked unhealthy")
		if p.active == url {
			p.active = ""
		}
	}
	p.cfg.Metrics.SetEndpointHealth(url, ep.cfg.Tier.String(), ep.healthy, ep.errors)
}

// Snapshot returns the health table in configuration order.
func (p *Pool) Snapshot() []Health {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Health, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		out = append(out, Health{
			URL:         ep.cfg.URL,
			Tier:        ep.cfg.Tier,
			TierName:    ep.cfg.Tier.String(),
			Errors:      ep.errors,
			Latency:     ep.latency,
			LastSuccess: ep.lastSuccess,
			LastFailure: ep.lastFailure,
			Healthy:     ep.healthy,
			Active:      ep.cfg.URL == p.active,
		})
	}
	return out
}

// Active returns the current active endpoint, empty before first selection.
func (p *Pool) Active() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Run probes endpoints every ProbeInterval until ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.ProbeInterval)
	defer ticker.Stop()

	p.log.Info().Int("endpoints", len(p.endpoints)).Dur("interval", p.cfg.ProbeInterval).Msg("health loop started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.ProbeAll(ctx)
		}
	}
}

// ProbeAll probes every healthy endpoint concurrently, then up to
// MaxRecoveryProbes unhealthy ones, longest-failed first.
func (p *Pool) ProbeAll(ctx context.Context) {
	p.mu.RLock()
	var healthy []string
	var unhealthy []*endpoint
	for _, ep := range p.endpoints {
		if ep.healthy {
			healthy = append(healthy, ep.cfg.URL)
		} else {
			unhealthy = append(unhealthy, ep)
		}
	}
	sort.SliceStable(unhealthy, func(i, j int) bool {
		return unhealthy[i].lastFailure.Before(unhealthy[j].lastFailure)
	})
	recovery := make([]string, 0, p.cfg.MaxRecoveryProbes)
	for i := 0; i < len(unhealthy) && i < p.cfg.MaxRecoveryProbes; i++ {
		recovery = append(recovery, unhealthy[i].cfg.URL)
	}
	p.mu.RUnlock()

	var g errgroup.Group
	for _, url := range healthy {
		g.Go(func() error {
			p.ProbeHealth(ctx, url)
			return nil
		})
	}
	_ = g.Wait()

	for _, url := range recovery {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.ProbeHealth(ctx, url); err == nil {
			p.log.Info().Str("endpoint", url).Msg("recovery probe succeeded")
		}
	}
}
