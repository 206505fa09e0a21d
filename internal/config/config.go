// Package config loads executor configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"solana-trade-executor/internal/approval"
	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/rpcpool"
	"solana-trade-executor/internal/signer"
	"solana-trade-executor/internal/solana"
)

// App captures process-wide settings.
type App struct {
	Name      string `yaml:"name"`
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
}

// HTTP configures the operations API.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Endpoint is one RPC endpoint and its tier name.
type Endpoint struct {
	URL  string `yaml:"url"`
	Tier string `yaml:"tier"`
}

// RPC configures the endpoint pool.
type RPC struct {
	Endpoints            []Endpoint    `yaml:"endpoints"`
	WSURL                string        `yaml:"ws_url"`
	Commitment           string        `yaml:"commitment"`
	MaxLatency           time.Duration `yaml:"max_latency"`
	ErrorThreshold       int           `yaml:"error_threshold"`
	ProbeInterval        time.Duration `yaml:"probe_interval"`
	ProbeTimeout         time.Duration `yaml:"probe_timeout"`
	MaxRecoveryProbes    int           `yaml:"max_recovery_probes"`
	ActiveProbeFreshness time.Duration `yaml:"active_probe_freshness"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
}

// Router configures venue resolution.
type Router struct {
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheCapacity   int           `yaml:"cache_capacity"`
	RedisURL        string        `yaml:"redis_url"`
	MetadataURL     string        `yaml:"metadata_url"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`
}

// Aggregator configures the Jupiter client.
type Aggregator struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Execution tunes the orchestrator and settlement.
type Execution struct {
	BuyConfirmTimeout  time.Duration `yaml:"buy_confirm_timeout"`
	SellConfirmTimeout time.Duration `yaml:"sell_confirm_timeout"`
	ApprovalWaitSlack  time.Duration `yaml:"approval_wait_slack"`
	ComputeUnitLimit   uint32        `yaml:"compute_unit_limit"`
	MaxSlippageBps     int           `yaml:"max_slippage_bps"`
	SubmitAttempts     int           `yaml:"submit_attempts"`
	SubmitBackoff      time.Duration `yaml:"submit_backoff"`
	SkipPreflight      bool          `yaml:"skip_preflight"`
}

// Approval configures the approval workflow. Policies override the
// built-in defaults per transaction type.
type Approval struct {
	SweepInterval time.Duration              `yaml:"sweep_interval"`
	Retention     time.Duration              `yaml:"retention"`
	Policies      map[string]approval.Policy `yaml:"policies"`
}

// Signer selects the signing provider.
type Signer struct {
	Kind            string        `yaml:"kind"`
	PrivateKeyEnv   string        `yaml:"private_key_env"`
	RemoteURL       string        `yaml:"remote_url"`
	RemoteTokenEnv  string        `yaml:"remote_token_env"`
	RemotePublicKey string        `yaml:"remote_public_key"`
	RemoteTimeout   time.Duration `yaml:"remote_timeout"`
}

// Storage configures persistence. Empty DSNs use in-memory stores.
type Storage struct {
	PostgresDSN        string        `yaml:"postgres_dsn"`
	ClickhouseDSN      string        `yaml:"clickhouse_dsn"`
	ProbeBatchSize     int           `yaml:"probe_batch_size"`
	ProbeFlushInterval time.Duration `yaml:"probe_flush_interval"`
}

// Broker configures RabbitMQ. An empty URL disables it.
type Broker struct {
	URL            string `yaml:"url"`
	RequestQueue   string `yaml:"request_queue"`
	ResultExchange string `yaml:"result_exchange"`
	Concurrency    int    `yaml:"concurrency"`
	Prefetch       int    `yaml:"prefetch"`
}

// Config collects every configuration leaf.
type Config struct {
	App        App        `yaml:"app"`
	HTTP       HTTP       `yaml:"http"`
	RPC        RPC        `yaml:"rpc"`
	Router     Router     `yaml:"router"`
	Aggregator Aggregator `yaml:"aggregator"`
	Execution  Execution  `yaml:"execution"`
	Approval   Approval   `yaml:"approval"`
	Signer     Signer     `yaml:"signer"`
	Storage    Storage    `yaml:"storage"`
	Broker     Broker     `yaml:"broker"`
}

// Default returns a config with every optional value filled in.
func Default() *Config {
	return &Config{
		App:  App{Name: "solana-trade-executor", Env: "development", LogLevel: "info"},
		HTTP: HTTP{Addr: ":8080"},
		RPC: RPC{
			Commitment:           string(solana.CommitmentConfirmed),
			MaxLatency:           rpcpool.DefaultMaxLatency,
			ErrorThreshold:       rpcpool.DefaultErrorThreshold,
			ProbeInterval:        rpcpool.DefaultProbeInterval,
			ProbeTimeout:         rpcpool.DefaultProbeTimeout,
			MaxRecoveryProbes:    rpcpool.DefaultMaxRecoveryProbes,
			ActiveProbeFreshness: rpcpool.DefaultActiveProbeFreshness,
			RequestTimeout:       10 * time.Second,
		},
		Router: Router{
			CacheTTL:        45 * time.Second,
			CacheCapacity:   1000,
			MetadataURL:     "https://frontend-api.pump.fun",
			MetadataTimeout: 3 * time.Second,
		},
		Aggregator: Aggregator{BaseURL: "https://quote-api.jup.ag", Timeout: 8 * time.Second},
		Execution: Execution{
			BuyConfirmTimeout:  90 * time.Second,
			SellConfirmTimeout: 60 * time.Second,
			ApprovalWaitSlack:  5 * time.Second,
			ComputeUnitLimit:   120_000,
			MaxSlippageBps:     1000,
			SubmitAttempts:     3,
			SubmitBackoff:      500 * time.Millisecond,
		},
		Approval: Approval{SweepInterval: 5 * time.Second, Retention: time.Hour},
		Signer:   Signer{Kind: "local", PrivateKeyEnv: "SOLANA_PRIVATE_KEY_BASE58", RemoteTimeout: 10 * time.Second},
		Storage:  Storage{ProbeBatchSize: 100, ProbeFlushInterval: 10 * time.Second},
		Broker:   Broker{RequestQueue: "trade-requests", ResultExchange: "trade-results", Concurrency: 4},
	}
}

// Load reads path (optional) over the defaults, loads .env best-effort,
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() error {
	c.App.LogLevel = getString("LOG_LEVEL", c.App.LogLevel)
	c.HTTP.Addr = getString("HTTP_ADDR", c.HTTP.Addr)

	// SOLANA_RPC_URLS="https://a|premium,https://b|fallback"; a missing tier is secondary.
	if raw := getString("SOLANA_RPC_URLS", ""); raw != "" {
		c.RPC.Endpoints = nil
		for _, item := range strings.Split(raw, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			url, tier, ok := strings.Cut(item, "|")
			if !ok {
				tier = "secondary"
			}
			c.RPC.Endpoints = append(c.RPC.Endpoints, Endpoint{URL: url, Tier: tier})
		}
	}
	c.RPC.WSURL = getString("SOLANA_WS_URL", c.RPC.WSURL)
	c.RPC.Commitment = getString("SOLANA_COMMITMENT", c.RPC.Commitment)

	c.Router.RedisURL = getString("REDIS_URL", c.Router.RedisURL)
	c.Router.MetadataURL = getString("PUMPFUN_METADATA_URL", c.Router.MetadataURL)
	c.Aggregator.BaseURL = getString("JUPITER_BASE_URL", c.Aggregator.BaseURL)

	c.Signer.Kind = getString("SIGNER_KIND", c.Signer.Kind)
	c.Signer.RemoteURL = getString("SIGNER_REMOTE_URL", c.Signer.RemoteURL)
	c.Signer.RemotePublicKey = getString("SIGNER_REMOTE_PUBLIC_KEY", c.Signer.RemotePublicKey)

	c.Storage.PostgresDSN = getString("DATABASE_DSN", c.Storage.PostgresDSN)
	c.Storage.ClickhouseDSN = getString("CLICKHOUSE_DSN", c.Storage.ClickhouseDSN)

	c.Broker.URL = getString("RABBITMQ_URL", c.Broker.URL)

	var err error
	if c.Broker.Concurrency, err = getInt("BROKER_CONCURRENCY", c.Broker.Concurrency); err != nil {
		return fmt.Errorf("parse BROKER_CONCURRENCY: %w", err)
	}
	if c.Execution.MaxSlippageBps, err = getInt("MAX_SLIPPAGE_BPS", c.Execution.MaxSlippageBps); err != nil {
		return fmt.Errorf("parse MAX_SLIPPAGE_BPS: %w", err)
	}
	if c.Router.CacheTTL, err = getDuration("ROUTE_CACHE_TTL", c.Router.CacheTTL); err != nil {
		return fmt.Errorf("parse ROUTE_CACHE_TTL: %w", err)
	}
	return nil
}

// Validate rejects configurations the executor cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if len(c.RPC.Endpoints) == 0 {
		errs = append(errs, errors.New("rpc: at least one endpoint is required"))
	}
	for i, ep := range c.RPC.Endpoints {
		if ep.URL == "" {
			errs = append(errs, fmt.Errorf("rpc: endpoint %d has no url", i))
		}
		if _, err := rpcpool.ParseTier(ep.Tier); err != nil {
			errs = append(errs, fmt.Errorf("rpc: endpoint %s: %w", ep.URL, err))
		}
	}
	if solana.Commitment(c.RPC.Commitment).Rank() == 0 {
		errs = append(errs, fmt.Errorf("rpc: unknown commitment %q", c.RPC.Commitment))
	}

	kind, err := signer.ParseKind(c.Signer.Kind)
	if err != nil {
		errs = append(errs, fmt.Errorf("signer: %w", err))
	} else if kind == signer.KindRemote && c.Signer.RemoteURL == "" {
		errs = append(errs, errors.New("signer: remote signer needs remote_url"))
	}

	for name, p := range c.Approval.Policies {
		if _, err := approval.ParseTxType(name); err != nil {
			errs = append(errs, fmt.Errorf("approval: %w", err))
			continue
		}
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("approval: policy %s: %w", name, err))
		}
	}

	if c.Execution.MaxSlippageBps < 0 || c.Execution.MaxSlippageBps > domain.MaxSlippageBps {
		errs = append(errs, fmt.Errorf("execution: max_slippage_bps %d outside [0, %d]", c.Execution.MaxSlippageBps, domain.MaxSlippageBps))
	}

	return errors.Join(errs...)
}

// PoolEndpoints converts configured endpoints for rpcpool. Call after Validate.
func (c *Config) PoolEndpoints() []rpcpool.EndpointConfig {
	out := make([]rpcpool.EndpointConfig, 0, len(c.RPC.Endpoints))
	for _, ep := range c.RPC.Endpoints {
		tier, _ := rpcpool.ParseTier(ep.Tier)
		out = append(out, rpcpool.EndpointConfig{URL: ep.URL, Tier: tier})
	}
	return out
}

// ApprovalPolicies converts configured policy overrides. Call after Validate.
func (c *Config) ApprovalPolicies() map[approval.TxType]approval.Policy {
	out := make(map[approval.TxType]approval.Policy, len(c.Approval.Policies))
	for name, p := range c.Approval.Policies {
		t, _ := approval.ParseTxType(name)
		out[t] = p
	}
	return out
}

// SignerConfig converts signer settings. The remote token is read from
// RemoteTokenEnv. Call after Validate.
func (c *Config) SignerConfig() signer.Config {
	kind, _ := signer.ParseKind(c.Signer.Kind)
	return signer.Config{
		Kind:          kind,
		PrivateKeyEnv: c.Signer.PrivateKeyEnv,
		Remote: signer.RemoteConfig{
			URL:       c.Signer.RemoteURL,
			Token:     getString(c.Signer.RemoteTokenEnv, ""),
			PublicKey: c.Signer.RemotePublicKey,
			Timeout:   c.Signer.RemoteTimeout,
		},
	}
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to duration: %w", key, value, err)
	}
	return parsed, nil
}
