// Command server runs the trade executor: the RPC pool health loop, the
// approval sweep, probe sample recording, the operations API and, when a
// broker is configured, the trade request consumer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-trade-executor/internal/aggregator"
	"solana-trade-executor/internal/approval"
	"solana-trade-executor/internal/broker"
	"solana-trade-executor/internal/config"
	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/logging"
	"solana-trade-executor/internal/observability"
	"solana-trade-executor/internal/opsapi"
	"solana-trade-executor/internal/orchestrator"
	"solana-trade-executor/internal/pumpfun"
	"solana-trade-executor/internal/router"
	"solana-trade-executor/internal/rpcpool"
	"solana-trade-executor/internal/settlement"
	"solana-trade-executor/internal/signer"
	"solana-trade-executor/internal/sink"
	"solana-trade-executor/internal/solana"
	"solana-trade-executor/internal/storage"
	chstore "solana-trade-executor/internal/storage/clickhouse"
	"solana-trade-executor/internal/storage/memory"
	"solana-trade-executor/internal/storage/migrations"
	pgstore "solana-trade-executor/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", os.Getenv("EXECUTOR_CONFIG"), "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.App.LogLevel, cfg.App.LogPretty).With().Str("app", cfg.App.Name).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("server stopped")
}

type stores struct {
	results storage.TradeResultStore
	events  storage.ApprovalEventStore
	probes  storage.ProbeSampleStore
	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores picks Postgres and ClickHouse when configured, memory otherwise.
func openStores(ctx context.Context, cfg config.Storage, metrics *observability.Metrics, log zerolog.Logger) (*stores, error) {
	s := &stores{
		results: memory.NewTradeResultStore(),
		events:  memory.NewApprovalEventStore(),
		probes:  memory.NewProbeSampleStore(),
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, pgstore.WithMetrics(metrics))
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			s.close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		s.results = pgstore.NewTradeResultStore(pool)
		s.events = pgstore.NewApprovalEventStore(pool)
		log.Info().Msg("postgres stores ready")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		s.probes = chstore.NewProbeSampleStore(conn)
		log.Info().Msg("clickhouse probe store ready")
	}
	return s, nil
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	metrics := observability.NewMetrics("executor")

	st, err := openStores(ctx, cfg.Storage, metrics, log)
	if err != nil {
		return err
	}
	defer st.close()

	recorder := rpcpool.NewSampleRecorder(st.probes, cfg.Storage.ProbeBatchSize, cfg.Storage.ProbeFlushInterval, log)

	pool, err := rpcpool.New(rpcpool.Config{
		Endpoints:            cfg.PoolEndpoints(),
		MaxLatency:           cfg.RPC.MaxLatency,
		ErrorThreshold:       cfg.RPC.ErrorThreshold,
		ProbeInterval:        cfg.RPC.ProbeInterval,
		ProbeTimeout:         cfg.RPC.ProbeTimeout,
		MaxRecoveryProbes:    cfg.RPC.MaxRecoveryProbes,
		ActiveProbeFreshness: cfg.RPC.ActiveProbeFreshness,
		RequestTimeout:       cfg.RPC.RequestTimeout,
		Logger:               log,
		Metrics:              metrics,
		OnProbe:              recorder.Observe,
	})
	if err != nil {
		return fmt.Errorf("rpc pool: %w", err)
	}
	pool.ProbeAll(ctx)

	routeCache, closeCache, err := buildRouteCache(ctx, cfg.Router, log)
	if err != nil {
		return err
	}
	defer closeCache()

	rt := router.New(pool, router.Config{
		Cache:    routeCache,
		Metadata: router.NewMetadataClient(cfg.Router.MetadataURL, cfg.Router.MetadataTimeout),
		Logger:   log,
		Metrics:  metrics,
	})

	workflow, err := approval.New(approval.Config{
		Policies:      cfg.ApprovalPolicies(),
		SweepInterval: cfg.Approval.SweepInterval,
		Retention:     cfg.Approval.Retention,
		Events:        st.events,
		Logger:        log,
		Metrics:       metrics,
	})
	if err != nil {
		return fmt.Errorf("approval workflow: %w", err)
	}

	wallet, err := signer.New(cfg.SignerConfig(), pool, log)
	if err != nil {
		return fmt.Errorf("signer: %w", err)
	}
	log.Info().Str("wallet", wallet.PublicKey().String()).Stringer("signer", wallet.Kind()).Msg("signer ready")

	commitment := solana.Commitment(cfg.RPC.Commitment)
	confirmerCfg := settlement.ConfirmerConfig{Logger: log, Metrics: metrics}
	if cfg.RPC.WSURL != "" {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = log
		ws, err := solana.NewWSClient(ctx, cfg.RPC.WSURL, &wsCfg)
		if err != nil {
			// Polling still confirms without the subscription fast path.
			log.Warn().Err(err).Str("url", cfg.RPC.WSURL).Msg("websocket unavailable")
		} else {
			defer ws.Close()
			confirmerCfg.Watcher = ws
		}
	}

	resultSink := sink.Multi{sink.NewStore(st.results), sink.NewLog(log)}

	var amqpConn *amqp.Connection
	if cfg.Broker.URL != "" {
		amqpConn, err = amqp.Dial(cfg.Broker.URL)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer amqpConn.Close()

		pubCh, err := amqpConn.Channel()
		if err != nil {
			return fmt.Errorf("open publish channel: %w", err)
		}
		defer pubCh.Close()
		publisher, err := broker.NewPublisher(pubCh, cfg.Broker.ResultExchange)
		if err != nil {
			return err
		}
		resultSink = append(resultSink, publisher)
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Router:     rt,
		Curve:      pumpfun.NewEngine(pool, log),
		Aggregator: aggregator.New(cfg.Aggregator.BaseURL, cfg.Aggregator.Timeout, log),
		Approvals:  workflow,
		Signer:     wallet,
		Chain:      pool,
		Submitter: settlement.NewSubmitter(pool, settlement.SubmitterConfig{
			MaxAttempts: cfg.Execution.SubmitAttempts,
			Backoff:     cfg.Execution.SubmitBackoff,
			Options:     solana.SendOptions{SkipPreflight: cfg.Execution.SkipPreflight, PreflightCommitment: commitment},
			Logger:      log,
			Metrics:     metrics,
		}),
		Confirmer:          settlement.NewConfirmer(pool, confirmerCfg),
		Sink:               resultSink,
		Commitment:         commitment,
		BuyConfirmTimeout:  cfg.Execution.BuyConfirmTimeout,
		SellConfirmTimeout: cfg.Execution.SellConfirmTimeout,
		ApprovalWaitSlack:  cfg.Execution.ApprovalWaitSlack,
		ComputeUnitLimit:   cfg.Execution.ComputeUnitLimit,
		Logger:             log,
		Metrics:            metrics,
	})
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	api := opsapi.NewHandler(opsapi.Deps{
		Name:      cfg.App.Name,
		Approvals: workflow,
		Endpoints: pool,
		Routes:    rt,
		Executor:  orch,
		Results:   st.results,
		Events:    st.events,
		Metrics:   metrics,
		Logger:    log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return workflow.Run(gctx) })
	g.Go(func() error { return recorder.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("ops api listening")
		return opsapi.Serve(gctx, cfg.HTTP.Addr, api)
	})

	if amqpConn != nil {
		consumeCh, err := amqpConn.Channel()
		if err != nil {
			return fmt.Errorf("open consume channel: %w", err)
		}
		defer consumeCh.Close()

		consumer, err := broker.NewConsumer(consumeCh, broker.ConsumerConfig{
			Queue:       cfg.Broker.RequestQueue,
			Prefetch:    cfg.Broker.Prefetch,
			Concurrency: cfg.Broker.Concurrency,
			Logger:      log,
		}, func(ctx context.Context, req domain.TradeRequest) error {
			// Every outcome is delivered through the sink, so a failed
			// trade is still a handled message.
			orch.Execute(ctx, req)
			return nil
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return consumer.Run(gctx) })
	}

	log.Info().Int("endpoints", len(cfg.RPC.Endpoints)).Str("active", pool.Active()).Msg("executor started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildRouteCache(ctx context.Context, cfg config.Router, log zerolog.Logger) (router.RouteCache, func(), error) {
	l1 := router.NewMemoryCache(cfg.CacheTTL, cfg.CacheCapacity)
	if cfg.RedisURL == "" {
		return l1, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("redis route cache ready")

	tiered := router.TieredCache{L1: l1, L2: router.NewRedisCache(client, cfg.CacheTTL, log)}
	return tiered, func() { _ = client.Close() }, nil
}
