// Command quote routes a token and prints the venue decision with a quote
// as JSON. Nothing is signed or sent.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-trade-executor/internal/aggregator"
	"solana-trade-executor/internal/config"
	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/logging"
	"solana-trade-executor/internal/pumpfun"
	"solana-trade-executor/internal/router"
	"solana-trade-executor/internal/rpcpool"
	"solana-trade-executor/internal/solana"
)

type output struct {
	Route      domain.VenueRoute `json:"route"`
	Side       domain.Side       `json:"side"`
	AmountIn   uint64            `json:"amount_in"`
	Curve      *pumpfun.Quote    `json:"curve_quote,omitempty"`
	Aggregator *aggregator.Quote `json:"aggregator_quote,omitempty"`
}

func main() {
	configPath := flag.String("config", os.Getenv("EXECUTOR_CONFIG"), "Path to YAML config")
	token := flag.String("token", "", "Mint address or native alias")
	side := flag.String("side", "buy", "buy or sell")
	amount := flag.String("amount", "", "Amount in human units")
	unit := flag.String("unit", "sol", "sol or token")
	slippage := flag.Uint("slippage-bps", 100, "Slippage tolerance in basis points")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewWithWriter(os.Stderr, cfg.App.LogLevel, true)

	amt, err := decimal.NewFromString(*amount)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid -amount")
	}
	req := domain.TradeRequest{
		Token:       *token,
		Side:        domain.Side(*side),
		Amount:      amt,
		Unit:        domain.QuantityUnit(*unit),
		SlippageBps: uint16(*slippage),
	}
	if err := req.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid request")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := quote(ctx, cfg, req, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("quote failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Fatal().Err(err).Msg("encode output")
	}
}

func quote(ctx context.Context, cfg *config.Config, req domain.TradeRequest, log zerolog.Logger) (*output, error) {
	pool, err := rpcpool.New(rpcpool.Config{
		Endpoints:      cfg.PoolEndpoints(),
		MaxLatency:     cfg.RPC.MaxLatency,
		ErrorThreshold: cfg.RPC.ErrorThreshold,
		ProbeTimeout:   cfg.RPC.ProbeTimeout,
		RequestTimeout: cfg.RPC.RequestTimeout,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}
	pool.ProbeAll(ctx)

	rt := router.New(pool, router.Config{
		Metadata: router.NewMetadataClient(cfg.Router.MetadataURL, cfg.Router.MetadataTimeout),
		Logger:   log,
	})
	route, err := rt.Route(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	// Quotes are exact-in: buys spend SOL, sells spend tokens.
	decimals := uint8(9)
	switch {
	case req.Side == domain.SideBuy && req.Unit != domain.UnitSOL,
		req.Side == domain.SideSell && req.Unit != domain.UnitToken:
		return nil, fmt.Errorf("%w: quote needs the input side amount (buy in sol, sell in token)", domain.ErrInvalidInput)
	case req.Unit == domain.UnitToken:
		decimals = route.Decimals
	}
	in, err := domain.ToBaseUnits(req.Amount, decimals)
	if err != nil {
		return nil, err
	}
	out := &output{Route: route, Side: req.Side, AmountIn: in}

	switch route.Kind {
	case domain.VenueBondingCurve:
		mint, err := solanago.PublicKeyFromBase58(route.Token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidTokenIdentifier, err)
		}
		engine := pumpfun.NewEngine(pool, log)
		if req.Side == domain.SideBuy {
			out.Curve, err = engine.QuoteBuy(ctx, mint, in, req.SlippageBps)
		} else {
			out.Curve, err = engine.QuoteSell(ctx, mint, in, req.SlippageBps)
		}
		if err != nil {
			return nil, err
		}
	case domain.VenueAggregator:
		qr := aggregator.QuoteRequest{Amount: in, SlippageBps: req.SlippageBps}
		if req.Side == domain.SideBuy {
			qr.InputMint, qr.OutputMint = solana.WrappedSOLMint, route.Token
		} else {
			qr.InputMint, qr.OutputMint = route.Token, solana.WrappedSOLMint
		}
		client := aggregator.New(cfg.Aggregator.BaseURL, cfg.Aggregator.Timeout, log)
		out.Aggregator, err = client.Quote(ctx, qr)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s routes to %s (%s)", domain.ErrNotFound, req.Token, route.Kind, route.Justification)
	}
	return out, nil
}
