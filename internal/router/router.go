// Package router decides which venue executes a trade for a token.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"solana-trade-executor/internal/domain"
	"solana-trade-executor/internal/observability"
	"solana-trade-executor/internal/pumpfun"
	"solana-trade-executor/internal/solana"
)

// AccountReader fetches raw accounts.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error)
}

// nativeAliases resolve to the native asset without a network call.
var nativeAliases = map[string]bool{
	"sol":  true,
	"wsol": true,
}

// Config configures a Router. Zero values are usable.
type Config struct {
	Cache    RouteCache
	Metadata MetadataSource
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
}

// Router resolves tokens to venues. Safe for concurrent use.
type Router struct {
	chain    AccountReader
	cache    RouteCache
	metadata MetadataSource
	log      zerolog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// New creates a router reading accounts from chain.
func New(chain AccountReader, cfg Config) *Router {
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache(DefaultCacheTTL, DefaultCacheCapacity)
	}
	return &Router{
		chain:    chain,
		cache:    cache,
		metadata: cfg.Metadata,
		log:      cfg.Logger.With().Str("component", "router").Logger(),
		metrics:  cfg.Metrics,
		now:      time.Now,
	}
}

// Route classifies token. Input that is neither a native alias nor a valid
// address, or whose mint account does not exist, fails with
// domain.ErrInvalidTokenIdentifier.
func (r *Router) Route(ctx context.Context, token string) (domain.VenueRoute, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return unresolved(token, "empty token"), fmt.Errorf("%w: empty", domain.ErrInvalidTokenIdentifier)
	}
	if nativeAliases[strings.ToLower(token)] || token == solana.WrappedSOLMint {
		route := domain.VenueRoute{
			Token:         solana.WrappedSOLMint,
			Kind:          domain.VenueNativeAsset,
			Decimals:      9,
			Justification: "native asset alias",
			ResolvedAt:    r.now(),
		}
		r.metrics.RecordRoute(route.Kind.String())
		return route, nil
	}

	mint, err := solanago.PublicKeyFromBase58(token)
	if err != nil {
		return unresolved(token, "not an address"), fmt.Errorf("%w: %q", domain.ErrInvalidTokenIdentifier, token)
	}

	if route, ok := r.cache.Get(ctx, token); ok {
		r.metrics.RecordCacheLookup(true)
		return route, nil
	}
	r.metrics.RecordCacheLookup(false)

	route, err := r.resolve(ctx, mint, false)
	if err != nil {
		return route, err
	}
	r.cache.Set(ctx, mint.String(), route)
	r.metrics.RecordRoute(route.Kind.String())

	r.log.Debug().
		Str("mint", route.Token).
		Str("venue", route.Kind.String()).
		Bool("graduated", route.Graduated).
		Str("why", route.Justification).
		Msg("route resolved")

	return route, nil
}

// ForceAggregator drops any cached route for token and resolves it as an
// aggregator venue. Used to re-route after a curve venue failed.
func (r *Router) ForceAggregator(ctx context.Context, token string) (domain.VenueRoute, error) {
	token = strings.TrimSpace(token)
	mint, err := solanago.PublicKeyFromBase58(token)
	if err != nil {
		return unresolved(token, "not an address"), fmt.Errorf("%w: %q", domain.ErrInvalidTokenIdentifier, token)
	}
	r.Invalidate(ctx, token)

	route, err := r.resolve(ctx, mint, true)
	if err != nil {
		return route, err
	}
	r.cache.Set(ctx, mint.String(), route)
	r.metrics.RecordRoute(route.Kind.String())

	r.log.Info().Str("mint", route.Token).Str("why", route.Justification).Msg("forced aggregator route")
	return route, nil
}

// Invalidate drops the cached route for token.
func (r *Router) Invalidate(ctx context.Context, token string) {
	r.cache.Delete(ctx, strings.TrimSpace(token))
}

func (r *Router) resolve(ctx context.Context, mint solanago.PublicKey, forceAggregator bool) (domain.VenueRoute, error) {
	info, err := r.chain.GetAccountInfo(ctx, mint.String())
	if err != nil {
		return unresolved(mint.String(), "mint lookup failed"), fmt.Errorf("get mint account: %w", err)
	}
	if info == nil {
		return unresolved(mint.String(), "mint account does not exist"),
			fmt.Errorf("%w: mint %s does not exist", domain.ErrInvalidTokenIdentifier, mint)
	}
	m, err := solana.ParseMint(info.Data)
	if err != nil {
		return unresolved(mint.String(), "account is not a mint"),
			fmt.Errorf("%w: %s is not a mint: %v", domain.ErrInvalidTokenIdentifier, mint, err)
	}

	route := domain.VenueRoute{
		Token:      mint.String(),
		Kind:       domain.VenueAggregator,
		Decimals:   m.Decimals,
		ResolvedAt: r.now(),
	}

	curve, err := pumpfun.DeriveBondingCurve(mint)
	if err != nil {
		return route, err
	}
	curveInfo, err := r.chain.GetAccountInfo(ctx, curve.String())
	if err != nil {
		return unresolved(mint.String(), "curve lookup failed"), fmt.Errorf("get curve account: %w", err)
	}
	if curveInfo == nil || curveInfo.Owner != pumpfun.ProgramID.String() {
		route.Justification = "no bonding curve account"
		return route, nil
	}
	route.CurveAddress = curve.String()

	graduated, why := r.graduation(ctx, mint.String(), curveInfo)
	route.Graduated = graduated

	switch {
	case forceAggregator:
		route.Graduated = true
		route.Justification = "re-routed to aggregator after curve failure; " + why
	case graduated:
		route.Justification = "curve complete, trading on aggregator; " + why
	default:
		route.Kind = domain.VenueBondingCurve
		route.Justification = "active bonding curve; " + why
	}
	return route, nil
}

// graduation combines the on-chain complete flag with the metadata source.
// On-chain state wins whenever it can be decoded.
func (r *Router) graduation(ctx context.Context, mint string, curveInfo *solana.AccountInfo) (bool, string) {
	var meta *CoinMetadata
	if r.metadata != nil {
		var err error
		meta, err = r.metadata.Coin(ctx, mint)
		if err != nil {
			level := r.log.Warn()
			if errors.Is(err, domain.ErrNotFound) {
				level = r.log.Debug()
			}
			level.Err(err).Str("mint", mint).Msg("metadata unavailable")
			meta = nil
		}
	}

	state, err := pumpfun.DecodeCurveStateBase64(curveInfo.Data)
	if err != nil {
		r.log.Warn().Err(err).Str("mint", mint).Msg("undecodable curve account")
		if meta != nil {
			return meta.Complete, "complete flag from metadata"
		}
		return false, "curve undecodable, assuming active"
	}

	if meta != nil && meta.Complete != state.Complete {
		r.metrics.RecordMetadataConflict()
		r.log.Warn().
			Str("mint", mint).
			Bool("onchain_complete", state.Complete).
			Bool("metadata_complete", meta.Complete).
			Msg("metadata disagrees with chain")
		return state.Complete, "on-chain complete flag overrides metadata"
	}
	if meta != nil {
		return state.Complete, "chain and metadata agree"
	}
	return state.Complete, "on-chain complete flag"
}

func unresolved(token, why string) domain.VenueRoute {
	return domain.VenueRoute{Token: token, Kind: domain.VenueUnresolved, Justification: why}
}
