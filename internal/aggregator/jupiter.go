// Package aggregator fetches quotes and ready-to-sign swap transactions from
// the Jupiter v6 API.
package aggregator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"solana-trade-executor/internal/domain"
)

// DefaultBaseURL is the public Jupiter API.
const DefaultBaseURL = "https://quote-api.jup.ag"

// Client talks to Jupiter.
type Client struct {
	Base string
	HTTP *http.Client
	log  zerolog.Logger
}

// New creates a client. An empty base uses DefaultBaseURL.
func New(base string, timeout time.Duration, log zerolog.Logger) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		Base: strings.TrimRight(base, "/"),
		HTTP: &http.Client{Timeout: timeout},
		log:  log.With().Str("component", "jupiter").Logger(),
	}
}

// QuoteRequest is an exact-in quote.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // base units of InputMint
	SlippageBps uint16
}

// Quote is a Jupiter quote. Raw keeps the original document, which the swap
// endpoint expects back unchanged.
type Quote struct {
	InputMint      string          `json:"inputMint"`
	OutputMint     string          `json:"outputMint"`
	InAmount       string          `json:"inAmount"`
	OutAmount      string          `json:"outAmount"`
	OtherAmount    string          `json:"otherAmountThreshold"`
	SlippageBps    int             `json:"slippageBps"`
	PriceImpactPct string          `json:"priceImpactPct"`
	RoutePlan      json.RawMessage `json:"routePlan"`
	Raw            json.RawMessage `json:"-"`
}

// In returns InAmount as base units.
func (q *Quote) In() (uint64, error) { return strconv.ParseUint(q.InAmount, 10, 64) }

// Out returns OutAmount as base units.
func (q *Quote) Out() (uint64, error) { return strconv.ParseUint(q.OutAmount, 10, 64) }

// MinOut returns the slippage-adjusted threshold as base units.
func (q *Quote) MinOut() (uint64, error) { return strconv.ParseUint(q.OtherAmount, 10, 64) }

type apiError struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// Quote fetches GET {base}/v6/quote. No route is domain.ErrNotFound.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.Amount == 0 {
		return nil, fmt.Errorf("%w: zero amount", domain.ErrInvalidInput)
	}
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(int(req.SlippageBps)))
	q.Set("onlyDirectRoutes", "false")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+"/v6/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	raw, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var out Quote
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	out.Raw = raw
	return &out, nil
}

// Swap is a ready-to-sign swap transaction.
type Swap struct {
	Tx                   *solanago.Transaction
	LastValidBlockHeight uint64
	PriorityFeeLamports  uint64
}

// SwapTransaction asks Jupiter to build the transaction for quote, paid and
// signed by user.
func (c *Client) SwapTransaction(ctx context.Context, quote *Quote, user solanago.PublicKey, priorityFeeLamports uint64) (*Swap, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return nil, fmt.Errorf("%w: swap needs a fetched quote", domain.ErrInvalidInput)
	}
	payload := map[string]any{
		"userPublicKey":             user.String(),
		"wrapAndUnwrapSol":          true,
		"asLegacyTransaction":       false,
		"useTokenLedger":            false,
		"dynamicComputeUnitLimit":   true,
		"prioritizationFeeLamports": priorityFeeLamports,
		"quoteResponse":             quote.Raw,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+"/v6/swap", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	raw, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var sr struct {
		SwapTransaction           string `json:"swapTransaction"` // base64, unsigned
		LastValidBlockHeight      uint64 `json:"lastValidBlockHeight"`
		PrioritizationFeeLamports uint64 `json:"prioritizationFeeLamports"`
	}
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("decode swap: %w", err)
	}

	tx, err := DecodeTransaction(sr.SwapTransaction)
	if err != nil {
		return nil, err
	}
	c.log.Debug().
		Str("input", quote.InputMint).
		Str("output", quote.OutputMint).
		Str("in", quote.InAmount).
		Str("out", quote.OutAmount).
		Msg("swap transaction built")

	return &Swap{
		Tx:                   tx,
		LastValidBlockHeight: sr.LastValidBlockHeight,
		PriorityFeeLamports:  sr.PrioritizationFeeLamports,
	}, nil
}

// DecodeTransaction decodes a base64 wire transaction.
func DecodeTransaction(b64 string) (*solanago.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode tx: %w", err)
	}
	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal tx: %w", err)
	}
	return tx, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jupiter %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("jupiter %s: read body: %w", req.URL.Path, err)
	}
	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	var ae apiError
	_ = json.Unmarshal(body, &ae)
	if ae.ErrorCode == "COULD_NOT_FIND_ANY_ROUTE" || ae.ErrorCode == "TOKEN_NOT_TRADABLE" {
		return nil, fmt.Errorf("jupiter %s: %s: %w", req.URL.Path, ae.Error, domain.ErrNotFound)
	}
	if ae.Error != "" {
		return nil, fmt.Errorf("jupiter %s status %d: %s", req.URL.Path, resp.StatusCode, ae.Error)
	}
	return nil, fmt.Errorf("jupiter %s status %d", req.URL.Path, resp.StatusCode)
}
