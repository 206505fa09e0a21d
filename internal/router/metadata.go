package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"solana-trade-executor/internal/domain"
)

// DefaultMetadataURL is the pump.fun frontend API.
const DefaultMetadataURL = "https://frontend-api.pump.fun"

// CoinMetadata is the subset of the pump.fun coin document the router reads.
type CoinMetadata struct {
	Mint        string `json:"mint"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Complete    bool   `json:"complete"`
	RaydiumPool string `json:"raydium_pool"`
}

// MetadataSource looks up advisory token metadata.
type MetadataSource interface {
	Coin(ctx context.Context, mint string) (*CoinMetadata, error)
}

// MetadataClient fetches coin documents over REST.
type MetadataClient struct {
	Base string
	HTTP *http.Client
}

// NewMetadataClient creates a client for base. An empty base uses
// DefaultMetadataURL.
func NewMetadataClient(base string, timeout time.Duration) *MetadataClient {
	if base == "" {
		base = DefaultMetadataURL
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &MetadataClient{
		Base: strings.TrimRight(base, "/"),
		HTTP: &http.Client{Timeout: timeout},
	}
}

// Coin fetches GET {base}/coins/{mint}. A 404 is domain.ErrNotFound.
func (c *MetadataClient) Coin(ctx context.Context, mint string) (*CoinMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+"/coins/"+url.PathEscape(mint), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("coin %s: %w", mint, domain.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("metadata status %d", resp.StatusCode)
	}

	var out CoinMetadata
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &out, nil
}
