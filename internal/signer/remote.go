package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"solana-trade-executor/internal/domain"
)

// RemoteConfig points at a custodial signing service.
type RemoteConfig struct {
	URL       string
	Token     string
	PublicKey string
	Timeout   time.Duration
}

// Remote asks a custodial service to sign and verifies what comes back.
type Remote struct {
	base     string
	token    string
	pub      solanago.PublicKey
	http     *http.Client
	balances BalanceReader
	log      zerolog.Logger
}

// NewRemote validates cfg and creates a remote signer.
func NewRemote(cfg RemoteConfig, balances BalanceReader, log zerolog.Logger) (*Remote, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: remote signer url required", domain.ErrInvalidInput)
	}
	pub, err := solanago.PublicKeyFromBase58(cfg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: remote signer public key: %v", domain.ErrInvalidInput, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{
		base:     strings.TrimRight(cfg.URL, "/"),
		token:    cfg.Token,
		pub:      pub,
		http:     &http.Client{Timeout: timeout},
		balances: balances,
		log:      log.With().Str("component", "remote_signer").Logger(),
	}, nil
}

func (s *Remote) Kind() Kind { return KindRemote }

func (s *Remote) PublicKey() solanago.PublicKey { return s.pub }

type signRequest struct {
	PublicKey string `json:"public_key"`
	Message   string `json:"message"`
}

type signResponse struct {
	Signature string `json:"signature"`
}

func (s *Remote) SignTransaction(ctx context.Context, tx *solanago.Transaction) error {
	msg, err := messageBytes(tx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(signRequest{
		PublicKey: s.pub.String(),
		Message:   base64.StdEncoding.EncodeToString(msg),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/v1/sign", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: signer status %d: %s", domain.ErrSigningFailed, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out signResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrSigningFailed, err)
	}
	sig, err := solanago.SignatureFromBase58(out.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature: %v", domain.ErrSigningFailed, err)
	}
	if !sig.Verify(s.pub, msg) {
		return fmt.Errorf("%w: returned signature does not verify", domain.ErrSigningFailed)
	}

	s.log.Debug().Dur("elapsed", time.Since(start)).Msg("remote signature received")
	return attachSignature(tx, s.pub, sig)
}

func (s *Remote) Balance(ctx context.Context) (uint64, error) {
	return balanceOf(ctx, s.balances, s.pub)
}
