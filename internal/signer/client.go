package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mtlprog/kosh/internal/domain"
)

const (
	// DefaultSignTimeout bounds a signing call; the signer may need consensus.
	DefaultSignTimeout = 60 * time.Second
	// DefaultKeyTimeout bounds a public key lookup.
	DefaultKeyTimeout = 15 * time.Second

	methodSign      = "sign_transaction_stellar"
	methodPublicKey = "public_key_stellar"

	identityHeader = "X-Signer-Identity"
)

// Client calls the remote signing authority over its JSON RPC gateway.
// Every call is POST {base}/rpc/{method} with {"args": [...]} and answers
// {"Ok": value} or {"Err": reason}.
type Client struct {
	baseURL     string
	identity    string
	httpClient  *http.Client
	signTimeout time.Duration
	keyTimeout  time.Duration
}

// NewClient creates a signer client. Non-positive timeouts fall back to the defaults.
func NewClient(baseURL string, signTimeout, keyTimeout time.Duration) *Client {
	if signTimeout <= 0 {
		signTimeout = DefaultSignTimeout
	}
	if keyTimeout <= 0 {
		keyTimeout = DefaultKeyTimeout
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{},
		signTimeout: signTimeout,
		keyTimeout:  keyTimeout,
	}
}

// WithIdentity returns a copy of the client that acts for the given identity.
func (c *Client) WithIdentity(identity string) *Client {
	cp := *c
	cp.identity = identity
	return &cp
}

// Identity returns the identity the client acts for.
func (c *Client) Identity() string {
	return c.identity
}

// Sign asks the signer to sign envelopeXDR for address on network and
// returns the signed envelope. The caller's identity is attached by the gateway.
func (c *Client) Sign(ctx context.Context, address, envelopeXDR string, network domain.Network) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.signTimeout)
	defer cancel()

	signed, err := c.call(ctx, methodSign, address, envelopeXDR, string(network))
	if err != nil {
		return "", err
	}
	if signed == "" {
		return "", fmt.Errorf("%w: empty signed envelope", domain.ErrSigningRejected)
	}

	slog.Info("signer: envelope signed", "address", address, "network", network)
	return signed, nil
}

// PublicKey resolves the Stellar address controlled by the client's identity.
func (c *Client) PublicKey(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.keyTimeout)
	defer cancel()

	address, err := c.call(ctx, methodPublicKey)
	if err != nil {
		return "", err
	}
	if err := domain.ValidateAccountAddress(address); err != nil {
		return "", fmt.Errorf("%w: signer returned malformed address %q", domain.ErrSigningRejected, address)
	}
	return address, nil
}

func (c *Client) call(ctx context.Context, method string, args ...string) (string, error) {
	payload, err := json.Marshal(map[string][]string{"args": args})
	if err != nil {
		return "", fmt.Errorf("encoding %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+method, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: creating %s request: %v", domain.ErrSigningUnavailable, method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.identity != "" {
		req.Header.Set(identityHeader, c.identity)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s timed out", domain.ErrSigningUnavailable, method)
		}
		return "", fmt.Errorf("%w: %s: %v", domain.ErrSigningUnavailable, method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s response: %v", domain.ErrSigningUnavailable, method, err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: %s returned HTTP %d", domain.ErrSigningUnavailable, method, resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("%w: %s returned HTTP %d: %s", domain.ErrSigningRejected, method, resp.StatusCode, reason(body))
	}

	if errResult := gjson.GetBytes(body, "Err"); errResult.Exists() {
		slog.Warn("signer: request rejected", "method", method, "reason", errResult.String())
		return "", fmt.Errorf("%w: %s", domain.ErrSigningRejected, errResult.String())
	}
	ok := gjson.GetBytes(body, "Ok")
	if !ok.Exists() {
		return "", fmt.Errorf("%w: %s returned neither Ok nor Err", domain.ErrSigningRejected, method)
	}
	return ok.String(), nil
}

func reason(body []byte) string {
	if r := gjson.GetBytes(body, "Err"); r.Exists() {
		return r.String()
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
