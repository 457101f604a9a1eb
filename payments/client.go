package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/finwire/payflow/core/logger"
)

const (
	defaultDialTimeout     = 5 * time.Second
	defaultTLSHandshake    = 5 * time.Second
	defaultIdleConnTimeout = 30 * time.Second
	defaultResponseTimeout = 10 * time.Second
	defaultClientTimeout   = 30 * time.Second
	defaultKeepAlive       = 30 * time.Second

	maxErrorBody = 8 << 10
)

// Client talks to the payments API. Submission calls are never retried;
// every request carries a fresh Idempotency-Key so the server can reject
// accidental duplicates.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a payments client for the given base URL and API key.
// A non-positive timeout falls back to the default.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: buildTransport(),
		},
	}
}

func buildTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: defaultResponseTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// CreateBeneficiary registers a new payout destination.
func (c *Client) CreateBeneficiary(ctx context.Context, req BeneficiaryRequest) (Receipt, error) {
	return c.submit(ctx, http.MethodPost, "/v1/beneficiaries", req)
}

// UpdateBeneficiary replaces the beneficiary identified by id.
func (c *Client) UpdateBeneficiary(ctx context.Context, id string, req BeneficiaryRequest) (Receipt, error) {
	return c.submit(ctx, http.MethodPut, "/v1/beneficiaries/"+id, req)
}

// WalletTransfer moves funds to a beneficiary's wallet.
func (c *Client) WalletTransfer(ctx context.Context, req WalletTransferRequest) (Receipt, error) {
	return c.submit(ctx, http.MethodPost, "/v1/transfers/wallet", req)
}

// EmailTransfer sends funds addressed by recipient email.
func (c *Client) EmailTransfer(ctx context.Context, req EmailTransferRequest) (Receipt, error) {
	return c.submit(ctx, http.MethodPost, "/v1/transfers/email", req)
}

// OfframpTransfer pays out to a beneficiary's bank account.
func (c *Client) OfframpTransfer(ctx context.Context, req OfframpTransferRequest) (Receipt, error) {
	return c.submit(ctx, http.MethodPost, "/v1/transfers/offramp", req)
}

// InitiateDeposit starts an inbound funding operation.
func (c *Client) InitiateDeposit(ctx context.Context, req DepositRequest) (Receipt, error) {
	return c.submit(ctx, http.MethodPost, "/v1/deposits", req)
}

func (c *Client) submit(ctx context.Context, method, path string, payload any) (Receipt, error) {
	started := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("payments: encode %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("payments: build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Error(ctx, "payments", "api.request",
			slog.String("status", "fail"),
			slog.String("op", method+" "+path),
			slog.Duration("duration", logger.Took(started)),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return Receipt{}, fmt.Errorf("payments: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp)
		logger.Warn(ctx, "payments", "api.request",
			slog.String("status", "fail"),
			slog.String("op", method+" "+path),
			slog.Int("http_code", resp.StatusCode),
			slog.Duration("duration", logger.Took(started)),
			slog.String("err", logger.SanitizeLimit(apiErr.Error(), 256)),
		)
		return Receipt{}, apiErr
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return Receipt{}, fmt.Errorf("payments: decode response %s: %w", path, err)
	}

	logger.Info(ctx, "payments", "api.request",
		slog.String("status", "ok"),
		slog.String("op", method+" "+path),
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", logger.Took(started)),
		slog.String("receipt_id", receipt.ID),
	)
	return receipt, nil
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{HTTPCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	// Best effort: a non-JSON error body leaves only the HTTP code.
	_ = json.Unmarshal(raw, apiErr)
	apiErr.Message = logger.SanitizeLimit(apiErr.Message, 512)
	return apiErr
}
