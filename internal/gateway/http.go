package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient talks to a gateway exposing a JSON API:
//
//	POST {base}/payments          -> Checkout
//	GET  {base}/payments/{ref}    -> Status
//	POST {base}/payouts           -> {"external_reference": "..."}
//
// Payouts carry the withdrawal transaction reference as Idempotency-Key; the
// gateway must answer a repeated key with the original payout.
type HTTPClient struct {
	base   string
	apiKey string
	hc     *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		base:   strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		hc:     &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) InitiatePayment(ctx context.Context, req PaymentRequest) (Checkout, error) {
	var out Checkout
	if _, err := c.do(ctx, http.MethodPost, "/payments", "", req, &out); err != nil {
		return Checkout{}, err
	}
	if out.CheckoutURL == "" {
		return Checkout{}, errors.New("gateway returned no checkout url")
	}
	return out, nil
}

func (c *HTTPClient) PaymentStatus(ctx context.Context, reference string) (Status, error) {
	var out Status
	raw, err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(reference), "", nil, &out)
	if err != nil {
		return Status{}, err
	}
	out.Raw = raw
	if out.Reference == "" {
		out.Reference = reference
	}
	return out, nil
}

func (c *HTTPClient) SendPayout(ctx context.Context, in PayoutInstruction) (string, error) {
	var out struct {
		ExternalReference string `json:"external_reference"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/payouts", in.Reference, in, &out); err != nil {
		return "", err
	}
	return out.ExternalReference, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, idempotencyKey string, body, out any) (json.RawMessage, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrUnavailable, method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("gateway rejected %s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return raw, nil
}
