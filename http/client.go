// Package http carries x402 payments over HTTP: probing resources for 402
// challenges and retrying requests with a signed payment header attached.
package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	walletbridge "github.com/x402wallet/walletbridge"
)

// PaymentHeader is the request header carrying the signed payment.
const PaymentHeader = "X-Payment"

// SettleReceiptHeader is the response header carrying the settlement
// receipt on a successful paid request.
const SettleReceiptHeader = "X-Payment-Response"

// Discovery is the outcome of probing a resource. A non-402 response
// yields an empty Requirements slice with the response preserved, so
// callers can treat free resources uniformly.
type Discovery struct {
	X402Version  int
	Requirements []walletbridge.PaymentRequirement
	StatusCode   int
	RawBody      []byte
	Header       http.Header
}

// PaymentRequired reports whether the probe hit a paywall.
func (d Discovery) PaymentRequired() bool {
	return d.StatusCode == http.StatusPaymentRequired && len(d.Requirements) > 0
}

// SettlementResult is the outcome of a paid request.
type SettlementResult struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	Receipt    *walletbridge.SettleReceipt
}

// RetryContext carries flow state into FetchWithPayment. AlreadyPaid is
// the caller's acknowledgment that the attached credential was minted
// for this request and is spent by the send; FetchWithPayment refuses
// to transmit without it.
type RetryContext struct {
	AlreadyPaid bool
}

// Discover issues the request described by spec against url and parses a
// 402 challenge body if one comes back. Any other status is returned
// as-is with no requirements.
func Discover(ctx context.Context, client *http.Client, url string, spec walletbridge.RequestSpec) (Discovery, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := buildRequest(ctx, url, spec)
	if err != nil {
		return Discovery{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return Discovery{}, fmt.Errorf("discovery request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Discovery{}, fmt.Errorf("failed to read discovery response: %w", err)
	}

	discovery := Discovery{
		StatusCode: resp.StatusCode,
		RawBody:    body,
		Header:     resp.Header,
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return discovery, nil
	}

	required, err := walletbridge.ParsePaymentRequired(body)
	if err != nil {
		return Discovery{}, fmt.Errorf("malformed 402 challenge: %w", err)
	}
	discovery.X402Version = required.X402Version
	discovery.Requirements = required.Accepts
	return discovery, nil
}

// FetchWithPayment replays the request with the payment header attached
// and decodes the settlement receipt. A second 402 is not re-entered: the
// result carries the status for the caller to surface. The credential is
// spent on the first attempt regardless of outcome, so there is exactly
// one send per minted header.
func FetchWithPayment(
	ctx context.Context,
	client *http.Client,
	url string,
	spec walletbridge.RequestSpec,
	paymentHeader string,
	retry RetryContext,
) (SettlementResult, error) {
	if !retry.AlreadyPaid {
		return SettlementResult{}, fmt.Errorf("refusing to send an unacknowledged payment credential")
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := buildRequest(ctx, url, spec)
	if err != nil {
		return SettlementResult{}, err
	}
	req.Header.Set(PaymentHeader, paymentHeader)
	req.Header.Set("Access-Control-Expose-Headers", SettleReceiptHeader)

	resp, err := client.Do(req)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("payment request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("failed to read payment response: %w", err)
	}

	result := SettlementResult{
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header,
	}
	if receipt, err := DecodeSettleReceipt(resp.Header); err == nil {
		result.Receipt = &receipt
	}
	return result, nil
}

// DecodeSettleReceipt extracts the settlement receipt from a paid
// response's headers.
func DecodeSettleReceipt(header http.Header) (walletbridge.SettleReceipt, error) {
	encoded := header.Get(SettleReceiptHeader)
	if encoded == "" {
		return walletbridge.SettleReceipt{}, fmt.Errorf("no settlement receipt header")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return walletbridge.SettleReceipt{}, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	var receipt walletbridge.SettleReceipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return walletbridge.SettleReceipt{}, fmt.Errorf("invalid settle receipt JSON: %w", err)
	}
	return receipt, nil
}

// EncodeSettleReceipt encodes a receipt for the response header. Servers
// use this; the client side only decodes.
func EncodeSettleReceipt(receipt walletbridge.SettleReceipt) (string, error) {
	data, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settle receipt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func buildRequest(ctx context.Context, url string, spec walletbridge.RequestSpec) (*http.Request, error) {
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}
