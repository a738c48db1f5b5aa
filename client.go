package walletbridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// SchemeExact is the only scheme this client implements.
const SchemeExact = "exact"

// ProtocolVersion is the x402 protocol version spoken by default.
const ProtocolVersion = 1

// SchemeNetworkClient is implemented by network-family payment mechanisms.
// A mechanism turns one chosen requirement into a signed payment payload by
// driving the connected wallet.
type SchemeNetworkClient interface {
	Scheme() string
	CreatePaymentPayload(ctx context.Context, version int, requirements PaymentRequirement) (PaymentPayload, error)
}

// Client routes requirement selection and credential creation to the
// mechanism registered for each network family.
type Client struct {
	mu sync.RWMutex

	// family -> scheme -> mechanism
	schemes map[Family]map[string]SchemeNetworkClient
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithScheme registers a payment mechanism at creation time.
func WithScheme(family Family, client SchemeNetworkClient) ClientOption {
	return func(c *Client) {
		c.RegisterScheme(family, client)
	}
}

// NewClient creates a new payment client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		schemes: make(map[Family]map[string]SchemeNetworkClient),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterScheme registers a payment mechanism for a network family.
func (c *Client) RegisterScheme(family Family, client SchemeNetworkClient) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schemes[family] == nil {
		c.schemes[family] = make(map[string]SchemeNetworkClient)
	}
	c.schemes[family][client.Scheme()] = client
	return c
}

// SelectRequirement deterministically picks one requirement the connected
// wallet can pay: it must be network-compatible with one of walletNetworks,
// match the requested scheme, and have a registered mechanism. Ties break
// by array order, so a wallet exposing several networks (a Solana signer
// nominally supports mainnet and devnet) gets the first compatible entry.
//
// Returns the chosen requirement and its index in the input slice.
func (c *Client) SelectRequirement(requirements []PaymentRequirement, walletNetworks []Network, scheme string) (PaymentRequirement, int, error) {
	if scheme == "" {
		scheme = SchemeExact
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for i, req := range requirements {
		if req.Scheme != scheme {
			continue
		}
		if !networkCompatible(req.Network, walletNetworks) {
			continue
		}
		schemeMap := c.schemes[req.Network.Family()]
		if schemeMap == nil {
			continue
		}
		if _, ok := schemeMap[scheme]; !ok {
			continue
		}
		return req, i, nil
	}

	return PaymentRequirement{}, -1, fmt.Errorf("%w: scheme=%s networks=%v", ErrNoMatchingRequirement, scheme, walletNetworks)
}

func networkCompatible(network Network, walletNetworks []Network) bool {
	// An empty wallet network list means the wallet did not constrain
	// itself; any network with a registered mechanism is acceptable.
	if len(walletNetworks) == 0 {
		return true
	}
	for _, wn := range walletNetworks {
		if wn == network {
			return true
		}
	}
	return false
}

// CreatePaymentHeader builds the X-Payment credential for a chosen
// requirement by routing to the mechanism registered for its network
// family. The result is opaque to callers except for ParseValidBefore.
func (c *Client) CreatePaymentHeader(ctx context.Context, version int, requirement PaymentRequirement) (string, error) {
	family := requirement.Network.Family()
	if family == FamilyUnknown {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedNetwork, requirement.Network)
	}

	c.mu.RLock()
	schemeMap := c.schemes[family]
	var mechanism SchemeNetworkClient
	if schemeMap != nil {
		mechanism = schemeMap[requirement.Scheme]
	}
	c.mu.RUnlock()

	if mechanism == nil {
		return "", fmt.Errorf("%w: no mechanism for scheme %s on %s", ErrUnsupportedNetwork, requirement.Scheme, requirement.Network)
	}

	payload, err := mechanism.CreatePaymentPayload(ctx, version, requirement)
	if err != nil {
		return "", fmt.Errorf("failed to create payment payload: %w", err)
	}

	return EncodePaymentHeader(payload)
}

// EncodePaymentHeader serializes a payment payload into the base64
// X-Payment header string.
func EncodePaymentHeader(payload PaymentPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentHeader parses a base64 X-Payment header string.
func DecodePaymentHeader(header string) (PaymentPayload, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return PaymentPayload{}, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return PaymentPayload{}, fmt.Errorf("invalid payment payload JSON: %w", err)
	}
	return payload, nil
}

// ParseValidBefore extracts the authorization expiry (Unix seconds) embedded
// in a credential. Returns ok=false when the payload carries none, as with
// Solana transaction payloads.
func ParseValidBefore(header string) (int64, bool) {
	payload, err := DecodePaymentHeader(header)
	if err != nil {
		return 0, false
	}

	auth, ok := payload.Payload["authorization"].(map[string]interface{})
	if !ok {
		return 0, false
	}

	switch v := auth["validBefore"].(type) {
	case string:
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return sec, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
