package walletbridge

import (
	"encoding/json"
	"strings"
)

// Network is a chain identifier as advertised in x402 payment requirements,
// e.g. "base", "base-sepolia", "solana", "solana-devnet".
type Network string

// Family groups networks by the wallet capability set needed to pay on them.
type Family string

const (
	FamilyEVM     Family = "evm"
	FamilySolana  Family = "solana"
	FamilyUnknown Family = ""
)

var solanaNetworks = map[Network]bool{
	"solana":        true,
	"solana-devnet": true,
}

var evmNetworks = map[Network]bool{
	"base":         true,
	"base-sepolia": true,
}

// Family classifies the network by wallet capability set. Unknown networks
// report FamilyUnknown so callers can fail them explicitly rather than
// guessing a signer.
func (n Network) Family() Family {
	normalized := Network(strings.ToLower(string(n)))
	if solanaNetworks[normalized] || strings.HasPrefix(string(normalized), "solana") {
		return FamilySolana
	}
	if evmNetworks[normalized] {
		return FamilyEVM
	}
	return FamilyUnknown
}

// InputContract describes how the protected resource expects to be called.
// It is the "input" half of a requirement's outputSchema.
type InputContract struct {
	Type       string                 `json:"type,omitempty"`
	Method     string                 `json:"method,omitempty"`
	BodyType   string                 `json:"bodyType,omitempty"`
	BodyFields map[string]interface{} `json:"bodyFields,omitempty"`
}

// OutputSchema carries the resource's declared request/response shape.
type OutputSchema struct {
	Input  *InputContract         `json:"input,omitempty"`
	Output map[string]interface{} `json:"output,omitempty"`
}

// PaymentRequirement is one accepted way to pay for a resource.
// Immutable once parsed; selection chooses an entry, it never mutates one.
type PaymentRequirement struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	PayTo             string                 `json:"payTo"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	Resource          string                 `json:"resource,omitempty"`
	Description       string                 `json:"description,omitempty"`
	MimeType          string                 `json:"mimeType,omitempty"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	OutputSchema      *OutputSchema          `json:"outputSchema,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// TokenName returns the display name of the requirement's asset.
func (r PaymentRequirement) TokenName() string {
	if name, ok := r.Extra["name"].(string); ok && name != "" {
		return name
	}
	if symbol, ok := r.Extra["symbol"].(string); ok && symbol != "" {
		return symbol
	}
	return "Token"
}

// TokenDecimals returns the asset precision, defaulting to 6 (USDC/USDT).
func (r PaymentRequirement) TokenDecimals() int {
	if d, ok := r.Extra["decimals"].(float64); ok {
		return int(d)
	}
	return 6
}

// PaymentRequired is the body of an x402 challenge response.
type PaymentRequired struct {
	X402Version int                  `json:"x402Version"`
	Error       string               `json:"error,omitempty"`
	Accepts     []PaymentRequirement `json:"accepts"`
}

// PaymentPayload is the signed payment authorization produced by a
// mechanism client. Base64-encoded JSON of this struct is the X-Payment
// credential string.
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     Network                `json:"network"`
	Payload     map[string]interface{} `json:"payload"`
}

// SettleReceipt is the decoded X-PAYMENT-RESPONSE header of a settled
// request.
type SettleReceipt struct {
	Success     bool    `json:"success"`
	Transaction string  `json:"transaction,omitempty"`
	Network     Network `json:"network,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	ErrorReason string  `json:"errorReason,omitempty"`
}

// RequestSpec is a transport-neutral description of the HTTP request that
// reaches a protected resource. It stands in for the browser RequestInit
// and survives JSON persistence across flow interruptions.
type RequestSpec struct {
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// Clone returns a deep copy so header merges never mutate a persisted spec.
func (s RequestSpec) Clone() RequestSpec {
	out := RequestSpec{Method: s.Method}
	if s.Headers != nil {
		out.Headers = make(map[string]string, len(s.Headers))
		for k, v := range s.Headers {
			out.Headers[k] = v
		}
	}
	if s.Body != nil {
		out.Body = append(json.RawMessage(nil), s.Body...)
	}
	return out
}

// DeriveRequestSpec builds the retry request from a requirement's declared
// input contract. Resources default to GET; POST is honored when the
// contract names it, carrying a JSON body assembled by the caller.
func DeriveRequestSpec(req PaymentRequirement, body json.RawMessage) RequestSpec {
	spec := RequestSpec{Method: "GET"}
	if req.OutputSchema != nil && req.OutputSchema.Input != nil {
		if strings.EqualFold(req.OutputSchema.Input.Method, "POST") {
			spec.Method = "POST"
			spec.Headers = map[string]string{"Content-Type": "application/json"}
			spec.Body = body
		}
	}
	return spec
}
