// Package wallet implements the page-context side of the bridge: provider
// discovery and the capability executor that drives whichever wallet
// objects the page exposes.
package wallet

import (
	"context"
	"encoding/json"
)

// EvmProvider is the EIP-1193 request surface of an EVM wallet object.
// Errors raised by the provider are surfaced verbatim, never translated.
type EvmProvider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// SolanaProvider is the capability set of a Solana wallet object.
// SignAllTransactions consumes and produces full wire-format transaction
// bytes (signature slots followed by the message).
type SolanaProvider interface {
	Connect(ctx context.Context) (publicKey string, err error)
	Disconnect(ctx context.Context) error
	SignMessage(ctx context.Context, message []byte) (signature []byte, err error)
	SignAllTransactions(ctx context.Context, transactions [][]byte) ([][]byte, error)
}

// ProviderInfo identifies an announced EVM wallet, keyed by its stable
// reverse-DNS identifier.
type ProviderInfo struct {
	RDNS string `json:"rdns"`
	UUID string `json:"uuid,omitempty"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}
