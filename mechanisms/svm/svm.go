// Package svm implements the exact payment scheme for Solana networks by
// building the transfer transaction locally and driving a connected
// wallet's transaction signing capability.
package svm

import (
	"context"
	"encoding/base64"
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	walletbridge "github.com/x402wallet/walletbridge"
)

// SchemeExact is the scheme identifier implemented by this package.
const SchemeExact = "exact"

// DefaultComputeUnitPrice is the priority fee attached to payment
// transactions, in micro-lamports per compute unit.
const DefaultComputeUnitPrice uint64 = 1000

// signatureLength is the Ed25519 signature size on the Solana wire format.
const signatureLength = 64

// NetworkConfig carries per-network RPC defaults.
type NetworkConfig struct {
	RPCURL string
}

var networkConfigs = map[walletbridge.Network]NetworkConfig{
	"solana":        {RPCURL: "https://api.mainnet-beta.solana.com"},
	"solana-devnet": {RPCURL: "https://api.devnet.solana.com"},
}

// GetNetworkConfig resolves a Solana network name to its configuration.
func GetNetworkConfig(network walletbridge.Network) (NetworkConfig, error) {
	config, ok := networkConfigs[network]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("%w: %s", walletbridge.ErrUnsupportedNetwork, network)
	}
	return config, nil
}

// ClientConfig overrides per-network defaults. The RPC endpoint is an
// input here, never inferred from wallet state.
type ClientConfig struct {
	RPCURL string
}

// ClientSvmSigner is the wallet capability surface this mechanism needs.
// SignTransaction fills the signer's signature slot in place.
type ClientSvmSigner interface {
	Address(ctx context.Context) (solana.PublicKey, error)
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// EncodeForSigning reconstructs a signable wire-format transaction from
// raw message bytes: a one-byte signature count (compact-u16, valid for
// fewer than 128 signers) followed by one zeroed 64-byte slot per expected
// signer, then the message. Wallets fill the slots and return the same
// layout.
func EncodeForSigning(messageBytes []byte, numSigners int) []byte {
	wire := make([]byte, 1+numSigners*signatureLength+len(messageBytes))
	wire[0] = byte(numSigners)
	copy(wire[1+numSigners*signatureLength:], messageBytes)
	return wire
}

// DecodeSignedWire splits a signed wire-format transaction back into its
// signatures and message bytes.
func DecodeSignedWire(wire []byte) ([]solana.Signature, []byte, error) {
	if len(wire) == 0 {
		return nil, nil, fmt.Errorf("empty transaction bytes")
	}
	numSigners := int(wire[0])
	if numSigners >= 128 {
		return nil, nil, fmt.Errorf("unsupported signature count: %d", numSigners)
	}
	headerLen := 1 + numSigners*signatureLength
	if len(wire) < headerLen {
		return nil, nil, fmt.Errorf("truncated transaction: %d bytes for %d signers", len(wire), numSigners)
	}

	signatures := make([]solana.Signature, numSigners)
	for i := 0; i < numSigners; i++ {
		copy(signatures[i][:], wire[1+i*signatureLength:1+(i+1)*signatureLength])
	}
	return signatures, wire[headerLen:], nil
}

// EncodeTransaction serializes a transaction to base64 for the payload.
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	data, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to marshal transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
