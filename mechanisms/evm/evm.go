// Package evm implements the exact payment scheme for EVM networks by
// driving a connected wallet's typed-data signing capability.
package evm

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	walletbridge "github.com/x402wallet/walletbridge"
)

// SchemeExact is the scheme identifier implemented by this package.
const SchemeExact = "exact"

// TypedDataDomain is the EIP-712 domain separator.
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField is one field of an EIP-712 struct type.
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ClientEvmSigner is the wallet capability surface this mechanism needs:
// an account address and typed-data signing. The bridge-backed remote
// wallet and the key-backed local signer both satisfy it.
type ClientEvmSigner interface {
	Address(ctx context.Context) (string, error)
	SignTypedData(
		ctx context.Context,
		domain TypedDataDomain,
		types map[string][]TypedDataField,
		primaryType string,
		message map[string]interface{},
	) ([]byte, error)
}

// ChainSwitcher is optionally implemented by signers whose active chain
// must match the requirement before signing (browser wallets). Key-backed
// signers have no active chain and skip this.
type ChainSwitcher interface {
	SwitchChain(ctx context.Context, chainIDHex string) error
}

// chainIDsByNetwork maps x402 network names to EVM chain ids.
var chainIDsByNetwork = map[walletbridge.Network]*big.Int{
	"base":         big.NewInt(8453),
	"base-sepolia": big.NewInt(84532),
}

// ChainID resolves an EVM network name to its chain id.
func ChainID(network walletbridge.Network) (*big.Int, error) {
	id, ok := chainIDsByNetwork[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", walletbridge.ErrUnsupportedNetwork, network)
	}
	return id, nil
}

// ChainIDHex resolves an EVM network name to its hex chain id string.
func ChainIDHex(network walletbridge.Network) (string, error) {
	id, err := ChainID(network)
	if err != nil {
		return "", err
	}
	return hexutil.EncodeBig(id), nil
}

// NetworkForChainID is the reverse mapping, used to infer the wallet's
// network from its reported chain id.
func NetworkForChainID(chainIDHex string) (walletbridge.Network, bool) {
	id, err := hexutil.DecodeBig(chainIDHex)
	if err != nil {
		return "", false
	}
	for network, known := range chainIDsByNetwork {
		if known.Cmp(id) == 0 {
			return network, true
		}
	}
	return "", false
}

// CreateNonce returns a random 32-byte hex nonce for an EIP-3009
// authorization.
func CreateNonce() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to create nonce: %w", err)
	}
	return hexutil.Encode(buf[:]), nil
}
