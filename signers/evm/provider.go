// Package evm provides a key-backed EVM provider for headless use and
// tests. It answers the same request surface a page wallet exposes, so
// the executor drives it exactly like an injected provider.
package evm

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	walletbridge "github.com/x402wallet/walletbridge"
)

// KeyProvider implements wallet.EvmProvider with a local ECDSA key.
// Chain switching is emulated: chains are recognized only after
// wallet_addEthereumChain, except the initial chain, so the unrecognized
// chain fallback path behaves like a real wallet's.
type KeyProvider struct {
	privateKey *ecdsa.PrivateKey
	address    string

	mu          sync.Mutex
	chainID     string
	knownChains map[string]bool
	txCounter   uint64
}

// NewKeyProvider creates a provider from a hex-encoded private key,
// initially on the given chain ("0x2105" style hex).
func NewKeyProvider(privateKeyHex, chainIDHex string) (*KeyProvider, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if chainIDHex == "" {
		chainIDHex = "0x2105"
	}

	return &KeyProvider{
		privateKey:  privateKey,
		address:     crypto.PubkeyToAddress(privateKey.PublicKey).Hex(),
		chainID:     chainIDHex,
		knownChains: map[string]bool{chainIDHex: true},
	}, nil
}

// Address returns the provider's account address.
func (p *KeyProvider) Address() string {
	return p.address
}

// Request dispatches an EIP-1193 request against the local key.
func (p *KeyProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_requestAccounts", "eth_accounts":
		return json.Marshal([]string{p.address})

	case "eth_chainId":
		p.mu.Lock()
		chainID := p.chainID
		p.mu.Unlock()
		return json.Marshal(chainID)

	case "wallet_switchEthereumChain":
		return p.switchChain(params)

	case "wallet_addEthereumChain":
		return p.addChain(params)

	case "personal_sign":
		return p.personalSign(params)

	case "eth_signTypedData_v4":
		return p.signTypedData(params)

	case "eth_sendTransaction":
		return p.sendTransaction(params)

	default:
		return nil, &walletbridge.ProviderError{
			Code:    -32601,
			Message: fmt.Sprintf("the method %s does not exist", method),
		}
	}
}

func (p *KeyProvider) switchChain(params []any) (json.RawMessage, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("wallet_switchEthereumChain requires a chain parameter")
	}
	chainID, err := chainIDParam(params[0])
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.knownChains[chainID] {
		return nil, &walletbridge.ProviderError{
			Code:    4902,
			Message: fmt.Sprintf("Unrecognized chain ID %q", chainID),
		}
	}
	p.chainID = chainID
	return json.Marshal(nil)
}

func (p *KeyProvider) addChain(params []any) (json.RawMessage, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("wallet_addEthereumChain requires chain parameters")
	}
	chainID, err := chainIDParam(params[0])
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.knownChains[chainID] = true
	p.mu.Unlock()
	return json.Marshal(nil)
}

func (p *KeyProvider) personalSign(params []any) (json.RawMessage, error) {
	if len(params) < 2 {
		return nil, fmt.Errorf("personal_sign requires message and address parameters")
	}
	message, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("personal_sign message must be a string")
	}

	data := []byte(message)
	if decoded, err := hexutil.Decode(message); err == nil {
		data = decoded
	}

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(data), data)
	digest := crypto.Keccak256([]byte(prefixed))

	signature, err := crypto.Sign(digest, p.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	signature[64] += 27
	return json.Marshal(hexutil.Encode(signature))
}

func (p *KeyProvider) signTypedData(params []any) (json.RawMessage, error) {
	if len(params) < 2 {
		return nil, fmt.Errorf("eth_signTypedData_v4 requires address and data parameters")
	}
	dataJSON, ok := params[1].(string)
	if !ok {
		return nil, fmt.Errorf("eth_signTypedData_v4 data must be a JSON string")
	}

	var typedData apitypes.TypedData
	if err := json.Unmarshal([]byte(dataJSON), &typedData); err != nil {
		return nil, fmt.Errorf("malformed typed data: %w", err)
	}
	if _, exists := typedData.Types["EIP712Domain"]; !exists {
		typedData.Types["EIP712Domain"] = []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		}
	}

	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	// EIP-712 digest: 0x19 0x01 <domainSeparator> <dataHash>
	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, dataHash...)
	digest := crypto.Keccak256(rawData)

	signature, err := crypto.Sign(digest, p.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	signature[64] += 27
	return json.Marshal(hexutil.Encode(signature))
}

func (p *KeyProvider) sendTransaction(params []any) (json.RawMessage, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("eth_sendTransaction requires a transaction parameter")
	}
	encoded, err := json.Marshal(params[0])
	if err != nil {
		return nil, fmt.Errorf("malformed transaction: %w", err)
	}

	p.mu.Lock()
	p.txCounter++
	counter := p.txCounter
	p.mu.Unlock()

	// No chain behind this provider, so the hash is derived locally.
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], counter)
	hash := crypto.Keccak256(append(encoded, nonce[:]...))
	return json.Marshal(hexutil.Encode(hash))
}

func chainIDParam(param any) (string, error) {
	switch v := param.(type) {
	case map[string]string:
		return v["chainId"], nil
	case map[string]any:
		chainID, _ := v["chainId"].(string)
		return chainID, nil
	default:
		encoded, err := json.Marshal(param)
		if err != nil {
			return "", fmt.Errorf("malformed chain parameter: %w", err)
		}
		var p struct {
			ChainID string `json:"chainId"`
		}
		if err := json.Unmarshal(encoded, &p); err != nil {
			return "", fmt.Errorf("malformed chain parameter: %w", err)
		}
		return p.ChainID, nil
	}
}
