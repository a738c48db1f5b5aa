package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	walletbridge "github.com/x402wallet/walletbridge"
)

// ExactEIP3009Authorization is the TransferWithAuthorization message signed
// by the payer. Numeric fields are decimal strings as required on the wire.
type ExactEIP3009Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactEvmClient implements walletbridge.SchemeNetworkClient for the exact
// scheme on EVM networks. Before signing it aligns the wallet's active
// chain with the requirement when the signer supports switching.
type ExactEvmClient struct {
	signer ClientEvmSigner
}

// NewExactEvmClient creates a new ExactEvmClient.
func NewExactEvmClient(signer ClientEvmSigner) *ExactEvmClient {
	return &ExactEvmClient{signer: signer}
}

// Scheme returns the scheme identifier.
func (c *ExactEvmClient) Scheme() string {
	return SchemeExact
}

// CreatePaymentPayload builds and signs an EIP-3009 authorization for the
// chosen requirement.
func (c *ExactEvmClient) CreatePaymentPayload(
	ctx context.Context,
	version int,
	requirements walletbridge.PaymentRequirement,
) (walletbridge.PaymentPayload, error) {
	chainID, err := ChainID(requirements.Network)
	if err != nil {
		return walletbridge.PaymentPayload{}, err
	}

	// Browser wallets sign on whatever chain is active; align it first.
	if switcher, ok := c.signer.(ChainSwitcher); ok {
		hexID := hexutil.EncodeBig(chainID)
		if err := switcher.SwitchChain(ctx, hexID); err != nil {
			return walletbridge.PaymentPayload{}, fmt.Errorf("failed to switch to %s: %w", requirements.Network, err)
		}
	}

	from, err := c.signer.Address(ctx)
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("failed to resolve signer address: %w", err)
	}

	value, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if !ok {
		return walletbridge.PaymentPayload{}, fmt.Errorf("invalid amount: %s", requirements.MaxAmountRequired)
	}

	nonce, err := CreateNonce()
	if err != nil {
		return walletbridge.PaymentPayload{}, err
	}

	// validAfter is backdated to absorb clock skew; validBefore follows the
	// requirement's timeout, defaulting to 10 minutes.
	now := time.Now().Unix()
	timeout := int64(600)
	if requirements.MaxTimeoutSeconds > 0 {
		timeout = int64(requirements.MaxTimeoutSeconds)
	}
	validAfter := big.NewInt(now - 600)
	validBefore := big.NewInt(now + timeout)

	authorization := ExactEIP3009Authorization{
		From:        from,
		To:          requirements.PayTo,
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       nonce,
	}

	signature, err := c.signAuthorization(ctx, authorization, chainID, requirements)
	if err != nil {
		return walletbridge.PaymentPayload{}, fmt.Errorf("failed to sign authorization: %w", err)
	}

	return walletbridge.PaymentPayload{
		X402Version: version,
		Scheme:      SchemeExact,
		Network:     requirements.Network,
		Payload: map[string]interface{}{
			"signature": hexutil.Encode(signature),
			"authorization": map[string]interface{}{
				"from":        authorization.From,
				"to":          authorization.To,
				"value":       authorization.Value,
				"validAfter":  authorization.ValidAfter,
				"validBefore": authorization.ValidBefore,
				"nonce":       authorization.Nonce,
			},
		},
	}, nil
}

// signAuthorization signs the EIP-3009 authorization via EIP-712 typed
// data. Token name/version come from the requirement's extra, falling back
// to the USDC defaults.
func (c *ExactEvmClient) signAuthorization(
	ctx context.Context,
	authorization ExactEIP3009Authorization,
	chainID *big.Int,
	requirements walletbridge.PaymentRequirement,
) ([]byte, error) {
	tokenName := "USD Coin"
	tokenVersion := "2"
	if requirements.Extra != nil {
		if name, ok := requirements.Extra["name"].(string); ok && name != "" {
			tokenName = name
		}
		if version, ok := requirements.Extra["version"].(string); ok && version != "" {
			tokenVersion = version
		}
	}

	domain := TypedDataDomain{
		Name:              tokenName,
		Version:           tokenVersion,
		ChainID:           chainID,
		VerifyingContract: requirements.Asset,
	}

	types := map[string][]TypedDataField{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"TransferWithAuthorization": {
			{Name: "from", Type: "address"},
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "validAfter", Type: "uint256"},
			{Name: "validBefore", Type: "uint256"},
			{Name: "nonce", Type: "bytes32"},
		},
	}

	message := map[string]interface{}{
		"from":        authorization.From,
		"to":          authorization.To,
		"value":       authorization.Value,
		"validAfter":  authorization.ValidAfter,
		"validBefore": authorization.ValidBefore,
		"nonce":       authorization.Nonce,
	}

	return c.signer.SignTypedData(ctx, domain, types, "TransferWithAuthorization", message)
}
