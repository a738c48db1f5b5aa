package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"

	walletbridge "github.com/x402wallet/walletbridge"
	"github.com/x402wallet/walletbridge/bridge"
	"github.com/x402wallet/walletbridge/mechanisms/evm"
	"github.com/x402wallet/walletbridge/wallet"
)

// EvmWallet drives an EVM wallet living in a page on the other side of the
// bridge. It satisfies evm.ClientEvmSigner and evm.ChainSwitcher.
type EvmWallet struct {
	sender     *bridge.Sender
	walletType string

	mu      sync.Mutex
	address string
	chainID string
}

// NewEvmWallet creates a handle addressing a wallet by friendly type
// ("metamask", "rabby", ...); empty means the page's default provider.
func NewEvmWallet(sender *bridge.Sender, walletType string) *EvmWallet {
	return &EvmWallet{sender: sender, walletType: walletType}
}

// Address returns the connected account, prompting a wallet connection on
// first use. The result is cached for the handle's lifetime.
func (w *EvmWallet) Address(ctx context.Context) (string, error) {
	w.mu.Lock()
	cached := w.address
	w.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	result, err := w.sender.Invoke(ctx, wallet.OpEvmRequestAccounts, w.payload(nil), budgetConnect)
	if err != nil {
		return "", err
	}
	var resp struct {
		Accounts []string `json:"accounts"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("malformed accounts reply: %w", err)
	}
	if len(resp.Accounts) == 0 {
		return "", fmt.Errorf("no account")
	}

	w.mu.Lock()
	w.address = resp.Accounts[0]
	w.mu.Unlock()
	return resp.Accounts[0], nil
}

// ChainID returns the wallet's active chain id as a hex string.
func (w *EvmWallet) ChainID(ctx context.Context) (string, error) {
	result, err := w.sender.Invoke(ctx, wallet.OpEvmChainID, w.payload(nil), budgetChainID)
	if err != nil {
		return "", err
	}
	var resp struct {
		ChainID string `json:"chainId"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("malformed chain id reply: %w", err)
	}
	if resp.ChainID == "" {
		return "", fmt.Errorf("no chain id")
	}

	w.mu.Lock()
	w.chainID = resp.ChainID
	w.mu.Unlock()
	return resp.ChainID, nil
}

// SwitchChain moves the wallet to the given chain. The page executor
// handles the add-chain fallback for unrecognized chains.
func (w *EvmWallet) SwitchChain(ctx context.Context, chainIDHex string) error {
	_, err := w.sender.Invoke(ctx, wallet.OpEvmSwitchChain, w.payload(map[string]any{
		"chainId": chainIDHex,
	}), budgetSwitchChain)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.chainID = chainIDHex
	w.mu.Unlock()
	return nil
}

// PersonalSign signs a message with personal_sign.
func (w *EvmWallet) PersonalSign(ctx context.Context, message string) (string, error) {
	from, err := w.Address(ctx)
	if err != nil {
		return "", err
	}
	result, err := w.sender.Invoke(ctx, wallet.OpEvmPersonalSign, w.payload(map[string]any{
		"from":    from,
		"message": message,
	}), budgetPersonalSign)
	if err != nil {
		return "", err
	}
	return unmarshalSignature(result)
}

// SendTransaction submits a transaction and returns its hash.
func (w *EvmWallet) SendTransaction(ctx context.Context, tx map[string]any) (string, error) {
	result, err := w.sender.Invoke(ctx, wallet.OpEvmSendTransaction, w.payload(map[string]any{
		"tx": tx,
	}), budgetSendTransaction)
	if err != nil {
		return "", err
	}
	var resp struct {
		TxHash string `json:"txHash"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("malformed transaction reply: %w", err)
	}
	return resp.TxHash, nil
}

// SignTypedData signs EIP-712 typed data through eth_signTypedData_v4.
// The typed data is serialized to the JSON shape that call expects.
func (w *EvmWallet) SignTypedData(
	ctx context.Context,
	domain evm.TypedDataDomain,
	types map[string][]evm.TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	from, err := w.Address(ctx)
	if err != nil {
		return nil, err
	}

	typedDataJSON, err := json.Marshal(map[string]any{
		"domain":      domain,
		"message":     message,
		"primaryType": primaryType,
		"types":       types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal typed data: %w", err)
	}

	result, err := w.sender.Invoke(ctx, wallet.OpEvmSignTypedData, w.payload(map[string]any{
		"from": from,
		"data": string(typedDataJSON),
	}), budgetSignTypedData)
	if err != nil {
		return nil, err
	}

	signature, err := unmarshalSignature(result)
	if err != nil {
		return nil, err
	}
	return hexutil.Decode(signature)
}

// Networks infers the wallet's x402 networks from its active chain id.
func (w *EvmWallet) Networks(ctx context.Context) ([]walletbridge.Network, error) {
	chainID, err := w.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if network, ok := evm.NetworkForChainID(chainID); ok {
		return []walletbridge.Network{network}, nil
	}
	return nil, nil
}

func (w *EvmWallet) payload(fields map[string]any) map[string]any {
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	if w.walletType != "" {
		fields["walletType"] = w.walletType
	}
	return fields
}

func unmarshalSignature(result json.RawMessage) (string, error) {
	var resp struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("malformed signature reply: %w", err)
	}
	if resp.Signature == "" {
		return "", fmt.Errorf("empty signature")
	}
	return resp.Signature, nil
}
