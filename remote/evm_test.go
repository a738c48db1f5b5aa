package remote

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	walletbridge "github.com/x402wallet/walletbridge"
	"github.com/x402wallet/walletbridge/bridge"
	"github.com/x402wallet/walletbridge/mechanisms/evm"
	"github.com/x402wallet/walletbridge/wallet"
)

// scriptedProvider is the page-side wallet stub behind a full bridge.
type scriptedProvider struct {
	accountCalls atomic.Int32
}

func (p *scriptedProvider) Request(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_requestAccounts":
		p.accountCalls.Add(1)
		return json.Marshal([]string{"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"})
	case "eth_chainId":
		return json.Marshal("0x2105")
	case "eth_signTypedData_v4":
		return json.Marshal("0xdeadbeef")
	case "personal_sign":
		return json.Marshal("0xsigned")
	default:
		return nil, &walletbridge.ProviderError{Code: -32601, Message: "unknown method"}
	}
}

func newBridgedEvmWallet(t *testing.T, provider wallet.EvmProvider) *EvmWallet {
	t.Helper()

	discovery := wallet.NewDiscovery()
	discovery.SetDefault(provider)
	executor := wallet.NewExecutor(discovery)

	bus := bridge.NewBus()
	relay := bridge.NewRelay(bus, executor.Attach, nil, nil)
	sender := bridge.NewSender(
		bridge.StaticTabs{{ID: 1, URL: "https://paid.example", Active: true}},
		bridge.RelayResolverFunc(func(bridge.Tab) (*bridge.Relay, error) { return relay, nil }),
	)
	return NewEvmWallet(sender, "")
}

func TestEvmWalletAddressCaches(t *testing.T) {
	provider := &scriptedProvider{}
	w := newBridgedEvmWallet(t, provider)
	ctx := context.Background()

	addr, err := w.Address(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", addr)

	_, err = w.Address(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), provider.accountCalls.Load(), "second call must hit the cache")
}

func TestEvmWalletChainIDAndNetworks(t *testing.T) {
	w := newBridgedEvmWallet(t, &scriptedProvider{})
	ctx := context.Background()

	chainID, err := w.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0x2105", chainID)

	networks, err := w.Networks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []walletbridge.Network{"base"}, networks)
}

func TestEvmWalletSignTypedDataSerialization(t *testing.T) {
	// capture the raw eth_signTypedData_v4 params crossing the bridge
	captured := make(chan string, 1)
	provider := &capturingProvider{captured: captured}
	w := newBridgedEvmWallet(t, provider)

	_, err := w.SignTypedData(context.Background(),
		evm.TypedDataDomain{Name: "USDC", Version: "2", ChainID: nil, VerifyingContract: "0xA"},
		map[string][]evm.TypedDataField{
			"TransferWithAuthorization": {{Name: "from", Type: "address"}},
		},
		"TransferWithAuthorization",
		map[string]interface{}{"from": "0xB"},
	)
	require.NoError(t, err)

	var doc struct {
		Domain      map[string]any `json:"domain"`
		PrimaryType string         `json:"primaryType"`
		Types       map[string]any `json:"types"`
		Message     map[string]any `json:"message"`
	}
	require.NoError(t, json.Unmarshal([]byte(<-captured), &doc))
	assert.Equal(t, "TransferWithAuthorization", doc.PrimaryType)
	assert.Equal(t, "USDC", doc.Domain["name"])
	assert.Equal(t, "0xB", doc.Message["from"])
	assert.Contains(t, doc.Types, "TransferWithAuthorization")
}

type capturingProvider struct {
	captured chan string
}

func (p *capturingProvider) Request(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_requestAccounts":
		return json.Marshal([]string{"0xB"})
	case "eth_signTypedData_v4":
		p.captured <- params[1].(string)
		return json.Marshal("0x00")
	default:
		return nil, &walletbridge.ProviderError{Code: -32601, Message: "unknown method"}
	}
}
