package evm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	walletbridge "github.com/x402wallet/walletbridge"
)

// mockSigner satisfies ClientEvmSigner and ChainSwitcher, recording the
// signing inputs.
type mockSigner struct {
	address      string
	switchedTo   []string
	signedDomain TypedDataDomain
	signedType   string
	signedMsg    map[string]interface{}
}

func (m *mockSigner) Address(context.Context) (string, error) {
	return m.address, nil
}

func (m *mockSigner) SwitchChain(_ context.Context, chainIDHex string) error {
	m.switchedTo = append(m.switchedTo, chainIDHex)
	return nil
}

func (m *mockSigner) SignTypedData(
	_ context.Context,
	domain TypedDataDomain,
	_ map[string][]TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	m.signedDomain = domain
	m.signedType = primaryType
	m.signedMsg = message
	return make([]byte, 65), nil
}

func baseRequirement() walletbridge.PaymentRequirement {
	return walletbridge.PaymentRequirement{
		Scheme:            SchemeExact,
		Network:           "base-sepolia",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		MaxAmountRequired: "10000",
		MaxTimeoutSeconds: 300,
		Extra: map[string]interface{}{
			"name":    "USDC",
			"version": "2",
		},
	}
}

func TestCreatePaymentPayload(t *testing.T) {
	signer := &mockSigner{address: "0xPayer"}
	client := NewExactEvmClient(signer)

	before := time.Now().Unix()
	payload, err := client.CreatePaymentPayload(context.Background(), 1, baseRequirement())
	require.NoError(t, err)

	assert.Equal(t, 1, payload.X402Version)
	assert.Equal(t, SchemeExact, payload.Scheme)
	assert.Equal(t, walletbridge.Network("base-sepolia"), payload.Network)

	// wallet moved to the requirement's chain before signing
	assert.Equal(t, []string{"0x14a34"}, signer.switchedTo)

	assert.Equal(t, "TransferWithAuthorization", signer.signedType)
	assert.Equal(t, "USDC", signer.signedDomain.Name)
	assert.Equal(t, "2", signer.signedDomain.Version)
	assert.Equal(t, int64(84532), signer.signedDomain.ChainID.Int64())

	auth, ok := payload.Payload["authorization"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0xPayer", auth["from"])
	assert.Equal(t, "10000", auth["value"])

	header, err := walletbridge.EncodePaymentHeader(payload)
	require.NoError(t, err)
	validBefore, ok := walletbridge.ParseValidBefore(header)
	require.True(t, ok)
	assert.GreaterOrEqual(t, validBefore, before+300)
	assert.LessOrEqual(t, validBefore, time.Now().Unix()+300)
}

func TestCreatePaymentPayloadUnsupportedNetwork(t *testing.T) {
	client := NewExactEvmClient(&mockSigner{address: "0xPayer"})

	req := baseRequirement()
	req.Network = "polygon"
	_, err := client.CreatePaymentPayload(context.Background(), 1, req)
	assert.ErrorIs(t, err, walletbridge.ErrUnsupportedNetwork)
}

func TestCreatePaymentPayloadInvalidAmount(t *testing.T) {
	client := NewExactEvmClient(&mockSigner{address: "0xPayer"})

	req := baseRequirement()
	req.MaxAmountRequired = "12.5"
	_, err := client.CreatePaymentPayload(context.Background(), 1, req)
	assert.ErrorContains(t, err, "invalid amount")
}

func TestNetworkForChainID(t *testing.T) {
	network, ok := NetworkForChainID("0x2105")
	require.True(t, ok)
	assert.Equal(t, walletbridge.Network("base"), network)

	_, ok = NetworkForChainID("0xdeadbeef")
	assert.False(t, ok)
}

func TestCreateNonce(t *testing.T) {
	a, err := CreateNonce()
	require.NoError(t, err)
	b, err := CreateNonce()
	require.NoError(t, err)

	assert.Len(t, a, 2+64)
	assert.NotEqual(t, a, b)
}
