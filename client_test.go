package walletbridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSchemeNetworkClient struct {
	scheme        string
	createPayload func(ctx context.Context, version int, requirements PaymentRequirement) (PaymentPayload, error)
}

func (m *mockSchemeNetworkClient) Scheme() string {
	if m.scheme != "" {
		return m.scheme
	}
	return SchemeExact
}

func (m *mockSchemeNetworkClient) CreatePaymentPayload(ctx context.Context, version int, requirements PaymentRequirement) (PaymentPayload, error) {
	if m.createPayload != nil {
		return m.createPayload(ctx, version, requirements)
	}
	return PaymentPayload{
		X402Version: version,
		Scheme:      m.Scheme(),
		Network:     requirements.Network,
		Payload: map[string]interface{}{
			"signature": "0xmock",
		},
	}, nil
}

func testRequirements() []PaymentRequirement {
	return []PaymentRequirement{
		{Scheme: "exact", Network: "base", Asset: "0xUSDC", PayTo: "0xmerchant", MaxAmountRequired: "10000"},
		{Scheme: "exact", Network: "solana", Asset: "EPjFW...", PayTo: "GsbwX...", MaxAmountRequired: "10000"},
	}
}

func TestSelectRequirementPrefersWalletNetwork(t *testing.T) {
	client := NewClient(
		WithScheme(FamilyEVM, &mockSchemeNetworkClient{}),
		WithScheme(FamilySolana, &mockSchemeNetworkClient{}),
	)

	// a Solana wallet must get the Solana entry even though the EVM entry
	// comes first
	req, index, err := client.SelectRequirement(testRequirements(), []Network{"solana", "solana-devnet"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, index)
	assert.Equal(t, Network("solana"), req.Network)
}

func TestSelectRequirementTieBreaksByOrder(t *testing.T) {
	client := NewClient(
		WithScheme(FamilyEVM, &mockSchemeNetworkClient{}),
		WithScheme(FamilySolana, &mockSchemeNetworkClient{}),
	)

	req, index, err := client.SelectRequirement(testRequirements(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, index)
	assert.Equal(t, Network("base"), req.Network)
}

func TestSelectRequirementNeedsRegisteredMechanism(t *testing.T) {
	client := NewClient(WithScheme(FamilySolana, &mockSchemeNetworkClient{}))

	// EVM entry is network-compatible but has no mechanism
	req, index, err := client.SelectRequirement(testRequirements(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, 1, index)
	assert.Equal(t, Network("solana"), req.Network)
}

func TestSelectRequirementNoMatch(t *testing.T) {
	client := NewClient(
		WithScheme(FamilyEVM, &mockSchemeNetworkClient{}),
		WithScheme(FamilySolana, &mockSchemeNetworkClient{}),
	)

	_, _, err := client.SelectRequirement(testRequirements(), []Network{"base-sepolia"}, "")
	assert.ErrorIs(t, err, ErrNoMatchingRequirement)
}

func TestCreatePaymentHeaderRoundTrip(t *testing.T) {
	client := NewClient(WithScheme(FamilyEVM, &mockSchemeNetworkClient{}))

	header, err := client.CreatePaymentHeader(context.Background(), ProtocolVersion, testRequirements()[0])
	require.NoError(t, err)

	payload, err := DecodePaymentHeader(header)
	require.NoError(t, err)
	assert.Equal(t, ProtocolVersion, payload.X402Version)
	assert.Equal(t, SchemeExact, payload.Scheme)
	assert.Equal(t, Network("base"), payload.Network)
	assert.Equal(t, "0xmock", payload.Payload["signature"])
}

func TestCreatePaymentHeaderUnknownNetwork(t *testing.T) {
	client := NewClient(WithScheme(FamilyEVM, &mockSchemeNetworkClient{}))

	_, err := client.CreatePaymentHeader(context.Background(), ProtocolVersion, PaymentRequirement{
		Scheme: "exact", Network: "tron", Asset: "x", PayTo: "y", MaxAmountRequired: "1",
	})
	assert.ErrorIs(t, err, ErrUnsupportedNetwork)
}

func TestParseValidBefore(t *testing.T) {
	t.Run("string form", func(t *testing.T) {
		header, err := EncodePaymentHeader(PaymentPayload{
			X402Version: 1,
			Scheme:      SchemeExact,
			Network:     "base",
			Payload: map[string]interface{}{
				"authorization": map[string]interface{}{"validBefore": "1767225600"},
			},
		})
		require.NoError(t, err)

		sec, ok := ParseValidBefore(header)
		require.True(t, ok)
		assert.Equal(t, int64(1767225600), sec)
	})

	t.Run("absent for transaction payloads", func(t *testing.T) {
		header, err := EncodePaymentHeader(PaymentPayload{
			X402Version: 1,
			Scheme:      SchemeExact,
			Network:     "solana",
			Payload:     map[string]interface{}{"transaction": "AQAB"},
		})
		require.NoError(t, err)

		_, ok := ParseValidBefore(header)
		assert.False(t, ok)
	})
}
