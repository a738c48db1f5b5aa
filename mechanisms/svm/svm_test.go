package svm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	walletbridge "github.com/x402wallet/walletbridge"
)

func TestEncodeForSigningLayout(t *testing.T) {
	message := []byte("serialized message bytes")

	wire := EncodeForSigning(message, 1)

	require.Len(t, wire, 1+1*64+len(message))
	assert.Equal(t, byte(1), wire[0])
	assert.Equal(t, make([]byte, 64), wire[1:65], "signature slot must be zeroed")
	assert.True(t, bytes.Equal(message, wire[65:]))
}

func TestEncodeForSigningMultipleSigners(t *testing.T) {
	message := []byte{0xAA, 0xBB}

	wire := EncodeForSigning(message, 2)

	require.Len(t, wire, 1+2*64+2)
	assert.Equal(t, byte(2), wire[0])
	assert.True(t, bytes.Equal(message, wire[129:]))
}

func TestDecodeSignedWireRoundTrip(t *testing.T) {
	message := []byte("message")
	wire := EncodeForSigning(message, 1)

	// fill the slot as a wallet would
	for i := 1; i < 65; i++ {
		wire[i] = byte(i)
	}

	signatures, decoded, err := DecodeSignedWire(wire)
	require.NoError(t, err)
	require.Len(t, signatures, 1)
	assert.Equal(t, byte(1), signatures[0][0])
	assert.Equal(t, byte(64), signatures[0][63])
	assert.True(t, bytes.Equal(message, decoded))
}

func TestDecodeSignedWireErrors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, _, err := DecodeSignedWire(nil)
		assert.Error(t, err)
	})

	t.Run("truncated", func(t *testing.T) {
		_, _, err := DecodeSignedWire([]byte{3, 0, 0})
		assert.ErrorContains(t, err, "truncated")
	})

	t.Run("implausible signer count", func(t *testing.T) {
		_, _, err := DecodeSignedWire([]byte{200})
		assert.ErrorContains(t, err, "unsupported signature count")
	})
}

func TestGetNetworkConfig(t *testing.T) {
	config, err := GetNetworkConfig("solana")
	require.NoError(t, err)
	assert.NotEmpty(t, config.RPCURL)

	_, err = GetNetworkConfig("solana-testnet")
	assert.ErrorIs(t, err, walletbridge.ErrUnsupportedNetwork)
}
