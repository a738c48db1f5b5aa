package wallet

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{ name string }

func (p *stubProvider) Request(context.Context, string, ...any) (json.RawMessage, error) {
	return json.Marshal(p.name)
}

func TestDiscoveryResolve(t *testing.T) {
	discovery := NewDiscovery()
	metamask := &stubProvider{name: "metamask"}
	fallback := &stubProvider{name: "fallback"}

	discovery.SetDefault(fallback)
	discovery.Announce(ProviderInfo{RDNS: "io.metamask", Name: "MetaMask"}, metamask)

	t.Run("announced wallet by friendly name", func(t *testing.T) {
		assert.Same(t, metamask, discovery.Resolve("metamask"))
	})

	t.Run("announced wallet by raw rdns", func(t *testing.T) {
		assert.Same(t, metamask, discovery.Resolve("io.metamask"))
	})

	t.Run("unannounced wallet falls back to default", func(t *testing.T) {
		assert.Same(t, fallback, discovery.Resolve("rabby"))
	})

	t.Run("empty type means default", func(t *testing.T) {
		assert.Same(t, fallback, discovery.Resolve(""))
	})
}

func TestDiscoveryResolveNothing(t *testing.T) {
	discovery := NewDiscovery()
	assert.Nil(t, discovery.Resolve("metamask"))
}

func TestDiscoveryReannounceReplaces(t *testing.T) {
	discovery := NewDiscovery()
	first := &stubProvider{name: "first"}
	second := &stubProvider{name: "second"}

	discovery.Announce(ProviderInfo{RDNS: "io.rabby", Name: "Rabby"}, first)
	discovery.Announce(ProviderInfo{RDNS: "io.rabby", Name: "Rabby"}, second)

	assert.Same(t, second, discovery.Resolve("rabby"))
	require.Len(t, discovery.All(), 1)
}

func TestDiscoveryAvailable(t *testing.T) {
	discovery := NewDiscovery()
	discovery.Announce(ProviderInfo{RDNS: "com.coinbase.wallet", Name: "Coinbase Wallet"}, &stubProvider{})

	ok, rdns := discovery.Available("coinbase")
	assert.True(t, ok)
	assert.Equal(t, "com.coinbase.wallet", rdns)

	ok, _ = discovery.Available("trust")
	assert.False(t, ok)
}
