package wallet

import (
	"strings"
	"sync"
)

// rdnsByWalletType maps friendly wallet names to announced identifiers.
var rdnsByWalletType = map[string]string{
	"metamask": "io.metamask",
	"coinbase": "com.coinbase.wallet",
	"trust":    "com.trustwallet.app",
	"rabby":    "io.rabby",
}

// RDNSForWalletType resolves a friendly wallet name to its reverse-DNS
// identifier; unknown names pass through unchanged so callers can address
// wallets by raw rdns.
func RDNSForWalletType(walletType string) string {
	if rdns, ok := rdnsByWalletType[strings.ToLower(walletType)]; ok {
		return rdns
	}
	return walletType
}

type announced struct {
	info     ProviderInfo
	provider EvmProvider
}

// Discovery tracks EVM providers announced through the multi-wallet
// discovery protocol and keeps the legacy single global provider as a
// fallback. It disambiguates among multiple concurrently installed
// wallets; when discovery yields nothing the default provider is used.
type Discovery struct {
	mu              sync.RWMutex
	providers       map[string]announced
	defaultProvider EvmProvider
}

// NewDiscovery creates an empty discovery registry.
func NewDiscovery() *Discovery {
	return &Discovery{providers: make(map[string]announced)}
}

// Announce records a wallet's self-announcement. Later announcements for
// the same rdns replace earlier ones, matching re-announce semantics.
func (d *Discovery) Announce(info ProviderInfo, provider EvmProvider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[info.RDNS] = announced{info: info, provider: provider}
}

// SetDefault installs the legacy single global provider object.
func (d *Discovery) SetDefault(provider EvmProvider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaultProvider = provider
}

// Resolve returns the provider for a wallet type, preferring an announced
// provider and falling back to the default. Nil when neither exists.
func (d *Discovery) Resolve(walletType string) EvmProvider {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if walletType != "" {
		if a, ok := d.providers[RDNSForWalletType(walletType)]; ok {
			return a.provider
		}
	}
	return d.defaultProvider
}

// Available reports whether a wallet type has announced itself, and the
// rdns it was looked up under.
func (d *Discovery) Available(walletType string) (bool, string) {
	rdns := RDNSForWalletType(walletType)
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.providers[rdns]
	return ok, rdns
}

// All lists every announced wallet.
func (d *Discovery) All() []ProviderInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	infos := make([]ProviderInfo, 0, len(d.providers))
	for _, a := range d.providers {
		infos = append(infos, a.info)
	}
	return infos
}
