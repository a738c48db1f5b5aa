package wallet

import "strings"

// NativeCurrency describes a chain's gas token for wallet_addEthereumChain.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// AddChainParams is the chain definition registered with a wallet when a
// switch targets a chain the wallet does not know.
type AddChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// defaultAddChainParams is the fallback table keyed by hex chain id. A
// switch to a chain outside this table with no explicit params fails with
// the provider's original error.
func defaultAddChainParams(chainID string) *AddChainParams {
	switch strings.ToLower(chainID) {
	case "0x2105": // Base mainnet (8453)
		return &AddChainParams{
			ChainID:        chainID,
			ChainName:      "Base",
			NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
			RPCURLs:        []string{"https://mainnet.base.org"},
			BlockExplorerURLs: []string{
				"https://basescan.org",
			},
		}
	case "0x14a34": // Base Sepolia (84532)
		return &AddChainParams{
			ChainID:        chainID,
			ChainName:      "Base Sepolia",
			NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
			RPCURLs:        []string{"https://sepolia.base.org"},
			BlockExplorerURLs: []string{
				"https://sepolia.basescan.org",
			},
		}
	default:
		return nil
	}
}

// isUnrecognizedChain matches the provider error raised when a switch
// targets an unregistered chain: EIP-3085 code 4902 or the MetaMask
// message text.
func isUnrecognizedChain(code int, message string) bool {
	if code == 4902 {
		return true
	}
	return strings.Contains(message, "Unrecognized chain ID")
}
