package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	solana "github.com/gagliardetto/solana-go"

	walletbridge "github.com/x402wallet/walletbridge"
	"github.com/x402wallet/walletbridge/bridge"
	"github.com/x402wallet/walletbridge/mechanisms/svm"
	"github.com/x402wallet/walletbridge/wallet"
)

// SolanaWallet drives a Solana wallet living in a page on the other side
// of the bridge. It satisfies svm.ClientSvmSigner.
type SolanaWallet struct {
	sender  *bridge.Sender
	network walletbridge.Network

	mu      sync.Mutex
	address string
}

// NewSolanaWallet creates a handle. network picks the RPC side
// ("solana" or "solana-devnet"); it is an input, not read from the wallet.
func NewSolanaWallet(sender *bridge.Sender, network walletbridge.Network) *SolanaWallet {
	if network == "" {
		network = "solana"
	}
	return &SolanaWallet{sender: sender, network: network}
}

// Connect prompts the wallet for a connection and returns the base58
// public key. Cached for the handle's lifetime.
func (w *SolanaWallet) Connect(ctx context.Context) (string, error) {
	w.mu.Lock()
	cached := w.address
	w.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	result, err := w.sender.Invoke(ctx, wallet.OpSolanaConnect, nil, budgetConnect)
	if err != nil {
		return "", err
	}
	var resp struct {
		PublicKey string `json:"publicKey"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("malformed connect reply: %w", err)
	}
	if resp.PublicKey == "" {
		return "", fmt.Errorf("no Solana account")
	}

	w.mu.Lock()
	w.address = resp.PublicKey
	w.mu.Unlock()
	return resp.PublicKey, nil
}

// Address returns the connected public key, connecting on first use.
func (w *SolanaWallet) Address(ctx context.Context) (solana.PublicKey, error) {
	addr, err := w.Connect(ctx)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBase58(addr)
}

// SignMessage signs an arbitrary message and returns the raw signature.
func (w *SolanaWallet) SignMessage(ctx context.Context, message string) ([]byte, error) {
	result, err := w.sender.Invoke(ctx, wallet.OpSolanaSignMessage, map[string]any{
		"message": message,
	}, budgetSignMessage)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("malformed signature reply: %w", err)
	}
	return base64.StdEncoding.DecodeString(resp.Signature)
}

// SignTransaction has the wallet sign one transaction. The message bytes
// are re-wrapped into wire format with empty signature slots for transport
// (the page boundary only passes serialized data); the filled signatures
// come back the same way and are copied into the transaction.
func (w *SolanaWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	numSigners := int(tx.Message.Header.NumRequiredSignatures)
	wire := svm.EncodeForSigning(messageBytes, numSigners)

	result, err := w.sender.Invoke(ctx, wallet.OpSolanaSignTransactions, map[string]any{
		"transactions": []string{base64.StdEncoding.EncodeToString(wire)},
	}, budgetSignTransactions)
	if err != nil {
		return err
	}

	var resp struct {
		SignedTransactions []string `json:"signedTransactions"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return fmt.Errorf("malformed signed transactions reply: %w", err)
	}
	if len(resp.SignedTransactions) != 1 {
		return fmt.Errorf("expected 1 signed transaction, got %d", len(resp.SignedTransactions))
	}

	signedWire, err := base64.StdEncoding.DecodeString(resp.SignedTransactions[0])
	if err != nil {
		return fmt.Errorf("failed to decode signed transaction: %w", err)
	}

	signatures, _, err := svm.DecodeSignedWire(signedWire)
	if err != nil {
		return err
	}

	tx.Signatures = signatures
	return nil
}

// Disconnect releases the wallet connection.
func (w *SolanaWallet) Disconnect(ctx context.Context) error {
	_, err := w.sender.Invoke(ctx, wallet.OpSolanaDisconnect, nil, budgetDisconnect)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.address = ""
	w.mu.Unlock()
	return nil
}

// Networks reports the networks this signer can pay on. A Solana signer
// nominally supports mainnet and devnet; the configured side leads so
// selection prefers it by order.
func (w *SolanaWallet) Networks() []walletbridge.Network {
	if w.network == "solana-devnet" {
		return []walletbridge.Network{"solana-devnet", "solana"}
	}
	return []walletbridge.Network{"solana", "solana-devnet"}
}
