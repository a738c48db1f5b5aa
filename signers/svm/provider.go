// Package svm provides a key-backed Solana provider for headless use and
// tests, answering the same capability surface a page wallet exposes.
package svm

import (
	"context"
	"fmt"
	"sync"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"

	"github.com/x402wallet/walletbridge/mechanisms/svm"
)

// KeyProvider implements wallet.SolanaProvider with a local Ed25519 key.
type KeyProvider struct {
	privateKey solana.PrivateKey

	mu        sync.Mutex
	connected bool
}

// NewKeyProvider creates a provider from a base58-encoded private key.
func NewKeyProvider(privateKeyBase58 string) (*KeyProvider, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &KeyProvider{privateKey: privateKey}, nil
}

// PublicKey returns the provider's account key.
func (p *KeyProvider) PublicKey() solana.PublicKey {
	return p.privateKey.PublicKey()
}

// Connect marks the provider connected and returns its base58 public key.
func (p *KeyProvider) Connect(ctx context.Context) (string, error) {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return p.privateKey.PublicKey().String(), nil
}

// Disconnect clears the connection flag.
func (p *KeyProvider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

// SignMessage signs arbitrary bytes with the account key.
func (p *KeyProvider) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := p.requireConnected(); err != nil {
		return nil, err
	}
	signature, err := p.privateKey.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return signature[:], nil
}

// SignAllTransactions signs each wire-format transaction, filling this
// key's signature slot. Input and output use the same layout: signature
// slots followed by the message bytes.
func (p *KeyProvider) SignAllTransactions(ctx context.Context, transactions [][]byte) ([][]byte, error) {
	if err := p.requireConnected(); err != nil {
		return nil, err
	}

	signed := make([][]byte, len(transactions))
	for i, wire := range transactions {
		signatures, messageBytes, err := svm.DecodeSignedWire(wire)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}

		message := solana.Message{}
		if err := message.UnmarshalWithDecoder(bin.NewBinDecoder(messageBytes)); err != nil {
			return nil, fmt.Errorf("transaction %d: malformed message: %w", i, err)
		}

		index, err := signerIndex(message, p.privateKey.PublicKey())
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}

		signature, err := p.privateKey.Sign(messageBytes)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: failed to sign: %w", i, err)
		}
		signatures[index] = signature

		out := svm.EncodeForSigning(messageBytes, len(signatures))
		for j, sig := range signatures {
			copy(out[1+j*64:], sig[:])
		}
		signed[i] = out
	}
	return signed, nil
}

func (p *KeyProvider) requireConnected() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return fmt.Errorf("wallet not connected")
	}
	return nil
}

func signerIndex(message solana.Message, key solana.PublicKey) (int, error) {
	numSigners := int(message.Header.NumRequiredSignatures)
	for i := 0; i < numSigners && i < len(message.AccountKeys); i++ {
		if message.AccountKeys[i].Equals(key) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("account %s is not a required signer", key)
}
