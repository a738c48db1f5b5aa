package store

import (
	"encoding/json"
	"fmt"

	walletbridge "github.com/x402wallet/walletbridge"
)

// ConnectionState is the persisted wallet connection, restored when a
// new UI context opens.
type ConnectionState struct {
	WalletType      string               `json:"walletType,omitempty"`
	Address         string               `json:"address,omitempty"`
	ChainID         string               `json:"chainId,omitempty"`
	Network         walletbridge.Network `json:"network,omitempty"`
	SolanaPublicKey string               `json:"solanaPublicKey,omitempty"`
}

// Connected reports whether any wallet side is connected.
func (c ConnectionState) Connected() bool {
	return c.Address != "" || c.SolanaPublicKey != ""
}

// AppStateStore persists the connection state.
type AppStateStore struct {
	storage Storage
}

// NewAppStateStore creates a store over the given backend.
func NewAppStateStore(storage Storage) *AppStateStore {
	return &AppStateStore{storage: storage}
}

// Save writes the connection state.
func (s *AppStateStore) Save(state ConnectionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal connection state: %w", err)
	}
	return s.storage.Set(KeyAppState, data)
}

// Load returns the saved state, or the zero state if none exists.
func (s *AppStateStore) Load() (ConnectionState, error) {
	data, found, err := s.storage.Get(KeyAppState)
	if err != nil || !found {
		return ConnectionState{}, err
	}
	var state ConnectionState
	if err := json.Unmarshal(data, &state); err != nil {
		return ConnectionState{}, fmt.Errorf("corrupt connection state: %w", err)
	}
	return state, nil
}

// Clear removes the saved state.
func (s *AppStateStore) Clear() error {
	return s.storage.Remove(KeyAppState)
}
