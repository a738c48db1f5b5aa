package store

import (
	"encoding/json"
	"fmt"

	walletbridge "github.com/x402wallet/walletbridge"
)

// History entry statuses.
const (
	HistoryStatusSettled = "settled"
	HistoryStatusFailed  = "failed"
)

// HistoryEntry is one completed (or failed) payment.
type HistoryEntry struct {
	Timestamp  int64                       `json:"timestamp"` // unix milliseconds, also the entry's identity
	Resource   string                      `json:"resource"`
	Amount     string                      `json:"amount"` // display units
	TokenName  string                      `json:"tokenName"`
	Network    walletbridge.Network        `json:"network"`
	Scheme     string                      `json:"scheme"`
	Status     string                      `json:"status"`
	StatusCode int                         `json:"statusCode,omitempty"`
	Receipt    *walletbridge.SettleReceipt `json:"receipt,omitempty"`
}

// HistoryStore keeps the payment history, newest first.
type HistoryStore struct {
	storage Storage
}

// NewHistoryStore creates a store over the given backend.
func NewHistoryStore(storage Storage) *HistoryStore {
	return &HistoryStore{storage: storage}
}

// Append prepends an entry.
func (s *HistoryStore) Append(entry HistoryEntry) error {
	entries, err := s.List()
	if err != nil {
		return err
	}
	entries = append([]HistoryEntry{entry}, entries...)
	return s.save(entries)
}

// Update replaces the entry with the matching timestamp. Unknown
// timestamps are ignored.
func (s *HistoryStore) Update(entry HistoryEntry) error {
	entries, err := s.List()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].Timestamp == entry.Timestamp {
			entries[i] = entry
			return s.save(entries)
		}
	}
	return nil
}

// List returns all entries, newest first.
func (s *HistoryStore) List() ([]HistoryEntry, error) {
	data, found, err := s.storage.Get(KeyHistory)
	if err != nil || !found {
		return nil, err
	}
	var entries []HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("corrupt payment history: %w", err)
	}
	return entries, nil
}

func (s *HistoryStore) save(entries []HistoryEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal payment history: %w", err)
	}
	return s.storage.Set(KeyHistory, data)
}
