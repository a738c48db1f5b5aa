package store

import (
	"encoding/json"
	"fmt"
	"time"

	walletbridge "github.com/x402wallet/walletbridge"
)

// Flow steps. The slot is only written from StepSigned on: selection
// lives in the UI, and a settled flow clears the slot instead of
// storing the final step.
const (
	StepSelected = 1 // challenge parsed, requirement chosen, nothing persisted
	StepSigned   = 2 // credential minted, awaiting settlement
	StepSettled  = 3 // settled; the slot is cleared rather than stored at this step
)

// DefaultPendingMaxAge bounds how long an unsettled flow survives. Past
// it the slot is treated as abandoned.
const DefaultPendingMaxAge = 30 * time.Minute

// PendingTransaction is the single persisted in-flight payment, created
// when the credential is minted. It holds everything needed to resume
// after the driving context is destroyed: the chosen requirement, the
// request to replay, and the payment header.
type PendingTransaction struct {
	Resource            string                          `json:"resource"`
	Step                int                             `json:"step"`
	SelectedAcceptIndex int                             `json:"selectedAcceptIndex"`
	X402Version         int                             `json:"x402Version"`
	Requirement         walletbridge.PaymentRequirement `json:"requirement"`
	Request             *walletbridge.RequestSpec       `json:"request,omitempty"`
	XPaymentHeader      string                          `json:"xPaymentHeader,omitempty"`
	Response            string                          `json:"response,omitempty"`
	CreatedAt           int64                           `json:"createdAt"`   // unix milliseconds
	ValidBefore         int64                           `json:"validBefore"` // unix seconds, 0 before signing
}

// PendingStore manages the single pending transaction slot.
type PendingStore struct {
	storage Storage
	maxAge  time.Duration
	now     func() time.Time
}

// PendingOption configures a PendingStore.
type PendingOption func(*PendingStore)

// WithMaxAge overrides the abandonment window.
func WithMaxAge(maxAge time.Duration) PendingOption {
	return func(s *PendingStore) { s.maxAge = maxAge }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) PendingOption {
	return func(s *PendingStore) { s.now = now }
}

// NewPendingStore creates a slot over the given backend.
func NewPendingStore(storage Storage, opts ...PendingOption) *PendingStore {
	s := &PendingStore{
		storage: storage,
		maxAge:  DefaultPendingMaxAge,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save writes the slot. A record never moves backwards: saving a lower
// step over a live record for the same resource is rejected, so a stale
// UI cannot undo a minted credential. A different resource always
// replaces the slot.
func (s *PendingStore) Save(tx PendingTransaction) error {
	if tx.Resource == "" {
		return fmt.Errorf("pending transaction requires a resource")
	}
	if tx.CreatedAt == 0 {
		tx.CreatedAt = s.now().UnixMilli()
	}

	existing, found, err := s.load()
	if err != nil {
		return err
	}
	if found && !s.expired(existing) && existing.Resource == tx.Resource && tx.Step < existing.Step {
		return fmt.Errorf("refusing step %d over existing step %d for %s", tx.Step, existing.Step, tx.Resource)
	}

	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal pending transaction: %w", err)
	}
	return s.storage.Set(KeyPendingTransaction, data)
}

// Load returns the slot if it holds a live record. An expired record is
// discarded on read and reported as absent.
func (s *PendingStore) Load() (PendingTransaction, bool, error) {
	tx, found, err := s.load()
	if err != nil || !found {
		return PendingTransaction{}, false, err
	}
	if s.expired(tx) {
		if err := s.Clear(); err != nil {
			return PendingTransaction{}, false, err
		}
		return PendingTransaction{}, false, nil
	}
	return tx, true, nil
}

// Peek returns the slot without the expiry discard, expired records
// included. Callers that need to distinguish "expired" from "absent"
// use this with IsExpired.
func (s *PendingStore) Peek() (PendingTransaction, bool, error) {
	return s.load()
}

// IsExpired reports whether the record is past either bound.
func (s *PendingStore) IsExpired(tx PendingTransaction) bool {
	return s.expired(tx)
}

// Clear empties the slot.
func (s *PendingStore) Clear() error {
	return s.storage.Remove(KeyPendingTransaction)
}

func (s *PendingStore) load() (PendingTransaction, bool, error) {
	data, found, err := s.storage.Get(KeyPendingTransaction)
	if err != nil || !found {
		return PendingTransaction{}, false, err
	}
	var tx PendingTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return PendingTransaction{}, false, fmt.Errorf("corrupt pending transaction: %w", err)
	}
	return tx, true, nil
}

// expired applies both bounds: the slot's own age window and, once a
// credential exists, its on-chain validity cutoff.
func (s *PendingStore) expired(tx PendingTransaction) bool {
	now := s.now()
	if now.Sub(time.UnixMilli(tx.CreatedAt)) > s.maxAge {
		return true
	}
	if tx.ValidBefore > 0 && now.Unix() >= tx.ValidBefore {
		return true
	}
	return false
}
