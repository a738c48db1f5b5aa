// Package store persists flow state that must outlive the UI context:
// the pending transaction slot, connection state, recent resources, and
// payment history. Values are stored as JSON under fixed keys so any
// key-value backend works.
package store

// Storage keys. One value per key; collections are stored whole.
const (
	KeyPendingTransaction = "pending_transaction"
	KeyAppState           = "app_state"
	KeyRecentResources    = "recent_resources"
	KeyHistory            = "payment_history"
)

// Storage is a minimal key-value backend. Get returns found=false for a
// missing key, never an error.
type Storage interface {
	Get(key string) (value []byte, found bool, err error)
	Set(key string, value []byte) error
	Remove(key string) error
}
