package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchedStorageNotifies(t *testing.T) {
	watched := Watch(NewMemoryStorage())

	type change struct {
		key   string
		value []byte
	}
	var changes []change
	unsubscribe := watched.Subscribe(func(key string, value []byte) {
		changes = append(changes, change{key, value})
	})

	require.NoError(t, watched.Set("a", []byte("1")))
	require.NoError(t, watched.Remove("a"))

	require.Len(t, changes, 2)
	assert.Equal(t, "a", changes[0].key)
	assert.Equal(t, []byte("1"), changes[0].value)
	assert.Nil(t, changes[1].value)

	unsubscribe()
	require.NoError(t, watched.Set("b", []byte("2")))
	assert.Len(t, changes, 2)
}

func TestWatchedStorageObservesPendingSlot(t *testing.T) {
	watched := Watch(NewMemoryStorage())
	pending := NewPendingStore(watched)

	var touched []string
	watched.Subscribe(func(key string, _ []byte) {
		touched = append(touched, key)
	})

	require.NoError(t, pending.Save(pendingFixture(StepSelected)))
	require.NoError(t, pending.Clear())

	assert.Equal(t, []string{KeyPendingTransaction, KeyPendingTransaction}, touched)
}
