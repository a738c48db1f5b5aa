package store

import "sync"

// WatchFunc observes one key change. value is nil on removal.
type WatchFunc func(key string, value []byte)

// WatchedStorage wraps a backend and notifies subscribers after every
// successful write, the way extension storage broadcasts change events.
// Notifications run synchronously on the writing goroutine.
type WatchedStorage struct {
	Storage

	mu       sync.Mutex
	nextID   int
	watchers map[int]WatchFunc
}

// Watch wraps a backend for observation.
func Watch(storage Storage) *WatchedStorage {
	return &WatchedStorage{
		Storage:  storage,
		watchers: make(map[int]WatchFunc),
	}
}

// Subscribe registers a watcher for all key changes. The returned
// function removes the subscription.
func (s *WatchedStorage) Subscribe(fn WatchFunc) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// Set writes through and notifies watchers.
func (s *WatchedStorage) Set(key string, value []byte) error {
	if err := s.Storage.Set(key, value); err != nil {
		return err
	}
	s.notify(key, value)
	return nil
}

// Remove deletes through and notifies watchers with a nil value.
func (s *WatchedStorage) Remove(key string) error {
	if err := s.Storage.Remove(key); err != nil {
		return err
	}
	s.notify(key, nil)
	return nil
}

func (s *WatchedStorage) notify(key string, value []byte) {
	s.mu.Lock()
	snapshot := make([]WatchFunc, 0, len(s.watchers))
	for _, fn := range s.watchers {
		snapshot = append(snapshot, fn)
	}
	s.mu.Unlock()

	for _, fn := range snapshot {
		fn(key, value)
	}
}
