package store

import (
	"encoding/json"
	"fmt"
)

// maxRecentResources bounds the recent list.
const maxRecentResources = 5

// RecentResource is one remembered paid resource, offered for quick
// re-discovery.
type RecentResource struct {
	URL    string `json:"url"`
	Method string `json:"method"`
}

// RecentStore keeps the most recently visited paid resources, newest
// first, deduplicated by URL and method.
type RecentStore struct {
	storage Storage
}

// NewRecentStore creates a store over the given backend.
func NewRecentStore(storage Storage) *RecentStore {
	return &RecentStore{storage: storage}
}

// Record moves the resource to the front of the list, dropping the
// oldest entry past the cap.
func (s *RecentStore) Record(resource RecentResource) error {
	entries, err := s.List()
	if err != nil {
		return err
	}

	updated := make([]RecentResource, 0, maxRecentResources)
	updated = append(updated, resource)
	for _, entry := range entries {
		if entry.URL == resource.URL && entry.Method == resource.Method {
			continue
		}
		updated = append(updated, entry)
		if len(updated) == maxRecentResources {
			break
		}
	}

	data, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("failed to marshal recent resources: %w", err)
	}
	return s.storage.Set(KeyRecentResources, data)
}

// List returns the recent resources, newest first.
func (s *RecentStore) List() ([]RecentResource, error) {
	data, found, err := s.storage.Get(KeyRecentResources)
	if err != nil || !found {
		return nil, err
	}
	var entries []RecentResource
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("corrupt recent resources: %w", err)
	}
	return entries, nil
}
