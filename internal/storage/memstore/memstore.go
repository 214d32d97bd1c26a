// Package memstore implements storage.KeyMaterialStore in memory.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirosfoundation/go-as4-wssec/internal/storage"
)

// Store is a KeyMaterialStore kept in memory. Useful for demos or testing.
type Store struct {
	mu sync.RWMutex
	db map[string]*storage.KeyMaterial
}

var _ storage.KeyMaterialStore = (*Store)(nil)

// New instantiates an empty Store
func New() *Store {
	return &Store{db: make(map[string]*storage.KeyMaterial)}
}

// GetKeyMaterial returns a copy of the entry for alias.
func (s *Store) GetKeyMaterial(_ context.Context, alias string) (*storage.KeyMaterial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	km, ok := s.db[alias]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return km.Clone(), nil
}

// PutKeyMaterial stores a copy of km.
func (s *Store) PutKeyMaterial(_ context.Context, km *storage.KeyMaterial) error {
	c := km.Clone()
	c.UpdatedAt = time.Now()

	s.mu.Lock()
	s.db[km.Alias] = c
	s.mu.Unlock()
	return nil
}

// DeleteKeyMaterial removes the entry for alias.
func (s *Store) DeleteKeyMaterial(_ context.Context, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.db[alias]; !ok {
		return storage.ErrNotFound
	}
	delete(s.db, alias)
	return nil
}

// ListAliases returns the stored aliases in lexical order.
func (s *Store) ListAliases(_ context.Context) ([]string, error) {
	s.mu.RLock()
	aliases := make([]string, 0, len(s.db))
	for alias := range s.db {
		aliases = append(aliases, alias)
	}
	s.mu.RUnlock()

	sort.Strings(aliases)
	return aliases, nil
}

// Close drops all entries.
func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	s.db = make(map[string]*storage.KeyMaterial)
	s.mu.Unlock()
	return nil
}
