// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AZAP Contributors

package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. Records are copied on the way in
// and out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, tokenHash string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.clone(), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.TokenHash]; !ok {
		return ErrNotFound
	}
	s.records[rec.TokenHash] = rec.clone()
	return nil
}

// Rotate implements Store.
func (s *MemoryStore) Rotate(_ context.Context, oldTokenHash string, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.TokenHash]; ok {
		return ErrTokenConflict
	}
	if oldTokenHash != "" {
		delete(s.records, oldTokenHash)
	}
	s.records[rec.TokenHash] = rec.clone()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, tokenHash)
	return nil
}

// DeleteExpired implements Store.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, rec := range s.records {
		if rec.IsExpiredAt(now) {
			delete(s.records, hash)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ Store = (*MemoryStore)(nil)
