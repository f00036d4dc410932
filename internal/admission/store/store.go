// Package store holds the in-memory counter table: exactly one record per
// (endpoint class, identity) key, with per-key exclusive mutation and no
// cross-key contention.
package store

import (
	"sync"

	"bastion/internal/admission/models"
	psync "bastion/pkg/platform/sync"
)

// CounterStore maps keys to counter records. The records map is guarded by
// a read/write mutex for lookup and insert; record fields are only ever
// touched while holding the key's shard lock, so checks, failure recording,
// resets, and eviction on the same key serialize, while unrelated keys
// proceed in parallel.
type CounterStore struct {
	locks *psync.ShardedMutex

	mu      sync.RWMutex
	records map[models.Key]*models.CounterRecord
}

func New() *CounterStore {
	return &CounterStore{
		locks:   psync.NewShardedMutex(),
		records: make(map[models.Key]*models.CounterRecord),
	}
}

// Update runs fn with exclusive access to the key's record, creating it on
// first observation. Concurrent calls for the same key observe and mutate
// the same record instance.
func (s *CounterStore) Update(key models.Key, fn func(*models.CounterRecord)) {
	s.locks.Lock(key.String())
	defer s.locks.Unlock(key.String())

	fn(s.getOrCreate(key))
}

// View runs fn with exclusive access to the key's record if one exists,
// without creating one. Returns whether a record was found. fn must treat
// the record as read-only.
func (s *CounterStore) View(key models.Key, fn func(*models.CounterRecord)) bool {
	s.locks.Lock(key.String())
	defer s.locks.Unlock(key.String())

	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	fn(rec)
	return true
}

// Delete removes the key's record. A no-op for absent keys.
func (s *CounterStore) Delete(key models.Key) {
	s.locks.Lock(key.String())
	defer s.locks.Unlock(key.String())

	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
}

// EvictIf removes the key's record when pred holds, under the same key lock
// as normal mutation so eviction never races an in-flight check.
func (s *CounterStore) EvictIf(key models.Key, pred func(*models.CounterRecord) bool) bool {
	s.locks.Lock(key.String())
	defer s.locks.Unlock(key.String())

	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok || !pred(rec) {
		return false
	}

	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return true
}

// Keys returns a snapshot of the currently tracked keys.
func (s *CounterStore) Keys() []models.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]models.Key, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	return keys
}

// Len reports the number of tracked records.
func (s *CounterStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *CounterStore) getOrCreate(key models.Key) *models.CounterRecord {
	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if ok {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check: another shard's caller may have inserted between locks.
	if rec, ok := s.records[key]; ok {
		return rec
	}
	rec = &models.CounterRecord{}
	s.records[key] = rec
	return rec
}
