// Package sync provides fine-grained locking primitives shared across stores.
package sync

import (
	"hash/fnv"
	"sync"
)

const shardCount = 64

// ShardedMutex distributes locking across a fixed set of shards keyed by a
// hash of the resource key. Operations on different keys rarely contend,
// while two operations on the same key always serialize.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// NewShardedMutex creates a ShardedMutex with 64 shards.
func NewShardedMutex() *ShardedMutex {
	return &ShardedMutex{}
}

// Lock acquires the shard lock for key.
func (m *ShardedMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

// Unlock releases the shard lock for key.
func (m *ShardedMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

// Do runs fn while holding the shard lock for key.
func (m *ShardedMutex) Do(key string, fn func()) {
	m.Lock(key)
	defer m.Unlock(key)
	fn()
}

func (m *ShardedMutex) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}
