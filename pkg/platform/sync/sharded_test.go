package sync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ShardedMutexSuite struct {
	suite.Suite
}

func TestShardedMutexSuite(t *testing.T) {
	suite.Run(t, new(ShardedMutexSuite))
}

func (s *ShardedMutexSuite) TestSameKeySerializes() {
	m := NewShardedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Do("login:1.2.3.4", func() {
				counter++
			})
		}()
	}
	wg.Wait()

	s.Equal(200, counter, "increments under the same key lock must not be lost")
}

func (s *ShardedMutexSuite) TestShardForIsStable() {
	m := NewShardedMutex()
	s.Equal(m.shardFor("a"), m.shardFor("a"))
	s.GreaterOrEqual(m.shardFor(""), 0)
	s.Less(m.shardFor(""), shardCount)
}

func (s *ShardedMutexSuite) TestDifferentKeysDoNotDeadlock() {
	m := NewShardedMutex()

	var wg sync.WaitGroup
	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, k := range keys {
		k := k
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Lock(k)
				m.Unlock(k)
			}
		}()
	}
	wg.Wait()
}
