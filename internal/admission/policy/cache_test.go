package policy

import (
	"context"
	"sync"
	"testing"
	"time"

	"bastion/internal/admission/models"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/requesttime"

	"github.com/stretchr/testify/suite"
)

// flakyStore counts loads and can be switched into failure mode.
type flakyStore struct {
	mu     sync.Mutex
	policy models.Policy
	err    error
	loads  int
}

func (f *flakyStore) LoadPolicy(_ context.Context, _ models.EndpointClass) (models.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.err != nil {
		return models.Policy{}, f.err
	}
	return f.policy, nil
}

func (f *flakyStore) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *flakyStore) setPolicy(p models.Policy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policy = p
}

func (f *flakyStore) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

type CacheSuite struct {
	suite.Suite
	store *flakyStore
	cache *Cache
	base  time.Time
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.store = &flakyStore{
		policy: models.Policy{MaxAttempts: 5, Window: 15 * time.Minute, BlockDuration: 15 * time.Minute, Mode: models.ModeExplicit},
	}
	s.cache = NewCache(s.store, WithTTL(60*time.Second))
	s.base = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
}

func (s *CacheSuite) at(offset time.Duration) context.Context {
	return requesttime.WithTime(context.Background(), s.base.Add(offset))
}

func (s *CacheSuite) TestServesCachedWithinTTL() {
	p := s.cache.Get(s.at(0), "login")
	s.Equal(5, p.MaxAttempts)
	s.Equal(1, s.store.loadCount())

	for i := 0; i < 10; i++ {
		s.cache.Get(s.at(time.Duration(i)*time.Second), "login")
	}
	s.Equal(1, s.store.loadCount(), "at most one fetch per TTL per class")
}

func (s *CacheSuite) TestRefreshesAfterTTL() {
	s.cache.Get(s.at(0), "login")
	s.store.setPolicy(models.Policy{MaxAttempts: 7, Window: time.Minute, BlockDuration: time.Minute, Mode: models.ModeOptimistic})

	p := s.cache.Get(s.at(61*time.Second), "login")
	s.Equal(7, p.MaxAttempts, "stale entry must be refreshed")
	s.Equal(2, s.store.loadCount())
}

func (s *CacheSuite) TestFallsBackToLastKnownOnFailure() {
	s.cache.Get(s.at(0), "login")
	s.store.setErr(dErrors.New(dErrors.CodeUnavailable, "store down"))

	p := s.cache.Get(s.at(61*time.Second), "login")
	s.Equal(5, p.MaxAttempts, "last known policy survives a store outage")
}

func (s *CacheSuite) TestFailedRefreshCountsAgainstTTL() {
	s.cache.Get(s.at(0), "login")
	s.store.setErr(dErrors.New(dErrors.CodeUnavailable, "store down"))

	s.cache.Get(s.at(61*time.Second), "login")
	loadsAfterFailure := s.store.loadCount()
	s.cache.Get(s.at(62*time.Second), "login")

	s.Equal(loadsAfterFailure, s.store.loadCount(), "an outage must not turn every check into a fetch")
}

func (s *CacheSuite) TestDefaultWhenNeverCached() {
	s.store.setErr(dErrors.New(dErrors.CodeNotFound, "no policy"))

	p := s.cache.Get(s.at(0), "brand-new")
	s.Equal(models.DefaultPolicy(), p)
}

func (s *CacheSuite) TestInvalidPolicySubstitutedWithDefault() {
	s.store.setPolicy(models.Policy{MaxAttempts: 0, Window: time.Minute, BlockDuration: time.Minute, Mode: models.ModeOptimistic})

	p := s.cache.Get(s.at(0), "login")
	s.Equal(models.DefaultPolicy(), p, "malformed configuration must never reach the engine")
}

func (s *CacheSuite) TestClassesCacheIndependently() {
	s.cache.Get(s.at(0), "login")
	s.cache.Get(s.at(0), "register")
	s.Equal(2, s.store.loadCount())
}
