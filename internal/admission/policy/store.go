package policy

import (
	"context"
	"sync"

	"bastion/internal/admission/models"
	dErrors "bastion/pkg/domain-errors"
)

// Store reads persisted limit policies for an endpoint class. Adapters are
// pure I/O; validation and fallback belong to the cache.
type Store interface {
	LoadPolicy(ctx context.Context, class models.EndpointClass) (models.Policy, error)
}

// StaticStore serves policies from a fixed in-memory map. Used in tests and
// for embedding the engine with caller-supplied policies.
type StaticStore struct {
	mu       sync.RWMutex
	policies map[models.EndpointClass]models.Policy
}

func NewStaticStore(policies map[models.EndpointClass]models.Policy) *StaticStore {
	if policies == nil {
		policies = make(map[models.EndpointClass]models.Policy)
	}
	return &StaticStore{policies: policies}
}

func (s *StaticStore) LoadPolicy(_ context.Context, class models.EndpointClass) (models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[class]
	if !ok {
		return models.Policy{}, dErrors.New(dErrors.CodeNotFound, "no policy configured for class "+class.String())
	}
	return p, nil
}

// Set installs or replaces the policy for a class.
func (s *StaticStore) Set(class models.EndpointClass, p models.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[class] = p
}
