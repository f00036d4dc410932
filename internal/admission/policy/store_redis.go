package policy

import (
	"context"

	"bastion/internal/admission/models"
	dErrors "bastion/pkg/domain-errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore reads policies from a redis hash per endpoint class:
//
//	HGETALL admission:policy:<class>
//
// with fields max_attempts, window_minutes, block_minutes, mode. An empty
// hash is reported as not found.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedis constructs a redis-backed policy store.
func NewRedis(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) LoadPolicy(ctx context.Context, class models.EndpointClass) (models.Policy, error) {
	values, err := s.client.HGetAll(ctx, "admission:policy:"+class.String()).Result()
	if err != nil {
		return models.Policy{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "read admission policy hash")
	}
	if len(values) == 0 {
		return models.Policy{}, dErrors.New(dErrors.CodeNotFound, "no policy configured for class "+class.String())
	}
	return policyFromValues(values), nil
}
