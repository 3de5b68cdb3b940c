package authgate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisIdentityRepository is the default [IdentityRepository]. The
// lookup-key → member-id mapping is written with SETNX so concurrent
// first-time verifications of the same phone race safely: exactly one writer
// wins and every caller reads the winner's id back.
type redisIdentityRepository struct {
	redis  redis.UniversalClient
	prefix string
}

func newRedisIdentityRepository(client redis.UniversalClient, prefix string) *redisIdentityRepository {
	return &redisIdentityRepository{redis: client, prefix: prefix}
}

func (s *redisIdentityRepository) lookup(lookupKey string) string {
	return s.prefix + ":ident:" + lookupKey
}

func (s *redisIdentityRepository) memberKey(memberID string) string {
	return s.prefix + ":member:" + memberID
}

func (s *redisIdentityRepository) FindOrCreate(ctx context.Context, lookupKey string) (string, bool, error) {
	candidate := uuid.NewString()

	created, err := s.redis.SetNX(ctx, s.lookup(lookupKey), candidate, 0).Result()
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if created {
		if _, err := s.redis.Set(ctx, s.memberKey(candidate), lookupKey, 0).Result(); err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return candidate, true, nil
	}

	memberID, err := s.redis.Get(ctx, s.lookup(lookupKey)).Result()
	if err != nil {
		if err == redis.Nil {
			// Lost a race with a concurrent delete; report a retryable conflict.
			return "", false, ErrIdentityConflict
		}
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return memberID, false, nil
}

func (s *redisIdentityRepository) Exists(ctx context.Context, memberID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.memberKey(memberID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}
