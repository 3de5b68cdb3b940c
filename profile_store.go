package authgate

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisProfileRepository is the default [ProfileRepository] backed by Redis
// hashes, one per member, plus a reverse index mapping an outstanding email
// enrollment secret back to its member id so the link-callback lookup is a
// single GET.
type redisProfileRepository struct {
	redis  redis.UniversalClient
	prefix string
}

func newRedisProfileRepository(client redis.UniversalClient, prefix string) *redisProfileRepository {
	return &redisProfileRepository{redis: client, prefix: prefix}
}

func (s *redisProfileRepository) key(memberID string) string {
	return s.prefix + ":prof:" + memberID
}

func (s *redisProfileRepository) secretKey(secret string) string {
	return s.prefix + ":emailsecret:" + secret
}

func (s *redisProfileRepository) Get(ctx context.Context, memberID string) (*ProfileRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(memberID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return profileFromFields(memberID, fields), nil
}

func (s *redisProfileRepository) Save(ctx context.Context, rec *ProfileRecord) error {
	prev, err := s.Get(ctx, rec.MemberID)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(rec.MemberID), profileToFields(rec))
		if prev != nil && prev.EmailSecret != "" && prev.EmailSecret != rec.EmailSecret {
			pipe.Del(ctx, s.secretKey(prev.EmailSecret))
		}
		if rec.EmailSecret != "" {
			pipe.Set(ctx, s.secretKey(rec.EmailSecret), rec.MemberID, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *redisProfileRepository) DecrementGoogleAttempts(ctx context.Context, memberID string) (int64, error) {
	remaining, err := s.redis.HIncrBy(ctx, s.key(memberID), "google_attempts_left", -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return remaining, nil
}

func (s *redisProfileRepository) DecrementEmailAttempts(ctx context.Context, memberID string) (int64, error) {
	remaining, err := s.redis.HIncrBy(ctx, s.key(memberID), "email_attempts_left", -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return remaining, nil
}

func (s *redisProfileRepository) FindByEmailSecret(ctx context.Context, secret string) (*ProfileRecord, error) {
	memberID, err := s.redis.Get(ctx, s.secretKey(secret)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	rec, err := s.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.EmailSecret != secret {
		// Stale index entry; the profile moved on to a newer secret.
		s.redis.Del(ctx, s.secretKey(secret))
		return nil, nil
	}
	return rec, nil
}

func profileToFields(rec *ProfileRecord) map[string]interface{} {
	return map[string]interface{}{
		"google_secret":           rec.GoogleSecret,
		"google_temp_secret":      rec.GoogleTempSecret,
		"google_enabled":          boolToField(rec.GoogleEnabled),
		"google_attempts_left":    rec.GoogleAttemptsLeft,
		"email_address":           rec.EmailAddress,
		"email_secret":            rec.EmailSecret,
		"email_secret_created_at": timeToUnix(rec.EmailSecretCreatedAt),
		"email_enabled":           boolToField(rec.EmailEnabled),
		"email_code":              rec.EmailCode,
		"email_attempts_left":     rec.EmailAttemptsLeft,
	}
}

func profileFromFields(memberID string, fields map[string]string) *ProfileRecord {
	return &ProfileRecord{
		MemberID:             memberID,
		GoogleSecret:         fields["google_secret"],
		GoogleTempSecret:     fields["google_temp_secret"],
		GoogleEnabled:        fields["google_enabled"] == "1",
		GoogleAttemptsLeft:   parseInt64(fields["google_attempts_left"]),
		EmailAddress:         fields["email_address"],
		EmailSecret:          fields["email_secret"],
		EmailSecretCreatedAt: unixToTime(fields["email_secret_created_at"]),
		EmailEnabled:         fields["email_enabled"] == "1",
		EmailCode:            fields["email_code"],
		EmailAttemptsLeft:    parseInt64(fields["email_attempts_left"]),
	}
}

func boolToField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
