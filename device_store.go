package authgate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisDeviceRepository is the default [DeviceRepository] backed by Redis
// hashes. One hash per device plus a phone index set mapping a phone number to
// the device ids currently holding it, which serves the cross-device claim and
// ban checks without scanning.
//
//	Performance: Get/Save are 1-2 Redis commands; the phone checks are one
//	SMEMBERS plus one HGETALL per indexed device.
type redisDeviceRepository struct {
	redis  redis.UniversalClient
	prefix string
}

func newRedisDeviceRepository(client redis.UniversalClient, prefix string) *redisDeviceRepository {
	return &redisDeviceRepository{redis: client, prefix: prefix}
}

func (s *redisDeviceRepository) key(deviceID string) string {
	return s.prefix + ":dev:" + deviceID
}

func (s *redisDeviceRepository) phoneKey(phone string) string {
	return s.prefix + ":devphone:" + phone
}

func (s *redisDeviceRepository) Get(ctx context.Context, deviceID string) (*DeviceRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(deviceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return deviceFromFields(deviceID, fields), nil
}

func (s *redisDeviceRepository) Save(ctx context.Context, rec *DeviceRecord) error {
	prev, err := s.Get(ctx, rec.DeviceID)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(rec.DeviceID), deviceToFields(rec))
		if prev != nil && prev.PhoneNumber != "" && prev.PhoneNumber != rec.PhoneNumber {
			pipe.SRem(ctx, s.phoneKey(prev.PhoneNumber), rec.DeviceID)
		}
		if rec.PhoneNumber != "" {
			pipe.SAdd(ctx, s.phoneKey(rec.PhoneNumber), rec.DeviceID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *redisDeviceRepository) DecrementAttempts(ctx context.Context, deviceID string) (int64, error) {
	remaining, err := s.redis.HIncrBy(ctx, s.key(deviceID), "attempts_left", -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return remaining, nil
}

func (s *redisDeviceRepository) Attach(ctx context.Context, deviceID, memberID string) error {
	_, err := s.redis.HSet(ctx, s.key(deviceID), map[string]interface{}{
		"member_id":         memberID,
		"secret_code":       "",
		"secret_created_at": int64(0),
		"attempts_left":     initialAttemptsCount,
	}).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *redisDeviceRepository) PhoneBanned(ctx context.Context, phone string) (bool, error) {
	recs, err := s.byPhone(ctx, phone)
	if err != nil {
		return false, err
	}
	for _, rec := range recs {
		if banned(rec.AttemptsLeft) {
			return true, nil
		}
	}
	return false, nil
}

func (s *redisDeviceRepository) PhoneClaimedElsewhere(ctx context.Context, phone, deviceID string, cutoff time.Time) (bool, error) {
	recs, err := s.byPhone(ctx, phone)
	if err != nil {
		return false, err
	}
	for _, rec := range recs {
		if rec.DeviceID == deviceID {
			continue
		}
		if rec.HasPendingCode(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (s *redisDeviceRepository) byPhone(ctx context.Context, phone string) ([]*DeviceRecord, error) {
	ids, err := s.redis.SMembers(ctx, s.phoneKey(phone)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	recs := make([]*DeviceRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil || rec.PhoneNumber != phone {
			// Stale index entry from a device that moved on.
			s.redis.SRem(ctx, s.phoneKey(phone), id)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func deviceToFields(rec *DeviceRecord) map[string]interface{} {
	return map[string]interface{}{
		"phone":             rec.PhoneNumber,
		"secret_code":       rec.SecretCode,
		"secret_created_at": timeToUnix(rec.SecretCreatedAt),
		"attempts_left":     rec.AttemptsLeft,
		"member_id":         rec.MemberID,
	}
}

func deviceFromFields(deviceID string, fields map[string]string) *DeviceRecord {
	return &DeviceRecord{
		DeviceID:        deviceID,
		PhoneNumber:     fields["phone"],
		SecretCode:      fields["secret_code"],
		SecretCreatedAt: unixToTime(fields["secret_created_at"]),
		AttemptsLeft:    parseInt64(fields["attempts_left"]),
		MemberID:        fields["member_id"],
	}
}

func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func unixToTime(s string) time.Time {
	sec := parseInt64(s)
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
