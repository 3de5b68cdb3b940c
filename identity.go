package authgate

import (
	"context"
	"errors"
)

// phoneLookupKey derives the identity lookup key for a verified phone number.
// The shape is a synthetic email-like address so phone identities and future
// email identities live in one keyspace.
func phoneLookupKey(phone string) string {
	return "phones" + phone + "@phones-email"
}

// retryingResolver is the default [IdentityResolver]: it wraps
// [IdentityRepository.FindOrCreate] and absorbs transient conflicts within a
// bounded retry budget. A conflict surviving the budget surfaces as
// [ErrIdentityConflict].
type retryingResolver struct {
	identities IdentityRepository
	retries    int
}

func (r *retryingResolver) Resolve(ctx context.Context, lookupKey string) (string, bool, error) {
	var lastErr error
	for i := 0; i < r.retries; i++ {
		memberID, created, err := r.identities.FindOrCreate(ctx, lookupKey)
		if err == nil {
			return memberID, created, nil
		}
		if !errors.Is(err, ErrIdentityConflict) {
			return "", false, err
		}
		lastErr = err
	}
	return "", false, lastErr
}
