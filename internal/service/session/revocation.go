// internal/service/session/revocation.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationStore keeps the revocation denylist in Redis. Writes are
// keyed and independent, so Redis' own locking is all the concurrency
// control this needs.
type RedisRevocationStore struct {
	client *redis.Client
}

func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

// RevokeSession marks a single session id as dead for ttl.
func (r *RedisRevocationStore) RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	return r.client.Set(ctx, r.sessionKey(sessionID), "1", ttl).Err()
}

// RevokeSubject marks every session the subject created at or before the
// given instant as dead for ttl.
func (r *RedisRevocationStore) RevokeSubject(ctx context.Context, subjectID string, at time.Time, ttl time.Duration) error {
	return r.client.Set(ctx, r.subjectKey(subjectID), at.UTC().Format(time.RFC3339Nano), ttl).Err()
}

// IsSessionRevoked checks the per-session denylist entry.
func (r *RedisRevocationStore) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	exists, err := r.client.Exists(ctx, r.sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
	return exists > 0, nil
}

// SubjectRevokedAt returns the instant of the last logout-all for the
// subject, if one is still in effect.
func (r *RedisRevocationStore) SubjectRevokedAt(ctx context.Context, subjectID string) (time.Time, bool, error) {
	value, err := r.client.Get(ctx, r.subjectKey(subjectID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to check subject revocation: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed subject revocation entry: %w", err)
	}
	return at, true, nil
}

func (r *RedisRevocationStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("revoked:session:%s", sessionID)
}

func (r *RedisRevocationStore) subjectKey(subjectID string) string {
	return fmt.Sprintf("revoked:subject:%s", subjectID)
}
