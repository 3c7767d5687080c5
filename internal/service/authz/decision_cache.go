// internal/service/authz/decision_cache.go
package authz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"accesscore-service/internal/domain/authz"

	"github.com/redis/go-redis/v9"
)

// RedisDecisionCache stores decisions keyed by a digest of the full
// request tuple, scoped under the subject id so one SCAN sweep can
// invalidate everything a subject ever cached.
type RedisDecisionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDecisionCache(client *redis.Client, ttl time.Duration) *RedisDecisionCache {
	return &RedisDecisionCache{client: client, ttl: ttl}
}

func (c *RedisDecisionCache) Get(ctx context.Context, request *authz.Request) (*authz.Decision, bool, error) {
	key, err := c.key(request)
	if err != nil {
		return nil, false, err
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached decision: %w", err)
	}

	var decision authz.Decision
	if err := json.Unmarshal(data, &decision); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached decision: %w", err)
	}
	return &decision, true, nil
}

func (c *RedisDecisionCache) Set(ctx context.Context, request *authz.Request, decision *authz.Decision) error {
	key, err := c.key(request)
	if err != nil {
		return err
	}

	data, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// InvalidateSubject deletes every cached decision under the subject's
// prefix, the same SCAN-and-delete sweep used for session cleanup.
func (c *RedisDecisionCache) InvalidateSubject(ctx context.Context, subjectID string) error {
	pattern := fmt.Sprintf("authz:decision:%s:*", subjectID)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete cached decision %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// key digests the canonical JSON of the whole request tuple. Any change
// to subject attributes, resource, action or context lands on a fresh key.
func (c *RedisDecisionCache) key(request *authz.Request) (string, error) {
	canonical, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request for cache key: %w", err)
	}
	digest := sha256.Sum256(canonical)
	return fmt.Sprintf("authz:decision:%s:%s", request.Subject.ID, hex.EncodeToString(digest[:])), nil
}
