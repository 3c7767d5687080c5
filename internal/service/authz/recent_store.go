// internal/service/authz/recent_store.go
package authz

import (
	"context"
	"encoding/json"
	"fmt"

	"accesscore-service/internal/domain/authz"

	"github.com/redis/go-redis/v9"
)

// defaultRecentLimit bounds each Redis list. Older entries fall off the
// tail; the durable store is the permanent record.
const defaultRecentLimit = 1000

// RedisRecentStore keeps the recent side of the audit trail in bounded
// Redis lists, one per subject, one per resource, plus a global list.
// Entries are JSON with RFC3339Nano timestamps, so no precision is lost
// relative to the durable store.
type RedisRecentStore struct {
	client     *redis.Client
	maxEntries int64
}

func NewRedisRecentStore(client *redis.Client, maxEntries int64) *RedisRecentStore {
	if maxEntries <= 0 {
		maxEntries = defaultRecentLimit
	}
	return &RedisRecentStore{client: client, maxEntries: maxEntries}
}

// Append pushes the entry onto every list it belongs to and trims each
// back to the bound. LPUSH keeps lists most-recent-first.
func (s *RedisRecentStore) Append(ctx context.Context, entry *authz.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	keys := []string{s.globalKey()}
	if entry.SubjectID != "" {
		keys = append(keys, s.subjectKey(entry.SubjectID))
	}
	if entry.ResourceID != "" {
		keys = append(keys, s.resourceKey(entry.ResourceID))
	}

	pipe := s.client.Pipeline()
	for _, key := range keys {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, s.maxEntries-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append recent audit entry: %w", err)
	}
	return nil
}

// List reads a page of entries most-recent-first. A subject filter wins
// over a resource filter; with neither, the global list answers.
func (s *RedisRecentStore) List(ctx context.Context, filter authz.HistoryFilter) ([]*authz.LogEntry, error) {
	key := s.globalKey()
	switch {
	case filter.SubjectID != "":
		key = s.subjectKey(filter.SubjectID)
	case filter.ResourceID != "":
		key = s.resourceKey(filter.ResourceID)
	}

	start := int64(filter.Offset)
	stop := start + int64(filter.Limit) - 1
	if combinedFilter(filter) {
		// The resource constraint has to apply before the page is cut or
		// combined-filter pages under-fill. Scan the whole bounded list
		// and page in-process, matching the durable store's
		// WHERE-then-LIMIT ordering.
		start, stop = 0, s.maxEntries-1
	}

	raw, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent audit entries: %w", err)
	}
	return decodeRecentPage(raw, filter), nil
}

func combinedFilter(filter authz.HistoryFilter) bool {
	return filter.SubjectID != "" && filter.ResourceID != ""
}

// decodeRecentPage parses raw list items, applies the resource constraint
// when the subject list served a combined filter, then cuts the page.
// Entries that no longer parse are skipped rather than failing the page.
func decodeRecentPage(raw []string, filter authz.HistoryFilter) []*authz.LogEntry {
	entries := make([]*authz.LogEntry, 0, len(raw))
	for _, item := range raw {
		var entry authz.LogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		if combinedFilter(filter) && entry.ResourceID != filter.ResourceID {
			continue
		}
		entries = append(entries, &entry)
	}

	if combinedFilter(filter) {
		if filter.Offset >= len(entries) {
			return []*authz.LogEntry{}
		}
		entries = entries[filter.Offset:]
		if filter.Limit > 0 && len(entries) > filter.Limit {
			entries = entries[:filter.Limit]
		}
	}
	return entries
}

func (s *RedisRecentStore) globalKey() string {
	return "authz:recent:all"
}

func (s *RedisRecentStore) subjectKey(subjectID string) string {
	return fmt.Sprintf("authz:recent:subject:%s", subjectID)
}

func (s *RedisRecentStore) resourceKey(resourceID string) string {
	return fmt.Sprintf("authz:recent:resource:%s", resourceID)
}
