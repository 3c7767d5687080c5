package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"accesscore-service/internal/domain/authz"
	"accesscore-service/internal/service/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRecentStore struct {
	mu       sync.Mutex
	entries  []*authz.LogEntry
	failWith error
}

func (f *fakeRecentStore) Append(_ context.Context, entry *authz.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.entries = append([]*authz.LogEntry{entry}, f.entries...)
	return nil
}

func (f *fakeRecentStore) List(_ context.Context, filter authz.HistoryFilter) ([]*authz.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return filterEntries(f.entries, filter), nil
}

func (f *fakeRecentStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeAuditRepo struct {
	mu       sync.Mutex
	entries  []*authz.LogEntry
	failWith error
}

func (f *fakeAuditRepo) Insert(_ context.Context, entry *authz.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.entries = append([]*authz.LogEntry{entry}, f.entries...)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, filter authz.HistoryFilter) ([]*authz.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return filterEntries(f.entries, filter), nil
}

func (f *fakeAuditRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *fakeAuditRepo) latest() *authz.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return nil
	}
	return f.entries[0]
}

func filterEntries(entries []*authz.LogEntry, filter authz.HistoryFilter) []*authz.LogEntry {
	out := []*authz.LogEntry{}
	for _, e := range entries {
		if filter.SubjectID != "" && e.SubjectID != filter.SubjectID {
			continue
		}
		if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
			continue
		}
		out = append(out, e)
	}
	return out
}

type fakeDecisionCache struct {
	mu          sync.Mutex
	store       map[string]*authz.Decision
	invalidated []string
}

func newFakeDecisionCache() *fakeDecisionCache {
	return &fakeDecisionCache{store: map[string]*authz.Decision{}}
}

func (f *fakeDecisionCache) Get(_ context.Context, request *authz.Request) (*authz.Decision, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.store[request.Subject.ID+"|"+request.Action]
	return d, ok, nil
}

func (f *fakeDecisionCache) Set(_ context.Context, request *authz.Request, decision *authz.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[request.Subject.ID+"|"+request.Action] = decision
	return nil
}

func (f *fakeDecisionCache) InvalidateSubject(_ context.Context, subjectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, subjectID)
	return nil
}

func testRequest() *authz.Request {
	return &authz.Request{
		Subject: authz.SubjectRef{
			ID:              "subj-1",
			Roles:           []string{"member"},
			OrganizationIDs: []string{"org-1"},
			State:           "active",
		},
		Resource: authz.ResourceRef{ID: "doc-9", Type: "document", OwnerID: "subj-1"},
		Action:   "read",
		Context:  map[string]interface{}{"ip": "10.0.0.1", "businessHours": true},
	}
}

func policyServer(t *testing.T, allow bool, reason string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if allow {
			w.Write([]byte(`{"allow": true}`))
			return
		}
		w.Write([]byte(`{"allow": false, "reason": "` + reason + `"}`))
	}))
}

func TestCheckAccessAllow(t *testing.T) {
	server := policyServer(t, true, "")
	defer server.Close()

	recent := &fakeRecentStore{}
	durable := &fakeAuditRepo{}
	gw := NewGateway(policy.NewClient(server.URL, "/v1/decision", time.Second), recent, durable, nil, zap.NewNop())

	decision := gw.CheckAccess(context.Background(), testRequest(), Meta{SessionID: "sess-1", IP: "10.0.0.1"})
	require.True(t, decision.Allow)
	assert.NotEmpty(t, decision.CorrelationID)
	assert.False(t, decision.Cached)

	require.Eventually(t, func() bool {
		return durable.count() == 1 && recent.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	entry := durable.latest()
	assert.Equal(t, "subj-1", entry.SubjectID)
	assert.Equal(t, "doc-9", entry.ResourceID)
	assert.Equal(t, "read", entry.Action)
	assert.Equal(t, decision.CorrelationID, entry.CorrelationID)
	assert.Equal(t, "sess-1", entry.SessionID)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestCheckAccessDeny(t *testing.T) {
	server := policyServer(t, false, "owner mismatch")
	defer server.Close()

	gw := NewGateway(policy.NewClient(server.URL, "/v1/decision", time.Second), &fakeRecentStore{}, &fakeAuditRepo{}, nil, zap.NewNop())

	decision := gw.CheckAccess(context.Background(), testRequest(), Meta{})
	assert.False(t, decision.Allow)
	assert.Equal(t, "owner mismatch", decision.Reason)
}

func TestCheckAccessDeniesOnEngineError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	gw := NewGateway(policy.NewClient(server.URL, "/v1/decision", time.Second), &fakeRecentStore{}, &fakeAuditRepo{}, nil, zap.NewNop())

	decision := gw.CheckAccess(context.Background(), testRequest(), Meta{})
	assert.False(t, decision.Allow)
	assert.NotEmpty(t, decision.Reason)
}

func TestCheckAccessDeniesOnEngineTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`{"allow": true}`))
	}))
	defer server.Close()

	gw := NewGateway(policy.NewClient(server.URL, "/v1/decision", 50*time.Millisecond), &fakeRecentStore{}, &fakeAuditRepo{}, nil, zap.NewNop())

	decision := gw.CheckAccess(context.Background(), testRequest(), Meta{})
	assert.False(t, decision.Allow)
	assert.NotEmpty(t, decision.Reason)
}

func TestCheckAccessDeniesWhenEngineUnreachable(t *testing.T) {
	server := policyServer(t, true, "")
	server.Close() // nothing listening

	gw := NewGateway(policy.NewClient(server.URL, "/v1/decision", time.Second), &fakeRecentStore{}, &fakeAuditRepo{}, nil, zap.NewNop())

	decision := gw.CheckAccess(context.Background(), testRequest(), Meta{})
	assert.False(t, decision.Allow)
	assert.NotEmpty(t, decision.Reason)
}

// Every check lands exactly one durable entry even when the recent store
// is down, and the decision itself is unaffected.
func TestAuditDurabilityWithRecentStoreDown(t *testing.T) {
	server := policyServer(t, true, "")
	defer server.Close()

	recent := &fakeRecentStore{failWith: errors.New("redis unreachable")}
	durable := &fakeAuditRepo{}
	gw := NewGateway(policy.NewClient(server.URL, "/v1/decision", time.Second), recent, durable, nil, zap.NewNop())

	decision := gw.CheckAccess(context.Background(), testRequest(), Meta{})
	require.True(t, decision.Allow)

	require.Eventually(t, func() bool { return durable.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, durable.count(), "expected exactly one durable entry")
}

func TestGetHistoryPrefersRecentStore(t *testing.T) {
	recent := &fakeRecentStore{}
	durable := &fakeAuditRepo{}
	gw := NewGateway(nil, recent, durable, nil, zap.NewNop())

	now := time.Now().UTC()
	recent.entries = []*authz.LogEntry{{SubjectID: "subj-1", Action: "read", Timestamp: now}}
	durable.entries = []*authz.LogEntry{{SubjectID: "subj-1", Action: "stale", Timestamp: now.Add(-time.Hour)}}

	entries := gw.GetHistory(context.Background(), authz.HistoryFilter{SubjectID: "subj-1", Limit: 10})
	require.Len(t, entries, 1)
	assert.Equal(t, "read", entries[0].Action)
}

func TestGetHistoryFallsBackToDurableStore(t *testing.T) {
	recent := &fakeRecentStore{failWith: errors.New("redis unreachable")}
	durable := &fakeAuditRepo{}
	gw := NewGateway(nil, recent, durable, nil, zap.NewNop())

	now := time.Now().UTC()
	durable.entries = []*authz.LogEntry{
		{SubjectID: "subj-1", Action: "write", Timestamp: now},
		{SubjectID: "subj-1", Action: "read", Timestamp: now.Add(-time.Minute)},
	}

	entries := gw.GetHistory(context.Background(), authz.HistoryFilter{SubjectID: "subj-1", Limit: 10})
	require.Len(t, entries, 2)
	assert.Equal(t, "write", entries[0].Action)
}

func TestGetHistoryDegradesToEmpty(t *testing.T) {
	recent := &fakeRecentStore{failWith: errors.New("redis unreachable")}
	durable := &fakeAuditRepo{failWith: errors.New("postgres unreachable")}
	gw := NewGateway(nil, recent, durable, nil, zap.NewNop())

	entries := gw.GetHistory(context.Background(), authz.HistoryFilter{SubjectID: "subj-1", Limit: 10})
	require.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestDecisionCacheShortCircuitsEngine(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"allow": true}`))
	}))
	defer server.Close()

	cache := newFakeDecisionCache()
	gw := NewGateway(policy.NewClient(server.URL, "/v1/decision", time.Second), &fakeRecentStore{}, &fakeAuditRepo{}, cache, zap.NewNop())

	first := gw.CheckAccess(context.Background(), testRequest(), Meta{})
	require.True(t, first.Allow)
	assert.False(t, first.Cached)

	second := gw.CheckAccess(context.Background(), testRequest(), Meta{})
	require.True(t, second.Allow)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, calls)

	// Both checks still audit, and each carries its own correlation id.
	assert.NotEqual(t, first.CorrelationID, second.CorrelationID)
}

func TestInvalidateCache(t *testing.T) {
	cache := newFakeDecisionCache()
	gw := NewGateway(nil, &fakeRecentStore{}, &fakeAuditRepo{}, cache, zap.NewNop())

	gw.InvalidateCache(context.Background(), "subj-1")
	assert.Equal(t, []string{"subj-1"}, cache.invalidated)
}
