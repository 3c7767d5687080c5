package session

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"accesscore-service/internal/domain/identity"
	domain "accesscore-service/internal/domain/session"
	xerrors "accesscore-service/internal/pkg/errors"
	"accesscore-service/internal/pkg/sessiontoken"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubjectResolver struct {
	subjects map[string]*identity.Subject
}

func (f *fakeSubjectResolver) FindSubjectByID(_ context.Context, id string) (*identity.Subject, error) {
	subject, ok := f.subjects[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return subject, nil
}

type fakeRevocationStore struct {
	sessions map[string]bool
	subjects map[string]time.Time
	failWith error
}

func newFakeRevocationStore() *fakeRevocationStore {
	return &fakeRevocationStore{
		sessions: map[string]bool{},
		subjects: map[string]time.Time{},
	}
}

func (f *fakeRevocationStore) RevokeSession(_ context.Context, sessionID string, _ time.Duration) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.sessions[sessionID] = true
	return nil
}

func (f *fakeRevocationStore) RevokeSubject(_ context.Context, subjectID string, at time.Time, _ time.Duration) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.subjects[subjectID] = at
	return nil
}

func (f *fakeRevocationStore) IsSessionRevoked(_ context.Context, sessionID string) (bool, error) {
	if f.failWith != nil {
		return false, f.failWith
	}
	return f.sessions[sessionID], nil
}

func (f *fakeRevocationStore) SubjectRevokedAt(_ context.Context, subjectID string) (time.Time, bool, error) {
	if f.failWith != nil {
		return time.Time{}, false, f.failWith
	}
	at, ok := f.subjects[subjectID]
	return at, ok, nil
}

func activeSubject(id string) *identity.Subject {
	return &identity.Subject{
		ID:              id,
		Email:           sql.NullString{String: id + "@example.com", Valid: true},
		Username:        sql.NullString{String: id, Valid: true},
		Status:          "active",
		Roles:           []string{"member"},
		OrganizationIDs: []string{"org-1"},
	}
}

func newTestService(t *testing.T) (*Service, *fakeSubjectResolver, *fakeRevocationStore) {
	t.Helper()

	codec, err := sessiontoken.NewCodec("unit-test-secret")
	require.NoError(t, err)

	resolver := &fakeSubjectResolver{subjects: map[string]*identity.Subject{
		"subj-1": activeSubject("subj-1"),
	}}
	revocations := newFakeRevocationStore()

	svc := NewService(resolver, codec, revocations, time.Hour, zap.NewNop())
	return svc, resolver, revocations
}

func TestCreateAndValidate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	record, token, err := svc.Create(ctx, "subj-1", "fp-1", domain.OriginInteractiveLogin)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, "subj-1", record.SubjectID)
	assert.NotEmpty(t, record.SessionID)
	assert.Equal(t, domain.OriginInteractiveLogin, record.OriginSource)

	got, err := svc.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, record.SessionID, got.SessionID)
	assert.Equal(t, []string{"member"}, got.Roles)
}

func TestCreateUnknownSubject(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.Create(context.Background(), "nobody", "", domain.OriginAPI)
	assert.ErrorIs(t, err, xerrors.ErrIdentityNotFound)
}

func TestCreateSuspendedSubject(t *testing.T) {
	svc, resolver, _ := newTestService(t)
	suspended := activeSubject("subj-2")
	suspended.Status = "suspended"
	resolver.subjects["subj-2"] = suspended

	_, _, err := svc.Create(context.Background(), "subj-2", "", domain.OriginAPI)
	assert.ErrorIs(t, err, xerrors.ErrIdentityNotFound)
}

func TestSessionIDsAreUnique(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		record, _, err := svc.Create(ctx, "subj-1", "", domain.OriginAPI)
		require.NoError(t, err)
		require.False(t, seen[record.SessionID], "session id reused")
		seen[record.SessionID] = true
	}
}

func TestRefreshIsMonotonic(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	record, _, err := svc.Create(ctx, "subj-1", "", domain.OriginDashboard)
	require.NoError(t, err)
	createdAt := record.CreatedAt

	last := record.LastActivityAt
	current := record
	for i := 0; i < 10; i++ {
		refreshed, token, err := svc.Refresh(ctx, current)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		assert.False(t, refreshed.LastActivityAt.Before(last), "last activity moved backwards")
		assert.True(t, refreshed.CreatedAt.Equal(createdAt), "created at changed on refresh")
		assert.Equal(t, record.SessionID, refreshed.SessionID)

		last = refreshed.LastActivityAt
		current = refreshed
	}
}

func TestValidateRejectsStaleSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	codec, err := sessiontoken.NewCodec("unit-test-secret")
	require.NoError(t, err)

	// Structurally well formed and unexpired at the codec layer, but the
	// last activity is older than the freshness window.
	stale := &domain.Record{
		SubjectID:      "subj-1",
		SessionID:      "01JD0YB3S8Z2V4N6Q8RTWXK5MA",
		CreatedAt:      time.Now().Add(-3 * time.Hour),
		LastActivityAt: time.Now().Add(-2 * time.Hour),
		OriginSource:   domain.OriginAPI,
	}
	token, err := codec.Encode(stale, time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), token)
	assert.ErrorIs(t, err, xerrors.ErrInvalidSession)
}

func TestValidateAfterInvalidate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	record, token, err := svc.Create(ctx, "subj-1", "", domain.OriginAPI)
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(ctx, record.SessionID))

	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, xerrors.ErrInvalidSession)
}

func TestValidateAfterInvalidateAll(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, first, err := svc.Create(ctx, "subj-1", "", domain.OriginAPI)
	require.NoError(t, err)
	_, second, err := svc.Create(ctx, "subj-1", "", domain.OriginDashboard)
	require.NoError(t, err)

	require.NoError(t, svc.InvalidateAll(ctx, "subj-1"))

	_, err = svc.Validate(ctx, first)
	assert.ErrorIs(t, err, xerrors.ErrInvalidSession)
	_, err = svc.Validate(ctx, second)
	assert.ErrorIs(t, err, xerrors.ErrInvalidSession)

	// Sessions established after the logout-all are unaffected.
	time.Sleep(5 * time.Millisecond)
	_, fresh, err := svc.Create(ctx, "subj-1", "", domain.OriginAPI)
	require.NoError(t, err)
	_, err = svc.Validate(ctx, fresh)
	assert.NoError(t, err)
}

func TestValidateFailsClosedOnRevocationStoreError(t *testing.T) {
	svc, _, revocations := newTestService(t)
	ctx := context.Background()

	_, token, err := svc.Create(ctx, "subj-1", "", domain.OriginAPI)
	require.NoError(t, err)

	revocations.failWith = errors.New("redis unreachable")
	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, xerrors.ErrInvalidSession)
}

func TestValidateRejectsVanishedSubject(t *testing.T) {
	svc, resolver, _ := newTestService(t)
	ctx := context.Background()

	_, token, err := svc.Create(ctx, "subj-1", "", domain.OriginAPI)
	require.NoError(t, err)

	delete(resolver.subjects, "subj-1")
	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, xerrors.ErrInvalidSession)
}

func TestValidateReflectsRoleChanges(t *testing.T) {
	svc, resolver, _ := newTestService(t)
	ctx := context.Background()

	_, token, err := svc.Create(ctx, "subj-1", "", domain.OriginAPI)
	require.NoError(t, err)

	resolver.subjects["subj-1"].Roles = []string{"member", "admin"}
	got, err := svc.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, []string{"member", "admin"}, got.Roles)
}
