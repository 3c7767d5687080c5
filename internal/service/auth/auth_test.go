package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	domidentity "accesscore-service/internal/domain/identity"
	domoauth "accesscore-service/internal/domain/oauth"
	xerrors "accesscore-service/internal/pkg/errors"
	"accesscore-service/internal/pkg/sessiontoken"
	sessionsvc "accesscore-service/internal/service/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeExchanger struct {
	exchangeErr error
	identity    *domoauth.NormalizedIdentity
}

func (f *fakeExchanger) ExchangeCode(_ context.Context, provider, code string) (*domoauth.TokenResult, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &domoauth.TokenResult{AccessToken: "at-1", TokenType: "bearer", Attempts: 1}, nil
}

func (f *fakeExchanger) FetchIdentity(_ context.Context, provider string, _ *domoauth.TokenResult) (*domoauth.NormalizedIdentity, error) {
	if f.identity == nil {
		return nil, xerrors.ErrNoUsableIdentity
	}
	return f.identity, nil
}

func (f *fakeExchanger) AuthCodeURL(provider, state string) (string, error) {
	return "https://provider.example.com/auth?state=" + state, nil
}

// fakeIdentityStore doubles as the session service's subject resolver so
// the upserted subject is immediately resolvable.
type fakeIdentityStore struct {
	subjects map[string]*domidentity.Subject
}

func (f *fakeIdentityStore) UpsertFromProvider(_ context.Context, ident *domoauth.NormalizedIdentity) (*domidentity.Subject, error) {
	subject := &domidentity.Subject{
		ID:              "subj-" + ident.ProviderUserID,
		Email:           sql.NullString{String: ident.Email, Valid: true},
		Username:        sql.NullString{String: ident.Username, Valid: true},
		DisplayName:     sql.NullString{String: ident.DisplayName, Valid: ident.DisplayName != ""},
		Status:          "active",
		Roles:           []string{"member"},
		OrganizationIDs: []string{},
	}
	f.subjects[subject.ID] = subject
	return subject, nil
}

func (f *fakeIdentityStore) FindSubjectByID(_ context.Context, id string) (*domidentity.Subject, error) {
	subject, ok := f.subjects[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return subject, nil
}

type fakeRevocations struct {
	sessions map[string]bool
	subjects map[string]time.Time
}

func newFakeRevocations() *fakeRevocations {
	return &fakeRevocations{sessions: map[string]bool{}, subjects: map[string]time.Time{}}
}

func (f *fakeRevocations) RevokeSession(_ context.Context, id string, _ time.Duration) error {
	f.sessions[id] = true
	return nil
}

func (f *fakeRevocations) RevokeSubject(_ context.Context, id string, at time.Time, _ time.Duration) error {
	f.subjects[id] = at
	return nil
}

func (f *fakeRevocations) IsSessionRevoked(_ context.Context, id string) (bool, error) {
	return f.sessions[id], nil
}

func (f *fakeRevocations) SubjectRevokedAt(_ context.Context, id string) (time.Time, bool, error) {
	at, ok := f.subjects[id]
	return at, ok, nil
}

type fakeLimiter struct {
	allowed bool
	resets  int
}

func (f *fakeLimiter) CheckSignInAttempt(_ context.Context, ip, provider string) (bool, error) {
	return f.allowed, nil
}

func (f *fakeLimiter) ResetSignInAttempts(_ context.Context, ip, provider string) error {
	f.resets++
	return nil
}

func newSignInFixture(t *testing.T, limiter SignInLimiter) (*Service, *sessionsvc.Service, *fakeIdentityStore, *fakeExchanger) {
	t.Helper()

	codec, err := sessiontoken.NewCodec("sign-in-test-secret")
	require.NoError(t, err)

	store := &fakeIdentityStore{subjects: map[string]*domidentity.Subject{}}
	sessions := sessionsvc.NewService(store, codec, newFakeRevocations(), time.Hour, zap.NewNop())

	exchanger := &fakeExchanger{identity: &domoauth.NormalizedIdentity{
		ProviderUserID: "42",
		Email:          "octo@example.com",
		Username:       "octo",
		DisplayName:    "Octo Cat",
		EmailVerified:  true,
		Provider:       "github",
	}}

	svc := NewService(exchanger, store, sessions, limiter, zap.NewNop())
	return svc, sessions, store, exchanger
}

func TestFederatedSignIn(t *testing.T) {
	svc, sessions, _, _ := newSignInFixture(t, nil)
	ctx := context.Background()

	resp, err := svc.FederatedSignIn(ctx, "github", &domidentity.SignInRequest{Code: "code-1", IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.SessionToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "subj-42", resp.User.SubjectID)
	assert.Equal(t, "octo@example.com", resp.User.Email)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	record, err := sessions.Validate(ctx, resp.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "subj-42", record.SubjectID)
}

func TestFederatedSignInExchangeFailure(t *testing.T) {
	svc, _, _, exchanger := newSignInFixture(t, nil)
	exchanger.exchangeErr = errors.New("invalid_grant: code already consumed")

	_, err := svc.FederatedSignIn(context.Background(), "github", &domidentity.SignInRequest{Code: "code-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token exchange failed")
}

func TestFederatedSignInRateLimited(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}
	svc, _, _, _ := newSignInFixture(t, limiter)

	_, err := svc.FederatedSignIn(context.Background(), "github", &domidentity.SignInRequest{Code: "code-1", IPAddress: "10.0.0.1"})
	assert.ErrorIs(t, err, xerrors.ErrRateLimited)
}

func TestFederatedSignInResetsLimiter(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}
	svc, _, _, _ := newSignInFixture(t, limiter)

	_, err := svc.FederatedSignIn(context.Background(), "github", &domidentity.SignInRequest{Code: "code-1", IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.resets)
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, sessions, _, _ := newSignInFixture(t, nil)
	ctx := context.Background()

	resp, err := svc.FederatedSignIn(ctx, "github", &domidentity.SignInRequest{Code: "code-1"})
	require.NoError(t, err)

	record, err := sessions.Validate(ctx, resp.SessionToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, record))
	_, err = sessions.Validate(ctx, resp.SessionToken)
	assert.ErrorIs(t, err, xerrors.ErrInvalidSession)
}
