// internal/service/auth/auth.go
package auth

import (
	"context"
	"fmt"

	domidentity "accesscore-service/internal/domain/identity"
	domoauth "accesscore-service/internal/domain/oauth"
	domsession "accesscore-service/internal/domain/session"
	xerrors "accesscore-service/internal/pkg/errors"
	sessionsvc "accesscore-service/internal/service/session"

	"go.uber.org/zap"
)

// TokenExchanger is the external-identity exchange state machine.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, provider, code string) (*domoauth.TokenResult, error)
	FetchIdentity(ctx context.Context, provider string, result *domoauth.TokenResult) (*domoauth.NormalizedIdentity, error)
	AuthCodeURL(provider, state string) (string, error)
}

// IdentityStore seeds and resolves local subjects.
type IdentityStore interface {
	UpsertFromProvider(ctx context.Context, ident *domoauth.NormalizedIdentity) (*domidentity.Subject, error)
}

// SignInLimiter throttles sign-in attempts per origin IP.
type SignInLimiter interface {
	CheckSignInAttempt(ctx context.Context, ip, provider string) (bool, error)
	ResetSignInAttempts(ctx context.Context, ip, provider string) error
}

// Service drives federated sign-in: token exchange, identity
// normalization, subject upsert, then session issuance.
type Service struct {
	exchanger  TokenExchanger
	identities IdentityStore
	sessions   *sessionsvc.Service
	limiter    SignInLimiter
	logger     *zap.Logger
}

func NewService(
	exchanger TokenExchanger,
	identities IdentityStore,
	sessions *sessionsvc.Service,
	limiter SignInLimiter,
	logger *zap.Logger,
) *Service {
	return &Service{
		exchanger:  exchanger,
		identities: identities,
		sessions:   sessions,
		limiter:    limiter,
		logger:     logger,
	}
}

// AuthCodeURL builds the provider redirect that starts a sign-in.
func (s *Service) AuthCodeURL(provider, state string) (string, error) {
	return s.exchanger.AuthCodeURL(provider, state)
}

// FederatedSignIn runs the full sign-in control flow for a provider
// callback. The exchange result seeds the local subject, and the subject
// seeds the session.
func (s *Service) FederatedSignIn(ctx context.Context, provider string, req *domidentity.SignInRequest) (*domidentity.LoginResponse, error) {
	if s.limiter != nil && req.IPAddress != "" {
		allowed, err := s.limiter.CheckSignInAttempt(ctx, req.IPAddress, provider)
		if err != nil {
			// The limiter is backed by the cache tier; if it is down we
			// still let sign-ins through rather than locking everyone out.
			s.logger.Warn("sign-in rate limiter unavailable", zap.Error(err))
		} else if !allowed {
			return nil, xerrors.ErrRateLimited
		}
	}

	result, err := s.exchanger.ExchangeCode(ctx, provider, req.Code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	ident, err := s.exchanger.FetchIdentity(ctx, provider, result)
	if err != nil {
		return nil, fmt.Errorf("identity fetch failed: %w", err)
	}

	subject, err := s.identities.UpsertFromProvider(ctx, ident)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subject: %w", err)
	}

	record, token, err := s.sessions.Create(ctx, subject.ID, req.DeviceFingerprint, domsession.OriginInteractiveLogin)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if s.limiter != nil && req.IPAddress != "" {
		if err := s.limiter.ResetSignInAttempts(ctx, req.IPAddress, provider); err != nil {
			s.logger.Warn("failed to reset sign-in attempts", zap.Error(err))
		}
	}

	s.logger.Info("federated sign-in",
		zap.String("provider", provider),
		zap.String("subject_id", subject.ID),
		zap.String("session_id", record.SessionID))

	return &domidentity.LoginResponse{
		SessionToken: token,
		TokenType:    "Bearer",
		ExpiresAt:    record.LastActivityAt.Add(s.sessions.Window()),
		User: domidentity.UserInfo{
			SubjectID:       subject.ID,
			Email:           subject.Email.String,
			Username:        subject.Username.String,
			DisplayName:     subject.DisplayName.String,
			Roles:           subject.Roles,
			OrganizationIDs: subject.OrganizationIDs,
		},
	}, nil
}

// Refresh re-issues the caller's session token with updated activity.
func (s *Service) Refresh(ctx context.Context, record *domsession.Record) (*domsession.Record, string, error) {
	return s.sessions.Refresh(ctx, record)
}

// Logout revokes the caller's current session.
func (s *Service) Logout(ctx context.Context, record *domsession.Record) error {
	return s.sessions.Invalidate(ctx, record.SessionID)
}

// LogoutAll revokes every session held by the subject.
func (s *Service) LogoutAll(ctx context.Context, subjectID string) error {
	return s.sessions.InvalidateAll(ctx, subjectID)
}
