// internal/service/session/service.go
package session

import (
	"context"
	"fmt"
	"time"

	"accesscore-service/internal/domain/identity"
	"accesscore-service/internal/domain/session"
	xerrors "accesscore-service/internal/pkg/errors"
	"accesscore-service/internal/pkg/sessiontoken"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// SubjectResolver resolves a subject id to its current roles,
// organizations and state. Consulted on every validation so permission
// changes take effect without waiting for token expiry.
type SubjectResolver interface {
	FindSubjectByID(ctx context.Context, id string) (*identity.Subject, error)
}

// RevocationStore is the shared denylist that makes logout effective for
// tokens that are still cryptographically valid. Entries carry a TTL
// equal to the freshness window; after that the token is dead anyway.
type RevocationStore interface {
	RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error
	RevokeSubject(ctx context.Context, subjectID string, at time.Time, ttl time.Duration) error
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
	SubjectRevokedAt(ctx context.Context, subjectID string) (time.Time, bool, error)
}

// Service implements the stateless session protocol: records travel
// inside the encrypted token, the only server-side state is the
// revocation set.
type Service struct {
	subjects    SubjectResolver
	codec       *sessiontoken.Codec
	revocations RevocationStore
	window      time.Duration
	logger      *zap.Logger
}

func NewService(
	subjects SubjectResolver,
	codec *sessiontoken.Codec,
	revocations RevocationStore,
	window time.Duration,
	logger *zap.Logger,
) *Service {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Service{
		subjects:    subjects,
		codec:       codec,
		revocations: revocations,
		window:      window,
		logger:      logger,
	}
}

// Window returns the configured freshness window.
func (s *Service) Window() time.Duration {
	return s.window
}

// Create resolves the subject's current identity attributes and issues a
// new session with a fresh high-entropy session id.
func (s *Service) Create(ctx context.Context, subjectID, deviceFingerprint string, origin session.OriginSource) (*session.Record, string, error) {
	subject, err := s.subjects.FindSubjectByID(ctx, subjectID)
	if err != nil {
		return nil, "", xerrors.ErrIdentityNotFound
	}
	if !subject.IsActive() {
		return nil, "", xerrors.ErrIdentityNotFound
	}
	if !origin.Valid() {
		origin = session.OriginAPI
	}

	now := time.Now().UTC()
	record := &session.Record{
		SubjectID:         subject.ID,
		Email:             subject.Email.String,
		Username:          subject.Username.String,
		Roles:             subject.Roles,
		OrganizationIDs:   subject.OrganizationIDs,
		SessionID:         ulid.Make().String(),
		CreatedAt:         now,
		LastActivityAt:    now,
		DeviceFingerprint: deviceFingerprint,
		OriginSource:      origin,
	}

	token, err := s.codec.Encode(record, now.Add(s.window))
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode session token: %w", err)
	}

	return record, token, nil
}

// Validate opens a token and returns the live session record. Decryption
// failures, tampering, expiry, revocation and vanished subjects all
// resolve to the same ErrInvalidSession; callers treat it as "no
// session".
func (s *Service) Validate(ctx context.Context, token string) (*session.Record, error) {
	record, err := s.codec.Decode(token)
	if err != nil {
		return nil, xerrors.ErrInvalidSession
	}

	if time.Since(record.LastActivityAt) > s.window {
		return nil, xerrors.ErrInvalidSession
	}

	// Revocation-store outages fail closed: a session we cannot vouch
	// for is treated as no session.
	revoked, err := s.revocations.IsSessionRevoked(ctx, record.SessionID)
	if err != nil {
		s.logger.Warn("revocation check failed, treating session as invalid",
			zap.String("session_id", record.SessionID), zap.Error(err))
		return nil, xerrors.ErrInvalidSession
	}
	if revoked {
		return nil, xerrors.ErrInvalidSession
	}

	revokedAt, found, err := s.revocations.SubjectRevokedAt(ctx, record.SubjectID)
	if err != nil {
		s.logger.Warn("subject revocation check failed, treating session as invalid",
			zap.String("subject_id", record.SubjectID), zap.Error(err))
		return nil, xerrors.ErrInvalidSession
	}
	if found && !record.CreatedAt.After(revokedAt) {
		return nil, xerrors.ErrInvalidSession
	}

	subject, err := s.subjects.FindSubjectByID(ctx, record.SubjectID)
	if err != nil {
		return nil, xerrors.ErrInvalidSession
	}
	if !subject.IsActive() {
		return nil, xerrors.ErrInvalidSession
	}

	// Identity attributes come from the store, not the token, so role or
	// membership changes are reflected on the next request.
	record.Email = subject.Email.String
	record.Username = subject.Username.String
	record.Roles = subject.Roles
	record.OrganizationIDs = subject.OrganizationIDs

	return record, nil
}

// Refresh re-issues the token with LastActivityAt moved to now. Identity
// fields and CreatedAt are carried over unchanged, and LastActivityAt
// never moves backwards for a session even under clock skew.
func (s *Service) Refresh(ctx context.Context, record *session.Record) (*session.Record, string, error) {
	now := time.Now().UTC()
	if now.Before(record.LastActivityAt) {
		now = record.LastActivityAt
	}

	refreshed := *record
	refreshed.LastActivityAt = now

	token, err := s.codec.Encode(&refreshed, now.Add(s.window))
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode session token: %w", err)
	}

	return &refreshed, token, nil
}

// Invalidate revokes one session id.
func (s *Service) Invalidate(ctx context.Context, sessionID string) error {
	if err := s.revocations.RevokeSession(ctx, sessionID, s.window); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// InvalidateAll revokes every session the subject created up to now.
func (s *Service) InvalidateAll(ctx context.Context, subjectID string) error {
	if err := s.revocations.RevokeSubject(ctx, subjectID, time.Now().UTC(), s.window); err != nil {
		return fmt.Errorf("failed to revoke subject sessions: %w", err)
	}
	return nil
}
