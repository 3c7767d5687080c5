// internal/repository/postgres/identity_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"accesscore-service/internal/domain/identity"
	"accesscore-service/internal/domain/oauth"
	xerrors "accesscore-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// IdentityRepository resolves subject ids to their current roles,
// organizations and state, and upserts subjects seeded by federated
// sign-in.
type IdentityRepository struct {
	db        *pgxpool.Pool
	dbWrapper *DB
}

func NewIdentityRepository(db *pgxpool.Pool, dbWrapper *DB) *IdentityRepository {
	return &IdentityRepository{db: db, dbWrapper: dbWrapper}
}

// rowQuerier is satisfied by both the pool and an open transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const findSubjectQuery = `
	SELECT id, email, username, display_name, avatar_url, status,
	       email_verified, roles, organization_ids, attributes,
	       last_login, created_at, updated_at, deleted_at
	FROM subjects
	WHERE id = $1 AND deleted_at IS NULL
`

// FindSubjectByID retrieves a subject with its live attributes.
func (r *IdentityRepository) FindSubjectByID(ctx context.Context, id string) (*identity.Subject, error) {
	return r.findSubject(ctx, r.db, id)
}

func (r *IdentityRepository) findSubject(ctx context.Context, q rowQuerier, id string) (*identity.Subject, error) {
	subject, err := r.scanSubject(q.QueryRow(ctx, findSubjectQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subject: %w", err)
	}
	return subject, nil
}

// UpsertFromProvider creates or refreshes the local subject backing a
// federated identity. Roles and organization memberships are managed
// elsewhere and are never touched by the upsert; profile fields follow
// the provider.
func (r *IdentityRepository) UpsertFromProvider(ctx context.Context, ident *oauth.NormalizedIdentity) (*identity.Subject, error) {
	displayName := ident.DisplayName
	if displayName == "" {
		displayName = strings.TrimSpace(ident.FirstName + " " + ident.LastName)
	}

	query := `
		INSERT INTO subjects
			(id, email, username, display_name, avatar_url, status,
			 email_verified, roles, provider, provider_user_id, last_login)
		VALUES ($1, $2, $3, $4, $5, 'active', $6, $7, $8, $9, now())
		ON CONFLICT (provider, provider_user_id) DO UPDATE SET
			email          = EXCLUDED.email,
			username       = EXCLUDED.username,
			display_name   = EXCLUDED.display_name,
			avatar_url     = EXCLUDED.avatar_url,
			email_verified = EXCLUDED.email_verified,
			last_login     = now(),
			updated_at     = now()
		RETURNING id
	`

	// Upsert and re-read run in one transaction so the returned subject
	// reflects this sign-in even under concurrent upserts.
	tx, err := r.dbWrapper.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin subject upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	var subjectID string
	err = tx.QueryRow(ctx, query,
		ulid.Make().String(), ident.Email, ident.Username, displayName,
		ident.AvatarURL, ident.EmailVerified, []string{"member"},
		ident.Provider, ident.ProviderUserID,
	).Scan(&subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subject: %w", err)
	}

	subject, err := r.findSubject(ctx, tx, subjectID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit subject upsert: %w", err)
	}
	return subject, nil
}

func (r *IdentityRepository) scanSubject(row pgx.Row) (*identity.Subject, error) {
	var subject identity.Subject
	var attributesJSON []byte

	err := row.Scan(
		&subject.ID, &subject.Email, &subject.Username, &subject.DisplayName,
		&subject.AvatarURL, &subject.Status, &subject.EmailVerified,
		&subject.Roles, &subject.OrganizationIDs, &attributesJSON,
		&subject.LastLogin, &subject.CreatedAt, &subject.UpdatedAt, &subject.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(attributesJSON) > 0 {
		if err := json.Unmarshal(attributesJSON, &subject.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal subject attributes: %w", err)
		}
	}
	return &subject, nil
}
