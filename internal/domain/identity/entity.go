// internal/domain/identity/entity.go
package identity

import (
	"database/sql"
	"time"
)

// Subject is the authenticated principal as held in the identity store.
// Roles, organizations and state attributes are re-read on every session
// validation so that permission changes take effect promptly.
type Subject struct {
	ID              string                 `json:"id" db:"id"`
	Email           sql.NullString         `json:"email" db:"email"`
	Username        sql.NullString         `json:"username" db:"username"`
	DisplayName     sql.NullString         `json:"display_name" db:"display_name"`
	AvatarURL       sql.NullString         `json:"avatar_url" db:"avatar_url"`
	Status          string                 `json:"status" db:"status"` // active, inactive, suspended
	EmailVerified   bool                   `json:"email_verified" db:"email_verified"`
	Roles           []string               `json:"roles" db:"roles"`
	OrganizationIDs []string               `json:"organization_ids" db:"organization_ids"`
	Attributes      map[string]interface{} `json:"attributes" db:"attributes"`
	LastLogin       sql.NullTime           `json:"last_login" db:"last_login"`
	CreatedAt       time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at" db:"updated_at"`
	DeletedAt       sql.NullTime           `json:"-" db:"deleted_at"`
}

// IsActive reports whether the subject may hold a valid session.
func (s *Subject) IsActive() bool {
	return s.Status == "active" && !s.DeletedAt.Valid
}
