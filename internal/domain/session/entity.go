// internal/domain/session/entity.go
package session

import "time"

// OriginSource identifies how a session was established.
type OriginSource string

const (
	OriginInteractiveLogin OriginSource = "interactive-login"
	OriginDashboard        OriginSource = "dashboard"
	OriginAPI              OriginSource = "api"
)

// Valid reports whether the value is one of the known origins.
func (o OriginSource) Valid() bool {
	switch o {
	case OriginInteractiveLogin, OriginDashboard, OriginAPI:
		return true
	}
	return false
}

// Record is the authenticated-session state carried inside the opaque
// token. There is no server-side session row: the encrypted token is the
// session. SessionID is generated once at creation and never reused;
// LastActivityAt only moves forward across refreshes.
type Record struct {
	SubjectID         string       `json:"subject_id"`
	Email             string       `json:"email"`
	Username          string       `json:"username"`
	Roles             []string     `json:"roles"`
	OrganizationIDs   []string     `json:"organization_ids"`
	SessionID         string       `json:"session_id"`
	CreatedAt         time.Time    `json:"created_at"`
	LastActivityAt    time.Time    `json:"last_activity_at"`
	DeviceFingerprint string       `json:"device_fingerprint,omitempty"`
	OriginSource      OriginSource `json:"origin_source"`
}

// HasRole reports whether the session carries the given role.
func (r *Record) HasRole(role string) bool {
	for _, have := range r.Roles {
		if have == role {
			return true
		}
	}
	return false
}
