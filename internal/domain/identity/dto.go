// internal/domain/identity/dto.go
package identity

import "time"

// SignInRequest carries the provider callback result into the federated
// sign-in flow.
type SignInRequest struct {
	Code              string `json:"code" binding:"required"`
	DeviceFingerprint string `json:"device_fingerprint"`
	IPAddress         string `json:"-"`
	UserAgent         string `json:"-"`
}

// LoginResponse is the successful sign-in payload.
type LoginResponse struct {
	SessionToken string    `json:"session_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         UserInfo  `json:"user"`
}

// UserInfo minimal subject information
type UserInfo struct {
	SubjectID       string   `json:"subject_id"`
	Email           string   `json:"email"`
	Username        string   `json:"username"`
	DisplayName     string   `json:"display_name,omitempty"`
	Roles           []string `json:"roles"`
	OrganizationIDs []string `json:"organization_ids"`
}
