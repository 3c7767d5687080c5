// internal/domain/oauth/entity.go
package oauth

import "time"

// ExchangeOutcome is the state of one exchange attempt.
type ExchangeOutcome string

const (
	OutcomePending          ExchangeOutcome = "pending"
	OutcomeSuccess          ExchangeOutcome = "success"
	OutcomeTransientFailure ExchangeOutcome = "transient_failure"
	OutcomePermanentFailure ExchangeOutcome = "permanent_failure"
)

// ExchangeAttempt tracks one pass through the code-for-token exchange.
// It lives only for the duration of the exchange and is never persisted.
type ExchangeAttempt struct {
	Provider      string          `json:"provider"`
	AttemptNumber int             `json:"attempt_number"`
	StartedAt     time.Time       `json:"started_at"`
	Outcome       ExchangeOutcome `json:"outcome"`
	ErrorClass    string          `json:"error_class,omitempty"`
}

// TokenResult is the provider's token response after a successful
// exchange.
type TokenResult struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	IDToken      string    `json:"id_token,omitempty"`
	Attempts     int       `json:"attempts"`
}

// NormalizedIdentity is the provider-agnostic shape of a federated user
// profile. Unmapped provider fields survive in RawProviderPayload for
// downstream use but nothing in the core requires them.
type NormalizedIdentity struct {
	ProviderUserID     string                 `json:"provider_user_id"`
	Email              string                 `json:"email"`
	DisplayName        string                 `json:"display_name,omitempty"`
	FirstName          string                 `json:"first_name,omitempty"`
	LastName           string                 `json:"last_name,omitempty"`
	AvatarURL          string                 `json:"avatar_url,omitempty"`
	Username           string                 `json:"username,omitempty"`
	EmailVerified      bool                   `json:"email_verified"`
	Provider           string                 `json:"provider"`
	RawProviderPayload map[string]interface{} `json:"raw_provider_payload,omitempty"`
}
