// internal/service/oauth/github.go
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"accesscore-service/internal/domain/oauth"
	xerrors "accesscore-service/internal/pkg/errors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
)

// GitHubProvider implements the provider contract against GitHub's OAuth
// endpoints. Classic GitHub OAuth apps issue non-expiring tokens with no
// refresh or revocation flow, so both report unsupported.
type GitHubProvider struct {
	config    *oauth2.Config
	userURL   string
	emailsURL string
}

func NewGitHubProvider(cfg ProviderConfig) *GitHubProvider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoints.GitHub,
		},
		userURL:   githubUserURL,
		emailsURL: githubEmailsURL,
	}
}

func (p *GitHubProvider) Name() string                { return "github" }
func (p *GitHubProvider) OAuthConfig() *oauth2.Config { return p.config }
func (p *GitHubProvider) SupportsRefresh() bool       { return false }

func (p *GitHubProvider) Revoke(ctx context.Context, client *http.Client, token string) error {
	return xerrors.ErrUnsupportedOperation
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Identity normalizes the GitHub profile. The profile's email field is
// often null; the emails endpoint is the fallback, preferring the
// primary verified address, then any verified one.
func (p *GitHubProvider) Identity(ctx context.Context, client *http.Client, token *oauth2.Token) (*oauth.NormalizedIdentity, error) {
	raw, err := getJSON(ctx, client, p.userURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch github profile: %w", err)
	}

	var user githubUser
	if err := remarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to decode github profile: %w", err)
	}

	email := user.Email
	verified := email != ""
	if email == "" {
		email, verified, err = p.lookupEmail(ctx, client)
		if err != nil {
			return nil, err
		}
	}

	first, last := splitName(user.Name)
	return &oauth.NormalizedIdentity{
		ProviderUserID:     strconv.FormatInt(user.ID, 10),
		Email:              email,
		DisplayName:        user.Name,
		FirstName:          first,
		LastName:           last,
		AvatarURL:          user.AvatarURL,
		Username:           user.Login,
		EmailVerified:      verified,
		Provider:           p.Name(),
		RawProviderPayload: raw,
	}, nil
}

func (p *GitHubProvider) lookupEmail(ctx context.Context, client *http.Client) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.emailsURL, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("failed to fetch github emails: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("github emails returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var emails []githubEmail
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", false, fmt.Errorf("failed to decode github emails: %w", err)
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, true, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, true, nil
		}
	}
	return "", false, xerrors.ErrNoUsableIdentity
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
