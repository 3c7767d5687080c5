// internal/service/oauth/exchange.go
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"accesscore-service/internal/domain/oauth"
	xerrors "accesscore-service/internal/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Error classes for exchange failures.
const (
	errorClassTransient = "transient"
	errorClassPermanent = "permanent"
)

// RetryConfig bounds the exchange state machine. Delay doubles from
// BaseDelay on every transient failure; the per-attempt timeout grows
// linearly so a flaky network gets more room while total wall clock
// stays bounded by MaxAttempts.
type RetryConfig struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 250 * time.Millisecond
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	return c
}

// ExchangeError is the terminal failure of one exchange. It carries the
// final attempt with its outcome: permanent provider errors keep the
// provider's own detail, exhausted retries the last transient cause.
type ExchangeError struct {
	Attempt oauth.ExchangeAttempt
	Detail  string
	Err     error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("oauth exchange with %s failed after %d attempt(s): %s",
		e.Attempt.Provider, e.Attempt.AttemptNumber, e.Detail)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Exchanger drives the authorization-code exchange and identity fetch
// for the configured providers.
type Exchanger struct {
	providers  map[string]Provider
	retry      RetryConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewExchanger(providers []Provider, retry RetryConfig, logger *zap.Logger) *Exchanger {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Exchanger{
		providers:  byName,
		retry:      retry.withDefaults(),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Provider returns the named provider.
func (e *Exchanger) Provider(name string) (Provider, error) {
	p, ok := e.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown oauth provider %q: %w", name, xerrors.ErrNotFound)
	}
	return p, nil
}

// AuthCodeURL builds the provider's authorization redirect for the given
// anti-forgery state.
func (e *Exchanger) AuthCodeURL(providerName, state string) (string, error) {
	p, err := e.Provider(providerName)
	if err != nil {
		return "", err
	}
	return p.OAuthConfig().AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// ExchangeCode runs the code-for-token state machine: pending attempts
// either succeed, fail transiently and retry with doubling backoff, or
// fail permanently and abort at once with the provider's detail. After
// MaxAttempts transient failures the exchange ends permanently failed.
func (e *Exchanger) ExchangeCode(ctx context.Context, providerName, code string) (*oauth.TokenResult, error) {
	p, err := e.Provider(providerName)
	if err != nil {
		return nil, err
	}

	delay := e.retry.BaseDelay
	var lastErr error
	var attempt oauth.ExchangeAttempt

	for n := 1; n <= e.retry.MaxAttempts; n++ {
		attempt = oauth.ExchangeAttempt{
			Provider:      providerName,
			AttemptNumber: n,
			StartedAt:     time.Now(),
			Outcome:       oauth.OutcomePending,
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.retry.AttemptTimeout*time.Duration(n))
		token, err := p.OAuthConfig().Exchange(attemptCtx, code)
		cancel()

		if err == nil {
			attempt.Outcome = oauth.OutcomeSuccess
			return tokenResult(token, attempt.AttemptNumber), nil
		}

		class, detail := classifyExchangeError(err)
		attempt.ErrorClass = class
		if class == errorClassPermanent {
			attempt.Outcome = oauth.OutcomePermanentFailure
			return nil, &ExchangeError{Attempt: attempt, Detail: detail, Err: err}
		}

		attempt.Outcome = oauth.OutcomeTransientFailure
		lastErr = err
		e.logger.Warn("transient oauth exchange failure",
			zap.String("provider", attempt.Provider),
			zap.Int("attempt", attempt.AttemptNumber),
			zap.String("outcome", string(attempt.Outcome)),
			zap.Duration("elapsed", time.Since(attempt.StartedAt)),
			zap.Error(err))

		if n == e.retry.MaxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			attempt.Outcome = oauth.OutcomePermanentFailure
			attempt.ErrorClass = errorClassPermanent
			return nil, &ExchangeError{
				Attempt: attempt,
				Detail:  "exchange cancelled: " + ctx.Err().Error(),
				Err:     ctx.Err(),
			}
		}
		delay *= 2
	}

	// The budget is spent: the final attempt stays classified by what it
	// saw, but the exchange as a whole ends permanently failed.
	attempt.Outcome = oauth.OutcomePermanentFailure
	return nil, &ExchangeError{
		Attempt: attempt,
		Detail:  fmt.Sprintf("retries exhausted: %v", lastErr),
		Err:     lastErr,
	}
}

// FetchIdentity resolves the access token into a normalized identity via
// the provider's profile endpoints.
func (e *Exchanger) FetchIdentity(ctx context.Context, providerName string, result *oauth.TokenResult) (*oauth.NormalizedIdentity, error) {
	p, err := e.Provider(providerName)
	if err != nil {
		return nil, err
	}

	token := &oauth2.Token{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    result.TokenType,
		Expiry:       result.ExpiresAt,
	}
	if result.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{"id_token": result.IDToken})
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	return p.Identity(ctx, client, token)
}

// RefreshToken exchanges a refresh token for a fresh access token.
// Providers without refresh support fail with ErrUnsupportedOperation.
func (e *Exchanger) RefreshToken(ctx context.Context, providerName, refreshToken string) (*oauth.TokenResult, error) {
	p, err := e.Provider(providerName)
	if err != nil {
		return nil, err
	}
	if !p.SupportsRefresh() {
		return nil, xerrors.ErrUnsupportedOperation
	}

	// Same bounded-call rule as the code exchange.
	refreshCtx, cancel := context.WithTimeout(ctx, e.retry.AttemptTimeout)
	defer cancel()

	source := p.OAuthConfig().TokenSource(refreshCtx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		_, detail := classifyExchangeError(err)
		return nil, fmt.Errorf("failed to refresh %s token: %s: %w", providerName, detail, err)
	}
	return tokenResult(token, 1), nil
}

// RevokeToken invalidates the token at the provider where supported.
func (e *Exchanger) RevokeToken(ctx context.Context, providerName, token string) error {
	p, err := e.Provider(providerName)
	if err != nil {
		return err
	}
	return p.Revoke(ctx, e.httpClient, token)
}

func tokenResult(token *oauth2.Token, attempts int) *oauth.TokenResult {
	result := &oauth.TokenResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.Expiry,
		Attempts:     attempts,
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		result.IDToken = idToken
	}
	return result
}

// classifyExchangeError separates retryable flakiness from hard provider
// rejections. HTTP 4xx other than 408/429 means bad credentials or an
// already-consumed code and is never retried; everything else (network
// errors, timeouts, 5xx, throttling) is worth another attempt.
func classifyExchangeError(err error) (string, string) {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := retrieveErr.Response.StatusCode
		detail := retrieveErr.ErrorCode
		if retrieveErr.ErrorDescription != "" {
			detail += ": " + retrieveErr.ErrorDescription
		}
		if detail == "" {
			detail = strings.TrimSpace(string(retrieveErr.Body))
		}
		if detail == "" {
			detail = fmt.Sprintf("provider returned %d", status)
		}

		switch {
		case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
			return errorClassTransient, detail
		default:
			return errorClassPermanent, detail
		}
	}
	return errorClassTransient, err.Error()
}
