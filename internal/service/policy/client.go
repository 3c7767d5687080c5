// internal/service/policy/client.go
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"accesscore-service/internal/domain/authz"
)

// EvaluationResult is the engine's verdict for one request.
type EvaluationResult struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// Client talks to the external policy engine. One POST per evaluation;
// the engine is the source of truth on every call.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	decisionPath string
}

func NewClient(baseURL, decisionPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if decisionPath == "" {
		decisionPath = "/v1/decision"
	}
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(baseURL, "/"),
		decisionPath: decisionPath,
	}
}

// Evaluate submits the request tuple and returns the engine's decision.
// Transport failures and non-2xx responses surface as errors; the caller
// decides what a failed evaluation means (the gateway denies).
func (c *Client) Evaluate(ctx context.Context, request *authz.Request) (*EvaluationResult, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal policy request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.decisionPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build policy request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("policy engine unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("policy engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var result EvaluationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode policy response: %w", err)
	}

	return &result, nil
}
