// internal/domain/authz/entity.go
package authz

import (
	"fmt"
	"time"
)

// SubjectRef is the principal slice of an authorization request.
type SubjectRef struct {
	ID              string                 `json:"id"`
	Roles           []string               `json:"roles"`
	OrganizationIDs []string               `json:"organization_ids"`
	State           string                 `json:"state"`
	Attributes      map[string]interface{} `json:"attributes,omitempty"`
}

// ResourceRef describes the thing being accessed.
type ResourceRef struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	OwnerID        string                 `json:"owner_id,omitempty"`
	OrganizationID string                 `json:"organization_id,omitempty"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`
}

// Request is a pure value handed to the policy engine; it is never
// persisted on its own.
type Request struct {
	Subject  SubjectRef             `json:"subject"`
	Resource ResourceRef            `json:"resource"`
	Action   string                 `json:"action"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// Decision is the outcome of one policy evaluation, always paired with
// the request that produced it.
type Decision struct {
	Allow            bool   `json:"allow"`
	Reason           string `json:"reason,omitempty"`
	EvaluationTimeMs int64  `json:"evaluation_time_ms"`
	Cached           bool   `json:"cached"`
	CorrelationID    string `json:"correlation_id"`
}

// LogEntry is one append-only audit record of a decision. Entries are
// written to both the recent-history store and the durable store and are
// never updated after creation.
type LogEntry struct {
	SubjectID     string                 `json:"subject_id"`
	ResourceID    string                 `json:"resource_id"`
	ResourceType  string                 `json:"resource_type"`
	Action        string                 `json:"action"`
	Allow         bool                   `json:"allow"`
	Reason        string                 `json:"reason,omitempty"`
	Context       map[string]interface{} `json:"context,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
	SessionID     string                 `json:"session_id,omitempty"`
	IP            string                 `json:"ip,omitempty"`
	UserAgent     string                 `json:"user_agent,omitempty"`
}

// HistoryFilter narrows a history query. Zero values match everything.
type HistoryFilter struct {
	SubjectID  string
	ResourceID string
	Limit      int
	Offset     int
}

// ValidateAttributes rejects attribute values outside the supported
// shapes: string, number, bool, or a nested string-keyed mapping of the
// same. Callers validate only at the boundary; the maps stay open.
func ValidateAttributes(attrs map[string]interface{}) error {
	for key, value := range attrs {
		if err := validateAttributeValue(value); err != nil {
			return fmt.Errorf("attribute %q: %w", key, err)
		}
	}
	return nil
}

func validateAttributeValue(value interface{}) error {
	switch v := value.(type) {
	case nil, string, bool,
		int, int32, int64, float32, float64:
		return nil
	case map[string]interface{}:
		return ValidateAttributes(v)
	default:
		return fmt.Errorf("unsupported attribute type %T", v)
	}
}
