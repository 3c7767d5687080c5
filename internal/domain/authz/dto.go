// internal/domain/authz/dto.go
package authz

// CheckRequest is the HTTP body for an access check. The subject slice
// is never client-supplied; it is rebuilt from the validated session.
type CheckRequest struct {
	Resource ResourceRef            `json:"resource" binding:"required"`
	Action   string                 `json:"action" binding:"required"`
	Context  map[string]interface{} `json:"context"`
}
