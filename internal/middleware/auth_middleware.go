// internal/middleware/auth_middleware.go
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"accesscore-service/internal/pkg/response"
	sessionsvc "accesscore-service/internal/service/session"

	"github.com/gin-gonic/gin"
)

type AuthMiddleware struct {
	sessions *sessionsvc.Service
}

func NewAuthMiddleware(sessions *sessionsvc.Service) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
	}
}

// Auth is the base authentication middleware that validates session tokens
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing session token", nil)
			return
		}

		record, err := m.sessions.Validate(c.Request.Context(), token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired session", err)
			return
		}

		// Set principal context
		c.Set("session_record", record)
		c.Set("session_token", token)
		c.Set("subject_id", record.SubjectID)
		c.Set("session_id", record.SessionID)
		c.Set("roles", record.Roles)
		c.Set("organization_ids", record.OrganizationIDs)

		c.Next()
	}
}

// RequireRole middleware that requires the subject to have at least one of the specified roles
// MUST be used after Auth() middleware
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectRoles, exists := c.Get("roles")
		if !exists {
			response.Error(c, http.StatusForbidden, "no roles found - authentication required", nil)
			return
		}

		subjectRolesList, ok := subjectRoles.([]string)
		if !ok {
			response.Error(c, http.StatusInternalServerError, "invalid roles format", nil)
			return
		}

		// Check if subject has any of the required roles
		hasRole := false
		for _, subjectRole := range subjectRolesList {
			for _, requiredRole := range roles {
				if subjectRole == requiredRole {
					hasRole = true
					break
				}
			}
			if hasRole {
				break
			}
		}

		if !hasRole {
			err := errors.New("subject does not have required role")
			response.Error(c, http.StatusForbidden, "insufficient permissions", err, map[string]interface{}{
				"required_roles": roles,
				"subject_roles":  subjectRolesList,
			})
			return
		}

		c.Next()
	}
}

// RequireAllRoles middleware that requires the subject to have ALL specified roles
// MUST be used after Auth() middleware
func (m *AuthMiddleware) RequireAllRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectRoles, exists := c.Get("roles")
		if !exists {
			response.Error(c, http.StatusForbidden, "no roles found - authentication required", nil)
			return
		}

		subjectRolesList, ok := subjectRoles.([]string)
		if !ok {
			response.Error(c, http.StatusInternalServerError, "invalid roles format", nil)
			return
		}

		subjectRoleMap := make(map[string]bool)
		for _, role := range subjectRolesList {
			subjectRoleMap[role] = true
		}

		for _, requiredRole := range roles {
			if !subjectRoleMap[requiredRole] {
				err := errors.New("subject does not have all required roles")
				response.Error(c, http.StatusForbidden, "insufficient permissions", err, map[string]interface{}{
					"required_roles": roles,
					"subject_roles":  subjectRolesList,
					"missing_role":   requiredRole,
				})
				return
			}
		}

		c.Next()
	}
}

// Composed middleware functions that combine Auth + Role checks

// AdminOnly returns middlewares for admin-only routes (Auth + RequireRole)
func (m *AuthMiddleware) AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole("admin", "super_admin"),
	}
}

// OptionalAuth middleware that doesn't abort if no token is provided
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		record, err := m.sessions.Validate(c.Request.Context(), token)
		if err != nil {
			// Don't abort, just continue without setting principal context
			c.Next()
			return
		}

		c.Set("session_record", record)
		c.Set("session_token", token)
		c.Set("subject_id", record.SubjectID)
		c.Set("session_id", record.SessionID)
		c.Set("roles", record.Roles)
		c.Set("authenticated", true)

		c.Next()
	}
}

// extractToken extracts the session token from the Authorization header
func extractToken(c *gin.Context) string {
	// Try header first
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	// Fallback to cookie for browser clients
	if token, err := c.Cookie("session_token"); err == nil && token != "" {
		return token
	}

	return ""
}

// Helper function to get subject ID from context
func GetSubjectID(c *gin.Context) (string, bool) {
	subjectID, exists := c.Get("subject_id")
	if !exists {
		return "", false
	}

	id, ok := subjectID.(string)
	return id, ok
}

// Helper function to get session ID from context
func GetSessionID(c *gin.Context) (string, bool) {
	sessionID, exists := c.Get("session_id")
	if !exists {
		return "", false
	}

	idStr, ok := sessionID.(string)
	return idStr, ok
}

// Helper function to check if subject has role
func HasRole(c *gin.Context, role string) bool {
	roles, exists := c.Get("roles")
	if !exists {
		return false
	}

	rolesList, ok := roles.([]string)
	if !ok {
		return false
	}

	for _, r := range rolesList {
		if r == role {
			return true
		}
	}

	return false
}
