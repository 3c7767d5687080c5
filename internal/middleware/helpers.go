// internal/middleware/helpers.go
package middleware

import (
	domain "accesscore-service/internal/domain/session"

	"github.com/gin-gonic/gin"
)

// MustGetSubjectID gets the subject ID from context or panics
func MustGetSubjectID(c *gin.Context) string {
	subjectID, exists := GetSubjectID(c)
	if !exists {
		panic("subject_id not found in context")
	}
	return subjectID
}

// MustGetSessionID gets the session ID from context or panics
func MustGetSessionID(c *gin.Context) string {
	sessionID, exists := GetSessionID(c)
	if !exists {
		panic("session_id not found in context")
	}
	return sessionID
}

// GetSessionRecord gets the validated session record from context
func GetSessionRecord(c *gin.Context) (*domain.Record, bool) {
	record, exists := c.Get("session_record")
	if !exists {
		return nil, false
	}

	rec, ok := record.(*domain.Record)
	return rec, ok
}

// GetRoles gets subject roles from context
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get("roles")
	if !exists {
		return []string{}
	}

	rolesList, ok := roles.([]string)
	if !ok {
		return []string{}
	}

	return rolesList
}

// GetOrganizationIDs gets subject organization memberships from context
func GetOrganizationIDs(c *gin.Context) []string {
	orgs, exists := c.Get("organization_ids")
	if !exists {
		return []string{}
	}

	orgList, ok := orgs.([]string)
	if !ok {
		return []string{}
	}

	return orgList
}

// IsAuthenticated checks if request is authenticated
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get("subject_id")
	return exists
}

// IsAdmin checks if subject is an admin
func IsAdmin(c *gin.Context) bool {
	return HasRole(c, "admin") || HasRole(c, "super_admin")
}
