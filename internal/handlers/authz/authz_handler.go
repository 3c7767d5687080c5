// internal/handlers/authz/authz_handler.go
package authz

import (
	"net/http"
	"strconv"

	domain "accesscore-service/internal/domain/authz"
	"accesscore-service/internal/middleware"
	"accesscore-service/internal/pkg/response"
	authzUsecase "accesscore-service/internal/service/authz"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthzHandler struct {
	gateway *authzUsecase.Gateway
	logger  *zap.Logger
}

func NewAuthzHandler(gateway *authzUsecase.Gateway, logger *zap.Logger) *AuthzHandler {
	return &AuthzHandler{
		gateway: gateway,
		logger:  logger,
	}
}

// Check evaluates an access request for the authenticated subject.
// It always answers 200 with an allow/deny verdict; engine failures
// surface as deny with a reason, never as a transport error.
func (h *AuthzHandler) Check(c *gin.Context) {
	record, ok := middleware.GetSessionRecord(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var req domain.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	if req.Resource.ID == "" || req.Resource.Type == "" {
		response.Error(c, http.StatusBadRequest, "resource id and type are required", nil)
		return
	}
	if err := domain.ValidateAttributes(req.Context); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid context attributes", err)
		return
	}
	if err := domain.ValidateAttributes(req.Resource.Attributes); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid resource attributes", err)
		return
	}

	// The subject slice is rebuilt from the session, never trusted from
	// the request body.
	request := &domain.Request{
		Subject: domain.SubjectRef{
			ID:              record.SubjectID,
			Roles:           record.Roles,
			OrganizationIDs: record.OrganizationIDs,
			State:           "active",
		},
		Resource: req.Resource,
		Action:   req.Action,
		Context:  req.Context,
	}

	decision := h.gateway.CheckAccess(c.Request.Context(), request, authzUsecase.Meta{
		SessionID: record.SessionID,
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})

	response.Success(c, http.StatusOK, "access evaluated", decision)
}

// History returns recent decisions, newest first. Admins may query any
// subject; everyone else sees only their own trail.
func (h *AuthzHandler) History(c *gin.Context) {
	subjectID := middleware.MustGetSubjectID(c)

	filter := domain.HistoryFilter{
		SubjectID:  c.Query("subject_id"),
		ResourceID: c.Query("resource_id"),
		Limit:      intQuery(c, "limit", 50),
		Offset:     intQuery(c, "offset", 0),
	}

	if filter.SubjectID == "" {
		filter.SubjectID = subjectID
	}
	if filter.SubjectID != subjectID && !middleware.IsAdmin(c) {
		response.Forbidden(c, "cannot query another subject's history")
		return
	}

	entries := h.gateway.GetHistory(c.Request.Context(), filter)

	response.Success(c, http.StatusOK, "decision history", gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// InvalidateCache drops cached decisions for a subject, typically after
// a role or policy change.
func (h *AuthzHandler) InvalidateCache(c *gin.Context) {
	subjectID := c.Param("subject")
	if subjectID == "" {
		response.Error(c, http.StatusBadRequest, "missing subject id", nil)
		return
	}

	h.gateway.InvalidateCache(c.Request.Context(), subjectID)

	h.logger.Info("decision cache invalidated",
		zap.String("subject_id", subjectID),
		zap.String("requested_by", middleware.MustGetSubjectID(c)),
	)

	response.Success(c, http.StatusOK, "decision cache invalidated", nil)
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
