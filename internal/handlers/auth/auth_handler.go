// internal/handlers/auth/auth_handler.go
package auth

import (
	"net/http"

	"accesscore-service/internal/domain/identity"
	"accesscore-service/internal/middleware"
	"accesscore-service/internal/pkg/response"
	authUsecase "accesscore-service/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *authUsecase.Service
	logger      *zap.Logger
}

func NewAuthHandler(authService *authUsecase.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// ========== Sign-in ==========

// SignInURL returns the provider redirect that starts a federated sign-in
func (h *AuthHandler) SignInURL(c *gin.Context) {
	provider := c.Param("provider")
	state := c.Query("state")
	if state == "" {
		response.Error(c, http.StatusBadRequest, "missing state parameter", nil)
		return
	}

	url, err := h.authService.AuthCodeURL(provider, state)
	if err != nil {
		response.FromError(c, err, "unknown provider")
		return
	}

	response.Success(c, http.StatusOK, "sign-in url generated", gin.H{
		"provider": provider,
		"url":      url,
	})
}

// Exchange handles the provider callback: authorization code in, session token out
func (h *AuthHandler) Exchange(c *gin.Context) {
	provider := c.Param("provider")

	var req identity.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	// Set IP and User-Agent
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	loginResp, err := h.authService.FederatedSignIn(c.Request.Context(), provider, &req)
	if err != nil {
		h.logger.Error("federated sign-in failed",
			zap.String("provider", provider),
			zap.String("ip", req.IPAddress),
			zap.Error(err),
		)
		response.FromError(c, err, "sign-in failed")
		return
	}

	h.logger.Info("subject signed in",
		zap.String("subject_id", loginResp.User.SubjectID),
		zap.String("provider", provider),
	)

	response.Success(c, http.StatusOK, "sign-in successful", loginResp)
}

// ========== Session lifecycle ==========

// Refresh extends the session freshness window and returns a replacement token
func (h *AuthHandler) Refresh(c *gin.Context) {
	record, ok := middleware.GetSessionRecord(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	refreshed, token, err := h.authService.Refresh(c.Request.Context(), record)
	if err != nil {
		h.logger.Error("session refresh failed",
			zap.String("subject_id", record.SubjectID),
			zap.Error(err),
		)
		response.FromError(c, err, "refresh failed")
		return
	}

	response.Success(c, http.StatusOK, "session refreshed", gin.H{
		"session_token":    token,
		"token_type":       "Bearer",
		"last_activity_at": refreshed.LastActivityAt,
	})
}

// Logout revokes the current session
func (h *AuthHandler) Logout(c *gin.Context) {
	record, ok := middleware.GetSessionRecord(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), record); err != nil {
		h.logger.Error("logout failed",
			zap.String("session_id", record.SessionID),
			zap.Error(err),
		)
		response.FromError(c, err, "logout failed")
		return
	}

	response.Success(c, http.StatusOK, "logged out", nil)
}

// LogoutAll revokes every session belonging to the current subject
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	subjectID := middleware.MustGetSubjectID(c)

	if err := h.authService.LogoutAll(c.Request.Context(), subjectID); err != nil {
		h.logger.Error("logout-all failed",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		response.FromError(c, err, "logout failed")
		return
	}

	response.Success(c, http.StatusOK, "all sessions revoked", nil)
}

// Me returns the principal bound to the presented session token
func (h *AuthHandler) Me(c *gin.Context) {
	record, ok := middleware.GetSessionRecord(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	response.Success(c, http.StatusOK, "session principal", identity.UserInfo{
		SubjectID:       record.SubjectID,
		Email:           record.Email,
		Username:        record.Username,
		Roles:           record.Roles,
		OrganizationIDs: record.OrganizationIDs,
	})
}
