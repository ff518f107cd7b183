package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
	"github.com/driftline/auth-service/internal/handler/http/middleware"
	"github.com/driftline/auth-service/internal/infrastructure/security"
	"github.com/driftline/auth-service/internal/repository/interfaces"
	"github.com/driftline/auth-service/internal/service"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
)

// AuthHandler exposes registration, signin and session lifecycle endpoints.
type AuthHandler struct {
	authService  *service.AuthService
	tokenService *service.TokenService
	tokenManager *security.TokenManager
	userRepo     interfaces.UserRepository
	logger       *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	authService *service.AuthService,
	tokenService *service.TokenService,
	tokenManager *security.TokenManager,
	userRepo interfaces.UserRepository,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		tokenService: tokenService,
		tokenManager: tokenManager,
		userRepo:     userRepo,
		logger:       logger.Named("auth_handler"),
	}
}

// setSessionCookies mirrors the token pair into HTTP-only cookies for
// browser clients. API clients keep using the JSON body.
func (h *AuthHandler) setSessionCookies(c *gin.Context, pair *models.TokenPair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessTokenCookie, pair.AccessToken,
		int(h.tokenManager.AccessTokenTTL().Seconds()), "/", "", true, true)
	c.SetCookie(refreshTokenCookie, pair.RefreshToken,
		int(h.tokenManager.RefreshTokenTTL().Seconds()), "/", "", true, true)
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	c.SetCookie(accessTokenCookie, "", -1, "/", "", true, true)
	c.SetCookie(refreshTokenCookie, "", -1, "/", "", true, true)
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, err.Error(), "bad_request", h.logger)
		return
	}

	result, err := h.authService.Register(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}

	RespondWithCreated(c, gin.H{
		"user_id":           result.User.ID,
		"user":              result.User.ToResponse(),
		"verification_code": result.Verification.VerificationCode,
		"expires_in":        result.Verification.ExpiresIn.Milliseconds(),
	})
}

// VerifyEmail handles PATCH /api/v1/auth/verify.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req models.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, err.Error(), "bad_request", h.logger)
		return
	}

	if err := h.authService.VerifyEmail(c.Request.Context(), req, c.ClientIP()); err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	RespondWithData(c, http.StatusOK, gin.H{
		"user_id":         req.UserID,
		"email":           req.Email,
		"is_email_verify": true,
	})
}

// Signin handles POST /api/v1/auth/signin. Valid credentials against an
// unverified email answer 422: the body carries the re-issued verification
// window so the client can resume the confirm flow.
func (h *AuthHandler) Signin(c *gin.Context) {
	var req models.SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, err.Error(), "bad_request", h.logger)
		return
	}

	result, err := h.authService.Signin(c.Request.Context(), req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}

	if result.Status == models.SigninStatusEmailUnverified {
		RespondWithData(c, http.StatusUnprocessableEntity, gin.H{
			"status":            string(result.Status),
			"user_id":           result.User.ID,
			"email":             result.User.Email,
			"verification_code": result.Verification.VerificationCode,
			"expires_in":        result.Verification.ExpiresIn.Milliseconds(),
		})
		return
	}

	h.setSessionCookies(c, result.TokenPair)
	RespondWithData(c, http.StatusOK, gin.H{
		"status": string(result.Status),
		"user":   result.User.ToResponse(),
		"tokens": result.TokenPair,
	})
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, err.Error(), "bad_request", h.logger)
		return
	}

	pair, user, err := h.tokenService.Refresh(c.Request.Context(), req.AccessToken, req.RefreshToken, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}

	h.setSessionCookies(c, pair)
	RespondWithData(c, http.StatusOK, gin.H{
		"user":   user.ToResponse(),
		"tokens": pair,
	})
}

// Logout handles DELETE /api/v1/auth/logout. Revokes the caller's session.
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID, err := uuid.Parse(c.GetString(middleware.ContextKeySessionID))
	if err != nil {
		RespondWithError(c, http.StatusUnauthorized, "Invalid session", "unauthorized", h.logger)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), sessionID); err != nil && !domainErrors.IsNotFound(err) {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	h.clearSessionCookies(c)
	RespondWithMessage(c, http.StatusOK, "Logged out")
}

// LogoutAll handles POST /api/v1/auth/logout-all.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	userID, err := uuid.Parse(c.GetString(middleware.ContextKeyUserID))
	if err != nil {
		RespondWithError(c, http.StatusUnauthorized, "Invalid session", "unauthorized", h.logger)
		return
	}

	if err := h.authService.LogoutAll(c.Request.Context(), userID); err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	RespondWithMessage(c, http.StatusOK, "All sessions revoked")
}

// ListSessions handles GET /api/v1/auth/sessions.
func (h *AuthHandler) ListSessions(c *gin.Context) {
	userID, err := uuid.Parse(c.GetString(middleware.ContextKeyUserID))
	if err != nil {
		RespondWithError(c, http.StatusUnauthorized, "Invalid session", "unauthorized", h.logger)
		return
	}

	sessions, err := h.authService.ListSessions(c.Request.Context(), userID)
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	RespondWithData(c, http.StatusOK, gin.H{"sessions": sessions})
}

// Me handles GET /api/v1/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, err := uuid.Parse(c.GetString(middleware.ContextKeyUserID))
	if err != nil {
		RespondWithError(c, http.StatusUnauthorized, "Invalid session", "unauthorized", h.logger)
		return
	}

	user, err := h.userRepo.FindByID(c.Request.Context(), userID)
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	RespondWithData(c, http.StatusOK, user.ToResponse())
}

// ForgotPassword handles POST /api/v1/auth/forgot-password. Always reports
// success so the endpoint cannot be used to enumerate accounts.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, err.Error(), "bad_request", h.logger)
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email, c.ClientIP()); err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	RespondWithMessage(c, http.StatusOK, "If the email exists, a reset link has been sent")
}

// ResetPassword handles PATCH /api/v1/auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, err.Error(), "bad_request", h.logger)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req, c.ClientIP()); err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	RespondWithMessage(c, http.StatusOK, "Password updated")
}
