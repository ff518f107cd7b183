package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driftline/auth-service/internal/domain/models"
	"github.com/driftline/auth-service/internal/handler/http/middleware"
	"github.com/driftline/auth-service/internal/repository/interfaces"
	"github.com/driftline/auth-service/internal/service"
)

// TwoFactorHandler exposes the legacy single-secret 2FA endpoints.
type TwoFactorHandler struct {
	twoFactorService *service.TwoFactorService
	userRepo         interfaces.UserRepository
	logger           *zap.Logger
}

// NewTwoFactorHandler creates a new TwoFactorHandler.
func NewTwoFactorHandler(twoFactorService *service.TwoFactorService, userRepo interfaces.UserRepository, logger *zap.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{
		twoFactorService: twoFactorService,
		userRepo:         userRepo,
		logger:           logger.Named("two_factor_handler"),
	}
}

func (h *TwoFactorHandler) currentUser(c *gin.Context) (*models.User, bool) {
	userID, err := uuid.Parse(c.GetString(middleware.ContextKeyUserID))
	if err != nil {
		RespondWithError(c, http.StatusUnauthorized, "Invalid session", "unauthorized", h.logger)
		return nil, false
	}
	user, err := h.userRepo.FindByID(c.Request.Context(), userID)
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return nil, false
	}
	return user, true
}

// Generate handles GET /api/v1/auth/2fa/generate.
func (h *TwoFactorHandler) Generate(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	resp, err := h.twoFactorService.Generate(c.Request.Context(), user)
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	RespondWithData(c, http.StatusOK, resp)
}

// Enable handles POST /api/v1/auth/2fa/enable.
func (h *TwoFactorHandler) Enable(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req models.Enable2FARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, err.Error(), "bad_request", h.logger)
		return
	}

	if err := h.twoFactorService.Enable(c.Request.Context(), user, req.Code); err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	RespondWithMessage(c, http.StatusOK, "2FA enabled")
}

// Verify handles POST /api/v1/auth/2fa/verify.
func (h *TwoFactorHandler) Verify(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req models.Verify2FARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, err.Error(), "bad_request", h.logger)
		return
	}

	if err := h.twoFactorService.Verify(c.Request.Context(), user, req.Code); err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	RespondWithMessage(c, http.StatusOK, "Code valid")
}

// Disable handles POST /api/v1/auth/2fa/disable. Every session dies with it.
func (h *TwoFactorHandler) Disable(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req models.Disable2FARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, err.Error(), "bad_request", h.logger)
		return
	}

	if err := h.twoFactorService.Disable(c.Request.Context(), user, req.Password); err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	RespondWithMessage(c, http.StatusOK, "2FA disabled")
}
