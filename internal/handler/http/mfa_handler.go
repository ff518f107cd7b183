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

// MFAHandler exposes the factor/challenge endpoints.
type MFAHandler struct {
	mfaService *service.MFAService
	userRepo   interfaces.UserRepository
	logger     *zap.Logger
}

// NewMFAHandler creates a new MFAHandler.
func NewMFAHandler(mfaService *service.MFAService, userRepo interfaces.UserRepository, logger *zap.Logger) *MFAHandler {
	return &MFAHandler{
		mfaService: mfaService,
		userRepo:   userRepo,
		logger:     logger.Named("mfa_handler"),
	}
}

func (h *MFAHandler) currentUser(c *gin.Context) (*models.User, uuid.UUID, bool) {
	userID, err := uuid.Parse(c.GetString(middleware.ContextKeyUserID))
	if err != nil {
		RespondWithError(c, http.StatusUnauthorized, "Invalid session", "unauthorized", h.logger)
		return nil, uuid.Nil, false
	}
	sessionID, err := uuid.Parse(c.GetString(middleware.ContextKeySessionID))
	if err != nil {
		RespondWithError(c, http.StatusUnauthorized, "Invalid session", "unauthorized", h.logger)
		return nil, uuid.Nil, false
	}

	user, err := h.userRepo.FindByID(c.Request.Context(), userID)
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return nil, uuid.Nil, false
	}
	return user, sessionID, true
}

// EnrollFactor handles POST /api/v1/mfa/enroll. The plaintext secret in
// the response is the only time it ever leaves the service.
func (h *MFAHandler) EnrollFactor(c *gin.Context) {
	user, _, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req models.EnrollFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, err.Error(), "bad_request", h.logger)
		return
	}

	resp, err := h.mfaService.EnrollFactor(c.Request.Context(), user, req)
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	RespondWithCreated(c, resp)
}

// CreateChallenge handles POST /api/v1/mfa/challenge/:factor_id.
func (h *MFAHandler) CreateChallenge(c *gin.Context) {
	user, _, ok := h.currentUser(c)
	if !ok {
		return
	}
	factorID, err := uuid.Parse(c.Param("factor_id"))
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, "Invalid factor id", "bad_request", h.logger)
		return
	}

	resp, err := h.mfaService.CreateChallenge(c.Request.Context(), user.ID, factorID, c.ClientIP())
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	RespondWithCreated(c, resp)
}

// VerifyChallenge handles POST /api/v1/mfa/verify/:factor_id. On
// success the caller's session is at aal2 and the response carries the
// re-minted token pair.
func (h *MFAHandler) VerifyChallenge(c *gin.Context) {
	user, sessionID, ok := h.currentUser(c)
	if !ok {
		return
	}
	factorID, err := uuid.Parse(c.Param("factor_id"))
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, "Invalid factor id", "bad_request", h.logger)
		return
	}

	var req models.VerifyFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, err.Error(), "bad_request", h.logger)
		return
	}

	pair, err := h.mfaService.VerifyChallenge(c.Request.Context(), user, sessionID, req, c.ClientIP(), factorID)
	if err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	RespondWithData(c, http.StatusOK, gin.H{"tokens": pair})
}

// UnenrollFactor handles DELETE /api/v1/mfa/unenroll/:factor_id. Removing a
// factor demands the password and a fresh challenge verification.
func (h *MFAHandler) UnenrollFactor(c *gin.Context) {
	user, sessionID, ok := h.currentUser(c)
	if !ok {
		return
	}
	factorID, err := uuid.Parse(c.Param("factor_id"))
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, "Invalid factor id", "bad_request", h.logger)
		return
	}

	var req models.UnenrollFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, err.Error(), "bad_request", h.logger)
		return
	}

	if err := h.mfaService.UnenrollFactor(c.Request.Context(), user, sessionID, factorID, req, c.ClientIP()); err != nil {
		RespondWithDomainError(c, err, h.logger)
		return
	}
	RespondWithMessage(c, http.StatusOK, "Factor removed")
}
