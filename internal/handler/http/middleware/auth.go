package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
	"github.com/driftline/auth-service/internal/infrastructure/security"
	"github.com/driftline/auth-service/internal/service"
)

// Context keys set by AuthMiddleware.
const (
	ContextKeyClaims    = "claims"
	ContextKeyUserID    = "user_id"
	ContextKeySessionID = "session_id"
	ContextKeyAAL       = "aal"
)

// AuthMiddleware verifies the Bearer access token and confirms the session
// it names is still alive. A valid signature over a revoked session is not
// enough: logout and password reset must take effect before the token
// expires on its own.
func AuthMiddleware(tokenManager *security.TokenManager, sessions *service.SessionService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header is required",
				"code":  "unauthorized",
			})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization format, expected 'Bearer {token}'",
				"code":  "unauthorized",
			})
			return
		}

		claims, err := tokenManager.ParseAccessToken(parts[1], false)
		if err != nil {
			errMsg := "Invalid token"
			errCode := "unauthorized"
			if errors.Is(err, domainErrors.ErrExpiredToken) {
				errMsg = "Token expired"
				errCode = "token_expired"
			}

			logger.Warn("Token validation failed",
				zap.String("error", errMsg),
				zap.String("client_ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": errMsg,
				"code":  errCode,
			})
			return
		}

		sessionID, err := uuid.Parse(claims.SessionID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
				"code":  "unauthorized",
			})
			return
		}
		if _, err := sessions.Get(c.Request.Context(), sessionID); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Session revoked",
				"code":  "session_revoked",
			})
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Set(ContextKeyUserID, claims.Subject)
		c.Set(ContextKeySessionID, claims.SessionID)
		c.Set(ContextKeyAAL, string(claims.AAL))

		c.Next()
	}
}

// RequireAAL2 gates an endpoint on a session that completed a second
// factor. Runs after AuthMiddleware.
func RequireAAL2() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextKeyAAL) != string(models.AAL2) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "This action requires a second authentication factor",
				"code":  "insufficient_aal",
			})
			return
		}
		c.Next()
	}
}

// ClaimsFromContext extracts the access-token claims set by AuthMiddleware.
func ClaimsFromContext(c *gin.Context) (*security.AccessTokenClaims, bool) {
	value, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*security.AccessTokenClaims)
	return claims, ok
}
