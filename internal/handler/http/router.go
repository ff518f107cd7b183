package http

import (
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/driftline/auth-service/internal/handler/http/middleware"
	"github.com/driftline/auth-service/internal/infrastructure/security"
	"github.com/driftline/auth-service/internal/repository/interfaces"
	"github.com/driftline/auth-service/internal/service"
)

// RouterDeps carries everything SetupRouter wires into handlers.
type RouterDeps struct {
	AuthService      *service.AuthService
	TokenService     *service.TokenService
	SessionService   *service.SessionService
	MFAService       *service.MFAService
	TwoFactorService *service.TwoFactorService
	TokenManager     *security.TokenManager
	UserRepo         interfaces.UserRepository
	DB               *pgxpool.Pool
	Redis            *redis.Client
	Logger           *zap.Logger
}

// SetupRouter builds the HTTP routing tree.
func SetupRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(deps.Logger))
	router.Use(middleware.LoggingMiddleware(deps.Logger))
	router.Use(middleware.CorsMiddleware())
	router.Use(middleware.MetricsMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.TokenService, deps.TokenManager, deps.UserRepo, deps.Logger)
	mfaHandler := NewMFAHandler(deps.MFAService, deps.UserRepo, deps.Logger)
	twoFactorHandler := NewTwoFactorHandler(deps.TwoFactorService, deps.UserRepo, deps.Logger)
	healthHandler := NewHealthHandler(deps.DB, deps.Redis, deps.Logger)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", healthHandler.Health)
	router.GET("/readiness", healthHandler.Ready)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/signin", authHandler.Signin)
			auth.PATCH("/verify", authHandler.VerifyEmail)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/forgot-password", authHandler.ForgotPassword)
			auth.PATCH("/reset-password", authHandler.ResetPassword)
		}

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(deps.TokenManager, deps.SessionService, deps.Logger))
		{
			me := protected.Group("/auth")
			{
				me.GET("/me", authHandler.Me)
				me.GET("/sessions", authHandler.ListSessions)
				me.DELETE("/logout", authHandler.Logout)
				me.POST("/logout-all", authHandler.LogoutAll)
			}

			mfa := protected.Group("/mfa")
			{
				mfa.POST("/enroll", mfaHandler.EnrollFactor)
				mfa.POST("/challenge/:factor_id", mfaHandler.CreateChallenge)
				mfa.POST("/verify/:factor_id", mfaHandler.VerifyChallenge)
				mfa.DELETE("/unenroll/:factor_id", middleware.RequireAAL2(), mfaHandler.UnenrollFactor)
			}

			twoFactor := protected.Group("/auth/2fa")
			{
				twoFactor.GET("/generate", twoFactorHandler.Generate)
				twoFactor.POST("/enable", twoFactorHandler.Enable)
				twoFactor.POST("/verify", twoFactorHandler.Verify)
				twoFactor.POST("/disable", middleware.RequireAAL2(), twoFactorHandler.Disable)
			}
		}
	}

	return router
}
