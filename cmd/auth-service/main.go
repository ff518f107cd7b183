package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/driftline/auth-service/internal/config"
	"github.com/driftline/auth-service/internal/events"
	"github.com/driftline/auth-service/internal/events/kafka"
	handler "github.com/driftline/auth-service/internal/handler/http"
	"github.com/driftline/auth-service/internal/infrastructure/security"
	"github.com/driftline/auth-service/internal/repository/postgres"
	redisrepo "github.com/driftline/auth-service/internal/repository/redis"
	"github.com/driftline/auth-service/internal/service"
	"github.com/driftline/auth-service/internal/utils/logger"
	"github.com/driftline/auth-service/migrations"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Fatal("Service terminated", zap.Error(err))
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		if err := migrations.Up(cfg.Database.DSN(), cfg.Database.MigrationsPath, zapLogger); err != nil {
			return err
		}
	}

	dbPool, err := postgres.NewDBPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	redisClient, err := redisrepo.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, zapLogger)
		if err != nil {
			return err
		}
		defer producer.Close()
		publisher = producer
	}

	// Repositories
	userRepo := postgres.NewUserRepositoryPostgres(dbPool)
	sessionRepo := postgres.NewSessionRepositoryPostgres(dbPool)
	refreshTokenRepo := postgres.NewRefreshTokenRepositoryPostgres(dbPool)
	factorRepo := postgres.NewFactorRepositoryPostgres(dbPool)
	challengeRepo := postgres.NewChallengeRepositoryPostgres(dbPool)
	sessionCache := redisrepo.NewSessionCache(redisClient, zapLogger, cfg.Security.SessionCacheTTL)
	windowStore := redisrepo.NewVerificationWindowStore(redisClient, zapLogger)

	// Security primitives
	passwordService, err := security.NewArgon2idPasswordService(security.Argon2idParams{
		Memory:      cfg.Security.Argon2Memory,
		Iterations:  cfg.Security.Argon2Iterations,
		Parallelism: cfg.Security.Argon2Parallelism,
		SaltLength:  cfg.Security.Argon2SaltLength,
		KeyLength:   cfg.Security.Argon2KeyLength,
	})
	if err != nil {
		return err
	}
	encryptionService := security.NewAESGCMEncryptionService()
	totpService := security.NewTOTPService(cfg.MFA.Issuer)
	tokenManager := security.NewTokenManager(cfg.JWT)

	// Services
	sessionService := service.NewSessionService(sessionRepo, sessionCache, publisher, zapLogger)
	tokenService := service.NewTokenService(tokenManager, refreshTokenRepo, userRepo, factorRepo, sessionService, zapLogger)
	verificationService := service.NewVerificationService(windowStore, publisher, zapLogger,
		cfg.Security.VerificationWindowTTL, cfg.Security.PasswordResetTTL)
	authService := service.NewAuthService(userRepo, refreshTokenRepo, passwordService, tokenManager,
		sessionService, tokenService, verificationService, publisher,
		cfg.Security.MaxFailedAttempts, cfg.Security.LockoutDuration, zapLogger)
	mfaService := service.NewMFAService(factorRepo, challengeRepo, totpService, encryptionService,
		passwordService, sessionService, tokenService, cfg.Security.EncryptionKeyHex, zapLogger)
	twoFactorService := service.NewTwoFactorService(userRepo, totpService, encryptionService,
		passwordService, sessionService, tokenService, cfg.Security.EncryptionKeyHex, zapLogger)

	router := handler.SetupRouter(handler.RouterDeps{
		AuthService:      authService,
		TokenService:     tokenService,
		SessionService:   sessionService,
		MFAService:       mfaService,
		TwoFactorService: twoFactorService,
		TokenManager:     tokenManager,
		UserRepo:         userRepo,
		DB:               dbPool,
		Redis:            redisClient,
		Logger:           zapLogger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zapLogger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
