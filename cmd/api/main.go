package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/secure-wallet/internal/anomaly"
	"github.com/FilipeAphrody/secure-wallet/internal/config"
	delivery "github.com/FilipeAphrody/secure-wallet/internal/delivery/http"
	"github.com/FilipeAphrody/secure-wallet/internal/domain"
	"github.com/FilipeAphrody/secure-wallet/internal/logger"
	"github.com/FilipeAphrody/secure-wallet/internal/repository"
	"github.com/FilipeAphrody/secure-wallet/internal/usecase"
	"github.com/FilipeAphrody/secure-wallet/pkg/fieldcrypt"
	"github.com/FilipeAphrody/secure-wallet/pkg/security"

	_ "github.com/lib/pq" // Postgres driver
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.AppLogPath = cfg.LogFile
	logCfg.AuditLogPath = cfg.AuditLogFile
	logs, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}

	os.Exit(finish(logs.App, logs, run(cfg, logs)))
}

// finish logs how the server stopped, flushes the log files and returns the
// process exit code.
func finish(lg *zap.Logger, logs io.Closer, err error) int {
	if err != nil {
		lg.Error("server stopped", zap.Error(err))
	} else {
		lg.Info("server exiting")
	}
	_ = logs.Close()
	if err != nil {
		return 1
	}
	return 0
}

func run(cfg *config.Config, logs *logger.Loggers) error {
	lg := logs.App
	if cfg.EphemeralKey {
		lg.Warn("no encryption key configured, using an ephemeral key; encrypted fields will not survive a restart")
	}

	// 2. Initialize Infrastructure (Persistence)
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = repository.RunMigrations(migrateCtx, db)
	cancel()
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	// 3. Initialize Repositories
	userRepo := repository.NewPostgresUserRepo(db)
	eventRepo := repository.NewPostgresLoginEventRepo(db)
	auditRepo := repository.NewPostgresAuditRepo(db)
	policyRepo := repository.NewPostgresPolicyRepo(db)

	var tokenRepo domain.TokenRepository = repository.NewMemoryTokenRepo()
	rateStore := delivery.NewMemoryRateLimitStore(cfg.LoginRateLimit, cfg.RateWindow)
	var loginStore middleware.RateLimiterStore = rateStore
	if rdb != nil {
		tokenRepo = repository.NewRedisTokenRepo(rdb)
		loginStore = repository.NewRedisRateLimitStore(rdb, "ratelimit:login", cfg.LoginRateLimit, cfg.RateWindow, rateStore, lg)
	} else {
		lg.Warn("REDIS_URL not set, token revocation and rate limits are per process")
	}

	var scorer domain.AnomalyScorer = anomaly.Stub{}
	if cfg.AIURL != "" {
		scorer = anomaly.NewClient(cfg.AIURL, cfg.ScorerTimeout)
	}

	// 4. Initialize Business Logic (Usecases)
	codec := fieldcrypt.NewCodec(cfg.Keyring, fieldcrypt.WithStrict(cfg.EncryptionStrict))
	hasher := security.NewPasswordHasher(security.HashParams{
		Memory:     uint32(cfg.PasswordHashMemoryKB),
		Iterations: uint32(cfg.PasswordHashIterations),
	})
	issuer := security.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)

	ledger := usecase.NewLoginLedger(eventRepo)
	audit := usecase.NewAuditRecorder(auditRepo, logs.Audit)
	policies := usecase.NewPolicyProvider(policyRepo, lg)
	guard := usecase.NewLockoutGuard(ledger, userRepo, audit, lg)

	authUsecase := usecase.NewAuthUsecase(usecase.AuthDeps{
		Users:    userRepo,
		Tokens:   tokenRepo,
		Policies: policies,
		Ledger:   ledger,
		Guard:    guard,
		Audit:    audit,
		Scorer:   scorer,
		Hasher:   hasher,
		Issuer:   issuer,
		Codec:    codec,
		Log:      lg,
	})
	adminUsecase := usecase.NewAdminUsecase(userRepo, ledger, guard, audit, policies, codec, lg)

	// 5. Setup Framework and Global Middlewares
	e := echo.New()
	e.HideBanner = true
	e.Validator = delivery.NewValidator()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.CORSOrigins}))
	e.Use(middleware.Secure())

	// 6. Register Delivery Handlers (Routes)
	authGroup := e.Group("/auth")
	delivery.NewAuthHandler(authGroup, authUsecase, delivery.LoginRateLimiter(loginStore), lg)
	delivery.NewMFAHandler(authGroup, authUsecase, lg)
	delivery.NewAdminHandler(e.Group("/admin"), adminUsecase, authUsecase, lg)
	delivery.NewHealthHandler(e, db, lg)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// 7. Start Server with Graceful Shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		lg.Info("starting secure wallet api", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	lg.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}
