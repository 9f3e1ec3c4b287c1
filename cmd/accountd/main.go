// Command accountd starts the account and authentication HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"accountd/internal/auth"
	"accountd/internal/captcha"
	"accountd/internal/cipher"
	"accountd/internal/config"
	"accountd/internal/httpapi"
	"accountd/internal/limiter"
	"accountd/internal/mailer"
	"accountd/internal/mfa"
	"accountd/internal/migrate"
	"accountd/internal/repository/postgres"
	"accountd/internal/token"
	"accountd/internal/totp"
)

var version = "dev"

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("postgres connect", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	users := postgres.NewUserRepo(db)
	tokenRows := postgres.NewTokenRepo(db)
	federated := postgres.NewFederatedRepo(db)

	// Login throttle, active only when an attempt budget is configured.
	var lim limiter.LoginLimiter = limiter.Disabled{}
	if cfg.Limiter.MaxAttempts > 0 {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		lim = limiter.New(rdb, cfg.Limiter)
	}

	// Services
	tokens := token.NewService(cfg.JWT, tokenRows)
	mail := mailer.NewLogMailer(logger, cfg.FrontendURL)
	authSvc := auth.NewService(users, federated, tokens, mail, lim, cfg)

	seedCipher, err := cipher.New(cfg.MFA.Cipher)
	if err != nil {
		logger.Fatal("mfa cipher", zap.Error(err))
	}
	mfaSvc := mfa.NewService(users, tokens, seedCipher, totp.New(totp.Options{}), cfg.MFA.ServiceName)

	var verifier captcha.Verifier
	if cfg.Captcha.Enabled {
		if verifier, err = captcha.NewHTTPVerifier(cfg.Captcha); err != nil {
			logger.Fatal("captcha verifier", zap.Error(err))
		}
	}
	gate := captcha.NewGate(cfg.Captcha, verifier)

	api := httpapi.NewServer(authSvc, mfaSvc, tokens, gate, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
