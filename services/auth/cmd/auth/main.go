package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AniketChoudhary834/LMS/internal/util"
	"github.com/AniketChoudhary834/LMS/pkg/mail"
	"github.com/AniketChoudhary834/LMS/services/auth/internal/app"
	"github.com/AniketChoudhary834/LMS/services/auth/internal/config"
	"github.com/AniketChoudhary834/LMS/services/auth/internal/security"
	"github.com/AniketChoudhary834/LMS/services/auth/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	otpTTL, err := config.ParseOTPTTL(cfg.OTPTTL)
	if err != nil {
		log.Fatalf("failed to parse otp TTL: %v", err)
	}
	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}
	verifyKeys, err := config.ParseVerifyPublicKeys(cfg.JWTVerifyPublicKeys)
	if err != nil {
		log.Fatalf("failed to parse jwt verify keys: %v", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	var mailer mail.Mailer
	if cfg.SendGridAPIKey != "" {
		mailer, err = mail.NewSendGridMailer(mail.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromName:  cfg.MailFromName,
			FromEmail: cfg.MailFrom,
		})
		if err != nil {
			log.Fatalf("failed to init mailer: %v", err)
		}
	} else {
		logger.Warn("sendgridAPIKey not set, otp emails are written to the log")
		mailer = mail.NewLogMailer(logger)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:         cfg.DatabaseURL,
		Redis:               redisClient,
		SessionTTL:          sessionTTL,
		JWTPrivateKeyPath:   cfg.JWTPrivateKeyPath,
		JWTPublicKeyPath:    cfg.JWTPublicKeyPath,
		JWTKeyID:            cfg.JWTKeyID,
		JWTVerifyPublicKeys: verifyKeys,
		JWTIssuer:           cfg.JWTIssuer,
		JWTAudience:         cfg.JWTAudience,
		JWTLeeway:           jwtLeeway,
		OTPTTL:              otpTTL,
		OTPStore:            cfg.OTPStore,
		Mailer:              mailer,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		Redis:                      redisClient,
		Alerter:                    security.NewAuditAlerter(redisClient, ""),
		TrustedProxies:             trusted,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		VerifyRateLimitPerMinute:   cfg.VerifyRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		PasswordRateLimitPerMinute: cfg.PasswordRateLimitPerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		slog.Info("auth server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	slog.Info("auth server stopped")
}
