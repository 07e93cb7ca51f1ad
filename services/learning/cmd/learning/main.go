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

	"github.com/AniketChoudhary834/LMS/internal/usertoken"
	"github.com/AniketChoudhary834/LMS/internal/util"
	"github.com/AniketChoudhary834/LMS/pkg/ai"
	"github.com/AniketChoudhary834/LMS/pkg/storage"
	"github.com/AniketChoudhary834/LMS/pkg/store"
	"github.com/AniketChoudhary834/LMS/services/learning/internal/app"
	"github.com/AniketChoudhary834/LMS/services/learning/internal/config"
	"github.com/AniketChoudhary834/LMS/services/learning/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
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

	verifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:     cfg.AuthJWKSURL,
		Issuer:      cfg.JWTIssuer,
		Audience:    cfg.JWTAudience,
		Leeway:      jwtLeeway,
		Revocations: store.NewRedisTokenRevoker(redisClient, 0),
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Minio: storage.MinioConfig{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicBaseURL,
		},
		Generation: ai.GeneratorConfig{
			Provider: cfg.GeneratorProvider,
			Model:    cfg.GeneratorModel,
			APIKey:   cfg.GeneratorAPIKey,
			BaseURL:  cfg.GeneratorBaseURL,
		},
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                    appCore,
		Verifier:               verifier,
		Redis:                  redisClient,
		TrustedProxies:         trusted,
		MaxUploadBytes:         cfg.MaxUploadBytes,
		QuizRateLimitPerMinute: cfg.QuizRateLimitPerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		slog.Info("learning server listening", "addr", addr, "max_upload_bytes", cfg.MaxUploadBytes)
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
	slog.Info("learning server stopped")
}
