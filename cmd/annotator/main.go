package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"annotator3d/internal/app"
	"annotator3d/internal/config"
	"annotator3d/internal/server"
	"annotator3d/internal/util"
	"annotator3d/pkg/storage"
	"annotator3d/pkg/store"
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

	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init database: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	var sessions store.SessionStore
	switch cfg.SessionStrategy {
	case "jwt":
		revoker := store.NewRedisTokenRevoker(redisClient, sessionTTL)
		sessions, err = store.NewJWTSessionStore(cfg.JWTSecret, sessionTTL, revoker)
		if err != nil {
			log.Fatalf("failed to init jwt sessions: %v", err)
		}
	default:
		sessions = store.NewRedisSessionStore(redisClient, sessionTTL)
	}

	var objects storage.ObjectStore
	switch cfg.StorageBackend {
	case "filesystem":
		objects, err = storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			log.Fatalf("failed to init file storage: %v", err)
		}
	default:
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init object storage: %v", err)
		}
	}

	appCore, err := app.New(app.Config{
		Store:           dataStore,
		Sessions:        sessions,
		Objects:         objects,
		AdopterUsername: cfg.AdopterUsername,
		MaxFileBytes:    cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		RedisClient:                redisClient,
		TrustedProxies:             cfg.TrustedProxyCIDRs,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
