package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"wayfare/api/internal/app"
	"wayfare/api/internal/config"
	"wayfare/api/internal/email"
	"wayfare/api/internal/ratelimit"
	"wayfare/api/internal/search"
	"wayfare/api/internal/session"
	"wayfare/api/internal/storage"
	"wayfare/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)

	var redisClient *redis.Client
	var sessionStore *session.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisClient.Close()
		sessionStore = session.NewRedisStoreWithClient(redisClient)
		log.Printf("Using Redis for cookie sessions")
	} else {
		log.Printf("Redis not configured, cookie sessions disabled (bearer tokens only)")
	}

	var service *app.Service
	if sessionStore != nil {
		service = app.New(cfg, dataStore, sessionStore, searchService)
	} else {
		service = app.New(cfg, dataStore, nil, searchService)
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		files, err := storage.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("minio connection failed: %v", err)
		}
		service.AttachFiles(files)
		log.Printf("Attachments stored in MinIO bucket %s", cfg.MinioBucket)
	}

	mail := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mail.IsConfigured() {
		service.AttachMail(mail)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	if cfg.RateLimit > 0 {
		if redisClient != nil {
			httpServer.SetLimiter(ratelimit.NewRedisWindow(redisClient, cfg.RateLimit, cfg.RateLimitWindow))
		} else {
			httpServer.SetLimiter(ratelimit.NewSlidingWindow(cfg.RateLimit, cfg.RateLimitWindow))
		}
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Wayfare API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
