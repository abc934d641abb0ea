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

	"marginalia/api/internal/app"
	"marginalia/api/internal/config"
	"marginalia/api/internal/export"
	"marginalia/api/internal/gitrepo"
	"marginalia/api/internal/search"
	"marginalia/api/internal/store"
	"marginalia/api/internal/vocab"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	ctx := context.Background()

	db, dialect, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, dialect); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	noteStore := store.NewSQLStore(db, dialect)
	deps := app.Deps{
		Notes:   noteStore,
		History: gitrepo.New(cfg.ReposDir),
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, noteStore)
	deps.Search = searchService

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for vocabulary suggestions")
		redisStore, err := vocab.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		deps.Vocab = redisStore
	}

	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		publisher, err := export.NewPublisher(ctx, export.PublisherConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Printf("WARNING: export publishing disabled: %v", err)
		} else {
			deps.Publisher = publisher
		}
	}

	service := app.New(cfg, deps)

	if meiliClient != nil {
		notes, err := noteStore.ListNotes(ctx, 10000)
		if err != nil {
			log.Printf("WARNING: reindex skipped: %v", err)
		} else {
			searchService.ReindexAll(notes)
		}
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, cfg.APIKeyHash)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Marginalia API listening on %s (%s)", cfg.Addr, dialect)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		log.Printf("saving open notes: %v", err)
	}
}
