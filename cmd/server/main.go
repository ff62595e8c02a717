package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hanmadi-backend/internal/catalog"
	"hanmadi-backend/internal/config"
	"hanmadi-backend/internal/database"
	"hanmadi-backend/internal/handlers"
	"hanmadi-backend/internal/logger"
	"hanmadi-backend/internal/middleware"
	"hanmadi-backend/internal/progress"
	"hanmadi-backend/internal/repository"
	"hanmadi-backend/internal/router"
	"hanmadi-backend/internal/services"
	"hanmadi-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("starting hanmadi backend", zap.String("env", cfg.Env))

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pool.Close()
	log.Info("postgres connected")

	// ──── Step 3: Initialize Redis Client ────
	rdb, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	defer rdb.Close()
	log.Info("redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations", log); err != nil {
		log.Fatal("database migration failed", zap.Error(err))
	}
	log.Info("database migrations applied")

	// ──── Step 5: Load Vocabulary Catalog ────
	cat, err := catalog.Load()
	if err != nil {
		log.Fatal("catalog load failed", zap.Error(err))
	}
	log.Info("vocabulary catalog loaded", zap.Int("units", len(cat.Units())))

	// ──── Initialize Stores ────
	userRepo := repository.NewUserRepo(pool)
	localStore := progress.NewLocalStore(rdb, time.Duration(cfg.GuestProgressTTLDays)*24*time.Hour, log)
	remoteStore := progress.NewRemoteStore(pool, log)
	reconciler := progress.NewReconciler(localStore, remoteStore, log)

	// ──── Start Snapshot Saver ────
	saver := worker.NewSaver(cfg.SaveWorkers, log)
	saver.Start()

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	authService := services.NewAuthService(userRepo, rdb, jwtAuth)
	studyService := services.NewStudyService(cat, localStore, remoteStore, reconciler, remoteStore, saver, log)

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	studyHandler := handlers.NewStudyHandler(cat, studyService)

	// ──── Start HTTP Server ────
	r := router.New(jwtAuth, authHandler, studyHandler, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)

		// Drain pending snapshot saves after the server stops accepting
		// requests so the last mutation of every session is persisted.
		studyService.Close()
		saver.Stop()
	}()

	log.Info("hanmadi backend ready", zap.String("addr", "http://localhost:"+cfg.Port))

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("server error", zap.Error(err))
	}
}
