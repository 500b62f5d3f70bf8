package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/blog-comment-api/internal/api"
	"github.com/blog-comment-api/internal/cache"
	"github.com/blog-comment-api/internal/config"
	"github.com/blog-comment-api/internal/database"
	"github.com/blog-comment-api/internal/identifier"
	"github.com/blog-comment-api/internal/notify"
	"github.com/blog-comment-api/internal/oauth"
	"github.com/blog-comment-api/internal/repository"
	"github.com/blog-comment-api/internal/service"
	"github.com/blog-comment-api/pkg/logger"
)

func main() {
	// A .env file is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// Initialize logger
	log := logger.New()
	log.Info().Msg("Starting blog comment API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Run migrations
	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "./migrations"
	}
	if err := db.RunMigrations(migrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	repos := repository.New(db)

	// Comment listings are cached in redis when an address is configured
	commentCache := cache.NewNoop()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer rdb.Close()

		commentCache = cache.NewRedisCommentCache(rdb, cfg.Redis.CacheTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Comment cache enabled")
	}

	// Initialize the OAuth provider and notification hooks
	provider := oauth.NewGitHubProvider(
		cfg.OAuth.ClientID,
		cfg.OAuth.ClientSecret,
		cfg.OAuth.UserAgent,
		cfg.OAuth.RequestTimeout,
		log,
	)
	runner := notify.NewRunner(cfg.Comments.NotifyCommands, cfg.Comments.NotifyTimeout, log)
	gen := identifier.New(cfg.Comments.IDNamespace)

	// Initialize services
	services := service.NewServices(repos, gen, provider, commentCache, runner, cfg, log)

	// Initialize router
	router := api.NewRouter(services, db, cfg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight notification hooks finish
	runner.Wait()

	log.Info().Msg("Server exited gracefully")
}
