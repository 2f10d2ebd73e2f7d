package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avolkovs/portal-api/internal/auth"
	"github.com/avolkovs/portal-api/internal/config"
	"github.com/avolkovs/portal-api/internal/countries"
	"github.com/avolkovs/portal-api/internal/events"
	"github.com/avolkovs/portal-api/internal/health"
	"github.com/avolkovs/portal-api/internal/logger"
	"github.com/avolkovs/portal-api/internal/metrics"
	authmw "github.com/avolkovs/portal-api/internal/middleware"
	"github.com/avolkovs/portal-api/internal/ratelimit"
	"github.com/avolkovs/portal-api/internal/realtime"
	"github.com/avolkovs/portal-api/internal/repository"
	"github.com/avolkovs/portal-api/internal/stocks"
)

const (
	tokenCleanupInterval   = 15 * time.Minute
	attemptCleanupInterval = time.Hour
)

func main() {
	cfg := config.Load()

	appLogger := logger.New(logger.DefaultConfig())

	if cfg.Realtime.SubscriberSecret == "" {
		appLogger.Warn("REALTIME_SUBSCRIBER_SECRET not set, subscriber tokens are signed with an empty key")
	}

	dbPool, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	tokenRepo := repository.NewTokenRepository(dbPool)
	attemptRepo := repository.NewAttemptRepository(dbPool)

	// Services
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	issuer := auth.NewTokenIssuer(tokenRepo, cfg.Auth.TokenTTL)
	authService := auth.NewAuthService(userRepo, tokenRepo, hasher, issuer, appLogger)

	loginGuard := ratelimit.NewGuard("login", attemptRepo, cfg.RateLimit.Login, appLogger)
	regGuard := ratelimit.NewGuard("registration", attemptRepo, cfg.RateLimit.Registration, appLogger)

	eventStore := events.NewEventStore(1000)
	eventBus := events.NewEventBus(eventStore)

	stockService := stocks.NewService()

	// Handlers
	authHandler := auth.NewHandler(authService, loginGuard, regGuard, appLogger)
	realtimeCfg := realtime.DefaultConfig()
	realtimeCfg.SubscriberSecret = cfg.Realtime.SubscriberSecret
	realtimeCfg.SubscriberTTL = cfg.Realtime.SubscriberTTL
	realtimeHandler := realtime.NewHandler(realtimeCfg, eventBus, appLogger)
	countriesHandler := countries.NewHandler()
	stocksHandler := stocks.NewHandler(stockService)
	healthHandler := health.NewHandler(health.Config{
		DBPool:  dbPool,
		Version: os.Getenv("APP_VERSION"),
	})

	// Middleware
	authMiddleware := authmw.NewAuthMiddleware(authService)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(authmw.StructuredLogger(appLogger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/readyz", healthHandler.Readiness)
	r.Get("/livez", healthHandler.Liveness)

	r.Route("/api", func(r chi.Router) {
		// Public routes
		auth.RegisterRoutes(r, authHandler)
		r.Get("/health", healthHandler.Health)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			countries.RegisterRoutes(r, countriesHandler)
			stocks.RegisterRoutes(r, stocksHandler)
			realtime.RegisterRoutes(r, realtimeHandler)
		})
	})

	// Background cleanup of expired tokens and stale attempt counters
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go cleanupLoop(cleanupCtx, appLogger, tokenRepo, attemptRepo, cfg)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Long write timeout so SSE streams are not cut off by the server
		WriteTimeout: 2 * time.Hour,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down server")
	healthHandler.SetReady(false)
	cancelCleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("server exited")
}

// cleanupLoop periodically removes expired tokens and attempt counters whose
// window elapsed long ago.
func cleanupLoop(
	ctx context.Context,
	appLogger *slog.Logger,
	tokens repository.TokenRepository,
	attempts repository.AttemptRepository,
	cfg *config.Config,
) {
	tokenTicker := time.NewTicker(tokenCleanupInterval)
	defer tokenTicker.Stop()
	attemptTicker := time.NewTicker(attemptCleanupInterval)
	defer attemptTicker.Stop()

	// Keep attempt rows for the longest configured window, doubled so a
	// rejected caller still sees a consistent retry_after near the boundary.
	retention := cfg.RateLimit.Login.Window
	if cfg.RateLimit.Registration.Window > retention {
		retention = cfg.RateLimit.Registration.Window
	}
	retention *= 2

	for {
		select {
		case <-ctx.Done():
			return
		case <-tokenTicker.C:
			n, err := tokens.DeleteExpired(ctx)
			if err != nil {
				appLogger.Error("cleaning up expired tokens", "error", err)
				continue
			}
			if n > 0 {
				appLogger.Info("deleted expired tokens", "count", n)
			}
		case <-attemptTicker.C:
			n, err := attempts.DeleteOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				appLogger.Error("cleaning up stale attempts", "error", err)
				continue
			}
			if n > 0 {
				appLogger.Info("deleted stale attempt counters", "count", n)
			}
		}
	}
}

// corsOrigins reads the allowed origins list from the environment
func corsOrigins() []string {
	raw := os.Getenv("CORS_ALLOWED_ORIGINS")
	if raw == "" {
		return []string{"http://localhost:3000"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Connected to database %s on %s:%s", cfg.Database.DBName, cfg.Database.Host, cfg.Database.Port)
	return pool, nil
}
