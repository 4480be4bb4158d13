package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reporting-gateway/internal/access"
	"reporting-gateway/internal/auth"
	"reporting-gateway/internal/cache"
	"reporting-gateway/internal/config"
	"reporting-gateway/internal/database"
	"reporting-gateway/internal/handlers"
	"reporting-gateway/internal/middleware"
	"reporting-gateway/internal/reporting"

	"go.uber.org/zap"
)

const purgeInterval = time.Minute

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting reporting gateway")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize database
	dir, err := database.NewPostgresDirectory(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dir.Close()

	// Refresh token store and login limiter: Redis when configured, memory otherwise
	var (
		store   cache.RefreshTokenStore
		limiter cache.RateLimiter
	)
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal("Failed to initialize cache", zap.Error(err))
		}
		defer redisStore.Close()
		store = redisStore
		limiter = cache.NewRedisLimiter(redisStore, cfg.LoginRateLimit, cfg.LoginRateWindow)
	} else {
		logger.Warn("REDIS_URL not set; refresh tokens are kept in memory and lost on restart")
		memStore := cache.NewMemoryStore()
		memLimiter := cache.NewMemoryLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow)
		store = memStore
		limiter = memLimiter
		go runPurger(ctx, logger, memStore, memLimiter, cfg.LoginRateWindow)
	}

	// Initialize key manager
	keyManager, err := auth.NewKeyManager(cfg.JWTPrivateKey)
	if err != nil {
		logger.Fatal("Failed to initialize key manager", zap.Error(err))
	}
	logger.Info("Signing key loaded", zap.String("kid", keyManager.KeyID()))

	verifier := auth.NewVerifier(dir, cfg.LockoutThreshold, cfg.LockoutDuration, logger)

	tokenOpts := []auth.TokenOption{}
	if cfg.RefreshRehydrate {
		tokenOpts = append(tokenOpts, auth.WithPrincipalLoader(verifier))
	}
	tokens := auth.NewTokenService(keyManager, store, auth.TokenConfig{
		Issuer:             cfg.JWTIssuer,
		Audience:           cfg.JWTAudience,
		AccessTokenExpiry:  cfg.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.RefreshTokenExpiry,
		RefreshTokenLength: cfg.RefreshTokenLength,
		ClockSkew:          cfg.TokenClockSkew,
	}, logger, tokenOpts...)

	var source access.WhiteLabelSource = dir
	if len(cfg.WhiteLabelCatalog) > 0 {
		source = access.StaticSource(cfg.WhiteLabelCatalog)
	}
	resolverOpts := []access.ResolverOption{}
	if cfg.GrantsFromDirectory {
		resolverOpts = append(resolverOpts, access.WithGrantSource(dir))
	}
	resolver := access.NewResolver(access.NewCatalog(source, cfg.CatalogCacheTTL, logger), cfg.AdminRole, logger, resolverOpts...)

	// Initialize handlers
	routes := Routes{
		Auth:      handlers.NewAuthHandler(verifier, tokens, resolver, logger),
		JWKS:      handlers.NewJWKSHandler(keyManager, logger),
		Authn:     middleware.AuthMiddleware(tokens, cfg.StreamPathPrefix, logger),
		LoginRate: middleware.RateLimitMiddleware(limiter, "login", cfg.LoginRateWindow, logger),
	}
	if cfg.ReportingAPIURL != "" {
		client, err := reporting.NewHTTPClient(reporting.Config{
			BaseURL:  cfg.ReportingAPIURL,
			Username: cfg.ReportingAPIUsername,
			Password: cfg.ReportingAPIPassword,
			Timeout:  cfg.ReportingTimeout,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize reporting client", zap.Error(err))
		}
		routes.Gateway = handlers.NewGatewayHandler(resolver, client, cfg.ReportingDefaultCurrency, logger)
	} else {
		logger.Warn("REPORTING_API_URL not set; gateway report routes are disabled")
	}

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      SetupRouter(routes),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ReportingTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// runPurger drops expired refresh tokens and idle limiter buckets until ctx ends.
func runPurger(ctx context.Context, logger *zap.Logger, store *cache.MemoryStore, limiter *cache.MemoryLimiter, idle time.Duration) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := store.PurgeExpired(now); n > 0 {
				logger.Debug("Purged expired refresh tokens", zap.Int("count", n))
			}
			limiter.PurgeIdle(idle)
		}
	}
}
