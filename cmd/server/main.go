package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/riteshkumar/bank-payments/internal/auth"
	"github.com/riteshkumar/bank-payments/internal/config"
	"github.com/riteshkumar/bank-payments/internal/events"
	"github.com/riteshkumar/bank-payments/internal/handler"
	"github.com/riteshkumar/bank-payments/internal/ratelimit"
	"github.com/riteshkumar/bank-payments/internal/repository"
	"github.com/riteshkumar/bank-payments/internal/service"
	"github.com/riteshkumar/bank-payments/internal/utils"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialise logger
	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.JWTSecret == "change-me" {
		if cfg.IsProduction() {
			logger.Fatal("JWT_SECRET must be set in production")
		}
		logger.Warn("using the default JWT secret")
	}

	ctx := context.Background()

	// Initialise store
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer store.Close()

	// Redis backs login throttling and transaction events when configured
	var (
		publisher   events.Publisher = events.NopPublisher{}
		userLimiter ratelimit.Limiter
		ipLimiter   ratelimit.Limiter
	)
	userOpts := ratelimit.Options{Limit: cfg.LoginMaxAttempts, Window: cfg.LoginWindow, Block: cfg.LoginBlock, Prefix: "rl:user"}
	ipOpts := ratelimit.Options{Limit: cfg.LoginMaxAttempts * 5, Window: cfg.LoginWindow, Block: cfg.LoginBlock, Prefix: "rl:ip"}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis ping failed, continuing", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		cancel()

		publisher = events.NewRedisPublisher(rdb, logger)
		userLimiter = ratelimit.NewRedisLimiter(rdb, userOpts)
		ipLimiter = ratelimit.NewRedisLimiter(rdb, ipOpts)
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	} else {
		userLimiter = ratelimit.NewMemoryLimiter(userOpts)
		ipLimiter = ratelimit.NewMemoryLimiter(ipOpts)
	}

	trustedProxies, err := utils.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Fatal("invalid TRUSTED_PROXIES", zap.Error(err))
	}

	// Initialise services
	jwt := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	accountService := service.NewAccountService(store, logger)
	transactionService := service.NewTransactionService(store, accountService, publisher, logger)
	approvalService := service.NewApprovalService(store, accountService, publisher, cfg.RequireVerification, logger)
	authService := service.NewAuthService(store, accountService, auth.NewBcryptHasher(bcrypt.DefaultCost), jwt,
		userLimiter, cfg.StartingBalance, logger)

	if cfg.SeedEmployeeUsername != "" && cfg.SeedEmployeePassword != "" {
		if err := authService.EnsureEmployee(ctx, cfg.SeedEmployeeUsername, cfg.SeedEmployeePassword); err != nil {
			logger.Fatal("failed to seed employee", zap.String("username", cfg.SeedEmployeeUsername), zap.Error(err))
		}
	}

	// Setup router
	router := handler.NewRouter(handler.RouterDeps{
		Auth:           authService,
		Accounts:       accountService,
		Transactions:   transactionService,
		Approvals:      approvalService,
		Verifier:       jwt,
		IPLimiter:      ipLimiter,
		TrustedProxies: trustedProxies,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a go routine
	go func() {
		logger.Info("starting server", zap.String("port", cfg.ServerPort), zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repository.Store, error) {
	if cfg.StoreDriver == "memory" {
		store := repository.NewMemoryStore()
		if cfg.RecipientRegistryFile != "" {
			n, err := store.LoadRecipientsFile(cfg.RecipientRegistryFile)
			if err != nil {
				return nil, err
			}
			logger.Info("loaded recipient registry", zap.Int("recipients", n))
		}
		logger.Warn("using in-memory store, data is lost on restart")
		return store, nil
	}

	db, err := repository.Connect(ctx, repository.PostgresConfig{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database successfully")

	if err := repository.Migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return repository.NewPostgresStore(db, cfg.DBMaxRetries, logger), nil
}
