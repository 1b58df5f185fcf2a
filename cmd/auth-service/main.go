package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	v1 "authd/internal/app/handler/v1"
	chiMiddleware "authd/internal/app/middleware"
	"authd/internal/app/model/api"
	"authd/internal/app/repo"
	"authd/internal/client/email"
	"authd/internal/config"
	"authd/internal/metrics"
	"authd/internal/rate"
	"authd/internal/service"
	"authd/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.Info("Starting authd service")

	if cfg.SecretsMatch() {
		logger.Warn("Access and refresh signing secrets are identical; they should differ")
	}

	db, err := setupDatabase(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to setup database: %v", err)
	}
	defer db.Close()

	redisClient, err := setupRedis(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to setup Redis: %v", err)
	}
	defer redisClient.Close()

	userRepo := repo.NewUserRepository(db)
	verifyRepo := repo.NewVerificationRepository(db)
	refreshRepo := repo.NewRefreshTokenRepository(db)

	emailClient := email.NewClient(
		cfg.Email.ServiceURL,
		time.Duration(cfg.Email.Timeout)*time.Second,
		cfg.Email.RetryCount,
		logger,
	)

	jwtManager := utils.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		time.Duration(cfg.JWT.AccessTokenTTL)*time.Second,
		time.Duration(cfg.JWT.RefreshTokenTTL)*time.Second,
	)

	otpThrottle := rate.New(redisClient, rate.Config{
		MaxRequests: cfg.App.ThrottleMax,
		Window:      time.Duration(cfg.App.ThrottleWindow) * time.Second,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	serviceConfig := &service.Config{
		OTPLength:      cfg.App.OTPLength,
		OTPTTL:         time.Duration(cfg.App.OTPTTL) * time.Second,
		ResendCooldown: time.Duration(cfg.App.ResendCooldown) * time.Second,
	}

	authService := service.NewAuthService(
		userRepo,
		verifyRepo,
		refreshRepo,
		emailClient,
		jwtManager,
		otpThrottle,
		m,
		logger,
		serviceConfig,
	)

	router := setupRouter(authService, jwtManager, registry, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go runSweeper(sweepCtx, authService, time.Duration(cfg.App.SweepInterval)*time.Second, logger)

	go func() {
		logger.WithFields(logrus.Fields{
			"host": cfg.Server.Host,
			"port": cfg.Server.Port,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

func setupDatabase(cfg *config.Config, logger *logrus.Logger) (*bun.DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if cfg.App.Environment == "development" {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("Database connected successfully")
	return db, nil
}

func setupRedis(cfg *config.Config, logger *logrus.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connected successfully")
	return client, nil
}

func setupRouter(authService service.AuthService, jwtManager *utils.JWTManager, registry *prometheus.Registry, logger *logrus.Logger) chi.Router {
	r := chi.NewRouter()

	loggingMiddleware := chiMiddleware.NewChiLoggingMiddleware(logger)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware.Logger())
	r.Use(loggingMiddleware.Recovery())
	r.Use(chiMiddleware.CORS())
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, &api.HealthResponse{
			Status:  "healthy",
			Service: "authd",
			Version: "1.0.0",
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			authHandler := v1.NewAuthHandler(authService, jwtManager, logger)
			authHandler.RegisterRoutes(r)
		})
	})

	return r
}

// runSweeper periodically deletes expired refresh-token ledger rows and
// stale verification records so storage does not grow without bound.
func runSweeper(ctx context.Context, authService service.AuthService, interval time.Duration, logger *logrus.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := authService.SweepExpired(ctx); err != nil {
				logger.WithFields(logrus.Fields{
					"error": err.Error(),
				}).Error("Sweep of expired records failed")
			}
		}
	}
}
