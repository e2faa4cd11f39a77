package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/cheeseball/internal/config"
	"github.com/vitos/cheeseball/internal/domain"
	"github.com/vitos/cheeseball/internal/infrastructure/cache"
	"github.com/vitos/cheeseball/internal/infrastructure/exchange"
	"github.com/vitos/cheeseball/internal/infrastructure/logger"
	"github.com/vitos/cheeseball/internal/infrastructure/mailer"
	"github.com/vitos/cheeseball/internal/infrastructure/metrics"
	"github.com/vitos/cheeseball/internal/infrastructure/scheduler"
	"github.com/vitos/cheeseball/internal/infrastructure/storage"
	"github.com/vitos/cheeseball/internal/usecase"
	"github.com/vitos/cheeseball/internal/web"
	"go.uber.org/zap"
)

const resetCleanupSchedule = "@every 5m"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Cache
	responseCache, closeCache, err := newResponseCache(cfg, log)
	if err != nil {
		log.Fatal("Failed to init response cache", zap.Error(err))
	}
	defer closeCache()

	// 5. Init Upstream + Services
	m := metrics.NewMetrics()
	client := exchange.NewCoinGeckoClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, cfg.Upstream.APIKeyHeader, cfg.UpstreamTimeout())
	marketService := usecase.NewMarketService(client, responseCache, m, log)
	authService := usecase.NewAuthService(store, cfg.Auth.JWTSecret, cfg.TokenTTL())
	resetService := usecase.NewPasswordResetService(store, store, newMailer(cfg, log), authService,
		cfg.OTPTTL(), cfg.PasswordReset.MaxAttempts, log)

	hub := web.NewAlertHub(log)

	// 6. Background Jobs
	jobs := scheduler.New(log)
	if cfg.Alerts.Enabled {
		monitor := usecase.NewAlertMonitor(store, marketService, hub, m, log)
		if err := jobs.AddJob(cfg.Alerts.Schedule, monitor); err != nil {
			log.Fatal("Failed to schedule alert monitor", zap.Error(err))
		}
	}
	if err := jobs.AddJob(resetCleanupSchedule, usecase.NewResetCleanupJob(resetService)); err != nil {
		log.Fatal("Failed to schedule reset cleanup", zap.Error(err))
	}
	jobs.Start()

	// 7. Init Web Server
	server := web.NewServer(web.Options{
		Port:               cfg.Server.Port,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.Auth.RateLimitPerMinute,
		RateLimitBurst:     cfg.Auth.RateLimitBurst,
	}, web.Services{
		Market:   marketService,
		Auth:     authService,
		Resets:   resetService,
		UserData: usecase.NewUserDataService(store, store, store),
		Admin:    usecase.NewAdminService(store, log),
	}, hub, m, log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 8. Start Server
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 9. Wait for Shutdown
	select {
	case <-stop:
	case err := <-serverErr:
		log.Error("Server failed", zap.Error(err))
	}

	log.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	jobs.Stop()
}

func newResponseCache(cfg *config.Config, log *zap.Logger) (domain.ResponseCache, func(), error) {
	if cfg.Cache.Backend == config.CacheBackendRedis {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB,
			cfg.Cache.Redis.KeyPrefix, cfg.CacheTTL(), log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Using redis response cache", zap.String("addr", cfg.Cache.Redis.Addr))
		return rc, func() { _ = rc.Close() }, nil
	}

	mc := cache.NewMemoryCache(cfg.CacheTTL(), cfg.Cache.MaxEntries,
		time.Duration(cfg.Cache.CleanupIntervalSeconds)*time.Second)
	return mc, func() { _ = mc.Close() }, nil
}

func newMailer(cfg *config.Config, log *zap.Logger) domain.Mailer {
	if cfg.Mail.SMTPHost == "" {
		log.Warn("SMTP host not configured, reset mail will not be delivered")
		return mailer.NewLogMailer(log)
	}
	return mailer.NewSMTPMailer(cfg.Mail.SMTPHost, cfg.Mail.SMTPPort, cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.From)
}
