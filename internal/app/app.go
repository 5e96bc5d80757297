package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/folio/internal/chat"
	"github.com/MrSnakeDoc/folio/internal/config"
	"github.com/MrSnakeDoc/folio/internal/content"
	"github.com/MrSnakeDoc/folio/internal/conversation"
	"github.com/MrSnakeDoc/folio/internal/endorsement"
	"github.com/MrSnakeDoc/folio/internal/httpserver"
	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/llm"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/mailer"
	"github.com/MrSnakeDoc/folio/internal/metrics"
	"github.com/MrSnakeDoc/folio/internal/otp"
	"github.com/MrSnakeDoc/folio/internal/paramstore"
	"github.com/MrSnakeDoc/folio/internal/redis"
	"github.com/MrSnakeDoc/folio/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/folio/internal/store/redis"
	"github.com/MrSnakeDoc/folio/internal/version"
)

const paramLookupTimeout = 10 * time.Second

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	reloader    *scheduler.ContentReloader
	reaper      *scheduler.OTPReaper
	retention   *scheduler.LogRetention
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Initialize Redis early - fail fast if unavailable
	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.Connect(context.Background(), redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, logger.Component(loggerClient, "redis"))
	if err != nil {
		loggerClient.Errorf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("Redis initialized successfully")

	store := redisstore.NewStore(redisClient)

	apiKey, err := resolveAPIKey(cfg, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to resolve LLM API key: %v", err)
		os.Exit(1)
	}

	// Content: lookup tables, chat context and skill names
	loader := content.NewLoader(cfg.ContentDir, cfg.PromptFile, cfg.OwnerName)
	catalog := content.NewCatalog()
	reloadTrigger := make(chan struct{}, 1)
	reloader := scheduler.NewContentReloader(
		loader,
		catalog,
		logger.Component(loggerClient, "content"),
		cfg.ReloadInterval,
		cfg.WatchContent,
		reloadTrigger,
	)

	// Email
	transport := mailer.NewSMTPTransport(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		StartTLS: cfg.SMTPStartTLS,
		Timeout:  cfg.SMTPTimeout,
	})
	notifier := mailer.NewNotifier(transport, logger.Component(loggerClient, "mailer"), cfg.OwnerName, cfg.OwnerEmail)

	// Endorsements
	codes := otp.NewService(store, logger.Component(loggerClient, "otp"), cfg.OTPTTL, cfg.OTPMaxAttempts)
	workflow := endorsement.NewWorkflow(store, codes, notifier, catalog, logger.Component(loggerClient, "endorsement"))
	reaper := scheduler.NewOTPReaper(codes, logger.Component(loggerClient, "otp-reaper"), cfg.OTPReapInterval)

	// Chat
	llmClient := llm.New(llm.Config{
		BaseURL:         cfg.LLMBaseURL,
		Model:           cfg.LLMModel,
		APIKey:          apiKey,
		Timeout:         cfg.LLMTimeout,
		BreakerFailures: uint32(cfg.LLMBreakerFailures),
		BreakerTimeout:  cfg.LLMBreakerTimeout,
	}, logger.Component(loggerClient, "llm"))
	sessions := conversation.NewLog(store, cfg.TrustClientHistory, conversation.WithHistoryLimit(cfg.ChatHistoryLimit))
	gateway := chat.NewGateway(llmClient, sessions, store, catalog, llmClient.Model(), logger.Component(loggerClient, "chat"))

	// Metrics
	retention := scheduler.NewLogRetention(store, logger.Component(loggerClient, "retention"), cfg.LogRetention, cfg.LogTrimInterval)
	exporter := metrics.NewExporter(metrics.NewAggregator(store, catalog), logger.Component(loggerClient, "metrics"))

	// Dependencies passed to routes
	d := deps.Deps{
		Logger:        loggerClient,
		StartTime:     time.Now(),
		Version:       version.Version,
		Commit:        version.Commit,
		BuildDate:     version.BuildDate,
		GoVersion:     version.GoVersion,
		TimeNow:       time.Now,
		AllowedHosts:  cfg.AllowedHosts,
		AllowedCIDRS:  cfg.AllowedCIDRS,
		TrustProxy:    cfg.TrustProxy,
		CORSOrigins:   cfg.CORSOrigins,
		Chat:          gateway,
		Endorsements:  workflow,
		Notifier:      notifier,
		Content:       catalog,
		Activity:      store,
		Metrics:       exporter,
		LLMState:      llmClient.State,
		ReloadTrigger: reloadTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		reloader:    reloader,
		reaper:      reaper,
		retention:   retention,
	}
}

// resolveAPIKey returns the inline key, or reads it from SSM Parameter Store.
func resolveAPIKey(cfg *config.Config, log logger.Logger) (string, error) {
	if cfg.LLMAPIKey != "" {
		return cfg.LLMAPIKey, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), paramLookupTimeout)
	defer cancel()

	params, err := paramstore.NewFromEnvironment(ctx, cfg.AWSRegion)
	if err != nil {
		return "", err
	}
	key, err := params.Get(ctx, cfg.LLMAPIKeyParam)
	if err != nil {
		return "", err
	}
	log.Info("LLM API key loaded from parameter store",
		logger.String("parameter", cfg.LLMAPIKeyParam))
	return key, nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting Folio v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start content reloader (loads the catalog, then watches and refreshes it)
	if err := a.reloader.Start(ctx); err != nil {
		return fmt.Errorf("failed to start content reloader: %w", err)
	}
	a.logger.Info("content reloader started",
		logger.String("dir", a.cfg.ContentDir),
		logger.Duration("interval", a.cfg.ReloadInterval),
		logger.Bool("watch", a.cfg.WatchContent))

	// Start OTP reaper
	if err := a.reaper.Start(ctx); err != nil {
		a.reloader.Stop()
		return fmt.Errorf("failed to start otp reaper: %w", err)
	}
	a.logger.Info("otp reaper started",
		logger.Duration("interval", a.cfg.OTPReapInterval))

	// Start log retention
	if err := a.retention.Start(ctx); err != nil {
		a.reaper.Stop()
		a.reloader.Stop()
		return fmt.Errorf("failed to start log retention: %w", err)
	}
	a.logger.Info("log retention started",
		logger.Duration("retention", a.cfg.LogRetention),
		logger.Duration("interval", a.cfg.LogTrimInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	a.reloader.Stop()
	a.reaper.Stop()
	a.retention.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", logger.Error(err))
	}

	if runErr != nil {
		return runErr
	}
	a.logger.Info("✅ Folio stopped cleanly")
	return nil
}
