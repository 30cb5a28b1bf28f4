package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"post_notifier/internal/config"
	"post_notifier/internal/events"
	"post_notifier/internal/mailer"
	"post_notifier/internal/server"
	"post_notifier/internal/service"
	"post_notifier/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize stores
	optionStore := postgres.NewOptionStore(db, cfg.Notifier.OptionKey, cfg.Notifier.LegacyOptionKey)
	postStore := postgres.NewPostStore(db)
	contactStore := postgres.NewContactStore(db)
	templateStore := postgres.NewTemplateStore(db)

	smtpMailer := mailer.NewSMTP(cfg.SMTP, logger)

	notifier := service.NewNotificationService(
		optionStore,
		postStore,
		contactStore,
		templateStore,
		smtpMailer,
		logger,
		cfg.Notifier,
	)

	consumer, err := events.NewConsumer(events.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		QueueName:  cfg.RabbitMQ.QueueName,
		CreatedKey: cfg.RabbitMQ.CreatedKey,
		StatusKey:  cfg.RabbitMQ.StatusKey,
	}, notifier, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	adminAPI := server.New(optionStore, contactStore, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           adminAPI.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	go func() {
		logger.Info("starting admin server", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server error", "error", err)
			cancel()
		}
	}()

	logger.Info("starting post notifier",
		"site", cfg.Notifier.SiteName,
		"option_key", cfg.Notifier.OptionKey,
		"contact_limit", cfg.Notifier.ContactLimit,
	)

	consumeErr := consumer.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin server shutdown failed", "error", err)
	}

	if consumeErr != nil && !errors.Is(consumeErr, context.Canceled) {
		logger.Error("consumer error", "error", consumeErr)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
