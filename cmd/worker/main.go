package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hudsonolin413-lang/axiobank-sub006/internal/config"
	"github.com/hudsonolin413-lang/axiobank-sub006/internal/confirm"
	"github.com/hudsonolin413-lang/axiobank-sub006/internal/consumer"
	"github.com/hudsonolin413-lang/axiobank-sub006/internal/daraja"
	"github.com/hudsonolin413-lang/axiobank-sub006/internal/repository"
	"github.com/hudsonolin413-lang/axiobank-sub006/internal/routes"
	"github.com/hudsonolin413-lang/axiobank-sub006/pkg/logger"
	"github.com/hudsonolin413-lang/axiobank-sub006/pkg/metrics"
	"github.com/hudsonolin413-lang/axiobank-sub006/pkg/retry"
	"github.com/streadway/amqp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel, cfg.LogFormat)
	logr.Info("starting deposit confirmation worker", slog.String("app", cfg.AppName))

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	guard := repository.NewDepositGuard(rdb, 0, 0)
	defer guard.Close()

	tokens := daraja.NewTokenSource(
		cfg.OAuthURL,
		cfg.ConsumerKey,
		cfg.ConsumerSecret,
		cfg.TokenSafetyMargin,
		cfg.GatewayTimeout,
	)
	gateway := daraja.NewClient(daraja.Config{
		PushURL:     cfg.PushURL,
		QueryURL:    cfg.QueryURL,
		Shortcode:   cfg.Shortcode,
		Passkey:     cfg.Passkey,
		CallbackURL: cfg.CallbackURL,
		CountryCode: cfg.CountryCode,
		Timeout:     cfg.GatewayTimeout,
	}, tokens, logr)

	metricsCollector := metrics.New()
	classifier := daraja.NewClassifier(cfg.PendingPatterns, logr)
	poller := confirm.NewPoller(gateway, classifier, confirm.Policy{
		MaxAttempts:       cfg.MaxAttempts,
		PollInterval:      cfg.PollInterval,
		RateLimitInterval: cfg.RateLimitInterval,
	}, logr, metricsCollector)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logr.Error("failed to connect rabbitmq", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	publisher, err := consumer.NewResultPublisher(conn, cfg.ResultQueue, logr, retry.Config{
		MaxAttempts:    cfg.PublishMaxAttempts,
		InitialBackoff: cfg.PublishInitialBackoff,
		MaxBackoff:     cfg.PublishMaxBackoff,
	})
	if err != nil {
		logr.Error("failed to open result publisher", slog.Any("error", err))
		os.Exit(1)
	}
	defer publisher.Close()

	base := consumer.NewBaseConsumer(
		conn,
		cfg.DepositQueue,
		cfg.DeadLetterQueue,
		cfg.PrefetchCount,
		cfg.WorkerCount,
		logr,
	)
	depositConsumer := consumer.NewDepositConsumer(base, poller, guard, publisher, metricsCollector, logr, cfg.MaxDeliveries)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	httpSrv := startHTTPServer(cfg.HTTPPort, metricsCollector, logr, started)

	if err := depositConsumer.Start(ctx); err != nil {
		logr.Error("deposit consumer exited", slog.Any("error", err))
	}

	shutdownHTTP(httpSrv, logr)
	logr.Info("deposit confirmation worker stopped")
}

func startHTTPServer(port string, metricsCollector *metrics.Metrics, logr *slog.Logger, started time.Time) *http.Server {
	if port == "" {
		port = "8084"
	}
	handler := routes.NewRouter(metricsCollector, started)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}
