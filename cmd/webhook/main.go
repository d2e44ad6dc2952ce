package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"concierge/internal/config"
	"concierge/internal/gate"
	"concierge/internal/httpserver"
	"concierge/internal/logging"
	"concierge/internal/observability"
	"concierge/internal/providers/twilio"
	sqsqueue "concierge/internal/queue/sqs"
	"concierge/internal/store/pg"
	"concierge/internal/util"
)

func main() {
	cfg := config.LoadWebhook()
	logging.Init("webhook", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		slog.Error("webhook db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := gate.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("webhook redis connect failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	sqsClient, err := sqsqueue.NewClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
	if err != nil {
		slog.Error("webhook sqs client init failed", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	tw := &twilio.Client{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		HTTP:       &http.Client{Timeout: 5 * time.Second},
		BaseURL:    cfg.TwilioBaseURL,
	}

	receiver := &httpserver.Receiver{
		Store: pg.New(db),
		Idempotency: &gate.Idempotency{
			RDB: rdb,
			TTL: time.Duration(cfg.IdempotencyTTLHours) * time.Hour,
		},
		RateLimit: &gate.RateLimiter{
			RDB:    rdb,
			Max:    cfg.RateLimitMax,
			Window: time.Duration(cfg.RateLimitWindowSec) * time.Second,
		},
		Queue:   &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.SQSQueueURL},
		Replier: tw,

		VerifySignature: twilio.VerifySignature,
		AuthToken:       cfg.TwilioAuthToken,
		PublicURL:       cfg.PublicWebhookURL,
		Environment:     cfg.Environment,

		NormalizePhone: util.NormalizePhone,
	}

	s := httpserver.New()
	receiver.Register(s.Mux)
	s.Mux.HandleFunc("/healthz", httpserver.Healthz()).Methods(http.MethodGet)
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error { return rdb.Ping(c).Err() },
	)).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpserver.Logging(s.Mux),
	}
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: promhttp.Handler()}

	metricsErrCh := make(chan error, 1)
	go func() {
		slog.Info("webhook metrics listening", "port", cfg.MetricsPort)
		metricsErrCh <- metricsSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("webhook shutdown", "signal", sig.String())
		case err := <-metricsErrCh:
			if err != nil && err != http.ErrServerClosed {
				slog.Error("webhook metrics server failed", "err", err)
			}
		}
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("webhook listening", "port", cfg.Port, "environment", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("webhook server failed", "err", err)
		os.Exit(1)
	}
}
