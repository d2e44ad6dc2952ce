package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"concierge/internal/ai"
	"concierge/internal/config"
	"concierge/internal/domain"
	"concierge/internal/gate"
	"concierge/internal/httpserver"
	"concierge/internal/logging"
	"concierge/internal/observability"
	"concierge/internal/providers/twilio"
	sqsqueue "concierge/internal/queue/sqs"
	"concierge/internal/scheduling"
	"concierge/internal/store/pg"
	workerproc "concierge/internal/worker"
)

func main() {
	cfg := config.LoadWorker()
	logging.Init("worker", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:        cfg.DBPoolMaxConns,
		MinConns:        cfg.DBPoolMinConns,
		MaxConnLifetime: cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime: cfg.DBPoolMaxConnIdleTime,
	})
	if err != nil {
		slog.Error("worker db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	store := pg.New(db)

	rdb, err := gate.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("worker redis connect failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	sqsClient, err := sqsqueue.NewClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
	if err != nil {
		slog.Error("worker sqs client init failed", "err", err)
		os.Exit(1)
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()

	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}
	if _, err := sqsClient.GetQueueAttributes(startupCtx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &cfg.SQSQueueURL,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	}); err != nil {
		slog.Error("sqs not reachable", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	consumer := &sqsqueue.Consumer{
		SQS: sqsClient, QueueURL: cfg.SQSQueueURL,
		WaitTimeSeconds:   cfg.SQSWaitTime,
		MaxMessages:       cfg.SQSMaxMsgs,
		VisibilityTimeout: cfg.SQSVizTimeout,
	}

	// health + metrics servers
	healthMux := httpserver.New().Mux
	healthMux.HandleFunc("/healthz", httpserver.Healthz()).Methods(http.MethodGet)
	healthMux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error { return rdb.Ping(c).Err() },
		func(c context.Context) error {
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &cfg.SQSQueueURL,
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			return err
		},
	)).Methods(http.MethodGet)

	healthSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpserver.Logging(healthMux),
	}
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: promhttp.Handler()}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()
	metricsErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker metrics listening", "port", cfg.MetricsPort)
		metricsErrCh <- metricsSrv.ListenAndServe()
	}()

	// Twilio + limiter/breaker behind the dispatcher
	tw := &twilio.Client{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		HTTP:       &http.Client{Timeout: 8 * time.Second},
		BaseURL:    cfg.TwilioBaseURL,
	}
	dispatcher := &workerproc.Dispatcher{
		Sender:  tw,
		Limiter: rate.NewLimiter(rate.Limit(cfg.TwilioRPSPerPod), cfg.TwilioBurst),
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "twilio",
			MaxRequests: 3,
			Timeout:     20 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
		}),
	}

	// AI executor over the scheduling toolset
	oai := openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey))
	sched := &scheduling.HTTPClient{
		BaseURL: cfg.SchedulingBaseURL,
		APIKey:  cfg.SchedulingAPIKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
	executor := &ai.Executor{
		LLM:   &oai.Chat.Completions,
		Model: cfg.OpenAIModel,
		Tools: &ai.Toolset{Scheduling: sched},
		Knowledge: &ai.Retriever{
			Embedder:  &ai.OpenAIEmbedder{Client: oai},
			Source:    store,
			Threshold: cfg.KnowledgeThreshold,
		},
		Limiter:  rate.NewLimiter(rate.Limit(cfg.OpenAIRPS), cfg.OpenAIBurst),
		MaxSteps: cfg.AIMaxSteps,
		Timeout:  time.Duration(cfg.AITimeoutSec) * time.Second,
	}

	processor := &workerproc.Processor{
		Store: store,
		Lock: &gate.Lock{
			RDB: rdb,
			TTL: time.Duration(cfg.LockTTLSec) * time.Second,
		},
		RateLimit: &gate.RateLimiter{
			RDB:    rdb,
			Max:    cfg.RateLimitMax,
			Window: time.Duration(cfg.RateLimitWindowSec) * time.Second,
		},
		AI:            executor,
		Dispatch:      dispatcher,
		HistoryWindow: cfg.HistoryWindow,
	}

	// start polling
	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker starting poll", "queue_url", cfg.SQSQueueURL)
		pollErrCh <- consumer.PollConcurrent(ctx, cfg.WorkerConcurrency, func(ctx context.Context, job domain.InboundMessageJob) (err error) {
			start := time.Now()
			slog.Info("worker job start", "message_id", job.MessageID, "chat_key", job.ChatKey)
			defer func() {
				status := "ok"
				if err != nil {
					status = "error"
				}
				slog.Info("worker job finish",
					"message_id", job.MessageID,
					"chat_key", job.ChatKey,
					"status", status,
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}()
			return processor.Process(ctx, job)
		})
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("worker poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker health server failed", "err", err)
			os.Exit(1)
		}
	case err := <-metricsErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("worker shutdown", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	// let in-flight jobs drain
	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		slog.Info("worker shutdown timeout waiting for poll loop")
	}
}
