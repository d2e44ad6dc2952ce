package config

import "github.com/kelseyhightower/envconfig"

// WebhookConfig configures the inbound-message webhook receiver.
type WebhookConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"production"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	RedisAddr string `envconfig:"REDIS_ADDR" required:"true"`

	// AWS / SQS
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`

	// Twilio. The auth token signs webhooks and authenticates outbound
	// sends (the receiver replies directly on the rate-limit path).
	TwilioAccountSID string `envconfig:"TWILIO_ACCOUNT_SID" required:"true"`
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN" required:"true"`
	TwilioBaseURL    string `envconfig:"TWILIO_BASE_URL" default:"https://api.twilio.com"`
	PublicWebhookURL string `envconfig:"PUBLIC_WEBHOOK_URL" required:"true"` // must match EXACT URL configured in Twilio

	// Intake gates
	IdempotencyTTLHours int `envconfig:"IDEMPOTENCY_TTL_HOURS" default:"24"`
	RateLimitMax        int `envconfig:"RATE_LIMIT_MAX" default:"15"`
	RateLimitWindowSec  int `envconfig:"RATE_LIMIT_WINDOW_SEC" default:"60"`
}

// WorkerConfig configures the message-processing worker.
type WorkerConfig struct {
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	RedisAddr string `envconfig:"REDIS_ADDR" required:"true"`

	DBPoolMaxConns        int32  `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	DBPoolMinConns        int32  `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBPoolMaxConnLifetime string `envconfig:"DB_POOL_MAX_CONN_LIFETIME" default:"30m"`
	DBPoolMaxConnIdleTime string `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME" default:"5m"`

	// AWS / SQS
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime        int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs         int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout      int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"120"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"10"`

	// Rate-limit re-check (defense in depth, same window as the receiver)
	RateLimitMax       int `envconfig:"RATE_LIMIT_MAX" default:"15"`
	RateLimitWindowSec int `envconfig:"RATE_LIMIT_WINDOW_SEC" default:"60"`

	// Per-chat lock lease; must outlive the AI timeout
	LockTTLSec int `envconfig:"CHAT_LOCK_TTL_SEC" default:"120"`

	// Twilio
	TwilioAccountSID string  `envconfig:"TWILIO_ACCOUNT_SID" required:"true"`
	TwilioAuthToken  string  `envconfig:"TWILIO_AUTH_TOKEN" required:"true"`
	TwilioBaseURL    string  `envconfig:"TWILIO_BASE_URL" default:"https://api.twilio.com"`
	TwilioRPSPerPod  float64 `envconfig:"TWILIO_RPS_PER_POD" default:"5"`
	TwilioBurst      int     `envconfig:"TWILIO_BURST" default:"10"`

	// OpenAI
	OpenAIAPIKey  string  `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIModel   string  `envconfig:"OPENAI_MODEL" default:"gpt-4o"`
	OpenAIRPS     float64 `envconfig:"OPENAI_RPS_PER_POD" default:"3"`
	OpenAIBurst   int     `envconfig:"OPENAI_BURST" default:"6"`
	AITimeoutSec  int     `envconfig:"AI_TIMEOUT_SEC" default:"90"`
	AIMaxSteps    int     `envconfig:"AI_MAX_STEPS" default:"8"`
	HistoryWindow int     `envconfig:"CHAT_HISTORY_WINDOW" default:"10"`

	// Knowledge-base retrieval
	KnowledgeThreshold float64 `envconfig:"KNOWLEDGE_SIMILARITY_THRESHOLD" default:"0.7"`

	// Scheduling service (the CRUD domain boundary)
	SchedulingBaseURL string `envconfig:"SCHEDULING_BASE_URL" required:"true"`
	SchedulingAPIKey  string `envconfig:"SCHEDULING_API_KEY"`
}

func LoadWebhook() WebhookConfig {
	var cfg WebhookConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadWorker() WorkerConfig {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
