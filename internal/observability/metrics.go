package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	WebhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "concierge_webhook_requests_total", Help: "Inbound webhook outcomes"},
		[]string{"outcome"},
	)
	DuplicateDrops = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "concierge_webhook_duplicates_total", Help: "Webhook deliveries dropped by the idempotency gate"},
	)
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "concierge_rate_limited_total", Help: "Messages refused by the per-sender rate limit"},
		[]string{"stage"},
	)
	UnknownRecipient = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "concierge_unknown_recipient_total", Help: "Webhook deliveries for numbers no salon owns"},
	)
	Enqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "concierge_enqueue_total", Help: "SQS enqueue results"},
		[]string{"result"},
	)
	JobOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "concierge_job_outcomes_total", Help: "Worker job terminal outcomes"},
		[]string{"outcome"},
	)
	LockAcquire = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "concierge_chat_lock_acquire_total", Help: "Per-chat lock acquisition results"},
		[]string{"result"},
	)
	AITurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "concierge_ai_turns_total", Help: "AI turn results"},
		[]string{"result"},
	)
	AITurnLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "concierge_ai_turn_seconds",
			Help:    "AI turn wall-clock latency",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 90},
		},
	)
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "concierge_tool_calls_total", Help: "Tool invocation results by tool"},
		[]string{"tool", "result"},
	)
	DispatchSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "concierge_dispatch_total", Help: "WhatsApp send outcomes"},
		[]string{"result", "http_status"},
	)
	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "concierge_dispatch_latency_seconds", Help: "WhatsApp send latency"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		WebhookRequests, DuplicateDrops, RateLimited, UnknownRecipient, Enqueues,
		JobOutcomes, LockAcquire, AITurns, AITurnLatency, ToolCalls,
		DispatchSend, DispatchLatency,
	)
}
