package httpserver

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"concierge/internal/domain"
	"concierge/internal/observability"
	"concierge/internal/providers/twilio"
	"concierge/internal/store"
)

type TenantStore interface {
	FindSalonByNumber(ctx context.Context, waNumber string) (store.Salon, bool, error)
	ChatExists(ctx context.Context, salonID, clientPhone string) (bool, error)
}

type IdempotencyGate interface {
	MarkIfFirst(ctx context.Context, messageID string) (bool, error)
	Unmark(ctx context.Context, messageID string) error
}

type RateGate interface {
	Allow(ctx context.Context, phone string) (bool, error)
}

type Enqueuer interface {
	EnqueueInbound(ctx context.Context, job domain.InboundMessageJob) error
}

type DirectReplier interface {
	SendWhatsApp(ctx context.Context, req twilio.SendRequest) (twilio.SendResponse, int, []byte, error)
}

// Receiver handles the provider's inbound-message webhook. Its contract with
// the provider: answer fast, and answer 200 for every business-logic outcome
// so a permanent condition never turns into a retry storm. Non-200 is
// reserved for malformed input (400), bad signatures (401) and enqueue
// failures we genuinely want redelivered (500).
type Receiver struct {
	Store       TenantStore
	Idempotency IdempotencyGate
	RateLimit   RateGate
	Queue       Enqueuer
	Replier     DirectReplier

	VerifySignature func(authToken, fullURL, provided string, form url.Values) bool
	AuthToken       string
	PublicURL       string
	Environment     string

	NormalizePhone func(string) string
}

// Provider webhooks carry media as URLs, never as inline parts, so the form
// itself stays small.
const maxInboundFormBytes = 1 << 20

func (rc *Receiver) Register(m *mux.Router) {
	m.HandleFunc("/v1/webhooks/whatsapp/inbound", rc.handleInbound).Methods(http.MethodPost)
}

func (rc *Receiver) handleInbound(w http.ResponseWriter, r *http.Request) {
	// The provider retries on 5xx and timeouts; an unexpected panic must not
	// look like a transient failure it should retry forever.
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("webhook handler panic", "panic", rec)
			observability.WebhookRequests.WithLabelValues("panic").Inc()
			w.WriteHeader(http.StatusOK)
		}
	}()

	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !formMediaType(mt) {
		observability.WebhookRequests.WithLabelValues("invalid").Inc()
		http.Error(w, ErrBadContentType, http.StatusBadRequest)
		return
	}
	// ParseMultipartForm also fills r.PostForm with the part values, so the
	// field reads and signature check below are encoding-agnostic.
	if mt == "multipart/form-data" {
		err = r.ParseMultipartForm(maxInboundFormBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		observability.WebhookRequests.WithLabelValues("invalid").Inc()
		http.Error(w, ErrBadForm, http.StatusBadRequest)
		return
	}

	if rc.Environment != "development" {
		sig := r.Header.Get("X-Twilio-Signature")
		if rc.VerifySignature == nil || !rc.VerifySignature(rc.AuthToken, rc.PublicURL, sig, r.PostForm) {
			observability.WebhookRequests.WithLabelValues("unauthorized").Inc()
			http.Error(w, ErrInvalidSignature, http.StatusUnauthorized)
			return
		}
	}

	from := r.PostForm.Get("From")
	to := r.PostForm.Get("To")
	body := r.PostForm.Get("Body")
	messageID := r.PostForm.Get("MessageSid")
	numMedia, _ := strconv.Atoi(r.PostForm.Get("NumMedia"))

	if from == "" || to == "" || messageID == "" || (body == "" && numMedia == 0) {
		observability.WebhookRequests.WithLabelValues("invalid").Inc()
		http.Error(w, ErrMissingFields, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	senderPhone := rc.NormalizePhone(from)
	recipient := rc.NormalizePhone(to)

	salon, found, err := rc.Store.FindSalonByNumber(ctx, recipient)
	if err != nil {
		// infrastructure fault before any side effect: let the provider retry
		slog.Error("tenant lookup failed", "err", err, "recipient", recipient)
		http.Error(w, ErrNoTenant, http.StatusInternalServerError)
		return
	}
	if !found {
		// Permanent routing miss. 200 on purpose: a 404 would make the
		// provider retry a request that can never succeed. Logged and
		// counted separately from genuine successes.
		slog.Warn("inbound message for unknown recipient", "recipient", recipient, "message_id", messageID)
		observability.UnknownRecipient.Inc()
		observability.WebhookRequests.WithLabelValues("unknown_recipient").Inc()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(ErrNoTenant))
		return
	}

	first, err := rc.Idempotency.MarkIfFirst(ctx, messageID)
	if err != nil {
		slog.Error("idempotency check failed", "err", err, "message_id", messageID)
		http.Error(w, ErrEnqueueFailed, http.StatusInternalServerError)
		return
	}
	if !first {
		observability.DuplicateDrops.Inc()
		observability.WebhookRequests.WithLabelValues("duplicate").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	allowed, err := rc.RateLimit.Allow(ctx, senderPhone)
	if err != nil {
		slog.Error("rate limit check failed", "err", err, "sender", senderPhone)
		// fail open: one uncounted message beats dropping it
		allowed = true
	}
	if !allowed {
		observability.RateLimited.WithLabelValues("webhook").Inc()
		observability.WebhookRequests.WithLabelValues("rate_limited").Inc()
		// direct notice, bypassing the queue; best effort
		if _, _, _, err := rc.Replier.SendWhatsApp(ctx, twilio.SendRequest{
			From: salon.WhatsAppNumber,
			To:   from,
			Body: domain.SlowDownText(salon.Language),
		}); err != nil {
			slog.Warn("rate limit notice send failed", "err", err, "sender", senderPhone)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	mediaType := domain.MediaNone
	mediaURL := ""
	if numMedia > 0 {
		mediaType = domain.ClassifyMedia(r.PostForm.Get("MediaContentType0"))
		mediaURL = r.PostForm.Get("MediaUrl0")
	}

	isNew := false
	if exists, err := rc.Store.ChatExists(ctx, salon.ID, senderPhone); err == nil {
		isNew = !exists
	}

	job := domain.InboundMessageJob{
		MessageID:        messageID,
		ChatKey:          domain.ChatKey(salon.ID, senderPhone),
		SalonID:          salon.ID,
		SenderPhone:      senderPhone,
		ReplyDestination: from, // provider routing id beats the bare phone
		BodyText:         body,
		HasMedia:         numMedia > 0,
		MediaType:        mediaType,
		MediaURL:         mediaURL,
		CustomerName:     r.PostForm.Get("ProfileName"),
		WaID:             r.PostForm.Get("WaId"),
		IsNewCustomer:    isNew,
	}

	if err := rc.Queue.EnqueueInbound(ctx, job); err != nil {
		observability.Enqueues.WithLabelValues("error").Inc()
		observability.WebhookRequests.WithLabelValues("enqueue_failed").Inc()
		slog.Error("enqueue failed", "err", err, "message_id", messageID, "salon_id", salon.ID)
		// roll the idempotency mark back so the provider's retry is accepted
		if uerr := rc.Idempotency.Unmark(ctx, messageID); uerr != nil {
			slog.Error("idempotency rollback failed", "err", uerr, "message_id", messageID)
		}
		http.Error(w, ErrEnqueueFailed, http.StatusInternalServerError)
		return
	}

	observability.Enqueues.WithLabelValues("ok").Inc()
	observability.WebhookRequests.WithLabelValues("accepted").Inc()
	w.WriteHeader(http.StatusOK)
}

func formMediaType(mt string) bool {
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}
