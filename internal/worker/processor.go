package worker

import (
	"context"
	"log/slog"
	"time"

	"concierge/internal/ai"
	"concierge/internal/domain"
	"concierge/internal/observability"
	"concierge/internal/store"
	"concierge/internal/util"
)

type ChatStore interface {
	FindSalonByID(ctx context.Context, salonID string) (store.Salon, bool, error)
	FindOrCreateChat(ctx context.Context, in store.ChatUpsert) (store.Chat, error)
	InsertInboundMessage(ctx context.Context, in store.ChatMessageInsert) (bool, error)
	InsertChatMessage(ctx context.Context, in store.ChatMessageInsert) error
	RecentMessages(ctx context.Context, chatID string, n int) ([]store.ChatMessage, error)
	InsertMediaAsset(ctx context.Context, in store.MediaAssetInsert) error
}

type Locker interface {
	Acquire(ctx context.Context, chatKey string) (token string, ok bool, err error)
	Release(ctx context.Context, chatKey, token string) error
}

type RateGate interface {
	Peek(ctx context.Context, phone string) (bool, error)
}

type TurnRunner interface {
	RunTurn(ctx context.Context, in ai.TurnInput) (ai.TurnResult, error)
}

// Processor drives one job through the per-chat critical section:
// rate-limit re-check, lock, manual-mode gate, media branch, AI turn,
// dispatch, persistence. A nil return deletes the job from the queue;
// an error leaves it for redelivery after the visibility timeout.
type Processor struct {
	Store         ChatStore
	Lock          Locker
	RateLimit     RateGate
	AI            TurnRunner
	Dispatch      *Dispatcher
	HistoryWindow int

	IDGen func() string
	Now   func() time.Time
}

func (p *Processor) ids() (func() string, func() time.Time) {
	idGen, now := p.IDGen, p.Now
	if idGen == nil {
		idGen = util.NewChatMessageID
	}
	if now == nil {
		now = util.NowUTC
	}
	return idGen, now
}

func (p *Processor) Process(ctx context.Context, job domain.InboundMessageJob) error {
	outcome, err := p.process(ctx, job)
	observability.JobOutcomes.WithLabelValues(string(outcome)).Inc()
	return err
}

func (p *Processor) process(ctx context.Context, job domain.InboundMessageJob) (domain.JobOutcome, error) {
	idGen, now := p.ids()

	salon, found, err := p.Store.FindSalonByID(ctx, job.SalonID)
	if err != nil {
		return domain.OutcomeError, err
	}
	if !found {
		// tenant deleted between intake and processing; nothing to do
		slog.Warn("job for unknown salon dropped", "salon_id", job.SalonID, "message_id", job.MessageID)
		return domain.OutcomeError, nil
	}

	// Defense in depth: the receiver already counted this message, so only
	// peek at the window here.
	if allowed, err := p.RateLimit.Peek(ctx, job.SenderPhone); err != nil {
		slog.Warn("rate limit re-check failed, proceeding", "err", err, "sender", job.SenderPhone)
	} else if !allowed {
		observability.RateLimited.WithLabelValues("worker").Inc()
		if derr := p.Dispatch.Send(ctx, salon.WhatsAppNumber, job.ReplyDestination, domain.SlowDownText(salon.Language)); derr != nil {
			slog.Warn("slow-down notice send failed", "err", derr, "sender", job.SenderPhone)
		}
		return domain.OutcomeRateLimited, nil
	}

	// Per-chat mutual exclusion: one AI turn at a time per conversation.
	// Strict policy: when the lock is held we raise a retryable error and
	// let the queue redeliver after the visibility timeout, rather than
	// proceeding and risking interleaved replies.
	token, ok, err := p.Lock.Acquire(ctx, job.ChatKey)
	if err != nil {
		observability.LockAcquire.WithLabelValues("error").Inc()
		return domain.OutcomeError, err
	}
	if !ok {
		observability.LockAcquire.WithLabelValues("held").Inc()
		slog.Info("chat lock held, deferring job", "chat_key", job.ChatKey, "message_id", job.MessageID)
		return domain.OutcomeError, domain.ErrLockHeld
	}
	observability.LockAcquire.WithLabelValues("ok").Inc()
	defer func() {
		// the lease expires on its own if this fails
		if rerr := p.Lock.Release(context.WithoutCancel(ctx), job.ChatKey, token); rerr != nil {
			slog.Warn("chat lock release failed", "err", rerr, "chat_key", job.ChatKey)
		}
	}()

	chat, err := p.Store.FindOrCreateChat(ctx, store.ChatUpsert{
		ID:          util.NewChatID(),
		SalonID:     job.SalonID,
		ClientPhone: job.SenderPhone,
		ProfileName: job.CustomerName,
		Now:         now(),
	})
	if err != nil {
		return domain.OutcomeError, err
	}

	// history is read before the inbound message is written so the AI input
	// carries the new text exactly once
	window := p.HistoryWindow
	if window <= 0 {
		window = 10
	}
	history, err := p.Store.RecentMessages(ctx, chat.ID, window)
	if err != nil {
		return domain.OutcomeError, err
	}

	inboundText := job.BodyText
	if inboundText == "" && job.HasMedia {
		inboundText = "[" + string(job.MediaType) + " message]"
	}
	// The row id comes from the provider message id: a redelivered job (for
	// example after a transient dispatch failure) lands on the same row
	// instead of persisting the customer's message twice.
	inboundID := util.InboundChatMessageID(job.MessageID)
	inserted, err := p.Store.InsertInboundMessage(ctx, store.ChatMessageInsert{
		ID:      inboundID,
		ChatID:  chat.ID,
		Role:    "user",
		Content: inboundText,
		Now:     now(),
	})
	if err != nil {
		return domain.OutcomeError, err
	}
	if !inserted {
		// redelivery: the first attempt's row is already inside the window,
		// so drop it from the history to keep the new text in the AI input
		// exactly once
		slog.Info("redelivered job, inbound message already persisted", "chat_id", chat.ID, "message_id", job.MessageID)
		history = withoutMessage(history, inboundID)
	}

	if chat.IsManual {
		// a human has taken over; the message is stored, nothing is sent
		slog.Info("manual mode, suppressing AI reply", "chat_id", chat.ID, "message_id", job.MessageID)
		return domain.OutcomeManualMode, nil
	}

	if job.HasMedia {
		return p.handleMedia(ctx, salon, chat, job)
	}

	result, err := p.AI.RunTurn(ctx, ai.TurnInput{
		Salon: ai.SalonProfile{
			ID:       salon.ID,
			Name:     salon.Name,
			Language: salon.Language,
			Timezone: salon.Timezone,
		},
		Customer: ai.CustomerProfile{
			Phone: job.SenderPhone,
			Name:  nonEmpty(job.CustomerName, chat.ProfileName),
			IsNew: job.IsNewCustomer,
		},
		History: toHistory(history),
		Text:    job.BodyText,
	})
	if err != nil {
		// AI failures are terminal for this turn: apologize instead of
		// retrying the model against the same message forever
		slog.Error("ai turn failed", "err", err, "chat_id", chat.ID, "message_id", job.MessageID, "salon_id", salon.ID)
		return p.sendTerminalReply(ctx, salon, chat, job, domain.ApologyText(salon.Language), domain.OutcomeError)
	}

	if derr := p.Dispatch.Send(ctx, salon.WhatsAppNumber, job.ReplyDestination, result.Text); derr != nil {
		if domain.IsRetryable(derr) {
			return domain.OutcomeError, derr
		}
		slog.Error("reply dispatch failed permanently", "err", derr, "chat_id", chat.ID, "message_id", job.MessageID)
		return domain.OutcomeError, nil
	}

	if err := p.Store.InsertChatMessage(ctx, store.ChatMessageInsert{
		ID:               idGen(),
		ChatID:           chat.ID,
		Role:             "assistant",
		Content:          result.Text,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		TotalTokens:      result.Usage.TotalTokens,
		RequiresResponse: util.RequiresResponse(result.Text),
		Now:              now(),
	}); err != nil {
		// the reply is already delivered; requeueing would send it twice
		slog.Error("assistant message persist failed", "err", err, "chat_id", chat.ID, "message_id", job.MessageID)
	}

	return domain.OutcomeSuccess, nil
}

// handleMedia archives the (ephemeral) media URL best-effort and sends the
// fixed text-only reply. The AI never sees media turns.
func (p *Processor) handleMedia(ctx context.Context, salon store.Salon, chat store.Chat, job domain.InboundMessageJob) (domain.JobOutcome, error) {
	_, now := p.ids()

	if job.MediaURL != "" {
		if err := p.Store.InsertMediaAsset(ctx, store.MediaAssetInsert{
			ChatID:      chat.ID,
			MessageID:   job.MessageID,
			ContentType: string(job.MediaType),
			URL:         job.MediaURL,
			Now:         now(),
		}); err != nil {
			slog.Warn("media archive failed", "err", err, "chat_id", chat.ID, "message_id", job.MessageID)
		}
	}

	return p.sendTerminalReply(ctx, salon, chat, job, domain.MediaReplyText(salon.Language), domain.OutcomeMediaHandled)
}

// sendTerminalReply delivers a fixed reply and persists it, on paths where
// the job ends regardless of the send outcome (media, AI failure).
func (p *Processor) sendTerminalReply(ctx context.Context, salon store.Salon, chat store.Chat, job domain.InboundMessageJob, text string, outcome domain.JobOutcome) (domain.JobOutcome, error) {
	idGen, now := p.ids()

	if derr := p.Dispatch.Send(ctx, salon.WhatsAppNumber, job.ReplyDestination, text); derr != nil {
		if domain.IsRetryable(derr) {
			return domain.OutcomeError, derr
		}
		slog.Error("terminal reply dispatch failed", "err", derr, "chat_id", chat.ID, "message_id", job.MessageID)
		return outcome, nil
	}

	if err := p.Store.InsertChatMessage(ctx, store.ChatMessageInsert{
		ID:               idGen(),
		ChatID:           chat.ID,
		Role:             "assistant",
		Content:          text,
		RequiresResponse: util.RequiresResponse(text),
		Now:              now(),
	}); err != nil {
		slog.Error("assistant message persist failed", "err", err, "chat_id", chat.ID)
	}
	return outcome, nil
}

func withoutMessage(msgs []store.ChatMessage, id string) []store.ChatMessage {
	out := make([]store.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

func toHistory(msgs []store.ChatMessage) []ai.HistoryMessage {
	out := make([]ai.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ai.HistoryMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func nonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
