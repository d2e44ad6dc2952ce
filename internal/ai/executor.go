package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"concierge/internal/domain"
	"concierge/internal/observability"
)

var errNoEmbedding = errors.New("embeddings response was empty")

// ChatCompleter is what the executor needs from the OpenAI client.
// openai.Client.Chat.Completions satisfies it.
type ChatCompleter interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// HistoryMessage is one prior turn from the bounded conversation window.
type HistoryMessage struct {
	Role    string // "user" | "assistant"
	Content string
}

type TurnInput struct {
	Salon    SalonProfile
	Customer CustomerProfile
	History  []HistoryMessage
	Text     string
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type TurnResult struct {
	Text      string
	Usage     Usage
	ToolSteps int
	Healed    bool
}

// Executor runs one tool-augmented model turn. It guarantees termination via
// MaxSteps and Timeout, and guarantees a non-empty customer-safe reply.
type Executor struct {
	LLM       ChatCompleter
	Model     string
	Tools     *Toolset
	Knowledge *Retriever // optional
	Limiter   *rate.Limiter
	MaxSteps  int
	Timeout   time.Duration
}

// RunTurn produces the reply for one inbound message. Failures are returned
// as *domain.AIError, terminal for this turn.
func (e *Executor) RunTurn(ctx context.Context, in TurnInput) (TurnResult, error) {
	start := time.Now()
	res, err := e.runTurn(ctx, in)
	observability.AITurnLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.AITurns.WithLabelValues("error").Inc()
		return TurnResult{}, &domain.AIError{Err: err}
	}
	if res.Healed {
		observability.AITurns.WithLabelValues("healed").Inc()
	} else {
		observability.AITurns.WithLabelValues("ok").Inc()
	}
	return res, nil
}

func (e *Executor) runTurn(ctx context.Context, in TurnInput) (TurnResult, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	knowledge := ""
	if e.Knowledge != nil {
		kb, score, err := e.Knowledge.Context(ctx, in.Salon.ID, in.Text)
		if err != nil {
			// retrieval is an enrichment, not a dependency
			slog.Warn("knowledge retrieval failed", "err", err, "salon_id", in.Salon.ID)
		} else if kb != "" {
			slog.Debug("knowledge snippet attached", "score", score)
			knowledge = kb
		}
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.History)+2)
	messages = append(messages, openai.SystemMessage(buildSystemPrompt(in.Salon, in.Customer, knowledge)))
	for _, h := range in.History {
		if h.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(h.Content))
		} else {
			messages = append(messages, openai.UserMessage(h.Content))
		}
	}
	messages = append(messages, openai.UserMessage(in.Text))

	tc := TurnContext{
		SalonID:       in.Salon.ID,
		CustomerPhone: in.Customer.Phone,
		CustomerName:  in.Customer.Name,
	}

	var (
		res       TurnResult
		text      string
		toolFails []string
	)
	customerResolved := false

	maxSteps := e.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 8
	}

	for step := 0; step < maxSteps; step++ {
		completion, err := e.complete(ctx, openai.ChatCompletionNewParams{
			Model:    e.Model,
			Messages: messages,
			Tools:    e.Tools.Definitions(),
		})
		if err != nil {
			return TurnResult{}, err
		}
		accumulate(&res.Usage, completion)

		if len(completion.Choices) == 0 {
			break
		}
		msg := completion.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			text = msg.Content
			break
		}

		res.ToolSteps++
		messages = append(messages, msg.ToParam())
		if !customerResolved {
			tc = e.resolveCustomer(ctx, tc)
			customerResolved = true
		}
		for _, call := range msg.ToolCalls {
			result := e.Tools.Dispatch(ctx, tc, call.Function.Name, call.Function.Arguments)
			if !result.OK {
				toolFails = append(toolFails, SanitizeToolError(result.ErrMsg))
			}
			messages = append(messages, openai.ToolMessage(result.Payload(), call.ID))
		}
	}

	// Self-healing pass: one extra bounded call when any tool failed, so the
	// customer never sees raw tool errors echoed by the model.
	if len(toolFails) > 0 {
		res.Healed = true
		healMessages := append(messages,
			openai.SystemMessage(healingNote(toolFails)),
		)
		completion, err := e.complete(ctx, openai.ChatCompletionNewParams{
			Model:    e.Model,
			Messages: healMessages,
		})
		if err == nil {
			accumulate(&res.Usage, completion)
			if len(completion.Choices) > 0 && completion.Choices[0].Message.Content != "" {
				text = completion.Choices[0].Message.Content
			}
		} else {
			slog.Warn("healing pass failed, keeping prior text", "err", err)
		}
	}

	if text == "" {
		text = domain.ApologyText(in.Salon.Language)
	}
	res.Text = text
	return res, nil
}

// resolveCustomer looks the customer up by phone at the first tool step,
// once per turn; tools that need the id (appointments, preferences) share
// the resolved context. Plain-text turns never pay for the lookup.
func (e *Executor) resolveCustomer(ctx context.Context, tc TurnContext) TurnContext {
	if tc.CustomerID != "" || e.Tools.Scheduling == nil {
		return tc
	}
	if c, found, err := e.Tools.Scheduling.IdentifyCustomer(ctx, tc.SalonID, tc.CustomerPhone); err == nil && found {
		tc.CustomerID = c.ID
	}
	return tc
}

func (e *Executor) complete(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if e.Limiter != nil {
		if err := e.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return e.LLM.New(ctx, params)
}

func accumulate(u *Usage, c *openai.ChatCompletion) {
	if c == nil {
		return
	}
	u.PromptTokens += int(c.Usage.PromptTokens)
	u.CompletionTokens += int(c.Usage.CompletionTokens)
	u.TotalTokens += int(c.Usage.TotalTokens)
}
