package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"concierge/internal/domain"
	"concierge/internal/scheduling"
)

type fakeSched struct {
	customer      scheduling.Customer
	customerFound bool
	identifyCalls int
	services      []scheduling.Service
	servicesErr   error
	created       []scheduling.CreateAppointmentInput
	createErr     error
}

func (f *fakeSched) IdentifyCustomer(ctx context.Context, salonID, phone string) (scheduling.Customer, bool, error) {
	f.identifyCalls++
	return f.customer, f.customerFound, nil
}

func (f *fakeSched) CreateCustomer(ctx context.Context, salonID, phone, name string) (scheduling.Customer, error) {
	return scheduling.Customer{ID: "cust_new", Phone: phone, Name: name}, nil
}

func (f *fakeSched) ListServices(ctx context.Context, salonID string, includeInactive bool) ([]scheduling.Service, error) {
	return f.services, f.servicesErr
}

func (f *fakeSched) ListProfessionals(ctx context.Context, salonID string) ([]scheduling.Professional, error) {
	return []scheduling.Professional{{ID: "pro_1", Name: "Ana"}}, nil
}

func (f *fakeSched) CheckAvailability(ctx context.Context, salonID, professionalID, serviceID, date string) ([]scheduling.Slot, error) {
	return []scheduling.Slot{{Start: date + "T10:00:00Z", End: date + "T10:45:00Z"}}, nil
}

func (f *fakeSched) ListAppointments(ctx context.Context, salonID, customerID string) ([]scheduling.Appointment, error) {
	return nil, nil
}

func (f *fakeSched) CreateAppointment(ctx context.Context, in scheduling.CreateAppointmentInput) (scheduling.Appointment, error) {
	if f.createErr != nil {
		return scheduling.Appointment{}, f.createErr
	}
	f.created = append(f.created, in)
	return scheduling.Appointment{ID: "appt_1", Start: in.Start, Status: "confirmed"}, nil
}

func (f *fakeSched) RescheduleAppointment(ctx context.Context, salonID, appointmentID, newStart string) (scheduling.Appointment, error) {
	return scheduling.Appointment{ID: appointmentID, Start: newStart}, nil
}

func (f *fakeSched) CancelAppointment(ctx context.Context, salonID, appointmentID string) error {
	return nil
}

func (f *fakeSched) SavePreference(ctx context.Context, salonID, customerID, note string) error {
	return nil
}

func (f *fakeSched) QualifyLead(ctx context.Context, salonID, customerID, interest string) error {
	return nil
}

func (f *fakeSched) AvailabilityRules(ctx context.Context, salonID, professionalID string) ([]scheduling.AvailabilityRule, error) {
	return nil, nil
}

// fakeLLM replays a script of completions and records every request.
type fakeLLM struct {
	script   []*openai.ChatCompletion
	err      error
	requests []openai.ChatCompletionNewParams
}

func (f *fakeLLM) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	f.requests = append(f.requests, params)
	if f.err != nil {
		return nil, f.err
	}
	i := len(f.requests) - 1
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	return f.script[i], nil
}

func textCompletion(text string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: "assistant", Content: text},
		}},
		Usage: openai.CompletionUsage{PromptTokens: 100, CompletionTokens: 10, TotalTokens: 110},
	}
}

func toolCompletion(callID, name, args string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Role: "assistant",
				ToolCalls: []openai.ChatCompletionMessageToolCallUnion{{
					ID:       callID,
					Type:     "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{Name: name, Arguments: args},
				}},
			},
		}},
		Usage: openai.CompletionUsage{PromptTokens: 200, CompletionTokens: 15, TotalTokens: 215},
	}
}

func turnInput() TurnInput {
	return TurnInput{
		Salon:    SalonProfile{ID: "sal_1", Name: "Studio Glow", Language: "en", Timezone: "America/Sao_Paulo"},
		Customer: CustomerProfile{Phone: "+5511999990000", Name: "Maria"},
		Text:     "what services do you offer?",
	}
}

func TestRunTurnPlainReply(t *testing.T) {
	llm := &fakeLLM{script: []*openai.ChatCompletion{textCompletion("We offer haircuts and coloring.")}}
	e := &Executor{LLM: llm, Model: "gpt-4o", Tools: &Toolset{Scheduling: &fakeSched{}}}

	res, err := e.RunTurn(context.Background(), turnInput())
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if res.Text != "We offer haircuts and coloring." {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if res.ToolSteps != 0 {
		t.Fatalf("expected no tool steps, got %d", res.ToolSteps)
	}
	if res.Usage.TotalTokens != 110 {
		t.Fatalf("expected usage accumulated, got %d", res.Usage.TotalTokens)
	}
	if len(llm.requests) != 1 {
		t.Fatalf("expected one llm call, got %d", len(llm.requests))
	}
	if len(llm.requests[0].Tools) == 0 {
		t.Fatalf("tool definitions must be offered on every turn")
	}
}

func TestRunTurnToolLoop(t *testing.T) {
	sched := &fakeSched{services: []scheduling.Service{{ID: "svc_cut", Name: "Haircut", DurationMin: 45, PriceCents: 8000, Active: true}}}
	llm := &fakeLLM{script: []*openai.ChatCompletion{
		toolCompletion("call_1", "list_services", `{}`),
		textCompletion("We offer a 45-minute haircut for R$80."),
	}}
	e := &Executor{LLM: llm, Model: "gpt-4o", Tools: &Toolset{Scheduling: sched}}

	res, err := e.RunTurn(context.Background(), turnInput())
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if res.ToolSteps != 1 {
		t.Fatalf("expected one tool step, got %d", res.ToolSteps)
	}
	if len(llm.requests) != 2 {
		t.Fatalf("expected two llm calls, got %d", len(llm.requests))
	}
	// the second request must carry the assistant tool-call message plus the
	// tool result
	if len(llm.requests[1].Messages) != len(llm.requests[0].Messages)+2 {
		t.Fatalf("tool exchange not appended: %d vs %d messages",
			len(llm.requests[1].Messages), len(llm.requests[0].Messages))
	}
	if res.Text == "" {
		t.Fatalf("expected final text")
	}
}

func TestRunTurnResolvesCustomerOncePerTurn(t *testing.T) {
	sched := &fakeSched{
		customer:      scheduling.Customer{ID: "cust_1", Phone: "+5511999990000"},
		customerFound: true,
		services:      []scheduling.Service{{ID: "svc_cut", Name: "Haircut", Active: true}},
	}
	llm := &fakeLLM{script: []*openai.ChatCompletion{
		toolCompletion("call_1", "list_services", `{}`),
		toolCompletion("call_2", "list_appointments", `{}`),
		textCompletion("You have one appointment on Friday."),
	}}
	e := &Executor{LLM: llm, Model: "gpt-4o", Tools: &Toolset{Scheduling: sched}}

	res, err := e.RunTurn(context.Background(), turnInput())
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if res.ToolSteps != 2 {
		t.Fatalf("expected two tool steps, got %d", res.ToolSteps)
	}
	if sched.identifyCalls != 1 {
		t.Fatalf("customer lookup should happen once per turn, got %d", sched.identifyCalls)
	}
}

func TestRunTurnPlainReplySkipsCustomerLookup(t *testing.T) {
	sched := &fakeSched{customerFound: true, customer: scheduling.Customer{ID: "cust_1"}}
	llm := &fakeLLM{script: []*openai.ChatCompletion{textCompletion("We open at 9am.")}}
	e := &Executor{LLM: llm, Model: "gpt-4o", Tools: &Toolset{Scheduling: sched}}

	if _, err := e.RunTurn(context.Background(), turnInput()); err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if sched.identifyCalls != 0 {
		t.Fatalf("plain replies must not hit the scheduling service, got %d lookups", sched.identifyCalls)
	}
}

func TestRunTurnHealingPassAfterToolFailure(t *testing.T) {
	sched := &fakeSched{servicesErr: errors.New("service lookup failed: GET /v1/salons/sal_1/services timed out")}
	llm := &fakeLLM{script: []*openai.ChatCompletion{
		toolCompletion("call_1", "list_services", `{}`),
		textCompletion("raw draft that echoed the error"),
		textCompletion("I couldn't check our services right now. Could you try again shortly?"),
	}}
	e := &Executor{LLM: llm, Model: "gpt-4o", Tools: &Toolset{Scheduling: sched}}

	res, err := e.RunTurn(context.Background(), turnInput())
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if !res.Healed {
		t.Fatalf("expected healing pass after a tool failure")
	}
	if len(llm.requests) != 3 {
		t.Fatalf("expected draft + healing calls, got %d", len(llm.requests))
	}
	// healing call carries no tools: it must produce text, not more calls
	if len(llm.requests[2].Tools) != 0 {
		t.Fatalf("healing pass must not offer tools")
	}
	if res.Text != "I couldn't check our services right now. Could you try again shortly?" {
		t.Fatalf("expected healed text, got %q", res.Text)
	}
}

func TestRunTurnStepBudgetTerminates(t *testing.T) {
	// the model keeps asking for tools forever
	llm := &fakeLLM{script: []*openai.ChatCompletion{toolCompletion("call_x", "list_professionals", `{}`)}}
	e := &Executor{LLM: llm, Model: "gpt-4o", Tools: &Toolset{Scheduling: &fakeSched{}}, MaxSteps: 3}

	res, err := e.RunTurn(context.Background(), turnInput())
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if res.ToolSteps != 3 {
		t.Fatalf("expected the step budget to cap the loop, got %d steps", res.ToolSteps)
	}
	if res.Text == "" {
		t.Fatalf("a turn must never end with empty text")
	}
}

func TestRunTurnEmptyReplyFallsBackToApology(t *testing.T) {
	llm := &fakeLLM{script: []*openai.ChatCompletion{textCompletion("")}}
	e := &Executor{LLM: llm, Model: "gpt-4o", Tools: &Toolset{Scheduling: &fakeSched{}}}

	in := turnInput()
	in.Salon.Language = "pt"
	res, err := e.RunTurn(context.Background(), in)
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if res.Text != domain.ApologyText("pt") {
		t.Fatalf("expected localized apology, got %q", res.Text)
	}
}

func TestRunTurnModelFailureIsAIError(t *testing.T) {
	llm := &fakeLLM{err: errors.New("429 too many requests")}
	e := &Executor{LLM: llm, Model: "gpt-4o", Tools: &Toolset{Scheduling: &fakeSched{}}}

	_, err := e.RunTurn(context.Background(), turnInput())
	var aiErr *domain.AIError
	if !errors.As(err, &aiErr) {
		t.Fatalf("expected AIError, got %v", err)
	}
	if domain.IsRetryable(err) {
		t.Fatalf("ai failures are terminal for the turn")
	}
}

func TestRunTurnKnowledgeInPrompt(t *testing.T) {
	llm := &fakeLLM{script: []*openai.ChatCompletion{textCompletion("We open at 9am on Saturdays.")}}
	e := &Executor{
		LLM:   llm,
		Model: "gpt-4o",
		Tools: &Toolset{Scheduling: &fakeSched{}},
		Knowledge: &Retriever{
			Embedder:  fixedEmbedder{vec: []float64{1, 0}},
			Source:    staticSnippets{{content: "Saturday hours: 9am to 5pm.", vec: []float64{1, 0}}},
			Threshold: 0.5,
		},
	}

	if _, err := e.RunTurn(context.Background(), turnInput()); err != nil {
		t.Fatalf("run turn: %v", err)
	}
	sys := llm.requests[0].Messages[0].OfSystem
	if sys == nil {
		t.Fatalf("first message must be the system prompt")
	}
	if !strings.Contains(sys.Content.OfString.Value, "Saturday hours") {
		t.Fatalf("expected knowledge snippet in the system prompt")
	}
}
