package ai

import (
	"context"
	"encoding/json"

	"github.com/openai/openai-go/v3"

	"concierge/internal/observability"
	"concierge/internal/scheduling"
)

// ToolResult is the tagged variant every tool returns: ok with a value, or an
// error with a kind and message. The executor never inspects error shapes
// beyond this type.
type ToolResult struct {
	OK      bool   `json:"ok"`
	Value   any    `json:"value,omitempty"`
	ErrKind string `json:"errKind,omitempty"`
	ErrMsg  string `json:"errMsg,omitempty"`
}

func Ok(v any) ToolResult { return ToolResult{OK: true, Value: v} }

func Err(kind, msg string) ToolResult { return ToolResult{OK: false, ErrKind: kind, ErrMsg: msg} }

// Payload renders the result as the tool message body for the model.
func (r ToolResult) Payload() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"ok":false,"errKind":"internal","errMsg":"unserializable tool result"}`
	}
	return string(b)
}

// TurnContext is the per-turn tenant/customer identity tools operate under.
type TurnContext struct {
	SalonID       string
	CustomerID    string
	CustomerPhone string
	CustomerName  string
}

// Toolset adapts the scheduling boundary into the model's function tools.
type Toolset struct {
	Scheduling scheduling.Client
}

// Definitions is the fixed catalogue offered to the model on every turn.
func (t *Toolset) Definitions() []openai.ChatCompletionToolUnionParam {
	obj := func(props map[string]any, required ...string) openai.FunctionParameters {
		p := openai.FunctionParameters{
			"type":       "object",
			"properties": props,
		}
		if len(required) > 0 {
			p["required"] = required
		}
		return p
	}
	strProp := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}

	return []openai.ChatCompletionToolUnionParam{
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        "identify_customer",
			Description: openai.String("Look up the customer record for the current phone number. Returns the customer or found=false."),
			Parameters:  obj(map[string]any{}),
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        "create_customer",
			Description: openai.String("Create a customer record for the current phone number."),
			Parameters: obj(map[string]any{
				"name": strProp("Customer's name as they gave it."),
			}, "name"),
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        "list_services",
			Description: openai.String("List the salon's services with duration and price."),
			Parameters: obj(map[string]any{
				"includeInactive": map[string]any{"type": "boolean", "description": "Include services not currently offered."},
			}),
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        "list_professionals",
			Description: openai.String("List the salon's professionals."),
			Parameters:  obj(map[string]any{}),
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        "check_availability",
			Description: openai.String("List open slots for a professional, service and date."),
			Parameters: obj(map[string]any{
				"professionalId": strProp("Professional id from list_professionals."),
				"serviceId":      strProp("Service id from list_services."),
				"date":           strProp("Date, YYYY-MM-DD, in the salon's timezone."),
			}, "professionalId", "serviceId", "date"),
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        "list_appointments",
			Description: openai.String("List the customer's future appointments. Required before cancel or reschedule to obtain a valid appointment id."),
			Parameters:  obj(map[string]any{}),
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        "create_appointment",
			Description: openai.String("Book an appointment at a slot returned by check_availability."),
			Parameters: obj(map[string]any{
				"professionalId": strProp("Professional id."),
				"serviceId":      strProp("Service id."),
				"start":          strProp("Slot start, RFC3339."),
			}, "professionalId", "serviceId", "start"),
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        "reschedule_appointment",
			Description: openai.String("Move an existing appointment to a new start time."),
			Parameters: obj(map[string]any{
				"appointmentId": strProp("Appointment id from list_appointments."),
				"start":         strProp("New start, RFC3339."),
			}, "appointmentId", "start"),
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        "cancel_appointment",
			Description: openai.String("Cancel an existing appointment."),
			Parameters: obj(map[string]any{
				"appointmentId": strProp("Appointment id from list_appointments."),
			}, "appointmentId"),
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        "save_preference",
			Description: openai.String("Store a free-form preference the customer expressed (favorite professional, allergies, ...)."),
			Parameters: obj(map[string]any{
				"note": strProp("The preference, one short sentence."),
			}, "note"),
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        "qualify_lead",
			Description: openai.String("Record what a first-time contact is interested in."),
			Parameters: obj(map[string]any{
				"interest": strProp("What they asked about."),
			}, "interest"),
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        "availability_rules",
			Description: openai.String("A professional's recurring weekly working hours."),
			Parameters: obj(map[string]any{
				"professionalId": strProp("Professional id."),
			}, "professionalId"),
		}),
	}
}

// Dispatch executes one tool call. Scheduling errors come back as Err results
// for the model, never as Go errors; the executor handles sanitization before
// anything reaches the customer.
func (t *Toolset) Dispatch(ctx context.Context, tc TurnContext, name, argsJSON string) ToolResult {
	res := t.dispatch(ctx, tc, name, argsJSON)
	if res.OK {
		observability.ToolCalls.WithLabelValues(name, "ok").Inc()
	} else {
		observability.ToolCalls.WithLabelValues(name, "error").Inc()
	}
	return res
}

func (t *Toolset) dispatch(ctx context.Context, tc TurnContext, name, argsJSON string) ToolResult {
	var args struct {
		Name            string `json:"name"`
		IncludeInactive bool   `json:"includeInactive"`
		ProfessionalID  string `json:"professionalId"`
		ServiceID       string `json:"serviceId"`
		Date            string `json:"date"`
		Start           string `json:"start"`
		AppointmentID   string `json:"appointmentId"`
		Note            string `json:"note"`
		Interest        string `json:"interest"`
	}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return Err("bad_arguments", "arguments were not valid JSON")
		}
	}

	switch name {
	case "identify_customer":
		c, found, err := t.Scheduling.IdentifyCustomer(ctx, tc.SalonID, tc.CustomerPhone)
		if err != nil {
			return Err("scheduling", err.Error())
		}
		return Ok(map[string]any{"found": found, "customer": c})

	case "create_customer":
		if args.Name == "" {
			args.Name = tc.CustomerName
		}
		c, err := t.Scheduling.CreateCustomer(ctx, tc.SalonID, tc.CustomerPhone, args.Name)
		if err != nil {
			return Err("scheduling", err.Error())
		}
		return Ok(c)

	case "list_services":
		svcs, err := t.Scheduling.ListServices(ctx, tc.SalonID, args.IncludeInactive)
		if err != nil {
			return Err("scheduling", err.Error())
		}
		return Ok(svcs)

	case "list_professionals":
		pros, err := t.Scheduling.ListProfessionals(ctx, tc.SalonID)
		if err != nil {
			return Err("scheduling", err.Error())
		}
		return Ok(pros)

	case "check_availability":
		slots, err := t.Scheduling.CheckAvailability(ctx, tc.SalonID, args.ProfessionalID, args.ServiceID, args.Date)
		if err != nil {
			return Err("scheduling", err.Error())
		}
		return Ok(slots)

	case "list_appointments":
		appts, err := t.Scheduling.ListAppointments(ctx, tc.SalonID, tc.CustomerID)
		if err != nil {
			return Err("scheduling", err.Error())
		}
		return Ok(appts)

	case "create_appointment":
		appt, err := t.Scheduling.CreateAppointment(ctx, scheduling.CreateAppointmentInput{
			SalonID:        tc.SalonID,
			CustomerID:     tc.CustomerID,
			ProfessionalID: args.ProfessionalID,
			ServiceID:      args.ServiceID,
			Start:          args.Start,
		})
		if err != nil {
			return Err("scheduling", err.Error())
		}
		return Ok(appt)

	case "reschedule_appointment":
		appt, err := t.Scheduling.RescheduleAppointment(ctx, tc.SalonID, args.AppointmentID, args.Start)
		if err != nil {
			return Err("scheduling", err.Error())
		}
		return Ok(appt)

	case "cancel_appointment":
		if err := t.Scheduling.CancelAppointment(ctx, tc.SalonID, args.AppointmentID); err != nil {
			return Err("scheduling", err.Error())
		}
		return Ok(map[string]any{"cancelled": true})

	case "save_preference":
		if err := t.Scheduling.SavePreference(ctx, tc.SalonID, tc.CustomerID, args.Note); err != nil {
			return Err("scheduling", err.Error())
		}
		return Ok(map[string]any{"saved": true})

	case "qualify_lead":
		if err := t.Scheduling.QualifyLead(ctx, tc.SalonID, tc.CustomerID, args.Interest); err != nil {
			return Err("scheduling", err.Error())
		}
		return Ok(map[string]any{"recorded": true})

	case "availability_rules":
		rules, err := t.Scheduling.AvailabilityRules(ctx, tc.SalonID, args.ProfessionalID)
		if err != nil {
			return Err("scheduling", err.Error())
		}
		return Ok(rules)

	default:
		return Err("unknown_tool", "no tool named "+name)
	}
}
