package ai

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"concierge/internal/scheduling"
)

func TestDispatchCreateAppointment(t *testing.T) {
	sched := &fakeSched{}
	ts := &Toolset{Scheduling: sched}
	tc := TurnContext{SalonID: "sal_1", CustomerID: "cust_1", CustomerPhone: "+551199"}

	res := ts.Dispatch(context.Background(), tc,
		"create_appointment",
		`{"professionalId":"pro_1","serviceId":"svc_cut","start":"2026-09-01T10:00:00Z"}`)
	if !res.OK {
		t.Fatalf("expected ok result, got %+v", res)
	}
	if len(sched.created) != 1 {
		t.Fatalf("expected one booking, got %d", len(sched.created))
	}
	in := sched.created[0]
	if in.SalonID != "sal_1" || in.CustomerID != "cust_1" {
		t.Fatalf("booking must carry the turn's tenant and customer: %+v", in)
	}
	if in.Start != "2026-09-01T10:00:00Z" {
		t.Fatalf("unexpected start %q", in.Start)
	}
}

func TestDispatchSchedulingErrorIsTaggedResult(t *testing.T) {
	sched := &fakeSched{createErr: errors.New("slot already taken")}
	ts := &Toolset{Scheduling: sched}

	res := ts.Dispatch(context.Background(), TurnContext{SalonID: "sal_1"},
		"create_appointment", `{"professionalId":"pro_1","serviceId":"svc_cut","start":"x"}`)
	if res.OK {
		t.Fatalf("expected error result")
	}
	if res.ErrKind != "scheduling" {
		t.Fatalf("unexpected kind %q", res.ErrKind)
	}

	var payload struct {
		OK      bool   `json:"ok"`
		ErrKind string `json:"errKind"`
		ErrMsg  string `json:"errMsg"`
	}
	if err := json.Unmarshal([]byte(res.Payload()), &payload); err != nil {
		t.Fatalf("payload must be valid json: %v", err)
	}
	if payload.OK || payload.ErrMsg != "slot already taken" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	ts := &Toolset{Scheduling: &fakeSched{}}
	res := ts.Dispatch(context.Background(), TurnContext{}, "time_travel", `{}`)
	if res.OK || res.ErrKind != "unknown_tool" {
		t.Fatalf("expected unknown_tool error, got %+v", res)
	}
}

func TestDispatchBadArguments(t *testing.T) {
	ts := &Toolset{Scheduling: &fakeSched{}}
	res := ts.Dispatch(context.Background(), TurnContext{}, "create_appointment", `{not json`)
	if res.OK || res.ErrKind != "bad_arguments" {
		t.Fatalf("expected bad_arguments error, got %+v", res)
	}
}

func TestDispatchCreateCustomerFallsBackToProfileName(t *testing.T) {
	ts := &Toolset{Scheduling: &fakeSched{}}
	tc := TurnContext{SalonID: "sal_1", CustomerPhone: "+551199", CustomerName: "Maria"}

	res := ts.Dispatch(context.Background(), tc, "create_customer", `{}`)
	if !res.OK {
		t.Fatalf("expected ok, got %+v", res)
	}
	c, ok := res.Value.(scheduling.Customer)
	if !ok {
		t.Fatalf("unexpected value type %T", res.Value)
	}
	if c.Name != "Maria" {
		t.Fatalf("expected profile name fallback, got %q", c.Name)
	}
}

func TestDefinitionsCoverEveryTool(t *testing.T) {
	defs := (&Toolset{}).Definitions()
	want := map[string]bool{
		"identify_customer": false, "create_customer": false,
		"list_services": false, "list_professionals": false,
		"check_availability": false, "list_appointments": false,
		"create_appointment": false, "reschedule_appointment": false,
		"cancel_appointment": false, "save_preference": false,
		"qualify_lead": false, "availability_rules": false,
	}
	for _, d := range defs {
		if d.OfFunction == nil {
			t.Fatalf("non-function tool in catalogue")
		}
		name := d.OfFunction.Function.Name
		if _, known := want[name]; !known {
			t.Fatalf("unexpected tool %q", name)
		}
		want[name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("tool %q missing from catalogue", name)
		}
	}
}
