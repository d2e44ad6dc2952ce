// Package scheduling is the boundary to the salon CRUD domain (appointments,
// services, professionals, customers). The pipeline only ever talks to it
// through the Client interface; the data model behind it is owned elsewhere.
package scheduling

import "context"

type Customer struct {
	ID          string `json:"id"`
	Phone       string `json:"phone"`
	Name        string `json:"name"`
	Preferences string `json:"preferences,omitempty"`
}

type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMin int    `json:"durationMin"`
	PriceCents  int    `json:"priceCents"`
	Active      bool   `json:"active"`
}

type Professional struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Slot struct {
	Start string `json:"start"` // RFC3339 in the salon's timezone
	End   string `json:"end"`
}

type Appointment struct {
	ID             string `json:"id"`
	CustomerID     string `json:"customerId"`
	ProfessionalID string `json:"professionalId"`
	ServiceID      string `json:"serviceId"`
	Start          string `json:"start"`
	Status         string `json:"status"`
}

type CreateAppointmentInput struct {
	SalonID        string `json:"salonId"`
	CustomerID     string `json:"customerId"`
	ProfessionalID string `json:"professionalId"`
	ServiceID      string `json:"serviceId"`
	Start          string `json:"start"`
}

// AvailabilityRule is one recurring working-hours rule for a professional.
type AvailabilityRule struct {
	Weekday   string `json:"weekday"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Client is the tool surface the AI turn executor calls into. Cancel and
// reschedule take appointment IDs the model must first obtain via
// ListAppointments.
type Client interface {
	IdentifyCustomer(ctx context.Context, salonID, phone string) (Customer, bool, error)
	CreateCustomer(ctx context.Context, salonID, phone, name string) (Customer, error)
	ListServices(ctx context.Context, salonID string, includeInactive bool) ([]Service, error)
	ListProfessionals(ctx context.Context, salonID string) ([]Professional, error)
	CheckAvailability(ctx context.Context, salonID, professionalID, serviceID, date string) ([]Slot, error)
	ListAppointments(ctx context.Context, salonID, customerID string) ([]Appointment, error)
	CreateAppointment(ctx context.Context, in CreateAppointmentInput) (Appointment, error)
	RescheduleAppointment(ctx context.Context, salonID, appointmentID, newStart string) (Appointment, error)
	CancelAppointment(ctx context.Context, salonID, appointmentID string) error
	SavePreference(ctx context.Context, salonID, customerID, note string) error
	QualifyLead(ctx context.Context, salonID, customerID, interest string) error
	AvailabilityRules(ctx context.Context, salonID, professionalID string) ([]AvailabilityRule, error)
}
