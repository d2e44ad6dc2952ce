package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPClient talks JSON to the scheduling service.
type HTTPClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	endpoint := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(b, &apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("scheduling %s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("scheduling %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(b, out)
	}
	return nil
}

func (c *HTTPClient) IdentifyCustomer(ctx context.Context, salonID, phone string) (Customer, bool, error) {
	var out struct {
		Customer *Customer `json:"customer"`
	}
	path := fmt.Sprintf("/v1/salons/%s/customers/lookup?phone=%s", salonID, url.QueryEscape(phone))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Customer{}, false, err
	}
	if out.Customer == nil {
		return Customer{}, false, nil
	}
	return *out.Customer, true, nil
}

func (c *HTTPClient) CreateCustomer(ctx context.Context, salonID, phone, name string) (Customer, error) {
	var out Customer
	in := map[string]string{"phone": phone, "name": name}
	err := c.do(ctx, http.MethodPost, "/v1/salons/"+salonID+"/customers", in, &out)
	return out, err
}

func (c *HTTPClient) ListServices(ctx context.Context, salonID string, includeInactive bool) ([]Service, error) {
	var out []Service
	path := "/v1/salons/" + salonID + "/services"
	if includeInactive {
		path += "?includeInactive=true"
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *HTTPClient) ListProfessionals(ctx context.Context, salonID string) ([]Professional, error) {
	var out []Professional
	err := c.do(ctx, http.MethodGet, "/v1/salons/"+salonID+"/professionals", nil, &out)
	return out, err
}

func (c *HTTPClient) CheckAvailability(ctx context.Context, salonID, professionalID, serviceID, date string) ([]Slot, error) {
	var out []Slot
	path := fmt.Sprintf("/v1/salons/%s/availability?professionalId=%s&serviceId=%s&date=%s",
		salonID, url.QueryEscape(professionalID), url.QueryEscape(serviceID), url.QueryEscape(date))
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *HTTPClient) ListAppointments(ctx context.Context, salonID, customerID string) ([]Appointment, error) {
	var out []Appointment
	path := fmt.Sprintf("/v1/salons/%s/appointments?customerId=%s&future=true", salonID, url.QueryEscape(customerID))
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *HTTPClient) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (Appointment, error) {
	var out Appointment
	err := c.do(ctx, http.MethodPost, "/v1/salons/"+in.SalonID+"/appointments", in, &out)
	return out, err
}

func (c *HTTPClient) RescheduleAppointment(ctx context.Context, salonID, appointmentID, newStart string) (Appointment, error) {
	var out Appointment
	in := map[string]string{"start": newStart}
	err := c.do(ctx, http.MethodPatch, "/v1/salons/"+salonID+"/appointments/"+appointmentID, in, &out)
	return out, err
}

func (c *HTTPClient) CancelAppointment(ctx context.Context, salonID, appointmentID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/salons/"+salonID+"/appointments/"+appointmentID, nil, nil)
}

func (c *HTTPClient) SavePreference(ctx context.Context, salonID, customerID, note string) error {
	in := map[string]string{"note": note}
	return c.do(ctx, http.MethodPost, "/v1/salons/"+salonID+"/customers/"+customerID+"/preferences", in, nil)
}

func (c *HTTPClient) QualifyLead(ctx context.Context, salonID, customerID, interest string) error {
	in := map[string]string{"interest": interest}
	return c.do(ctx, http.MethodPost, "/v1/salons/"+salonID+"/customers/"+customerID+"/lead", in, nil)
}

func (c *HTTPClient) AvailabilityRules(ctx context.Context, salonID, professionalID string) ([]AvailabilityRule, error) {
	var out []AvailabilityRule
	err := c.do(ctx, http.MethodGet, "/v1/salons/"+salonID+"/professionals/"+professionalID+"/availability-rules", nil, &out)
	return out, err
}
