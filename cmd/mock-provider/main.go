// mock-provider is a local-dev stand-in for the two HTTP dependencies the
// worker talks to: the Twilio Messages API and the scheduling service. It
// keeps everything in memory and is not meant to survive a restart.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
	"github.com/oklog/ulid/v2"
)

type config struct {
	Port        string  `envconfig:"PORT" default:"8080"`
	DelayMs     int     `envconfig:"MOCK_DELAY_MS" default:"0"`
	FailureRate float64 `envconfig:"MOCK_FAILURE_RATE" default:"0"`
}

type sendResponse struct {
	Sid       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
	Message   string `json:"message"`
}

type customer struct {
	ID    string `json:"id"`
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

type appointment struct {
	ID             string `json:"id"`
	CustomerID     string `json:"customerId"`
	ProfessionalID string `json:"professionalId"`
	ServiceID      string `json:"serviceId"`
	Start          string `json:"start"`
	Status         string `json:"status"`
}

type server struct {
	cfg config

	mu           sync.Mutex
	rng          *rand.Rand
	customers    map[string]customer // phone -> customer
	appointments map[string]*appointment
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "mock-provider"))

	s := &server{
		cfg:          cfg,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		customers:    map[string]customer{},
		appointments: map[string]*appointment{},
	}

	router := mux.NewRouter()

	// Twilio surface
	router.HandleFunc("/2010-04-01/Accounts/{AccountSid}/Messages.json", s.handleSend).Methods(http.MethodPost)

	// Scheduling surface, mirroring the paths the worker's client uses
	router.HandleFunc("/v1/salons/{salon}/customers/lookup", s.handleLookup).Methods(http.MethodGet)
	router.HandleFunc("/v1/salons/{salon}/customers", s.handleCreateCustomer).Methods(http.MethodPost)
	router.HandleFunc("/v1/salons/{salon}/services", s.handleServices).Methods(http.MethodGet)
	router.HandleFunc("/v1/salons/{salon}/professionals", s.handleProfessionals).Methods(http.MethodGet)
	router.HandleFunc("/v1/salons/{salon}/availability", s.handleAvailability).Methods(http.MethodGet)
	router.HandleFunc("/v1/salons/{salon}/appointments", s.handleListAppointments).Methods(http.MethodGet)
	router.HandleFunc("/v1/salons/{salon}/appointments", s.handleCreateAppointment).Methods(http.MethodPost)
	router.HandleFunc("/v1/salons/{salon}/appointments/{id}", s.handleReschedule).Methods(http.MethodPatch)
	router.HandleFunc("/v1/salons/{salon}/appointments/{id}", s.handleCancel).Methods(http.MethodDelete)
	router.HandleFunc("/v1/salons/{salon}/customers/{id}/preferences", s.handleAck).Methods(http.MethodPost)
	router.HandleFunc("/v1/salons/{salon}/customers/{id}/lead", s.handleAck).Methods(http.MethodPost)
	router.HandleFunc("/v1/salons/{salon}/professionals/{id}/availability-rules", s.handleRules).Methods(http.MethodGet)

	slog.Info("mock provider listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		slog.Error("mock provider server failed", "err", err)
		os.Exit(1)
	}
}

func (s *server) delayAndMaybeFail(w http.ResponseWriter) bool {
	if s.cfg.DelayMs > 0 {
		time.Sleep(time.Duration(s.cfg.DelayMs) * time.Millisecond)
	}
	s.mu.Lock()
	fail := s.rng.Float64() < s.cfg.FailureRate
	s.mu.Unlock()
	if fail {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "synthetic failure"})
		return true
	}
	return false
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	if s.delayAndMaybeFail(w) {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad form"})
		return
	}
	to := r.PostFormValue("To")
	body := r.PostFormValue("Body")
	if to == "" || body == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "To and Body are required"})
		return
	}
	sid := "SM" + strings.ToLower(ulid.Make().String())
	slog.Info("mock send accepted", "sid", sid, "to", to, "body_len", len(body))
	writeJSON(w, http.StatusCreated, sendResponse{Sid: sid, Status: "queued"})
}

func (s *server) handleLookup(w http.ResponseWriter, r *http.Request) {
	if s.delayAndMaybeFail(w) {
		return
	}
	phone := r.URL.Query().Get("phone")
	s.mu.Lock()
	c, ok := s.customers[phone]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"customer": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": c})
}

func (s *server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	if s.delayAndMaybeFail(w) {
		return
	}
	var in struct {
		Phone string `json:"phone"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone is required"})
		return
	}
	c := customer{ID: "cust_" + ulid.Make().String(), Phone: in.Phone, Name: in.Name}
	s.mu.Lock()
	s.customers[in.Phone] = c
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, c)
}

func (s *server) handleServices(w http.ResponseWriter, r *http.Request) {
	if s.delayAndMaybeFail(w) {
		return
	}
	writeJSON(w, http.StatusOK, []map[string]any{
		{"id": "svc_cut", "name": "Haircut", "durationMin": 45, "priceCents": 8000, "active": true},
		{"id": "svc_color", "name": "Coloring", "durationMin": 120, "priceCents": 25000, "active": true},
		{"id": "svc_mani", "name": "Manicure", "durationMin": 30, "priceCents": 5000, "active": true},
	})
}

func (s *server) handleProfessionals(w http.ResponseWriter, r *http.Request) {
	if s.delayAndMaybeFail(w) {
		return
	}
	writeJSON(w, http.StatusOK, []map[string]any{
		{"id": "pro_ana", "name": "Ana"},
		{"id": "pro_bea", "name": "Bea"},
	})
}

func (s *server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if s.delayAndMaybeFail(w) {
		return
	}
	day := r.URL.Query().Get("date")
	if day == "" {
		day = time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	}
	var slots []map[string]string
	for _, h := range [][2]string{{"09:00", "09:45"}, {"10:00", "10:45"}, {"14:00", "14:45"}, {"16:30", "17:15"}} {
		slots = append(slots, map[string]string{
			"start": fmt.Sprintf("%sT%s:00Z", day, h[0]),
			"end":   fmt.Sprintf("%sT%s:00Z", day, h[1]),
		})
	}
	writeJSON(w, http.StatusOK, slots)
}

func (s *server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	if s.delayAndMaybeFail(w) {
		return
	}
	cust := r.URL.Query().Get("customerId")
	s.mu.Lock()
	out := []*appointment{}
	for _, a := range s.appointments {
		if cust == "" || a.CustomerID == cust {
			out = append(out, a)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	if s.delayAndMaybeFail(w) {
		return
	}
	var a appointment
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	a.ID = "appt_" + ulid.Make().String()
	a.Status = "confirmed"
	s.mu.Lock()
	s.appointments[a.ID] = &a
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, a)
}

func (s *server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	if s.delayAndMaybeFail(w) {
		return
	}
	id := mux.Vars(r)["id"]
	var in struct {
		Start string `json:"start"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	s.mu.Lock()
	a, ok := s.appointments[id]
	if ok {
		a.Start = in.Start
	}
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "appointment not found"})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if s.delayAndMaybeFail(w) {
		return
	}
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	a, ok := s.appointments[id]
	if ok {
		a.Status = "cancelled"
	}
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "appointment not found"})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *server) handleAck(w http.ResponseWriter, r *http.Request) {
	if s.delayAndMaybeFail(w) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRules(w http.ResponseWriter, r *http.Request) {
	if s.delayAndMaybeFail(w) {
		return
	}
	writeJSON(w, http.StatusOK, []map[string]string{
		{"weekday": "tuesday", "startTime": "09:00", "endTime": "19:00"},
		{"weekday": "wednesday", "startTime": "09:00", "endTime": "19:00"},
		{"weekday": "thursday", "startTime": "09:00", "endTime": "21:00"},
		{"weekday": "friday", "startTime": "09:00", "endTime": "21:00"},
		{"weekday": "saturday", "startTime": "09:00", "endTime": "17:00"},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
