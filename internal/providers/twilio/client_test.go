package twilio

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
)

func TestSendWhatsAppAddsChannelPrefix(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/Accounts/AC123/Messages.json") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		user, pass, _ := r.BasicAuth()
		if user != "AC123" || pass != "tok" {
			t.Fatalf("missing basic auth")
		}
		_ = r.ParseForm()
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	c := &Client{AccountSID: "AC123", AuthToken: "tok", HTTP: srv.Client(), BaseURL: srv.URL}
	resp, status, _, err := c.SendWhatsApp(context.Background(), SendRequest{
		From: "+5511888880000",
		To:   "whatsapp:+5511999990000",
		Body: "hello",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if status != http.StatusCreated || resp.Sid != "SM1" {
		t.Fatalf("unexpected response %d %+v", status, resp)
	}
	if gotForm.Get("From") != "whatsapp:+5511888880000" {
		t.Fatalf("bare from must get the prefix, got %q", gotForm.Get("From"))
	}
	if gotForm.Get("To") != "whatsapp:+5511999990000" {
		t.Fatalf("prefixed to must pass through, got %q", gotForm.Get("To"))
	}
}

func TestSendWhatsAppErrorSurfacesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"The 'To' number is not a valid phone number.","error_code":21211}`))
	}))
	defer srv.Close()

	c := &Client{AccountSID: "AC123", AuthToken: "tok", HTTP: srv.Client(), BaseURL: srv.URL}
	resp, status, _, err := c.SendWhatsApp(context.Background(), SendRequest{From: "+1", To: "+2", Body: "x"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if status != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", status)
	}
	if resp.ErrorCode == nil || *resp.ErrorCode != 21211 {
		t.Fatalf("expected error code decoded, got %+v", resp)
	}
	if !strings.Contains(err.Error(), "not a valid phone number") {
		t.Fatalf("error should carry the provider message, got %v", err)
	}
}

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		want   bool
	}{
		{"deadline", context.DeadlineExceeded, 0, true},
		{"conn failure", errors.New("connection refused"), 0, true},
		{"429", errors.New("too many requests"), 429, true},
		{"503", errors.New("unavailable"), 503, true},
		{"400", errors.New("bad number"), 400, false},
		{"401", errors.New("auth"), 401, false},
		{"success no err", nil, 201, false},
	}
	for _, tc := range cases {
		if got := ShouldRetry(tc.err, tc.status); got != tc.want {
			t.Fatalf("%s: ShouldRetry=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestBackoffBounded(t *testing.T) {
	if Backoff(0) >= Backoff(1) || Backoff(1) >= Backoff(2) {
		t.Fatalf("backoff must grow")
	}
	if Backoff(10) != Backoff(2) {
		t.Fatalf("backoff must cap at the last step")
	}
	if Backoff(-1) != Backoff(0) {
		t.Fatalf("negative attempts use the first step")
	}
}

func signForm(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	form := url.Values{
		"From":       {"whatsapp:+5511999990000"},
		"Body":       {"hi"},
		"MessageSid": {"SM1"},
	}
	fullURL := "https://bot.example.com/v1/webhooks/whatsapp/inbound"
	token := "secret"

	good := signForm(token, fullURL, form)
	if !VerifySignature(token, fullURL, good, form) {
		t.Fatalf("valid signature rejected")
	}
	if VerifySignature(token, fullURL, good+"x", form) {
		t.Fatalf("tampered signature accepted")
	}
	if VerifySignature("wrong", fullURL, good, form) {
		t.Fatalf("wrong token accepted")
	}

	form.Set("Body", "changed")
	if VerifySignature(token, fullURL, good, form) {
		t.Fatalf("modified form accepted")
	}
}
