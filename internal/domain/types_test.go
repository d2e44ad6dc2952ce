package domain

import (
	"errors"
	"testing"
)

func validJob() InboundMessageJob {
	return InboundMessageJob{
		MessageID:        "SM1",
		ChatKey:          "sal_1:+551199",
		SalonID:          "sal_1",
		SenderPhone:      "+551199",
		ReplyDestination: "whatsapp:+551199",
		BodyText:         "hi",
	}
}

func TestJobValidate(t *testing.T) {
	if err := validJob().Validate(); err != nil {
		t.Fatalf("valid job rejected: %v", err)
	}

	j := validJob()
	j.MessageID = ""
	if err := j.Validate(); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}

	// no body and no media is nothing to process
	j = validJob()
	j.BodyText = ""
	if err := j.Validate(); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields for empty payload, got %v", err)
	}

	// media-only is fine
	j.HasMedia = true
	j.MediaType = MediaImage
	if err := j.Validate(); err != nil {
		t.Fatalf("media-only job rejected: %v", err)
	}
}

func TestChatKey(t *testing.T) {
	if got := ChatKey("sal_1", "+551199"); got != "sal_1:+551199" {
		t.Fatalf("unexpected chat key %q", got)
	}
}

func TestClassifyMedia(t *testing.T) {
	cases := []struct {
		in   string
		want MediaType
	}{
		{"", MediaNone},
		{"image/jpeg", MediaImage},
		{"audio/ogg", MediaAudio},
		{"video/mp4", MediaVideo},
		{"application/pdf", MediaDocument},
		{"text/vcard", MediaDocument},
	}
	for _, tc := range cases {
		if got := ClassifyMedia(tc.in); got != tc.want {
			t.Fatalf("ClassifyMedia(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatalf("nil is not retryable")
	}
	if !IsRetryable(ErrLockHeld) {
		t.Fatalf("lock-held must be retryable")
	}
	if IsRetryable(ErrSenderRateLimited) {
		t.Fatalf("sender rate limit is terminal")
	}
	if IsRetryable(&AIError{Err: errors.New("model down")}) {
		t.Fatalf("ai failures are terminal")
	}
	if !IsRetryable(&DispatchError{Err: errors.New("503"), Status: 503, Retryable: true}) {
		t.Fatalf("transient dispatch failures are retryable")
	}
	if IsRetryable(&DispatchError{Err: errors.New("bad number"), Status: 400}) {
		t.Fatalf("permanent dispatch failures are terminal")
	}
	if !IsRetryable(errors.New("database timeout")) {
		t.Fatalf("unclassified infrastructure errors default to retryable")
	}
}
