package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NormalizePhone strips the provider's channel prefix and whitespace so the
// same customer always maps to the same conversation key. Keeps the leading
// "+" when present.
// TODO - may use libphonenumber for full E.164 validation
func NormalizePhone(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "whatsapp:")
	var b strings.Builder
	for i, r := range p {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func NewChatMessageID() string {
	// ULID is sortable (nice for DB indexes and dashboards)
	t := time.Now().UTC()
	return "cmsg_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// InboundChatMessageID derives the row id from the provider's message id, so
// a redelivered job maps onto the row its first delivery wrote.
func InboundChatMessageID(providerMsgID string) string {
	return "cmsg_in_" + providerMsgID
}

func NowUTC() time.Time {
	return time.Now().UTC()
}

// RequiresResponse is a cheap heuristic for "does this assistant message
// expect the customer to answer". Downstream follow-up tooling reads it.
func RequiresResponse(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	if strings.HasSuffix(t, "?") {
		return true
	}
	// question mark in the final sentence counts too
	if i := strings.LastIndexAny(t, ".!\n"); i >= 0 && strings.Contains(t[i:], "?") {
		return true
	}
	return false
}

func NewChatID() string {
	t := time.Now().UTC()
	return "chat_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}
