package util

import (
	"strings"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"whatsapp:+5511999990000", "+5511999990000"},
		{"+5511999990000", "+5511999990000"},
		{"  whatsapp:+55 11 99999-0000 ", "+5511999990000"},
		{"5511999990000", "5511999990000"},
		{"whatsapp:", ""},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in); got != tc.want {
			t.Fatalf("NormalizePhone(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewChatMessageIDPrefixAndUniqueness(t *testing.T) {
	a, b := NewChatMessageID(), NewChatMessageID()
	if !strings.HasPrefix(a, "cmsg_") {
		t.Fatalf("unexpected prefix %q", a)
	}
	if a == b {
		t.Fatalf("ids must be unique, got %q twice", a)
	}
}

func TestRequiresResponse(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"Does 10am work for you?", true},
		{"Pode ser amanhã às 10h?", true},
		{"Booked! See you tomorrow.", false},
		{"Great choice! Does 2pm work? 🙂", true},
		{"Which day works best? Let me know.", false},
		{"", false},
		{"   ", false},
	}
	for _, tc := range cases {
		if got := RequiresResponse(tc.in); got != tc.want {
			t.Fatalf("RequiresResponse(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}
