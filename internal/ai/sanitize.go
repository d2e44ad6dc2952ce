package ai

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxSanitizedLen = 200

var (
	idPattern   = regexp.MustCompile(`\b[0-9a-fA-F-]{8,}\b|\b(cmsg|chat|appt|cust|svc|pro)_[A-Za-z0-9]+\b`)
	pathPattern = regexp.MustCompile(`(/[\w.-]+){2,}|https?://\S+`)
)

// SanitizeToolError strips identifiers, paths and URLs from a tool error and
// truncates it. The result is only ever fed back to the model as context for
// the recovery pass, never shown to the customer directly, but it must not
// leak internals either way.
func SanitizeToolError(msg string) string {
	msg = pathPattern.ReplaceAllString(msg, "[redacted]")
	msg = idPattern.ReplaceAllString(msg, "[id]")
	msg = strings.Join(strings.Fields(msg), " ")
	if len(msg) > maxSanitizedLen {
		// back off to a rune boundary so the cut never produces invalid UTF-8
		cut := maxSanitizedLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "…"
	}
	return msg
}
