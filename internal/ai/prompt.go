package ai

import (
	"fmt"
	"strings"
)

// SalonProfile is the tenant identity woven into the system prompt.
type SalonProfile struct {
	ID       string
	Name     string
	Language string
	Timezone string
}

// CustomerProfile is what we know about the person messaging.
type CustomerProfile struct {
	Phone       string
	Name        string
	IsNew       bool
	Preferences string
}

func buildSystemPrompt(salon SalonProfile, customer CustomerProfile, knowledge string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the virtual receptionist of %s, a salon. ", salon.Name)
	b.WriteString("You help customers book, move and cancel appointments, and answer questions about services, prices and professionals. ")
	b.WriteString("Use the provided tools for anything factual; never invent availability, prices or appointment ids. ")
	b.WriteString("Before cancelling or rescheduling, list the customer's appointments to get a valid id. ")
	fmt.Fprintf(&b, "Reply in the customer's language (salon default: %s). Times are in %s. ", orDefault(salon.Language, "en"), orDefault(salon.Timezone, "UTC"))
	b.WriteString("Keep replies short and warm, suited to WhatsApp. Never mention tools, systems or errors by name.\n\n")

	fmt.Fprintf(&b, "Customer: phone %s", customer.Phone)
	if customer.Name != "" {
		fmt.Fprintf(&b, ", name %s", customer.Name)
	}
	if customer.IsNew {
		b.WriteString(", first contact with this salon")
	}
	if customer.Preferences != "" {
		fmt.Fprintf(&b, ". Known preferences: %s", customer.Preferences)
	}
	b.WriteString(".")

	if knowledge != "" {
		b.WriteString("\n\nSalon information relevant to this message:\n")
		b.WriteString(knowledge)
	}
	return b.String()
}

// healingNote is injected as a system message for the recovery pass after one
// or more tools failed.
func healingNote(sanitized []string) string {
	var b strings.Builder
	b.WriteString("One or more of your actions failed (")
	b.WriteString(strings.Join(sanitized, "; "))
	b.WriteString("). Apologize briefly and warmly, without any technical detail, and offer a way forward (for example trying again later or asking the salon directly). Do not call any more tools.")
	return b.String()
}

func orDefault(s, d string) string {
	if s == "" {
		return d
	}
	return s
}
