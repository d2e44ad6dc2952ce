package store

import "time"

type Salon struct {
	ID             string
	Name           string
	WhatsAppNumber string
	Language       string
	Timezone       string
}

// Chat is one conversation between one customer phone and one salon.
// At most one row per (salon_id, client_phone); immutable after creation
// except for profile_name, is_manual and updated_at.
type Chat struct {
	ID          string
	SalonID     string
	ClientPhone string
	ProfileName string
	IsManual    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ChatUpsert struct {
	ID          string // used only when the row does not exist yet
	SalonID     string
	ClientPhone string
	ProfileName string
	Now         time.Time
}

type ChatMessage struct {
	ID               string
	ChatID           string
	Role             string // "user" | "assistant"
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	RequiresResponse bool
	CreatedAt        time.Time
}

type ChatMessageInsert struct {
	ID               string
	ChatID           string
	Role             string
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	RequiresResponse bool
	Now              time.Time
}

// MediaAssetInsert records an inbound media URL before the provider's
// ephemeral link dies. Best-effort write; never fails the job.
type MediaAssetInsert struct {
	ChatID      string
	MessageID   string
	ContentType string
	URL         string
	Now         time.Time
}

// KnowledgeSnippet is one chunk of a salon's knowledge corpus with its
// embedding, stored at ingestion time by the dashboard.
type KnowledgeSnippet struct {
	ID        string
	SalonID   string
	Content   string
	Embedding []float64
}
