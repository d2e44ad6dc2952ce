package pg

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"concierge/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// FindSalonByNumber resolves the tenant that owns a WhatsApp-enabled number.
// found=false is a permanent routing miss, not an error.
func (s *Store) FindSalonByNumber(ctx context.Context, waNumber string) (store.Salon, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, name, whatsapp_number, COALESCE(language,'en'), COALESCE(timezone,'UTC')
		FROM salons WHERE whatsapp_number=$1
	`, waNumber)
	var sal store.Salon
	err := row.Scan(&sal.ID, &sal.Name, &sal.WhatsAppNumber, &sal.Language, &sal.Timezone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Salon{}, false, nil
		}
		return store.Salon{}, false, err
	}
	return sal, true, nil
}

// FindSalonByID is the worker-side tenant load; jobs carry the salon id
// resolved at intake, so a miss here means the tenant was deleted mid-flight.
func (s *Store) FindSalonByID(ctx context.Context, id string) (store.Salon, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, name, whatsapp_number, COALESCE(language,'en'), COALESCE(timezone,'UTC')
		FROM salons WHERE id=$1
	`, id)
	var sal store.Salon
	err := row.Scan(&sal.ID, &sal.Name, &sal.WhatsAppNumber, &sal.Language, &sal.Timezone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Salon{}, false, nil
		}
		return store.Salon{}, false, err
	}
	return sal, true, nil
}

// FindOrCreateChat upserts the (salon, phone) conversation in one round trip.
// The DO UPDATE branch only refreshes profile_name/updated_at so RETURNING
// yields the existing row; is_manual is never touched here.
func (s *Store) FindOrCreateChat(ctx context.Context, in store.ChatUpsert) (store.Chat, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO chats (id, salon_id, client_phone, profile_name, is_manual, created_at, updated_at)
		VALUES ($1,$2,$3,$4,false,$5,$5)
		ON CONFLICT (salon_id, client_phone)
		DO UPDATE SET profile_name = COALESCE(NULLIF(EXCLUDED.profile_name,''), chats.profile_name),
		              updated_at = EXCLUDED.updated_at
		RETURNING id, salon_id, client_phone, COALESCE(profile_name,''), is_manual, created_at, updated_at
	`, in.ID, in.SalonID, in.ClientPhone, in.ProfileName, in.Now)

	var c store.Chat
	err := row.Scan(&c.ID, &c.SalonID, &c.ClientPhone, &c.ProfileName, &c.IsManual, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return store.Chat{}, err
	}
	return c, nil
}

// ChatExists is the cheap intake-time check behind the isNewCustomer flag.
func (s *Store) ChatExists(ctx context.Context, salonID, clientPhone string) (bool, error) {
	row := s.DB.QueryRow(ctx, `SELECT 1 FROM chats WHERE salon_id=$1 AND client_phone=$2`, salonID, clientPhone)
	var one int
	err := row.Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) InsertChatMessage(ctx context.Context, in store.ChatMessageInsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO chat_messages (id, chat_id, role, content, prompt_tokens, completion_tokens, total_tokens, requires_response, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, in.ID, in.ChatID, in.Role, in.Content, in.PromptTokens, in.CompletionTokens, in.TotalTokens, in.RequiresResponse, in.Now)
	return err
}

// InsertInboundMessage writes the customer's message under a
// provider-derived id. A redelivered job hits the same id; the insert then
// reports false instead of writing a second row.
func (s *Store) InsertInboundMessage(ctx context.Context, in store.ChatMessageInsert) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
		INSERT INTO chat_messages (id, chat_id, role, content, prompt_tokens, completion_tokens, total_tokens, requires_response, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING
	`, in.ID, in.ChatID, in.Role, in.Content, in.PromptTokens, in.CompletionTokens, in.TotalTokens, in.RequiresResponse, in.Now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecentMessages returns the last n messages of a chat in chronological
// order. This bounded window is the AI's context.
func (s *Store) RecentMessages(ctx context.Context, chatID string, n int) ([]store.ChatMessage, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, chat_id, role, content, prompt_tokens, completion_tokens, total_tokens, requires_response, created_at
		FROM chat_messages WHERE chat_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, chatID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ChatMessage
	for rows.Next() {
		var m store.ChatMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.PromptTokens, &m.CompletionTokens, &m.TotalTokens, &m.RequiresResponse, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) InsertMediaAsset(ctx context.Context, in store.MediaAssetInsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO media_assets (chat_id, provider_msg_id, content_type, url, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (provider_msg_id) DO NOTHING
	`, in.ChatID, in.MessageID, in.ContentType, in.URL, in.Now)
	return err
}

// SetChatManual flips the human-takeover flag. The dashboard calls this
// out-of-band; the worker only ever reads it.
func (s *Store) SetChatManual(ctx context.Context, chatID string, manual bool, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE chats SET is_manual=$2, updated_at=$3 WHERE id=$1
	`, chatID, manual, now)
	return err
}

// KnowledgeSnippets loads a salon's knowledge corpus with stored embeddings.
func (s *Store) KnowledgeSnippets(ctx context.Context, salonID string) ([]store.KnowledgeSnippet, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, salon_id, content, embedding_json FROM salon_knowledge WHERE salon_id=$1
	`, salonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.KnowledgeSnippet
	for rows.Next() {
		var k store.KnowledgeSnippet
		var emb []byte
		if err := rows.Scan(&k.ID, &k.SalonID, &k.Content, &emb); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(emb, &k.Embedding); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
