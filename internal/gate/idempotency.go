package gate

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Idempotency records which provider message IDs have already been accepted.
// A single SET NX round-trip both checks and marks, so two concurrent
// deliveries of the same message can never both win.
type Idempotency struct {
	RDB *redis.Client
	TTL time.Duration
}

func (i *Idempotency) key(messageID string) string { return "wa:msg:" + messageID }

// MarkIfFirst returns true when this delivery is the first one for messageID
// within the TTL window. Subsequent calls return false until the key expires.
func (i *Idempotency) MarkIfFirst(ctx context.Context, messageID string) (bool, error) {
	return i.RDB.SetNX(ctx, i.key(messageID), "1", i.TTL).Result()
}

// Unmark removes the acceptance record. Used when the enqueue that followed a
// successful MarkIfFirst failed, so the provider's retry can get through.
func (i *Idempotency) Unmark(ctx context.Context, messageID string) error {
	return i.RDB.Del(ctx, i.key(messageID)).Err()
}
