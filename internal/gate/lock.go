package gate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when the caller still holds it.
// Compare-and-delete must be atomic: GET then DEL would let a holder whose
// lease just expired delete somebody else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a lease-based mutual exclusion primitive keyed by chat. At most one
// valid holder per key; an expired lease may be silently reclaimed by any
// acquirer, which is the crash-recovery path.
type Lock struct {
	RDB *redis.Client
	TTL time.Duration
}

func (l *Lock) key(chatKey string) string { return "wa:lock:chat:" + chatKey }

// Acquire attempts to take the chat lock. On success it returns an opaque
// holder token that Release requires; ok=false means another worker holds a
// live lease.
func (l *Lock) Acquire(ctx context.Context, chatKey string) (token string, ok bool, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", false, err
	}
	token = hex.EncodeToString(buf)

	ok, err = l.RDB.SetNX(ctx, l.key(chatKey), token, l.TTL).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if token still holds it. Releasing an expired or
// stolen lease is a no-op, not an error.
func (l *Lock) Release(ctx context.Context, chatKey, token string) error {
	return releaseScript.Run(ctx, l.RDB, []string{l.key(chatKey)}, token).Err()
}
