package gate

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitScript increments the sender's counter and sets the window expiry
// only when the key is created, in one atomic round-trip. Returns the new
// count. INCR followed by a separate EXPIRE would leak an immortal key if the
// caller died between the two commands.
var rateLimitScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return c
`)

// RateLimiter is a fixed-window counter per sender phone. Once the count
// passes Max within Window, further messages are refused until the key
// expires and the window rolls over.
type RateLimiter struct {
	RDB    *redis.Client
	Max    int
	Window time.Duration
}

func (r *RateLimiter) key(phone string) string { return "wa:rl:" + phone }

// Allow counts this message against the sender's window and reports whether
// it is within budget.
func (r *RateLimiter) Allow(ctx context.Context, phone string) (bool, error) {
	n, err := rateLimitScript.Run(ctx, r.RDB, []string{r.key(phone)}, r.Window.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n <= r.Max, nil
}

// Peek reports whether the sender is still within the window without
// consuming from it. The worker uses it for its re-check so a queued message
// is not double-counted.
func (r *RateLimiter) Peek(ctx context.Context, phone string) (bool, error) {
	n, err := r.RDB.Get(ctx, r.key(phone)).Int()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return n <= r.Max, nil
}
