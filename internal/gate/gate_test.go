package gate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRateLimiterRefusesBeyondMax(t *testing.T) {
	_, rdb := testRedis(t)
	rl := &RateLimiter{RDB: rdb, Max: 3, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "+5511999990000")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("message %d should be within the window", i+1)
		}
	}
	ok, err := rl.Allow(ctx, "+5511999990000")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatalf("4th message in the window must be refused")
	}

	// another sender has its own window
	if ok, _ := rl.Allow(ctx, "+5511888880000"); !ok {
		t.Fatalf("windows must be per sender")
	}
}

func TestRateLimiterWindowRollsOver(t *testing.T) {
	mr, rdb := testRedis(t)
	rl := &RateLimiter{RDB: rdb, Max: 1, Window: 30 * time.Second}
	ctx := context.Background()

	if ok, _ := rl.Allow(ctx, "+1"); !ok {
		t.Fatalf("first message must pass")
	}
	if ok, _ := rl.Allow(ctx, "+1"); ok {
		t.Fatalf("second message in the window must be refused")
	}

	mr.FastForward(31 * time.Second)

	ok, err := rl.Allow(ctx, "+1")
	if err != nil {
		t.Fatalf("allow after expiry: %v", err)
	}
	if !ok {
		t.Fatalf("window must reset after it expires")
	}
}

func TestRateLimiterPeekDoesNotConsume(t *testing.T) {
	_, rdb := testRedis(t)
	rl := &RateLimiter{RDB: rdb, Max: 2, Window: time.Minute}
	ctx := context.Background()

	// no traffic yet: peek must pass and must not create the key
	if ok, err := rl.Peek(ctx, "+1"); err != nil || !ok {
		t.Fatalf("peek on idle sender: ok=%v err=%v", ok, err)
	}

	rl.Allow(ctx, "+1")
	for i := 0; i < 10; i++ {
		if ok, err := rl.Peek(ctx, "+1"); err != nil || !ok {
			t.Fatalf("peek %d: ok=%v err=%v", i, ok, err)
		}
	}
	// ten peeks later the sender still has one message of headroom
	if ok, _ := rl.Allow(ctx, "+1"); !ok {
		t.Fatalf("peek consumed from the window")
	}
	if ok, _ := rl.Allow(ctx, "+1"); ok {
		t.Fatalf("window should now be exhausted")
	}
	if ok, _ := rl.Peek(ctx, "+1"); ok {
		t.Fatalf("peek must report the exhausted window")
	}
}

func TestLockMutualExclusion(t *testing.T) {
	_, rdb := testRedis(t)
	l := &Lock{RDB: rdb, TTL: time.Minute}
	ctx := context.Background()

	token, ok, err := l.Acquire(ctx, "sal_1:+5511999990000")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if token == "" {
		t.Fatalf("acquire must hand out a holder token")
	}

	if _, ok, _ := l.Acquire(ctx, "sal_1:+5511999990000"); ok {
		t.Fatalf("second acquire must fail while the lease is live")
	}
	// a different chat is unaffected
	if _, ok, _ := l.Acquire(ctx, "sal_1:+5511888880000"); !ok {
		t.Fatalf("locks must be per chat key")
	}

	if err := l.Release(ctx, "sal_1:+5511999990000", token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := l.Acquire(ctx, "sal_1:+5511999990000"); !ok {
		t.Fatalf("acquire must succeed after release")
	}
}

func TestLockStaleTokenReleaseIsNoop(t *testing.T) {
	_, rdb := testRedis(t)
	l := &Lock{RDB: rdb, TTL: time.Minute}
	ctx := context.Background()

	token, ok, err := l.Acquire(ctx, "chat")
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	if err := l.Release(ctx, "chat", "not-the-holder"); err != nil {
		t.Fatalf("stale release must not error: %v", err)
	}
	if _, ok, _ := l.Acquire(ctx, "chat"); ok {
		t.Fatalf("stale release must not free the live lease")
	}

	if err := l.Release(ctx, "chat", token); err != nil {
		t.Fatalf("holder release: %v", err)
	}
	if _, ok, _ := l.Acquire(ctx, "chat"); !ok {
		t.Fatalf("lease should be free after the holder released it")
	}
}

func TestLockLeaseExpiresOnItsOwn(t *testing.T) {
	mr, rdb := testRedis(t)
	l := &Lock{RDB: rdb, TTL: 10 * time.Second}
	ctx := context.Background()

	if _, ok, _ := l.Acquire(ctx, "chat"); !ok {
		t.Fatalf("acquire failed")
	}

	mr.FastForward(11 * time.Second)

	// crash recovery: the dead holder's lease lapses and a new worker gets in
	if _, ok, err := l.Acquire(ctx, "chat"); err != nil || !ok {
		t.Fatalf("acquire after expiry: ok=%v err=%v", ok, err)
	}
}

func TestIdempotencyMarksOnlyFirstDelivery(t *testing.T) {
	mr, rdb := testRedis(t)
	idem := &Idempotency{RDB: rdb, TTL: time.Hour}
	ctx := context.Background()

	first, err := idem.MarkIfFirst(ctx, "SMaaa")
	if err != nil || !first {
		t.Fatalf("first delivery: first=%v err=%v", first, err)
	}
	if again, _ := idem.MarkIfFirst(ctx, "SMaaa"); again {
		t.Fatalf("duplicate delivery must not win")
	}
	// a different message id is unaffected
	if other, _ := idem.MarkIfFirst(ctx, "SMbbb"); !other {
		t.Fatalf("unrelated message id must pass")
	}

	if err := idem.Unmark(ctx, "SMaaa"); err != nil {
		t.Fatalf("unmark: %v", err)
	}
	if retry, _ := idem.MarkIfFirst(ctx, "SMaaa"); !retry {
		t.Fatalf("the provider retry must pass after a rollback")
	}

	mr.FastForward(2 * time.Hour)
	if late, _ := idem.MarkIfFirst(ctx, "SMaaa"); !late {
		t.Fatalf("mark must expire with its TTL")
	}
}
