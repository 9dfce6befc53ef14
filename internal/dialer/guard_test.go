package dialer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisGuard(t *testing.T, limit int) (*RedisGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisGuard(rdb, limit, time.Minute, 10*time.Minute), mr
}

func TestRedisGuard_CapsInFlight(t *testing.T) {
	g, mr := newRedisGuard(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := g.Acquire(ctx, 1, "u1")
		if err != nil || !ok {
			t.Fatalf("acquire %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := g.Acquire(ctx, 1, "u1"); ok {
		t.Fatalf("expected third acquire to be refused")
	}
	if ok, _ := g.Acquire(ctx, 1, "u2"); !ok {
		t.Fatalf("other agents have their own cap")
	}

	if err := g.Release(ctx, 1, "u1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := g.Acquire(ctx, 1, "u1"); !ok {
		t.Fatalf("expected acquire after release")
	}

	mr.FastForward(2 * time.Minute)
	if mr.Exists(inflightKey(1, "u1")) {
		t.Fatalf("in-flight counter should expire")
	}
}

func TestRedisGuard_ReleaseWithoutAcquireIsHarmless(t *testing.T) {
	g, mr := newRedisGuard(t, 1)
	ctx := context.Background()

	if err := g.Release(ctx, 1, "u1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists(inflightKey(1, "u1")) {
		t.Fatalf("release must not leave a negative counter")
	}
	if ok, _ := g.Acquire(ctx, 1, "u1"); !ok {
		t.Fatalf("expected acquire")
	}
}

func TestRedisGuard_StopFlag(t *testing.T) {
	g, mr := newRedisGuard(t, 1)
	ctx := context.Background()

	if stopped, err := g.Stopped(ctx, 1, "u1"); err != nil || stopped {
		t.Fatalf("expected not stopped, got %v %v", stopped, err)
	}
	if err := g.MarkStopped(ctx, 1, "u1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if stopped, _ := g.Stopped(ctx, 1, "u1"); !stopped {
		t.Fatalf("expected stopped")
	}
	if err := g.ClearStopped(ctx, 1, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if stopped, _ := g.Stopped(ctx, 1, "u1"); stopped {
		t.Fatalf("expected flag cleared")
	}

	_ = g.MarkStopped(ctx, 1, "u1")
	mr.FastForward(11 * time.Minute)
	if stopped, _ := g.Stopped(ctx, 1, "u1"); stopped {
		t.Fatalf("stop flag should expire")
	}
}
