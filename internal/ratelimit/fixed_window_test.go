package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestFixedWindowLimiterRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	ctx := context.Background()
	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("second request should pass")
	}
	ok, retry := limiter.Allow(ctx, "ip-1")
	if ok {
		t.Fatalf("third request should be blocked")
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("retry after out of range: %v", retry)
	}
	if ok, _ := limiter.Allow(ctx, "ip-2"); !ok {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterResetsNextWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewFixedWindowLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	now := time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	ctx := context.Background()
	if ok, _ := limiter.Allow(ctx, "user-1"); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, retry := limiter.Allow(ctx, "user-1"); ok || retry != 55*time.Second {
		t.Fatalf("expected block with 55s retry, got ok=%v retry=%v", ok, retry)
	}
	now = now.Add(time.Minute)
	if ok, _ := limiter.Allow(ctx, "user-1"); !ok {
		t.Fatalf("next window should pass")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	mr.Close()
	if ok, _ := limiter.Allow(context.Background(), "ip-1"); ok {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterValidatesArguments(t *testing.T) {
	if limiter, err := NewRedisFixedWindowLimiter("", "", "test:ratelimit", 1, time.Second); err == nil || limiter != nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
	if _, err := NewFixedWindowLimiter(nil, "", 1, time.Second); err == nil {
		t.Fatalf("expected constructor error for nil client")
	}
	mr := miniredis.RunT(t)
	if _, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "", 0, time.Second); err == nil {
		t.Fatalf("expected constructor error for zero limit")
	}
}
