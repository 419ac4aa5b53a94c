package redis

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitRepository_SlidingWindow(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl", TTL: 2 * time.Minute})
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	window := time.Minute

	for i := 0; i < 3; i++ {
		if err := repo.RecordAttempt(ctx, "login:1.2.3.4", base.Add(time.Duration(i)*20*time.Second)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}
	if err := repo.RecordAttempt(ctx, "login:1.2.3.4", base.Add(40*time.Second)); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	if ttl := server.TTL("rl:login:1.2.3.4"); ttl != 2*time.Minute {
		t.Fatalf("expected ttl to be refreshed, got %s", ttl)
	}

	reference := base.Add(70 * time.Second)
	if err := repo.TrimWindow(ctx, "login:1.2.3.4", window, reference); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}

	count, err := repo.CountAttempts(ctx, "login:1.2.3.4", window, reference)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts inside the window, got %d", count)
	}

	oldest, ok, err := repo.OldestAttempt(ctx, "login:1.2.3.4", window, reference)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if !ok || !oldest.Equal(base.Add(20*time.Second)) {
		t.Fatalf("unexpected oldest attempt %s (found=%v)", oldest, ok)
	}
}

func TestRateLimitRepository_EmptyAndInvalidWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})
	ctx := context.Background()
	now := time.Now()

	if _, ok, err := repo.OldestAttempt(ctx, "nobody", time.Minute, now); err != nil || ok {
		t.Fatalf("expected no attempts, ok=%v err=%v", ok, err)
	}
	if _, err := repo.CountAttempts(ctx, "nobody", 0, now); err == nil {
		t.Fatal("expected error for zero window")
	}
	if err := repo.TrimWindow(ctx, "nobody", -time.Second, now); err == nil {
		t.Fatal("expected error for negative window")
	}
}
