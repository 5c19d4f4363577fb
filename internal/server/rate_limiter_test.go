package server

import (
	"testing"
	"time"
)

func TestRateLimiterExhaustsBurst(t *testing.T) {
	rl := newRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !rl.allow() {
			t.Fatalf("Frame %d within burst should be allowed", i)
		}
	}
	if rl.allow() {
		t.Error("Frame beyond burst should be discarded")
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl := newRateLimiter(1, 10*time.Millisecond)

	if !rl.allow() {
		t.Fatal("First frame should be allowed")
	}
	if rl.allow() {
		t.Fatal("Second immediate frame should be discarded")
	}

	time.Sleep(20 * time.Millisecond)
	if !rl.allow() {
		t.Error("Frame after refill interval should be allowed")
	}
}

func TestRateLimiterSanitizesInvalidParameters(t *testing.T) {
	rl := newRateLimiter(0, 0)
	if !rl.allow() {
		t.Error("Sanitized limiter should still admit one frame")
	}
}
