package router

import (
	"testing"
	"time"
)

// TestRateLimiter_ExactLimits tests exact rate limiting behavior
func TestRateLimiter_ExactLimits(t *testing.T) {
	limiter := NewRateLimiter(5, time.Minute)
	connID := "conn-1"

	for i := 0; i < 5; i++ {
		if !limiter.Allow(connID) {
			t.Fatalf("Event %d should be allowed", i+1)
		}
	}

	if limiter.Allow(connID) {
		t.Error("Event beyond the limit should be blocked")
	}

	// Other connections are unaffected
	if !limiter.Allow("conn-2") {
		t.Error("Separate connection should have its own window")
	}
}

// TestRateLimiter_WindowReset tests that a new window restores the budget
func TestRateLimiter_WindowReset(t *testing.T) {
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(1, time.Minute)
	limiter.now = func() time.Time { return current }

	if !limiter.Allow("c") {
		t.Fatal("First event should be allowed")
	}
	if limiter.Allow("c") {
		t.Fatal("Second event in the window should be blocked")
	}

	current = current.Add(time.Minute)
	if !limiter.Allow("c") {
		t.Error("Event in a new window should be allowed")
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	limiter := NewRateLimiter(0, 0)
	if limiter.limit != DefaultRateLimit || limiter.window != DefaultRateWindow {
		t.Errorf("Expected defaults %d/%v, got %d/%v", DefaultRateLimit, DefaultRateWindow, limiter.limit, limiter.window)
	}

	// 100 events per minute per connection
	for i := 0; i < 100; i++ {
		if !limiter.Allow("c") {
			t.Fatalf("Event %d should be allowed under the default limit", i+1)
		}
	}
	if limiter.Allow("c") {
		t.Error("Event 101 should be blocked under the default limit")
	}
}

// TestRateLimiter_Cleanup tests stale entry removal
func TestRateLimiter_Cleanup(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(10, time.Minute)
	limiter.now = func() time.Time { return start }

	limiter.Allow("stale")
	limiter.Allow("fresh")
	limiter.now = func() time.Time { return start.Add(5 * time.Minute) }
	limiter.Allow("fresh") // opens a new window

	if removed := limiter.Cleanup(start.Add(4 * time.Minute)); removed != 0 {
		t.Errorf("Expected nothing removed inside 5 windows, got %d", removed)
	}
	if removed := limiter.Cleanup(start.Add(6 * time.Minute)); removed != 1 {
		t.Errorf("Expected only the stale entry removed, got %d", removed)
	}
	if limiter.Len() != 1 {
		t.Errorf("Expected 1 remaining entry, got %d", limiter.Len())
	}
}
