package server

import (
	"testing"
	"time"
)

func TestRateLimiterBurstAndRefill(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := newRateLimiter(3, time.Second)
	rl.lastCheck = now
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.allow() {
			t.Fatalf("Message %d within burst was rejected", i+1)
		}
	}
	if rl.allow() {
		t.Fatal("Message beyond burst was allowed")
	}

	now = now.Add(time.Second / 2)
	if !rl.allow() {
		t.Error("Expected one token after half the refill interval")
	}
	if rl.allow() {
		t.Error("Expected bucket to be empty again")
	}

	now = now.Add(10 * time.Second)
	for i := 0; i < 3; i++ {
		if !rl.allow() {
			t.Errorf("Refilled message %d was rejected", i+1)
		}
	}
	if rl.allow() {
		t.Error("Refill exceeded bucket capacity")
	}
}

func TestNewRateLimiterDefaults(t *testing.T) {
	rl := newRateLimiter(0, 0)
	if rl.capacity != 1 {
		t.Errorf("Expected capacity 1, got %v", rl.capacity)
	}
	if rl.rate != 1 {
		t.Errorf("Expected rate 1/s, got %v", rl.rate)
	}
}
