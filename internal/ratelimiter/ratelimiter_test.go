package ratelimiter

import (
	"context"
	"testing"
	"time"
)

// TestNew verifies pacer creation with different parameters.
func TestNew(t *testing.T) {
	tests := []struct {
		name              string
		commandsPerSecond uint
		burst             uint
	}{
		{
			name:              "standard rate",
			commandsPerSecond: 100,
			burst:             200,
		},
		{
			name:              "low rate",
			commandsPerSecond: 1,
			burst:             2,
		},
		{
			name:              "unlimited (zero rate)",
			commandsPerSecond: 0,
			burst:             0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pacer := New(tt.commandsPerSecond, tt.burst)
			if pacer == nil {
				t.Fatal("New() returned nil")
			}
			if pacer.limiter == nil {
				t.Fatal("internal limiter is nil")
			}
		})
	}
}

// TestAllow verifies that Allow() enforces the configured command rate.
func TestAllow(t *testing.T) {
	// 10 commands/s, burst of 10
	pacer := New(10, 10)

	// First burst should be allowed (up to bucket capacity)
	for i := 0; i < 10; i++ {
		if !pacer.Allow() {
			t.Fatalf("command %d should be allowed (within burst)", i)
		}
	}

	// Next command should be paced (bucket empty)
	if pacer.Allow() {
		t.Fatal("command should be paced after burst exhausted")
	}

	// Wait for token replenishment (100ms for 10 commands/s = 1 token)
	time.Sleep(110 * time.Millisecond)

	if !pacer.Allow() {
		t.Fatal("command should be allowed after token replenishment")
	}
}

// TestWait verifies that Wait() blocks until a token is available.
func TestWait(t *testing.T) {
	// 10 commands/s, burst of 1
	pacer := New(10, 1)

	ctx := context.Background()

	// First command should be immediate (within burst)
	if err := pacer.Wait(ctx); err != nil {
		t.Fatalf("first command should succeed: %v", err)
	}

	// Second command should wait (bucket empty)
	start := time.Now()
	if err := pacer.Wait(ctx); err != nil {
		t.Fatalf("second command should succeed after waiting: %v", err)
	}
	elapsed := time.Since(start)

	// Should have waited approximately 100ms (1/10 second for 10 commands/s)
	// Allow some margin for timing jitter
	if elapsed < 50*time.Millisecond || elapsed > 200*time.Millisecond {
		t.Fatalf("wait time %v outside expected range 50ms-200ms", elapsed)
	}
}

// TestWaitContextCancellation verifies that Wait() respects context cancellation.
func TestWaitContextCancellation(t *testing.T) {
	// Very low rate to force waiting
	pacer := New(1, 1)

	// Exhaust the burst
	if !pacer.Allow() {
		t.Fatal("first command should be allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := pacer.Wait(ctx)
	if err == nil {
		t.Fatal("Wait() should return error when context is cancelled")
	}
	<-ctx.Done()
	if ctx.Err() != context.DeadlineExceeded {
		t.Fatalf("context should be DeadlineExceeded, got %v", ctx.Err())
	}
}

// TestAllowN verifies batched token consumption for paired commands.
func TestAllowN(t *testing.T) {
	pacer := New(10, 10)

	// Requesting 5 tokens should succeed (within burst)
	if !pacer.AllowN(5) {
		t.Fatal("AllowN(5) should succeed with burst of 10")
	}

	// Requesting 5 more tokens should succeed (total 10, at burst limit)
	if !pacer.AllowN(5) {
		t.Fatal("AllowN(5) should succeed, total 10 within burst")
	}

	// One more token should fail (bucket empty)
	if pacer.AllowN(1) {
		t.Fatal("AllowN(1) should fail after burst exhausted")
	}
}

// TestSetLimit verifies dynamic rate adjustment.
func TestSetLimit(t *testing.T) {
	pacer := New(10, 10)

	// Exhaust the initial burst
	for i := 0; i < 10; i++ {
		pacer.Allow()
	}

	if pacer.Allow() {
		t.Fatal("bucket should be empty after exhausting burst")
	}

	// Raise the rate to 100 commands/s
	pacer.SetLimit(100)

	// 200ms = ~20 tokens at the new rate
	time.Sleep(200 * time.Millisecond)

	allowed := 0
	for i := 0; i < 50; i++ {
		if pacer.Allow() {
			allowed++
		} else {
			break
		}
	}

	if allowed < 15 || allowed > 25 {
		t.Fatalf("expected ~20 commands allowed with new rate, got %d", allowed)
	}
}

// TestTokens verifies that Tokens() returns reasonable values.
func TestTokens(t *testing.T) {
	pacer := New(10, 10)

	initial := pacer.Tokens()
	if initial < 9 || initial > 10 {
		t.Fatalf("initial tokens %f outside expected range 9-10", initial)
	}

	for i := 0; i < 5; i++ {
		pacer.Allow()
	}

	remaining := pacer.Tokens()
	if remaining < 4 || remaining > 6 {
		t.Fatalf("remaining tokens %f outside expected range 4-6", remaining)
	}
}

// TestUnlimitedRate verifies that zero rate means no pacing.
func TestUnlimitedRate(t *testing.T) {
	pacer := New(0, 0)

	for i := 0; i < 1000; i++ {
		if !pacer.Allow() {
			t.Fatalf("unpaced limiter should allow command %d", i)
		}
	}
}

// BenchmarkAllow measures the Allow() fast path.
func BenchmarkAllow(b *testing.B) {
	pacer := New(1_000_000, 1_000_000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pacer.Allow()
	}
}
