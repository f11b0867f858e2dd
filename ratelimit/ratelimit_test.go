package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(capacity int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(Config{Capacity: capacity, Window: window, IdleTTL: time.Hour})
	l.nowFunc = clock.Now
	return l, clock
}

// --- Unit Tests ---

func TestAllow_Burst(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)
	defer l.Close()

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("4th request should be rejected")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("other clients have their own bucket")
	}
}

func TestAllow_Refill(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)
	defer l.Close()

	l.Allow("c")
	l.Allow("c")
	if l.Allow("c") {
		t.Fatal("bucket should be empty")
	}

	// Half a token is not enough.
	clock.Advance(15 * time.Second)
	if l.Allow("c") {
		t.Error("partial refill should not allow")
	}

	// The earned half carries over.
	clock.Advance(15 * time.Second)
	if !l.Allow("c") {
		t.Error("one token should have refilled")
	}

	clock.Advance(10 * time.Minute)
	if cap := l.GetCapacity("c"); cap == nil || cap.Available != 2 || cap.Total != 2 {
		t.Errorf("capacity = %+v, want full bucket of 2", cap)
	}
}

func TestRetryAfter(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)
	defer l.Close()

	if got := l.RetryAfter("c"); got != 0 {
		t.Errorf("unknown client RetryAfter = %v", got)
	}
	l.Allow("c")
	l.Allow("c")
	if got := l.RetryAfter("c"); got != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", got)
	}
	clock.Advance(20 * time.Second)
	if got := l.RetryAfter("c"); got != 10*time.Second {
		t.Errorf("RetryAfter = %v, want 10s", got)
	}
}

func TestDisabled(t *testing.T) {
	l := New(Config{})
	for i := 0; i < 100; i++ {
		if !l.Allow("c") {
			t.Fatal("disabled limiter should allow everything")
		}
	}
	if l.Len() != 0 {
		t.Errorf("disabled limiter tracked %d clients", l.Len())
	}

	var nilLimiter *Limiter
	if !nilLimiter.Allow("c") {
		t.Error("nil limiter should allow")
	}
}

func TestSweepDropsIdleClients(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)
	defer l.Close()

	l.Allow("old")
	clock.Advance(2 * time.Hour)
	l.Allow("new")

	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
	if l.GetCapacity("old") != nil {
		t.Error("idle client should be dropped")
	}
}

func TestClose(t *testing.T) {
	l, _ := newTestLimiter(5, time.Minute)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if l.Allow("c") {
		t.Error("closed limiter should reject")
	}
	if err := l.Close(); err != ErrClosed {
		t.Errorf("second Close = %v, want ErrClosed", err)
	}
}

func TestConcurrentAllow(t *testing.T) {
	l, _ := newTestLimiter(50, time.Hour)
	defer l.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("c") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}
