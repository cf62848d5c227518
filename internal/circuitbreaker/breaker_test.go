package circuitbreaker

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

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
}

func TestBreaker_AllowWhenClosed(t *testing.T) {
	b := New(WithThreshold(3))
	if !b.Allow("redis") {
		t.Fatal("expected closed circuit to allow")
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New(WithThreshold(3))

	b.RecordFailure("redis")
	b.RecordFailure("redis")
	if !b.Allow("redis") {
		t.Fatal("should still allow before threshold")
	}

	b.RecordFailure("redis")
	if b.Allow("redis") {
		t.Fatal("should be open after 3 failures")
	}
	if b.State("redis") != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State("redis"))
	}
}

func TestBreaker_OpenToHalfOpenAfterDuration(t *testing.T) {
	clock := newClock()
	b := New(WithThreshold(2), WithOpenDuration(10*time.Second), WithClock(clock.Now))

	b.RecordFailure("redis")
	b.RecordFailure("redis")
	if b.Allow("redis") {
		t.Fatal("should be open")
	}

	clock.Advance(9 * time.Second)
	if b.Allow("redis") {
		t.Fatal("should stay open before the open duration elapses")
	}

	clock.Advance(time.Second)
	if !b.Allow("redis") {
		t.Fatal("should allow a trial call in half-open")
	}
	if b.State("redis") != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %v", b.State("redis"))
	}
	if b.Allow("redis") {
		t.Fatal("should reject second call in half-open")
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	clock := newClock()
	b := New(WithThreshold(2), WithOpenDuration(time.Second), WithClock(clock.Now))

	b.RecordFailure("redis")
	b.RecordFailure("redis")
	clock.Advance(time.Second)
	b.Allow("redis")

	b.RecordSuccess("redis")
	if b.State("redis") != StateClosed {
		t.Fatalf("expected StateClosed after success, got %v", b.State("redis"))
	}
	if !b.Allow("redis") {
		t.Fatal("should allow after recovery")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newClock()
	b := New(WithThreshold(2), WithOpenDuration(time.Second), WithClock(clock.Now))

	b.RecordFailure("redis")
	b.RecordFailure("redis")
	clock.Advance(time.Second)
	b.Allow("redis")

	b.RecordFailure("redis")
	if b.State("redis") != StateOpen {
		t.Fatalf("expected StateOpen after a failed trial call, got %v", b.State("redis"))
	}
	// The open duration restarts from the failed trial call.
	clock.Advance(500 * time.Millisecond)
	if b.Allow("redis") {
		t.Fatal("should stay open after a failed trial call")
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := New(WithThreshold(2))

	b.RecordFailure("redis")
	b.RecordSuccess("redis")
	b.RecordFailure("redis")
	if b.State("redis") != StateClosed {
		t.Fatal("non-consecutive failures should not trip the circuit")
	}
}

func TestBreaker_KeysAreIndependent(t *testing.T) {
	b := New(WithThreshold(1))

	b.RecordFailure("redis")
	if b.Allow("redis") {
		t.Fatal("redis should be open")
	}
	if !b.Allow("postgres") {
		t.Fatal("postgres should be unaffected")
	}
}

func TestBreaker_OnTransition(t *testing.T) {
	clock := newClock()
	var got []Transition
	b := New(
		WithThreshold(2),
		WithOpenDuration(time.Second),
		WithClock(clock.Now),
		OnTransition(func(tr Transition) { got = append(got, tr) }),
	)

	b.RecordFailure("redis")
	b.RecordFailure("redis")
	clock.Advance(time.Second)
	b.Allow("redis")
	b.RecordSuccess("redis")

	want := []Transition{
		{Key: "redis", From: StateClosed, To: StateOpen, Failures: 2},
		{Key: "redis", From: StateOpen, To: StateHalfOpen, Failures: 2},
		{Key: "redis", From: StateHalfOpen, To: StateClosed, Failures: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d transitions, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transition %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestBreaker_ConcurrentAccess(t *testing.T) {
	b := New(WithThreshold(100))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Allow("redis")
				b.RecordFailure("redis")
				b.RecordSuccess("redis")
				_ = b.State("redis")
			}
		}()
	}
	wg.Wait()
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half_open",
		State(99):     "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
