package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, BaseDelay: time.Millisecond}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessOnRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_AllAttemptsExhausted(t *testing.T) {
	var calls int
	sentinel := errors.New("always fails")
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_PermanentErrorStopsRetry(t *testing.T) {
	var calls int
	sentinel := errors.New("WRONGPASS invalid password")
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	if err != sentinel {
		t.Fatalf("expected unwrapped sentinel, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_ZeroAttemptsMeansOne(t *testing.T) {
	var calls int
	_ = Do(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	start := time.Now()
	err := Do(ctx, Policy{Attempts: 5, BaseDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if time.Since(start) > time.Second {
		t.Fatal("cancellation should interrupt the backoff sleep")
	}
}

func TestDo_OnRetryAndMaxDelay(t *testing.T) {
	var (
		attempts []int
		delays   []time.Duration
	)
	p := Policy{
		Attempts:  4,
		BaseDelay: 4 * time.Millisecond,
		MaxDelay:  6 * time.Millisecond,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			attempts = append(attempts, attempt)
			delays = append(delays, delay)
		},
	}
	_ = Do(context.Background(), p, func(context.Context) error { return errors.New("down") })

	if len(attempts) != 3 {
		t.Fatalf("expected 3 retries, got %d", len(attempts))
	}
	for i, a := range attempts {
		if a != i+1 {
			t.Fatalf("retry %d reported attempt %d", i, a)
		}
	}
	// 4ms, then 8ms capped to 6ms, each +-25%.
	if delays[0] < 3*time.Millisecond || delays[0] > 5*time.Millisecond {
		t.Fatalf("first delay %v outside 4ms +-25%%", delays[0])
	}
	for _, d := range delays[1:] {
		if d > 7500*time.Microsecond {
			t.Fatalf("delay %v exceeds capped 6ms +-25%%", d)
		}
	}
}

func TestPermanentError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	pe := Permanent(inner)
	if !errors.Is(pe, inner) {
		t.Fatal("Permanent should unwrap to inner")
	}
	if pe.Error() != "inner" {
		t.Fatalf("unexpected message %q", pe.Error())
	}
}
