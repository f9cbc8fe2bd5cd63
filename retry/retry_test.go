package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/finvue/resilience/errdef"
)

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestSucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != "ok" {
		t.Errorf("expected 'ok', got %q", result)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestSucceedsAfterRetry(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errdef.ServerError(503, "warming up")
		}
		return "ok", nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != "ok" {
		t.Errorf("expected 'ok', got %q", result)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestTerminationAtMaxAttempts(t *testing.T) {
	calls := 0
	boom := errdef.Network(errors.New("refused"))

	_, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", boom
	})

	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}

	var exhausted *errdef.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("expected attempts 3 attached, got %d", exhausted.Attempts)
	}
	if !errors.Is(err, boom) {
		t.Error("expected last error to be wrapped")
	}
}

func TestNonRetryableShortCircuits(t *testing.T) {
	calls := 0
	bad := errdef.ClientError(422, "invalid account")

	_, err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) (string, error) {
		calls++
		return "", bad
	})

	if calls != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", calls)
	}
	if !errors.Is(err, bad) {
		t.Errorf("expected the original error, got %v", err)
	}
	var exhausted *errdef.ExhaustedError
	if errors.As(err, &exhausted) {
		t.Error("non-retryable error must not be wrapped as exhaustion")
	}
}

func TestUnknownErrorsAreNotRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("mystery")
	})

	if calls != 1 {
		t.Errorf("expected 1 attempt for unclassified error, got %d", calls)
	}
	if err == nil {
		t.Error("expected error")
	}
}

func TestCustomClassifier(t *testing.T) {
	calls := 0
	policy := fastPolicy(3)
	policy.Classifier = func(err error) bool { return true }

	_, err := Do(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("mystery")
	})

	if calls != 3 {
		t.Errorf("expected 3 attempts with permissive classifier, got %d", calls)
	}
	if err == nil {
		t.Error("expected error")
	}
}

func TestRateLimitHintOverridesBackoff(t *testing.T) {
	var delays []time.Duration
	policy := Policy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Second,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		},
	}

	calls := 0
	_, err := Do(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errdef.RateLimited(30 * time.Millisecond)
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatal(err)
	}
	if len(delays) != 1 {
		t.Fatalf("expected 1 retry, got %d", len(delays))
	}
	if delays[0] != 30*time.Millisecond {
		t.Errorf("expected server hint 30ms as delay, got %s", delays[0])
	}
}

func TestRespectsContextDuringSleep(t *testing.T) {
	policy := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		MaxDelay:    time.Hour,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	calls := 0
	start := time.Now()
	_, err := Do(ctx, policy, func(ctx context.Context) (string, error) {
		calls++
		return "", errdef.ServerError(500, "")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt before cancel, got %d", calls)
	}
	if time.Since(start) > time.Second {
		t.Error("cancel did not interrupt the backoff sleep")
	}
}

func TestBackoffGrowthAndCap(t *testing.T) {
	policy := Policy{
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		JitterRatio: 0,
	}

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for attempt, want := range expected {
		if got := Backoff(attempt, policy); got != want {
			t.Errorf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	policy := Policy{
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Minute,
		JitterRatio: 0.5,
	}

	lo := 50 * time.Millisecond
	hi := 150 * time.Millisecond
	for i := 0; i < 200; i++ {
		d := Backoff(0, policy)
		if d < lo || d > hi {
			t.Fatalf("jittered delay %s outside [%s, %s]", d, lo, hi)
		}
	}
}

func TestDoFunc(t *testing.T) {
	calls := 0
	err := DoFunc(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errdef.Timeout(errors.New("slow"))
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}
