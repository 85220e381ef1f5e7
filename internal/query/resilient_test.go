package query

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func TestRunnerSuccess(t *testing.T) {
	runner := NewRunner(func(ctx context.Context) (string, error) {
		return "fresh", nil
	}, RunnerOptions[string]{})
	defer runner.Close()

	state := runner.Run(context.Background())
	if state.Err != nil || !state.HasData || state.Stale {
		t.Fatalf("state = %+v", state)
	}
	if state.Data != "fresh" {
		t.Errorf("Data = %q", state.Data)
	}
	if state.Loading {
		t.Error("completed run should not be loading")
	}
}

func TestRunnerRetriesThenSucceeds(t *testing.T) {
	var calls int32
	runner := NewRunner(func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return "", errors.New("transient")
		}
		return "third time", nil
	}, RunnerOptions[string]{RetryCount: 3, RetryDelay: time.Millisecond})
	defer runner.Close()

	state := runner.Run(context.Background())
	if state.Err != nil {
		t.Fatalf("run should have recovered: %v", state.Err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("fetch called %d times, want 3", got)
	}
	if state.Data != "third time" || state.Stale {
		t.Errorf("state = %+v", state)
	}
}

func TestRunnerBreakerShortCircuits(t *testing.T) {
	var calls int32
	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "test",
		Timeout: time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	})
	runner := NewRunner(func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("down")
	}, RunnerOptions[string]{RetryCount: -1, Breaker: breaker})
	defer runner.Close()

	state := runner.Run(context.Background())
	if state.Err == nil {
		t.Fatal("first run should fail and open the breaker")
	}

	// Open breaker: rejections surface as attempt failures without
	// touching the fetcher.
	state = runner.Run(context.Background())
	if state.Err == nil {
		t.Fatal("open breaker must fail the run")
	}
	if !errors.Is(state.Err, gobreaker.ErrOpenState) {
		t.Errorf("Err = %v, want wrapped ErrOpenState", state.Err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetch called %d times, want 1 (open breaker rejects without calling)", got)
	}
}

func TestRunnerExhaustsRetries(t *testing.T) {
	var calls int32
	runner := NewRunner(func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, errors.New("down")
	}, RunnerOptions[int]{RetryCount: 2, RetryDelay: time.Millisecond})
	defer runner.Close()

	state := runner.Run(context.Background())
	if state.Err == nil {
		t.Fatal("exhausted chain must report the error")
	}
	// First attempt plus two retries.
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("fetch called %d times, want 3", got)
	}
	if state.HasData {
		t.Error("no data was ever fetched, HasData must be false")
	}
}

func TestRunnerNegativeRetryCountDisablesRetries(t *testing.T) {
	var calls int32
	runner := NewRunner(func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, errors.New("down")
	}, RunnerOptions[int]{RetryCount: -1, RetryDelay: time.Millisecond})
	defer runner.Close()

	runner.Run(context.Background())
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetch called %d times, want exactly 1", got)
	}
}

func TestRunnerExponentialBackoff(t *testing.T) {
	var stamps []time.Time
	runner := NewRunner(func(ctx context.Context) (int, error) {
		stamps = append(stamps, time.Now())
		return 0, errors.New("down")
	}, RunnerOptions[int]{RetryCount: 2, RetryDelay: 40 * time.Millisecond})
	defer runner.Close()

	runner.Run(context.Background())
	if len(stamps) != 3 {
		t.Fatalf("got %d attempts, want 3", len(stamps))
	}

	// Delays double: ~40ms before retry 1, ~80ms before retry 2. Generous
	// lower bounds only, to stay robust on slow machines.
	if d := stamps[1].Sub(stamps[0]); d < 35*time.Millisecond {
		t.Errorf("first retry came after %v, want >= 40ms", d)
	}
	if d := stamps[2].Sub(stamps[1]); d < 70*time.Millisecond {
		t.Errorf("second retry came after %v, want >= 80ms", d)
	}
}

func TestRunnerServesLastGoodOnFailure(t *testing.T) {
	healthy := true
	runner := NewRunner(func(ctx context.Context) (string, error) {
		if healthy {
			return "good", nil
		}
		return "", errors.New("down")
	}, RunnerOptions[string]{RetryCount: -1})
	defer runner.Close()

	runner.Run(context.Background())

	healthy = false
	state := runner.Run(context.Background())
	if state.Err == nil {
		t.Fatal("failure must surface the error")
	}
	if !state.HasData || state.Data != "good" || !state.Stale {
		t.Errorf("state = %+v, want stale last-good data", state)
	}
}

func TestRunnerFallback(t *testing.T) {
	fallback := []string{"cached offline"}
	runner := NewRunner(func(ctx context.Context) ([]string, error) {
		return nil, errors.New("down")
	}, RunnerOptions[[]string]{RetryCount: -1, Fallback: &fallback})
	defer runner.Close()

	state := runner.Run(context.Background())
	if !state.HasData || !state.Stale {
		t.Fatalf("state = %+v, want stale fallback", state)
	}
	if len(state.Data) != 1 || state.Data[0] != "cached offline" {
		t.Errorf("Data = %v", state.Data)
	}
}

func TestRunnerTimeout(t *testing.T) {
	runner := NewRunner(func(ctx context.Context) (int, error) {
		select {
		case <-time.After(time.Second):
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}, RunnerOptions[int]{RetryCount: -1, Timeout: 20 * time.Millisecond})
	defer runner.Close()

	state := runner.Run(context.Background())
	if state.Err == nil || !errors.Is(state.Err, ErrTimeout) {
		t.Errorf("Err = %v, want ErrTimeout", state.Err)
	}
}

func TestRunnerAbortLeavesStateUntouched(t *testing.T) {
	block := make(chan struct{})
	runner := NewRunner(func(ctx context.Context) (string, error) {
		select {
		case <-block:
			return "late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}, RunnerOptions[string]{RetryCount: -1})
	defer runner.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan State[string], 1)
	go func() { done <- runner.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	state := <-done

	if state.Err != nil {
		t.Errorf("aborted run must not set an error, got %v", state.Err)
	}
	if state.HasData {
		t.Error("aborted run must not fabricate data")
	}
	close(block)
}

func TestRunnerSupersession(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	runner := NewRunner(func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// First chain blocks until released, then reports a value that
			// must never become visible.
			select {
			case <-release:
				return "slow stale value", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return "fresh value", nil
	}, RunnerOptions[string]{RetryCount: -1})
	defer runner.Close()

	firstDone := make(chan State[string], 1)
	go func() { firstDone <- runner.Run(context.Background()) }()

	// Give the first chain time to enter its fetch, then supersede it.
	for atomic.LoadInt32(&calls) == 0 {
		time.Sleep(time.Millisecond)
	}
	state := runner.Run(context.Background())
	if state.Data != "fresh value" {
		t.Fatalf("second chain state = %+v", state)
	}

	close(release)
	<-firstDone

	final := runner.State()
	if final.Data != "fresh value" {
		t.Errorf("superseded chain overwrote state: %+v", final)
	}
}

func TestRunnerPoll(t *testing.T) {
	var calls int32
	runner := NewRunner(func(ctx context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}, RunnerOptions[int]{RetryCount: -1})
	defer runner.Close()

	stop := runner.Poll(context.Background(), 10*time.Millisecond)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&calls) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("poll never ticked twice")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stop()
	settled := atomic.LoadInt32(&calls)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got > settled+1 {
		t.Errorf("poll kept running after stop: %d -> %d", settled, got)
	}
}
