package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	// ErrTimeout marks a single attempt that outlived its per-attempt budget.
	ErrTimeout = errors.New("query attempt timed out")

	// ErrAborted marks a chain canceled by supersession or teardown. It is
	// internal flow control: it never reaches visible state and is never
	// surfaced to callers as a query error.
	ErrAborted = errors.New("query aborted")
)

// FetchFunc loads a value. It should honor ctx cancellation; the runner
// enforces the attempt timeout either way.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// RunnerOptions tune a Runner. Zero values get the defaults noted per field.
type RunnerOptions[T any] struct {
	RetryCount int           // retries after the first attempt; default 3
	RetryDelay time.Duration // base backoff, doubled per retry; default 1s
	Timeout    time.Duration // per-attempt budget; default 10s
	Fallback   *T            // served stale when no attempt ever succeeded
	// Breaker optionally short-circuits attempts while the upstream is
	// known bad. Breaker rejections count as ordinary attempt failures.
	Breaker *gobreaker.CircuitBreaker[T]
}

// State is the visible result of the most recent completed chain.
type State[T any] struct {
	Data    T
	HasData bool
	Loading bool
	Err     error
	// Stale is true when Data was served from the last-good value or the
	// configured fallback instead of a fresh fetch.
	Stale bool
}

// Runner executes a fetch with per-attempt timeout, exponential backoff and
// supersession: starting a new chain cancels the previous one, and a
// superseded chain's eventual result never overwrites state.
type Runner[T any] struct {
	fetch FetchFunc[T]
	opts  RunnerOptions[T]

	mu     sync.Mutex
	state  State[T]
	last   *T // last successful value across this instance's lifetime
	gen    uint64
	cancel context.CancelFunc
}

// NewRunner creates a Runner for fetch.
func NewRunner[T any](fetch FetchFunc[T], opts RunnerOptions[T]) *Runner[T] {
	// RetryCount 0 takes the default; pass a negative count to disable retries.
	if opts.RetryCount == 0 {
		opts.RetryCount = 3
	} else if opts.RetryCount < 0 {
		opts.RetryCount = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Runner[T]{fetch: fetch, opts: opts}
}

// Run executes a full attempt chain and returns the resulting state.
// A Run started while a previous chain is still in flight supersedes it:
// the older chain is canceled and its result, even if it completes later,
// is discarded.
func (r *Runner[T]) Run(ctx context.Context) State[T] {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	if r.cancel != nil {
		r.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.state.Loading = true
	r.mu.Unlock()

	data, err := r.attempt(runCtx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen {
		cancel()
		return r.state
	}
	cancel()
	r.cancel = nil
	r.state.Loading = false

	if err == nil {
		value := data
		r.last = &value
		r.state.Data = data
		r.state.HasData = true
		r.state.Stale = false
		r.state.Err = nil
		return r.state
	}

	if errors.Is(err, ErrAborted) {
		// Torn down mid-chain; visible state stays as it was.
		return r.state
	}

	r.state.Err = err
	switch {
	case r.last != nil:
		r.state.Data = *r.last
		r.state.HasData = true
		r.state.Stale = true
	case r.opts.Fallback != nil:
		r.state.Data = *r.opts.Fallback
		r.state.HasData = true
		r.state.Stale = true
	}
	return r.state
}

// State returns the current visible state.
func (r *Runner[T]) State() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Poll re-runs the chain every interval until the returned stop function or
// ctx cancels it. Each tick is an independent full attempt chain, still
// subject to supersession by explicit Run calls.
func (r *Runner[T]) Poll(ctx context.Context, interval time.Duration) (stop func()) {
	pollCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				r.Run(pollCtx)
			}
		}
	}()
	return cancel
}

// Close cancels any in-flight chain. Its pending timers and fetches are
// released and can no longer write state.
func (r *Runner[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.state.Loading = false
}

// attempt runs the retry chain: first attempt immediately, then up to
// RetryCount retries with delay RetryDelay * 2^n before retry n.
func (r *Runner[T]) attempt(ctx context.Context) (T, error) {
	var zero T
	var lastErr error

	for i := 0; i <= r.opts.RetryCount; i++ {
		if i > 0 {
			if err := sleepCtx(ctx, r.opts.RetryDelay<<(i-1)); err != nil {
				return zero, err
			}
		}
		if ctx.Err() != nil {
			return zero, ErrAborted
		}

		data, err := r.once(ctx)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, ErrAborted) {
			return zero, err
		}
		lastErr = err
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", r.opts.RetryCount+1, lastErr)
}

// once runs one attempt racing the fetch against the per-attempt timeout.
// The fetch goroutine may linger after a timeout; its result goes to a
// buffered channel nobody reads, so it cannot block or write state.
func (r *Runner[T]) once(ctx context.Context) (T, error) {
	var zero T
	attemptCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	type outcome struct {
		data T
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := r.execute(attemptCtx)
		done <- outcome{data: data, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			return zero, ErrAborted
		}
		return res.data, res.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return zero, ErrAborted
		}
		return zero, ErrTimeout
	}
}

func (r *Runner[T]) execute(ctx context.Context) (T, error) {
	if r.opts.Breaker != nil {
		return r.opts.Breaker.Execute(func() (T, error) {
			return r.fetch(ctx)
		})
	}
	return r.fetch(ctx)
}

// sleepCtx waits for d or until ctx is canceled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ErrAborted
	}
}
