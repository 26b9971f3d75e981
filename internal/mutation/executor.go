// Package mutation wraps single state-changing calls with a deterministic
// lifecycle: OnMutate, the call itself, exactly one of OnSuccess/OnError,
// then OnSettled.
package mutation

import (
	"context"
	"sync"
)

// Status of the most recent invocation.
const (
	StatusIdle    = "idle"
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Executor runs one logical mutation. Invocations are not deduplicated;
// the caller disables the triggering control while Status() == pending.
type Executor[I, R any] struct {
	// Run performs the remote call. Required.
	Run func(ctx context.Context, input I) (R, error)

	// OnMutate runs synchronously before Run. Its return value is handed
	// to OnError on failure (the optimistic snapshot lives here). An error
	// from OnMutate aborts the invocation without calling Run.
	OnMutate func(ctx context.Context, input I) (any, error)

	// OnSuccess and OnError are mutually exclusive per invocation.
	OnSuccess func(ctx context.Context, result R, input I)
	OnError   func(ctx context.Context, err error, input I, onMutateResult any)

	// OnSettled always runs last, regardless of outcome.
	OnSettled func(ctx context.Context, input I)

	mu     sync.Mutex
	status string
}

// Status reports idle until the first invocation.
func (e *Executor[I, R]) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == "" {
		return StatusIdle
	}
	return e.status
}

func (e *Executor[I, R]) setStatus(s string) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// Mutate executes one invocation through the full lifecycle.
func (e *Executor[I, R]) Mutate(ctx context.Context, input I) (R, error) {
	var zero R
	e.setStatus(StatusPending)
	if e.OnSettled != nil {
		defer e.OnSettled(ctx, input)
	}

	var onMutateResult any
	if e.OnMutate != nil {
		res, err := e.OnMutate(ctx, input)
		if err != nil {
			e.setStatus(StatusError)
			if e.OnError != nil {
				e.OnError(ctx, err, input, nil)
			}
			return zero, err
		}
		onMutateResult = res
	}

	result, err := e.Run(ctx, input)
	if err != nil {
		e.setStatus(StatusError)
		if e.OnError != nil {
			e.OnError(ctx, err, input, onMutateResult)
		}
		return zero, err
	}

	e.setStatus(StatusSuccess)
	if e.OnSuccess != nil {
		e.OnSuccess(ctx, result, input)
	}
	return result, nil
}
