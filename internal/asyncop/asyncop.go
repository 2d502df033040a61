// Package asyncop runs one long operation on its own goroutine and reports
// progress and the terminal outcome to whoever started it.
package asyncop

import (
	"context"
	"errors"
	"sync"
)

type EventKind int

const (
	EventProgress EventKind = iota
	EventCompleted
	EventCancelled
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// Progress describes how far the operation got.
type Progress struct {
	Step      string
	Completed int
	Total     int
}

// Event is delivered on Operation.Events. Exactly one terminal event
// (Completed, Cancelled or Failed) is sent, after which the channel is closed.
type Event[T any] struct {
	Kind     EventKind
	Progress Progress
	Result   T
	Err      error
}

// ReportFunc is handed to the running function to publish progress.
type ReportFunc func(Progress)

const eventBuffer = 32

type Operation[T any] struct {
	events chan Event[T]
	done   chan struct{}
	cancel context.CancelFunc

	mu     sync.Mutex
	result T
	err    error
	state  EventKind
}

// Start runs fn on a new goroutine. Cancelling ctx or calling Cancel asks fn to stop;
// whether it does is up to fn.
func Start[T any](ctx context.Context, fn func(ctx context.Context, report ReportFunc) (T, error)) *Operation[T] {
	ctx, cancel := context.WithCancel(ctx)
	op := &Operation[T]{
		events: make(chan Event[T], eventBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
		state:  EventProgress,
	}
	go op.run(ctx, fn)
	return op
}

func (op *Operation[T]) run(ctx context.Context, fn func(ctx context.Context, report ReportFunc) (T, error)) {
	defer op.cancel()
	defer close(op.done)
	defer close(op.events)

	var (
		result T
		err    error
	)
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = &PanicError{Value: p}
			}
		}()
		result, err = fn(ctx, op.report)
	}()

	kind := EventCompleted
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		kind = EventCancelled
	default:
		kind = EventFailed
	}

	op.mu.Lock()
	op.result, op.err, op.state = result, err, kind
	op.mu.Unlock()

	// One slot is always kept free for the terminal event.
	op.events <- Event[T]{Kind: kind, Result: result, Err: err}
}

func (op *Operation[T]) report(p Progress) {
	if len(op.events) >= cap(op.events)-1 {
		return // drop progress rather than block the worker
	}
	op.events <- Event[T]{Kind: EventProgress, Progress: p}
}

// Events streams progress and the terminal event. Reading it is optional.
func (op *Operation[T]) Events() <-chan Event[T] {
	return op.events
}

// Done is closed once the operation finished.
func (op *Operation[T]) Done() <-chan struct{} {
	return op.done
}

// Cancel requests cancellation.
func (op *Operation[T]) Cancel() {
	op.cancel()
}

// Wait blocks until the operation finishes and returns its outcome.
func (op *Operation[T]) Wait() (T, error) {
	<-op.done
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.result, op.err
}

// State is EventProgress while running, then the terminal kind.
func (op *Operation[T]) State() EventKind {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}

// PanicError wraps a panic raised by the operation function.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "asyncop: operation panicked"
}
