// Package scheduler runs deferred work that must finish after the request
// that triggered it has returned.
//
// A Scheduler never drops a task. Task failures and panics are reported to an
// ErrorHandler and never reach the caller that scheduled the task.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Task is a unit of deferred work. The context is detached from the request
// that scheduled it.
type Task func(ctx context.Context) error

type Scheduler interface {
	Schedule(name string, t Task)
}

// ErrorHandler receives the failure of a named task.
type ErrorHandler func(name string, err error)

// PanicError is reported when a task panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("task panicked: %v", e.Value) }

func run(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return t(ctx)
}

func report(h ErrorHandler, name string, err error) {
	if err != nil && h != nil {
		h(name, err)
	}
}

type ctxKey struct{}

// NewContext returns a context that carries s. Engines consult FromContext
// before their default scheduler, so a request can route its deferred work to
// a scheduler it owns and waits on.
func NewContext(ctx context.Context, s Scheduler) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Scheduler, bool) {
	s, ok := ctx.Value(ctxKey{}).(Scheduler)
	return s, ok && s != nil
}

// Inline runs each task synchronously inside Schedule.
type Inline struct {
	OnError ErrorHandler
}

var _ Scheduler = Inline{}

func (s Inline) Schedule(name string, t Task) {
	report(s.OnError, name, run(context.Background(), t))
}
