// Package cstate runs state machines where every state decides its successor.
package cstate

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
)

type logger interface {
	Println(v ...any)
	Printf(format string, v ...any)
	Print(v ...any)
}

// Shared is handed to every state by Run.
type Shared struct {
	done  context.CancelCauseFunc
	cause error
	log   logger
}

func (t *Shared) finish(cause error) {
	t.cause = cause
	t.done(cause)
}

// T is a single state, Update performs its work and returns the next state.
// returning nil stops the machine.
type T interface {
	Update(context.Context, *Shared) T
}

// Failure stops the machine with the provided cause.
func Failure(cause error) failed {
	return failed{cause: cause}
}

type failed struct {
	cause error
}

func (t failed) Update(ctx context.Context, c *Shared) T {
	c.finish(t.cause)
	return nil
}

func (t failed) String() string {
	return fmt.Sprintf("%T - %s", t, t.cause)
}

// Warning logs the cause and proceeds to next.
func Warning(next T, cause error) warning {
	return warning{next: next, cause: cause}
}

type warning struct {
	cause error
	next  T
}

func (t warning) Update(ctx context.Context, c *Shared) T {
	c.log.Println("[warning]", t.cause)
	return t.next
}

func (t warning) String() string {
	return fmt.Sprintf("%T - %T", t, t.cause)
}

// Halt stops the machine successfully.
func Halt() halt {
	return halt{}
}

type halt struct{}

func (t halt) Update(ctx context.Context, c *Shared) T {
	c.finish(nil)
	return nil
}

func (t halt) String() string {
	return "halt"
}

func Fn(fn fn) fn {
	return fn
}

type fn func(context.Context, *Shared) T

func (t fn) Update(ctx context.Context, s *Shared) T {
	return t(ctx, s)
}

func (t fn) String() string {
	pc := reflect.ValueOf(t).Pointer()
	info := runtime.FuncForPC(pc)
	fname, line := info.FileLine(pc)
	return fmt.Sprintf("%s:%d", fname, line)
}

// Run drives s until a state returns nil or the context is cancelled.
// the result is the cause given to Failure, nil after Halt.
func Run(ctx context.Context, s T, l logger) error {
	ctx, cancelled := context.WithCancelCause(ctx)
	defer cancelled(nil)

	var (
		m = Shared{
			done: cancelled,
			log:  l,
		}
	)

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		default:
			l.Printf("%s - %T\n", s, s)
			s = s.Update(ctx, &m)
		}

		if s == nil {
			return m.cause
		}
	}
}
