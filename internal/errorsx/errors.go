// Package errorsx extends the standard errors package with wrapping helpers
// that record the calling frame.
package errorsx

import (
	"errors"
	"fmt"
	"log"

	"golang.org/x/xerrors"
)

// New error with a recorded frame.
func New(msg string) error {
	return xerrors.New(msg)
}

// Errorf formats an error, %w verbs are wrapped.
func Errorf(format string, args ...any) error {
	return xerrors.Errorf(format, args...)
}

// Wrap annotates the error with a message, nil errors stay nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}

	return xerrors.Errorf("%s: %w", msg, err)
}

// Wrapf annotates the error with a formatted message, nil errors stay nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithStack records the calling frame without changing the message.
func WithStack(err error) error {
	if err == nil {
		return nil
	}

	return stacked{error: err, frame: xerrors.Caller(1)}
}

type stacked struct {
	error
	frame xerrors.Frame
}

func (t stacked) Unwrap() error {
	return t.error
}

func (t stacked) FormatError(p xerrors.Printer) error {
	p.Print(t.error.Error())
	t.frame.Format(p)
	return nil
}

func (t stacked) Format(s fmt.State, verb rune) {
	xerrors.FormatError(t, s, verb)
}

// Log the error if present, returns the error unchanged.
func Log(err error) error {
	if err != nil {
		log.Output(2, err.Error())
	}

	return err
}

// Ignore returns nil if the error matches any of the provided targets.
func Ignore(err error, targets ...error) error {
	for _, t := range targets {
		if errors.Is(err, t) {
			return nil
		}
	}

	return err
}

// Compact returns the first non-nil error.
func Compact(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}
