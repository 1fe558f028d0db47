// Package logx holds the small logging surface shared by the packages of this module.
package logx

import (
	"io"
	"log"
)

type Logger interface {
	Println(v ...any)
	Printf(format string, v ...any)
	Print(v ...any)
}

type discard struct{}

// Println replicates the behaviour of the standard logger.
func (t discard) Println(v ...any) {
}

func (t discard) Printf(format string, v ...any) {
}

func (t discard) Print(v ...any) {
}

// Discard drops everything written to it.
func Discard() Logger {
	return discard{}
}

// New logger writing to w with the given prefix, a nil writer discards.
func New(w io.Writer, prefix string) Logger {
	if w == nil {
		return discard{}
	}

	return log.New(w, prefix, log.Flags())
}

// Verbose selects between the provided logger and discard.
func Verbose(enabled bool, l Logger) Logger {
	if enabled {
		return l
	}

	return discard{}
}
