package slogx

import (
	"fmt"
	"log/slog"
	"time"
)

// Error returns a slog.Attr with the key "error" and the error's message
// as its value.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Stringer returns a slog.Attr holding the string representation of the
// given fmt.Stringer.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// Duration returns a slog.Attr holding the duration formatted with its
// natural unit, rather than as raw nanoseconds.
func Duration(key string, value time.Duration) slog.Attr {
	return slog.String(key, value.String())
}
