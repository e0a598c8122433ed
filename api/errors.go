package api

import (
	"errors"
	"fmt"
)

// ErrStopping is returned when a unit could not be registered because its
// session is already winding down. The unit never ran.
var ErrStopping = errors.New("session is stopping")

// ErrStreamClosed is returned by stream operations on a closed stream.
var ErrStreamClosed = errors.New("stream is closed")

// StopError marks a cooperative stop. A unit that unwound because it was
// asked to stop reports StateStopped, never StateFailed, and StopError is
// the failure value recorded on its completion signal.
type StopError struct {
	// BeforeStart is true when the unit was rejected before it ever ran.
	BeforeStart bool
}

func (e StopError) Error() string {
	if e.BeforeStart {
		return "execution stopped before start"
	}
	return "execution stopped"
}

// IsStop reports whether err is a cooperative stop outcome, including a
// start rejection.
func IsStop(err error) bool {
	var se StopError
	return errors.As(err, &se) || errors.Is(err, ErrStopping)
}

// ExitError is raised by a unit asking the hosting process, or an
// enclosing nested context, to terminate. It carries the requested exit
// code and is not a failure: the executor translates it into a host
// notification instead of recording it on the unit.
type ExitError struct {
	Code int
}

func (e ExitError) Error() string {
	return fmt.Sprintf("exit requested with code %d", e.Code)
}
