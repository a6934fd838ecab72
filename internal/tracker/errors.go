package tracker

import (
	"fmt"
)

// StartupError is returned by Start when the tracker could not be brought up.
// The tracker does not exist in that case and nothing needs to be stopped.
type StartupError struct {
	Stage string // "context", "enumerate", "hook" or "monitor" (panic before ready)
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("window tracker startup failed during %s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// MonitorPanicError reports that the monitor goroutine terminated abnormally.
type MonitorPanicError struct {
	Value any
	Stack []byte
}

func (e *MonitorPanicError) Error() string {
	return fmt.Sprintf("window monitor panicked: %v", e.Value)
}
