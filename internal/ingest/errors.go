package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrListenerFault     = errors.New("ingest: listener fault")
	ErrSupervisorRunning = errors.New("ingest: supervisor already running")
	ErrListenerRunning   = errors.New("ingest: listener already running")
	ErrRestartLimit      = errors.New("ingest: restart limit reached")
)

// FaultError is a loop-fatal listener failure. Op names the failing step:
// bind, accept or process.
type FaultError struct {
	Op   string
	Addr string
	Err  error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("ingest: listener %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

func (e *FaultError) Is(target error) bool {
	return target == ErrListenerFault
}
