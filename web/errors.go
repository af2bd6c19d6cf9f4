package web

import "fmt"

// StageError is a fault raised by a pipeline module, annotated with the
// module's label and the stage category it ran in.
type StageError struct {
	Module string
	Stage  CompletionFlag
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("web: module %s (%s stage): %v", e.Module, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FatalError wraps a fault that occurred after error recovery had already
// run. It is never recovered and surfaces from Execute.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("web: unrecoverable fault after error handling: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
