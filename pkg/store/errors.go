package store

import "fmt"

// NotFoundError is returned when a path does not exist or cannot be read.
type NotFoundError struct {
	Path string
}

func (e NotFoundError) Error() string {
	return "file not found"
}

// ConflictError is returned when no free name could be found for a destination,
// or when an operation would clobber a protected path.
type ConflictError struct {
	Path string
}

func (e ConflictError) Error() string {
	return "file already exists"
}

// IOError wraps an underlying filesystem failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e IOError) Unwrap() error {
	return e.Err
}

// StreamAbortedError is returned when the source of an upload failed before
// it was fully consumed. The destination is left untouched.
type StreamAbortedError struct {
	Path string
	Err  error
}

func (e StreamAbortedError) Error() string {
	return fmt.Sprintf("upload stream aborted: %v", e.Err)
}

func (e StreamAbortedError) Unwrap() error {
	return e.Err
}
