package host

import (
	"errors"
	"fmt"
)

var (
	ErrModuleNotFound    = errors.New("module not found")
	ErrAttributeNotFound = errors.New("attribute not found")
	ErrNotCallable       = errors.New("object is not callable")
	ErrUnhashable        = errors.New("unhashable type")
	ErrBadArguments      = errors.New("bad arguments")
	ErrKeyTooLarge       = errors.New("key too large to hash")
)

// ResolveError reports a failed module.name lookup.
type ResolveError struct {
	Module string
	Name   string
	Err    error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s.%s: %s", e.Module, e.Name, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

func badArgs(callee string, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", callee, ErrBadArguments, fmt.Sprintf(format, args...))
}
