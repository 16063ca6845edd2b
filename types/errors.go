package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when a caller violates a precondition.
	// It never moves a state machine into its error state.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState is an ErrInvalidArgument: the operation is not
	// allowed in the current state of the object.
	ErrInvalidState = fmt.Errorf("%w: not allowed in the current state", ErrInvalidArgument)

	// ErrRuntime is an internal inconsistency or an unexpected failure.
	ErrRuntime = errors.New("runtime error")

	// ErrNotFound is returned when a named entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNative matches any *NativeError.
	ErrNative = errors.New("native library failure")
)

// NativeError carries a return code of the native library.
type NativeError struct {
	Op      string
	Code    int
	Message string
}

var _ error = (*NativeError)(nil)

func NewNativeError(op string, code int, message string) *NativeError {
	return &NativeError{
		Op:      op,
		Code:    code,
		Message: message,
	}
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("%s: native error %d: %s", e.Op, e.Code, e.Message)
}

func (e *NativeError) Is(target error) bool {
	return target == ErrNative
}

func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func Runtimef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRuntime, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
