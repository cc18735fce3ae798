package classify

import (
	"errors"
	"fmt"
)

// BindError means the input tensor does not match the session's first input.
type BindError struct {
	Input string
	Err   error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind input %q: %v", e.Input, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// InferenceError means the native forward pass failed.
type InferenceError struct {
	Device string
	Err    error
}

func (e *InferenceError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("inference failed: %v", e.Err)
	}
	return fmt.Sprintf("inference on %s failed: %v", e.Device, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// IsBind reports whether err is an input binding failure.
func IsBind(err error) bool {
	var be *BindError
	return errors.As(err, &be)
}

// IsInference reports whether err is a native inference failure.
func IsInference(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie)
}
