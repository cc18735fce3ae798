package generate

import (
	"errors"
	"fmt"
)

// EncodeError means the prompt could not be templated, tokenized or fed to
// the generator.
type EncodeError struct {
	Stage string // template, encode or append
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode prompt (%s): %v", e.Stage, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError means a generated token could not be mapped to text. It ends
// the generation.
type DecodeError struct {
	Token int32
	Step  int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode token %d at step %d: %v", e.Token, e.Step, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StepError means the native generator failed to produce a token.
type StepError struct {
	Step int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("generation step %d: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// IsEncode reports whether err is a prompt encoding failure.
func IsEncode(err error) bool {
	var ee *EncodeError
	return errors.As(err, &ee)
}

// IsDecode reports whether err is a token decoding failure.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsStep reports whether err is a native generation step failure.
func IsStep(err error) bool {
	var se *StepError
	return errors.As(err, &se)
}
