package artifact

import (
	"errors"
	"fmt"
)

// CompilationError reports that a device-specific artifact could not be
// produced. No artifact exists at Path afterwards.
type CompilationError struct {
	Device string
	Path   string
	Err    error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compile %s for %s: %v", e.Path, e.Device, e.Err)
}

func (e *CompilationError) Unwrap() error { return e.Err }

// IsCompilation reports whether err is a compilation failure.
func IsCompilation(err error) bool {
	var ce *CompilationError
	return errors.As(err, &ce)
}
