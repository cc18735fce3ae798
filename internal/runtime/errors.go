package runtime

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// dependencyUnavailableError signals a runtime that is not built into this
// binary or cannot be initialized on this host.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

func (e dependencyUnavailableError) Unwrap() error { return errdefs.ErrUnavailable }

// ErrDependencyUnavailable constructs a dependency-unavailable error.
func ErrDependencyUnavailable(format string, args ...any) error {
	return dependencyUnavailableError{msg: fmt.Sprintf(format, args...)}
}

// IsDependencyUnavailable reports whether err indicates a missing runtime.
func IsDependencyUnavailable(err error) bool {
	var de dependencyUnavailableError
	return errors.As(err, &de)
}
