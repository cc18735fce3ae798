package session

import (
	"errors"
	"fmt"
)

// LoadError reports that a model could not be instantiated on a device.
type LoadError struct {
	Device string
	Path   string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s on %s: %v", e.Path, e.Device, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsLoad reports whether err is a load failure.
func IsLoad(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
