package manager

import (
	"errors"

	"github.com/containerd/errdefs"
)

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ kind Kind }

func (e tooBusyError) Error() string { return "too busy: " + string(e.kind) }

func (tooBusyError) Unwrap() error { return errdefs.ErrResourceExhausted }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

type deviceNotFoundError struct{ name string }

func (e deviceNotFoundError) Error() string { return "device not found: " + e.name }

func (deviceNotFoundError) Unwrap() error { return errdefs.ErrNotFound }

// IsDeviceNotFound reports whether a requested device is not registered.
func IsDeviceNotFound(err error) bool {
	var e deviceNotFoundError
	return errors.As(err, &e)
}

type noDeviceError struct{}

func (noDeviceError) Error() string { return "no device selected" }

func (noDeviceError) Unwrap() error { return errdefs.ErrFailedPrecondition }

// IsNoDevice reports whether an operation needed a selected device.
func IsNoDevice(err error) bool {
	var e noDeviceError
	return errors.As(err, &e)
}

type notLoadedError struct{ kind Kind }

func (e notLoadedError) Error() string { return string(e.kind) + " not loaded" }

func (notLoadedError) Unwrap() error { return errdefs.ErrFailedPrecondition }

// IsNotLoaded reports whether the requested context is not loaded, or was
// unloaded while the request waited.
func IsNotLoaded(err error) bool {
	var e notLoadedError
	return errors.As(err, &e)
}

type invalidKindError struct{ kind string }

func (e invalidKindError) Error() string { return "invalid context kind: " + e.kind }

func (invalidKindError) Unwrap() error { return errdefs.ErrInvalidArgument }
