package registry

import (
	"errors"
	"strings"
)

// AcquisitionError reports that discovering, downloading or registering
// platform providers did not complete.
type AcquisitionError struct {
	// Manifests left half-written by the installer, if any.
	Incomplete []string
	Err        error
}

func (e *AcquisitionError) Error() string {
	var b strings.Builder
	b.WriteString("provider acquisition failed")
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Incomplete) > 0 {
		b.WriteString(" (incomplete: ")
		b.WriteString(strings.Join(e.Incomplete, ", "))
		b.WriteString(")")
	}
	return b.String()
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// IsAcquisition reports whether err is a provider acquisition failure.
func IsAcquisition(err error) bool {
	var ae *AcquisitionError
	return errors.As(err, &ae)
}
