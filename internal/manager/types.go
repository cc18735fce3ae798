package manager

import (
	"errors"
	"time"

	"epmgr/internal/registry"
	"epmgr/internal/session"
)

// State represents lifecycle state of the manager and its contexts.
type State string

const (
	StateIdle     State = "idle"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateDraining State = "draining"
	StateError    State = "error"
)

// Kind names the two execution contexts a manager can hold.
type Kind string

const (
	KindClassifier Kind = "classifier"
	KindGenerator  Kind = "generator"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindClassifier, KindGenerator:
		return Kind(s), nil
	}
	return "", invalidKindError{kind: s}
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State  State
	Device string
	Err    string
}

// Instance is a live execution context bound to one device.
type Instance struct {
	Kind     Kind
	Device   registry.Device
	Path     string
	Compiled bool
	State    State
	LastUsed time.Time
	// Queueing primitives
	genCh   chan struct{} // size 1: single in-flight call
	queueCh chan struct{} // buffered: queue slots

	sess  *session.Session
	model *session.TextModel
}

func newInstance(kind Kind, dev registry.Device, path string, queueDepth int) *Instance {
	return &Instance{
		Kind:    kind,
		Device:  dev,
		Path:    path,
		State:   StateLoading,
		genCh:   make(chan struct{}, 1),
		queueCh: make(chan struct{}, queueDepth),
	}
}

// close releases the native context. Callers must hold the in-flight slot.
func (inst *Instance) close() error {
	var errs []error
	if inst.sess != nil {
		errs = append(errs, inst.sess.Close())
	}
	if inst.model != nil {
		errs = append(errs, inst.model.Close())
	}
	return errors.Join(errs...)
}

// LoadInfo describes a context after a successful load.
type LoadInfo struct {
	Kind     Kind
	Device   string
	Path     string
	Compiled bool
	Duration time.Duration
}
