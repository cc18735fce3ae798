package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"epmgr/internal/artifact"
	"epmgr/internal/classify"
	"epmgr/internal/generate"
	"epmgr/internal/registry"
	"epmgr/internal/session"
)

// Manager is the caller-held execution context: a selected device plus at
// most one classifier and one generator bound to it. Several managers may
// coexist; they share nothing.
type Manager struct {
	mu        sync.RWMutex
	state     State
	device    *registry.Device
	instances map[Kind]*Instance
	err       string

	// loadMu serializes device selection, loads and unloads.
	loadMu sync.Mutex

	providers  Providers
	cache      *artifact.Cache
	loader     *session.Loader
	classifier *classify.Engine
	generator  *generate.Engine

	publisher EventPublisher
	metrics   *Metrics
	tracer    trace.Tracer
	log       zerolog.Logger

	// Queue config
	maxQueueDepth int
	maxWait       time.Duration

	startTime     time.Time
	compilesTotal uint64
	loadsTotal    uint64
}

// New returns a Manager over providers with package defaults and no native
// runtimes.
func New(providers Providers) *Manager {
	return NewWithConfig(ManagerConfig{Providers: providers})
}

// Cache returns the artifact cache used for compiles.
func (m *Manager) Cache() *artifact.Cache { return m.cache }

// Bounds returns the generation token bounds.
func (m *Manager) Bounds() (minLen, maxLen int) { return m.generator.Bounds() }

// Ready reports whether any context is loaded and ready.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inst := range m.instances {
		if inst.State == StateReady {
			return true
		}
	}
	return false
}

// Devices lists the providers available now. Every call takes a fresh
// snapshot.
func (m *Manager) Devices(ctx context.Context) ([]registry.Device, error) {
	return m.providers.List(ctx)
}

// EnsureProviders acquires platform providers. New devices show up on the
// next Devices call.
func (m *Manager) EnsureProviders(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "manager.ensure_providers")
	defer span.End()
	start := time.Now()
	err := m.providers.EnsurePlatformProviders(ctx)
	if err != nil {
		m.fail(span, err)
		return err
	}
	m.publisher.Publish(Event{Name: EventProvidersEnsured, Fields: map[string]any{"dur": time.Since(start)}})
	return nil
}

// Selected returns the selected device.
func (m *Manager) Selected() (registry.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.device == nil {
		return registry.Device{}, false
	}
	return *m.device, true
}

// SelectDevice makes name the device for subsequent loads. Switching to a
// different device first drains and closes every loaded context.
func (m *Manager) SelectDevice(ctx context.Context, name string) (registry.Device, error) {
	devs, err := m.providers.List(ctx)
	if err != nil {
		return registry.Device{}, err
	}
	dev, ok := registry.Find(devs, name)
	if !ok {
		return registry.Device{}, deviceNotFoundError{name: name}
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	m.mu.Lock()
	changed := m.device == nil || m.device.Name != dev.Name
	m.device = &dev
	var old []*Instance
	if changed {
		for _, inst := range m.instances {
			old = append(old, inst)
		}
	}
	m.mu.Unlock()
	for _, inst := range old {
		m.drain(inst)
	}
	m.refreshState()
	m.log.Info().Str("device", dev.Name).Bool("changed", changed).Msg("manager event=device_selected")
	m.publisher.Publish(Event{Name: EventDeviceSelected, Device: dev.Name})
	return dev, nil
}

func (m *Manager) selected() (registry.Device, error) {
	dev, ok := m.Selected()
	if !ok {
		return registry.Device{}, noDeviceError{}
	}
	return dev, nil
}

// refreshState derives the manager state from its contexts.
func (m *Manager) refreshState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := StateIdle
	for _, inst := range m.instances {
		switch inst.State {
		case StateLoading:
			st = StateLoading
		case StateReady:
			if st != StateLoading {
				st = StateReady
			}
		}
	}
	m.state = st
}

func (m *Manager) recordErr(err error) {
	m.mu.Lock()
	m.err = err.Error()
	m.mu.Unlock()
}

func (m *Manager) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	m.recordErr(err)
}

func deviceAttr(name string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String("epmgr.device", name))
}

// Close drains and closes every loaded context.
func (m *Manager) Close() error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	m.mu.Lock()
	var all []*Instance
	for _, inst := range m.instances {
		all = append(all, inst)
	}
	m.mu.Unlock()
	var firstErr error
	for _, inst := range all {
		if err := m.drain(inst); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.refreshState()
	return firstErr
}
