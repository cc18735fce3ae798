package manager

// Event represents a manager lifecycle event.
// Minimal and stable: name + device and optional fields via key/values.
type Event struct {
	Name   string
	Device string
	Fields map[string]any
}

// Event names.
const (
	EventDeviceSelected   = "device_selected"
	EventProvidersEnsured = "providers_ensured"
	EventCompileDone      = "compile_done"
	EventCompileFailed    = "compile_failed"
	EventLoadStart        = "load_start"
	EventLoadReady        = "load_ready"
	EventLoadFailed       = "load_failed"
	EventUnload           = "unload"
	EventClassifyDone     = "classify_done"
	EventGenerateStart    = "generate_start"
	EventGenerateDone     = "generate_done"
)

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
