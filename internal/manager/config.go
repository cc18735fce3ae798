package manager

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"epmgr/internal/artifact"
	"epmgr/internal/classify"
	"epmgr/internal/generate"
	"epmgr/internal/registry"
	"epmgr/internal/runtime"
	"epmgr/internal/session"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
)

// tracerName is the instrumentation scope of manager spans.
const tracerName = "epmgr/internal/manager"

// Providers lists and acquires execution providers. *registry.Registry
// implements it.
type Providers interface {
	List(ctx context.Context) ([]registry.Device, error)
	EnsurePlatformProviders(ctx context.Context) error
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Providers Providers

	// Native runtimes; nil members make the matching operations fail with
	// a dependency-unavailable error.
	Compiler runtime.Compiler
	Sessions runtime.SessionOpener
	Models   runtime.ModelOpener

	// Base model file in classifier model folders.
	ModelFile string
	// Context window cap for language models (0 = model default).
	ContextLength int

	Labels    classify.Labels
	TopK      int
	RawScores bool

	SystemPrompt string
	MinLength    int
	MaxLength    int

	MaxQueueDepth int
	MaxWait       time.Duration

	Publisher EventPublisher
	Metrics   *Metrics
	Tracer    trace.Tracer
	Logger    *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		state:     StateIdle,
		providers: cfg.Providers,
		instances: make(map[Kind]*Instance),
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		log:       zerolog.Nop(),
		startTime: time.Now(),
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}
	// Apply defaults if unset
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	if m.providers == nil {
		m.providers = registry.New(registry.Config{Logger: &m.log})
	}

	m.cache = artifact.New(artifact.Config{
		ModelFile: cfg.ModelFile,
		Compiler:  cfg.Compiler,
		Logger:    &m.log,
		OnCompile: m.onCompile,
	})
	m.loader = session.NewLoader(session.Config{
		Sessions:      cfg.Sessions,
		Models:        cfg.Models,
		ContextLength: cfg.ContextLength,
		Logger:        &m.log,
	})
	m.classifier = classify.New(classify.Config{
		Labels:    cfg.Labels,
		TopK:      cfg.TopK,
		RawScores: cfg.RawScores,
		Logger:    &m.log,
	})
	m.generator = generate.New(generate.Config{
		SystemPrompt: cfg.SystemPrompt,
		MinLength:    cfg.MinLength,
		MaxLength:    cfg.MaxLength,
		Logger:       &m.log,
	})
	return m
}

func (m *Manager) onCompile(device string, d time.Duration, err error) {
	if err == nil {
		atomic.AddUint64(&m.compilesTotal, 1)
	}
	m.metrics.ObserveCompile(device, d, err)
}
