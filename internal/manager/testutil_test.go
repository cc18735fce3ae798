package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"epmgr/internal/registry"
	"epmgr/internal/runtime/runtimetest"
)

var (
	cpuDevice      = registry.Device{Name: registry.CPUProviderName, Vendor: "GenuineIntel"}
	openvinoDevice = registry.Device{Name: "OpenVINOExecutionProvider", Vendor: "Intel"}
)

// fakeProviders is a static device list.
type fakeProviders struct {
	mu        sync.Mutex
	devices   []registry.Device
	listErr   error
	ensureErr error
	ensured   int
}

func (p *fakeProviders) List(ctx context.Context) ([]registry.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	return append([]registry.Device(nil), p.devices...), nil
}

func (p *fakeProviders) EnsurePlatformProviders(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensured++
	return p.ensureErr
}

// fixture bundles a manager and the fakes behind it.
type fixture struct {
	m         *Manager
	providers *fakeProviders
	sessions  *runtimetest.SessionOpener
	session   *runtimetest.Session
	models    *runtimetest.ModelOpener
	model     *runtimetest.Model
	compiler  *runtimetest.Compiler
	events    *MemoryPublisher
}

func newFixture(t *testing.T, mutate func(*ManagerConfig)) *fixture {
	t.Helper()
	f := &fixture{
		providers: &fakeProviders{devices: []registry.Device{cpuDevice, openvinoDevice}},
		session:   runtimetest.NewClassifier([]int64{1, 3, 2, 2}, []float32{0.1, 2.5, 0.3}),
		model:     &runtimetest.Model{Pieces: []string{"Hel", "lo", " there"}},
		compiler:  &runtimetest.Compiler{},
		events:    NewMemoryPublisher(),
	}
	f.sessions = &runtimetest.SessionOpener{Session: f.session}
	f.models = &runtimetest.ModelOpener{Model: f.model}
	cfg := ManagerConfig{
		Providers:     f.providers,
		Compiler:      f.compiler,
		Sessions:      f.sessions,
		Models:        f.models,
		Labels:        []string{"tench", "goldfish", "great white shark"},
		MinLength:     1,
		MaxLength:     10,
		MaxQueueDepth: 2,
		MaxWait:       50 * time.Millisecond,
		Publisher:     f.events,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.m = NewWithConfig(cfg)
	t.Cleanup(func() { _ = f.m.Close() })
	return f
}

// classifierFolder creates a model folder holding the base model file name.
func classifierFolder(t *testing.T, name string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("onnx"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return dir
}

// generatorFolder creates a model folder with a genai_config.json.
func generatorFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `{"model": {"type": "phi3", "context_length": 4096}}`
	if err := os.WriteFile(filepath.Join(dir, "genai_config.json"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write genai_config: %v", err)
	}
	return dir
}

func input() []float32 { return make([]float32, 12) }

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

var errBoom = errors.New("boom")
