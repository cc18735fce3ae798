package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"epmgr/internal/classify"
	"epmgr/internal/httpapi"
	"epmgr/internal/manager"
	"epmgr/internal/registry"
	"epmgr/internal/runtime/runtimetest"
)

// stack is one service wired from real components over scripted runtimes.
type stack struct {
	srv      *httptest.Server
	mgr      *manager.Manager
	models   string
	session  *runtimetest.Session
	model    *runtimetest.Model
	compiler *runtimetest.Compiler
}

// newStack registers an OpenVINO manifest next to the CPU provider and
// serves the manager over httptest.
func newStack(t *testing.T, mutate func(*manager.ManagerConfig)) *stack {
	t.Helper()
	providers := t.TempDir()
	writeFile(t, filepath.Join(providers, "openvino.yaml"), "name: OpenVINOExecutionProvider\nvendor: Intel\nmetadata:\n  device_type: NPU\n")

	st := &stack{
		models:   t.TempDir(),
		session:  runtimetest.NewClassifier([]int64{1, 3, 2, 2}, []float32{0.1, 2.5, 0.3}),
		model:    &runtimetest.Model{Pieces: []string{"Hel", "lo", " there"}},
		compiler: &runtimetest.Compiler{},
	}
	cfg := manager.ManagerConfig{
		Providers: registry.New(registry.Config{
			ProvidersDir: providers,
			Probe:        func() (string, map[string]string) { return "GenuineIntel", nil },
		}),
		Compiler:      st.compiler,
		Sessions:      &runtimetest.SessionOpener{Session: st.session},
		Models:        &runtimetest.ModelOpener{Model: st.model},
		ModelFile:     "model.onnx",
		Labels:        classify.Labels{"tench", "goldfish", "great white shark"},
		TopK:          2,
		MinLength:     1,
		MaxLength:     10,
		MaxQueueDepth: 2,
		MaxWait:       50 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	st.mgr = manager.NewWithConfig(cfg)
	t.Cleanup(func() { _ = st.mgr.Close() })

	st.srv = httptest.NewServer(httpapi.NewMux(st.mgr, httpapi.Options{ModelsDir: st.models}))
	t.Cleanup(st.srv.Close)
	return st
}

// classifierFolder creates models/<name>/model.onnx and returns name.
func (st *stack) classifierFolder(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(st.models, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "model.onnx"), "onnx")
	return name
}

// generatorFolder creates models/<name>/genai_config.json and returns name.
func (st *stack) generatorFolder(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(st.models, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "genai_config.json"), `{"model": {"type": "phi3", "context_length": 4096}}`)
	return name
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
