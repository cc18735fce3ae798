package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
)

func writeManifest(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func staticProbe() (string, map[string]string) {
	return "GenuineIntel", map[string]string{"cpu_cores": "8"}
}

func TestLoadDir_AllFormatsInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "a-openvino.yaml", "name: OpenVINOExecutionProvider\nvendor: Intel\nmetadata:\n  device_type: NPU\n")
	writeManifest(t, dir, "b-qnn.json", `{"name":"QNNExecutionProvider","vendor":"Qualcomm"}`)
	writeManifest(t, dir, "c-vitis.toml", "name = \"VitisAIExecutionProvider\"\nvendor = \"AMD\"\n")
	writeManifest(t, dir, "notes.txt", "ignored")

	devs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"OpenVINOExecutionProvider", "QNNExecutionProvider", "VitisAIExecutionProvider"}
	if len(devs) != len(want) {
		t.Fatalf("expected %d devices, got %d (%+v)", len(want), len(devs), devs)
	}
	for i, w := range want {
		if devs[i].Name != w {
			t.Fatalf("device %d: expected %s got %s", i, w, devs[i].Name)
		}
	}
	if devs[0].Metadata["device_type"] != "NPU" {
		t.Fatalf("metadata not decoded: %+v", devs[0].Metadata)
	}
}

func TestLoadDir_MissingDirIsEmpty(t *testing.T) {
	devs, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(devs) != 0 {
		t.Fatalf("expected no devices, got %v", devs)
	}
}

func TestList_CPUFirstAndDedup(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "1.yaml", "name: DmlExecutionProvider\n")
	writeManifest(t, dir, "2.yaml", "name: DmlExecutionProvider\nvendor: dup\n")
	writeManifest(t, dir, "3.yaml", "name: CPUExecutionProvider\n")
	writeManifest(t, dir, "4.yaml", "vendor: nameless\n")

	r := New(Config{ProvidersDir: dir, Probe: staticProbe})
	devs, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(devs) != 2 {
		t.Fatalf("expected CPU + DML, got %+v", devs)
	}
	if devs[0].Name != CPUProviderName || devs[0].Vendor != "GenuineIntel" {
		t.Fatalf("unexpected cpu device: %+v", devs[0])
	}
	if devs[1].Name != "DmlExecutionProvider" || devs[1].Vendor != "" {
		t.Fatalf("expected first DML manifest to win, got %+v", devs[1])
	}
}

func TestList_ReturnsSnapshots(t *testing.T) {
	r := New(Config{Probe: staticProbe})
	a, _ := r.List(context.Background())
	a[0].Metadata["cpu_cores"] = "changed"
	b, _ := r.List(context.Background())
	if b[0].Metadata["cpu_cores"] != "8" {
		t.Fatalf("registry state mutated through returned device")
	}
}

type installerFunc func(ctx context.Context) error

func (f installerFunc) Install(ctx context.Context) error { return f(ctx) }

func TestEnsurePlatformProviders_NoAutoRefresh(t *testing.T) {
	dir := t.TempDir()
	r := New(Config{ProvidersDir: dir, Probe: staticProbe, Installer: installerFunc(func(context.Context) error {
		writeManifest(t, dir, "openvino.yaml", "name: OpenVINOExecutionProvider\n")
		return nil
	})})
	before, _ := r.List(context.Background())
	if err := r.EnsurePlatformProviders(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(before) != 1 {
		t.Fatalf("earlier snapshot must not change, got %+v", before)
	}
	after, _ := r.List(context.Background())
	if _, ok := Find(after, "OpenVINOExecutionProvider"); !ok {
		t.Fatalf("expected new provider after re-list, got %+v", after)
	}
}

func TestEnsurePlatformProviders_Failures(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("download interrupted")
	r := New(Config{ProvidersDir: dir, Probe: staticProbe, Installer: installerFunc(func(context.Context) error { return boom })})
	err := r.EnsurePlatformProviders(context.Background())
	if !IsAcquisition(err) || !errors.Is(err, boom) {
		t.Fatalf("expected acquisition error wrapping cause, got %v", err)
	}

	partial := New(Config{ProvidersDir: dir, Probe: staticProbe, Installer: installerFunc(func(context.Context) error {
		writeManifest(t, dir, "qnn.yaml.incomplete", "name: QNN")
		return nil
	})})
	err = partial.EnsurePlatformProviders(context.Background())
	var ae *AcquisitionError
	if !errors.As(err, &ae) || len(ae.Incomplete) != 1 {
		t.Fatalf("expected partial download error, got %v", err)
	}

	none := New(Config{ProvidersDir: dir, Probe: staticProbe})
	if err := none.EnsurePlatformProviders(context.Background()); !IsAcquisition(err) || !errdefs.IsUnavailable(err) {
		t.Fatalf("expected unavailable acquisition error without installer, got %v", err)
	}
}
