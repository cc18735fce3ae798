package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epmgr/internal/artifact"
	"epmgr/internal/registry"
	"epmgr/internal/runtime"
	"epmgr/internal/runtime/runtimetest"
)

var openvino = registry.Device{Name: "OpenVINOExecutionProvider"}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadSessionBindsDeviceAndRunOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model_OpenVINOExecutionProvider.onnx")
	writeFile(t, path, "x")

	fake := runtimetest.NewClassifier([]int64{1, 4}, []float32{1, 2, 3, 4})
	opener := &runtimetest.SessionOpener{Session: fake}
	l := NewLoader(Config{Sessions: opener})

	s, err := l.LoadSession(context.Background(), artifact.Artifact{Path: path, Device: openvino.Name, Compiled: true}, openvino)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, opener.Paths())
	assert.Equal(t, runtime.SessionConfig{Provider: openvino.Name, Options: map[string]string{"num_of_threads": "4"}}, opener.Configs()[0])
	assert.Equal(t, openvino.Name, s.Device.Name)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, fake.Closed())
}

func TestLoadSessionFailures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model_QNN.onnx")
	qnn := registry.Device{Name: "QNNExecutionProvider"}

	l := NewLoader(Config{Sessions: &runtimetest.SessionOpener{}})
	_, err := l.LoadSession(context.Background(), artifact.Artifact{Path: path}, qnn)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, qnn.Name, le.Device)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	writeFile(t, path, "corrupt")
	boom := errors.New("invalid protobuf")
	l = NewLoader(Config{Sessions: &runtimetest.SessionOpener{Err: boom}})
	_, err = l.LoadSession(context.Background(), artifact.Artifact{Path: path, Device: qnn.Name}, qnn)
	assert.True(t, IsLoad(err))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), qnn.Name)
	assert.Contains(t, err.Error(), path)

	_, err = l.LoadSession(context.Background(), artifact.Artifact{Path: path, Device: "other"}, qnn)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)

	_, err = NewLoader(Config{}).LoadSession(context.Background(), artifact.Artifact{Path: path}, qnn)
	assert.True(t, runtime.IsDependencyUnavailable(err))
}

func TestLoadModelReadsGenAIConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, GenAIConfigFile), `{"model":{"type":"phi3","context_length":4096}}`)
	model := &runtimetest.Model{Pieces: []string{"hi"}}
	opener := &runtimetest.ModelOpener{Model: model}

	l := NewLoader(Config{Models: opener, ContextLength: 2048})
	m, err := l.LoadModel(context.Background(), dir, openvino)
	require.NoError(t, err)
	assert.Equal(t, "phi3", m.ModelType)
	assert.Equal(t, 2048, m.ContextLength)
	cfg := opener.Configs()[0]
	assert.Equal(t, openvino.Name, cfg.Provider)
	assert.Equal(t, map[string]string{"num_of_threads": "4"}, cfg.Options)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, 1, model.Closed())
}

func TestLoadModelFailures(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(Config{Models: &runtimetest.ModelOpener{Model: &runtimetest.Model{}}})
	_, err := l.LoadModel(context.Background(), dir, openvino)
	assert.True(t, IsLoad(err))
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	writeFile(t, filepath.Join(dir, GenAIConfigFile), `{"model":`)
	_, err = l.LoadModel(context.Background(), dir, openvino)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)

	writeFile(t, filepath.Join(dir, GenAIConfigFile), `{"model":{"type":"phi3"}}`)
	boom := errors.New("provider not registered")
	l = NewLoader(Config{Models: &runtimetest.ModelOpener{Err: boom}})
	_, err = l.LoadModel(context.Background(), dir, openvino)
	assert.ErrorIs(t, err, boom)
}
