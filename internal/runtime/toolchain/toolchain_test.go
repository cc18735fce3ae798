package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epmgr/internal/runtime"
)

// helperCommand re-executes the test binary as a fake tool.
func helperCommand(t *testing.T, mode string) string {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("HELPER_MODE", mode)
	return fmt.Sprintf("'%s' -test.run=TestHelperProcess --", os.Args[0])
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	flag := func(name string) []string {
		var out []string
		for i := 0; i+1 < len(args); i++ {
			if args[i] == name {
				out = append(out, args[i+1])
			}
		}
		return out
	}
	switch os.Getenv("HELPER_MODE") {
	case "compile":
		body := "provider=" + flag("--provider")[0] + "\n" + strings.Join(flag("--option"), "\n")
		if err := os.WriteFile(flag("--output")[0], []byte(body), 0o644); err != nil {
			os.Exit(2)
		}
	case "install":
		dir := flag("--providers-dir")[0]
		if err := os.WriteFile(filepath.Join(dir, "openvino.yaml"), []byte("name: OpenVINOExecutionProvider\n"), 0o644); err != nil {
			os.Exit(2)
		}
	case "fail":
		fmt.Fprint(os.Stderr, strings.Repeat("x", 4096)+"unsupported operator")
		os.Exit(3)
	}
	os.Exit(0)
}

func TestCompilerPassesExplicitPathsAndSortedOptions(t *testing.T) {
	c, err := NewCompiler(helperCommand(t, "compile"), nil)
	require.NoError(t, err)

	dir := t.TempDir()
	out := filepath.Join(dir, "model_QNN.onnx")
	err = c.Compile(context.Background(), runtime.CompileRequest{
		InputPath:  filepath.Join(dir, "model.onnx"),
		OutputPath: out,
		Provider:   "QNNExecutionProvider",
		Options:    map[string]string{"z": "1", "htp_performance_mode": "high_performance"},
	})
	require.NoError(t, err)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "provider=QNNExecutionProvider\nhtp_performance_mode=high_performance\nz=1", string(b))
}

func TestCompilerFailureCarriesStderrTail(t *testing.T) {
	c, err := NewCompiler(helperCommand(t, "fail"), nil)
	require.NoError(t, err)
	err = c.Compile(context.Background(), runtime.CompileRequest{InputPath: "in", OutputPath: "out", Provider: "X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported operator")
	assert.Less(t, len(err.Error()), 2*stderrTail)
}

func TestCompilerNotConfigured(t *testing.T) {
	c, err := NewCompiler("   ", nil)
	require.NoError(t, err)
	err = c.Compile(context.Background(), runtime.CompileRequest{InputPath: "in", OutputPath: "out"})
	assert.True(t, runtime.IsDependencyUnavailable(err))
}

func TestParseRejectsUnbalancedQuotes(t *testing.T) {
	_, err := Parse(`compile "--flag`, nil, nil)
	assert.Error(t, err)
}

func TestInstallerWritesIntoProvidersDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "providers")
	inst, err := NewInstaller(helperCommand(t, "install"), dir, nil)
	require.NoError(t, err)
	require.NoError(t, inst.Install(context.Background()))
	_, err = os.Stat(filepath.Join(dir, "openvino.yaml"))
	assert.NoError(t, err)
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	var b tailBuffer
	_, _ = b.Write([]byte(strings.Repeat("a", stderrTail)))
	_, _ = b.Write([]byte("end"))
	assert.Len(t, b.String(), stderrTail)
	assert.True(t, strings.HasSuffix(b.String(), "end"))
}
