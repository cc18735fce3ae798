// Package toolchain drives the external tools that compile provider-specific
// model artifacts and acquire platform providers.
//
// Tools are configured as a command line (split with shell quoting rules) and
// receive their request as flags:
//
//	compile: <cmd> --input IN --output OUT --provider NAME [--option k=v ...]
//	acquire: <cmd> --providers-dir DIR
package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"

	"epmgr/internal/runtime"
)

// stderrTail bounds how much tool stderr is kept for error messages.
const stderrTail = 1024

// Tool is a parsed external command.
type Tool struct {
	argv []string
	env  []string
	log  zerolog.Logger
}

// Parse splits command into an executable and leading arguments. An empty
// command yields a nil Tool and no error; callers treat that as "not
// configured".
func Parse(command string, env []string, log *zerolog.Logger) (*Tool, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, nil
	}
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tool command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, nil
	}
	t := &Tool{argv: argv, env: env, log: zerolog.Nop()}
	if log != nil {
		t.log = *log
	}
	return t, nil
}

// Name returns the executable.
func (t *Tool) Name() string { return t.argv[0] }

func (t *Tool) run(ctx context.Context, args ...string) error {
	full := append(slices.Clone(t.argv[1:]), args...)
	cmd := exec.CommandContext(ctx, t.argv[0], full...)
	cmd.Env = append(os.Environ(), t.env...)
	var stderr tailBuffer
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	t.log.Debug().Str("tool", t.argv[0]).Strs("args", full).Msg("toolchain event=exec")
	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", t.argv[0], err, msg)
		}
		return fmt.Errorf("%s: %w", t.argv[0], err)
	}
	t.log.Debug().Str("tool", t.argv[0]).Dur("dur", time.Since(start)).Int("stdout_bytes", stdout.Len()).Msg("toolchain event=exit")
	return nil
}

// Compiler runs a compile tool. It implements runtime.Compiler.
type Compiler struct{ tool *Tool }

// NewCompiler returns a Compiler for command. An empty command yields a
// Compiler whose every call fails with a dependency-unavailable error.
func NewCompiler(command string, log *zerolog.Logger) (*Compiler, error) {
	t, err := Parse(command, nil, log)
	if err != nil {
		return nil, err
	}
	return &Compiler{tool: t}, nil
}

// Compile invokes the tool with explicit input and output paths.
func (c *Compiler) Compile(ctx context.Context, req runtime.CompileRequest) error {
	if c == nil || c.tool == nil {
		return runtime.ErrDependencyUnavailable("no compile tool configured")
	}
	if req.InputPath == "" || req.OutputPath == "" {
		return fmt.Errorf("compile request needs input and output paths")
	}
	args := []string{"--input", req.InputPath, "--output", req.OutputPath, "--provider", req.Provider}
	keys := make([]string, 0, len(req.Options))
	for k := range req.Options {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, "--option", k+"="+req.Options[k])
	}
	return c.tool.run(ctx, args...)
}

// Installer runs a provider acquisition tool that writes manifests into a
// providers directory. It implements registry.Installer.
type Installer struct {
	tool *Tool
	dir  string
}

// NewInstaller returns an Installer for command writing into providersDir.
func NewInstaller(command, providersDir string, log *zerolog.Logger) (*Installer, error) {
	t, err := Parse(command, nil, log)
	if err != nil {
		return nil, err
	}
	return &Installer{tool: t, dir: providersDir}, nil
}

// Install runs the acquisition tool once.
func (i *Installer) Install(ctx context.Context) error {
	if i == nil || i.tool == nil {
		return runtime.ErrDependencyUnavailable("no provider acquisition tool configured")
	}
	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return fmt.Errorf("create providers dir: %w", err)
	}
	return i.tool.run(ctx, "--providers-dir", i.dir)
}

// tailBuffer keeps the last stderrTail bytes written to it.
type tailBuffer struct{ b []byte }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.b = append(t.b, p...)
	if over := len(t.b) - stderrTail; over > 0 {
		t.b = t.b[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.b) }
