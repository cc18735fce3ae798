package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"epmgr/internal/classify"
	"epmgr/internal/common/fsutil"
	"epmgr/internal/config"
	"epmgr/internal/logging"
	"epmgr/internal/manager"
	"epmgr/internal/registry"
	"epmgr/internal/runtime/llama"
	"epmgr/internal/runtime/ort"
	"epmgr/internal/runtime/toolchain"
)

// app carries the resolved configuration to every subcommand.
type app struct {
	cfg        config.Config
	configPath string
	device     string
	log        zerolog.Logger
	metrics    *manager.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Default(), log: zerolog.Nop()}
	root := &cobra.Command{
		Use:           "epmgr",
		Short:         "Hardware-adaptive model execution manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (.yaml, .json or .toml)")
	pf.StringVarP(&a.device, "device", "d", registry.CPUProviderName, "Execution provider to run on")
	pf.StringVar(&a.cfg.ModelsDir, "models-dir", a.cfg.ModelsDir, "Directory holding model folders")
	pf.StringVar(&a.cfg.ModelFile, "model-file", a.cfg.ModelFile, "Base model file inside a classifier folder")
	pf.StringVar(&a.cfg.ProvidersDir, "providers-dir", a.cfg.ProvidersDir, "Directory of provider manifests")
	pf.StringVar(&a.cfg.AcquireCmd, "acquire-cmd", a.cfg.AcquireCmd, "Platform provider acquisition command")
	pf.StringVar(&a.cfg.CompileCmd, "compile-cmd", a.cfg.CompileCmd, "Ahead-of-time compile command")
	pf.StringVar(&a.cfg.ORTLibrary, "ort-library", a.cfg.ORTLibrary, "onnxruntime shared library path")
	pf.IntVar(&a.cfg.LlamaCtx, "llama-ctx", a.cfg.LlamaCtx, "Context window for language models")
	pf.IntVar(&a.cfg.LlamaThreads, "llama-threads", a.cfg.LlamaThreads, "CPU threads for language models (0 = runtime default)")
	pf.IntVar(&a.cfg.LlamaGPULayers, "llama-gpu-layers", a.cfg.LlamaGPULayers, "Layers offloaded on non-CPU providers")
	pf.IntVar(&a.cfg.MinLength, "min-length", a.cfg.MinLength, "Minimum tokens per response")
	pf.IntVar(&a.cfg.MaxLength, "max-length", a.cfg.MaxLength, "Maximum tokens per response")
	pf.StringVar(&a.cfg.SystemPrompt, "system-prompt", a.cfg.SystemPrompt, "System prompt for chat")
	pf.IntVar(&a.cfg.TopK, "top-k", a.cfg.TopK, "Predictions to report")
	pf.StringVar(&a.cfg.LabelsFile, "labels", a.cfg.LabelsFile, "Class labels file, one per line")
	pf.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "Log level: debug|info|warn|error|off")
	pf.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "Log format: console|json")

	root.AddCommand(
		newDevicesCmd(a),
		newProvidersCmd(a),
		newCompileCmd(a),
		newCacheCmd(a),
		newClassifyCmd(a),
		newChatCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup layers defaults, the config file and explicitly set flags, in
// that order, then builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	if a.configPath != "" {
		changed := map[string]string{}
		cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = f.Value.String() })
		a.cfg = config.Default()
		if err := config.LoadInto(a.configPath, &a.cfg); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		for name, v := range changed {
			if err := cmd.Flags().Set(name, v); err != nil {
				return err
			}
		}
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	for _, p := range []*string{&a.cfg.ModelsDir, &a.cfg.ProvidersDir, &a.cfg.LabelsFile} {
		v, err := fsutil.ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = v
	}
	a.log = logging.New(logging.Options{Level: a.cfg.LogLevel, Format: a.cfg.LogFormat, Out: os.Stderr})
	return nil
}

// newManager wires the registry, native runtimes and tools from the config.
func (a *app) newManager() (*manager.Manager, error) {
	compiler, err := toolchain.NewCompiler(a.cfg.CompileCmd, &a.log)
	if err != nil {
		return nil, fmt.Errorf("compile-cmd: %w", err)
	}
	installer, err := toolchain.NewInstaller(a.cfg.AcquireCmd, a.cfg.ProvidersDir, &a.log)
	if err != nil {
		return nil, fmt.Errorf("acquire-cmd: %w", err)
	}
	var labels classify.Labels
	if a.cfg.LabelsFile != "" {
		if labels, err = classify.LoadLabels(a.cfg.LabelsFile); err != nil {
			return nil, err
		}
	}
	reg := registry.New(registry.Config{ProvidersDir: a.cfg.ProvidersDir, Installer: installer, Logger: &a.log})
	return manager.NewWithConfig(manager.ManagerConfig{
		Providers:     reg,
		Compiler:      compiler,
		Sessions:      &ort.Opener{LibraryPath: a.cfg.ORTLibrary},
		Models:        &llama.Opener{ContextSize: a.cfg.LlamaCtx, Threads: a.cfg.LlamaThreads, GPULayers: a.cfg.LlamaGPULayers},
		ModelFile:     a.cfg.ModelFile,
		ContextLength: a.cfg.LlamaCtx,
		Labels:        labels,
		TopK:          a.cfg.TopK,
		SystemPrompt:  a.cfg.SystemPrompt,
		MinLength:     a.cfg.MinLength,
		MaxLength:     a.cfg.MaxLength,
		MaxQueueDepth: a.cfg.MaxQueueDepth,
		MaxWait:       a.cfg.MaxWait.Std(),
		Publisher:     manager.LogPublisher{Log: a.log},
		Metrics:       a.metrics,
		Logger:        &a.log,
	}), nil
}

// selected builds a manager and selects the --device provider on it.
func (a *app) selected(cmd *cobra.Command) (*manager.Manager, error) {
	m, err := a.newManager()
	if err != nil {
		return nil, err
	}
	if _, err := m.SelectDevice(cmd.Context(), a.device); err != nil {
		return nil, err
	}
	return m, nil
}

// folder resolves a model folder argument: as given when it exists,
// otherwise under the models directory.
func (a *app) folder(arg string) string {
	if filepath.IsAbs(arg) || fsutil.PathExists(arg) || a.cfg.ModelsDir == "" {
		return arg
	}
	return filepath.Join(a.cfg.ModelsDir, arg)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
