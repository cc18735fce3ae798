package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the CLI and the service.
type Config struct {
	// Model folders live here; relative folders are resolved against it.
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// Base model file inside a classifier folder.
	ModelFile string `json:"model_file" yaml:"model_file" toml:"model_file"`
	// Base model file used by the classify command unless --model-file is set.
	ClassifyModelFile string `json:"classify_model_file" yaml:"classify_model_file" toml:"classify_model_file"`
	// Provider manifests directory.
	ProvidersDir string `json:"providers_dir" yaml:"providers_dir" toml:"providers_dir"`
	// Platform provider acquisition tool; empty disables acquisition.
	AcquireCmd string `json:"acquire_cmd" yaml:"acquire_cmd" toml:"acquire_cmd"`
	// Ahead-of-time compiler tool; empty disables compilation.
	CompileCmd string `json:"compile_cmd" yaml:"compile_cmd" toml:"compile_cmd"`
	// onnxruntime shared library (ort builds only).
	ORTLibrary string `json:"ort_library" yaml:"ort_library" toml:"ort_library"`

	LlamaCtx       int `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx"`
	LlamaThreads   int `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`
	LlamaGPULayers int `json:"llama_gpu_layers" yaml:"llama_gpu_layers" toml:"llama_gpu_layers"`

	MinLength    int    `json:"min_length" yaml:"min_length" toml:"min_length"`
	MaxLength    int    `json:"max_length" yaml:"max_length" toml:"max_length"`
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt" toml:"system_prompt"`

	TopK       int    `json:"top_k" yaml:"top_k" toml:"top_k"`
	LabelsFile string `json:"labels_file" yaml:"labels_file" toml:"labels_file"`

	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	MaxQueueDepth   int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWait         Duration `json:"max_wait" yaml:"max_wait" toml:"max_wait"`
	GenerateTimeout Duration `json:"generate_timeout" yaml:"generate_timeout" toml:"generate_timeout"`

	CORS CORS `json:"cors" yaml:"cors" toml:"cors"`
}

// CORS settings for the HTTP server.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Duration is a time.Duration written as "30s" in config files.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ModelsDir:         "~/models",
		ModelFile:         "model.onnx",
		ClassifyModelFile: "SqueezeNet.onnx",
		ProvidersDir:      "~/.epmgr/providers",
		LlamaCtx:          4096,
		MinLength:         50,
		MaxLength:         500,
		SystemPrompt:      "You are a helpful AI assistant.",
		TopK:              5,
		Addr:              ":8080",
		LogLevel:          "info",
		LogFormat:         "console",
		MaxQueueDepth:     32,
		MaxWait:           Duration(30 * time.Second),
	}
}

// Load returns Default overlaid with the file at path. Keys absent from the
// file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := LoadInto(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadInto decodes the file at path over cfg based on its extension.
// Supports: .yaml/.yml, .json, .toml
func LoadInto(path string, cfg *Config) error {
	if path == "" {
		return fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return err
		}
	case ".json":
		if err := json.Unmarshal(b, cfg); err != nil {
			return err
		}
	case ".toml":
		if err := toml.Unmarshal(b, cfg); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg.Validate()
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	switch {
	case c.MinLength < 0 || c.MaxLength < 0:
		return fmt.Errorf("min_length and max_length must not be negative")
	case c.MaxLength > 0 && c.MinLength > c.MaxLength:
		return fmt.Errorf("min_length %d exceeds max_length %d", c.MinLength, c.MaxLength)
	case c.TopK < 0:
		return fmt.Errorf("top_k must not be negative")
	case c.MaxQueueDepth < 0:
		return fmt.Errorf("max_queue_depth must not be negative")
	case c.MaxWait < 0 || c.GenerateTimeout < 0:
		return fmt.Errorf("durations must not be negative")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		return fmt.Errorf("unsupported log_format: %s", c.LogFormat)
	}
	return nil
}
