// Package artifact keeps device-specific compiled models next to their base
// model. An artifact's path is derived from the model folder and device name
// alone; presence of the file is the only cache-hit test.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/go-units"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"epmgr/internal/common/fsutil"
	"epmgr/internal/policy"
	"epmgr/internal/registry"
	"epmgr/internal/runtime"
)

// DefaultModelFile is the base model file name inside a model folder.
const DefaultModelFile = "model.onnx"

// Artifact is a model file ready to load for Device.
type Artifact struct {
	Path   string `json:"path"`
	Device string `json:"device"`
	// Compiled is false when the base model is used as is.
	Compiled bool `json:"compiled"`
}

// Config configures a Cache.
type Config struct {
	// Base model file inside each model folder. Empty uses DefaultModelFile.
	ModelFile string
	Compiler  runtime.Compiler
	Logger    *zerolog.Logger
	// OnCompile, when set, is called once per compile attempt.
	OnCompile func(device string, dur time.Duration, err error)
}

// Cache ensures compiled artifacts exist. It is safe for concurrent use;
// concurrent requests for the same target share one compile.
type Cache struct {
	modelFile string
	compiler  runtime.Compiler
	log       zerolog.Logger
	onCompile func(string, time.Duration, error)
	group     singleflight.Group
}

// New returns a Cache for cfg.
func New(cfg Config) *Cache {
	c := &Cache{modelFile: cfg.ModelFile, compiler: cfg.Compiler, log: zerolog.Nop(), onCompile: cfg.OnCompile}
	if c.modelFile == "" {
		c.modelFile = DefaultModelFile
	}
	if cfg.Logger != nil {
		c.log = *cfg.Logger
	}
	return c
}

// ModelFile returns the base model file name.
func (c *Cache) ModelFile() string { return c.modelFile }

// BasePath returns the base model path in modelFolder.
func (c *Cache) BasePath(modelFolder string) string {
	return filepath.Join(modelFolder, c.modelFile)
}

// Path returns where the artifact for dev lives. It does not touch the
// filesystem.
func (c *Cache) Path(modelFolder string, dev registry.Device) string {
	if !policy.RequiresCompilation(dev) {
		return c.BasePath(modelFolder)
	}
	return CompiledPath(modelFolder, c.modelFile, dev.Name)
}

// EnsureCompiled returns the artifact for dev, compiling it first when it is
// absent. CPU and DML providers use the base model and never compile. An
// existing file is trusted as is.
func (c *Cache) EnsureCompiled(ctx context.Context, modelFolder string, dev registry.Device) (Artifact, error) {
	base := c.BasePath(modelFolder)
	if !policy.RequiresCompilation(dev) {
		if !fsutil.PathExists(base) {
			return Artifact{}, &CompilationError{Device: dev.Name, Path: base, Err: fmt.Errorf("base model: %w", errdefs.ErrNotFound)}
		}
		c.log.Debug().Str("device", dev.Name).Str("path", base).Msg("artifact event=compile_skipped")
		return Artifact{Path: base, Device: dev.Name}, nil
	}

	target := c.Path(modelFolder, dev)
	if fsutil.PathExists(target) {
		c.log.Debug().Str("device", dev.Name).Str("path", target).Msg("artifact event=hit")
		return Artifact{Path: target, Device: dev.Name, Compiled: true}, nil
	}

	_, err, _ := c.group.Do(target, func() (any, error) {
		// A concurrent leader may have finished between the Stat and Do.
		if fsutil.PathExists(target) {
			return nil, nil
		}
		return nil, c.compile(ctx, base, target, dev)
	})
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Path: target, Device: dev.Name, Compiled: true}, nil
}

func (c *Cache) compile(ctx context.Context, base, target string, dev registry.Device) (err error) {
	start := time.Now()
	defer func() {
		if c.onCompile != nil {
			c.onCompile(dev.Name, time.Since(start), err)
		}
	}()
	fail := func(cause error) error {
		c.log.Error().Str("device", dev.Name).Str("path", target).Err(cause).Dur("dur", time.Since(start)).Msg("artifact event=compile_failed")
		return &CompilationError{Device: dev.Name, Path: target, Err: cause}
	}
	if c.compiler == nil {
		return fail(runtime.ErrDependencyUnavailable("no compiler configured"))
	}
	if !fsutil.PathExists(base) {
		return fail(fmt.Errorf("base model %s: %w", base, errdefs.ErrNotFound))
	}

	staging := fsutil.IncompletePath(target)
	_ = os.Remove(staging)
	c.log.Info().Str("device", dev.Name).Str("path", target).Msg("artifact event=compile_start")
	req := runtime.CompileRequest{
		InputPath:  base,
		OutputPath: staging,
		Provider:   dev.Name,
		Options:    policy.Resolve(dev, policy.PhaseCompile),
	}
	if cerr := c.compiler.Compile(ctx, req); cerr != nil {
		_ = os.Remove(staging)
		return fail(cerr)
	}
	if perr := fsutil.Promote(staging, target); perr != nil {
		return fail(perr)
	}
	c.log.Info().Str("device", dev.Name).Str("path", target).Dur("dur", time.Since(start)).Msg("artifact event=compile_done")
	return nil
}

// Entry describes one compiled artifact on disk.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// HumanSize renders Size for display.
func (e Entry) HumanSize() string { return units.HumanSize(float64(e.Size)) }

// List returns the compiled artifacts in modelFolder sorted by name. The base
// model and staging files are not included.
func (c *Cache) List(modelFolder string) ([]Entry, error) {
	ext := filepath.Ext(c.modelFile)
	prefix := strings.TrimSuffix(c.modelFile, ext) + "_"
	des, err := os.ReadDir(modelFolder)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("model folder %s: %w", modelFolder, errdefs.ErrNotFound)
		}
		return nil, err
	}
	var out []Entry
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, prefix) || filepath.Ext(name) != ext {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: name, Path: filepath.Join(modelFolder, name), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Remove deletes the compiled artifact for dev. Removing a base model is
// refused.
func (c *Cache) Remove(modelFolder string, dev registry.Device) error {
	if !policy.RequiresCompilation(dev) {
		return fmt.Errorf("%s uses the base model: %w", dev.Name, errdefs.ErrFailedPrecondition)
	}
	p := c.Path(modelFolder, dev)
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("artifact %s: %w", p, errdefs.ErrNotFound)
		}
		return err
	}
	c.log.Info().Str("device", dev.Name).Str("path", p).Msg("artifact event=removed")
	return nil
}
