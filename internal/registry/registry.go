// Package registry enumerates the execution providers available on the host.
//
// The built-in CPU provider is always present. Additional providers are
// described by manifest files in a providers directory; an Installer
// (usually the platform acquisition tool) writes those manifests. The
// registry takes a fresh snapshot on every List call and never refreshes
// on its own.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/rs/zerolog"
)

// Installer discovers, downloads and registers providers for this host.
type Installer interface {
	Install(ctx context.Context) error
}

// Config configures a Registry.
type Config struct {
	// Directory holding provider manifests.
	ProvidersDir string
	// Installer used by EnsurePlatformProviders. Nil disables acquisition.
	Installer Installer
	// Probe supplies CPU vendor metadata. Nil uses ProbeHost.
	Probe  HostProbe
	Logger *zerolog.Logger
}

// Registry lists devices. It is safe for concurrent use.
type Registry struct {
	dir       string
	installer Installer
	probe     HostProbe
	log       zerolog.Logger

	cpuOnce sync.Once
	cpu     Device
}

// New constructs a Registry from cfg.
func New(cfg Config) *Registry {
	r := &Registry{dir: cfg.ProvidersDir, installer: cfg.Installer, probe: cfg.Probe, log: zerolog.Nop()}
	if cfg.Logger != nil {
		r.log = *cfg.Logger
	}
	if r.probe == nil {
		r.probe = ProbeHost
	}
	return r
}

// List returns every provider currently registered, CPU first, then
// manifests in file name order. Later manifests reusing a name are skipped.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := scanDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	for name, perr := range res.invalid {
		r.log.Warn().Str("manifest", name).Err(perr).Msg("registry event=manifest_invalid")
	}
	out := []Device{r.cpuDevice()}
	seen := map[string]bool{CPUProviderName: true}
	for _, d := range res.devices {
		if seen[d.Name] {
			r.log.Warn().Str("device", d.Name).Msg("registry event=duplicate_provider")
			continue
		}
		seen[d.Name] = true
		out = append(out, d.clone())
	}
	r.log.Debug().Int("count", len(out)).Msg("registry event=list")
	return out, nil
}

// EnsurePlatformProviders runs the installer and verifies it left no
// partially written manifests behind. Callers must List again to observe
// new devices.
func (r *Registry) EnsurePlatformProviders(ctx context.Context) error {
	if r.installer == nil {
		return &AcquisitionError{Err: fmt.Errorf("no provider installer configured: %w", errdefs.ErrUnavailable)}
	}
	start := time.Now()
	r.log.Info().Msg("registry event=acquire_start")
	if err := r.installer.Install(ctx); err != nil {
		r.log.Error().Err(err).Dur("dur", time.Since(start)).Msg("registry event=acquire_failed")
		return &AcquisitionError{Err: err}
	}
	res, err := scanDir(r.dir)
	if err != nil {
		return &AcquisitionError{Err: err}
	}
	if len(res.incomplete) > 0 {
		return &AcquisitionError{Incomplete: res.incomplete, Err: fmt.Errorf("partial download")}
	}
	r.log.Info().Dur("dur", time.Since(start)).Msg("registry event=acquire_done")
	return nil
}

func (r *Registry) cpuDevice() Device {
	r.cpuOnce.Do(func() {
		vendor, md := r.probe()
		r.cpu = Device{Name: CPUProviderName, Vendor: vendor, Metadata: md}
	})
	return r.cpu.clone()
}
