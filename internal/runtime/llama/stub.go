//go:build !llama

package llama

import "epmgr/internal/runtime"

// Built reports whether this binary carries the native llama bridge.
const Built = false

// OpenModel fails: llama support is not compiled into this build.
func (o *Opener) OpenModel(folder string, cfg runtime.GeneratorConfig) (runtime.LanguageModel, error) {
	return nil, runtime.ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
