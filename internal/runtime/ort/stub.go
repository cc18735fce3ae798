//go:build !ort

package ort

import "epmgr/internal/runtime"

// Built reports whether this binary carries the ONNX Runtime bridge.
const Built = false

// OpenSession fails: ONNX Runtime support is not compiled into this build.
func (o *Opener) OpenSession(path string, cfg runtime.SessionConfig) (runtime.Session, error) {
	if _, err := planProvider(cfg); err != nil {
		return nil, err
	}
	return nil, runtime.ErrDependencyUnavailable("onnxruntime support not built (missing 'ort' build tag)")
}
