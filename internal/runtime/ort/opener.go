// Package ort opens single-shot models with ONNX Runtime through
// github.com/yalue/onnxruntime_go. The native bridge needs the `ort` build tag
// and the onnxruntime shared library at run time.
package ort

import (
	"fmt"
	"maps"
	"strconv"

	"github.com/containerd/errdefs"

	"epmgr/internal/policy"
	"epmgr/internal/runtime"
)

// Opener opens ONNX sessions. It implements runtime.SessionOpener.
type Opener struct {
	// LibraryPath locates the onnxruntime shared library. Empty uses the
	// platform default search.
	LibraryPath string
}

var _ runtime.SessionOpener = (*Opener)(nil)

// concreteShape replaces dynamic dimensions with 1 so tensors can be
// preallocated.
func concreteShape(dims []int64) []int64 {
	out := make([]int64, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}

// providerPlan is what a provider kind and its options translate to on the
// ONNX Runtime side.
type providerPlan struct {
	kind     policy.Kind
	threads  int
	openvino map[string]string
	tensorrt map[string]string
	deviceID int
}

// planProvider maps a provider and run options to session options. An empty
// provider means the CPU. Kinds the Go binding cannot attach fail with
// errdefs.ErrNotImplemented.
func planProvider(cfg runtime.SessionConfig) (providerPlan, error) {
	p := providerPlan{kind: policy.KindCPU}
	if cfg.Provider != "" {
		p.kind = policy.Classify(cfg.Provider)
	}
	if v, ok := cfg.Options[policy.OptNumThreads]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.threads = n
		}
	}
	switch p.kind {
	case policy.KindCPU, policy.KindDML:
	case policy.KindOpenVINO:
		p.openvino = maps.Clone(cfg.Options)
		if p.openvino == nil {
			p.openvino = map[string]string{}
		}
	case policy.KindNvTensorRT:
		p.tensorrt = map[string]string{}
		if cfg.Options[policy.OptEnableCUDAGraph] == "true" {
			p.tensorrt["trt_cuda_graph_enable"] = "1"
		}
	default:
		return p, fmt.Errorf("provider %s (%s): %w", cfg.Provider, p.kind, errdefs.ErrNotImplemented)
	}
	return p, nil
}
