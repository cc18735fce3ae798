// Package policy maps an execution provider to the options its sessions and
// compiled artifacts must be built with.
//
// Dispatch goes through a closed Kind enumeration. Name matching happens in
// exactly one place (Classify); everything else switches on Kind, so a
// near-miss name lands on KindUnknown instead of silently picking up
// another provider's options.
package policy

import (
	"strings"

	"epmgr/internal/registry"
)

// Kind is the class of an execution provider.
type Kind int

const (
	KindUnknown Kind = iota
	KindCPU
	KindDML
	KindOpenVINO
	KindQNN
	KindNvTensorRT
	KindVitisAI
)

func (k Kind) String() string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindDML:
		return "dml"
	case KindOpenVINO:
		return "openvino"
	case KindQNN:
		return "qnn"
	case KindNvTensorRT:
		return "nvtensorrt"
	case KindVitisAI:
		return "vitisai"
	default:
		return "unknown"
	}
}

// Phase selects compile-time or run-time options.
type Phase int

const (
	PhaseCompile Phase = iota
	PhaseRun
)

func (p Phase) String() string {
	if p == PhaseCompile {
		return "compile"
	}
	return "run"
}

// Options are provider options keyed by native option name.
type Options map[string]string

// Provider option names understood by the native runtimes.
const (
	OptNumThreads      = "num_of_threads"
	OptHTPPerformance  = "htp_performance_mode"
	OptEnableCUDAGraph = "enable_cuda_graph"
	OptLogLevel        = "log_level"
)

// Classify maps a provider name onto its Kind. Vendor substrings are tested
// before the CPU/DML prefixes.
func Classify(name string) Kind {
	switch {
	case strings.Contains(name, "OpenVINO"):
		return KindOpenVINO
	case strings.Contains(name, "QNN"):
		return KindQNN
	case strings.Contains(name, "NvTensorRT"):
		return KindNvTensorRT
	case strings.Contains(name, "VitisAI"):
		return KindVitisAI
	case strings.HasPrefix(name, "CPU"):
		return KindCPU
	case strings.HasPrefix(name, "Dml"), strings.HasPrefix(name, "DML"):
		return KindDML
	default:
		return KindUnknown
	}
}

// Resolve returns the options for dev at phase. The result is a new map on
// every call; unknown providers get an empty set.
func Resolve(dev registry.Device, phase Phase) Options {
	return ResolveKind(Classify(dev.Name), phase)
}

// ResolveKind is Resolve for an already classified provider. Compile and run
// phases currently share one table.
func ResolveKind(k Kind, _ Phase) Options {
	switch k {
	case KindOpenVINO:
		return Options{OptNumThreads: "4"}
	case KindQNN:
		return Options{OptHTPPerformance: "high_performance"}
	case KindNvTensorRT:
		return Options{OptEnableCUDAGraph: "true"}
	case KindVitisAI:
		return Options{OptLogLevel: "info"}
	default:
		return Options{}
	}
}

// RequiresCompilation reports whether artifacts for dev must be compiled
// ahead of time. CPU and DML run the base model directly.
func RequiresCompilation(dev registry.Device) bool {
	switch Classify(dev.Name) {
	case KindCPU, KindDML:
		return false
	default:
		return true
	}
}
