package types

// Device describes one execution provider on the host.
type Device struct {
	// Provider name.
	// example: OpenVINOExecutionProvider
	Name string `json:"name" example:"OpenVINOExecutionProvider"`
	// Hardware or runtime vendor.
	// example: Intel
	Vendor string `json:"vendor,omitempty" example:"Intel"`
	// Native library backing the provider, if registered from a manifest.
	Library string `json:"library,omitempty"`
	// Provider class used for option resolution.
	// example: openvino
	Kind string `json:"kind" example:"openvino"`
	// Whether models must be compiled ahead of time for this provider.
	// example: true
	RequiresCompile bool `json:"requires_compile" example:"true"`
	// Vendor metadata.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Prediction is one ranked classification entry.
type Prediction struct {
	// 1-based rank.
	// example: 1
	Rank int `json:"rank" example:"1"`
	// Output index.
	// example: 1
	Index int `json:"index" example:"1"`
	// Class label.
	// example: goldfish
	Label string `json:"label" example:"goldfish"`
	// Score in [0,1] after softmax.
	// example: 0.93
	Score float32 `json:"score" example:"0.93"`
}

// CacheEntry is one compiled artifact on disk.
type CacheEntry struct {
	// example: model_QNNExecutionProvider.onnx
	Name string `json:"name" example:"model_QNNExecutionProvider.onnx"`
	Path string `json:"path"`
	// Size in bytes.
	Size int64 `json:"size"`
	// Size for display.
	// example: 5.2MB
	HumanSize string `json:"human_size" example:"5.2MB"`
}
