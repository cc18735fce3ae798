package types

// DevicesResponse is returned by GET /devices.
type DevicesResponse struct {
	// Available providers, CPU first.
	Devices []Device `json:"devices"`
	// Currently selected provider, if any.
	// example: CPUExecutionProvider
	Selected string `json:"selected,omitempty" example:"CPUExecutionProvider"`
}

// SelectRequest is the body of POST /select.
type SelectRequest struct {
	// Provider name as listed by GET /devices.
	// example: QNNExecutionProvider
	Device string `json:"device" example:"QNNExecutionProvider"`
}

// LoadRequest is the body of POST /load.
type LoadRequest struct {
	// classifier or generator.
	// example: classifier
	Kind string `json:"kind" example:"classifier"`
	// Model folder on the server host.
	// example: /models/squeezenet
	ModelFolder string `json:"model_folder" example:"/models/squeezenet"`
}

// LoadResponse describes a freshly loaded context.
type LoadResponse struct {
	// example: classifier
	Kind string `json:"kind" example:"classifier"`
	// example: QNNExecutionProvider
	Device string `json:"device" example:"QNNExecutionProvider"`
	// Artifact or model folder that was loaded.
	Path string `json:"path"`
	// Whether a device-specific artifact is in use.
	Compiled bool `json:"compiled"`
	// Load time in milliseconds.
	// example: 820
	LoadMillis int64 `json:"load_ms" example:"820"`
}

// ClassifyRequest is the body of POST /classify. Data is a preprocessed
// float32 tensor in row-major order.
type ClassifyRequest struct {
	// example: [1,3,224,224]
	Shape []int64   `json:"shape" example:"1,3,224,224"`
	Data  []float32 `json:"data"`
}

// ClassifyResponse is returned by POST /classify.
type ClassifyResponse struct {
	Predictions []Prediction `json:"predictions"`
	// Ranked list formatted one entry per line.
	// example: 1. goldfish (93.00%)
	Text string `json:"text" example:"1. goldfish (93.00%)"`
}

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	// User prompt.
	// example: Hello
	Prompt string `json:"prompt" example:"Hello"`
}

// GenerateChunk is one NDJSON line of a POST /generate stream. Text always
// carries the full response so far.
type GenerateChunk struct {
	// example: 6f1c2d9e-1b7a-4a55-9a53-2f2f8f1f0c11
	RunID string `json:"run_id" example:"6f1c2d9e-1b7a-4a55-9a53-2f2f8f1f0c11"`
	// example: Hello! How can I help
	Text string `json:"text" example:"Hello! How can I help"`
	// Tokens generated so far.
	// example: 6
	Tokens int `json:"tokens" example:"6"`
	// Set on the final line.
	Done bool `json:"done,omitempty"`
	// stop, length or error; final line only.
	// example: stop
	FinishReason string `json:"finish_reason,omitempty" example:"stop"`
	// Error message when the generation failed after streaming began.
	Error string `json:"error,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// ContextStatus summarizes a loaded execution context for /status.
type ContextStatus struct {
	// classifier or generator.
	// example: generator
	Kind string `json:"kind" example:"generator"`
	// example: OpenVINOExecutionProvider
	Device string `json:"device" example:"OpenVINOExecutionProvider"`
	// Artifact or model folder.
	Path string `json:"path"`
	// Lifecycle state (loading, ready, draining).
	// example: ready
	State string `json:"state" example:"ready"`
	// Last time this context served a request (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Requests waiting for admission.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Requests currently executing (0 or 1).
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests before backpressure.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall manager state (idle, loading, ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Selected provider.
	// example: QNNExecutionProvider
	Device string `json:"device,omitempty" example:"QNNExecutionProvider"`
	// Loaded contexts.
	Contexts []ContextStatus `json:"contexts"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Artifacts compiled by this process.
	// example: 1
	CompilesTotal uint64 `json:"compiles_total" example:"1"`
	// Contexts loaded by this process.
	// example: 2
	LoadsTotal uint64 `json:"loads_total" example:"2"`
}
