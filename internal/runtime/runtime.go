// Package runtime declares the boundary between epmgr and native inference
// runtimes. Concrete implementations live in subpackages and are selected by
// build tags:
//
//   - ort (tag `ort`): ONNX Runtime sessions for single-shot models.
//   - llama (tag `llama`): go-llama.cpp backed language models.
//   - toolchain: external compile and provider-acquisition tools.
//
// Without a tag the session and model openers are stubs that fail with
// ErrDependencyUnavailable, keeping default builds CGO-free.
package runtime

import "context"

// ElementType names the element type of a tensor.
type ElementType string

const (
	Float32 ElementType = "float32"
)

// TensorInfo describes one model input or output. Negative dimensions are
// dynamic.
type TensorInfo struct {
	Name        string
	Shape       []int64
	ElementType ElementType
}

// Tensor is a dense float32 buffer with its shape.
type Tensor struct {
	Shape       []int64
	ElementType ElementType
	Data        []float32
}

// Elements returns the number of elements described by the shape.
func (t Tensor) Elements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// SessionConfig binds a session to a provider.
type SessionConfig struct {
	Provider string
	Options  map[string]string
}

// Session is a loaded single-shot model. A Session must not be used by two
// callers at once.
type Session interface {
	Inputs() []TensorInfo
	Outputs() []TensorInfo
	// Run executes one forward pass.
	Run(input Tensor) (Tensor, error)
	Close() error
}

// SessionOpener loads a model file into a Session.
type SessionOpener interface {
	OpenSession(path string, cfg SessionConfig) (Session, error)
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SearchOptions bounds generation length in tokens.
type SearchOptions struct {
	MinLength int
	MaxLength int
}

// Tokenizer converts between text and token ids for one model.
type Tokenizer interface {
	// ApplyChatTemplate renders messages into the model's prompt format,
	// including the generation prompt for the assistant turn.
	ApplyChatTemplate(messages []Message) (string, error)
	Encode(text string) ([]int32, error)
	// NewStream returns an incremental decoder bound to this tokenizer.
	NewStream() TokenStream
}

// TokenStream decodes tokens one at a time, carrying partial state between
// calls (e.g. multi-byte sequences split across tokens).
type TokenStream interface {
	Decode(token int32) (string, error)
}

// Generator drives autoregressive generation for one request.
type Generator interface {
	AppendTokens(tokens []int32) error
	// IsDone reports whether the termination criteria are met: max length,
	// or a stop token once the minimum length is reached.
	IsDone() bool
	GenerateNextToken() error
	// LastToken returns the most recently generated token.
	LastToken() (int32, error)
	Close() error
}

// GeneratorConfig binds a language model to a provider.
type GeneratorConfig struct {
	Provider string
	Options  map[string]string
	// Context window to allocate; 0 lets the backend decide.
	ContextLength int
}

// LanguageModel is a loaded generative model. Each request gets its own
// Generator; the model itself must be closed by its owner.
type LanguageModel interface {
	Tokenizer() Tokenizer
	NewGenerator(opts SearchOptions) (Generator, error)
	Close() error
}

// ModelOpener loads a model folder into a LanguageModel.
type ModelOpener interface {
	OpenModel(folder string, cfg GeneratorConfig) (LanguageModel, error)
}

// CompileRequest asks a compiler to specialize the input model for a provider.
type CompileRequest struct {
	InputPath  string
	OutputPath string
	Provider   string
	Options    map[string]string
}

// Compiler produces a provider-specialized artifact at OutputPath.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) error
}
