// Package runtimetest provides scripted in-memory runtimes for tests.
package runtimetest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"epmgr/internal/runtime"
)

// Session is a scripted runtime.Session returning Output on every Run.
type Session struct {
	In     []runtime.TensorInfo
	Out    []runtime.TensorInfo
	Output []float32
	Err    error

	mu     sync.Mutex
	runs   int
	closed int
	last   runtime.Tensor
}

// NewClassifier returns a Session with one float32 input of shape inShape
// and one output of len(scores) scores.
func NewClassifier(inShape []int64, scores []float32) *Session {
	return &Session{
		In:     []runtime.TensorInfo{{Name: "data", Shape: inShape, ElementType: runtime.Float32}},
		Out:    []runtime.TensorInfo{{Name: "scores", Shape: []int64{1, int64(len(scores))}, ElementType: runtime.Float32}},
		Output: scores,
	}
}

func (s *Session) Inputs() []runtime.TensorInfo  { return s.In }
func (s *Session) Outputs() []runtime.TensorInfo { return s.Out }

func (s *Session) Run(input runtime.Tensor) (runtime.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	s.last = input
	if s.Err != nil {
		return runtime.Tensor{}, s.Err
	}
	return runtime.Tensor{
		Shape:       []int64{1, int64(len(s.Output))},
		ElementType: runtime.Float32,
		Data:        append([]float32(nil), s.Output...),
	}, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Runs returns how many times Run was called.
func (s *Session) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Closed returns how many times Close was called.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SessionOpener hands out Session, or fails with Err.
type SessionOpener struct {
	Session *Session
	Err     error

	mu      sync.Mutex
	configs []runtime.SessionConfig
	paths   []string
}

func (o *SessionOpener) OpenSession(path string, cfg runtime.SessionConfig) (runtime.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paths = append(o.paths, path)
	o.configs = append(o.configs, cfg)
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Session, nil
}

// Configs returns every config passed to OpenSession.
func (o *SessionOpener) Configs() []runtime.SessionConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]runtime.SessionConfig(nil), o.configs...)
}

// Paths returns every path passed to OpenSession.
func (o *SessionOpener) Paths() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.paths...)
}

// Model is a scripted language model. Each generator emits Pieces in order,
// cycling when MinLength asks for more. Generated token ids are step numbers
// from 0; prompt token ids are negative.
type Model struct {
	Pieces      []string
	TemplateErr error
	EncodeErr   error

	// 1-based step numbers at which stepping or decoding fails; 0 never.
	StepErrAt   int
	DecodeErrAt int

	// IgnoreMax makes generators disregard SearchOptions.MaxLength and
	// cycle through Pieces forever.
	IgnoreMax bool

	// OnStep, when set, runs before every step.
	OnStep func(step int)

	mu         sync.Mutex
	prompts    []string
	searches   []runtime.SearchOptions
	generators int
	open       int
	closed     int
}

func (m *Model) Tokenizer() runtime.Tokenizer { return modelTokenizer{m: m} }

func (m *Model) NewGenerator(opts runtime.SearchOptions) (runtime.Generator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generators++
	m.open++
	m.searches = append(m.searches, opts)
	return &generator{m: m, opts: opts}, nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// Prompts returns every rendered prompt that was encoded.
func (m *Model) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Searches returns the search options of every generator created.
func (m *Model) Searches() []runtime.SearchOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]runtime.SearchOptions(nil), m.searches...)
}

// Generators returns how many generators were created.
func (m *Model) Generators() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generators
}

// OpenGenerators returns how many generators are not yet closed.
func (m *Model) OpenGenerators() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Closed returns how many times Close was called.
func (m *Model) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type modelTokenizer struct{ m *Model }

func (t modelTokenizer) ApplyChatTemplate(messages []runtime.Message) (string, error) {
	if t.m.TemplateErr != nil {
		return "", t.m.TemplateErr
	}
	var b strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&b, "<%s>%s", msg.Role, msg.Content)
	}
	b.WriteString("<assistant>")
	return b.String(), nil
}

func (t modelTokenizer) Encode(text string) ([]int32, error) {
	if t.m.EncodeErr != nil {
		return nil, t.m.EncodeErr
	}
	t.m.mu.Lock()
	t.m.prompts = append(t.m.prompts, text)
	t.m.mu.Unlock()
	ids := make([]int32, 0, len(text))
	for i := range text {
		ids = append(ids, int32(-1-i))
	}
	return ids, nil
}

func (t modelTokenizer) NewStream() runtime.TokenStream { return modelStream{m: t.m} }

type modelStream struct{ m *Model }

func (s modelStream) Decode(id int32) (string, error) {
	if id < 0 || len(s.m.Pieces) == 0 {
		return "", fmt.Errorf("cannot decode token %d", id)
	}
	if s.m.DecodeErrAt > 0 && int(id)+1 == s.m.DecodeErrAt {
		return "", fmt.Errorf("invalid utf-8 in token %d", id)
	}
	return s.m.Pieces[int(id)%len(s.m.Pieces)], nil
}

type generator struct {
	m      *Model
	opts   runtime.SearchOptions
	prompt int
	step   int
	closed bool
}

func (g *generator) AppendTokens(tokens []int32) error {
	g.prompt += len(tokens)
	return nil
}

func (g *generator) IsDone() bool {
	if g.m.IgnoreMax {
		return false
	}
	if g.opts.MaxLength > 0 && g.step >= g.opts.MaxLength {
		return true
	}
	// Stop at the end of Pieces, but not before the minimum length.
	if g.step < g.opts.MinLength {
		return false
	}
	return g.step >= len(g.m.Pieces)
}

func (g *generator) GenerateNextToken() error {
	if g.prompt == 0 {
		return fmt.Errorf("no prompt appended")
	}
	g.step++
	if g.m.OnStep != nil {
		g.m.OnStep(g.step)
	}
	if g.m.StepErrAt > 0 && g.step == g.m.StepErrAt {
		return fmt.Errorf("native step %d failed", g.step)
	}
	return nil
}

func (g *generator) LastToken() (int32, error) {
	if g.step == 0 {
		return 0, fmt.Errorf("no token yet")
	}
	return int32(g.step - 1), nil
}

func (g *generator) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	g.m.mu.Lock()
	g.m.open--
	g.m.mu.Unlock()
	return nil
}

// ModelOpener hands out Model, or fails with Err.
type ModelOpener struct {
	Model *Model
	Err   error

	mu      sync.Mutex
	configs []runtime.GeneratorConfig
}

func (o *ModelOpener) OpenModel(folder string, cfg runtime.GeneratorConfig) (runtime.LanguageModel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.configs = append(o.configs, cfg)
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Model, nil
}

// Configs returns every config passed to OpenModel.
func (o *ModelOpener) Configs() []runtime.GeneratorConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]runtime.GeneratorConfig(nil), o.configs...)
}

// Compiler writes a marker file as the compiled artifact.
type Compiler struct {
	Err error

	mu    sync.Mutex
	calls int
}

func (c *Compiler) Compile(ctx context.Context, req runtime.CompileRequest) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	return os.WriteFile(req.OutputPath, []byte("compiled for "+req.Provider), 0o644)
}

// Calls returns how many compiles ran.
func (c *Compiler) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
