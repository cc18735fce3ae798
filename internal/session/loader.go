// Package session instantiates runtime contexts bound to a device: single-shot
// sessions over a model artifact and language models over a model folder.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"epmgr/internal/artifact"
	"epmgr/internal/common/fsutil"
	"epmgr/internal/policy"
	"epmgr/internal/registry"
	"epmgr/internal/runtime"
)

// GenAIConfigFile must be present in every generative model folder.
const GenAIConfigFile = "genai_config.json"

// Config configures a Loader.
type Config struct {
	Sessions runtime.SessionOpener
	Models   runtime.ModelOpener
	// ContextLength caps the language model context window; 0 uses the
	// model's own value.
	ContextLength int
	Logger        *zerolog.Logger
}

// Loader opens sessions and language models. It holds no state of its own
// beyond configuration.
type Loader struct {
	sessions runtime.SessionOpener
	models   runtime.ModelOpener
	ctxLen   int
	log      zerolog.Logger
}

// NewLoader returns a Loader for cfg.
func NewLoader(cfg Config) *Loader {
	l := &Loader{sessions: cfg.Sessions, models: cfg.Models, ctxLen: cfg.ContextLength, log: zerolog.Nop()}
	if cfg.Logger != nil {
		l.log = *cfg.Logger
	}
	return l
}

// Session is a loaded single-shot model bound to one device. It is the sole
// owner of the native session; Close is idempotent.
type Session struct {
	native runtime.Session
	Device registry.Device
	Path   string

	closeOnce sync.Once
	closeErr  error
}

var _ runtime.Session = (*Session)(nil)

// DeviceName returns the provider the session is bound to.
func (s *Session) DeviceName() string { return s.Device.Name }

func (s *Session) Inputs() []runtime.TensorInfo  { return s.native.Inputs() }
func (s *Session) Outputs() []runtime.TensorInfo { return s.native.Outputs() }

func (s *Session) Run(input runtime.Tensor) (runtime.Tensor, error) { return s.native.Run(input) }

func (s *Session) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.native.Close() })
	return s.closeErr
}

// LoadSession opens art on dev with run-phase options.
func (l *Loader) LoadSession(ctx context.Context, art artifact.Artifact, dev registry.Device) (*Session, error) {
	fail := func(err error) (*Session, error) {
		l.log.Error().Str("device", dev.Name).Str("path", art.Path).Err(err).Msg("session event=load_failed")
		return nil, &LoadError{Device: dev.Name, Path: art.Path, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if art.Device != "" && art.Device != dev.Name {
		return fail(fmt.Errorf("artifact built for %s: %w", art.Device, errdefs.ErrInvalidArgument))
	}
	if !fsutil.PathExists(art.Path) {
		return fail(fmt.Errorf("artifact: %w", errdefs.ErrNotFound))
	}
	if l.sessions == nil {
		return fail(runtime.ErrDependencyUnavailable("no session runtime configured"))
	}
	start := time.Now()
	native, err := l.sessions.OpenSession(art.Path, runtime.SessionConfig{
		Provider: dev.Name,
		Options:  policy.Resolve(dev, policy.PhaseRun),
	})
	if err != nil {
		return fail(err)
	}
	l.log.Info().Str("device", dev.Name).Str("path", art.Path).Dur("dur", time.Since(start)).Msg("session event=loaded")
	return &Session{native: native, Device: dev, Path: art.Path}, nil
}

// TextModel is a loaded language model bound to one device. It is the sole
// owner of the native model; Close is idempotent.
type TextModel struct {
	native runtime.LanguageModel
	Device registry.Device
	Folder string
	// From genai_config.json.
	ModelType     string
	ContextLength int

	closeOnce sync.Once
	closeErr  error
}

var _ runtime.LanguageModel = (*TextModel)(nil)

func (m *TextModel) Tokenizer() runtime.Tokenizer { return m.native.Tokenizer() }

func (m *TextModel) NewGenerator(opts runtime.SearchOptions) (runtime.Generator, error) {
	return m.native.NewGenerator(opts)
}

func (m *TextModel) Close() error {
	m.closeOnce.Do(func() { m.closeErr = m.native.Close() })
	return m.closeErr
}

// genAIConfig is the subset of genai_config.json the loader reads.
type genAIConfig struct {
	ModelType     string
	ContextLength int
}

func readGenAIConfig(folder string) (genAIConfig, error) {
	b, err := os.ReadFile(filepath.Join(folder, GenAIConfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			return genAIConfig{}, fmt.Errorf("%s: %w", GenAIConfigFile, errdefs.ErrNotFound)
		}
		return genAIConfig{}, err
	}
	if !gjson.ValidBytes(b) {
		return genAIConfig{}, fmt.Errorf("%s is not valid json: %w", GenAIConfigFile, errdefs.ErrInvalidArgument)
	}
	return genAIConfig{
		ModelType:     gjson.GetBytes(b, "model.type").String(),
		ContextLength: int(gjson.GetBytes(b, "model.context_length").Int()),
	}, nil
}

// LoadModel opens the language model in folder on dev. Providers are
// replaced by dev with its run-phase options; nothing else is appended.
func (l *Loader) LoadModel(ctx context.Context, folder string, dev registry.Device) (*TextModel, error) {
	fail := func(err error) (*TextModel, error) {
		l.log.Error().Str("device", dev.Name).Str("path", folder).Err(err).Msg("session event=model_load_failed")
		return nil, &LoadError{Device: dev.Name, Path: folder, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	gc, err := readGenAIConfig(folder)
	if err != nil {
		return fail(err)
	}
	if l.models == nil {
		return fail(runtime.ErrDependencyUnavailable("no generative runtime configured"))
	}
	ctxLen := gc.ContextLength
	if l.ctxLen > 0 && (ctxLen == 0 || l.ctxLen < ctxLen) {
		ctxLen = l.ctxLen
	}
	start := time.Now()
	l.log.Info().Str("device", dev.Name).Str("path", folder).Msg("session event=model_load_start")
	native, err := l.models.OpenModel(folder, runtime.GeneratorConfig{
		Provider:      dev.Name,
		Options:       policy.Resolve(dev, policy.PhaseRun),
		ContextLength: ctxLen,
	})
	if err != nil {
		return fail(err)
	}
	l.log.Info().Str("device", dev.Name).Str("path", folder).Str("model_type", gc.ModelType).Dur("dur", time.Since(start)).Msg("session event=model_loaded")
	return &TextModel{native: native, Device: dev, Folder: folder, ModelType: gc.ModelType, ContextLength: ctxLen}, nil
}
