// Package generate drives autoregressive text generation over a loaded
// language model and streams the growing response to a callback.
//
// A generation moves Idle -> Primed -> Decoding -> Done. Every progress
// callback receives the full response so far, never a delta, and the final
// result equals the last payload delivered.
package generate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"epmgr/internal/runtime"
)

const (
	DefaultSystemPrompt = "You are a helpful AI assistant."
	DefaultMinLength    = 50
	DefaultMaxLength    = 500
)

// Finish reasons reported in FinalResult.
const (
	FinishStop   = "stop"
	FinishLength = "length"
	FinishError  = "error"
)

// ProgressFunc receives the full accumulated response after every token.
// It runs on the generating goroutine.
type ProgressFunc func(text string)

// FinalResult summarizes a finished generation.
type FinalResult struct {
	Content      string `json:"content"`
	Tokens       int    `json:"tokens"`
	FinishReason string `json:"finish_reason"`
}

// Config configures an Engine.
type Config struct {
	SystemPrompt string
	// Token bounds passed to the generator. 0 selects the defaults.
	MinLength int
	MaxLength int
	Logger    *zerolog.Logger
}

// Engine runs generations. It keeps no per-call state, so one Engine can
// serve several models.
type Engine struct {
	system string
	min    int
	max    int
	log    zerolog.Logger
}

// New returns an Engine for cfg. A minimum above the maximum is lowered to it.
func New(cfg Config) *Engine {
	e := &Engine{system: cfg.SystemPrompt, min: cfg.MinLength, max: cfg.MaxLength, log: zerolog.Nop()}
	if cfg.Logger != nil {
		e.log = *cfg.Logger
	}
	if e.system == "" {
		e.system = DefaultSystemPrompt
	}
	if e.min <= 0 {
		e.min = DefaultMinLength
	}
	if e.max <= 0 {
		e.max = DefaultMaxLength
	}
	if e.min > e.max {
		e.log.Warn().Int("min_length", e.min).Int("max_length", e.max).Msg("generate event=min_clamped")
		e.min = e.max
	}
	return e
}

// Bounds returns the token bounds applied to every generation.
func (e *Engine) Bounds() (minLen, maxLen int) { return e.min, e.max }

// Generate answers prompt with model. A fresh native generator is created
// for each call and closed before returning. ctx is observed between tokens.
// On failure the partial result is returned with the error.
func (e *Engine) Generate(ctx context.Context, model runtime.LanguageModel, prompt string, onProgress ProgressFunc) (FinalResult, error) {
	r := newRun(e.max)
	failed := func(err error) (FinalResult, error) {
		e.log.Debug().Str("state", r.state.String()).Int("tokens", r.tokens).Err(err).Msg("generate event=failed")
		return FinalResult{Content: r.content(), Tokens: r.tokens, FinishReason: FinishError}, err
	}
	if err := ctx.Err(); err != nil {
		return failed(err)
	}
	gen, err := model.NewGenerator(runtime.SearchOptions{MinLength: e.min, MaxLength: e.max})
	if err != nil {
		return failed(&StepError{Err: err})
	}
	defer gen.Close()

	tok := model.Tokenizer()
	text, err := tok.ApplyChatTemplate([]runtime.Message{
		{Role: "system", Content: e.system},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return failed(&EncodeError{Stage: "template", Err: err})
	}
	ids, err := tok.Encode(text)
	if err != nil {
		return failed(&EncodeError{Stage: "encode", Err: err})
	}
	if err := gen.AppendTokens(ids); err != nil {
		return failed(&EncodeError{Stage: "append", Err: err})
	}
	if err := r.advance(StatePrimed); err != nil {
		return failed(err)
	}
	e.log.Debug().Int("prompt_tokens", len(ids)).Msg("generate event=primed")

	stream := tok.NewStream()
	if err := r.advance(StateDecoding); err != nil {
		return failed(err)
	}
	start := time.Now()
	for !gen.IsDone() && !r.atMax() {
		if err := ctx.Err(); err != nil {
			return failed(err)
		}
		step := r.tokens + 1
		if err := gen.GenerateNextToken(); err != nil {
			return failed(&StepError{Step: step, Err: err})
		}
		id, err := gen.LastToken()
		if err != nil {
			return failed(&StepError{Step: step, Err: err})
		}
		piece, err := stream.Decode(id)
		if err != nil {
			return failed(&DecodeError{Token: id, Step: step, Err: err})
		}
		full := r.append(piece)
		if onProgress != nil {
			onProgress(full)
		}
	}
	if err := r.advance(StateDone); err != nil {
		return failed(err)
	}

	reason := FinishStop
	if r.atMax() {
		reason = FinishLength
	}
	e.log.Debug().Int("tokens", r.tokens).Str("finish_reason", reason).Dur("dur", time.Since(start)).Msg("generate event=done")
	return FinalResult{Content: r.content(), Tokens: r.tokens, FinishReason: reason}, nil
}
