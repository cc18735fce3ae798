package generate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epmgr/internal/runtime"
	"epmgr/internal/runtime/runtimetest"
)

type recorder struct{ payloads []string }

func (r *recorder) progress(text string) { r.payloads = append(r.payloads, text) }

func TestGenerateHelloWithDefaultBounds(t *testing.T) {
	model := &runtimetest.Model{Pieces: []string{"Hi", " there", "."}}
	e := New(Config{})
	var rec recorder

	res, err := e.Generate(context.Background(), model, "Hello", rec.progress)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.Tokens, DefaultMinLength)
	assert.LessOrEqual(t, res.Tokens, DefaultMaxLength)
	assert.Len(t, rec.payloads, res.Tokens)
	assert.Equal(t, rec.payloads[len(rec.payloads)-1], res.Content)
	assert.Equal(t, FinishStop, res.FinishReason)
	for i := 1; i < len(rec.payloads); i++ {
		require.True(t, strings.HasPrefix(rec.payloads[i], rec.payloads[i-1]), "payload %d does not extend payload %d", i, i-1)
	}

	assert.Equal(t, []runtime.SearchOptions{{MinLength: 50, MaxLength: 500}}, model.Searches())
	assert.Equal(t, []string{"<system>You are a helpful AI assistant.<user>Hello<assistant>"}, model.Prompts())
	assert.Zero(t, model.OpenGenerators())
}

func TestGenerateStopsAtHardCeiling(t *testing.T) {
	model := &runtimetest.Model{Pieces: []string{"a"}, IgnoreMax: true}
	var rec recorder
	res, err := New(Config{MinLength: 1, MaxLength: 20}).Generate(context.Background(), model, "go on forever", rec.progress)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Tokens)
	assert.Equal(t, strings.Repeat("a", 20), res.Content)
	assert.Equal(t, FinishLength, res.FinishReason)
	assert.Len(t, rec.payloads, 20)
}

func TestGenerateStopsOnStopCondition(t *testing.T) {
	model := &runtimetest.Model{Pieces: []string{"O", "K"}}
	res, err := New(Config{MinLength: 1, MaxLength: 10}).Generate(context.Background(), model, "ok?", nil)
	require.NoError(t, err)
	assert.Equal(t, FinalResult{Content: "OK", Tokens: 2, FinishReason: FinishStop}, res)
}

func TestGenerateDecodeErrorIsTerminal(t *testing.T) {
	model := &runtimetest.Model{Pieces: []string{"a", "b", "c", "d"}, DecodeErrAt: 3}
	var rec recorder
	res, err := New(Config{MinLength: 1, MaxLength: 10}).Generate(context.Background(), model, "x", rec.progress)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 3, de.Step)
	assert.Equal(t, []string{"a", "ab"}, rec.payloads)
	assert.Equal(t, "ab", res.Content)
	assert.Equal(t, FinishError, res.FinishReason)
	assert.Zero(t, model.OpenGenerators())
}

func TestGenerateEncodeErrors(t *testing.T) {
	boom := errors.New("bad utf-8")
	for name, model := range map[string]*runtimetest.Model{
		"template": {Pieces: []string{"a"}, TemplateErr: boom},
		"encode":   {Pieces: []string{"a"}, EncodeErr: boom},
	} {
		var rec recorder
		_, err := New(Config{}).Generate(context.Background(), model, "x", rec.progress)
		var ee *EncodeError
		require.ErrorAs(t, err, &ee, name)
		assert.Equal(t, name, ee.Stage)
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, rec.payloads)
		assert.Zero(t, model.OpenGenerators())
	}
}

func TestGenerateStepError(t *testing.T) {
	model := &runtimetest.Model{Pieces: []string{"a", "b"}, StepErrAt: 2}
	_, err := New(Config{MinLength: 1}).Generate(context.Background(), model, "x", nil)
	assert.True(t, IsStep(err))
	assert.False(t, IsDecode(err))
}

func TestGenerateObservesCancellationBetweenTokens(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	model := &runtimetest.Model{Pieces: []string{"a"}, IgnoreMax: true}
	model.OnStep = func(step int) {
		if step == 2 {
			cancel()
		}
	}
	res, err := New(Config{MinLength: 1, MaxLength: 100}).Generate(ctx, model, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
	// The token in flight when cancel fired is still delivered.
	assert.Equal(t, 2, res.Tokens)
	assert.Zero(t, model.OpenGenerators())
}

func TestGenerateUsesFreshGeneratorPerCall(t *testing.T) {
	model := &runtimetest.Model{Pieces: []string{"x", "y"}}
	e := New(Config{MinLength: 1, MaxLength: 5, SystemPrompt: "Be brief."})
	for i := 0; i < 2; i++ {
		res, err := e.Generate(context.Background(), model, "again", nil)
		require.NoError(t, err)
		assert.Equal(t, "xy", res.Content)
	}
	assert.Equal(t, 2, model.Generators())
	assert.Equal(t, "<system>Be brief.<user>again<assistant>", model.Prompts()[1])
}

func TestNewClampsMinimum(t *testing.T) {
	minLen, maxLen := New(Config{MinLength: 80, MaxLength: 40}).Bounds()
	assert.Equal(t, 40, minLen)
	assert.Equal(t, 40, maxLen)
}

func TestRunTransitions(t *testing.T) {
	r := newRun(2)
	assert.Error(t, r.advance(StateDecoding))
	require.NoError(t, r.advance(StatePrimed))
	require.NoError(t, r.advance(StateDecoding))
	assert.Equal(t, "a", r.append("a"))
	assert.Equal(t, "ab", r.append("b"))
	assert.True(t, r.atMax())
	require.NoError(t, r.advance(StateDone))
	assert.Error(t, r.advance(StateIdle))
	assert.Equal(t, "done", r.state.String())
}

func TestGenerateFailureReportsState(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	e := New(Config{MinLength: 1, MaxLength: 10, Logger: &log})

	_, err := e.Generate(context.Background(), &runtimetest.Model{Pieces: []string{"a"}, TemplateErr: errors.New("no template")}, "x", nil)
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"state":"idle"`)

	buf.Reset()
	_, err = e.Generate(context.Background(), &runtimetest.Model{Pieces: []string{"a", "b"}, DecodeErrAt: 2}, "x", nil)
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"state":"decoding"`)
}
