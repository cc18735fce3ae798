package llama

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"epmgr/internal/runtime"
)

func fakePredict(pieces []string, err error) predictFunc {
	return func(prompt string, maxTokens int, onPiece func(string) bool) error {
		for i, p := range pieces {
			if i >= maxTokens || !onPiece(p) {
				return nil
			}
		}
		return err
	}
}

func drain(t *testing.T, g runtime.Generator, tok runtime.Tokenizer) (string, error) {
	t.Helper()
	s := tok.NewStream()
	var out string
	for !g.IsDone() {
		if err := g.GenerateNextToken(); err != nil {
			return out, err
		}
		id, err := g.LastToken()
		require.NoError(t, err)
		piece, err := s.Decode(id)
		require.NoError(t, err)
		out += piece
	}
	return out, nil
}

func TestGeneratorStreamsAllPieces(t *testing.T) {
	defer goleak.VerifyNone(t)
	table := newPieceTable()
	tok := tokenizer{table: table}
	released := false
	g := newGenerator(table, fakePredict([]string{"Hel", "lo", "!"}, nil), runtime.SearchOptions{MaxLength: 10}, func() { released = true })

	ids, err := tok.Encode("prompt")
	require.NoError(t, err)
	require.NoError(t, g.AppendTokens(ids))

	out, err := drain(t, g, tok)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", out)
	assert.True(t, g.IsDone())
	require.NoError(t, g.Close())
	assert.True(t, released)
}

func TestGeneratorStopsAtMaxLength(t *testing.T) {
	defer goleak.VerifyNone(t)
	table := newPieceTable()
	endless := func(prompt string, maxTokens int, onPiece func(string) bool) error {
		for onPiece("x") {
		}
		return nil
	}
	g := newGenerator(table, endless, runtime.SearchOptions{MaxLength: 3}, nil)
	out, err := drain(t, g, tokenizer{table: table})
	require.NoError(t, err)
	assert.Equal(t, "xxx", out)
	// Close must unblock the goroutine still waiting to hand over a piece.
	require.NoError(t, g.Close())
}

func TestGeneratorReportsNativeError(t *testing.T) {
	defer goleak.VerifyNone(t)
	table := newPieceTable()
	boom := errors.New("kv cache full")
	g := newGenerator(table, fakePredict([]string{"a"}, boom), runtime.SearchOptions{MaxLength: 10}, nil)
	out, err := drain(t, g, tokenizer{table: table})
	assert.Equal(t, "a", out)
	assert.ErrorIs(t, err, boom)
	assert.True(t, g.IsDone())
	require.NoError(t, g.Close())
}

func TestGeneratorRejectsAppendAfterStart(t *testing.T) {
	defer goleak.VerifyNone(t)
	table := newPieceTable()
	g := newGenerator(table, fakePredict([]string{"a", "b"}, nil), runtime.SearchOptions{MaxLength: 10}, nil)
	require.NoError(t, g.GenerateNextToken())
	assert.Error(t, g.AppendTokens([]int32{0}))
	require.NoError(t, g.Close())
	assert.ErrorIs(t, g.GenerateNextToken(), errGeneratorClosed)
}

func TestGeneratorHoldsMinLengthWhenPredictionEndsEarly(t *testing.T) {
	defer goleak.VerifyNone(t)
	table := newPieceTable()
	tok := tokenizer{table: table}
	var prompts []string
	short := func(prompt string, maxTokens int, onPiece func(string) bool) error {
		prompts = append(prompts, prompt)
		for i, p := range []string{"a", "b", "c"} {
			if i >= maxTokens || !onPiece(p) {
				return nil
			}
		}
		return nil
	}
	g := newGenerator(table, short, runtime.SearchOptions{MinLength: 50, MaxLength: 500}, nil)
	ids, err := tok.Encode("Q:")
	require.NoError(t, err)
	require.NoError(t, g.AppendTokens(ids))

	out, err := drain(t, g, tok)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(out), 50)
	assert.LessOrEqual(t, len(out), 500)
	require.Greater(t, len(prompts), 1)
	assert.Equal(t, "Q:", prompts[0])
	assert.Equal(t, "Q:abc", prompts[1], "resumed from the text produced so far")
	require.NoError(t, g.Close())
}

func TestGeneratorEndOfTurn(t *testing.T) {
	defer goleak.VerifyNone(t)
	pieces := []string{"Hi", "<|end|>", " there", "<|end|>", "junk"}

	// Below the minimum the marker is dropped and decoding goes on.
	table := newPieceTable()
	g := newGenerator(table, fakePredict(pieces, nil), runtime.SearchOptions{MinLength: 2, MaxLength: 10}, nil)
	out, err := drain(t, g, tokenizer{table: table})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", out)
	require.NoError(t, g.Close())

	// At the minimum the marker ends the turn and is not emitted.
	table = newPieceTable()
	g = newGenerator(table, fakePredict(pieces, nil), runtime.SearchOptions{MinLength: 1, MaxLength: 10}, nil)
	out, err = drain(t, g, tokenizer{table: table})
	require.NoError(t, err)
	assert.Equal(t, "Hi", out)
	require.NoError(t, g.Close())
}

func TestPromptsAreNotRetained(t *testing.T) {
	defer goleak.VerifyNone(t)
	table := newPieceTable()
	tok := tokenizer{table: table}
	for i := 0; i < 3; i++ {
		g := newGenerator(table, fakePredict([]string{"ok"}, nil), runtime.SearchOptions{MaxLength: 5}, nil)
		ids, err := tok.Encode("a long rendered prompt")
		require.NoError(t, err)
		require.NoError(t, g.AppendTokens(ids))
		_, err = drain(t, g, tok)
		require.NoError(t, err)
		require.NoError(t, g.Close())
	}
	assert.Zero(t, table.held())
	assert.Len(t, table.pieces, 1, "only the generated piece is interned")

	// A generator closed before decoding releases its prompt too.
	g := newGenerator(table, fakePredict(nil, nil), runtime.SearchOptions{MaxLength: 5}, nil)
	ids, err := tok.Encode("never decoded")
	require.NoError(t, err)
	require.NoError(t, g.AppendTokens(ids))
	require.NoError(t, g.Close())
	assert.Zero(t, table.held())
}

func TestPhi3Template(t *testing.T) {
	got, err := phi3Template([]runtime.Message{
		{Role: "system", Content: "You are a helpful AI assistant."},
		{Role: "user", Content: "Hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "<|system|>\nYou are a helpful AI assistant.<|end|>\n<|user|>\nHi<|end|>\n<|assistant|>\n", got)

	_, err = phi3Template([]runtime.Message{{Role: "tool", Content: "x"}})
	assert.Error(t, err)
}

func TestStreamRejectsUnknownID(t *testing.T) {
	_, err := stream{table: newPieceTable()}.Decode(7)
	assert.Error(t, err)
}

func TestFindWeights(t *testing.T) {
	dir := t.TempDir()
	_, err := FindWeights(dir)
	assert.ErrorIs(t, err, os.ErrNotExist)

	for _, n := range []string{"b.gguf", "a.gguf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
	got, err := FindWeights(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.gguf"), got)
}
