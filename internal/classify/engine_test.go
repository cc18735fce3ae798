package classify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epmgr/internal/runtime"
	"epmgr/internal/runtime/runtimetest"
)

func squeezenetInput() runtime.Tensor {
	shape := []int64{1, 3, 4, 4}
	t := runtime.Tensor{Shape: shape, ElementType: runtime.Float32}
	t.Data = make([]float32, t.Elements())
	for i := range t.Data {
		t.Data[i] = float32(i%7) / 7
	}
	return t
}

func TestClassifyRanksSoftmaxScores(t *testing.T) {
	sess := runtimetest.NewClassifier([]int64{-1, 3, 4, 4}, []float32{0.5, 4, 1, 4, -2, 3})
	e := New(Config{Labels: Labels{"tench", "goldfish", "shark", "", "hen"}, TopK: 3})

	res, err := e.Classify(context.Background(), sess, squeezenetInput())
	require.NoError(t, err)
	require.Len(t, res.Predictions, 3)
	// Ties on score keep the lower index first; index 3 has no label.
	assert.Equal(t, []int{1, 3, 5}, []int{res.Predictions[0].Index, res.Predictions[1].Index, res.Predictions[2].Index})
	assert.Equal(t, "goldfish", res.Predictions[0].Label)
	assert.Equal(t, "#3", res.Predictions[1].Label)
	assert.Equal(t, "#5", res.Predictions[2].Label)
	assert.InDelta(t, res.Predictions[0].Score, res.Predictions[1].Score, 1e-6)

	var sum float32
	for _, p := range softmax([]float32{0.5, 4, 1, 4, -2, 3}) {
		sum += p
	}
	assert.InDelta(t, 1, sum, 1e-5)
}

func TestClassifyIsIdempotent(t *testing.T) {
	sess := runtimetest.NewClassifier([]int64{1, 3, 4, 4}, []float32{0.1, 0.7, 0.2})
	e := New(Config{Labels: Labels{"a", "b", "c"}})
	in := squeezenetInput()

	first, err := e.Classify(context.Background(), sess, in)
	require.NoError(t, err)
	second, err := e.Classify(context.Background(), sess, in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, first.Format(), second.Format())
	assert.Equal(t, 2, sess.Runs())
}

func TestFormat(t *testing.T) {
	res := Result{Predictions: []Prediction{
		{Rank: 1, Label: "goldfish", Score: 0.8123},
		{Rank: 2, Label: "tench", Score: 0.1},
	}}
	assert.Equal(t, "1. goldfish (81.23%)\n2. tench (10.00%)", res.Format())
}

func TestRawScoresAreNotNormalized(t *testing.T) {
	sess := runtimetest.NewClassifier([]int64{1, 3, 4, 4}, []float32{0.25, 0.75})
	res, err := New(Config{RawScores: true}).Classify(context.Background(), sess, squeezenetInput())
	require.NoError(t, err)
	top, ok := res.Top()
	require.True(t, ok)
	assert.Equal(t, float32(0.75), top.Score)
	assert.Len(t, res.Predictions, 2)
}

func TestBindErrors(t *testing.T) {
	sess := runtimetest.NewClassifier([]int64{1, 3, 4, 4}, []float32{1})
	e := New(Config{})
	cases := map[string]runtime.Tensor{
		"rank":     {Shape: []int64{3, 4, 4}, Data: make([]float32, 48)},
		"dim":      {Shape: []int64{1, 3, 8, 8}, Data: make([]float32, 192)},
		"count":    {Shape: []int64{1, 3, 4, 4}, Data: make([]float32, 10)},
		"type":     {Shape: []int64{1, 3, 4, 4}, ElementType: "int64", Data: make([]float32, 48)},
		"empty":    {},
		"negative": {Shape: []int64{1, -3, 4, 4}, Data: make([]float32, 48)},
	}
	for name, in := range cases {
		_, err := e.Classify(context.Background(), sess, in)
		assert.True(t, IsBind(err), name)
		assert.ErrorIs(t, err, errdefs.ErrInvalidArgument, name)
	}
	assert.Zero(t, sess.Runs())
}

func TestInferenceErrorIsNotRetried(t *testing.T) {
	boom := errors.New("device lost")
	sess := runtimetest.NewClassifier([]int64{1, 3, 4, 4}, nil)
	sess.Err = boom
	_, err := New(Config{}).Classify(context.Background(), sess, squeezenetInput())
	assert.True(t, IsInference(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, sess.Runs())
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("tench\n\ngoldfish\n"), 0o644))
	l, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, "tench", l.Name(0))
	assert.Equal(t, "#1", l.Name(1))
	assert.Equal(t, "goldfish", l.Name(2))
	assert.Equal(t, "#9", l.Name(9))

	_, err = LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
