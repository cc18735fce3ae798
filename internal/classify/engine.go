// Package classify runs single-shot classification over a loaded session and
// renders the scores as a ranked label list.
package classify

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/rs/zerolog"

	"epmgr/internal/runtime"
)

// DefaultTopK is the number of ranked entries returned when Config.TopK is 0.
const DefaultTopK = 5

// Config configures an Engine.
type Config struct {
	Labels Labels
	TopK   int
	// RawScores skips softmax; use it for models that already emit
	// probabilities.
	RawScores bool
	Logger    *zerolog.Logger
}

// Engine classifies inputs. It keeps no per-call state.
type Engine struct {
	labels Labels
	topK   int
	raw    bool
	log    zerolog.Logger
}

// New returns an Engine for cfg.
func New(cfg Config) *Engine {
	e := &Engine{labels: cfg.Labels, topK: cfg.TopK, raw: cfg.RawScores, log: zerolog.Nop()}
	if e.topK <= 0 {
		e.topK = DefaultTopK
	}
	if cfg.Logger != nil {
		e.log = *cfg.Logger
	}
	return e
}

// Prediction is one ranked entry.
type Prediction struct {
	Rank  int     `json:"rank"`
	Index int     `json:"index"`
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// Result is a ranked label list, best first.
type Result struct {
	Predictions []Prediction `json:"predictions"`
}

// Top returns the best prediction.
func (r Result) Top() (Prediction, bool) {
	if len(r.Predictions) == 0 {
		return Prediction{}, false
	}
	return r.Predictions[0], true
}

// Format renders one "<rank>. <label> (<percent>%)" line per prediction.
func (r Result) Format() string {
	var b strings.Builder
	for i, p := range r.Predictions {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s (%.2f%%)", p.Rank, p.Label, p.Score*100)
	}
	return b.String()
}

type deviceNamer interface{ DeviceName() string }

// Classify binds input to the session's first input, runs one forward pass
// and ranks the first output. Nothing is retried.
func (e *Engine) Classify(ctx context.Context, sess runtime.Session, input runtime.Tensor) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := bind(sess.Inputs(), input); err != nil {
		return Result{}, err
	}
	device := ""
	if dn, ok := sess.(deviceNamer); ok {
		device = dn.DeviceName()
	}

	start := time.Now()
	out, err := sess.Run(input)
	if err != nil {
		return Result{}, &InferenceError{Device: device, Err: err}
	}
	if len(out.Data) == 0 {
		return Result{}, &InferenceError{Device: device, Err: fmt.Errorf("empty output tensor")}
	}
	scores := out.Data
	if !e.raw {
		scores = softmax(scores)
	}
	res := Result{Predictions: rank(scores, e.labels, e.topK)}
	if top, ok := res.Top(); ok {
		e.log.Debug().Str("device", device).Str("top", top.Label).Float32("score", top.Score).Dur("dur", time.Since(start)).Msg("classify event=done")
	}
	return res, nil
}

func bind(inputs []runtime.TensorInfo, t runtime.Tensor) error {
	if len(inputs) == 0 {
		return &BindError{Err: fmt.Errorf("session has no inputs: %w", errdefs.ErrFailedPrecondition)}
	}
	want := inputs[0]
	fail := func(format string, args ...any) error {
		return &BindError{Input: want.Name, Err: fmt.Errorf(format+": %w", append(args, errdefs.ErrInvalidArgument)...)}
	}
	if want.ElementType != "" && want.ElementType != runtime.Float32 {
		return fail("model expects %s elements", want.ElementType)
	}
	if t.ElementType != "" && t.ElementType != runtime.Float32 {
		return fail("input has %s elements, want float32", t.ElementType)
	}
	if len(want.Shape) > 0 {
		if len(t.Shape) != len(want.Shape) {
			return fail("input rank %d, want %d (shape %v)", len(t.Shape), len(want.Shape), want.Shape)
		}
		for i, d := range want.Shape {
			if t.Shape[i] <= 0 {
				return fail("input dimension %d is %d", i, t.Shape[i])
			}
			if d >= 0 && t.Shape[i] != d {
				return fail("input shape %v, want %v", t.Shape, want.Shape)
			}
		}
	}
	if len(t.Shape) > 0 && t.Elements() != int64(len(t.Data)) {
		return fail("shape %v needs %d elements, got %d", t.Shape, t.Elements(), len(t.Data))
	}
	if len(t.Data) == 0 {
		return fail("input is empty")
	}
	return nil
}

func softmax(in []float32) []float32 {
	maxv := in[0]
	for _, v := range in[1:] {
		maxv = max(maxv, v)
	}
	out := make([]float32, len(in))
	var sum float64
	for i, v := range in {
		ev := math.Exp(float64(v - maxv))
		out[i] = float32(ev)
		sum += ev
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// rank returns the k best scores; equal scores keep index order.
func rank(scores []float32, labels Labels, k int) []Prediction {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		default:
			return 0
		}
	})
	k = min(k, len(idx))
	out := make([]Prediction, k)
	for r, i := range idx[:k] {
		out[r] = Prediction{Rank: r + 1, Index: i, Label: labels.Name(i), Score: scores[i]}
	}
	return out
}
