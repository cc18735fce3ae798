package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"epmgr/internal/classify"
	"epmgr/internal/generate"
	"epmgr/internal/runtime"
)

type runIDKey struct{}

// WithRunID attaches a generation run id to ctx.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFrom returns the run id attached to ctx, or a new one.
func RunIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Classify runs the loaded classifier once on input.
func (m *Manager) Classify(ctx context.Context, input runtime.Tensor) (classify.Result, error) {
	inst, release, err := m.begin(ctx, KindClassifier)
	if err != nil {
		return classify.Result{}, err
	}
	defer release()

	ctx, span := m.tracer.Start(ctx, "manager.classify", deviceAttr(inst.Device.Name))
	defer span.End()
	start := time.Now()
	res, err := m.classifier.Classify(ctx, inst.sess, input)
	m.metrics.observeClassify(err)
	if err != nil {
		m.fail(span, err)
		return classify.Result{}, err
	}
	fields := map[string]any{"dur": time.Since(start)}
	if top, ok := res.Top(); ok {
		fields["top"] = top.Label
	}
	m.publisher.Publish(Event{Name: EventClassifyDone, Device: inst.Device.Name, Fields: fields})
	return res, nil
}

// GenerateResult is a finished generation and its run id.
type GenerateResult struct {
	RunID string
	generate.FinalResult
}

// Generate answers prompt with the loaded generator, streaming the full
// response so far to onProgress after every token. One generation runs at a
// time; others queue.
func (m *Manager) Generate(ctx context.Context, prompt string, onProgress generate.ProgressFunc) (GenerateResult, error) {
	runID := RunIDFrom(ctx)
	inst, release, err := m.begin(ctx, KindGenerator)
	if err != nil {
		return GenerateResult{RunID: runID}, err
	}
	defer release()

	ctx, span := m.tracer.Start(ctx, "manager.generate", deviceAttr(inst.Device.Name))
	defer span.End()
	span.SetAttributes(attribute.String("epmgr.run_id", runID))
	m.publisher.Publish(Event{Name: EventGenerateStart, Device: inst.Device.Name, Fields: map[string]any{"run_id": runID}})

	start := time.Now()
	res, err := m.generator.Generate(ctx, inst.model, prompt, onProgress)
	m.metrics.addTokens(inst.Device.Name, res.Tokens)
	span.SetAttributes(attribute.Int("epmgr.tokens", res.Tokens), attribute.String("epmgr.finish_reason", res.FinishReason))
	fields := map[string]any{"run_id": runID, "tokens": res.Tokens, "finish_reason": res.FinishReason, "dur": time.Since(start)}
	if err != nil {
		m.fail(span, err)
		fields["error"] = err.Error()
	}
	m.log.Info().Str("run_id", runID).Str("device", inst.Device.Name).Int("tokens", res.Tokens).Str("finish_reason", res.FinishReason).Dur("dur", time.Since(start)).Msg("manager event=generate_done")
	m.publisher.Publish(Event{Name: EventGenerateDone, Device: inst.Device.Name, Fields: fields})
	return GenerateResult{RunID: runID, FinalResult: res}, err
}
