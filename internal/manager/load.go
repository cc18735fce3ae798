package manager

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"epmgr/internal/artifact"
	"epmgr/internal/registry"
)

// Compile ensures the artifact for the selected device exists in
// modelFolder, compiling it when absent.
func (m *Manager) Compile(ctx context.Context, modelFolder string) (artifact.Artifact, error) {
	dev, err := m.selected()
	if err != nil {
		return artifact.Artifact{}, err
	}
	return m.compile(ctx, modelFolder, dev)
}

func (m *Manager) compile(ctx context.Context, modelFolder string, dev registry.Device) (artifact.Artifact, error) {
	ctx, span := m.tracer.Start(ctx, "manager.compile", deviceAttr(dev.Name))
	defer span.End()
	art, err := m.cache.EnsureCompiled(ctx, modelFolder, dev)
	if err != nil {
		m.fail(span, err)
		m.publisher.Publish(Event{Name: EventCompileFailed, Device: dev.Name, Fields: map[string]any{"error": err.Error()}})
		return artifact.Artifact{}, err
	}
	span.SetAttributes(attribute.String("epmgr.artifact", art.Path), attribute.Bool("epmgr.compiled", art.Compiled))
	m.publisher.Publish(Event{Name: EventCompileDone, Device: dev.Name, Fields: map[string]any{"path": art.Path, "compiled": art.Compiled}})
	return art, nil
}

// LoadClassifier compiles (if needed) and loads the classification model in
// modelFolder on the selected device, replacing any loaded classifier.
func (m *Manager) LoadClassifier(ctx context.Context, modelFolder string) (LoadInfo, error) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	// The device is read under loadMu, where SelectDevice switches it.
	dev, err := m.selected()
	if err != nil {
		return LoadInfo{}, err
	}

	ctx, span := m.tracer.Start(ctx, "manager.load_classifier", deviceAttr(dev.Name))
	defer span.End()
	start := time.Now()
	art, err := m.compile(ctx, modelFolder, dev)
	if err != nil {
		return LoadInfo{}, err
	}
	inst := m.replace(KindClassifier, dev, art.Path)
	inst.Compiled = art.Compiled
	sess, err := m.loader.LoadSession(ctx, art, dev)
	if err != nil {
		m.fail(span, err)
		m.abandon(inst, err)
		return LoadInfo{}, err
	}
	inst.sess = sess
	return m.ready(inst, start), nil
}

// LoadGenerator loads the language model in modelFolder on the selected
// device, replacing any loaded generator.
func (m *Manager) LoadGenerator(ctx context.Context, modelFolder string) (LoadInfo, error) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	// The device is read under loadMu, where SelectDevice switches it.
	dev, err := m.selected()
	if err != nil {
		return LoadInfo{}, err
	}

	ctx, span := m.tracer.Start(ctx, "manager.load_generator", deviceAttr(dev.Name))
	defer span.End()
	start := time.Now()
	inst := m.replace(KindGenerator, dev, modelFolder)
	model, err := m.loader.LoadModel(ctx, modelFolder, dev)
	if err != nil {
		m.fail(span, err)
		m.abandon(inst, err)
		return LoadInfo{}, err
	}
	inst.model = model
	return m.ready(inst, start), nil
}

// Load dispatches on kind.
func (m *Manager) Load(ctx context.Context, kind Kind, modelFolder string) (LoadInfo, error) {
	switch kind {
	case KindClassifier:
		return m.LoadClassifier(ctx, modelFolder)
	case KindGenerator:
		return m.LoadGenerator(ctx, modelFolder)
	}
	return LoadInfo{}, invalidKindError{kind: string(kind)}
}

// Unload drains and closes the context of kind.
func (m *Manager) Unload(kind Kind) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	m.mu.RLock()
	inst := m.instances[kind]
	m.mu.RUnlock()
	if inst == nil {
		return notLoadedError{kind: kind}
	}
	err := m.drain(inst)
	m.refreshState()
	return err
}

// replace closes the loaded context of kind and registers a loading one in
// its place. Callers hold loadMu.
func (m *Manager) replace(kind Kind, dev registry.Device, path string) *Instance {
	m.mu.RLock()
	old := m.instances[kind]
	m.mu.RUnlock()
	if old != nil {
		m.drain(old)
	}
	inst := newInstance(kind, dev, path, m.maxQueueDepth)
	m.mu.Lock()
	m.instances[kind] = inst
	m.state = StateLoading
	m.mu.Unlock()
	m.log.Info().Str("kind", string(kind)).Str("device", dev.Name).Str("path", path).Msg("manager event=load_start")
	m.publisher.Publish(Event{Name: EventLoadStart, Device: dev.Name, Fields: map[string]any{"kind": string(kind), "path": path}})
	return inst
}

func (m *Manager) abandon(inst *Instance, err error) {
	m.mu.Lock()
	if m.instances[inst.Kind] == inst {
		delete(m.instances, inst.Kind)
	}
	m.mu.Unlock()
	m.refreshState()
	m.publisher.Publish(Event{Name: EventLoadFailed, Device: inst.Device.Name, Fields: map[string]any{"kind": string(inst.Kind), "error": err.Error()}})
}

func (m *Manager) ready(inst *Instance, start time.Time) LoadInfo {
	dur := time.Since(start)
	m.mu.Lock()
	inst.State = StateReady
	inst.LastUsed = time.Now()
	m.err = ""
	m.mu.Unlock()
	m.refreshState()
	atomic.AddUint64(&m.loadsTotal, 1)
	m.metrics.observeLoad(inst.Kind, dur)
	m.log.Info().Str("kind", string(inst.Kind)).Str("device", inst.Device.Name).Str("path", inst.Path).Dur("dur", dur).Msg("manager event=load_ready")
	m.publisher.Publish(Event{Name: EventLoadReady, Device: inst.Device.Name, Fields: map[string]any{"kind": string(inst.Kind), "path": inst.Path, "dur": dur}})
	return LoadInfo{Kind: inst.Kind, Device: inst.Device.Name, Path: inst.Path, Compiled: inst.Compiled, Duration: dur}
}
