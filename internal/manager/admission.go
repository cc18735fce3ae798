package manager

import (
	"context"
	"time"
)

// begin reserves a queue slot and then the single in-flight slot of the
// context of kind. Returns the instance and a release func to be deferred.
func (m *Manager) begin(ctx context.Context, kind Kind) (*Instance, func(), error) {
	m.mu.RLock()
	inst := m.instances[kind]
	m.mu.RUnlock()
	if inst == nil || inst.State != StateReady {
		return nil, func() {}, notLoadedError{kind: kind}
	}

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()

	// Try to reserve a queue slot with timeout
	select {
	case inst.queueCh <- struct{}{}:
	case <-ctx.Done():
		return nil, func() {}, ctx.Err()
	case <-timer.C:
		m.metrics.rejected(kind)
		return nil, func() {}, tooBusyError{kind: kind}
	}

	// Wait to acquire the single in-flight slot
	acquired := false
	defer func() {
		if !acquired {
			<-inst.queueCh
		}
	}()
	select {
	case inst.genCh <- struct{}{}:
	case <-ctx.Done():
		return nil, func() {}, ctx.Err()
	case <-timer.C:
		m.metrics.rejected(kind)
		return nil, func() {}, tooBusyError{kind: kind}
	}

	// The context may have been drained while this request waited.
	m.mu.Lock()
	if inst.State != StateReady {
		m.mu.Unlock()
		<-inst.genCh
		return nil, func() {}, notLoadedError{kind: kind}
	}
	inst.LastUsed = time.Now()
	m.mu.Unlock()
	acquired = true
	return inst, func() { <-inst.genCh; <-inst.queueCh }, nil
}

// drain stops admission to inst, waits for its in-flight call and closes
// it. Callers hold loadMu.
func (m *Manager) drain(inst *Instance) error {
	m.mu.Lock()
	inst.State = StateDraining
	if m.instances[inst.Kind] == inst {
		delete(m.instances, inst.Kind)
	}
	m.mu.Unlock()

	inst.genCh <- struct{}{}
	err := inst.close()
	<-inst.genCh
	if err != nil {
		m.log.Warn().Str("kind", string(inst.Kind)).Str("device", inst.Device.Name).Err(err).Msg("manager event=close_failed")
	}
	m.log.Info().Str("kind", string(inst.Kind)).Str("device", inst.Device.Name).Msg("manager event=unload")
	m.publisher.Publish(Event{Name: EventUnload, Device: inst.Device.Name, Fields: map[string]any{"kind": string(inst.Kind)}})
	return err
}
