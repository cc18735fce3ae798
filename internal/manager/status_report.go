package manager

import (
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"epmgr/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{State: m.state, Err: m.err}
	if m.device != nil {
		s.Device = m.device.Name
	}
	return s
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	resp := types.StatusResponse{
		State:          string(m.state),
		LastError:      m.err,
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
		CompilesTotal:  atomic.LoadUint64(&m.compilesTotal),
		LoadsTotal:     atomic.LoadUint64(&m.loadsTotal),
	}
	if m.device != nil {
		resp.Device = m.device.Name
	}
	resp.Contexts = make([]types.ContextStatus, 0, len(m.instances))
	for _, inst := range m.instances {
		resp.Contexts = append(resp.Contexts, types.ContextStatus{
			Kind:          string(inst.Kind),
			Device:        inst.Device.Name,
			Path:          inst.Path,
			State:         string(inst.State),
			LastUsed:      inst.LastUsed.Unix(),
			QueueLen:      len(inst.queueCh),
			Inflight:      len(inst.genCh),
			MaxQueueDepth: cap(inst.queueCh),
		})
	}
	slices.SortFunc(resp.Contexts, func(a, b types.ContextStatus) int { return strings.Compare(a.Kind, b.Kind) })
	return resp
}
