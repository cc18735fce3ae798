// Package manager coordinates device selection, compilation, loading and
// inference for one caller-held execution context. It is structured into
// small files by concern:
//
//   - manager.go: core Manager type, device selection, state helpers.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: state types (State, Kind, Instance, Snapshot, LoadInfo).
//   - errors.go: error types and helpers (IsTooBusy, IsNoDevice, IsNotLoaded).
//   - admission.go: per-context queueing and single in-flight admission.
//   - load.go: Compile, LoadClassifier and LoadGenerator.
//   - infer.go: Classify and Generate entry points.
//   - status_report.go: Status/Snapshot reporting helpers.
//   - metrics.go, events.go, eventpub.go: Prometheus collectors, lifecycle
//     events and their publishers.
//
// A Manager holds at most one classifier and one generator, both bound to
// the selected device. Selecting another device drains and closes them.
// Native runtimes are injected through ManagerConfig; see internal/runtime
// for the build-tagged bridges.
package manager
