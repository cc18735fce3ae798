//go:build ort

package ort

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"epmgr/internal/policy"
	"epmgr/internal/runtime"
)

// Built reports whether this binary carries the ONNX Runtime bridge.
const Built = true

var envMu sync.Mutex

func (o *Opener) ensureEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if o.LibraryPath != "" {
		ort.SetSharedLibraryPath(o.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return runtime.ErrDependencyUnavailable("initialize onnxruntime: %v", err)
	}
	return nil
}

// session binds one preallocated input and output tensor to an
// AdvancedSession. Dynamic dimensions are fixed to 1 at open time.
type session struct {
	inputs  []runtime.TensorInfo
	outputs []runtime.TensorInfo
	in      *ort.Tensor[float32]
	out     *ort.Tensor[float32]
	native  *ort.AdvancedSession
	closed  bool
}

// OpenSession opens path bound to cfg.Provider. Only the first input and first
// output are bound.
func (o *Opener) OpenSession(path string, cfg runtime.SessionConfig) (runtime.Session, error) {
	plan, err := planProvider(cfg)
	if err != nil {
		return nil, err
	}
	if err := o.ensureEnvironment(); err != nil {
		return nil, err
	}
	inInfo, outInfo, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("read model io: %w", err)
	}
	if len(inInfo) == 0 || len(outInfo) == 0 {
		return nil, fmt.Errorf("model %s has no inputs or outputs", path)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()
	if err := applyPlan(opts, plan); err != nil {
		return nil, err
	}

	s := &session{inputs: describe(inInfo), outputs: describe(outInfo)}
	inShape := concreteShape(s.inputs[0].Shape)
	outShape := concreteShape(s.outputs[0].Shape)
	if s.in, err = ort.NewEmptyTensor[float32](ort.NewShape(inShape...)); err != nil {
		return nil, err
	}
	if s.out, err = ort.NewEmptyTensor[float32](ort.NewShape(outShape...)); err != nil {
		s.in.Destroy()
		return nil, err
	}
	s.native, err = ort.NewAdvancedSession(path,
		[]string{inInfo[0].Name}, []string{outInfo[0].Name},
		[]ort.Value{s.in}, []ort.Value{s.out}, opts)
	if err != nil {
		s.in.Destroy()
		s.out.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.inputs[0].Shape = inShape
	return s, nil
}

func applyPlan(opts *ort.SessionOptions, p providerPlan) error {
	if p.threads > 0 {
		if err := opts.SetIntraOpNumThreads(p.threads); err != nil {
			return err
		}
	}
	switch p.kind {
	case policy.KindDML:
		return opts.AppendExecutionProviderDirectML(p.deviceID)
	case policy.KindOpenVINO:
		return opts.AppendExecutionProviderOpenVINO(p.openvino)
	case policy.KindNvTensorRT:
		trt, err := ort.NewTensorRTProviderOptions()
		if err != nil {
			return err
		}
		defer trt.Destroy()
		if len(p.tensorrt) > 0 {
			if err := trt.Update(p.tensorrt); err != nil {
				return err
			}
		}
		return opts.AppendExecutionProviderTensorRT(trt)
	}
	return nil
}

func describe(infos []ort.InputOutputInfo) []runtime.TensorInfo {
	out := make([]runtime.TensorInfo, len(infos))
	for i, info := range infos {
		et := runtime.ElementType(info.DataType.String())
		if info.DataType == ort.TensorElementDataTypeFloat {
			et = runtime.Float32
		}
		out[i] = runtime.TensorInfo{Name: info.Name, Shape: append([]int64(nil), info.Dimensions...), ElementType: et}
	}
	return out
}

func (s *session) Inputs() []runtime.TensorInfo  { return s.inputs }
func (s *session) Outputs() []runtime.TensorInfo { return s.outputs }

func (s *session) Run(input runtime.Tensor) (runtime.Tensor, error) {
	if s.closed {
		return runtime.Tensor{}, fmt.Errorf("session closed")
	}
	dst := s.in.GetData()
	if len(input.Data) != len(dst) {
		return runtime.Tensor{}, fmt.Errorf("input has %d elements, session expects %d", len(input.Data), len(dst))
	}
	copy(dst, input.Data)
	if err := s.native.Run(); err != nil {
		return runtime.Tensor{}, err
	}
	res := s.out.GetData()
	shape := s.out.GetShape()
	return runtime.Tensor{
		Shape:       append([]int64(nil), shape...),
		ElementType: runtime.Float32,
		Data:        append([]float32(nil), res...),
	}, nil
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.native.Destroy()
	s.in.Destroy()
	s.out.Destroy()
	return err
}
