package ort

import (
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epmgr/internal/policy"
	"epmgr/internal/registry"
	"epmgr/internal/runtime"
)

func TestConcreteShape(t *testing.T) {
	assert.Equal(t, []int64{1, 3, 224, 224}, concreteShape([]int64{-1, 3, 224, 224}))
}

func TestPlanProvider(t *testing.T) {
	p, err := planProvider(runtime.SessionConfig{Provider: "OpenVINOExecutionProvider", Options: map[string]string{"num_of_threads": "4"}})
	require.NoError(t, err)
	assert.Equal(t, policy.KindOpenVINO, p.kind)
	assert.Equal(t, 4, p.threads)
	assert.Equal(t, "4", p.openvino["num_of_threads"])

	p, err = planProvider(runtime.SessionConfig{Provider: "NvTensorRTRTXExecutionProvider", Options: map[string]string{"enable_cuda_graph": "true"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"trt_cuda_graph_enable": "1"}, p.tensorrt)

	p, err = planProvider(runtime.SessionConfig{Provider: "CPUExecutionProvider"})
	require.NoError(t, err)
	assert.Equal(t, policy.KindCPU, p.kind)

	p, err = planProvider(runtime.SessionConfig{})
	require.NoError(t, err)
	assert.Equal(t, policy.KindCPU, p.kind)

	_, err = planProvider(runtime.SessionConfig{Provider: "QNNExecutionProvider"})
	assert.ErrorIs(t, err, errdefs.ErrNotImplemented)
}

// Every name the policy classifies gets a plan of the same kind, so options
// resolved by the policy are never rejected here for a supported kind.
func TestPlanProviderFollowsPolicyKind(t *testing.T) {
	for _, name := range []string{
		"OpenVINOExecutionProvider",
		"OpenVINOExecutionProvider.GPU",
		"DmlExecutionProvider",
		"CPUExecutionProvider",
		"NvTensorRTRTXExecutionProvider",
	} {
		dev := registry.Device{Name: name}
		p, err := planProvider(runtime.SessionConfig{Provider: name, Options: policy.Resolve(dev, policy.PhaseRun)})
		require.NoError(t, err, name)
		assert.Equal(t, policy.Classify(name), p.kind, name)
	}
}
