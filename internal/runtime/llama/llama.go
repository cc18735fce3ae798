//go:build llama

package llama

import (
	"fmt"
	"strconv"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"epmgr/internal/policy"
	"epmgr/internal/runtime"
)

// Built reports whether this binary carries the native llama bridge.
const Built = true

const defaultContextSize = 4096

type model struct {
	mu      sync.Mutex
	native  *llama.LLama
	table   *pieceTable
	threads int
	closed  bool
}

// OpenModel loads the GGUF weights in folder. Non-CPU providers get
// o.GPULayers offloaded.
func (o *Opener) OpenModel(folder string, cfg runtime.GeneratorConfig) (runtime.LanguageModel, error) {
	weights, err := FindWeights(folder)
	if err != nil {
		return nil, err
	}
	ctxSize := cfg.ContextLength
	if ctxSize <= 0 {
		ctxSize = o.ContextSize
	}
	if ctxSize <= 0 {
		ctxSize = defaultContextSize
	}
	threads := o.Threads
	if v, ok := cfg.Options[policy.OptNumThreads]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			threads = n
		}
	}
	mo := []llama.ModelOption{llama.SetContext(ctxSize)}
	if o.GPULayers > 0 && cfg.Provider != "" && policy.Classify(cfg.Provider) != policy.KindCPU {
		mo = append(mo, llama.SetGPULayers(o.GPULayers))
	}
	native, err := llama.New(weights, mo...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", weights, err)
	}
	return &model{native: native, table: newPieceTable(), threads: max(1, threads)}, nil
}

func (m *model) Tokenizer() runtime.Tokenizer { return tokenizer{table: m.table} }

// NewGenerator claims the model for one request. The model runs a single
// prediction at a time; the claim is released by Generator.Close.
func (m *model) NewGenerator(opts runtime.SearchOptions) (runtime.Generator, error) {
	if !m.mu.TryLock() {
		return nil, fmt.Errorf("model busy with another generation")
	}
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("model closed")
	}
	return newGenerator(m.table, m.predict, opts, m.mu.Unlock), nil
}

func (m *model) predict(prompt string, maxTokens int, onPiece func(string) bool) error {
	m.native.SetTokenCallback(onPiece)
	po := []llama.PredictOption{
		llama.SetTokens(max(1, maxTokens)),
		llama.SetThreads(m.threads),
		llama.SetTopP(llama.DefaultOptions.TopP),
		llama.SetTopK(llama.DefaultOptions.TopK),
		llama.SetTemperature(llama.DefaultOptions.Temperature),
		llama.SetPenalty(llama.DefaultOptions.Penalty),
		// End of turn is detected by the generator so it can hold the
		// minimum length.
		llama.IgnoreEOS,
	}
	_, err := m.native.Predict(prompt, po...)
	return err
}

func (m *model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.native.Free()
	return nil
}
