// Package llama exposes go-llama.cpp models through the runtime.LanguageModel
// interface. The native bridge is compiled only with the `llama` build tag;
// other builds get a stub opener that reports the dependency as unavailable.
//
// go-llama.cpp streams text pieces rather than token ids, so the bridge keeps
// a per-model piece table: every distinct generated piece gets a stable id, and
// the stream decoder maps ids back to pieces.
package llama

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"epmgr/internal/runtime"
)

// Opener loads GGUF models from a model folder.
type Opener struct {
	// ContextSize is the default context window when the model config does
	// not name one.
	ContextSize int
	Threads     int
	// GPULayers offloaded when the provider is not the CPU.
	GPULayers int
}

var _ runtime.ModelOpener = (*Opener)(nil)

// FindWeights returns the GGUF file to load for folder. folder may name the
// file directly.
func FindWeights(folder string) (string, error) {
	if strings.EqualFold(filepath.Ext(folder), ".gguf") {
		return folder, nil
	}
	matches, err := filepath.Glob(filepath.Join(folder, "*.gguf"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no .gguf weights in %s: %w", folder, os.ErrNotExist)
	}
	slices.Sort(matches)
	return matches[0], nil
}

// phi3Template renders messages in the Phi-3 chat format and leaves the
// assistant turn open.
func phi3Template(messages []runtime.Message) (string, error) {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return "", fmt.Errorf("unsupported chat role %q", m.Role)
		}
		b.WriteString("<|")
		b.WriteString(m.Role)
		b.WriteString("|>\n")
		b.WriteString(m.Content)
		b.WriteString("<|end|>\n")
	}
	b.WriteString("<|assistant|>\n")
	return b.String(), nil
}

// pieceTable interns generated pieces as token ids. Rendered prompts are
// held under negative ids only until a generator takes them, so the table
// grows with the distinct pieces the model emits, not with the prompts.
type pieceTable struct {
	mu      sync.Mutex
	ids     map[string]int32
	pieces  []string
	prompts map[int32]string
	nextID  int32
}

func newPieceTable() *pieceTable {
	return &pieceTable{ids: map[string]int32{}, prompts: map[int32]string{}}
}

func (p *pieceTable) intern(s string) int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.ids[s]; ok {
		return id
	}
	id := int32(len(p.pieces))
	p.pieces = append(p.pieces, s)
	p.ids[s] = id
	return id
}

func (p *pieceTable) lookup(id int32) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || int(id) >= len(p.pieces) {
		return "", false
	}
	return p.pieces[id], true
}

// holdPrompt parks text until takePrompt or dropPrompts releases it.
func (p *pieceTable) holdPrompt(text string) int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID--
	p.prompts[p.nextID] = text
	return p.nextID
}

// takePrompt reassembles the text behind tokens, releasing held prompts.
func (p *pieceTable) takePrompt(tokens []int32) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var b strings.Builder
	for _, id := range tokens {
		if id < 0 {
			text, ok := p.prompts[id]
			if !ok {
				return "", fmt.Errorf("unknown prompt id %d", id)
			}
			delete(p.prompts, id)
			b.WriteString(text)
			continue
		}
		if int(id) >= len(p.pieces) {
			return "", fmt.Errorf("unknown token id %d", id)
		}
		b.WriteString(p.pieces[id])
	}
	return b.String(), nil
}

func (p *pieceTable) dropPrompts(tokens []int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range tokens {
		delete(p.prompts, id)
	}
}

// held returns how many prompts wait for a generator.
func (p *pieceTable) held() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

// tokenizer implements runtime.Tokenizer over a piece table. Encode keeps the
// prompt as a single held id; the native side tokenizes it again on Predict.
type tokenizer struct{ table *pieceTable }

func (t tokenizer) ApplyChatTemplate(messages []runtime.Message) (string, error) {
	return phi3Template(messages)
}

func (t tokenizer) Encode(text string) ([]int32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty prompt")
	}
	return []int32{t.table.holdPrompt(text)}, nil
}

func (t tokenizer) NewStream() runtime.TokenStream { return stream{table: t.table} }

type stream struct{ table *pieceTable }

func (s stream) Decode(id int32) (string, error) {
	piece, ok := s.table.lookup(id)
	if !ok {
		return "", fmt.Errorf("unknown token id %d", id)
	}
	return piece, nil
}
