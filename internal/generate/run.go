package generate

import (
	"fmt"
	"strings"
)

// State is the phase of one generation.
type State int

const (
	StateIdle State = iota
	StatePrimed
	StateDecoding
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePrimed:
		return "primed"
	case StateDecoding:
		return "decoding"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// run holds the state of one generation. The response only ever grows.
type run struct {
	state  State
	text   strings.Builder
	tokens int
	max    int
}

func newRun(maxLen int) *run {
	return &run{state: StateIdle, max: maxLen}
}

// advance moves to next, which must directly follow the current state.
func (r *run) advance(next State) error {
	if next != r.state+1 {
		return fmt.Errorf("invalid transition %s -> %s", r.state, next)
	}
	r.state = next
	return nil
}

func (r *run) append(piece string) string {
	r.text.WriteString(piece)
	r.tokens++
	return r.text.String()
}

func (r *run) atMax() bool { return r.max > 0 && r.tokens >= r.max }

func (r *run) content() string { return r.text.String() }
