package llama

import (
	"errors"
	"fmt"
	"strings"

	"epmgr/internal/runtime"
)

// predictFunc runs one native prediction of at most maxTokens pieces,
// handing each piece to onPiece. onPiece returning false stops prediction.
type predictFunc func(prompt string, maxTokens int, onPiece func(string) bool) error

var errGeneratorClosed = errors.New("generator closed")

// endOfTurn are the markers that end an assistant turn in the Phi-3 format.
// The native stop on EOS is disabled so the markers reach the generator,
// which enforces the minimum length.
var endOfTurn = []string{"<|end|>", "<|endoftext|>"}

// generator turns a push-style prediction into the pull-style
// runtime.Generator. Prediction runs on its own goroutine and blocks on every
// piece until the caller asks for the next token.
type generator struct {
	table   *pieceTable
	predict predictFunc
	opts    runtime.SearchOptions
	release func()

	prompt  []int32
	started bool
	pieces  chan string
	stop    chan struct{}
	done    chan struct{}
	err     error // written by the predict goroutine before pieces is closed

	peek      *string
	exhausted bool
	reported  bool
	last      int32
	hasLast   bool
	count     int
	closed    bool
}

func newGenerator(table *pieceTable, predict predictFunc, opts runtime.SearchOptions, release func()) *generator {
	return &generator{table: table, predict: predict, opts: opts, release: release}
}

func (g *generator) AppendTokens(tokens []int32) error {
	if g.closed {
		return errGeneratorClosed
	}
	if g.started {
		return fmt.Errorf("cannot append tokens after generation started")
	}
	g.prompt = append(g.prompt, tokens...)
	return nil
}

func (g *generator) start() {
	g.started = true
	g.pieces = make(chan string)
	g.stop = make(chan struct{})
	g.done = make(chan struct{})
	prompt, err := g.table.takePrompt(g.prompt)
	g.prompt = nil
	if err != nil {
		g.err = err
		close(g.pieces)
		close(g.done)
		return
	}
	go g.produce(prompt)
}

// produce runs predictions until the model ends its turn at or after
// MinLength, MaxLength pieces were produced, or Close stops it. An end of
// turn before MinLength is dropped; a prediction that ends early is resumed
// from the current prompt plus everything produced so far.
func (g *generator) produce(prompt string) {
	defer close(g.done)
	defer close(g.pieces)
	produced := 0
	text := prompt
	for {
		var (
			out     strings.Builder
			n       int
			ended   bool
			aborted bool
		)
		send := func(piece string) bool {
			select {
			case g.pieces <- piece:
				produced++
				n++
				out.WriteString(piece)
				return true
			case <-g.stop:
				aborted = true
				return false
			}
		}
		budget := 0
		if g.opts.MaxLength > 0 {
			budget = g.opts.MaxLength - produced
		}
		err := g.predict(text, budget, func(piece string) bool {
			head, marked := cutEndOfTurn(piece)
			if !marked {
				return send(piece)
			}
			if produced >= g.opts.MinLength {
				ended = true
				if head != "" {
					send(head)
				}
				return false
			}
			if head == "" {
				return true
			}
			return send(head)
		})
		if err != nil {
			g.err = err
			return
		}
		switch {
		case aborted, ended, n == 0, produced >= g.opts.MinLength:
			return
		case g.opts.MaxLength > 0 && produced >= g.opts.MaxLength:
			return
		}
		text += out.String()
	}
}

// cutEndOfTurn returns the text before the first end-of-turn marker in
// piece, and whether one was found.
func cutEndOfTurn(piece string) (string, bool) {
	for _, m := range endOfTurn {
		if head, _, ok := strings.Cut(piece, m); ok {
			return head, true
		}
	}
	return piece, false
}

// fill reads one piece ahead so IsDone can observe end of stream.
func (g *generator) fill() {
	if g.peek != nil || g.exhausted {
		return
	}
	if !g.started {
		g.start()
	}
	piece, ok := <-g.pieces
	if !ok {
		g.exhausted = true
		return
	}
	g.peek = &piece
}

func (g *generator) atMax() bool {
	return g.opts.MaxLength > 0 && g.count >= g.opts.MaxLength
}

// IsDone reports end of stream or max length. A pending native error keeps
// IsDone false until GenerateNextToken has reported it.
func (g *generator) IsDone() bool {
	if g.closed || g.atMax() {
		return true
	}
	g.fill()
	if g.exhausted {
		return g.err == nil || g.reported
	}
	return false
}

func (g *generator) GenerateNextToken() error {
	if g.closed {
		return errGeneratorClosed
	}
	if g.atMax() {
		return fmt.Errorf("max length %d reached", g.opts.MaxLength)
	}
	g.fill()
	if g.peek == nil {
		if g.err != nil {
			g.reported = true
			return g.err
		}
		return fmt.Errorf("generation finished")
	}
	g.last = g.table.intern(*g.peek)
	g.hasLast = true
	g.peek = nil
	g.count++
	return nil
}

func (g *generator) LastToken() (int32, error) {
	if !g.hasLast {
		return 0, fmt.Errorf("no token generated yet")
	}
	return g.last, nil
}

// Close stops prediction, waits for the native call to return and releases
// the model.
func (g *generator) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	if g.started {
		close(g.stop)
		<-g.done
	} else {
		g.table.dropPrompts(g.prompt)
	}
	if g.release != nil {
		g.release()
	}
	return nil
}
