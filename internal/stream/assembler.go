// Package stream accumulates the two kinds of partial server output into
// finalized message content: token streams (one open at a time per
// conversation) and structured-UI streams (any number, independently keyed).
package stream

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrStreamAlreadyOpen is returned when a second text stream is opened while
// one is in flight. The invariant is one open text stream per conversation;
// callers append to the open stream instead of opening another.
var ErrStreamAlreadyOpen = errors.New("text stream already open")

// TextResult is the outcome of finalizing a text stream.
type TextResult struct {
	StreamID string
	Agent    string
	Body     string
}

// Assembler builds one growing message body from content tokens. Its
// lifecycle is the explicit state machine {absent, open, finalized}: Append
// opens implicitly on the first token, Finalize closes and resets to absent.
type Assembler struct {
	mu      sync.Mutex
	id      string
	agent   string
	body    strings.Builder
	open    bool
}

// NewAssembler creates an assembler with no open stream.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Open starts a new text stream for the given agent. It fails if a stream is
// already open.
func (a *Assembler) Open(agent string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.open {
		return ErrStreamAlreadyOpen
	}
	a.id = uuid.NewString()
	a.agent = agent
	a.body.Reset()
	a.open = true
	return nil
}

// Append applies one content token in arrival order, opening a stream tagged
// with the token's agent if none is open. An empty token is a no-op.
func (a *Assembler) Append(agent, token string) {
	if token == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.open {
		a.id = uuid.NewString()
		a.agent = agent
		a.body.Reset()
		a.open = true
	}
	a.body.WriteString(token)
}

// Finalize closes the open stream and returns its accumulated content. It
// reports false if no stream is open.
func (a *Assembler) Finalize() (TextResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.open {
		return TextResult{}, false
	}
	res := TextResult{
		StreamID: a.id,
		Agent:    a.agent,
		Body:     a.body.String(),
	}
	a.open = false
	a.id = ""
	a.agent = ""
	a.body.Reset()
	return res, true
}

// HasOpen reports whether a text stream is in flight.
func (a *Assembler) HasOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

// Agent returns the owning agent of the open stream, if any.
func (a *Assembler) Agent() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.agent
}

// Body returns the content accumulated so far on the open stream.
func (a *Assembler) Body() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.body.String()
}
