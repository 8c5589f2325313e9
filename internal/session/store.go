package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexhub/agentstream/internal/wire"
)

// ErrUnknownMessage is returned when mutating a message id the store does not
// hold.
var ErrUnknownMessage = errors.New("unknown message id")

// Canvas is the shared document the backend and user co-edit.
type Canvas struct {
	DocumentID string
	Title      string
	Content    string
	Open       bool
	SavedAt    time.Time
}

// Store is the conversation's single mutable resource. Every component
// mutates it through the engine's dispatch path; the UI layer only reads.
type Store struct {
	mu sync.Mutex

	conversationID string
	messages       []Message
	index          map[string]int
	historyLoaded  bool
	processing     bool
	title          string

	canvas Canvas

	confirmations map[string]wire.WorkspaceConfirmation
	resolved      map[string]bool
	actions       map[string]wire.WorkspaceActionItem
}

// NewStore creates a store for one conversation.
func NewStore(conversationID string) *Store {
	return &Store{
		conversationID: conversationID,
		index:          make(map[string]int),
		confirmations:  make(map[string]wire.WorkspaceConfirmation),
		resolved:       make(map[string]bool),
		actions:        make(map[string]wire.WorkspaceActionItem),
	}
}

// ConversationID returns the owning conversation's identifier.
func (s *Store) ConversationID() string {
	return s.conversationID
}

// Append adds a message to the conversation, assigning an id and timestamp if
// missing, and returns the stored copy.
func (s *Store) Append(msg Message) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msg)
}

func (s *Store) appendLocked(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	return msg
}

// SetStreamingBody replaces the body of a still-streaming message. Finalized
// messages are immutable and reject the update.
func (s *Store) SetStreamingBody(id, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return ErrUnknownMessage
	}
	if !s.messages[i].Streaming {
		return errors.New("message is finalized")
	}
	s.messages[i].Body = body
	return nil
}

// FinishStreaming marks a streaming message as finalized with its final body.
func (s *Store) FinishStreaming(id, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return ErrUnknownMessage
	}
	s.messages[i].Body = body
	s.messages[i].Streaming = false
	return nil
}

// SetFeedback records a feedback rating on any message.
func (s *Store) SetFeedback(id string, rating int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return ErrUnknownMessage
	}
	s.messages[i].Feedback = rating
	return nil
}

// Messages returns a snapshot of the conversation in order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Message returns a copy of the message with the given id.
func (s *Store) Message(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return Message{}, false
	}
	return s.messages[i], true
}

// LastUserInput returns the body of the most recent user message, used to arm
// retry affordances on failure messages.
func (s *Store) LastUserInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Kind == KindUser {
			return s.messages[i].Body
		}
	}
	return ""
}

// MergeHistory prepends server-loaded history to the locally present
// messages (typically a synthetic introduction). The loaded flag makes the
// fetch idempotent: a retried fetch neither duplicates nor reorders messages.
// Attachment markers embedded in stored bodies are parsed back into
// structured descriptors.
func (s *Store) MergeHistory(history []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.historyLoaded {
		return
	}
	s.historyLoaded = true

	merged := make([]Message, 0, len(history)+len(s.messages))
	for _, msg := range history {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if _, dup := s.index[msg.ID]; dup {
			continue
		}
		if att, rest := DecodeAttachmentMarker(msg.Body); att != nil {
			msg.Attachment = att
			msg.Body = rest
		}
		merged = append(merged, msg)
	}
	merged = append(merged, s.messages...)

	s.messages = merged
	s.index = make(map[string]int, len(merged))
	for i, msg := range merged {
		s.index[msg.ID] = i
	}
}

// HistoryLoaded reports whether history has been merged.
func (s *Store) HistoryLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLoaded
}

// SetProcessing flags whether a turn is outstanding; the UI blocks input
// while true.
func (s *Store) SetProcessing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = v
}

// Processing reports whether a turn is outstanding.
func (s *Store) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// SetTitle records a conversation title pushed by the gateway.
func (s *Store) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

// Title returns the conversation title.
func (s *Store) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// OpenCanvas records the canvas document referenced by the gateway.
func (s *Store) OpenCanvas(documentID, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canvas.DocumentID = documentID
	if title != "" {
		s.canvas.Title = title
	}
	s.canvas.Open = true
}

// SetCanvasContent replaces the canvas body.
func (s *Store) SetCanvasContent(documentID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canvas.DocumentID = documentID
	s.canvas.Content = content
}

// MarkCanvasSaved records a durable save acknowledged by the gateway.
func (s *Store) MarkCanvasSaved(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canvas.SavedAt = at
}

// Canvas returns a snapshot of the canvas document.
func (s *Store) Canvas() Canvas {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvas
}

// AddConfirmation registers an ephemeral confirmation prompt.
func (s *Store) AddConfirmation(c wire.WorkspaceConfirmation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved[c.ConfirmationID] {
		return
	}
	s.confirmations[c.ConfirmationID] = c
}

// ResolveConfirmation consumes a confirmation exactly once. Resolving an
// unknown or already-resolved id is a no-op reported as false, so duplicate
// responses are ignored rather than erroring.
func (s *Store) ResolveConfirmation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.confirmations[id]; !ok {
		return false
	}
	delete(s.confirmations, id)
	s.resolved[id] = true
	return true
}

// PendingConfirmations returns the unresolved confirmation prompts.
func (s *Store) PendingConfirmations() []wire.WorkspaceConfirmation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]wire.WorkspaceConfirmation, 0, len(s.confirmations))
	for _, c := range s.confirmations {
		out = append(out, c)
	}
	return out
}

// SetActions replaces the offered quick actions.
func (s *Store) SetActions(actions []wire.WorkspaceActionItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actions = make(map[string]wire.WorkspaceActionItem, len(actions))
	for _, a := range actions {
		s.actions[a.ActionID] = a
	}
}

// ConsumeAction consumes a quick action exactly once.
func (s *Store) ConsumeAction(id string) (wire.WorkspaceActionItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[id]
	if !ok {
		return wire.WorkspaceActionItem{}, false
	}
	delete(s.actions, id)
	return a, true
}
