// Package session holds the authoritative client-side state of one
// conversation: the ordered message list, workspace prompts, the shared
// canvas document, and the merge of server-loaded history with locally
// produced messages.
package session

import (
	"strconv"
	"strings"
	"time"

	"github.com/lexhub/agentstream/internal/wire"
)

// Kind discriminates message types in the conversation.
type Kind string

const (
	KindUser          Kind = "user"
	KindAssistant     Kind = "assistant"
	KindSystem        Kind = "system"
	KindClarification Kind = "clarification-request"
	KindStructuredUI  Kind = "structured-ui"
)

// Attachment describes a file attached to a message.
type Attachment struct {
	Name string
	Size int64
	Kind string
}

// Message is one entry in the conversation. Appended messages are immutable
// except for the feedback rating and, while still streaming, the body text.
type Message struct {
	ID         string
	Kind       Kind
	Body       string
	Agent      string
	Attachment *Attachment
	Feedback   int
	Streaming  bool

	// Components carries the finalized structured-UI payload for
	// structured-ui messages; Body is empty for pure UI messages.
	Components []wire.UIComponent

	// Retryable marks a failure message offering one-click resend of
	// RetryContent (the user's last input).
	Retryable    bool
	RetryContent string

	CreatedAt time.Time
}

// Stored messages embed attachment metadata as a textual marker prefix in the
// body. The client reverses that denormalization on load.
const (
	markerPrefix = "[[attachment:"
	markerSuffix = "]]"
)

// EncodeAttachmentMarker prepends the attachment marker to a body for
// server-side storage.
func EncodeAttachmentMarker(att Attachment, body string) string {
	var b strings.Builder
	b.WriteString(markerPrefix)
	b.WriteString(att.Name)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(att.Size, 10))
	b.WriteByte('|')
	b.WriteString(att.Kind)
	b.WriteString(markerSuffix)
	b.WriteString(body)
	return b.String()
}

// DecodeAttachmentMarker strips an attachment marker prefix from a stored
// body, returning the descriptor and the display body. A body without a
// well-formed marker is returned unchanged with a nil attachment.
func DecodeAttachmentMarker(body string) (*Attachment, string) {
	if !strings.HasPrefix(body, markerPrefix) {
		return nil, body
	}
	end := strings.Index(body, markerSuffix)
	if end < 0 {
		return nil, body
	}

	fields := strings.SplitN(body[len(markerPrefix):end], "|", 3)
	if len(fields) != 3 {
		return nil, body
	}
	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, body
	}

	att := &Attachment{Name: fields[0], Size: size, Kind: fields[2]}
	return att, body[end+len(markerSuffix):]
}
