package wire

import (
	"encoding/json"
	"fmt"
)

// Outbound frame discriminators.
const (
	FrameChatSend                      = "chat_send"
	FrameClarificationResponse         = "clarification_response"
	FrameWorkspaceConfirmationResponse = "workspace_confirmation_response"
	FrameWorkspaceAction               = "workspace_action"
	FrameCanvasEdit                    = "canvas_edit"
	FrameA2UIEvent                     = "a2ui_event"
	FramePing                          = "ping"
)

// Frame is an outbound message to the agent gateway.
type Frame interface {
	frameType() string
}

// ChatSend submits one user turn.
type ChatSend struct {
	Type          string `json:"type"`
	Content       string `json:"content"`
	PrivacyMode   bool   `json:"privacy_mode,omitempty"`
	HasAttachment bool   `json:"has_attachment,omitempty"`
	DocumentID    string `json:"document_id,omitempty"`
	Mode          string `json:"mode,omitempty"`
}

// ClarificationResponse answers a clarification_request.
type ClarificationResponse struct {
	Type       string   `json:"type"`
	RequestID  string   `json:"request_id"`
	Selections []string `json:"selections,omitempty"`
	Supplement string   `json:"supplement,omitempty"`
}

// WorkspaceConfirmationResponse resolves a workspace_confirmation.
type WorkspaceConfirmationResponse struct {
	Type           string   `json:"type"`
	ConfirmationID string   `json:"confirmation_id"`
	Choices        []string `json:"choices"`
}

// WorkspaceActionFrame invokes a quick action offered by workspace_actions.
type WorkspaceActionFrame struct {
	Type     string `json:"type"`
	ActionID string `json:"action_id"`
}

// CanvasEdit carries a user edit of the shared canvas document. The engine
// debounces these before sending.
type CanvasEdit struct {
	Type       string `json:"type"`
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
}

// A2UIEvent reports a user interaction with a structured-UI component.
type A2UIEvent struct {
	Type        string         `json:"type"`
	ComponentID string         `json:"component_id"`
	ActionID    string         `json:"action_id"`
	FormData    map[string]any `json:"form_data,omitempty"`
}

// Ping is the keep-alive heartbeat.
type Ping struct {
	Type string `json:"type"`
}

func (*ChatSend) frameType() string                      { return FrameChatSend }
func (*ClarificationResponse) frameType() string         { return FrameClarificationResponse }
func (*WorkspaceConfirmationResponse) frameType() string { return FrameWorkspaceConfirmationResponse }
func (*WorkspaceActionFrame) frameType() string          { return FrameWorkspaceAction }
func (*CanvasEdit) frameType() string                    { return FrameCanvasEdit }
func (*A2UIEvent) frameType() string                     { return FrameA2UIEvent }
func (*Ping) frameType() string                          { return FramePing }

// Encode marshals a frame, stamping its type discriminator.
func Encode(f Frame) ([]byte, error) {
	stamp(f)
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.frameType(), err)
	}
	return data, nil
}

func stamp(f Frame) {
	switch v := f.(type) {
	case *ChatSend:
		v.Type = FrameChatSend
	case *ClarificationResponse:
		v.Type = FrameClarificationResponse
	case *WorkspaceConfirmationResponse:
		v.Type = FrameWorkspaceConfirmationResponse
	case *WorkspaceActionFrame:
		v.Type = FrameWorkspaceAction
	case *CanvasEdit:
		v.Type = FrameCanvasEdit
	case *A2UIEvent:
		v.Type = FrameA2UIEvent
	case *Ping:
		v.Type = FramePing
	}
}
