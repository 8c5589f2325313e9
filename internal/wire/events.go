// Package wire defines the JSON protocol spoken over the conversation
// websocket: the inbound event union delivered by the agent gateway and the
// outbound frames the client may send.
//
// Inbound events form a closed union: every kind the gateway emits has a
// concrete type here, and the engine dispatches on them with a type switch so
// a newly added kind that lacks a handler is caught at compile time rather
// than silently dropped at runtime.
package wire

import "time"

// Event is an inbound frame from the agent gateway. The union is closed:
// only types in this package implement it.
type Event interface {
	Kind() string
	event()
}

// TaskSpec describes one agent task as carried on task lifecycle events and
// batch pushes.
type TaskSpec struct {
	TaskID      string   `json:"task_id"`
	Agent       string   `json:"agent"`
	Description string   `json:"description"`
	Status      string   `json:"status,omitempty"`
	Progress    float64  `json:"progress,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// UIComponent is one fully-specified component inside a structured-UI stream.
type UIComponent struct {
	ComponentID string         `json:"component_id"`
	Type        string         `json:"component_type"`
	Props       map[string]any `json:"props,omitempty"`
}

// UIDelta patches fields of an existing component within a stream.
type UIDelta struct {
	ComponentID string         `json:"component_id"`
	Props       map[string]any `json:"props"`
}

// Lifecycle / progress events.

type AgentThinking struct {
	Agent string `json:"agent"`
}

type AgentStart struct {
	Agent       string `json:"agent"`
	Description string `json:"description,omitempty"`
}

type AgentWorking struct {
	Agent  string `json:"agent"`
	Detail string `json:"detail,omitempty"`
}

type AgentComplete struct {
	Agent string `json:"agent"`
}

type ThinkingContent struct {
	Agent string `json:"agent"`
	Text  string `json:"text"`
}

type AgentResult struct {
	Agent   string `json:"agent"`
	Content string `json:"content"`
}

type AgentTaskStart struct {
	TaskSpec
}

type AgentTaskProgress struct {
	TaskID         string  `json:"task_id"`
	Progress       float64 `json:"progress"`
	Detail         string  `json:"detail,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds,omitempty"`
}

type AgentTaskComplete struct {
	TaskID string `json:"task_id"`
}

type AgentTaskFailed struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason,omitempty"`
}

type AgentTaskRetry struct {
	TaskID  string `json:"task_id"`
	Attempt int    `json:"attempt"`
}

type AgentReplaced struct {
	TaskID   string `json:"task_id"`
	OldAgent string `json:"old_agent"`
	NewAgent string `json:"new_agent"`
}

type TaskDegraded struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason"`
}

type TaskForceComplete struct {
	TaskID string `json:"task_id"`
}

type AgentTasksBatch struct {
	Tasks []TaskSpec `json:"tasks"`
}

// Content events.

type ContentToken struct {
	Agent string `json:"agent,omitempty"`
	Token string `json:"token"`
}

// Structured-UI events.

const (
	StreamActionComponent = "stream_component"
	StreamActionDelta     = "stream_delta"
	StreamActionEnd       = "stream_end"
)

type A2UIStream struct {
	StreamID   string       `json:"stream_id"`
	Agent      string       `json:"agent,omitempty"`
	Action     string       `json:"action"`
	Component  *UIComponent `json:"component,omitempty"`
	Components []UIComponent `json:"components,omitempty"`
	Delta      *UIDelta     `json:"delta,omitempty"`
}

// A2UIMessage is a complete structured-UI payload delivered in one frame,
// bypassing the incremental stream.
type A2UIMessage struct {
	MessageID  string        `json:"message_id,omitempty"`
	Agent      string        `json:"agent,omitempty"`
	Components []UIComponent `json:"components"`
}

// Out-of-band events.

type RequirementAnalysis struct {
	Summary string   `json:"summary"`
	Items   []string `json:"items,omitempty"`
}

type ClarificationRequest struct {
	RequestID     string   `json:"request_id"`
	Agent         string   `json:"agent,omitempty"`
	Question      string   `json:"question"`
	Options       []string `json:"options,omitempty"`
	AllowFreeText bool     `json:"allow_free_text,omitempty"`
}

type WorkspaceConfirmation struct {
	ConfirmationID string   `json:"confirmation_id"`
	Prompt         string   `json:"prompt"`
	Choices        []string `json:"choices"`
	Multi          bool     `json:"multi,omitempty"`
}

type WorkspaceActionItem struct {
	ActionID    string `json:"action_id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

type WorkspaceActions struct {
	Actions []WorkspaceActionItem `json:"actions"`
}

type CanvasOpen struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
}

type CanvasUpdate struct {
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
}

type CanvasSaved struct {
	DocumentID string    `json:"document_id"`
	SavedAt    time.Time `json:"saved_at,omitempty"`
}

type PanelTrigger struct {
	Panel string `json:"panel"`
}

type TabSwitch struct {
	Tab string `json:"tab"`
}

type DocumentReady struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name,omitempty"`
}

type ConversationTitleUpdated struct {
	Title string `json:"title"`
}

type SystemNotice struct {
	Text  string `json:"text"`
	Level string `json:"level,omitempty"`
}

type SaveWarning struct {
	Text string `json:"text"`
}

// Terminal events.

// Done ends the current turn. The gateway emits it as "done" or as
// "agent_response" with inline content for non-streamed replies; both decode
// to this type.
type Done struct {
	Agent         string `json:"agent,omitempty"`
	Content       string `json:"content,omitempty"`
	TasksComplete bool   `json:"tasks_complete,omitempty"`
}

type ErrorEvent struct {
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (*AgentThinking) Kind() string            { return KindAgentThinking }
func (*AgentStart) Kind() string               { return KindAgentStart }
func (*AgentWorking) Kind() string             { return KindAgentWorking }
func (*AgentComplete) Kind() string            { return KindAgentComplete }
func (*ThinkingContent) Kind() string          { return KindThinkingContent }
func (*AgentResult) Kind() string              { return KindAgentResult }
func (*AgentTaskStart) Kind() string           { return KindAgentTaskStart }
func (*AgentTaskProgress) Kind() string        { return KindAgentTaskProgress }
func (*AgentTaskComplete) Kind() string        { return KindAgentTaskComplete }
func (*AgentTaskFailed) Kind() string          { return KindAgentTaskFailed }
func (*AgentTaskRetry) Kind() string           { return KindAgentTaskRetry }
func (*AgentReplaced) Kind() string            { return KindAgentReplaced }
func (*TaskDegraded) Kind() string             { return KindTaskDegraded }
func (*TaskForceComplete) Kind() string        { return KindTaskForceComplete }
func (*AgentTasksBatch) Kind() string          { return KindAgentTasksBatch }
func (*ContentToken) Kind() string             { return KindContentToken }
func (*A2UIStream) Kind() string               { return KindA2UIStream }
func (*A2UIMessage) Kind() string              { return KindA2UIMessage }
func (*RequirementAnalysis) Kind() string      { return KindRequirementAnalysis }
func (*ClarificationRequest) Kind() string     { return KindClarificationRequest }
func (*WorkspaceConfirmation) Kind() string    { return KindWorkspaceConfirmation }
func (*WorkspaceActions) Kind() string         { return KindWorkspaceActions }
func (*CanvasOpen) Kind() string               { return KindCanvasOpen }
func (*CanvasUpdate) Kind() string             { return KindCanvasUpdate }
func (*CanvasSaved) Kind() string              { return KindCanvasSaved }
func (*PanelTrigger) Kind() string             { return KindPanelTrigger }
func (*TabSwitch) Kind() string                { return KindTabSwitch }
func (*DocumentReady) Kind() string            { return KindDocumentReady }
func (*ConversationTitleUpdated) Kind() string { return KindConversationTitleUpdated }
func (*SystemNotice) Kind() string             { return KindSystemNotice }
func (*SaveWarning) Kind() string              { return KindSaveWarning }
func (*Done) Kind() string                     { return KindDone }
func (*ErrorEvent) Kind() string               { return KindError }

func (*AgentThinking) event()            {}
func (*AgentStart) event()               {}
func (*AgentWorking) event()             {}
func (*AgentComplete) event()            {}
func (*ThinkingContent) event()          {}
func (*AgentResult) event()              {}
func (*AgentTaskStart) event()           {}
func (*AgentTaskProgress) event()        {}
func (*AgentTaskComplete) event()        {}
func (*AgentTaskFailed) event()          {}
func (*AgentTaskRetry) event()           {}
func (*AgentReplaced) event()            {}
func (*TaskDegraded) event()             {}
func (*TaskForceComplete) event()        {}
func (*AgentTasksBatch) event()          {}
func (*ContentToken) event()             {}
func (*A2UIStream) event()               {}
func (*A2UIMessage) event()              {}
func (*RequirementAnalysis) event()      {}
func (*ClarificationRequest) event()     {}
func (*WorkspaceConfirmation) event()    {}
func (*WorkspaceActions) event()         {}
func (*CanvasOpen) event()               {}
func (*CanvasUpdate) event()             {}
func (*CanvasSaved) event()              {}
func (*PanelTrigger) event()             {}
func (*TabSwitch) event()                {}
func (*DocumentReady) event()            {}
func (*ConversationTitleUpdated) event() {}
func (*SystemNotice) event()             {}
func (*SaveWarning) event()              {}
func (*Done) event()                     {}
func (*ErrorEvent) event()               {}
