package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event discriminators.
const (
	KindAgentThinking            = "agent_thinking"
	KindAgentStart               = "agent_start"
	KindAgentWorking             = "agent_working"
	KindAgentComplete            = "agent_complete"
	KindThinkingContent          = "thinking_content"
	KindAgentResult              = "agent_result"
	KindAgentTaskStart           = "agent_task_start"
	KindAgentTaskProgress        = "agent_task_progress"
	KindAgentTaskComplete        = "agent_task_complete"
	KindAgentTaskFailed          = "agent_task_failed"
	KindAgentTaskRetry           = "agent_task_retry"
	KindAgentReplaced            = "agent_replaced"
	KindTaskDegraded             = "task_degraded"
	KindTaskForceComplete        = "task_force_complete"
	KindAgentTasksBatch          = "agent_tasks_batch"
	KindContentToken             = "content_token"
	KindA2UIStream               = "a2ui_stream"
	KindA2UIMessage              = "a2ui_message"
	KindRequirementAnalysis      = "requirement_analysis"
	KindClarificationRequest     = "clarification_request"
	KindWorkspaceConfirmation    = "workspace_confirmation"
	KindWorkspaceActions         = "workspace_actions"
	KindCanvasOpen               = "canvas_open"
	KindCanvasUpdate             = "canvas_update"
	KindCanvasSaved              = "canvas_saved"
	KindPanelTrigger             = "panel_trigger"
	KindTabSwitch                = "tab_switch"
	KindDocumentReady            = "document_ready"
	KindConversationTitleUpdated = "conversation_title_updated"
	KindSystemNotice             = "system_notice"
	KindSaveWarning              = "save_warning"
	KindDone                     = "done"
	KindAgentResponse            = "agent_response"
	KindError                    = "error"
)

// ErrUnknownKind is returned by Decode for a discriminator this client does
// not recognize. Callers must treat it as a droppable frame, never as fatal:
// the gateway is free to introduce new event kinds before clients learn them.
var ErrUnknownKind = errors.New("unknown event kind")

type envelope struct {
	Type string `json:"type"`
}

// Decode parses one inbound frame into its concrete event type.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode frame envelope: %w", err)
	}

	var ev Event
	switch env.Type {
	case KindAgentThinking:
		ev = &AgentThinking{}
	case KindAgentStart:
		ev = &AgentStart{}
	case KindAgentWorking:
		ev = &AgentWorking{}
	case KindAgentComplete:
		ev = &AgentComplete{}
	case KindThinkingContent:
		ev = &ThinkingContent{}
	case KindAgentResult:
		ev = &AgentResult{}
	case KindAgentTaskStart:
		ev = &AgentTaskStart{}
	case KindAgentTaskProgress:
		ev = &AgentTaskProgress{}
	case KindAgentTaskComplete:
		ev = &AgentTaskComplete{}
	case KindAgentTaskFailed:
		ev = &AgentTaskFailed{}
	case KindAgentTaskRetry:
		ev = &AgentTaskRetry{}
	case KindAgentReplaced:
		ev = &AgentReplaced{}
	case KindTaskDegraded:
		ev = &TaskDegraded{}
	case KindTaskForceComplete:
		ev = &TaskForceComplete{}
	case KindAgentTasksBatch:
		ev = &AgentTasksBatch{}
	case KindContentToken:
		ev = &ContentToken{}
	case KindA2UIStream:
		ev = &A2UIStream{}
	case KindA2UIMessage:
		ev = &A2UIMessage{}
	case KindRequirementAnalysis:
		ev = &RequirementAnalysis{}
	case KindClarificationRequest:
		ev = &ClarificationRequest{}
	case KindWorkspaceConfirmation:
		ev = &WorkspaceConfirmation{}
	case KindWorkspaceActions:
		ev = &WorkspaceActions{}
	case KindCanvasOpen:
		ev = &CanvasOpen{}
	case KindCanvasUpdate:
		ev = &CanvasUpdate{}
	case KindCanvasSaved:
		ev = &CanvasSaved{}
	case KindPanelTrigger:
		ev = &PanelTrigger{}
	case KindTabSwitch:
		ev = &TabSwitch{}
	case KindDocumentReady:
		ev = &DocumentReady{}
	case KindConversationTitleUpdated:
		ev = &ConversationTitleUpdated{}
	case KindSystemNotice:
		ev = &SystemNotice{}
	case KindSaveWarning:
		ev = &SaveWarning{}
	case KindDone, KindAgentResponse:
		ev = &Done{}
	case KindError:
		ev = &ErrorEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", env.Type, err)
	}
	return ev, nil
}
