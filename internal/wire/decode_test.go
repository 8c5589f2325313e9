package wire

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode_ContentToken(t *testing.T) {
	data := []byte(`{"type":"content_token","agent":"contract_reviewer","token":"合同"}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	token, ok := ev.(*ContentToken)
	if !ok {
		t.Fatalf("Expected *ContentToken, got %T", ev)
	}
	if token.Agent != "contract_reviewer" {
		t.Errorf("Expected agent 'contract_reviewer', got %q", token.Agent)
	}
	if token.Token != "合同" {
		t.Errorf("Expected token '合同', got %q", token.Token)
	}
}

func TestDecode_TaskLifecycle(t *testing.T) {
	data := []byte(`{"type":"agent_task_start","task_id":"t1","agent":"researcher","description":"查找判例","depends_on":["t0"]}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	start, ok := ev.(*AgentTaskStart)
	if !ok {
		t.Fatalf("Expected *AgentTaskStart, got %T", ev)
	}
	if start.TaskID != "t1" {
		t.Errorf("Expected task id 't1', got %q", start.TaskID)
	}
	if len(start.DependsOn) != 1 || start.DependsOn[0] != "t0" {
		t.Errorf("Unexpected dependencies: %v", start.DependsOn)
	}
}

func TestDecode_A2UIStream(t *testing.T) {
	data := []byte(`{"type":"a2ui_stream","stream_id":"ui-1","action":"stream_component","component":{"component_id":"c1","component_type":"card","props":{"title":"费用测算"}}}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	stream, ok := ev.(*A2UIStream)
	if !ok {
		t.Fatalf("Expected *A2UIStream, got %T", ev)
	}
	if stream.Action != StreamActionComponent {
		t.Errorf("Expected action %q, got %q", StreamActionComponent, stream.Action)
	}
	if stream.Component == nil || stream.Component.ComponentID != "c1" {
		t.Errorf("Unexpected component: %+v", stream.Component)
	}
}

func TestDecode_DoneAliases(t *testing.T) {
	for _, kind := range []string{KindDone, KindAgentResponse} {
		raw, _ := json.Marshal(map[string]any{"type": kind, "content": "完成"})
		ev, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", kind, err)
		}
		done, ok := ev.(*Done)
		if !ok {
			t.Fatalf("Expected *Done for %s, got %T", kind, ev)
		}
		if done.Content != "完成" {
			t.Errorf("Expected content '完成', got %q", done.Content)
		}
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"type":"hologram_render","payload":{}}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Expected ErrUnknownKind, got %v", err)
	}
}

func TestDecode_MalformedFrame(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	if err == nil {
		t.Fatal("Expected error for malformed frame")
	}
}

func TestDecode_AllKindsCovered(t *testing.T) {
	kinds := []string{
		KindAgentThinking, KindAgentStart, KindAgentWorking, KindAgentComplete,
		KindThinkingContent, KindAgentResult, KindAgentTaskStart,
		KindAgentTaskProgress, KindAgentTaskComplete, KindAgentTaskFailed,
		KindAgentTaskRetry, KindAgentReplaced, KindTaskDegraded,
		KindTaskForceComplete, KindAgentTasksBatch, KindContentToken,
		KindA2UIStream, KindA2UIMessage, KindRequirementAnalysis,
		KindClarificationRequest, KindWorkspaceConfirmation, KindWorkspaceActions,
		KindCanvasOpen, KindCanvasUpdate, KindCanvasSaved, KindPanelTrigger,
		KindTabSwitch, KindDocumentReady, KindConversationTitleUpdated,
		KindSystemNotice, KindSaveWarning, KindDone, KindAgentResponse, KindError,
	}

	for _, kind := range kinds {
		raw, _ := json.Marshal(map[string]any{"type": kind})
		if _, err := Decode(raw); err != nil {
			t.Errorf("Decode(%s) failed: %v", kind, err)
		}
	}
}

func TestEncode_StampsType(t *testing.T) {
	tests := []struct {
		frame Frame
		want  string
	}{
		{&ChatSend{Content: "审查合同"}, FrameChatSend},
		{&ClarificationResponse{RequestID: "r1", Selections: []string{"a"}}, FrameClarificationResponse},
		{&WorkspaceConfirmationResponse{ConfirmationID: "c1", Choices: []string{"yes"}}, FrameWorkspaceConfirmationResponse},
		{&WorkspaceActionFrame{ActionID: "a1"}, FrameWorkspaceAction},
		{&CanvasEdit{DocumentID: "d1", Content: "草稿"}, FrameCanvasEdit},
		{&A2UIEvent{ComponentID: "c1", ActionID: "submit"}, FrameA2UIEvent},
		{&Ping{}, FramePing},
	}

	for _, tt := range tests {
		data, err := Encode(tt.frame)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if env.Type != tt.want {
			t.Errorf("Expected type %q, got %q", tt.want, env.Type)
		}
	}
}
