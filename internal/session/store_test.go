package session

import (
	"testing"

	"github.com/lexhub/agentstream/internal/wire"
)

func TestStore_AppendAndFeedback(t *testing.T) {
	s := NewStore("conv-1")

	msg := s.Append(Message{Kind: KindAssistant, Body: "您好", Agent: "assistant"})
	if msg.ID == "" {
		t.Fatal("Append should assign an id")
	}

	if err := s.SetFeedback(msg.ID, 1); err != nil {
		t.Fatalf("SetFeedback failed: %v", err)
	}

	got, _ := s.Message(msg.ID)
	if got.Feedback != 1 {
		t.Errorf("Expected feedback 1, got %d", got.Feedback)
	}

	if err := s.SetFeedback("ghost", 1); err == nil {
		t.Error("SetFeedback on unknown id should fail")
	}
}

func TestStore_StreamingBodyMutableUntilFinalized(t *testing.T) {
	s := NewStore("conv-1")

	msg := s.Append(Message{Kind: KindAssistant, Streaming: true})
	if err := s.SetStreamingBody(msg.ID, "部分回答"); err != nil {
		t.Fatalf("SetStreamingBody failed: %v", err)
	}

	if err := s.FinishStreaming(msg.ID, "完整回答"); err != nil {
		t.Fatalf("FinishStreaming failed: %v", err)
	}

	if err := s.SetStreamingBody(msg.ID, "迟到的改写"); err == nil {
		t.Error("Finalized message must be immutable")
	}

	got, _ := s.Message(msg.ID)
	if got.Body != "完整回答" || got.Streaming {
		t.Errorf("Unexpected finalized message: %+v", got)
	}
}

func TestStore_MergeHistoryIdempotent(t *testing.T) {
	s := NewStore("conv-1")
	intro := s.Append(Message{ID: "intro", Kind: KindSystem, Body: "欢迎使用法律助手"})

	history := []Message{
		{ID: "h1", Kind: KindUser, Body: "起诉流程是什么？"},
		{ID: "h2", Kind: KindAssistant, Body: "流程如下……"},
	}

	s.MergeHistory(history)
	if !s.HistoryLoaded() {
		t.Fatal("History should be marked loaded")
	}

	// A retried fetch must not duplicate or reorder.
	s.MergeHistory(history)

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "h1" || msgs[1].ID != "h2" || msgs[2].ID != intro.ID {
		t.Errorf("History must precede the synthetic intro: %v", []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	}
}

func TestStore_MergeHistoryParsesAttachmentMarker(t *testing.T) {
	s := NewStore("conv-1")

	stored := EncodeAttachmentMarker(Attachment{Name: "合同.pdf", Size: 20480, Kind: "pdf"}, "请审查这份合同")
	s.MergeHistory([]Message{{ID: "h1", Kind: KindUser, Body: stored}})

	msgs := s.Messages()
	if msgs[0].Attachment == nil {
		t.Fatal("Attachment marker should be parsed")
	}
	if msgs[0].Attachment.Name != "合同.pdf" || msgs[0].Attachment.Kind != "pdf" {
		t.Errorf("Unexpected attachment: %+v", msgs[0].Attachment)
	}
	if msgs[0].Body != "请审查这份合同" {
		t.Errorf("Marker should be stripped from display body: %q", msgs[0].Body)
	}
}

func TestAttachmentMarker_RoundTrip(t *testing.T) {
	// A message loaded from history must yield the same descriptor as one
	// created locally from an actual upload of the same file.
	local := Attachment{Name: "证据清单.docx", Size: 4096, Kind: "docx"}

	att, body := DecodeAttachmentMarker(EncodeAttachmentMarker(local, "见附件"))
	if att == nil {
		t.Fatal("Round trip lost the attachment")
	}
	if att.Name != local.Name || att.Kind != local.Kind || att.Size != local.Size {
		t.Errorf("Round trip mismatch: %+v vs %+v", att, local)
	}
	if body != "见附件" {
		t.Errorf("Unexpected body: %q", body)
	}
}

func TestDecodeAttachmentMarker_Malformed(t *testing.T) {
	cases := []string{
		"普通消息",
		"[[attachment:缺少后缀",
		"[[attachment:只有名字]]正文",
		"[[attachment:a|不是数字|pdf]]正文",
	}
	for _, body := range cases {
		att, rest := DecodeAttachmentMarker(body)
		if att != nil {
			t.Errorf("Malformed marker %q should not parse", body)
		}
		if rest != body {
			t.Errorf("Malformed marker %q should leave body unchanged", body)
		}
	}
}

func TestStore_ConfirmationConsumedExactlyOnce(t *testing.T) {
	s := NewStore("conv-1")
	s.AddConfirmation(wire.WorkspaceConfirmation{ConfirmationID: "c1", Prompt: "是否继续？", Choices: []string{"是", "否"}})

	if !s.ResolveConfirmation("c1") {
		t.Fatal("First resolution should succeed")
	}
	if s.ResolveConfirmation("c1") {
		t.Error("Duplicate resolution must be ignored")
	}

	// Re-adding a resolved confirmation id is dropped.
	s.AddConfirmation(wire.WorkspaceConfirmation{ConfirmationID: "c1"})
	if len(s.PendingConfirmations()) != 0 {
		t.Error("Resolved confirmation must not reappear")
	}
}

func TestStore_ActionsConsumedOnce(t *testing.T) {
	s := NewStore("conv-1")
	s.SetActions([]wire.WorkspaceActionItem{{ActionID: "a1", Label: "生成起诉状"}})

	if _, ok := s.ConsumeAction("a1"); !ok {
		t.Fatal("First consume should succeed")
	}
	if _, ok := s.ConsumeAction("a1"); ok {
		t.Error("Second consume must fail")
	}
}

func TestStore_LastUserInput(t *testing.T) {
	s := NewStore("conv-1")
	s.Append(Message{Kind: KindUser, Body: "第一问"})
	s.Append(Message{Kind: KindAssistant, Body: "回答"})
	s.Append(Message{Kind: KindUser, Body: "第二问"})

	if got := s.LastUserInput(); got != "第二问" {
		t.Errorf("Expected last user input '第二问', got %q", got)
	}
}
