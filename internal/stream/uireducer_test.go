package stream

import (
	"testing"

	"github.com/lexhub/agentstream/internal/wire"
)

func component(id, typ string, props map[string]any) *wire.UIComponent {
	return &wire.UIComponent{ComponentID: id, Type: typ, Props: props}
}

func TestUIReducer_ComponentThenDeltaThenEnd(t *testing.T) {
	r := NewUIReducer()

	r.Apply(&wire.A2UIStream{
		StreamID: "ui-1",
		Agent:    "fee_calculator",
		Action:   wire.StreamActionComponent,
		Component: component("c1", "fee_card", map[string]any{
			"title": "诉讼费测算",
			"total": "0",
		}),
	})
	r.Apply(&wire.A2UIStream{
		StreamID: "ui-1",
		Action:   wire.StreamActionDelta,
		Delta:    &wire.UIDelta{ComponentID: "c1", Props: map[string]any{"total": "3500"}},
	})
	r.Apply(&wire.A2UIStream{StreamID: "ui-1", Action: wire.StreamActionEnd})

	s, ok := r.Stream("ui-1")
	if !ok {
		t.Fatal("Stream should exist")
	}
	if !s.Complete {
		t.Error("Stream should be complete")
	}
	if len(s.Components) != 1 {
		t.Fatalf("Expected 1 component, got %d", len(s.Components))
	}
	if s.Components[0].Props["total"] != "3500" {
		t.Errorf("Delta not applied: %v", s.Components[0].Props)
	}
	if s.Components[0].Props["title"] != "诉讼费测算" {
		t.Errorf("Delta clobbered untouched props: %v", s.Components[0].Props)
	}
}

func TestUIReducer_DeltaAfterEndIgnored(t *testing.T) {
	r := NewUIReducer()

	r.Apply(&wire.A2UIStream{
		StreamID:  "ui-1",
		Action:    wire.StreamActionComponent,
		Component: component("c1", "card", map[string]any{"v": "final"}),
	})
	r.Apply(&wire.A2UIStream{StreamID: "ui-1", Action: wire.StreamActionEnd})
	r.Apply(&wire.A2UIStream{
		StreamID: "ui-1",
		Action:   wire.StreamActionDelta,
		Delta:    &wire.UIDelta{ComponentID: "c1", Props: map[string]any{"v": "stale"}},
	})

	s, _ := r.Stream("ui-1")
	if s.Components[0].Props["v"] != "final" {
		t.Errorf("Delta after end must not mutate finalized stream: %v", s.Components[0].Props)
	}
	if !s.Complete {
		t.Error("Stream must stay complete")
	}
}

func TestUIReducer_DeltaForUnknownStreamIgnored(t *testing.T) {
	r := NewUIReducer()

	// A frame arriving after a session reset must not create state or panic.
	r.Apply(&wire.A2UIStream{
		StreamID: "ghost",
		Action:   wire.StreamActionDelta,
		Delta:    &wire.UIDelta{ComponentID: "c1", Props: map[string]any{"x": 1}},
	})

	if _, ok := r.Stream("ghost"); ok {
		t.Error("Delta must not create a stream")
	}
}

func TestUIReducer_ConcurrentStreamsIndependent(t *testing.T) {
	r := NewUIReducer()

	r.Apply(&wire.A2UIStream{
		StreamID:  "ui-1",
		Action:    wire.StreamActionComponent,
		Component: component("a", "card", nil),
	})
	r.Apply(&wire.A2UIStream{
		StreamID:  "ui-2",
		Action:    wire.StreamActionComponent,
		Component: component("b", "chart", nil),
	})
	r.Apply(&wire.A2UIStream{StreamID: "ui-2", Action: wire.StreamActionEnd})

	one, _ := r.Stream("ui-1")
	two, _ := r.Stream("ui-2")
	if one.Complete {
		t.Error("ui-1 should still be open")
	}
	if !two.Complete {
		t.Error("ui-2 should be complete")
	}

	complete := r.CompleteStreams()
	if len(complete) != 1 || complete[0].ID != "ui-2" {
		t.Errorf("Unexpected complete set: %v", complete)
	}
}

func TestUIReducer_PurgeRemovesStream(t *testing.T) {
	r := NewUIReducer()

	r.Apply(&wire.A2UIStream{
		StreamID:  "ui-1",
		Action:    wire.StreamActionComponent,
		Component: component("c1", "card", nil),
	})
	r.Apply(&wire.A2UIStream{StreamID: "ui-1", Action: wire.StreamActionEnd})
	r.Purge("ui-1")

	if _, ok := r.Stream("ui-1"); ok {
		t.Error("Purged stream should be gone")
	}

	// Post-purge deltas fall into the unknown-stream path.
	r.Apply(&wire.A2UIStream{
		StreamID: "ui-1",
		Action:   wire.StreamActionDelta,
		Delta:    &wire.UIDelta{ComponentID: "c1", Props: map[string]any{"x": 1}},
	})
	if _, ok := r.Stream("ui-1"); ok {
		t.Error("Delta after purge must not resurrect the stream")
	}
}
