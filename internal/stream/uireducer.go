package stream

import (
	"sync"

	"github.com/lexhub/agentstream/internal/wire"
)

// UIStream is the accumulated state of one structured-UI stream.
type UIStream struct {
	ID         string
	Agent      string
	Components []wire.UIComponent
	Complete   bool
}

// UIReducer folds incremental structured-UI events into per-stream component
// lists. Unlike text streams, any number of UI streams may be open at once,
// each addressed by its own identifier. Completed streams stay in the map
// until the engine has durably appended the owning message and calls Purge,
// so a late delta racing the finalization is absorbed instead of lost.
type UIReducer struct {
	mu      sync.Mutex
	streams map[string]*UIStream
}

// NewUIReducer creates an empty reducer.
func NewUIReducer() *UIReducer {
	return &UIReducer{
		streams: make(map[string]*UIStream),
	}
}

// Apply folds one a2ui_stream event into the reducer. Events referencing an
// unknown or completed stream are dropped where the protocol requires it: a
// delta for an unknown stream means the frame outlived a session reset and is
// ignored, and nothing reopens a completed stream.
func (r *UIReducer) Apply(ev *wire.A2UIStream) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Action {
	case wire.StreamActionComponent:
		s := r.streams[ev.StreamID]
		if s == nil {
			s = &UIStream{ID: ev.StreamID, Agent: ev.Agent}
			r.streams[ev.StreamID] = s
		}
		if s.Complete {
			return
		}
		if ev.Component != nil {
			s.Components = append(s.Components, *ev.Component)
		}
		s.Components = append(s.Components, ev.Components...)

	case wire.StreamActionDelta:
		s := r.streams[ev.StreamID]
		if s == nil || s.Complete || ev.Delta == nil {
			return
		}
		for i := range s.Components {
			if s.Components[i].ComponentID != ev.Delta.ComponentID {
				continue
			}
			if s.Components[i].Props == nil {
				s.Components[i].Props = make(map[string]any, len(ev.Delta.Props))
			}
			for k, v := range ev.Delta.Props {
				s.Components[i].Props[k] = v
			}
			return
		}

	case wire.StreamActionEnd:
		s := r.streams[ev.StreamID]
		if s == nil {
			return
		}
		s.Complete = true
	}
}

// Stream returns a snapshot of the stream with the given id.
func (r *UIReducer) Stream(id string) (UIStream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.streams[id]
	if !ok {
		return UIStream{}, false
	}
	return snapshot(s), true
}

// CompleteStreams returns snapshots of every completed, not-yet-purged stream.
func (r *UIReducer) CompleteStreams() []UIStream {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []UIStream
	for _, s := range r.streams {
		if s.Complete {
			out = append(out, snapshot(s))
		}
	}
	return out
}

// Purge removes a stream once the owning message has been appended to the
// session store.
func (r *UIReducer) Purge(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, id)
}

// Reset drops all streams, complete or not. Used on conversation switch.
func (r *UIReducer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams = make(map[string]*UIStream)
}

func snapshot(s *UIStream) UIStream {
	out := UIStream{ID: s.ID, Agent: s.Agent, Complete: s.Complete}
	out.Components = make([]wire.UIComponent, len(s.Components))
	copy(out.Components, s.Components)
	return out
}
