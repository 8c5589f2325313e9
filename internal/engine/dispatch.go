package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/lexhub/agentstream/internal/session"
	"github.com/lexhub/agentstream/internal/taskboard"
	"github.com/lexhub/agentstream/internal/wire"
)

// HandleFrame decodes one inbound frame and dispatches it under the current
// conversation generation. An unrecognized or malformed frame is logged and
// dropped, never fatal, since the gateway may emit kinds this client has not
// learned.
func (e *Engine) HandleFrame(data []byte) {
	e.handleFrame(e.currentGen(), data)
}

// ConnectionLost surfaces an exhausted-reconnect failure on the current
// conversation.
func (e *Engine) ConnectionLost(reason string) {
	e.connectionLost(e.currentGen(), reason)
}

func (e *Engine) currentGen() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

func (e *Engine) handleFrame(gen uint64, data []byte) {
	ctx := context.Background()

	ev, err := wire.Decode(data)
	if err != nil {
		if errors.Is(err, wire.ErrUnknownKind) {
			e.logger.DebugContext(ctx, "Dropping unknown event kind", "error", err)
			if e.metrics != nil {
				e.metrics.RecordUnknownEvent(ctx, "unknown")
			}
			return
		}
		e.logger.WarnContext(ctx, "Dropping malformed frame", "error", err)
		return
	}

	e.dispatch(ctx, gen, ev)
}

// connectionLost fires once when reconnect attempts are exhausted and
// surfaces the failure as a terminal system message inline in the
// conversation. A stale generation means the user already left the
// conversation the connection belonged to; the signal is dropped.
func (e *Engine) connectionLost(gen uint64, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen || e.store == nil {
		e.logger.Debug("Dropping connection-lost signal from a closed conversation")
		return
	}

	e.timers.Cancel(purposeStall)
	e.finalizeTextLocked()
	e.store.Append(session.Message{
		Kind: session.KindSystem,
		Body: reason,
	})
	e.store.SetProcessing(false)
	if e.trace != nil && e.turnSpan != nil {
		e.trace.RecordError(e.turnSpan, ErrNotConnected)
	}
	e.endTurnLocked()
}

// dispatch routes one event to its handler. The union is closed, so the type
// switch is exhaustive over every kind the gateway emits; each case runs to
// completion under the engine lock. A frame read off a previous
// conversation's socket carries that conversation's generation and is
// dropped here rather than applied to the store it never belonged to.
func (e *Engine) dispatch(ctx context.Context, gen uint64, ev wire.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen || e.store == nil {
		e.logger.DebugContext(ctx, "Dropping event from a closed conversation", "kind", ev.Kind())
		return
	}

	var span trace.Span
	if e.trace != nil {
		ctx, span = e.trace.StartDispatchSpan(ctx, ev.Kind(), eventAgent(ev), e.store.ConversationID())
		e.trace.AddComponentAttribute(span, "engine")
		defer span.End()
	}

	if e.metrics != nil {
		e.metrics.RecordEventDispatched(ctx, ev.Kind(), eventAgent(ev))
		defer e.metrics.StartTimer(ctx, ev.Kind())()
	}

	switch ev := ev.(type) {
	case *wire.AgentThinking:
		e.logger.DebugContext(ctx, "Agent thinking", "agent", ev.Agent)

	case *wire.AgentStart:
		e.board.AddTask(taskboard.Task{
			ID:          agentTaskID(ev.Agent),
			Agent:       ev.Agent,
			Description: ev.Description,
			Status:      taskboard.StatusRunning,
			StartedAt:   time.Now(),
		})

	case *wire.AgentWorking:
		e.board.UpdateTask(agentTaskID(ev.Agent), func(t *taskboard.Task) {
			t.Status = taskboard.StatusRunning
			t.Detail = ev.Detail
		})

	case *wire.AgentComplete:
		e.board.UpdateTask(agentTaskID(ev.Agent), func(t *taskboard.Task) {
			t.Status = taskboard.StatusCompleted
			t.Progress = 100
			t.FinishedAt = time.Now()
		})

	case *wire.ThinkingContent:
		e.logger.DebugContext(ctx, "Thinking content", "agent", ev.Agent, "length", len(ev.Text))

	case *wire.AgentResult:
		e.store.Append(session.Message{
			Kind:  session.KindAssistant,
			Body:  ev.Content,
			Agent: ev.Agent,
		})

	case *wire.AgentTaskStart:
		e.board.AddTask(taskboard.Task{
			ID:          ev.TaskID,
			Agent:       ev.Agent,
			Description: ev.Description,
			Status:      taskboard.StatusRunning,
			DependsOn:   ev.DependsOn,
			StartedAt:   time.Now(),
		})
		if span != nil {
			e.trace.AddTaskAttributes(span, ev.TaskID, ev.Agent, string(taskboard.StatusRunning))
		}

	case *wire.AgentTaskProgress:
		e.board.UpdateTask(ev.TaskID, func(t *taskboard.Task) {
			t.Status = taskboard.StatusRunning
			t.Progress = ev.Progress
			t.Detail = ev.Detail
			t.Elapsed = time.Duration(ev.ElapsedSeconds * float64(time.Second))
		})

	case *wire.AgentTaskComplete:
		var agent string
		e.board.UpdateTask(ev.TaskID, func(t *taskboard.Task) {
			t.Status = taskboard.StatusCompleted
			t.Progress = 100
			t.FinishedAt = time.Now()
			agent = t.Agent
		})
		if span != nil {
			e.trace.AddTaskAttributes(span, ev.TaskID, agent, string(taskboard.StatusCompleted))
		}

	case *wire.AgentTaskFailed:
		var agent string
		e.board.UpdateTask(ev.TaskID, func(t *taskboard.Task) {
			t.Status = taskboard.StatusFailed
			t.Detail = ev.Reason
			t.FinishedAt = time.Now()
			agent = t.Agent
		})
		if span != nil {
			e.trace.AddTaskAttributes(span, ev.TaskID, agent, string(taskboard.StatusFailed))
		}

	case *wire.AgentTaskRetry:
		e.board.UpdateTask(ev.TaskID, func(t *taskboard.Task) {
			t.Status = taskboard.StatusRunning
			t.Retries = ev.Attempt
			t.FinishedAt = time.Time{}
		})

	case *wire.AgentReplaced:
		e.board.UpdateTask(ev.TaskID, func(t *taskboard.Task) {
			t.Agent = ev.NewAgent
		})

	case *wire.TaskDegraded:
		e.board.UpdateTask(ev.TaskID, func(t *taskboard.Task) {
			t.Status = taskboard.StatusFailed
			t.Detail = ev.Reason
			t.FinishedAt = time.Now()
		})

	case *wire.TaskForceComplete:
		e.board.UpdateTask(ev.TaskID, func(t *taskboard.Task) {
			t.Status = taskboard.StatusCompleted
			t.Progress = 100
			t.FinishedAt = time.Now()
		})

	case *wire.AgentTasksBatch:
		tasks := make([]taskboard.Task, 0, len(ev.Tasks))
		for _, spec := range ev.Tasks {
			tasks = append(tasks, taskboard.Task{
				ID:          spec.TaskID,
				Agent:       spec.Agent,
				Description: spec.Description,
				Status:      taskboard.Status(spec.Status),
				Progress:    spec.Progress,
				DependsOn:   spec.DependsOn,
			})
		}
		e.board.SetAllTasks(tasks)

	case *wire.ContentToken:
		e.applyTokenLocked(ev)

	case *wire.A2UIStream:
		e.applyUIStreamLocked(ev)

	case *wire.A2UIMessage:
		e.store.Append(session.Message{
			ID:         ev.MessageID,
			Kind:       session.KindStructuredUI,
			Agent:      ev.Agent,
			Components: ev.Components,
		})

	case *wire.RequirementAnalysis:
		e.store.Append(session.Message{
			Kind: session.KindSystem,
			Body: joinSummary(ev.Summary, ev.Items),
		})

	case *wire.ClarificationRequest:
		e.clarification = ev
		e.store.Append(session.Message{
			Kind:  session.KindClarification,
			Body:  ev.Question,
			Agent: ev.Agent,
		})

	case *wire.WorkspaceConfirmation:
		e.store.AddConfirmation(*ev)

	case *wire.WorkspaceActions:
		e.store.SetActions(ev.Actions)

	case *wire.CanvasOpen:
		e.store.OpenCanvas(ev.DocumentID, ev.Title)
		e.observer.OpenPanel("canvas")

	case *wire.CanvasUpdate:
		e.store.SetCanvasContent(ev.DocumentID, ev.Content)

	case *wire.CanvasSaved:
		e.store.MarkCanvasSaved(nowOr(ev.SavedAt))

	case *wire.PanelTrigger:
		e.observer.OpenPanel(ev.Panel)

	case *wire.TabSwitch:
		e.observer.SwitchTab(ev.Tab)

	case *wire.DocumentReady:
		e.observer.DocumentReady(ev.DocumentID, ev.Name)

	case *wire.ConversationTitleUpdated:
		e.store.SetTitle(ev.Title)

	case *wire.SystemNotice:
		e.store.Append(session.Message{
			Kind: session.KindSystem,
			Body: ev.Text,
		})

	case *wire.SaveWarning:
		e.store.Append(session.Message{
			Kind: session.KindSystem,
			Body: ev.Text,
		})

	case *wire.Done:
		e.finishTurnLocked(ev)

	case *wire.ErrorEvent:
		e.failTurnLocked(ev)
	}
}

// applyTokenLocked appends one content token, lazily opening the text stream
// and its mirroring streaming message on the first non-empty token.
func (e *Engine) applyTokenLocked(ev *wire.ContentToken) {
	if ev.Token == "" {
		return
	}

	if !e.assembler.HasOpen() {
		msg := e.store.Append(session.Message{
			Kind:      session.KindAssistant,
			Agent:     ev.Agent,
			Streaming: true,
		})
		e.streamMsgID = msg.ID
	}
	e.assembler.Append(ev.Agent, ev.Token)

	if err := e.store.SetStreamingBody(e.streamMsgID, e.assembler.Body()); err != nil {
		e.logger.Warn("Streaming body update rejected", "error", err)
	}
}

// applyUIStreamLocked folds one structured-UI event into the reducer and, on
// stream end, appends the finalized message before purging the stream so a
// late delta racing the finalization is absorbed, not lost.
func (e *Engine) applyUIStreamLocked(ev *wire.A2UIStream) {
	e.ui.Apply(ev)

	if ev.Action != wire.StreamActionEnd {
		return
	}
	s, ok := e.ui.Stream(ev.StreamID)
	if !ok || !s.Complete {
		return
	}
	e.store.Append(session.Message{
		Kind:       session.KindStructuredUI,
		Agent:      s.Agent,
		Components: s.Components,
	})
	e.ui.Purge(ev.StreamID)
}

// finishTurnLocked handles the terminal done/agent_response event: the open
// text stream is finalized, or the inline content becomes a direct message
// when no stream was ever opened. Both paths converge on one message.
func (e *Engine) finishTurnLocked(ev *wire.Done) {
	if !e.finalizeTextLocked() && ev.Content != "" {
		e.store.Append(session.Message{
			Kind:  session.KindAssistant,
			Body:  ev.Content,
			Agent: ev.Agent,
		})
	}

	if ev.TasksComplete {
		e.board.ClearCompleted()
	}
	e.timers.Cancel(purposeStall)
	e.store.SetProcessing(false)
	if e.trace != nil && e.turnSpan != nil {
		e.trace.SetSpanSuccess(e.turnSpan)
	}
	e.endTurnLocked()
}

// failTurnLocked handles a backend-signaled error: partial stream content is
// kept, and the failure is surfaced as a retryable system message carrying
// the last user input for one-click resend. Prior messages stay intact.
func (e *Engine) failTurnLocked(ev *wire.ErrorEvent) {
	e.finalizeTextLocked()
	msg := e.store.Append(session.Message{
		Kind:         session.KindSystem,
		Body:         ev.Message,
		Retryable:    true,
		RetryContent: e.store.LastUserInput(),
	})
	e.timers.Cancel(purposeStall)
	e.store.SetProcessing(false)
	if e.trace != nil && e.turnSpan != nil {
		e.trace.AddMessageAttributes(e.turnSpan, msg.ID, string(msg.Kind), msg.Retryable)
		e.trace.RecordError(e.turnSpan, errors.New(ev.Message))
	}
	e.endTurnLocked()
}

func agentTaskID(agent string) string {
	return "agent:" + agent
}

func eventAgent(ev wire.Event) string {
	switch ev := ev.(type) {
	case *wire.AgentThinking:
		return ev.Agent
	case *wire.AgentStart:
		return ev.Agent
	case *wire.AgentWorking:
		return ev.Agent
	case *wire.AgentComplete:
		return ev.Agent
	case *wire.ContentToken:
		return ev.Agent
	case *wire.AgentResult:
		return ev.Agent
	case *wire.A2UIStream:
		return ev.Agent
	case *wire.Done:
		return ev.Agent
	default:
		return ""
	}
}
