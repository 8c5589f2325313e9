// Package engine ties the protocol components together for one conversation:
// it routes every inbound event to exactly one handler, owns the stall
// watchdog and the outbound send paths, and is the single entry point through
// which session state is mutated. Handlers run to completion under one mutex,
// so ordering within a connection equals arrival order.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/lexhub/agentstream/internal/api"
	"github.com/lexhub/agentstream/internal/config"
	"github.com/lexhub/agentstream/internal/observability"
	"github.com/lexhub/agentstream/internal/session"
	"github.com/lexhub/agentstream/internal/socket"
	"github.com/lexhub/agentstream/internal/stream"
	"github.com/lexhub/agentstream/internal/taskboard"
	"github.com/lexhub/agentstream/internal/timers"
	"github.com/lexhub/agentstream/internal/wire"
)

// ErrNotConnected is returned by send paths when the channel is not open. The
// message is the user-facing text surfaced inline in the conversation.
var ErrNotConnected = errors.New("无法连接到服务器")

// ErrNotRetryable is returned by Retry for a message without a retry affordance.
var ErrNotRetryable = errors.New("message is not retryable")

// ErrNoConversation is returned when an operation needs an open conversation
// and none is attached.
var ErrNoConversation = errors.New("no open conversation")

// Timer registry purposes owned by the engine.
const (
	purposeStall  = "stall"
	purposeCanvas = "canvas_debounce"
)

// Observer receives UI-panel signals that the engine surfaces but does not
// own. All methods are invoked under the engine lock and must return quickly.
type Observer interface {
	OpenPanel(panel string)
	SwitchTab(tab string)
	DocumentReady(documentID, name string)
}

type noopObserver struct{}

func (noopObserver) OpenPanel(string)          {}
func (noopObserver) SwitchTab(string)          {}
func (noopObserver) DocumentReady(_, _ string) {}

// GatewayAPI is the REST collaborator surface the engine needs. *api.Client
// satisfies it; tests substitute scripted fakes.
type GatewayAPI interface {
	FetchHistory(ctx context.Context, conversationID string, page, pageSize int) ([]session.Message, error)
	FetchCanvas(ctx context.Context, conversationID string) (*api.CanvasDocument, error)
	UploadDocument(ctx context.Context, name string, content io.Reader) (*api.UploadResult, error)
}

// transport is the connection surface the engine drives. *socket.Supervisor
// satisfies it.
type transport interface {
	Connect(ctx context.Context)
	Send(frame wire.Frame) bool
	Close(intentional bool)
	State() socket.State
}

type transportFactory func(url string, handler socket.Handler, reg *timers.Registry) transport

// Options configures an Engine.
type Options struct {
	Config   *config.AppConfig
	Logger   *slog.Logger
	API      GatewayAPI
	Observer Observer
	Metrics  *observability.MetricsManager
	Trace    *observability.TraceManager

	// newTransport substitutes the connection layer (tests only).
	newTransport transportFactory
}

// Engine is the protocol/session engine for one conversation at a time.
type Engine struct {
	cfg      *config.AppConfig
	logger   *slog.Logger
	api      GatewayAPI
	observer Observer
	metrics  *observability.MetricsManager
	trace    *observability.TraceManager

	newTransport transportFactory

	mu        sync.Mutex
	store     *session.Store
	assembler *stream.Assembler
	ui        *stream.UIReducer
	board     *taskboard.Board
	timers    *timers.Registry
	conn      transport

	// gen identifies the current conversation attachment. Supervisor
	// callbacks carry the generation they were created under; a mismatch
	// means the frame belongs to a conversation the user has left.
	gen uint64

	// streamMsgID is the store id of the message mirroring the open text
	// stream, empty when no stream is open.
	streamMsgID   string
	clarification *wire.ClarificationRequest

	// turnSpan covers the outstanding turn from chat send to its terminal
	// event, nil when no turn is in flight.
	turnSpan trace.Span
}

// connHandler binds supervisor callbacks to the conversation generation that
// owns the connection, so a frame read off the old socket during a switch can
// never reach the next conversation's store.
type connHandler struct {
	e   *Engine
	gen uint64
}

func (h *connHandler) HandleFrame(data []byte)      { h.e.handleFrame(h.gen, data) }
func (h *connHandler) ConnectionLost(reason string) { h.e.connectionLost(h.gen, reason) }

// New creates an engine. Open must be called to attach a conversation.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	e := &Engine{
		cfg:          opts.Config,
		logger:       opts.Logger,
		api:          opts.API,
		observer:     opts.Observer,
		metrics:      opts.Metrics,
		trace:        opts.Trace,
		newTransport: opts.newTransport,
	}
	if e.newTransport == nil {
		e.newTransport = e.defaultTransport
	}
	return e
}

func (e *Engine) defaultTransport(url string, handler socket.Handler, reg *timers.Registry) transport {
	return socket.NewSupervisor(socket.Options{
		URL:               url,
		Dial:              socket.GorillaDialer(nil),
		Handler:           handler,
		Logger:            e.logger,
		Timers:            reg,
		MaxAttempts:       e.cfg.MaxReconnectAttempts,
		HeartbeatInterval: e.cfg.HeartbeatInterval,
		OpenWait:          e.cfg.OpenWaitTimeout,
		OnReconnect: func(attempt int, delay time.Duration) {
			ctx := context.Background()
			if e.metrics != nil {
				e.metrics.RecordReconnect(ctx, attempt+1)
				e.metrics.RecordConnectionState(ctx, int(socket.StateConnecting))
			}
			if e.trace != nil {
				_, span := e.trace.StartReconnectSpan(ctx, attempt+1, url)
				span.End()
			}
		},
	})
}

// Open attaches the engine to a conversation and connects its channel. Any
// previous conversation is torn down first with an intentional close and all
// of its timers cancelled, so no stray callback can reach the new store.
func (e *Engine) Open(ctx context.Context, conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.teardownLocked()

	e.store = session.NewStore(conversationID)
	e.assembler = stream.NewAssembler()
	e.ui = stream.NewUIReducer()
	e.board = taskboard.NewBoard()
	e.timers = timers.NewRegistry()
	e.streamMsgID = ""
	e.clarification = nil
	e.gen++

	e.conn = e.newTransport(e.cfg.ConversationWSURL(conversationID), &connHandler{e: e, gen: e.gen}, e.timers)
	e.conn.Connect(ctx)

	e.logger.InfoContext(ctx, "Conversation opened", "conversation_id", conversationID)
}

// Close tears down the current conversation.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

func (e *Engine) teardownLocked() {
	if e.timers != nil {
		e.timers.CancelAll()
	}
	if e.conn != nil {
		e.conn.Close(true)
		e.conn = nil
	}
	e.endTurnLocked()
}

// endTurnLocked ends the in-flight turn span, if any.
func (e *Engine) endTurnLocked() {
	if e.turnSpan == nil {
		return
	}
	e.turnSpan.End()
	e.turnSpan = nil
}

// Store returns the current conversation's session store for observation.
func (e *Engine) Store() *session.Store {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store
}

// Board returns the current task board for observation.
func (e *Engine) Board() *taskboard.Board {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board
}

// PendingClarification returns the unanswered clarification request, if any.
func (e *Engine) PendingClarification() *wire.ClarificationRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clarification
}

// ConnectionState reports the channel state.
func (e *Engine) ConnectionState() socket.State {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return socket.StateClosed
	}
	return conn.State()
}

// LoadHistory fetches the conversation's stored history and canvas document
// once and merges them into the store. The merge is idempotent, so a retried
// call neither duplicates nor reorders messages.
func (e *Engine) LoadHistory(ctx context.Context) error {
	e.mu.Lock()
	store := e.store
	e.mu.Unlock()
	if store == nil {
		return ErrNoConversation
	}
	if store.HistoryLoaded() {
		return nil
	}

	history, err := e.api.FetchHistory(ctx, store.ConversationID(), 1, 100)
	if err != nil {
		return err
	}
	store.MergeHistory(history)

	doc, err := e.api.FetchCanvas(ctx, store.ConversationID())
	if err != nil {
		e.logger.WarnContext(ctx, "Canvas restore failed", "error", err)
		return nil
	}
	if doc != nil {
		store.OpenCanvas(doc.DocumentID, doc.Title)
		store.SetCanvasContent(doc.DocumentID, doc.Content)
		store.MarkCanvasSaved(doc.SavedAt)
	}
	return nil
}

// ChatAttachment is a file to upload alongside a chat send.
type ChatAttachment struct {
	Name    string
	Content io.Reader
}

// ChatOptions carries the optional fields of a chat send.
type ChatOptions struct {
	PrivacyMode bool
	Mode        string
	Attachment  *ChatAttachment
}

// SendChat submits one user turn. With an attachment it first uploads the
// file and enriches the outgoing frame with the stored document id and
// extracted text. The frame is transmitted before any store mutation: a send
// that fails leaves the conversation untouched and returns ErrNotConnected
// for the caller to surface.
func (e *Engine) SendChat(ctx context.Context, content string, opts ChatOptions) error {
	frame := &wire.ChatSend{
		Content:     content,
		PrivacyMode: opts.PrivacyMode,
		Mode:        opts.Mode,
	}

	var att *session.Attachment
	if opts.Attachment != nil {
		result, err := e.api.UploadDocument(ctx, opts.Attachment.Name, opts.Attachment.Content)
		if err != nil {
			return err
		}
		frame.HasAttachment = true
		frame.DocumentID = result.DocumentID
		if result.ExtractedText != "" {
			frame.Content = content + "\n\n" + result.ExtractedText
		}
		att = &session.Attachment{Name: result.Name, Size: result.Size, Kind: result.Kind}
	}

	if !e.send(ctx, frame) {
		return ErrNotConnected
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store == nil {
		return ErrNoConversation
	}

	if e.trace != nil {
		e.endTurnLocked()
		_, e.turnSpan = e.trace.StartTurnSpan(ctx, e.store.ConversationID(), frame.HasAttachment)
	}

	e.store.Append(session.Message{
		Kind:       session.KindUser,
		Body:       content,
		Attachment: att,
	})
	e.store.SetProcessing(true)
	e.armStallLocked(ctx)
	return nil
}

// Retry resends the user input carried on a retryable failure message.
func (e *Engine) Retry(ctx context.Context, messageID string) error {
	e.mu.Lock()
	store := e.store
	e.mu.Unlock()
	if store == nil {
		return ErrNoConversation
	}

	msg, ok := store.Message(messageID)
	if !ok {
		return session.ErrUnknownMessage
	}
	if !msg.Retryable {
		return ErrNotRetryable
	}
	return e.SendChat(ctx, msg.RetryContent, ChatOptions{})
}

// RespondClarification answers the pending clarification request.
func (e *Engine) RespondClarification(ctx context.Context, requestID string, selections []string, supplement string) error {
	if !e.send(ctx, &wire.ClarificationResponse{
		RequestID:  requestID,
		Selections: selections,
		Supplement: supplement,
	}) {
		return ErrNotConnected
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clarification != nil && e.clarification.RequestID == requestID {
		e.clarification = nil
	}
	return nil
}

// ResolveConfirmation answers a workspace confirmation prompt. Resolving an
// already-resolved or unknown id is ignored: no frame is sent and no error is
// returned, so duplicate responses stay idempotent.
func (e *Engine) ResolveConfirmation(ctx context.Context, confirmationID string, choices []string) error {
	e.mu.Lock()
	store := e.store
	e.mu.Unlock()
	if store == nil {
		return ErrNoConversation
	}

	if !store.ResolveConfirmation(confirmationID) {
		e.logger.DebugContext(ctx, "Duplicate confirmation resolution ignored", "confirmation_id", confirmationID)
		return nil
	}
	if !e.send(ctx, &wire.WorkspaceConfirmationResponse{
		ConfirmationID: confirmationID,
		Choices:        choices,
	}) {
		return ErrNotConnected
	}
	return nil
}

// InvokeAction consumes an offered quick action and transmits it.
func (e *Engine) InvokeAction(ctx context.Context, actionID string) error {
	e.mu.Lock()
	store := e.store
	e.mu.Unlock()
	if store == nil {
		return ErrNoConversation
	}

	if _, ok := store.ConsumeAction(actionID); !ok {
		return errors.New("unknown action id")
	}
	if !e.send(ctx, &wire.WorkspaceActionFrame{ActionID: actionID}) {
		return ErrNotConnected
	}
	return nil
}

// EditCanvas records a user edit of the canvas and schedules the debounced
// outbound frame. Edits within the debounce window coalesce: only the latest
// content is transmitted when the timer fires.
func (e *Engine) EditCanvas(ctx context.Context, documentID, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store == nil {
		return
	}

	e.store.SetCanvasContent(documentID, content)
	e.timers.Schedule(purposeCanvas, e.cfg.CanvasDebounce, func() {
		e.mu.Lock()
		canvas := e.store.Canvas()
		e.mu.Unlock()

		e.send(ctx, &wire.CanvasEdit{
			DocumentID: canvas.DocumentID,
			Content:    canvas.Content,
		})
	})
}

// SendUIEvent reports a user interaction with a structured-UI component.
func (e *Engine) SendUIEvent(ctx context.Context, componentID, actionID string, formData map[string]any) error {
	if !e.send(ctx, &wire.A2UIEvent{
		ComponentID: componentID,
		ActionID:    actionID,
		FormData:    formData,
	}) {
		return ErrNotConnected
	}
	return nil
}

// Feedback records a rating on a message. Ratings are local state only.
func (e *Engine) Feedback(messageID string, rating int) error {
	e.mu.Lock()
	store := e.store
	e.mu.Unlock()
	if store == nil {
		return ErrNoConversation
	}
	return store.SetFeedback(messageID, rating)
}

func (e *Engine) send(ctx context.Context, frame wire.Frame) bool {
	e.mu.Lock()
	conn := e.conn
	var convID string
	if e.store != nil {
		convID = e.store.ConversationID()
	}
	e.mu.Unlock()

	var span trace.Span
	if e.trace != nil {
		ctx, span = e.trace.StartSendSpan(ctx, frameType(frame), convID)
		defer span.End()
	}

	ok := conn != nil && conn.Send(frame)
	if e.metrics != nil {
		if ok {
			e.metrics.RecordFrameSent(ctx, frameType(frame))
		} else {
			e.metrics.RecordFrameFailed(ctx, frameType(frame))
		}
	}
	if span != nil {
		if ok {
			e.trace.SetSpanSuccess(span)
		} else {
			e.trace.RecordError(span, ErrNotConnected)
		}
	}
	return ok
}

func frameType(f wire.Frame) string {
	switch f.(type) {
	case *wire.ChatSend:
		return wire.FrameChatSend
	case *wire.ClarificationResponse:
		return wire.FrameClarificationResponse
	case *wire.WorkspaceConfirmationResponse:
		return wire.FrameWorkspaceConfirmationResponse
	case *wire.WorkspaceActionFrame:
		return wire.FrameWorkspaceAction
	case *wire.CanvasEdit:
		return wire.FrameCanvasEdit
	case *wire.A2UIEvent:
		return wire.FrameA2UIEvent
	case *wire.Ping:
		return wire.FramePing
	default:
		return "unknown"
	}
}

// armStallLocked starts the per-turn watchdog. A turn with no terminal event
// within the stall timeout is abandoned locally: partial stream content is
// kept, a retryable timeout message is appended, and input is unblocked.
func (e *Engine) armStallLocked(ctx context.Context) {
	e.timers.Schedule(purposeStall, e.cfg.StallTimeout, func() {
		e.onStall(ctx)
	})
}

func (e *Engine) onStall(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.Processing() {
		return
	}

	e.logger.WarnContext(ctx, "Turn stalled, finalizing locally",
		"conversation_id", e.store.ConversationID(),
		"stall_timeout", e.cfg.StallTimeout)
	if e.metrics != nil {
		e.metrics.RecordStall(ctx, e.store.ConversationID())
	}

	e.finalizeTextLocked()
	e.store.Append(session.Message{
		Kind:         session.KindSystem,
		Body:         "响应超时，请重试",
		Retryable:    true,
		RetryContent: e.store.LastUserInput(),
	})
	e.store.SetProcessing(false)
	if e.trace != nil && e.turnSpan != nil {
		e.trace.AddSpanEvent(e.turnSpan, "turn_stalled")
	}
	e.endTurnLocked()
}

// finalizeTextLocked closes the open text stream, if any, into its mirroring
// message. It reports whether a stream was finalized.
func (e *Engine) finalizeTextLocked() bool {
	res, ok := e.assembler.Finalize()
	if !ok {
		return false
	}
	if e.trace != nil && e.turnSpan != nil {
		e.trace.AddStreamAttributes(e.turnSpan, res.StreamID, res.Agent, len(res.Body))
	}
	if e.streamMsgID != "" {
		if err := e.store.FinishStreaming(e.streamMsgID, res.Body); err != nil {
			e.logger.Warn("Stream finalization lost its message", "error", err)
		}
		e.streamMsgID = ""
		return true
	}
	e.store.Append(session.Message{
		Kind:  session.KindAssistant,
		Body:  res.Body,
		Agent: res.Agent,
	})
	return true
}

func joinSummary(summary string, items []string) string {
	if len(items) == 0 {
		return summary
	}
	var b strings.Builder
	b.WriteString(summary)
	for _, item := range items {
		b.WriteString("\n- ")
		b.WriteString(item)
	}
	return b.String()
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
