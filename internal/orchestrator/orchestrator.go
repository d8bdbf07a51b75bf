// Package orchestrator runs one conversation turn: session bootstrap, memory
// composition, the model/tool loop, and persistence of the finished turn.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"amble/internal/llm"
	"amble/internal/logging"
	"amble/internal/memory"
	"amble/internal/models"
	"amble/internal/persona"
	"amble/internal/session"
	"amble/internal/store"
	"amble/internal/telemetry"
	"amble/internal/tools"
)

// Fixed replies. Only these or a model reply ever reach the user.
const (
	DegradedReply = "I'm sorry, I couldn't process that request right now."
	EmptyReply    = "I'm sorry, I couldn't process that request."
)

const (
	historyKey = "transcript"
	maxHistory = 20
)

// ErrInvalidRequest is returned when the user key or message is missing.
var ErrInvalidRequest = errors.New("userKey and message are required")

// TurnRequest is one user utterance.
type TurnRequest struct {
	UserKey   string
	SessionID string
	Message   string
}

// TurnResult is the reply plus what the turn changed.
type TurnResult struct {
	SessionID    string         `json:"sessionId"`
	Text         string         `json:"response"`
	MemoriesUsed int            `json:"memoriesUsed"`
	Actions      []tools.Domain `json:"actions"`
	Degraded     bool           `json:"-"`
}

// Records is the part of the record store a turn touches directly.
type Records interface {
	store.ProfileStore
	store.TranscriptStore
}

// Options wires an Orchestrator. Zero durations take the defaults.
type Options struct {
	Model    llm.Model
	Tools    *tools.Registry
	Composer *memory.Composer
	Semantic memory.Semantic
	Records  Records
	Sessions *session.Store
	Persona  *persona.Template
	Sink     telemetry.Sink

	DefaultLoc    *time.Location
	RetryBackoff  time.Duration
	TurnTimeout   time.Duration
	MaxIterations int
	Now           func() time.Time
}

// Orchestrator is safe for concurrent turns on different sessions.
type Orchestrator struct {
	opts Options
}

func New(opts Options) *Orchestrator {
	if opts.Semantic == nil {
		opts.Semantic = memory.Noop{}
	}
	if opts.Composer == nil {
		opts.Composer = memory.NewComposer(opts.Semantic, nil, 5)
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewStore(2 * time.Hour)
	}
	if opts.Persona == nil {
		opts.Persona = persona.Fallback()
	}
	if opts.Sink == nil {
		opts.Sink = telemetry.Nop{}
	}
	if opts.DefaultLoc == nil {
		opts.DefaultLoc = time.UTC
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 750 * time.Millisecond
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 60 * time.Second
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 6
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{opts: opts}
}

// Sessions exposes the session store for handlers that inspect live sessions.
func (o *Orchestrator) Sessions() *session.Store {
	return o.opts.Sessions
}

type turn struct {
	id      string
	req     TurnRequest
	state   *session.State
	logger  *slog.Logger
	start   time.Time
	actions []tools.Domain
}

func (t *turn) event(kind telemetry.EventKind) telemetry.Event {
	return telemetry.Event{Kind: kind, TurnID: t.id, UserKey: t.req.UserKey, SessionID: t.state.ID, At: time.Now()}
}

func (t *turn) addAction(d tools.Domain) {
	for _, a := range t.actions {
		if a == d {
			return
		}
	}
	t.actions = append(t.actions, d)
}

// RunTurn answers one utterance. Capability failures never surface as
// errors: they produce the degraded reply instead.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	req.UserKey = strings.TrimSpace(req.UserKey)
	req.Message = strings.TrimSpace(req.Message)
	if req.UserKey == "" || req.Message == "" {
		return nil, ErrInvalidRequest
	}

	state, _ := o.opts.Sessions.Resolve(req.SessionID, req.UserKey)
	turnID := uuid.New().String()
	t := &turn{
		id:     turnID,
		req:    req,
		state:  state,
		logger: logging.WithTurn(turnID, state.ID, req.UserKey),
		start:  o.opts.Now(),
	}
	o.opts.Sink.Emit(ctx, t.event(telemetry.TurnStart))

	ctx, cancel := context.WithTimeout(ctx, o.opts.TurnTimeout)
	defer cancel()

	if !state.Initialized() {
		o.bootstrap(ctx, t)
	}
	now := o.opts.Now()
	state.StampTime(now.In(o.location(state)))

	block := o.opts.Composer.Compose(ctx, req.UserKey, state, req.Message)

	messages := append(history(state), llm.Message{Role: llm.RoleUser, Content: req.Message})
	llmReq := llm.Request{
		System:   systemPrompt(block.Text),
		Messages: messages,
		Tools:    o.opts.Tools.Definitions(),
	}

	text, ok := o.loop(ctx, t, &llmReq)
	if !ok {
		return o.degraded(ctx, t), nil
	}

	o.persist(ctx, t, text)
	remember(state, req.Message, text)

	end := t.event(telemetry.TurnEnd)
	end.Status = "success"
	end.Duration = o.opts.Now().Sub(t.start)
	o.opts.Sink.Emit(ctx, end)

	return &TurnResult{
		SessionID:    state.ID,
		Text:         text,
		MemoriesUsed: len(block.Hits),
		Actions:      nonNil(t.actions),
	}, nil
}

// loop alternates model calls and tool dispatches until the model answers
// with text. It reports false when the model failed or the cap was hit.
func (o *Orchestrator) loop(ctx context.Context, t *turn, req *llm.Request) (string, bool) {
	for iteration := 0; iteration < o.opts.MaxIterations; iteration++ {
		resp, err := o.generate(ctx, t, *req, iteration)
		if err != nil {
			t.logger.Warn("model call failed, replying degraded", "iteration", iteration+1, "error", err)
			return "", false
		}

		if len(resp.ToolCalls) == 0 {
			text := strings.TrimSpace(resp.Text)
			if text == "" {
				text = EmptyReply
			}
			return text, true
		}

		req.Messages = append(req.Messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			res := o.dispatch(ctx, t, call)
			req.Messages = append(req.Messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    res.JSON(),
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
		if ctx.Err() != nil {
			t.logger.Warn("turn budget exhausted during tool calls")
			return "", false
		}
	}

	t.logger.Warn("tool iteration cap reached without a final reply", "cap", o.opts.MaxIterations)
	return "", false
}

// generate calls the model, retrying once after the backoff.
func (o *Orchestrator) generate(ctx context.Context, t *turn, req llm.Request, iteration int) (*llm.Response, error) {
	name := fmt.Sprintf("iteration_%d", iteration+1)
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.opts.RetryBackoff):
			}
		}

		startEv := t.event(telemetry.ModelCallStart)
		startEv.Name = name
		o.opts.Sink.Emit(ctx, startEv)

		began := time.Now()
		resp, err := o.opts.Model.Generate(ctx, req)

		endEv := t.event(telemetry.ModelCallEnd)
		endEv.Name = name
		endEv.Duration = time.Since(began)
		if err == nil && resp != nil {
			endEv.Status = "success"
			o.opts.Sink.Emit(ctx, endEv)
			return resp, nil
		}
		if err == nil {
			err = errors.New("model returned no response")
		}
		lastErr = err
		endEv.Err = err
		endEv.Status = "error"
		if attempt == 0 {
			endEv.Status = "retry"
		}
		o.opts.Sink.Emit(ctx, endEv)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (o *Orchestrator) dispatch(ctx context.Context, t *turn, call llm.ToolCall) tools.Result {
	startEv := t.event(telemetry.ToolCallStart)
	startEv.Name = call.Name
	o.opts.Sink.Emit(ctx, startEv)

	began := time.Now()
	res := o.opts.Tools.Dispatch(ctx, tools.Invocation{
		UserKey: t.req.UserKey,
		State:   t.state,
		Now:     o.opts.Now(),
	}, tools.Call{ID: call.ID, Name: call.Name, Arguments: call.Arguments})

	endEv := t.event(telemetry.ToolCallEnd)
	endEv.Name = call.Name
	endEv.Status = string(res.Status)
	endEv.Duration = time.Since(began)
	o.opts.Sink.Emit(ctx, endEv)

	if res.Status == tools.StatusSuccess {
		if tool, ok := o.opts.Tools.Get(call.Name); ok && tool.Mutates && res.Changed() {
			t.addAction(tool.Domain)
		}
	} else {
		t.logger.Info("tool returned non-success", "tool", call.Name, "status", res.Status, "message", res.Message)
	}
	return res
}

func (o *Orchestrator) degraded(ctx context.Context, t *turn) *TurnResult {
	end := t.event(telemetry.TurnEnd)
	end.Status = "degraded"
	end.Duration = o.opts.Now().Sub(t.start)
	o.opts.Sink.Emit(ctx, end)

	return &TurnResult{
		SessionID: t.state.ID,
		Text:      DegradedReply,
		Actions:   nonNil(t.actions),
		Degraded:  true,
	}
}

// bootstrap loads or creates the profile and caches it in the session.
func (o *Orchestrator) bootstrap(ctx context.Context, t *turn) {
	p, err := o.opts.Records.GetProfile(ctx, t.req.UserKey)
	if err == nil {
		t.state.LoadProfile(p)
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		t.logger.Warn("profile lookup failed, continuing without profile", "error", err)
		return
	}

	p = o.opts.Persona.NewProfile(t.req.UserKey, o.opts.DefaultLoc.String(), o.opts.Now())
	if err := o.opts.Records.UpsertProfile(ctx, p); err != nil {
		t.logger.Warn("could not persist bootstrap profile", "error", err)
	} else {
		t.logger.Info("bootstrapped profile from persona template", "name", p.Name)
	}
	for _, m := range o.opts.Persona.InitialMemories {
		if err := o.opts.Semantic.Add(ctx, t.req.UserKey, m); err != nil {
			t.logger.Warn("could not seed initial memory", "error", err)
			break
		}
	}
	t.state.LoadProfile(p)
}

// persist writes the transcript and the semantic write-through. Failures are logged only.
func (o *Orchestrator) persist(ctx context.Context, t *turn, text string) {
	actions := make([]string, len(t.actions))
	for i, a := range t.actions {
		actions[i] = string(a)
	}
	rec := &models.TurnRecord{
		ID:        t.id,
		UserKey:   t.req.UserKey,
		SessionID: t.state.ID,
		UserText:  t.req.Message,
		Response:  text,
		Actions:   actions,
		CreatedAt: o.opts.Now().UTC(),
	}
	if err := o.opts.Records.AddTurn(ctx, rec); err != nil {
		t.logger.Error("failed to persist turn", "error", err)
	}

	wctx := context.WithoutCancel(ctx)
	if err := o.opts.Semantic.Add(wctx, t.req.UserKey, "User said: "+t.req.Message); err != nil {
		t.logger.Warn("semantic write-through failed", "error", err)
		return
	}
	if err := o.opts.Semantic.Add(wctx, t.req.UserKey, "Amble replied: "+text); err != nil {
		t.logger.Warn("semantic write-through failed", "error", err)
	}
}

func (o *Orchestrator) location(state *session.State) *time.Location {
	if tz := state.GetString(session.KeyUserTimezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return o.opts.DefaultLoc
}

func history(state *session.State) []llm.Message {
	v, ok := state.Get(historyKey)
	if !ok {
		return nil
	}
	msgs, _ := v.([]llm.Message)
	return append([]llm.Message(nil), msgs...)
}

// remember appends the finished exchange to the session transcript.
func remember(state *session.State, user, reply string) {
	msgs := append(history(state),
		llm.Message{Role: llm.RoleUser, Content: user},
		llm.Message{Role: llm.RoleAssistant, Content: reply},
	)
	if len(msgs) > maxHistory {
		msgs = msgs[len(msgs)-maxHistory:]
	}
	state.Set(historyKey, msgs)
}

func nonNil(actions []tools.Domain) []tools.Domain {
	if actions == nil {
		return []tools.Domain{}
	}
	return actions
}
