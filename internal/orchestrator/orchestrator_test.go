package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amble/internal/database"
	"amble/internal/llm"
	"amble/internal/memory"
	"amble/internal/models"
	"amble/internal/persona"
	"amble/internal/store"
	"amble/internal/telemetry"
	"amble/internal/tools"
	"amble/internal/wellness"
)

// scriptedModel replays responses in order; a nil response with an error
// fails that call. Once the script runs out it repeats the last step.
type scriptedModel struct {
	mu       sync.Mutex
	steps    []step
	requests []llm.Request
}

type step struct {
	resp *llm.Response
	err  error
	wait bool
}

func (m *scriptedModel) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	i := len(m.requests) - 1
	if i >= len(m.steps) {
		i = len(m.steps) - 1
	}
	s := m.steps[i]
	m.mu.Unlock()

	if s.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.resp, s.err
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type fakeSemantic struct {
	mu        sync.Mutex
	added     []string
	hits      []memory.Hit
	searchErr error
}

func (f *fakeSemantic) Add(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, text)
	return nil
}

func (f *fakeSemantic) Search(context.Context, string, string, int) ([]memory.Hit, error) {
	return f.hits, f.searchErr
}

func text(s string) step { return step{resp: &llm.Response{Text: s}} }

func toolCall(id, name string, args interface{}) step {
	raw, _ := json.Marshal(args)
	return step{resp: &llm.Response{ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: raw}}}}
}

type fixture struct {
	orch     *Orchestrator
	model    *scriptedModel
	semantic *fakeSemantic
	store    *store.SQLStore
	recorder *telemetry.Recorder
	now      time.Time
}

func newFixture(t *testing.T, steps ...step) *fixture {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "turns.db"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	st := store.NewSQLStore(db)
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		model:    &scriptedModel{steps: steps},
		semantic: &fakeSemantic{},
		store:    st,
		recorder: &telemetry.Recorder{},
		now:      time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
	}
	reg := tools.NewDomainRegistry(tools.Deps{Store: st, Analyzer: wellness.NewAnalyzer(st), DefaultLoc: time.UTC})
	f.orch = New(Options{
		Model:        f.model,
		Tools:        reg,
		Composer:     memory.NewComposer(f.semantic, st, 5),
		Semantic:     f.semantic,
		Records:      st,
		Persona:      persona.Default(),
		Sink:         f.recorder,
		RetryBackoff: time.Millisecond,
		TurnTimeout:  2 * time.Second,
		Now:          func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) turns(t *testing.T) int {
	t.Helper()
	recs, err := f.store.ListTurns(context.Background(), "u1", store.Range{})
	require.NoError(t, err)
	return len(recs)
}

func TestRunTurn_ExpenseThenSummary(t *testing.T) {
	f := newFixture(t,
		toolCall("c1", "track_expense", map[string]interface{}{"amount": 250, "category": "pharmacy", "description": "medicines"}),
		text("I've noted ₹250 for your medicines."),
	)
	ctx := context.Background()

	res, err := f.orch.RunTurn(ctx, TurnRequest{UserKey: "u1", Message: "I spent 250 on medicines"})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, "I've noted ₹250 for your medicines.", res.Text)
	assert.Equal(t, []tools.Domain{tools.DomainExpenses}, res.Actions)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, 1, f.turns(t))

	// The tool result fed back to the model carries the running total.
	second := f.model.requests[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Contains(t, last.Content, "Total today is ₹250.00")

	expenses, err := f.store.ListExpenses(ctx, "u1", store.Range{})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, 250.0, expenses[0].Amount)
}

func TestRunTurn_BootstrapsProfileAndSeedsMemories(t *testing.T) {
	f := newFixture(t, text("Good morning!"))

	_, err := f.orch.RunTurn(context.Background(), TurnRequest{UserKey: "u1", Message: "Hello"})
	require.NoError(t, err)

	p, err := f.store.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	tmpl := persona.Default()
	assert.Equal(t, tmpl.Profile.Name, p.Name)

	// Initial memories first, then the write-through of the exchange.
	n := len(tmpl.InitialMemories)
	require.Len(t, f.semantic.added, n+2)
	assert.Equal(t, tmpl.InitialMemories, f.semantic.added[:n])
	assert.Equal(t, "User said: Hello", f.semantic.added[n])

	assert.Contains(t, f.model.requests[0].System, "Name: "+tmpl.Profile.Name)
}

func TestRunTurn_SessionCarriesTranscript(t *testing.T) {
	f := newFixture(t, text("Hello there."))
	ctx := context.Background()

	first, err := f.orch.RunTurn(ctx, TurnRequest{UserKey: "u1", Message: "Hi"})
	require.NoError(t, err)
	_, err = f.orch.RunTurn(ctx, TurnRequest{UserKey: "u1", SessionID: first.SessionID, Message: "How are you?"})
	require.NoError(t, err)

	msgs := f.model.requests[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "Hi", msgs[0].Content)
	assert.Equal(t, "Hello there.", msgs[1].Content)
	assert.Equal(t, "How are you?", msgs[2].Content)
}

func TestRunTurn_RetriesOnce(t *testing.T) {
	f := newFixture(t, step{err: errors.New("503")}, text("Back with you."))

	res, err := f.orch.RunTurn(context.Background(), TurnRequest{UserKey: "u1", Message: "Hi"})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, "Back with you.", res.Text)
	assert.Equal(t, 2, f.model.calls())
}

func TestRunTurn_DegradesAfterSecondFailure(t *testing.T) {
	f := newFixture(t, step{err: errors.New("503")})

	res, err := f.orch.RunTurn(context.Background(), TurnRequest{UserKey: "u1", Message: "Hi"})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, DegradedReply, res.Text)
	assert.Equal(t, 2, f.model.calls())
	assert.Equal(t, 0, f.turns(t), "degraded turns are not persisted")

	kinds := f.recorder.Kinds()
	assert.Equal(t, telemetry.TurnEnd, kinds[len(kinds)-1])
	assert.Equal(t, "degraded", f.recorder.Events()[len(kinds)-1].Status)
}

func TestRunTurn_ToolCallCap(t *testing.T) {
	f := newFixture(t, toolCall("c", "get_daily_summary", map[string]interface{}{}))

	res, err := f.orch.RunTurn(context.Background(), TurnRequest{UserKey: "u1", Message: "Loop forever"})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, DegradedReply, res.Text)
	assert.Equal(t, 6, f.model.calls())
	assert.Equal(t, 0, f.turns(t))
}

func TestRunTurn_Timeout(t *testing.T) {
	f := newFixture(t, step{wait: true})
	f.orch.opts.TurnTimeout = 50 * time.Millisecond

	res, err := f.orch.RunTurn(context.Background(), TurnRequest{UserKey: "u1", Message: "Hi"})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, 1, f.model.calls(), "no retry once the budget is gone")
}

func TestRunTurn_SemanticFailureStillAnswers(t *testing.T) {
	f := newFixture(t, text("Hello!"))
	f.semantic.searchErr = errors.New("memory service down")

	res, err := f.orch.RunTurn(context.Background(), TurnRequest{UserKey: "u1", Message: "Hi"})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, 0, res.MemoriesUsed)
}

func TestRunTurn_MemoriesUsed(t *testing.T) {
	f := newFixture(t, text("Yes, Rahul!"))
	f.semantic.hits = []memory.Hit{
		{ID: "a", Text: "Grandson Rahul plays cricket", Score: 0.9},
		{ID: "b", Text: "Rahul lives in Mumbai", Score: 0.7},
	}

	res, err := f.orch.RunTurn(context.Background(), TurnRequest{UserKey: "u1", Message: "Remember Rahul?"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.MemoriesUsed)
	assert.Contains(t, f.model.requests[0].System, "Grandson Rahul plays cricket")
}

func TestRunTurn_EmptyReply(t *testing.T) {
	f := newFixture(t, text("   "))

	res, err := f.orch.RunTurn(context.Background(), TurnRequest{UserKey: "u1", Message: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, EmptyReply, res.Text)
	assert.False(t, res.Degraded)
}

func TestRunTurn_FailedToolIsNotAnAction(t *testing.T) {
	f := newFixture(t,
		toolCall("c1", "track_expense", map[string]interface{}{"amount": -3, "category": "pharmacy", "description": "x"}),
		text("That amount doesn't look right."),
	)

	res, err := f.orch.RunTurn(context.Background(), TurnRequest{UserKey: "u1", Message: "I spent -3"})
	require.NoError(t, err)
	assert.Empty(t, res.Actions)
	assert.NotNil(t, res.Actions)
}

func TestRunTurn_NoOpMutationIsNotAnAction(t *testing.T) {
	f := newFixture(t,
		toolCall("c1", "cancel_appointment", map[string]interface{}{"appointment_id": "ap1"}),
		text("That appointment was already cancelled."),
	)
	ctx := context.Background()
	require.NoError(t, f.store.AddAppointment(ctx, &models.Appointment{
		ID: "ap1", UserKey: "u1", Title: "Dentist", Type: models.AppointmentDentist,
		DateTime: f.now.Add(48 * time.Hour), Status: models.AppointmentScheduled, CreatedAt: f.now,
	}))
	_, err := f.store.CancelAppointment(ctx, "u1", "ap1")
	require.NoError(t, err)

	res, err := f.orch.RunTurn(ctx, TurnRequest{UserKey: "u1", Message: "Cancel my dentist visit"})
	require.NoError(t, err)
	assert.Empty(t, res.Actions)
}

func TestRunTurn_EmitsStageEvents(t *testing.T) {
	f := newFixture(t,
		toolCall("c1", "get_daily_summary", map[string]interface{}{}),
		text("Here's your day."),
	)

	_, err := f.orch.RunTurn(context.Background(), TurnRequest{UserKey: "u1", Message: "How was my day?"})
	require.NoError(t, err)
	assert.Equal(t, []telemetry.EventKind{
		telemetry.TurnStart,
		telemetry.ModelCallStart, telemetry.ModelCallEnd,
		telemetry.ToolCallStart, telemetry.ToolCallEnd,
		telemetry.ModelCallStart, telemetry.ModelCallEnd,
		telemetry.TurnEnd,
	}, f.recorder.Kinds())
}

func TestRunTurn_InvalidRequest(t *testing.T) {
	f := newFixture(t, text("unused"))
	for _, req := range []TurnRequest{{UserKey: "u1"}, {Message: "hi"}, {UserKey: " ", Message: " "}} {
		_, err := f.orch.RunTurn(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Equal(t, 0, f.model.calls())
}
