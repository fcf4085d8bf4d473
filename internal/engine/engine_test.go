package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewtalk-be/internal/entity"
	"crewtalk-be/internal/repository/memory"
	"crewtalk-be/internal/repository/specification"
	"crewtalk-be/pkg/llm"
)

// --- fakes -----------------------------------------------------------------

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

// fakeProvider streams a canned reply split into word fragments. failFirst
// makes the first N calls fail before producing text; errAfter makes every
// stream emit that many fragments and then fail; blockAfterFirst makes
// every stream emit one fragment and then hang until cancellation.
type fakeProvider struct {
	mu              sync.Mutex
	calls           int
	reply           string
	failFirst       int
	errAfter        int
	blockAfterFirst bool
	delay           time.Duration
}

func (p *fakeProvider) take() (call int, fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.calls, p.calls <= p.failFirst
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) ChatStream(ctx context.Context, _ []llm.Message, _ ...llm.Option) (<-chan string, <-chan error) {
	out := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)

		call, fail := p.take()
		if fail {
			errs <- errors.New("model unavailable")
			return
		}

		fragments := strings.SplitAfter(fmt.Sprintf("%s (turn %d)", p.reply, call), " ")
		for i, fragment := range fragments {
			if p.delay > 0 {
				time.Sleep(p.delay)
			}
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case out <- fragment:
			}
			if p.errAfter > 0 && i+1 >= p.errAfter {
				errs <- errors.New("stream interrupted")
				return
			}
			if p.blockAfterFirst && i == 0 {
				<-ctx.Done()
				errs <- ctx.Err()
				return
			}
		}
	}()
	return out, errs
}

func (p *fakeProvider) Chat(ctx context.Context, _ []llm.Message, _ ...llm.Option) (string, error) {
	return p.reply, nil
}

func (p *fakeProvider) Generate(ctx context.Context, _ string, _ ...llm.Option) (string, error) {
	return p.reply, nil
}

type recorderHub struct {
	mu     sync.Mutex
	events []StreamEvent
	closed []uuid.UUID
}

func (h *recorderHub) Publish(_ uuid.UUID, event StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recorderHub) CloseSession(sessionId uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = append(h.closed, sessionId)
}

func (h *recorderHub) snapshot() []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]StreamEvent, len(h.events))
	copy(out, h.events)
	return out
}

func (h *recorderHub) countKind(kind string) int {
	n := 0
	for _, event := range h.snapshot() {
		if event.Event == kind {
			n++
		}
	}
	return n
}

func (h *recorderHub) closedSessions() []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]uuid.UUID, len(h.closed))
	copy(out, h.closed)
	return out
}

type memSessionRepo struct {
	mu      sync.Mutex
	session entity.Session
}

func (r *memSessionRepo) Create(_ context.Context, s *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = *s
	return nil
}

func (r *memSessionRepo) Update(_ context.Context, s *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = *s
	return nil
}

func (r *memSessionRepo) FindOne(_ context.Context, _ ...specification.Specification) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.session
	return &s, nil
}

func (r *memSessionRepo) FindAll(_ context.Context, _ ...specification.Specification) ([]*entity.Session, error) {
	s, _ := r.FindOne(context.Background())
	return []*entity.Session{s}, nil
}

func (r *memSessionRepo) Count(_ context.Context, _ ...specification.Specification) (int64, error) {
	return 1, nil
}

type memAgentRepo struct {
	mu     sync.Mutex
	agents []entity.Agent
}

func (r *memAgentRepo) Create(_ context.Context, a *entity.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = append(r.agents, *a)
	return nil
}

func (r *memAgentRepo) Update(_ context.Context, a *entity.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.agents {
		if r.agents[i].Id == a.Id {
			r.agents[i] = *a
		}
	}
	return nil
}

func (r *memAgentRepo) FindOne(_ context.Context, _ ...specification.Specification) (*entity.Agent, error) {
	return nil, nil
}

func (r *memAgentRepo) FindAll(_ context.Context, _ ...specification.Specification) ([]*entity.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.Agent, 0, len(r.agents))
	for i := range r.agents {
		a := r.agents[i]
		out = append(out, &a)
	}
	return out, nil
}

func (r *memAgentRepo) Count(_ context.Context, _ ...specification.Specification) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.agents)), nil
}

type memTurnRepo struct {
	mu     sync.Mutex
	turns  []entity.Turn
	failOn int // 1-based Create call that fails once
	calls  int
}

func (r *memTurnRepo) Create(_ context.Context, t *entity.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failOn > 0 && r.calls == r.failOn {
		return errors.New("write refused")
	}
	t.Id = uuid.New()
	t.CreatedAt = time.Now()
	r.turns = append(r.turns, *t)
	return nil
}

func (r *memTurnRepo) FindAll(_ context.Context, _ ...specification.Specification) ([]*entity.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.Turn, 0, len(r.turns))
	for i := range r.turns {
		t := r.turns[i]
		out = append(out, &t)
	}
	return out, nil
}

func (r *memTurnRepo) Count(_ context.Context, _ ...specification.Specification) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.turns)), nil
}

func (r *memTurnRepo) RecentBySession(_ context.Context, sessionId uuid.UUID, limit int) ([]*entity.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []entity.Turn
	for _, t := range r.turns {
		if t.SessionId == sessionId {
			matched = append(matched, t)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	out := make([]*entity.Turn, 0, len(matched))
	for i := range matched {
		out = append(out, &matched[i])
	}
	return out, nil
}

func (r *memTurnRepo) RecentByAgent(_ context.Context, sessionId, agentId uuid.UUID, limit int) ([]*entity.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []entity.Turn
	for _, t := range r.turns {
		if t.SessionId == sessionId && t.AgentId != nil && *t.AgentId == agentId {
			matched = append(matched, t)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	out := make([]*entity.Turn, 0, len(matched))
	for i := range matched {
		out = append(out, &matched[i])
	}
	return out, nil
}

func (r *memTurnRepo) indexes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.turns))
	for _, t := range r.turns {
		out = append(out, t.TurnIndex)
	}
	return out
}

// --- harness ---------------------------------------------------------------

type harness struct {
	engine   *Engine
	session  *entity.Session
	hub      *recorderHub
	turns    *memTurnRepo
	agents   *memAgentRepo
	provider *fakeProvider
}

func newHarness(t *testing.T, provider *fakeProvider, roster []entity.Agent) *harness {
	t.Helper()

	session := &entity.Session{
		Id:               uuid.New(),
		Title:            "growth review",
		ProblemStatement: "Increase conversion",
		Strategy:         "double_diamond",
		TimeLimitSec:     1200,
		Status:           entity.StatusIdle,
	}

	agentRepo := &memAgentRepo{}
	for i := range roster {
		roster[i].SessionId = session.Id
		require.NoError(t, agentRepo.Create(context.Background(), &roster[i]))
	}

	hub := &recorderHub{}
	turnRepo := &memTurnRepo{}
	deps := Deps{
		SessionRepo: &memSessionRepo{session: *session},
		AgentRepo:   agentRepo,
		TurnRepo:    turnRepo,
		Memory:      memory.NewShortTermMemory(),
		Provider:    provider,
		Broadcaster: hub,
		Logger:      nopLogger{},
	}

	h := &harness{
		engine:   NewEngine(session, "", deps),
		session:  session,
		hub:      hub,
		turns:    turnRepo,
		agents:   agentRepo,
		provider: provider,
	}
	t.Cleanup(func() {
		_ = h.engine.Stop(context.Background())
	})
	return h
}

func defaultRoster() []entity.Agent {
	return []entity.Agent{
		{Id: uuid.New(), Name: "Mia", Role: entity.RoleModerator, IsActive: true},
		{Id: uuid.New(), Name: "Ana", Role: entity.RoleParticipant, IsActive: true},
		{Id: uuid.New(), Name: "Ben", Role: entity.RoleParticipant, IsActive: true},
	}
}

// --- tests -----------------------------------------------------------------

func TestStartRequiresParticipants(t *testing.T) {
	provider := &fakeProvider{reply: "hello"}
	h := newHarness(t, provider, []entity.Agent{
		{Id: uuid.New(), Name: "Mia", Role: entity.RoleModerator, IsActive: true},
	})

	err := h.engine.Start(context.Background())
	var precondition *PreconditionError
	require.ErrorAs(t, err, &precondition)

	status, _, _, _ := h.engine.Snapshot()
	assert.Equal(t, entity.StatusIdle, status)
}

func TestStartRequiresIdle(t *testing.T) {
	provider := &fakeProvider{reply: "hello", delay: time.Millisecond}
	h := newHarness(t, provider, defaultRoster())

	require.NoError(t, h.engine.Start(context.Background()))

	err := h.engine.Start(context.Background())
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "start", invalid.Command)
}

func TestTurnIndicesAreGapFree(t *testing.T) {
	provider := &fakeProvider{reply: "a solid point", delay: time.Millisecond}
	h := newHarness(t, provider, defaultRoster())
	// One durable write is refused mid-run; the index must not be consumed.
	h.turns.failOn = 3

	require.NoError(t, h.engine.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(h.turns.indexes()) >= 6
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, h.engine.Stop(context.Background()))

	indexes := h.turns.indexes()
	for i, index := range indexes {
		assert.Equal(t, i+1, index)
	}
	assert.GreaterOrEqual(t, h.hub.countKind(EventError), 1)
}

func TestRotationMatchesRoster(t *testing.T) {
	provider := &fakeProvider{reply: "ok", delay: time.Millisecond}
	roster := defaultRoster()
	h := newHarness(t, provider, roster)

	require.NoError(t, h.engine.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(h.turns.indexes()) >= 6
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, h.engine.Stop(context.Background()))

	turns, err := h.turns.FindAll(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(turns), 6)

	byId := map[uuid.UUID]string{}
	for _, agent := range roster {
		byId[agent.Id] = agent.Name
	}
	var names []string
	for _, turn := range turns[:6] {
		names = append(names, byId[*turn.AgentId])
	}
	assert.Equal(t, []string{"Mia", "Ana", "Ben", "Mia", "Ana", "Ben"}, names)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	provider := &fakeProvider{reply: "thinking", blockAfterFirst: true}
	h := newHarness(t, provider, defaultRoster())

	require.NoError(t, h.engine.Start(context.Background()))
	_, phaseBefore, deadlineBefore, indexBefore := h.engine.Snapshot()
	require.NotNil(t, deadlineBefore)
	remainingBefore := time.Until(*deadlineBefore)

	require.NoError(t, h.engine.Pause(context.Background()))
	status, _, _, _ := h.engine.Snapshot()
	assert.Equal(t, entity.StatusPaused, status)

	require.NoError(t, h.engine.Resume(context.Background()))
	status, phaseAfter, deadlineAfter, indexAfter := h.engine.Snapshot()
	require.NotNil(t, deadlineAfter)

	assert.Equal(t, entity.StatusRunning, status)
	assert.Equal(t, phaseBefore, phaseAfter)
	assert.Equal(t, indexBefore, indexAfter)
	assert.InDelta(t, remainingBefore.Seconds(), time.Until(*deadlineAfter).Seconds(), 0.5)
}

func TestPauseOnlyFromRunning(t *testing.T) {
	provider := &fakeProvider{reply: "hello"}
	h := newHarness(t, provider, defaultRoster())

	var invalid *InvalidTransitionError
	require.ErrorAs(t, h.engine.Pause(context.Background()), &invalid)
	require.ErrorAs(t, h.engine.Resume(context.Background()), &invalid)
	require.ErrorAs(t, h.engine.Advance(context.Background()), &invalid)
}

func TestStopMidStreamDiscardsPartialTurn(t *testing.T) {
	provider := &fakeProvider{reply: "a very long reply", blockAfterFirst: true}
	h := newHarness(t, provider, defaultRoster())

	require.NoError(t, h.engine.Start(context.Background()))
	require.Eventually(t, func() bool {
		return h.hub.countKind(EventTokenDelta) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.engine.Stop(context.Background()))

	assert.Zero(t, h.hub.countKind(EventMessageCreated))
	assert.Empty(t, h.turns.indexes())

	events := h.hub.snapshot()
	var lastStatus *StatusPayload
	for i := range events {
		if events[i].Event == EventSessionStatus {
			payload := events[i].Payload.(StatusPayload)
			lastStatus = &payload
		}
	}
	require.NotNil(t, lastStatus)
	assert.Equal(t, string(entity.StatusStopped), lastStatus.Status)
	assert.Contains(t, h.hub.closedSessions(), h.session.Id)

	var invalid *InvalidTransitionError
	require.ErrorAs(t, h.engine.Stop(context.Background()), &invalid)
}

func TestProviderFailureRetriesThenSkips(t *testing.T) {
	provider := &fakeProvider{reply: "recovered", delay: time.Millisecond, failFirst: 2}
	h := newHarness(t, provider, defaultRoster())

	require.NoError(t, h.engine.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(h.turns.indexes()) >= 2
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, h.engine.Stop(context.Background()))

	// The opening speaker failed twice and was skipped; turns still start
	// at index 1 and the failures surfaced as session-scoped errors.
	indexes := h.turns.indexes()
	assert.Equal(t, 1, indexes[0])
	assert.GreaterOrEqual(t, h.hub.countKind(EventError), 2)
	assert.GreaterOrEqual(t, provider.callCount(), 4)
}

func TestMidStreamFailureDiscardsPartialDraft(t *testing.T) {
	provider := &fakeProvider{reply: "a long partial answer", delay: time.Millisecond, errAfter: 2}
	h := newHarness(t, provider, defaultRoster())

	require.NoError(t, h.engine.Start(context.Background()))
	require.Eventually(t, func() bool {
		return h.hub.countKind(EventError) >= 2
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, h.engine.Stop(context.Background()))

	// Fragments went out as token.delta before the stream broke, but a turn
	// from a broken stream is never persisted, indexed, or announced.
	assert.GreaterOrEqual(t, h.hub.countKind(EventTokenDelta), 1)
	assert.Empty(t, h.turns.indexes())
	assert.Zero(t, h.hub.countKind(EventMessageCreated))
}

func TestRehydratedEngineRejectsLoopCommands(t *testing.T) {
	provider := &fakeProvider{reply: "ok"}
	hub := &recorderHub{}
	session := &entity.Session{
		Id:               uuid.New(),
		Title:            "restored after restart",
		ProblemStatement: "Increase conversion",
		Strategy:         "double_diamond",
		TimeLimitSec:     1200,
		Phase:            "develop",
		Status:           entity.StatusRunning,
	}
	eng := NewEngine(session, "carried notes", Deps{
		SessionRepo: &memSessionRepo{session: *session},
		AgentRepo:   &memAgentRepo{},
		TurnRepo:    &memTurnRepo{},
		Memory:      memory.NewShortTermMemory(),
		Provider:    provider,
		Broadcaster: hub,
		Logger:      nopLogger{},
	})

	// The durable row says running, but this engine never started a run
	// loop; scheduler-backed commands must fail cleanly instead of crashing.
	var invalid *InvalidTransitionError
	var err error
	require.NotPanics(t, func() { err = eng.Pause(context.Background()) })
	require.ErrorAs(t, err, &invalid)
	require.NotPanics(t, func() { err = eng.Advance(context.Background()) })
	require.ErrorAs(t, err, &invalid)

	session.Status = entity.StatusPaused
	require.NotPanics(t, func() { err = eng.Resume(context.Background()) })
	require.ErrorAs(t, err, &invalid)

	// Stop stays available so the orphaned session can be finalized.
	require.NoError(t, eng.Stop(context.Background()))
	status, _, _, _ := eng.Snapshot()
	assert.Equal(t, entity.StatusStopped, status)
}

func TestAdvanceEmitsSummaryThenPhaseChange(t *testing.T) {
	provider := &fakeProvider{reply: "noted", delay: time.Millisecond}
	h := newHarness(t, provider, defaultRoster())

	require.NoError(t, h.engine.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(h.turns.indexes()) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.engine.Advance(context.Background()))
	require.Eventually(t, func() bool {
		return h.hub.countKind(EventPhaseChanged) >= 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, h.engine.Stop(context.Background()))

	events := h.hub.snapshot()
	changeAt := -1
	for i := range events {
		if events[i].Event == EventPhaseChanged {
			changeAt = i
			break
		}
	}
	require.GreaterOrEqual(t, changeAt, 1)

	payload := events[changeAt].Payload.(PhaseChangedPayload)
	assert.Equal(t, "discover", payload.From)
	assert.Equal(t, "define", payload.To)

	// The closing summary's message.created precedes the transition and no
	// token.delta of the new phase sneaks in between.
	sawSummary := false
	for i := changeAt - 1; i >= 0; i-- {
		if events[i].Event == EventTokenDelta {
			break
		}
		if events[i].Event == EventMessageCreated {
			sawSummary = true
			break
		}
	}
	assert.True(t, sawSummary)
}

func TestNotetakerTurnUpdatesNotepad(t *testing.T) {
	provider := &fakeProvider{reply: "consolidated notes", delay: time.Millisecond}
	roster := append(defaultRoster(), entity.Agent{
		Id: uuid.New(), Name: "Nora", Role: entity.RoleNotetaker, IsActive: true,
	})
	h := newHarness(t, provider, roster)

	require.NoError(t, h.engine.Start(context.Background()))
	require.Eventually(t, func() bool {
		return h.hub.countKind(EventNotepadUpdated) >= 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, h.engine.Stop(context.Background()))

	content, updatedBy := h.engine.Notepad()
	assert.Contains(t, content, "consolidated notes")
	assert.Equal(t, "Nora", updatedBy)
}

func TestSetNotepadBroadcasts(t *testing.T) {
	provider := &fakeProvider{reply: "hello"}
	h := newHarness(t, provider, defaultRoster())

	require.NoError(t, h.engine.SetNotepad(context.Background(), "kickoff agenda", "facilitator"))

	content, updatedBy := h.engine.Notepad()
	assert.Equal(t, "kickoff agenda", content)
	assert.Equal(t, "facilitator", updatedBy)
	assert.Equal(t, 1, h.hub.countKind(EventNotepadUpdated))
}

func TestPromptRequestsExplicitConfidence(t *testing.T) {
	provider := &fakeProvider{reply: "ok"}
	h := newHarness(t, provider, defaultRoster())

	roster, err := h.agents.FindAll(context.Background())
	require.NoError(t, err)

	history := h.engine.buildHistory(Decision{
		Agent: roster[0],
		Kind:  KindParticipant,
		Phase: "discover",
	})
	require.NotEmpty(t, history)
	assert.Equal(t, "system", history[0].Role)
	// Speakers are told to self-report, which feeds the explicit-confidence
	// blend in scoring.
	assert.Contains(t, history[0].Content, "Confidence: <value between 0 and 1>")
}

func TestRegistry(t *testing.T) {
	provider := &fakeProvider{reply: "hello"}
	h := newHarness(t, provider, defaultRoster())

	registry := NewRegistry()
	registry.Put(h.engine)

	got, ok := registry.Get(h.session.Id)
	require.True(t, ok)
	assert.Same(t, h.engine, got)

	registry.Remove(h.session.Id)
	_, ok = registry.Get(h.session.Id)
	assert.False(t, ok)
}
