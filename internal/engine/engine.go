package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crewtalk-be/internal/engine/strategy"
	"crewtalk-be/internal/entity"
	"crewtalk-be/internal/pkg/logger"
	"crewtalk-be/internal/repository/contract"
	"crewtalk-be/internal/repository/memory"
	"crewtalk-be/internal/repository/specification"
	"crewtalk-be/pkg/events"
	"crewtalk-be/pkg/llm"
)

const finalizeTimeout = 5 * time.Second

// AuditPublisher receives lifecycle milestone events. Nil-safe from the
// engine's side: a nil publisher disables auditing.
type AuditPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// NotepadCheckpointer receives notepad content for durable checkpointing.
type NotepadCheckpointer interface {
	Checkpoint(sessionId uuid.UUID, content, updatedBy string) error
}

// Deps carries the engine's collaborators.
type Deps struct {
	SessionRepo contract.SessionRepository
	AgentRepo   contract.AgentRepository
	TurnRepo    contract.TurnRepository
	Memory      *memory.ShortTermMemory
	Provider    llm.LLMProvider
	Broadcaster Broadcaster
	Audit       AuditPublisher
	Checkpoint  NotepadCheckpointer
	Logger      logger.ILogger
}

// Engine drives one session: it owns the session's lifecycle state, the
// turn scheduler, the live notepad, and the single run loop goroutine that
// produces turns. All lifecycle commands and the run loop synchronize on one
// mutex, so within a session there is never more than one turn in flight and
// never a write race on the turn index, memory windows, or notepad.
type Engine struct {
	deps    Deps
	session *entity.Session
	sched   *Scheduler

	mu        sync.Mutex
	notepad   string
	notepadBy string

	// gate is closed while the session is running; pausing swaps in an
	// open channel the run loop blocks on.
	gate    chan struct{}
	cancel  context.CancelFunc
	runDone chan struct{}
}

// NewEngine wraps an already-persisted session. notepad seeds the live
// notepad content, usually from the latest durable snapshot.
func NewEngine(session *entity.Session, notepad string, deps Deps) *Engine {
	return &Engine{
		deps:    deps,
		session: session,
		notepad: notepad,
	}
}

func (e *Engine) SessionId() uuid.UUID {
	return e.session.Id
}

// Snapshot returns the live lifecycle view used by the snapshot read and
// status events.
func (e *Engine) Snapshot() (status entity.SessionStatus, phase string, deadline *time.Time, turnIndex int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Status, e.session.Phase, e.session.Deadline, e.session.TurnIndex
}

// Notepad returns the live notepad content and its last editor.
func (e *Engine) Notepad() (content, updatedBy string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notepad, e.notepadBy
}

// Start moves the session from idle to running, spawns the run loop, and
// rehydrates each agent's short-term memory from its persisted turns.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status != entity.StatusIdle {
		return &InvalidTransitionError{Command: "start", Status: string(e.session.Status)}
	}

	roster, err := e.roster(ctx)
	if err != nil {
		return &PersistenceError{Op: "load roster", Err: err}
	}
	agents := rosterValues(roster)
	if firstActiveModerator(agents) == nil {
		return &PreconditionError{Reason: "at least one active moderator is required"}
	}
	if !hasActiveParticipant(agents) {
		return &PreconditionError{Reason: "at least one active participant is required"}
	}

	now := time.Now()
	e.sched = NewScheduler(strategy.Phases(e.session.TimeLimitSec, e.session.PhaseWeights))
	e.sched.Start(now)

	prev := *e.session
	deadline := e.sched.Deadline()
	e.session.Status = entity.StatusRunning
	e.session.Phase = e.sched.Phase()
	e.session.Deadline = &deadline
	e.session.StartedAt = &now
	if err := e.deps.SessionRepo.Update(ctx, e.session); err != nil {
		*e.session = prev
		return &PersistenceError{Op: "session update", Err: err}
	}

	for i := range roster {
		e.rehydrateMemory(ctx, roster[i].Id)
	}

	e.gate = closedGate()
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.runDone = make(chan struct{})
	go e.run(runCtx)

	e.publishStatus()
	e.audit(events.TypeSessionStarted, map[string]interface{}{
		"session_id": e.session.Id.String(),
		"phase":      e.session.Phase,
	})
	e.deps.Logger.Info("engine", "session started", map[string]interface{}{
		"session_id": e.session.Id.String(),
		"phase":      e.session.Phase,
	})
	return nil
}

// Pause freezes the deadline clock. A turn already streaming finishes
// first; the run loop honors the pause at the next turn boundary.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A rehydrated engine can carry a running status from its durable row
	// while its scheduler and run loop died with the old process; such a
	// session only accepts stop.
	if e.session.Status != entity.StatusRunning || e.sched == nil {
		return &InvalidTransitionError{Command: "pause", Status: string(e.session.Status)}
	}

	e.sched.Pause(time.Now())
	prev := *e.session
	e.session.Status = entity.StatusPaused
	if err := e.deps.SessionRepo.Update(ctx, e.session); err != nil {
		*e.session = prev
		return &PersistenceError{Op: "session update", Err: err}
	}
	e.gate = make(chan struct{})

	e.publishStatus()
	return nil
}

// Resume re-bases the phase deadline from the remaining time captured at
// pause and reopens the run loop's gate.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status != entity.StatusPaused || e.sched == nil {
		return &InvalidTransitionError{Command: "resume", Status: string(e.session.Status)}
	}

	e.sched.Resume(time.Now())
	prev := *e.session
	deadline := e.sched.Deadline()
	e.session.Status = entity.StatusRunning
	e.session.Deadline = &deadline
	if err := e.deps.SessionRepo.Update(ctx, e.session); err != nil {
		*e.session = prev
		return &PersistenceError{Op: "session update", Err: err}
	}
	close(e.gate)

	e.publishStatus()
	return nil
}

// Advance records a forced phase transition. It takes effect at the next
// turn-selection decision: the moderator summarizes the closing phase, then
// the transition is broadcast before the new phase's first turn.
func (e *Engine) Advance(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if (e.session.Status != entity.StatusRunning && e.session.Status != entity.StatusPaused) || e.sched == nil {
		return &InvalidTransitionError{Command: "advance", Status: string(e.session.Status)}
	}
	e.sched.RequestAdvance()
	return nil
}

// Stop cancels any in-flight generation, waits for the run loop to drain,
// finalizes the session as stopped, and closes its broadcast subscriptions.
// Partial text from a cut-short turn is discarded.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.session.Status.Terminal() {
		e.mu.Unlock()
		return &InvalidTransitionError{Command: "stop", Status: string(e.session.Status)}
	}
	cancel := e.cancel
	done := e.runDone
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	e.mu.Lock()
	if e.session.Status.Terminal() {
		// The run loop completed the session while we were waiting.
		e.mu.Unlock()
		return &InvalidTransitionError{Command: "stop", Status: string(e.session.Status)}
	}
	now := time.Now()
	prev := *e.session
	e.session.Status = entity.StatusStopped
	e.session.EndedAt = &now
	if err := e.deps.SessionRepo.Update(ctx, e.session); err != nil {
		*e.session = prev
		e.mu.Unlock()
		return &PersistenceError{Op: "session update", Err: err}
	}
	e.publishStatus()
	e.mu.Unlock()

	e.audit(events.TypeSessionStopped, map[string]interface{}{
		"session_id": e.session.Id.String(),
	})
	e.deps.Broadcaster.CloseSession(e.session.Id)
	e.deps.Logger.Info("engine", "session stopped", map[string]interface{}{
		"session_id": e.session.Id.String(),
	})
	return nil
}

// SetNotepad replaces the live notepad content. Every mutation is
// broadcast and handed to the checkpointer for durable write; the engine's
// copy stays the authoritative live version.
func (e *Engine) SetNotepad(ctx context.Context, content, updatedBy string) error {
	e.mu.Lock()
	if e.session.Status.Terminal() {
		e.mu.Unlock()
		return &InvalidTransitionError{Command: "set notepad", Status: string(e.session.Status)}
	}
	e.notepad = content
	e.notepadBy = updatedBy
	e.deps.Broadcaster.Publish(e.session.Id, newEvent(e.session.Id, EventNotepadUpdated, NotepadUpdatedPayload{
		Content:   content,
		UpdatedBy: updatedBy,
	}))
	e.mu.Unlock()

	if e.deps.Checkpoint != nil {
		if err := e.deps.Checkpoint.Checkpoint(e.session.Id, content, updatedBy); err != nil {
			e.deps.Logger.Warn("engine", "notepad checkpoint failed", map[string]interface{}{
				"session_id": e.session.Id.String(),
				"error":      err.Error(),
			})
		}
	}
	return nil
}

// run is the session's single sequential unit of work.
func (e *Engine) run(ctx context.Context) {
	defer close(e.runDone)

	for {
		if !e.awaitRunning(ctx) {
			return
		}

		roster, err := e.roster(ctx)
		if err != nil {
			e.reportError("persistence", err)
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}

		e.mu.Lock()
		decision := e.sched.Next(time.Now(), rosterValues(roster))
		e.mu.Unlock()

		if decision.Done {
			e.complete()
			return
		}
		if decision.PhaseChange != nil {
			e.applyPhaseChange(*decision.PhaseChange)
		}
		if decision.Agent == nil {
			// Summary slot with no active moderator; the phase closes
			// without a summary turn.
			continue
		}

		err = e.executeTurn(ctx, decision)
		var provErr *ProviderError
		if errors.As(err, &provErr) {
			e.reportError("provider", provErr)
			// One retry of the same speaker, then skip for this cycle.
			if err = e.executeTurn(ctx, decision); err != nil && !errors.Is(err, context.Canceled) {
				e.reportError("provider", err)
				e.deps.Logger.Warn("engine", "speaker skipped after retry", map[string]interface{}{
					"session_id": e.session.Id.String(),
					"agent":      decision.Agent.Name,
				})
			}
			continue
		}
		var persistErr *PersistenceError
		if errors.As(err, &persistErr) {
			// Turn index was not consumed; later turns can still succeed.
			e.reportError("persistence", persistErr)
			continue
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			e.reportError("session", err)
		}
	}
}

// executeTurn streams one turn for the selected agent: relay every fragment
// as token.delta, then score, persist, remember, and announce the completed
// turn. Cancellation mid-stream discards the partial text.
func (e *Engine) executeTurn(ctx context.Context, decision Decision) error {
	history := e.buildHistory(decision)

	opts := []llm.Option{llm.WithTemperature(0.7)}
	if decision.Agent.ModelHint != "" {
		opts = append(opts, llm.WithModel(decision.Agent.ModelHint))
	}

	fragments, errs := e.deps.Provider.ChatStream(ctx, history, opts...)

	var draft strings.Builder
	for fragment := range fragments {
		draft.WriteString(fragment)
		e.deps.Broadcaster.Publish(e.session.Id, newEvent(e.session.Id, EventTokenDelta, TokenDeltaPayload{
			AgentId:   decision.Agent.Id,
			TextDelta: fragment,
		}))
	}
	streamErr := <-errs

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if streamErr != nil {
		// A stream that errored did not finish its turn; whatever fragments
		// already arrived are discarded, never persisted or remembered.
		return &ProviderError{AgentName: decision.Agent.Name, Err: streamErr}
	}
	if draft.Len() == 0 {
		e.deps.Logger.Warn("engine", "provider produced no text", map[string]interface{}{
			"session_id": e.session.Id.String(),
			"agent":      decision.Agent.Name,
		})
		return nil
	}

	text := draft.String()
	turn := &entity.Turn{
		SessionId:  e.session.Id,
		AgentId:    &decision.Agent.Id,
		Phase:      decision.Phase,
		TurnIndex:  e.nextTurnIndex(),
		Text:       text,
		Sentiment:  ScoreSentiment(text),
		Confidence: ScoreConfidence(text),
	}
	if err := e.deps.TurnRepo.Create(ctx, turn); err != nil {
		return &PersistenceError{Op: "turn create", Err: err}
	}

	// The index is committed only after the durable write succeeded, which
	// keeps the per-session sequence gap free.
	e.mu.Lock()
	e.session.TurnIndex = turn.TurnIndex
	if err := e.deps.SessionRepo.Update(ctx, e.session); err != nil {
		e.deps.Logger.Warn("engine", "session turn index update failed", map[string]interface{}{
			"session_id": e.session.Id.String(),
			"error":      err.Error(),
		})
	}
	e.mu.Unlock()

	e.deps.Memory.Append(e.session.Id, decision.Agent.Id, text)

	e.deps.Broadcaster.Publish(e.session.Id, newEvent(e.session.Id, EventMessageCreated, MessageCreatedPayload{
		Id:         turn.Id,
		AgentId:    turn.AgentId,
		Phase:      turn.Phase,
		TurnIndex:  turn.TurnIndex,
		Text:       turn.Text,
		Sentiment:  turn.Sentiment,
		Confidence: turn.Confidence,
		CreatedAt:  turn.CreatedAt,
	}))
	e.audit(events.TypeTurnCreated, map[string]interface{}{
		"session_id": e.session.Id.String(),
		"agent_id":   decision.Agent.Id.String(),
		"phase":      turn.Phase,
		"turn_index": turn.TurnIndex,
	})

	if decision.Kind == KindNotetaker {
		// The notetaker maintains the shared notepad; its turn text becomes
		// the new consolidated note.
		if err := e.SetNotepad(ctx, text, decision.Agent.Name); err != nil {
			e.deps.Logger.Warn("engine", "notetaker notepad update rejected", map[string]interface{}{
				"session_id": e.session.Id.String(),
				"error":      err.Error(),
			})
		}
	}
	return nil
}

// buildHistory assembles the provider prompt: the agent persona plus phase
// guidance as the system message, then the problem statement, notepad, and
// the agent's own memory window oldest-to-newest.
func (e *Engine) buildHistory(decision Decision) []llm.Message {
	agent := decision.Agent

	var system strings.Builder
	fmt.Fprintf(&system, "You are %s, the %s of a structured group discussion.", agent.Name, agent.Role)
	if agent.Trait != "" {
		fmt.Fprintf(&system, " Persona: %s.", agent.Trait)
	}
	system.WriteString("\n\n")
	system.WriteString(strategy.PhasePrompt(decision.Phase))
	system.WriteString("\n\n")
	system.WriteString(directiveFor(decision.Kind, decision.Phase))
	system.WriteString("\n\nState your confidence as \"Confidence: <value between 0 and 1>\" at the end of your reply.")

	notepad, _ := e.Notepad()
	var user strings.Builder
	fmt.Fprintf(&user, "Problem statement: %s\n", e.session.ProblemStatement)
	if notepad != "" {
		fmt.Fprintf(&user, "\nShared notepad:\n%s\n", notepad)
	}

	history := []llm.Message{{Role: "system", Content: system.String()}}
	for _, text := range e.deps.Memory.Recent(e.session.Id, agent.Id) {
		history = append(history, llm.Message{Role: "assistant", Content: text})
	}
	history = append(history, llm.Message{Role: "user", Content: user.String()})
	return history
}

func directiveFor(kind TurnKind, phase string) string {
	switch kind {
	case KindOpening:
		return fmt.Sprintf("Open the %s phase: frame its objective for the group and invite focused contributions.", phase)
	case KindSummary:
		return fmt.Sprintf("The %s phase is closing. Summarize its discussion: key findings, decisions made, and open points to carry forward.", phase)
	case KindNotetaker:
		return "Maintain the shared notepad: produce an updated, consolidated note capturing the discussion so far. Respond with the full note text only."
	default:
		return "Contribute your perspective on the discussion so far. Be concrete and build on prior points."
	}
}

// applyPhaseChange persists the new phase and broadcasts it. Ordering: the
// closing turn's message.created has already gone out, and the new phase's
// first token.delta has not yet been produced.
func (e *Engine) applyPhaseChange(change PhaseChange) {
	ctx, cancelWrite := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancelWrite()

	e.mu.Lock()
	deadline := change.Deadline
	e.session.Phase = change.To
	e.session.Deadline = &deadline
	if err := e.deps.SessionRepo.Update(ctx, e.session); err != nil {
		e.deps.Logger.Warn("engine", "phase update failed", map[string]interface{}{
			"session_id": e.session.Id.String(),
			"error":      err.Error(),
		})
	}
	e.deps.Broadcaster.Publish(e.session.Id, newEvent(e.session.Id, EventPhaseChanged, PhaseChangedPayload{
		From:     change.From,
		To:       change.To,
		Deadline: change.Deadline,
	}))
	e.mu.Unlock()

	e.audit(events.TypePhaseAdvanced, map[string]interface{}{
		"session_id": e.session.Id.String(),
		"from":       change.From,
		"to":         change.To,
	})
}

// complete finalizes the session after the last phase closed.
func (e *Engine) complete() {
	ctx, cancelWrite := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancelWrite()

	e.mu.Lock()
	now := time.Now()
	e.session.Status = entity.StatusCompleted
	e.session.EndedAt = &now
	e.session.Deadline = nil
	if err := e.deps.SessionRepo.Update(ctx, e.session); err != nil {
		e.deps.Logger.Error("engine", "session completion update failed", map[string]interface{}{
			"session_id": e.session.Id.String(),
			"error":      err.Error(),
		})
	}
	e.publishStatus()
	e.mu.Unlock()

	e.audit(events.TypeSessionCompleted, map[string]interface{}{
		"session_id": e.session.Id.String(),
	})
	e.deps.Broadcaster.CloseSession(e.session.Id)
	e.deps.Logger.Info("engine", "session completed", map[string]interface{}{
		"session_id": e.session.Id.String(),
	})
}

// awaitRunning blocks until the session is running, returning false when the
// run loop should exit instead.
func (e *Engine) awaitRunning(ctx context.Context) bool {
	for {
		e.mu.Lock()
		status := e.session.Status
		gate := e.gate
		e.mu.Unlock()

		switch status {
		case entity.StatusRunning:
			if ctx.Err() != nil {
				return false
			}
			return true
		case entity.StatusPaused:
			select {
			case <-ctx.Done():
				return false
			case <-gate:
			}
		default:
			return false
		}
	}
}

func (e *Engine) nextTurnIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.TurnIndex + 1
}

// roster loads the agents eligible for scheduling; deactivated agents are
// filtered at the query so a mid-session deactivation takes effect at the
// next turn selection.
func (e *Engine) roster(ctx context.Context) ([]*entity.Agent, error) {
	return e.deps.AgentRepo.FindAll(ctx,
		specification.BySession{SessionID: e.session.Id},
		specification.ActiveOnly{},
	)
}

func (e *Engine) rehydrateMemory(ctx context.Context, agentId uuid.UUID) {
	turns, err := e.deps.TurnRepo.RecentByAgent(ctx, e.session.Id, agentId, memory.WindowSize)
	if err != nil {
		e.deps.Logger.Warn("engine", "memory rehydration failed", map[string]interface{}{
			"session_id": e.session.Id.String(),
			"agent_id":   agentId.String(),
			"error":      err.Error(),
		})
		return
	}
	if len(turns) == 0 {
		return
	}
	texts := make([]string, 0, len(turns))
	for _, turn := range turns {
		texts = append(texts, turn.Text)
	}
	e.deps.Memory.Rehydrate(e.session.Id, agentId, texts)
}

// publishStatus must be called with e.mu held.
func (e *Engine) publishStatus() {
	e.deps.Broadcaster.Publish(e.session.Id, newEvent(e.session.Id, EventSessionStatus, StatusPayload{
		Status:    string(e.session.Status),
		Phase:     e.session.Phase,
		TurnIndex: e.session.TurnIndex,
		Deadline:  e.session.Deadline,
	}))
}

func (e *Engine) reportError(scope string, err error) {
	e.deps.Logger.Error("engine", "turn failure", map[string]interface{}{
		"session_id": e.session.Id.String(),
		"scope":      scope,
		"error":      err.Error(),
	})
	e.deps.Broadcaster.Publish(e.session.Id, newEvent(e.session.Id, EventError, ErrorPayload{
		Scope:   scope,
		Message: err.Error(),
	}))
}

func (e *Engine) audit(eventType string, data map[string]interface{}) {
	if e.deps.Audit == nil {
		return
	}
	ctx, cancelWrite := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancelWrite()
	if err := e.deps.Audit.Publish(ctx, events.NewBaseEvent(eventType, data)); err != nil {
		e.deps.Logger.Warn("engine", "audit publish failed", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
	}
}

func hasActiveParticipant(agents []entity.Agent) bool {
	for i := range agents {
		if agents[i].IsActive && agents[i].Role == entity.RoleParticipant {
			return true
		}
	}
	return false
}

func rosterValues(agents []*entity.Agent) []entity.Agent {
	values := make([]entity.Agent, 0, len(agents))
	for _, agent := range agents {
		values = append(values, *agent)
	}
	return values
}

func closedGate() chan struct{} {
	gate := make(chan struct{})
	close(gate)
	return gate
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
