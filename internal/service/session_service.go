package service

import (
	"context"
	"strings"
	"time"

	"crewtalk-be/internal/config"
	"crewtalk-be/internal/dto"
	"crewtalk-be/internal/engine"
	"crewtalk-be/internal/engine/strategy"
	"crewtalk-be/internal/entity"
	"crewtalk-be/internal/pkg/logger"
	"crewtalk-be/internal/repository/memory"
	"crewtalk-be/internal/repository/specification"
	"crewtalk-be/internal/repository/unitofwork"
	"crewtalk-be/pkg/events"
	"crewtalk-be/pkg/llm"
	pktNats "crewtalk-be/pkg/nats"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const snapshotTurnLimit = 50

type ISessionService interface {
	Create(ctx context.Context, req *dto.CreateSessionRequest) (*dto.CreateSessionResponse, error)
	AddAgent(ctx context.Context, sessionId uuid.UUID, req *dto.AddAgentRequest) (*dto.AddAgentResponse, error)
	SetAgentActive(ctx context.Context, sessionId, agentId uuid.UUID, isActive bool) (*dto.AgentResponse, error)
	Start(ctx context.Context, sessionId uuid.UUID) (*dto.LifecycleResponse, error)
	Pause(ctx context.Context, sessionId uuid.UUID) (*dto.LifecycleResponse, error)
	Resume(ctx context.Context, sessionId uuid.UUID) (*dto.LifecycleResponse, error)
	Advance(ctx context.Context, sessionId uuid.UUID) (*dto.LifecycleResponse, error)
	Stop(ctx context.Context, sessionId uuid.UUID) (*dto.LifecycleResponse, error)
	UpdateNotepad(ctx context.Context, sessionId uuid.UUID, req *dto.UpdateNotepadRequest) error
	Snapshot(ctx context.Context, sessionId uuid.UUID) (*dto.SessionSnapshotResponse, error)
	Export(ctx context.Context, sessionId uuid.UUID) (*dto.SessionExportResponse, error)
	SessionExists(ctx context.Context, sessionId uuid.UUID) (bool, error)
}

type sessionService struct {
	uowFactory     unitofwork.RepositoryFactory
	registry       *engine.Registry
	memory         *memory.ShortTermMemory
	provider       llm.LLMProvider
	broadcaster    engine.Broadcaster
	eventPublisher *pktNats.Publisher
	checkpointer   engine.NotepadCheckpointer
	sessionCfg     config.SessionConfig
	logger         logger.ILogger
}

func NewSessionService(
	uowFactory unitofwork.RepositoryFactory,
	registry *engine.Registry,
	mem *memory.ShortTermMemory,
	provider llm.LLMProvider,
	broadcaster engine.Broadcaster,
	eventPublisher *pktNats.Publisher,
	checkpointer engine.NotepadCheckpointer,
	sessionCfg config.SessionConfig,
	log logger.ILogger,
) ISessionService {
	return &sessionService{
		uowFactory:     uowFactory,
		registry:       registry,
		memory:         mem,
		provider:       provider,
		broadcaster:    broadcaster,
		eventPublisher: eventPublisher,
		checkpointer:   checkpointer,
		sessionCfg:     sessionCfg,
		logger:         log,
	}
}

func (s *sessionService) Create(ctx context.Context, req *dto.CreateSessionRequest) (*dto.CreateSessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	timeLimit := req.TimeLimitSec
	if timeLimit == 0 {
		timeLimit = s.sessionCfg.DefaultTimeLimitSec
	}
	strategyName := req.Strategy
	if strategyName == "" {
		strategyName = "double_diamond"
	}

	session := entity.Session{
		Id:               uuid.New(),
		Title:            req.Title,
		ProblemStatement: req.ProblemStatement,
		Strategy:         strategyName,
		TimeLimitSec:     timeLimit,
		PhaseWeights:     req.PhaseWeights,
		Phase:            strategy.FirstPhase(),
		Status:           entity.StatusIdle,
		CreatedAt:        time.Now(),
	}
	if err := uow.SessionRepository().Create(ctx, &session); err != nil {
		return nil, err
	}

	s.registry.Put(s.newEngine(&session, ""))
	s.audit(ctx, events.TypeSessionCreated, map[string]interface{}{
		"session_id": session.Id.String(),
		"title":      session.Title,
	})

	return &dto.CreateSessionResponse{
		Id:     session.Id,
		Phase:  session.Phase,
		Status: string(session.Status),
	}, nil
}

// AddAgent persists a new agent after a one-shot readiness probe against the
// completion provider. An agent whose configuration cannot produce output is
// rejected rather than silently joining the roster.
func (s *sessionService) AddAgent(ctx context.Context, sessionId uuid.UUID, req *dto.AddAgentRequest) (*dto.AddAgentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	session, err := uow.SessionRepository().FindOne(ctx, specification.ByID{ID: sessionId})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Session not found")
	}
	if session.Status.Terminal() {
		return nil, &engine.InvalidTransitionError{Command: "add agent", Status: string(session.Status)}
	}

	probeOpts := []llm.Option{llm.WithMaxTokens(32)}
	if req.ModelHint != "" {
		probeOpts = append(probeOpts, llm.WithModel(req.ModelHint))
	}
	probe, err := s.provider.Generate(ctx, "Reply with a short greeting to confirm you are ready.", probeOpts...)
	if err != nil {
		return nil, &engine.ProviderError{AgentName: req.Name, Err: err}
	}

	agent := entity.Agent{
		Id:        uuid.New(),
		SessionId: sessionId,
		Name:      req.Name,
		Role:      entity.AgentRole(req.Role),
		Trait:     req.Trait,
		ModelHint: req.ModelHint,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if err := uow.AgentRepository().Create(ctx, &agent); err != nil {
		return nil, err
	}

	s.audit(ctx, events.TypeAgentAdded, map[string]interface{}{
		"session_id": sessionId.String(),
		"agent_id":   agent.Id.String(),
		"role":       req.Role,
	})

	return &dto.AddAgentResponse{
		Id:    agent.Id,
		Probe: strings.TrimSpace(probe),
	}, nil
}

// SetAgentActive flips the only mutable agent field. A deactivated
// participant is skipped by the scheduler from the next cycle on.
func (s *sessionService) SetAgentActive(ctx context.Context, sessionId, agentId uuid.UUID, isActive bool) (*dto.AgentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	agent, err := uow.AgentRepository().FindOne(ctx,
		specification.ByID{ID: agentId},
		specification.BySession{SessionID: sessionId},
	)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Agent not found")
	}

	agent.IsActive = isActive
	if err := uow.AgentRepository().Update(ctx, agent); err != nil {
		return nil, err
	}

	res := agentResponse(agent)
	return &res, nil
}

func (s *sessionService) Start(ctx context.Context, sessionId uuid.UUID) (*dto.LifecycleResponse, error) {
	eng, err := s.engineFor(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if err := eng.Start(ctx); err != nil {
		return nil, err
	}
	return lifecycleResponse(eng), nil
}

func (s *sessionService) Pause(ctx context.Context, sessionId uuid.UUID) (*dto.LifecycleResponse, error) {
	eng, err := s.engineFor(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if err := eng.Pause(ctx); err != nil {
		return nil, err
	}
	return lifecycleResponse(eng), nil
}

func (s *sessionService) Resume(ctx context.Context, sessionId uuid.UUID) (*dto.LifecycleResponse, error) {
	eng, err := s.engineFor(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if err := eng.Resume(ctx); err != nil {
		return nil, err
	}
	return lifecycleResponse(eng), nil
}

func (s *sessionService) Advance(ctx context.Context, sessionId uuid.UUID) (*dto.LifecycleResponse, error) {
	eng, err := s.engineFor(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if err := eng.Advance(ctx); err != nil {
		return nil, err
	}
	return lifecycleResponse(eng), nil
}

func (s *sessionService) Stop(ctx context.Context, sessionId uuid.UUID) (*dto.LifecycleResponse, error) {
	eng, err := s.engineFor(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if err := eng.Stop(ctx); err != nil {
		return nil, err
	}
	return lifecycleResponse(eng), nil
}

func (s *sessionService) UpdateNotepad(ctx context.Context, sessionId uuid.UUID, req *dto.UpdateNotepadRequest) error {
	eng, err := s.engineFor(ctx, sessionId)
	if err != nil {
		return err
	}
	updatedBy := req.UpdatedBy
	if updatedBy == "" {
		updatedBy = "user"
	}
	return eng.SetNotepad(ctx, req.Content, updatedBy)
}

func (s *sessionService) Snapshot(ctx context.Context, sessionId uuid.UUID) (*dto.SessionSnapshotResponse, error) {
	eng, err := s.engineFor(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	return s.buildSnapshot(ctx, eng)
}

// Export returns the full durable record: every turn, the whole roster, and
// the notepad snapshot history rather than just the latest checkpoint.
func (s *sessionService) Export(ctx context.Context, sessionId uuid.UUID) (*dto.SessionExportResponse, error) {
	eng, err := s.engineFor(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.buildSnapshot(ctx, eng)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	turns, err := uow.TurnRepository().FindAll(ctx,
		specification.BySession{SessionID: sessionId},
		specification.OrderBy{Field: "turn_index"},
	)
	if err != nil {
		return nil, err
	}

	notepads, err := uow.NotepadRepository().FindAll(ctx,
		specification.BySession{SessionID: sessionId},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, err
	}

	res := &dto.SessionExportResponse{
		Session:          *snapshot,
		Turns:            make([]dto.TurnResponse, 0, len(turns)),
		NotepadSnapshots: make([]dto.NotepadSnapshotResponse, 0, len(notepads)),
	}
	for _, turn := range turns {
		res.Turns = append(res.Turns, turnResponse(turn))
	}
	for _, snap := range notepads {
		res.NotepadSnapshots = append(res.NotepadSnapshots, dto.NotepadSnapshotResponse{
			Id:        snap.Id,
			Content:   snap.Content,
			UpdatedBy: snap.UpdatedBy,
			CreatedAt: snap.CreatedAt,
		})
	}
	return res, nil
}

func (s *sessionService) SessionExists(ctx context.Context, sessionId uuid.UUID) (bool, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := uow.SessionRepository().FindOne(ctx, specification.ByID{ID: sessionId})
	if err != nil {
		return false, err
	}
	return session != nil, nil
}

// engineFor resolves the session's engine, reconstructing one from durable
// state when the registry lost it (process restart).
func (s *sessionService) engineFor(ctx context.Context, sessionId uuid.UUID) (*engine.Engine, error) {
	if eng, ok := s.registry.Get(sessionId); ok {
		return eng, nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := uow.SessionRepository().FindOne(ctx, specification.ByID{ID: sessionId})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Session not found")
	}

	// A session that was mid-run when the process died cannot resume its
	// loop; it comes back as idle state only if it never started. Running
	// or paused sessions are surfaced as-is for reads, but their loop is
	// gone, so lifecycle commands will report an invalid transition.
	notepad := ""
	if latest, err := uow.NotepadRepository().LatestBySession(ctx, sessionId); err == nil && latest != nil {
		notepad = latest.Content
	}

	eng := s.newEngine(session, notepad)
	s.registry.Put(eng)
	return eng, nil
}

func (s *sessionService) newEngine(session *entity.Session, notepad string) *engine.Engine {
	uow := s.uowFactory.NewUnitOfWork(context.Background())
	return engine.NewEngine(session, notepad, engine.Deps{
		SessionRepo: uow.SessionRepository(),
		AgentRepo:   uow.AgentRepository(),
		TurnRepo:    uow.TurnRepository(),
		Memory:      s.memory,
		Provider:    s.provider,
		Broadcaster: s.broadcaster,
		Audit:       s.auditPublisher(),
		Checkpoint:  s.checkpointer,
		Logger:      s.logger,
	})
}

func (s *sessionService) auditPublisher() engine.AuditPublisher {
	if s.eventPublisher == nil {
		return nil
	}
	return s.eventPublisher
}

func (s *sessionService) buildSnapshot(ctx context.Context, eng *engine.Engine) (*dto.SessionSnapshotResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	session, err := uow.SessionRepository().FindOne(ctx, specification.ByID{ID: eng.SessionId()})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Session not found")
	}

	agents, err := uow.AgentRepository().FindAll(ctx, specification.BySession{SessionID: eng.SessionId()})
	if err != nil {
		return nil, err
	}
	turns, err := uow.TurnRepository().RecentBySession(ctx, eng.SessionId(), snapshotTurnLimit)
	if err != nil {
		return nil, err
	}

	status, phase, deadline, turnIndex := eng.Snapshot()
	notepad, _ := eng.Notepad()

	res := &dto.SessionSnapshotResponse{
		Id:               session.Id,
		Title:            session.Title,
		ProblemStatement: session.ProblemStatement,
		Strategy:         session.Strategy,
		TimeLimitSec:     session.TimeLimitSec,
		Phase:            phase,
		Status:           string(status),
		Deadline:         deadline,
		TurnIndex:        turnIndex,
		Agents:           make([]dto.AgentResponse, 0, len(agents)),
		Turns:            make([]dto.TurnResponse, 0, len(turns)),
		Notepad:          notepad,
	}
	for _, agent := range agents {
		res.Agents = append(res.Agents, agentResponse(agent))
	}
	for _, turn := range turns {
		res.Turns = append(res.Turns, turnResponse(turn))
	}
	return res, nil
}

func (s *sessionService) audit(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events.NewBaseEvent(eventType, data)); err != nil {
		s.logger.Warn("SessionService", "Audit publish failed", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
	}
}

func lifecycleResponse(eng *engine.Engine) *dto.LifecycleResponse {
	status, phase, deadline, _ := eng.Snapshot()
	return &dto.LifecycleResponse{
		Status:   string(status),
		Phase:    phase,
		Deadline: deadline,
	}
}

func agentResponse(agent *entity.Agent) dto.AgentResponse {
	return dto.AgentResponse{
		Id:        agent.Id,
		Name:      agent.Name,
		Role:      string(agent.Role),
		Trait:     agent.Trait,
		ModelHint: agent.ModelHint,
		IsActive:  agent.IsActive,
		CreatedAt: agent.CreatedAt,
	}
}

func turnResponse(turn *entity.Turn) dto.TurnResponse {
	return dto.TurnResponse{
		Id:         turn.Id,
		AgentId:    turn.AgentId,
		Phase:      turn.Phase,
		TurnIndex:  turn.TurnIndex,
		Text:       turn.Text,
		Sentiment:  turn.Sentiment,
		Confidence: turn.Confidence,
		CreatedAt:  turn.CreatedAt,
	}
}
