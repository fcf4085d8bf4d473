package mapper

import (
	"crewtalk-be/internal/entity"
	"crewtalk-be/internal/model"

	"gorm.io/datatypes"
)

type SessionMapper struct{}

func NewSessionMapper() *SessionMapper {
	return &SessionMapper{}
}

// Session Mappers

func (m *SessionMapper) SessionToEntity(s *model.Session) *entity.Session {
	if s == nil {
		return nil
	}

	weights := make(map[string]float64)
	for phase, raw := range s.PhaseWeights {
		if v, ok := raw.(float64); ok {
			weights[phase] = v
		}
	}

	return &entity.Session{
		Id:               s.Id,
		Title:            s.Title,
		ProblemStatement: s.ProblemStatement,
		Strategy:         s.Strategy,
		TimeLimitSec:     s.TimeLimitSec,
		PhaseWeights:     weights,
		Phase:            s.Phase,
		Status:           entity.SessionStatus(s.Status),
		Deadline:         s.Deadline,
		TurnIndex:        s.TurnIndex,
		CreatedAt:        s.CreatedAt,
		StartedAt:        s.StartedAt,
		EndedAt:          s.EndedAt,
	}
}

func (m *SessionMapper) SessionToModel(s *entity.Session) *model.Session {
	if s == nil {
		return nil
	}

	var weights datatypes.JSONMap
	if len(s.PhaseWeights) > 0 {
		weights = make(datatypes.JSONMap, len(s.PhaseWeights))
		for phase, v := range s.PhaseWeights {
			weights[phase] = v
		}
	}

	return &model.Session{
		Id:               s.Id,
		Title:            s.Title,
		ProblemStatement: s.ProblemStatement,
		Strategy:         s.Strategy,
		TimeLimitSec:     s.TimeLimitSec,
		PhaseWeights:     weights,
		Phase:            s.Phase,
		Status:           string(s.Status),
		Deadline:         s.Deadline,
		TurnIndex:        s.TurnIndex,
		CreatedAt:        s.CreatedAt,
		StartedAt:        s.StartedAt,
		EndedAt:          s.EndedAt,
	}
}

// Agent Mappers

func (m *SessionMapper) AgentToEntity(a *model.Agent) *entity.Agent {
	if a == nil {
		return nil
	}
	return &entity.Agent{
		Id:        a.Id,
		SessionId: a.SessionId,
		Name:      a.Name,
		Role:      entity.AgentRole(a.Role),
		Trait:     a.Trait,
		ModelHint: a.ModelHint,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
	}
}

func (m *SessionMapper) AgentToModel(a *entity.Agent) *model.Agent {
	if a == nil {
		return nil
	}
	return &model.Agent{
		Id:        a.Id,
		SessionId: a.SessionId,
		Name:      a.Name,
		Role:      string(a.Role),
		Trait:     a.Trait,
		ModelHint: a.ModelHint,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
	}
}

// Turn Mappers

func (m *SessionMapper) TurnToEntity(t *model.Turn) *entity.Turn {
	if t == nil {
		return nil
	}
	return &entity.Turn{
		Id:         t.Id,
		SessionId:  t.SessionId,
		AgentId:    t.AgentId,
		Phase:      t.Phase,
		TurnIndex:  t.TurnIndex,
		Text:       t.Text,
		Sentiment:  t.Sentiment,
		Confidence: t.Confidence,
		CreatedAt:  t.CreatedAt,
	}
}

func (m *SessionMapper) TurnToModel(t *entity.Turn) *model.Turn {
	if t == nil {
		return nil
	}
	return &model.Turn{
		Id:         t.Id,
		SessionId:  t.SessionId,
		AgentId:    t.AgentId,
		Phase:      t.Phase,
		TurnIndex:  t.TurnIndex,
		Text:       t.Text,
		Sentiment:  t.Sentiment,
		Confidence: t.Confidence,
		CreatedAt:  t.CreatedAt,
	}
}

// Notepad Mappers

func (m *SessionMapper) NotepadSnapshotToEntity(n *model.NotepadSnapshot) *entity.NotepadSnapshot {
	if n == nil {
		return nil
	}
	return &entity.NotepadSnapshot{
		Id:        n.Id,
		SessionId: n.SessionId,
		Content:   n.Content,
		UpdatedBy: n.UpdatedBy,
		CreatedAt: n.CreatedAt,
	}
}

func (m *SessionMapper) NotepadSnapshotToModel(n *entity.NotepadSnapshot) *model.NotepadSnapshot {
	if n == nil {
		return nil
	}
	return &model.NotepadSnapshot{
		Id:        n.Id,
		SessionId: n.SessionId,
		Content:   n.Content,
		UpdatedBy: n.UpdatedBy,
		CreatedAt: n.CreatedAt,
	}
}
