package engine

import (
	"time"

	"github.com/google/uuid"

	"crewtalk-be/internal/engine/strategy"
	"crewtalk-be/internal/entity"
)

// TurnKind tells the prompt builder what is expected from the selected
// speaker.
type TurnKind string

const (
	KindOpening     TurnKind = "opening"
	KindModerator   TurnKind = "moderator"
	KindParticipant TurnKind = "participant"
	KindNotetaker   TurnKind = "notetaker"
	KindSummary     TurnKind = "summary"
)

// PhaseChange describes a phase transition that must be broadcast before the
// decision it is attached to produces any output.
type PhaseChange struct {
	From     string
	To       string
	Deadline time.Time
}

// Decision is one turn-selection result. Agent may be nil on a summary
// decision when no active moderator remains; callers skip the turn but the
// phase still closes. Done marks the end of the last phase.
type Decision struct {
	Agent       *entity.Agent
	Kind        TurnKind
	Phase       string
	PhaseChange *PhaseChange
	Done        bool
}

// Scheduler is the per-session rotation and phase state machine. It is not
// safe for concurrent use; the owning engine serializes all calls.
//
// Rotation within a phase: moderator, active participants in creation order,
// then the notetaker if present, repeated. The moderator's first turn of a
// phase is the opening turn. Deadline expiry and explicit advance are both
// detected at turn-selection time and close the phase with a moderator
// summary turn before the transition.
type Scheduler struct {
	phases    []strategy.Phase
	phaseIdx  int
	deadline  time.Time
	remaining time.Duration

	// cycle holds the ids still due to speak this cycle, snapshotted when
	// the cycle starts. Tracking ids instead of a slice position keeps a
	// mid-cycle deactivation from shifting the remaining speakers.
	cycle       []uuid.UUID
	openingDone bool
	closing     bool
	advance     bool
	done        bool
}

func NewScheduler(phases []strategy.Phase) *Scheduler {
	return &Scheduler{phases: phases}
}

// Start enters the first phase and bases its deadline on now.
func (s *Scheduler) Start(now time.Time) {
	s.phaseIdx = 0
	s.deadline = now.Add(s.phases[0].Duration)
	s.cycle = nil
	s.openingDone = false
	s.closing = false
	s.advance = false
	s.done = false
}

// Pause captures the remaining phase time so the deadline clock stops.
func (s *Scheduler) Pause(now time.Time) {
	s.remaining = 0
	if now.Before(s.deadline) {
		s.remaining = s.deadline.Sub(now)
	}
}

// Resume re-bases the deadline from the captured remaining time.
func (s *Scheduler) Resume(now time.Time) {
	s.deadline = now.Add(s.remaining)
}

// RequestAdvance marks the current phase for closure at the next
// turn-selection decision.
func (s *Scheduler) RequestAdvance() {
	s.advance = true
}

func (s *Scheduler) Phase() string {
	if s.done {
		return s.phases[len(s.phases)-1].Name
	}
	return s.phases[s.phaseIdx].Name
}

func (s *Scheduler) Deadline() time.Time {
	return s.deadline
}

// Next selects the next speaker. It must be called with the current active
// roster in creation order; a participant deactivated since the previous call
// simply drops out of the rotation. The decision carrying a PhaseChange is
// the first decision of the new phase.
func (s *Scheduler) Next(now time.Time, agents []entity.Agent) Decision {
	if s.done {
		return Decision{Done: true}
	}

	if s.closing {
		if s.phaseIdx+1 >= len(s.phases) {
			s.done = true
			return Decision{Done: true}
		}
		from := s.phases[s.phaseIdx].Name
		s.phaseIdx++
		s.deadline = now.Add(s.phases[s.phaseIdx].Duration)
		s.cycle = nil
		s.openingDone = false
		s.closing = false

		decision := s.pick(agents)
		decision.PhaseChange = &PhaseChange{
			From:     from,
			To:       s.phases[s.phaseIdx].Name,
			Deadline: s.deadline,
		}
		return decision
	}

	if s.advance || !now.Before(s.deadline) {
		s.advance = false
		s.closing = true
		return Decision{
			Agent: firstActiveModerator(agents),
			Kind:  KindSummary,
			Phase: s.phases[s.phaseIdx].Name,
		}
	}

	return s.pick(agents)
}

func (s *Scheduler) pick(agents []entity.Agent) Decision {
	order := rotationOrder(agents)
	if len(order) == 0 {
		// Roster fully deactivated mid-session. Close the phase so the
		// session drains to completion instead of spinning.
		s.closing = true
		s.cycle = nil
		return Decision{Kind: KindSummary, Phase: s.phases[s.phaseIdx].Name}
	}

	active := make(map[uuid.UUID]*entity.Agent, len(order))
	for _, agent := range order {
		active[agent.Id] = agent
	}

	for {
		if len(s.cycle) == 0 {
			for _, agent := range order {
				s.cycle = append(s.cycle, agent.Id)
			}
		}
		id := s.cycle[0]
		s.cycle = s.cycle[1:]

		agent, ok := active[id]
		if !ok {
			// Deactivated since the cycle was snapshotted; the remaining
			// speakers keep their slots.
			continue
		}

		kind := kindForRole(agent.Role)
		if agent.Role == entity.RoleModerator && !s.openingDone {
			kind = KindOpening
			s.openingDone = true
		}
		return Decision{Agent: agent, Kind: kind, Phase: s.phases[s.phaseIdx].Name}
	}
}

// rotationOrder builds one cycle from the active roster: moderator first,
// participants in creation order, notetaker last.
func rotationOrder(agents []entity.Agent) []*entity.Agent {
	var moderator, notetaker *entity.Agent
	participants := make([]*entity.Agent, 0, len(agents))
	for i := range agents {
		agent := &agents[i]
		if !agent.IsActive {
			continue
		}
		switch agent.Role {
		case entity.RoleModerator:
			if moderator == nil {
				moderator = agent
			}
		case entity.RoleNotetaker:
			if notetaker == nil {
				notetaker = agent
			}
		case entity.RoleParticipant:
			participants = append(participants, agent)
		}
	}

	order := make([]*entity.Agent, 0, len(participants)+2)
	if moderator != nil {
		order = append(order, moderator)
	}
	order = append(order, participants...)
	if notetaker != nil {
		order = append(order, notetaker)
	}
	return order
}

func firstActiveModerator(agents []entity.Agent) *entity.Agent {
	for i := range agents {
		if agents[i].IsActive && agents[i].Role == entity.RoleModerator {
			return &agents[i]
		}
	}
	return nil
}

func kindForRole(role entity.AgentRole) TurnKind {
	switch role {
	case entity.RoleModerator:
		return KindModerator
	case entity.RoleNotetaker:
		return KindNotetaker
	default:
		return KindParticipant
	}
}
