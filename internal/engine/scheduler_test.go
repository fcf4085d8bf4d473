package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewtalk-be/internal/engine/strategy"
	"crewtalk-be/internal/entity"
)

func testRoster(t *testing.T) []entity.Agent {
	t.Helper()
	sessionId := uuid.New()
	roster := []entity.Agent{
		{Id: uuid.New(), SessionId: sessionId, Name: "Mia", Role: entity.RoleModerator, IsActive: true},
		{Id: uuid.New(), SessionId: sessionId, Name: "Ana", Role: entity.RoleParticipant, IsActive: true},
		{Id: uuid.New(), SessionId: sessionId, Name: "Ben", Role: entity.RoleParticipant, IsActive: true},
	}
	for i := range roster {
		roster[i].CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
	}
	return roster
}

func TestSchedulerRotationOrder(t *testing.T) {
	sched := NewScheduler(strategy.Phases(1200, nil))
	now := time.Now()
	sched.Start(now)

	roster := testRoster(t)

	var names []string
	var kinds []TurnKind
	for i := 0; i < 6; i++ {
		decision := sched.Next(now, roster)
		require.False(t, decision.Done)
		require.NotNil(t, decision.Agent)
		names = append(names, decision.Agent.Name)
		kinds = append(kinds, decision.Kind)
	}

	assert.Equal(t, []string{"Mia", "Ana", "Ben", "Mia", "Ana", "Ben"}, names)
	assert.Equal(t, KindOpening, kinds[0])
	assert.Equal(t, KindModerator, kinds[3])
	assert.Equal(t, KindParticipant, kinds[1])
}

func TestSchedulerNotetakerClosesCycle(t *testing.T) {
	sched := NewScheduler(strategy.Phases(1200, nil))
	now := time.Now()
	sched.Start(now)

	roster := testRoster(t)
	roster = append(roster, entity.Agent{
		Id: uuid.New(), SessionId: roster[0].SessionId,
		Name: "Nora", Role: entity.RoleNotetaker, IsActive: true,
	})

	var names []string
	for i := 0; i < 8; i++ {
		names = append(names, sched.Next(now, roster).Agent.Name)
	}
	assert.Equal(t, []string{"Mia", "Ana", "Ben", "Nora", "Mia", "Ana", "Ben", "Nora"}, names)
}

func TestSchedulerDeadlineTriggersSummaryThenPhaseChange(t *testing.T) {
	sched := NewScheduler(strategy.Phases(1200, nil))
	start := time.Now()
	sched.Start(start)
	roster := testRoster(t)

	opening := sched.Next(start, roster)
	assert.Equal(t, KindOpening, opening.Kind)
	assert.Equal(t, "discover", opening.Phase)

	afterDeadline := start.Add(301 * time.Second)
	summary := sched.Next(afterDeadline, roster)
	require.Equal(t, KindSummary, summary.Kind)
	assert.Equal(t, "discover", summary.Phase)
	assert.Equal(t, "Mia", summary.Agent.Name)
	assert.Nil(t, summary.PhaseChange)

	next := sched.Next(afterDeadline, roster)
	require.NotNil(t, next.PhaseChange)
	assert.Equal(t, "discover", next.PhaseChange.From)
	assert.Equal(t, "define", next.PhaseChange.To)
	assert.Equal(t, "define", next.Phase)
	assert.Equal(t, KindOpening, next.Kind)
	assert.Equal(t, afterDeadline.Add(300*time.Second), next.PhaseChange.Deadline)
}

func TestSchedulerExplicitAdvance(t *testing.T) {
	sched := NewScheduler(strategy.Phases(1200, nil))
	now := time.Now()
	sched.Start(now)
	roster := testRoster(t)

	sched.Next(now, roster)
	sched.RequestAdvance()

	summary := sched.Next(now, roster)
	assert.Equal(t, KindSummary, summary.Kind)

	next := sched.Next(now, roster)
	require.NotNil(t, next.PhaseChange)
	assert.Equal(t, "define", next.Phase)
}

func TestSchedulerCompletesAfterLastPhase(t *testing.T) {
	sched := NewScheduler(strategy.Phases(1200, nil))
	now := time.Now()
	sched.Start(now)
	roster := testRoster(t)

	phases := []string{}
	for cycle := 0; cycle < 4; cycle++ {
		sched.RequestAdvance()
		summary := sched.Next(now, roster)
		require.Equal(t, KindSummary, summary.Kind)
		phases = append(phases, summary.Phase)
		if cycle < 3 {
			opening := sched.Next(now, roster)
			require.NotNil(t, opening.PhaseChange)
		}
	}
	assert.Equal(t, []string{"discover", "define", "develop", "deliver"}, phases)

	final := sched.Next(now, roster)
	assert.True(t, final.Done)
	assert.True(t, sched.Next(now, roster).Done)
}

func TestSchedulerSkipsDeactivatedParticipant(t *testing.T) {
	sched := NewScheduler(strategy.Phases(1200, nil))
	now := time.Now()
	sched.Start(now)
	roster := testRoster(t)

	// Full first cycle.
	for i := 0; i < 3; i++ {
		sched.Next(now, roster)
	}

	roster[1].IsActive = false
	var names []string
	for i := 0; i < 4; i++ {
		names = append(names, sched.Next(now, roster).Agent.Name)
	}
	assert.Equal(t, []string{"Mia", "Ben", "Mia", "Ben"}, names)
}

func TestSchedulerMidCycleDeactivationKeepsRemainingSlots(t *testing.T) {
	sched := NewScheduler(strategy.Phases(1200, nil))
	now := time.Now()
	sched.Start(now)
	roster := testRoster(t)

	// Mia and Ana speak, then Ana drops out mid-cycle. Ben has not had his
	// slot yet and must still get it before the cycle restarts.
	assert.Equal(t, "Mia", sched.Next(now, roster).Agent.Name)
	assert.Equal(t, "Ana", sched.Next(now, roster).Agent.Name)

	roster[1].IsActive = false
	assert.Equal(t, "Ben", sched.Next(now, roster).Agent.Name)

	var names []string
	for i := 0; i < 4; i++ {
		names = append(names, sched.Next(now, roster).Agent.Name)
	}
	assert.Equal(t, []string{"Mia", "Ben", "Mia", "Ben"}, names)
}

func TestSchedulerDeactivationAfterSlotTakenThisCycle(t *testing.T) {
	sched := NewScheduler(strategy.Phases(1200, nil))
	now := time.Now()
	sched.Start(now)
	roster := testRoster(t)
	roster = append(roster, entity.Agent{
		Id: uuid.New(), SessionId: roster[0].SessionId,
		Name: "Nora", Role: entity.RoleNotetaker, IsActive: true,
		CreatedAt: time.Now().Add(3 * time.Second),
	})

	// Ana already spoke this cycle; deactivating her must not shift Ben or
	// Nora out of their remaining slots.
	assert.Equal(t, "Mia", sched.Next(now, roster).Agent.Name)
	assert.Equal(t, "Ana", sched.Next(now, roster).Agent.Name)
	roster[1].IsActive = false

	assert.Equal(t, "Ben", sched.Next(now, roster).Agent.Name)
	assert.Equal(t, "Nora", sched.Next(now, roster).Agent.Name)
	assert.Equal(t, "Mia", sched.Next(now, roster).Agent.Name)
}

func TestSchedulerPauseFreezesDeadline(t *testing.T) {
	sched := NewScheduler(strategy.Phases(1200, nil))
	start := time.Now()
	sched.Start(start)

	pausedAt := start.Add(100 * time.Second)
	sched.Pause(pausedAt)

	resumedAt := pausedAt.Add(1 * time.Hour)
	sched.Resume(resumedAt)

	assert.Equal(t, resumedAt.Add(200*time.Second), sched.Deadline())
}

func TestSchedulerSummaryWithoutModerator(t *testing.T) {
	sched := NewScheduler(strategy.Phases(1200, nil))
	now := time.Now()
	sched.Start(now)
	roster := testRoster(t)
	roster[0].IsActive = false

	sched.RequestAdvance()
	summary := sched.Next(now, roster)
	assert.Equal(t, KindSummary, summary.Kind)
	assert.Nil(t, summary.Agent)
}
