package memory

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestShortTermMemoryAppendAndRecent(t *testing.T) {
	m := NewShortTermMemory()
	sid := uuid.New()
	aid := uuid.New()

	assert.Nil(t, m.Recent(sid, aid))

	m.Append(sid, aid, "first")
	m.Append(sid, aid, "second")

	assert.Equal(t, []string{"first", "second"}, m.Recent(sid, aid))
}

func TestShortTermMemoryEvictsOldest(t *testing.T) {
	m := NewShortTermMemory()
	sid := uuid.New()
	aid := uuid.New()

	for i := 1; i <= WindowSize+1; i++ {
		m.Append(sid, aid, fmt.Sprintf("turn %d", i))
	}

	window := m.Recent(sid, aid)
	assert.Len(t, window, WindowSize)
	assert.NotContains(t, window, "turn 1")
	assert.Equal(t, "turn 2", window[0])
	assert.Equal(t, fmt.Sprintf("turn %d", WindowSize+1), window[WindowSize-1])
}

func TestShortTermMemoryIsolatedPerAgent(t *testing.T) {
	m := NewShortTermMemory()
	sid := uuid.New()
	agentA := uuid.New()
	agentB := uuid.New()

	m.Append(sid, agentA, "from A")
	m.Append(sid, agentB, "from B")

	assert.Equal(t, []string{"from A"}, m.Recent(sid, agentA))
	assert.Equal(t, []string{"from B"}, m.Recent(sid, agentB))
}

func TestShortTermMemoryRehydrate(t *testing.T) {
	m := NewShortTermMemory()
	sid := uuid.New()
	aid := uuid.New()

	texts := make([]string, 0, 12)
	for i := 1; i <= 12; i++ {
		texts = append(texts, fmt.Sprintf("turn %d", i))
	}
	m.Rehydrate(sid, aid, texts)

	window := m.Recent(sid, aid)
	assert.Len(t, window, WindowSize)
	assert.Equal(t, "turn 5", window[0])
	assert.Equal(t, "turn 12", window[WindowSize-1])
}

func TestShortTermMemoryRecentReturnsCopy(t *testing.T) {
	m := NewShortTermMemory()
	sid := uuid.New()
	aid := uuid.New()

	m.Append(sid, aid, "original")
	window := m.Recent(sid, aid)
	window[0] = "mutated"

	assert.Equal(t, []string{"original"}, m.Recent(sid, aid))
}

func TestShortTermMemoryForget(t *testing.T) {
	m := NewShortTermMemory()
	sid := uuid.New()
	aid := uuid.New()

	m.Append(sid, aid, "something")
	m.Forget(sid, aid)

	assert.Nil(t, m.Recent(sid, aid))
}
