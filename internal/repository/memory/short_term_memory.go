package memory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// WindowSize bounds the number of recent turn texts kept per (session, agent).
const WindowSize = 8

// ShortTermMemory is the ephemeral per-agent conversation window used for
// prompt construction. It is derived state: it is only written after a turn
// has been durably persisted, and it can always be rebuilt from the turns
// table, so losing it on restart is harmless.
type ShortTermMemory struct {
	cache *cache.Cache
}

func NewShortTermMemory() *ShortTermMemory {
	// Windows for idle sessions expire after an hour; the janitor sweeps
	// them every 10 minutes.
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &ShortTermMemory{
		cache: c,
	}
}

func key(sessionId, agentId uuid.UUID) string {
	return fmt.Sprintf("%s:%s", sessionId, agentId)
}

// Append records a completed turn text, evicting the oldest entry once the
// window holds WindowSize items.
func (m *ShortTermMemory) Append(sessionId, agentId uuid.UUID, text string) {
	window := m.Recent(sessionId, agentId)
	window = append(window, text)
	if len(window) > WindowSize {
		window = window[len(window)-WindowSize:]
	}
	m.cache.Set(key(sessionId, agentId), window, cache.DefaultExpiration)
}

// Recent returns the remembered texts oldest-to-newest. The returned slice
// is a copy; callers may not mutate the stored window through it.
func (m *ShortTermMemory) Recent(sessionId, agentId uuid.UUID) []string {
	if x, found := m.cache.Get(key(sessionId, agentId)); found {
		stored := x.([]string)
		window := make([]string, len(stored))
		copy(window, stored)
		return window
	}
	return nil
}

// Rehydrate replaces an agent's window from persisted turn texts
// (oldest-to-newest), keeping only the newest WindowSize entries.
func (m *ShortTermMemory) Rehydrate(sessionId, agentId uuid.UUID, texts []string) {
	if len(texts) > WindowSize {
		texts = texts[len(texts)-WindowSize:]
	}
	window := make([]string, len(texts))
	copy(window, texts)
	m.cache.Set(key(sessionId, agentId), window, cache.DefaultExpiration)
}

// Forget drops an agent's window.
func (m *ShortTermMemory) Forget(sessionId, agentId uuid.UUID) {
	m.cache.Delete(key(sessionId, agentId))
}
