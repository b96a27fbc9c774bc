// Package progress tracks percent-complete for background sync sessions.
// The tracker is injected into orchestrators rather than referenced as
// ambient state, so it can be swapped for a persistent or distributed
// implementation later. Entries have no durability guarantee: a process
// restart loses in-flight progress, which is acceptable because syncs are
// resumable from the persisted cursor.
package progress

import "sync"

// Complete is the terminal percentage. Both success and failure report it;
// failure is surfaced separately through the sync result.
const Complete = 100.0

// Tracker maps session IDs to percent-complete.
type Tracker interface {
	// Set records the current percentage for a session.
	Set(sessionID string, percent float64)

	// Get returns the current percentage. A missing session reports
	// Complete, so pollers of finished (or torn-down) sessions stop.
	Get(sessionID string) float64

	// Clear removes a session entry.
	Clear(sessionID string)
}

// MemoryTracker is the in-process Tracker. Safe for concurrent use.
type MemoryTracker struct {
	mu       sync.RWMutex
	sessions map[string]float64
}

// NewMemoryTracker creates an empty in-process tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{sessions: make(map[string]float64)}
}

// Set records the current percentage for a session.
func (t *MemoryTracker) Set(sessionID string, percent float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[sessionID] = percent
}

// Get returns the session's percentage, or Complete if unknown.
func (t *MemoryTracker) Get(sessionID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	percent, ok := t.sessions[sessionID]
	if !ok {
		return Complete
	}
	return percent
}

// Clear removes a session entry.
func (t *MemoryTracker) Clear(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}
