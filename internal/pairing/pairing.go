// Package pairing implements the Pairing Manager: the symmetric
// {sessionA <-> sessionB} relation, created atomically by TryPair and torn
// down atomically by Unpair. State is in-memory per spec section 5 — the
// teacher's equivalent atomicity device is a Redis Lua script
// (acceptMatchLua); here a single mutex critical section gives the same
// guarantee for process-local state.
package pairing

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// QueueRemover is the subset of the Matchmaking Queue that the Pairing
// Manager needs: removing both halves of a new pairing from the queue as
// part of the same atomic step. Accepting this interface instead of a
// concrete *matchqueue.Queue keeps the two packages decoupled.
type QueueRemover interface {
	Remove(sessionID string)
}

// Pairing is the symmetric relation between two sessions.
type Pairing struct {
	SessionA  string
	SessionB  string
	RoomTag   string
	CreatedAt time.Time
}

// Other returns the partner of sessionID within this pairing, or "" if
// sessionID is neither half.
func (p Pairing) Other(sessionID string) string {
	switch sessionID {
	case p.SessionA:
		return p.SessionB
	case p.SessionB:
		return p.SessionA
	default:
		return ""
	}
}

// Manager owns the pairing table. TryPair and Unpair are serialized with
// respect to each other and to IsPaired via a single mutex, so that exactly
// one of two racing TryPair attempts on the same session ever succeeds.
type Manager struct {
	mu       sync.Mutex
	partner  map[string]string // SessionID -> partner SessionID
	pairings map[string]*Pairing
	queue    QueueRemover
	now      func() time.Time
}

// New creates a Manager that removes paired sessions from q as part of
// TryPair's atomic step.
func New(q QueueRemover) *Manager {
	return &Manager{
		partner:  make(map[string]string),
		pairings: make(map[string]*Pairing),
		queue:    q,
		now:      time.Now,
	}
}

// TryPair atomically creates the symmetric A<->B relation and removes both
// sessions from the queue, provided neither is already paired. Exactly one
// of two concurrent TryPair calls racing over a shared session succeeds.
func (m *Manager) TryPair(sessionA, sessionB string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, paired := m.partner[sessionA]; paired {
		return false
	}
	if _, paired := m.partner[sessionB]; paired {
		return false
	}
	if sessionA == sessionB {
		return false
	}

	p := &Pairing{
		SessionA:  sessionA,
		SessionB:  sessionB,
		RoomTag:   uuid.NewString(),
		CreatedAt: m.now(),
	}
	m.partner[sessionA] = sessionB
	m.partner[sessionB] = sessionA
	m.pairings[sessionA] = p
	m.pairings[sessionB] = p

	if m.queue != nil {
		m.queue.Remove(sessionA)
		m.queue.Remove(sessionB)
	}
	return true
}

// PartnerOf returns the partner SessionID, or "" if sessionID is not paired.
func (m *Manager) PartnerOf(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.partner[sessionID]
}

// IsPaired reports whether sessionID currently has a partner.
func (m *Manager) IsPaired(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.partner[sessionID]
	return ok
}

// Unpair atomically removes both halves of sessionID's pairing, if any, and
// returns the partner SessionID. A no-op (returns "") if sessionID was not
// paired — so repeated Unpair calls on the same session are idempotent.
func (m *Manager) Unpair(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	other, ok := m.partner[sessionID]
	if !ok {
		return ""
	}
	delete(m.partner, sessionID)
	delete(m.partner, other)
	delete(m.pairings, sessionID)
	delete(m.pairings, other)
	return other
}

// Get returns the Pairing record for sessionID, if any.
func (m *Manager) Get(sessionID string) (*Pairing, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pairings[sessionID]
	return p, ok
}

// Count returns the number of active pairings (not sessions).
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pairings) / 2
}
