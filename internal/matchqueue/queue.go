// Package matchqueue implements the tiered, preference-filtered matchmaking
// queue described in spec section 4.B. Unlike the teacher's Redis-backed
// queue, this is process-wide in-memory state guarded by a single mutex —
// the matching core is single-process authoritative per spec section 5, so
// there is no sorted-set/TTL machinery to maintain.
package matchqueue

import (
	"math/rand"
	"sync"
	"time"

	"github.com/whisper/randchat/internal/domain"
)

// QueueEntry is a Session currently waiting for a partner.
type QueueEntry struct {
	SessionID      string
	UserID         string
	Tier           domain.Tier
	Prefs          domain.Preferences
	Blocked        map[string]struct{} // blocked UserIDs, keyed by UserID (never SessionID)
	EnqueuedAt     time.Time
	SearchAttempts int
}

func (e *QueueEntry) waitSince(now time.Time) time.Duration {
	return now.Sub(e.EnqueuedAt)
}

// Snapshot is a read-only view of queue occupancy for observability.
type Snapshot struct {
	Total   int
	PerTier map[domain.Tier]int
}

// Queue holds waiting sessions, indexed by tier, and finds/scores compatible
// partners on demand. All methods are safe for concurrent use.
type Queue struct {
	mu          sync.Mutex
	entries     map[string]*QueueEntry              // SessionID -> entry
	tierBuckets map[domain.Tier]map[string]struct{} // Tier -> set of SessionIDs
	wake        chan struct{}                       // closed and replaced on every Enqueue

	now func() time.Time // overridable for tests
	rng *rand.Rand
}

// New creates an empty Queue ready for use.
func New() *Queue {
	return &Queue{
		entries:     make(map[string]*QueueEntry),
		tierBuckets: make(map[domain.Tier]map[string]struct{}),
		wake:        make(chan struct{}),
		now:         time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wake returns a channel that is closed the next time Enqueue is called.
// Search Drivers select on it so that a fresh arrival wakes waiting drivers
// immediately instead of waiting out the full adaptive polling interval.
func (q *Queue) Wake() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.wake
}

func (q *Queue) broadcastWakeLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}

// Enqueue idempotently inserts a session into the queue: a prior entry for
// the same SessionID is removed first, so re-insertion never doubles queue
// size. Callers must ensure the session is not currently paired.
func (q *Queue) Enqueue(sessionID, userID string, tier domain.Tier, prefs domain.Preferences, blocked map[string]struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeLocked(sessionID)

	if blocked == nil {
		blocked = map[string]struct{}{}
	}
	entry := &QueueEntry{
		SessionID:  sessionID,
		UserID:     userID,
		Tier:       tier,
		Prefs:      prefs,
		Blocked:    blocked,
		EnqueuedAt: q.now(),
	}
	q.entries[sessionID] = entry
	if q.tierBuckets[tier] == nil {
		q.tierBuckets[tier] = make(map[string]struct{})
	}
	q.tierBuckets[tier][sessionID] = struct{}{}

	q.broadcastWakeLocked()
}

// Remove takes a session out of the queue and its tier bucket. It is a no-op
// if the session is not queued.
func (q *Queue) Remove(sessionID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(sessionID)
}

func (q *Queue) removeLocked(sessionID string) {
	entry, ok := q.entries[sessionID]
	if !ok {
		return
	}
	delete(q.entries, sessionID)
	if bucket := q.tierBuckets[entry.Tier]; bucket != nil {
		delete(bucket, sessionID)
		if len(bucket) == 0 {
			delete(q.tierBuckets, entry.Tier)
		}
	}
}

// IsQueued reports whether sessionID currently has an entry in the queue.
func (q *Queue) IsQueued(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[sessionID]
	return ok
}

// Snapshot returns read-only occupancy counts.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Snapshot{Total: len(q.entries), PerTier: make(map[domain.Tier]int, len(q.tierBuckets))}
	for tier, bucket := range q.tierBuckets {
		s.PerTier[tier] = len(bucket)
	}
	return s
}

// Size returns the total number of queued sessions.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
