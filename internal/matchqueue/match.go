package matchqueue

import (
	"time"
)

// candidate pairs a queued entry with the compatibility phase it was found
// under and its computed score, ahead of weighted selection.
type candidate struct {
	entry   *QueueEntry
	score   float64
	tierHit bool
}

// FindMatch looks for a compatible partner for sessionID using the phased
// search described in the matchmaking design: same-tier first, then
// cross-tier (once Phase 1 is empty or the caller has waited past 10s), then
// fully relaxed (block-list only). It never mutates queue membership — the
// caller is responsible for pairing. It increments the caller's
// searchAttempts and returns the chosen QueueEntry, or nil if none compatible.
func (q *Queue) FindMatch(sessionID string) *QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	caller, ok := q.entries[sessionID]
	if !ok {
		return nil
	}
	caller.SearchAttempts++

	now := q.now()
	waitMs := float64(caller.waitSince(now).Milliseconds())

	cands := q.phase1Locked(caller)
	if len(cands) == 0 || waitMs > 10000 {
		cross := q.phase2Locked(caller)
		cands = append(cands, cross...)
	}
	if len(cands) == 0 {
		cands = q.phase3Locked(caller)
	}
	if len(cands) == 0 {
		return nil
	}

	scored := make([]candidate, 0, len(cands))
	for _, c := range cands {
		scored = append(scored, candidate{
			entry:   c.entry,
			tierHit: c.tierHit,
			score:   q.scoreLocked(caller, c.entry, c.tierHit, waitMs),
		})
	}

	top := topK(scored, 5)
	return q.weightedPickLocked(top)
}

type found struct {
	entry   *QueueEntry
	tierHit bool
}

// phase1Locked collects same-tier compatible candidates. Caller must hold q.mu.
func (q *Queue) phase1Locked(caller *QueueEntry) []found {
	bucket := q.tierBuckets[caller.Tier]
	out := make([]found, 0, len(bucket))
	for sid := range bucket {
		c := q.entries[sid]
		if q.compatibleLocked(caller, c) {
			out = append(out, found{entry: c, tierHit: true})
		}
	}
	return out
}

// phase2Locked collects cross-tier compatible candidates. Caller must hold q.mu.
func (q *Queue) phase2Locked(caller *QueueEntry) []found {
	out := []found{}
	for tier, bucket := range q.tierBuckets {
		if tier == caller.Tier {
			continue
		}
		for sid := range bucket {
			c := q.entries[sid]
			if q.compatibleLocked(caller, c) {
				out = append(out, found{entry: c, tierHit: false})
			}
		}
	}
	return out
}

// phase3Locked ignores region/gender preference, keeping only the mutual
// block check, and scans the entire queue. Caller must hold q.mu.
func (q *Queue) phase3Locked(caller *QueueEntry) []found {
	out := []found{}
	for sid, c := range q.entries {
		if sid == caller.SessionID {
			continue
		}
		if !mutualBlockOK(caller, c) {
			continue
		}
		out = append(out, found{entry: c, tierHit: c.Tier == caller.Tier})
	}
	return out
}

// compatibleLocked applies the five compatibility rules for Phase 1/2. Caller
// must hold q.mu.
func (q *Queue) compatibleLocked(caller, cand *QueueEntry) bool {
	if cand.SessionID == caller.SessionID {
		return false
	}
	if !mutualBlockOK(caller, cand) {
		return false
	}
	if caller.Prefs.WantsRegion() && cand.Prefs.Region != caller.Prefs.Region {
		return false
	}
	if caller.Prefs.WantsGender() && cand.Prefs.Gender != caller.Prefs.Gender {
		return false
	}
	return true
}

// mutualBlockOK reports whether neither side has blocked the other, checked
// strictly over UserID — SessionID must never enter a block comparison.
func mutualBlockOK(a, b *QueueEntry) bool {
	if _, blocked := a.Blocked[b.UserID]; blocked {
		return false
	}
	if _, blocked := b.Blocked[a.UserID]; blocked {
		return false
	}
	return true
}

// scoreLocked computes the match score for candidate c against caller.
// Caller must hold q.mu.
func (q *Queue) scoreLocked(caller, c *QueueEntry, tierHit bool, callerWaitMs float64) float64 {
	avgWaitMs := (callerWaitMs + float64(c.waitSince(q.now()).Milliseconds())) / 2

	score := 50.0
	if tierHit {
		score = 100.0
	}
	score += min(50, avgWaitMs/600)
	score -= min(20, float64(c.SearchAttempts)*2)
	score += q.rng.Float64() * 10

	return score
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// topK returns the highest-scoring k candidates, unsorted beyond that cut.
func topK(cands []candidate, k int) []candidate {
	if len(cands) <= k {
		return cands
	}
	out := make([]candidate, len(cands))
	copy(out, cands)
	// partial selection sort is fine for k=5 against small candidate sets.
	for i := 0; i < k; i++ {
		best := i
		for j := i + 1; j < len(out); j++ {
			if out[j].score > out[best].score {
				best = j
			}
		}
		out[i], out[best] = out[best], out[i]
	}
	return out[:k]
}

// weightedPickLocked performs a single weighted-random draw over top,
// weighted by score, per the design note to draw the RNG once rather than
// per-candidate inside the compatibility loop. Caller must hold q.mu.
func (q *Queue) weightedPickLocked(top []candidate) *QueueEntry {
	if len(top) == 0 {
		return nil
	}
	var total float64
	for _, c := range top {
		total += positive(c.score)
	}
	if total <= 0 {
		return top[0].entry
	}

	draw := q.rng.Float64() * total
	var acc float64
	for _, c := range top {
		acc += positive(c.score)
		if draw <= acc {
			return c.entry
		}
	}
	return top[len(top)-1].entry
}

func positive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// AdaptiveInterval computes the next poll delay for a Search Driver given the
// current queue snapshot and the session's attempt count, per the adaptive
// polling table.
func AdaptiveInterval(queueSize, attempts int) time.Duration {
	switch {
	case queueSize == 1:
		shift := attempts / 5
		backoff := time.Second
		for i := 0; i < shift && backoff < 10*time.Second; i++ {
			backoff *= 2
		}
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
		return backoff
	case queueSize <= 2:
		return 500 * time.Millisecond
	case attempts < 5:
		return time.Second
	case attempts < 15:
		return 2 * time.Second
	default:
		return 3 * time.Second
	}
}
