// Package searchdriver implements the Search Driver (spec component D): a
// per-session background task that polls the Matchmaking Queue with
// adaptive backoff until it pairs or is cancelled. The teacher's
// internal/matching.Service runs a single shared matchLoop ticker over
// every waiting session; this package replaces that design with one
// long-lived cancellable goroutine per searching session, per the design
// note on per-session background loops — no shared mutable "cancelled" map
// is needed, context.Context carries cancellation instead.
package searchdriver

import (
	"context"
	"log"
	"time"

	"github.com/whisper/randchat/internal/matchqueue"
)

// Queue is the subset of *matchqueue.Queue a driver needs.
type Queue interface {
	FindMatch(sessionID string) *matchqueue.QueueEntry
	Snapshot() matchqueue.Snapshot
	Wake() <-chan struct{}
}

// Pairer is the subset of *pairing.Manager a driver needs.
type Pairer interface {
	TryPair(sessionA, sessionB string) bool
}

// Callbacks are invoked by a running Driver. Handlers run on the driver's
// own goroutine — they must not block for long.
type Callbacks struct {
	// OnSearching fires on every no-match tick.
	OnSearching func(sessionID string, waitTime time.Duration, searchAttempts int)
	// OnMatchFound fires once, when this driver wins TryPair. partnerID is
	// the partner's SessionID.
	OnMatchFound func(sessionID, partnerID string, waitTime time.Duration)
}

// Driver runs the adaptive-polling search loop for a single session.
type Driver struct {
	sessionID string
	queue     Queue
	pairing   Pairer
	callbacks Callbacks
	cancel    context.CancelFunc
	done      chan struct{}

	enqueuedAt time.Time
	now        func() time.Time
}

// New constructs a Driver for sessionID. enqueuedAt is the time the session
// entered the queue, used to compute waitTime for searching/match-found
// events.
func New(sessionID string, enqueuedAt time.Time, q Queue, p Pairer, cb Callbacks) *Driver {
	return &Driver{
		sessionID:  sessionID,
		queue:      q,
		pairing:    p,
		callbacks:  cb,
		done:       make(chan struct{}),
		enqueuedAt: enqueuedAt,
		now:        time.Now,
	}
}

// Start launches the polling loop in its own goroutine and returns
// immediately. Cancel stops it cooperatively: cancellation is observed
// before the next FindMatch/TryPair call, never mid-call, so a driver that
// has already paired successfully cannot be un-paired by a late Cancel.
func (d *Driver) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	go d.run(ctx)
}

// Cancel stops the driver. It is safe to call multiple times and safe to
// call after the driver has already finished on its own.
func (d *Driver) Cancel() {
	if d.cancel != nil {
		d.cancel()
	}
}

// Done returns a channel closed when the driver's loop has exited, either by
// cancellation or by successful pairing. A session that is no longer queued
// keeps its driver polling until it is cancelled.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

func (d *Driver) run(ctx context.Context) {
	defer close(d.done)

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		partner := d.queue.FindMatch(d.sessionID)
		attempts++

		if partner != nil {
			select {
			case <-ctx.Done():
				// Cancellation must be observed before TryPair: a driver that
				// has been told to stop must guarantee it performs no further
				// TryPair call.
				return
			default:
			}

			if d.pairing.TryPair(d.sessionID, partner.SessionID) {
				logf("paired session=%s partner=%s attempts=%d", d.sessionID, partner.SessionID, attempts)
				if d.callbacks.OnMatchFound != nil {
					d.callbacks.OnMatchFound(d.sessionID, partner.SessionID, d.now().Sub(d.enqueuedAt))
				}
				return
			}
			// Lost the race: the candidate was already claimed by another
			// driver between FindMatch and TryPair. Keep searching — this
			// session itself might still be queued.
			continue
		}

		waitTime := d.now().Sub(d.enqueuedAt)
		if d.callbacks.OnSearching != nil {
			d.callbacks.OnSearching(d.sessionID, waitTime, attempts)
		}

		snap := d.queue.Snapshot()
		interval := matchqueue.AdaptiveInterval(snap.Total, attempts)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-d.queue.Wake():
			// A fresh Enqueue happened somewhere — poll again immediately
			// instead of waiting out the rest of the adaptive interval.
			timer.Stop()
		case <-timer.C:
		}
	}
}

// logf writes a driver log line through log.Printf with the "[search]"
// prefix.
func logf(format string, args ...interface{}) {
	log.Printf("[search] "+format, args...)
}
