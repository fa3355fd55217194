package searchdriver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/whisper/randchat/internal/domain"
	"github.com/whisper/randchat/internal/matchqueue"
	"github.com/whisper/randchat/internal/pairing"
)

type fakeQueueRemover struct{}

func (fakeQueueRemover) Remove(string) {}

func TestDriver_PairsWhenCandidateAvailable(t *testing.T) {
	q := matchqueue.New()
	p := pairing.New(fakeQueueRemover{})

	prefs := domain.Preferences{Gender: domain.GenderAny, Region: domain.RegionAny}
	q.Enqueue("s1", "u1", domain.TierFree, prefs, nil)
	q.Enqueue("s2", "u2", domain.TierFree, prefs, nil)

	var mu sync.Mutex
	var matchedWith string
	cb := Callbacks{
		OnMatchFound: func(sessionID, partnerID string, _ time.Duration) {
			mu.Lock()
			matchedWith = partnerID
			mu.Unlock()
		},
	}

	d := New("s1", time.Now(), q, p, cb)
	d.Start(context.Background())

	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not finish in time")
	}

	mu.Lock()
	got := matchedWith
	mu.Unlock()
	if got != "s2" {
		t.Fatalf("expected match with s2, got %q", got)
	}
	if !p.IsPaired("s1") {
		t.Fatal("expected s1 to be paired")
	}
}

func TestDriver_CancelStopsLoop(t *testing.T) {
	q := matchqueue.New()
	p := pairing.New(fakeQueueRemover{})
	prefs := domain.Preferences{Gender: domain.GenderAny, Region: domain.RegionAny}
	q.Enqueue("s1", "u1", domain.TierFree, prefs, nil)

	d := New("s1", time.Now(), q, p, Callbacks{})
	d.Start(context.Background())
	d.Cancel()

	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled driver did not stop")
	}

	if p.IsPaired("s1") {
		t.Fatal("cancelled driver must never pair")
	}
}

func TestDriver_LosingRaceContinuesSearching(t *testing.T) {
	q := matchqueue.New()
	p := pairing.New(fakeQueueRemover{})
	prefs := domain.Preferences{Gender: domain.GenderAny, Region: domain.RegionAny}

	q.Enqueue("s1", "u1", domain.TierFree, prefs, nil)
	q.Enqueue("s2", "u2", domain.TierFree, prefs, nil)
	q.Enqueue("s3", "u3", domain.TierFree, prefs, nil)

	// Pre-pair s1 with s3 out from under a driver for s2, to force s2's
	// driver to lose against a concurrently-racing pairing and keep
	// searching instead of giving up.
	p.TryPair("s1", "s3")

	d := New("s2", time.Now(), q, p, Callbacks{})
	d.Start(context.Background())

	select {
	case <-d.Done():
		t.Fatal("s2's driver should keep running with no remaining candidates")
	case <-time.After(300 * time.Millisecond):
	}
	d.Cancel()
	<-d.Done()
}
