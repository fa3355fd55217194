// Package orchestrator wires the Matchmaking Queue, Pairing Manager, Search
// Driver, and Relay together behind the wire protocol (spec section 6). It
// replaces the teacher's cmd/wsserver inline closures and internal/matching
// shared-loop service with one Service whose handler methods are registered
// against a ws.MessageDispatcher, and whose session bookkeeping replaces the
// teacher's per-chat Redis session store with an in-memory map guarded by a
// single mutex — consistent with spec section 5's single-process
// authoritative core.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/whisper/randchat/internal/domain"
	"github.com/whisper/randchat/internal/matchqueue"
	"github.com/whisper/randchat/internal/metrics"
	"github.com/whisper/randchat/internal/pairing"
	"github.com/whisper/randchat/internal/protocol"
	"github.com/whisper/randchat/internal/relay"
	"github.com/whisper/randchat/internal/searchdriver"
	"github.com/whisper/randchat/internal/ws"
)

// autoRequeueDelay is the pause between a skip/auto-requeue teardown and the
// re-enqueue of each side, per spec section 4.F step 3 ("after a short
// delay, ~200ms").
const autoRequeueDelay = 200 * time.Millisecond

// Sender delivers an already-encoded event to a session.
type Sender interface {
	SendMessage(sessionID string, data []byte) error
}

// BlockStore resolves the set of UserIDs a user has blocked, keyed by
// UserID. Fail-open: BlockStore unavailability must never prevent a session
// from entering the queue (spec section 7's explicit error table row for
// this collaborator), so callers treat an error as "nobody blocked".
type BlockStore interface {
	BlockedBy(ctx context.Context, userID string) (map[string]struct{}, error)
}

// sessionState tracks everything the orchestrator needs to remember about a
// searching or paired session beyond what the Matchmaking Queue or Pairing
// Manager themselves hold — in particular the last Preferences/Blocked set
// used, so an auto-requeue (skip, or a stateless client's server-driven
// re-enqueue) never requires the client to resend find-match.
type sessionState struct {
	userID     string
	tier       domain.Tier
	prefs      domain.Preferences
	blocked    map[string]struct{}
	enqueuedAt time.Time
	driver     *searchdriver.Driver
}

// Service implements the event handlers for every inbound message type in
// spec section 6, and the single authoritative disconnect/teardown path
// required by spec section 5.
type Service struct {
	sender Sender
	queue  *matchqueue.Queue
	pairs  *pairing.Manager
	relay  *relay.Relay
	blocks BlockStore

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// New constructs a Service. blocks may be nil — BlockStore is optional per
// spec section 6's "external collaborators" list; a nil store behaves as if
// every BlockedBy call returned an empty set.
func New(sender Sender, queue *matchqueue.Queue, pairs *pairing.Manager, rel *relay.Relay, blocks BlockStore) *Service {
	return &Service{
		sender:   sender,
		queue:    queue,
		pairs:    pairs,
		relay:    rel,
		blocks:   blocks,
		sessions: make(map[string]*sessionState),
	}
}

// Register binds every inbound event type to its handler on d, and wires
// the connection registry's disconnect callback to s.handleDisconnect — the
// single authoritative teardown trigger per spec section 5.
func (s *Service) Register(d *ws.MessageDispatcher, server *ws.Server) {
	d.Register(protocol.TypeFindMatch, s.handleFindMatch)
	d.Register(protocol.TypeCancelMatch, s.handleCancelMatch)
	d.Register(protocol.TypeSkip, s.handleSkip)
	d.Register(protocol.TypeSendMessage, func(conn *ws.Connection, msg interface{}) {
		m := msg.(protocol.SendMessageMsg)
		s.relay.SendMessage(conn.ID, m.Message)
	})
	d.Register(protocol.TypeTyping, func(conn *ws.Connection, msg interface{}) {
		s.relay.Typing(conn.ID)
	})
	d.Register(protocol.TypeStopTyping, func(conn *ws.Connection, msg interface{}) {
		s.relay.StopTyping(conn.ID)
	})
	d.Register(protocol.TypeOffer, s.handleSignal)
	d.Register(protocol.TypeAnswer, s.handleSignal)
	d.Register(protocol.TypeICECandidate, s.handleSignal)
	d.Register(protocol.TypeVideoToggle, func(conn *ws.Connection, msg interface{}) {
		m := msg.(protocol.VideoToggleMsg)
		s.relay.VideoToggle(conn.ID, m.Enabled)
	})
	d.Register(protocol.TypeAudioToggle, func(conn *ws.Connection, msg interface{}) {
		m := msg.(protocol.AudioToggleMsg)
		s.relay.AudioToggle(conn.ID, m.Enabled)
	})

	server.SetOnDisconnect(s.handleDisconnect)
}

func (s *Service) handleSignal(conn *ws.Connection, msg interface{}) {
	m := msg.(protocol.SignalMsg)
	s.relay.Signal(conn.ID, m)
}

// handleFindMatch resolves the caller's identity (an authenticated
// Connection wins over the client-supplied payload, per the Connection
// Registry's optional auth step), resolves its block list fail-open,
// enqueues, and starts a Search Driver.
func (s *Service) handleFindMatch(conn *ws.Connection, msg interface{}) {
	m := msg.(protocol.FindMatchMsg)

	userID := conn.UserID
	if userID == "" {
		userID = m.UserID
	}
	tier := domain.Tier(m.Preferences.Tier)
	if conn.Tier != "" {
		tier = domain.Tier(conn.Tier)
	}
	prefs := domain.Preferences{
		Gender: domain.Gender(m.Preferences.Gender),
		Region: m.Preferences.Region,
		Tier:   tier,
	}

	blocked := s.blockedSetFailOpen(userID)
	s.startSearch(conn.ID, userID, tier, prefs, blocked)
}

// startSearch enqueues sessionID and launches its Search Driver, recording
// sessionState for later auto-requeue. Any driver already tracked for this
// session is cancelled first — find-match while already searching restarts
// the search rather than leaking a second goroutine.
//
// Before enqueuing, it defensively verifies sessionID isn't still marked
// paired. It shouldn't be — callers only reach startSearch after a cancel,
// skip, or disconnect has already unpaired it — but this is also the
// auto-requeue chokepoint (scheduleRequeue's delayed callback), so a race or
// bug leaving stale pairing state here would otherwise enqueue a session
// that is, from the pairing manager's point of view, still someone's
// partner. Repair by unpairing again before enqueue.
func (s *Service) startSearch(sessionID, userID string, tier domain.Tier, prefs domain.Preferences, blocked map[string]struct{}) {
	if s.pairs.IsPaired(sessionID) {
		log.Printf("[orchestrator] session=%s still paired before requeue, repairing", sessionID)
		s.pairs.Unpair(sessionID)
	}

	s.mu.Lock()
	if st, ok := s.sessions[sessionID]; ok && st.driver != nil {
		st.driver.Cancel()
	}
	now := time.Now()
	st := &sessionState{userID: userID, tier: tier, prefs: prefs, blocked: blocked, enqueuedAt: now}
	s.sessions[sessionID] = st
	s.mu.Unlock()

	s.queue.Enqueue(sessionID, userID, tier, prefs, blocked)
	metrics.MatchQueueSize.Set(float64(s.queue.Size()))

	d := searchdriver.New(sessionID, now, s.queue, s.pairs, searchdriver.Callbacks{
		OnSearching:  s.onSearching,
		OnMatchFound: s.onMatchFound,
	})

	s.mu.Lock()
	st.driver = d
	s.mu.Unlock()

	d.Start(context.Background())
}

func (s *Service) blockedSetFailOpen(userID string) map[string]struct{} {
	if s.blocks == nil || userID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	blocked, err := s.blocks.BlockedBy(ctx, userID)
	if err != nil {
		log.Printf("orchestrator: block store unavailable, failing open user=%s: %v", userID, err)
		return nil
	}
	return blocked
}

func (s *Service) onSearching(sessionID string, waitTime time.Duration, attempts int) {
	snap := s.queue.Snapshot()
	data, err := protocol.NewServerMessage(protocol.TypeSearching, protocol.SearchingMsg{
		QueuePosition: snap.Total,
		WaitTime:      waitTime.Milliseconds(),
	})
	if err != nil {
		log.Printf("orchestrator: failed to build searching message: %v", err)
		return
	}
	s.deliver(sessionID, data)
}

// onMatchFound runs on the winning driver's goroutine. Because
// pairing.Manager.TryPair removes both sessions from the queue atomically,
// the losing/passive side's own driver can never observe the pairing on its
// own next FindMatch call — it would simply find no queue entry for itself
// and search forever. The winning driver must therefore notify both sides
// directly and explicitly cancel the partner's driver here.
func (s *Service) onMatchFound(sessionID, partnerID string, waitTime time.Duration) {
	s.mu.Lock()
	mine := s.sessions[sessionID]
	theirs := s.sessions[partnerID]
	var partnerDriver *searchdriver.Driver
	if theirs != nil {
		partnerDriver = theirs.driver
	}
	s.mu.Unlock()

	if partnerDriver != nil {
		partnerDriver.Cancel()
	}

	metrics.MatchQueueSize.Set(float64(s.queue.Size()))
	metrics.ActivePairings.Set(float64(s.pairs.Count()))
	metrics.MatchDuration.Observe(waitTime.Seconds())

	myUserID, theirUserID := "", ""
	if mine != nil {
		myUserID = mine.userID
	}
	if theirs != nil {
		theirUserID = theirs.userID
	}

	theirWait := waitTime
	if theirs != nil {
		theirWait = time.Since(theirs.enqueuedAt)
	}

	s.sendMatchFound(sessionID, partnerID, theirUserID, waitTime)
	s.sendMatchFound(partnerID, sessionID, myUserID, theirWait)
}

func (s *Service) sendMatchFound(toSessionID, matchSessionID, matchUserID string, waitTime time.Duration) {
	data, err := protocol.NewServerMessage(protocol.TypeMatchFound, protocol.MatchFoundMsg{
		MatchSessionID: matchSessionID,
		MatchUserID:    matchUserID,
		WaitTime:       waitTime.Milliseconds(),
	})
	if err != nil {
		log.Printf("orchestrator: failed to build match-found message: %v", err)
		return
	}
	s.deliver(toSessionID, data)
}

// handleCancelMatch stops a session's Search Driver and removes it from the
// queue. A session with no active search is a no-op on both — Cancel and
// Remove are idempotent.
func (s *Service) handleCancelMatch(conn *ws.Connection, msg interface{}) {
	s.stopSearch(conn.ID)
	s.queue.Remove(conn.ID)
	metrics.MatchQueueSize.Set(float64(s.queue.Size()))

	data, err := protocol.NewServerMessage(protocol.TypeMatchCancelled, protocol.MatchCancelledMsg{})
	if err != nil {
		log.Printf("orchestrator: failed to build match-cancelled message: %v", err)
		return
	}
	s.deliver(conn.ID, data)
}

func (s *Service) stopSearch(sessionID string) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if ok && st.driver != nil {
		st.driver.Cancel()
	}
}

// handleSkip implements spec section 4.F's skip/auto-requeue protocol. A
// skip with no current partner is treated as a plain cancel — the Open
// Question in spec section 9 is resolved that way.
func (s *Service) handleSkip(conn *ws.Connection, msg interface{}) {
	m := msg.(protocol.SkipMsg)
	sessionID := conn.ID

	partnerID := s.pairs.Unpair(sessionID)
	if partnerID == "" {
		s.handleCancelMatch(conn, protocol.CancelMatchMsg{})
		return
	}
	metrics.ActivePairings.Set(float64(s.pairs.Count()))

	s.stopSearch(sessionID)
	s.stopSearch(partnerID)

	s.sendMatchEnded(partnerID, "skipped", sessionID, true)
	s.sendMatchEnded(sessionID, "skipped", sessionID, m.AutoRequeue)

	ackData, err := protocol.NewServerMessage(protocol.TypeSkipSuccess, protocol.SkipSuccessMsg{AutoRequeue: m.AutoRequeue})
	if err != nil {
		log.Printf("orchestrator: failed to build skip-success message: %v", err)
	} else {
		s.deliver(sessionID, ackData)
	}

	prefs := domain.Preferences{
		Gender: domain.Gender(m.Preferences.Gender),
		Region: m.Preferences.Region,
		Tier:   domain.Tier(m.Preferences.Tier),
	}
	if m.AutoRequeue {
		s.scheduleRequeue(sessionID, prefsOrLast(s, sessionID, prefs))
	}
	// P is auto-requeued by convention regardless of S's own flag, per spec
	// section 4.F step 5 — the same protocol applies symmetrically.
	s.scheduleRequeue(partnerID, prefsOrLast(s, partnerID, domain.Preferences{}))
}

// prefsOrLast prefers the freshly-supplied prefs (non-zero Tier) and falls
// back to the session's last known state, so that the partner side of a
// skip — which supplies no preferences of its own in the wire message — is
// requeued with whatever it searched with originally.
func prefsOrLast(s *Service, sessionID string, prefs domain.Preferences) domain.Preferences {
	if prefs.Tier != "" {
		return prefs
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[sessionID]; ok {
		return st.prefs
	}
	return prefs
}

func (s *Service) scheduleRequeue(sessionID string, prefs domain.Preferences) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return
	}
	userID, tier, blocked := st.userID, st.tier, st.blocked
	if prefs.Tier != "" {
		tier = prefs.Tier
	}

	time.AfterFunc(autoRequeueDelay, func() {
		s.startSearch(sessionID, userID, tier, prefs, blocked)
	})
}

func (s *Service) sendMatchEnded(toSessionID, reason, fromSessionID string, autoRequeue bool) {
	data, err := protocol.NewServerMessage(protocol.TypeMatchEnded, protocol.MatchEndedMsg{
		Reason:        reason,
		FromSessionID: fromSessionID,
		Disconnected:  true,
		AutoRequeue:   autoRequeue,
	})
	if err != nil {
		log.Printf("orchestrator: failed to build match-ended message: %v", err)
		return
	}
	s.deliver(toSessionID, data)
}

// handleDisconnect is the single authoritative teardown trigger (spec
// section 5): it stops the session's Search Driver, unpairs it if paired —
// notifying the surviving peer with match-ended{reason:"disconnected"} — and
// removes it from the queue if it was still searching, all before
// forgetting the session entirely.
func (s *Service) handleDisconnect(sessionID string) {
	s.stopSearch(sessionID)
	s.queue.Remove(sessionID)
	metrics.MatchQueueSize.Set(float64(s.queue.Size()))

	if partnerID := s.pairs.Unpair(sessionID); partnerID != "" {
		metrics.ActivePairings.Set(float64(s.pairs.Count()))
		s.sendMatchEnded(partnerID, "disconnected", sessionID, true)
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

func (s *Service) deliver(sessionID string, data []byte) {
	if err := s.sender.SendMessage(sessionID, data); err != nil {
		log.Printf("orchestrator: delivery failed session=%s: %v", sessionID, err)
	}
}
