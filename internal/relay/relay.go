// Package relay implements the Relay & Control component (spec section
// 4.E): signaling, chat, and presence/media-toggle events routed strictly
// between paired peers. It generalizes the inline dispatcher closures the
// teacher wires directly in cmd/wsserver/main.go (message/typing/end_chat
// handlers) into a standalone, independently testable type, extended with
// WebRTC signaling and media toggles the teacher — a text-only chat app —
// never had.
package relay

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/whisper/randchat/internal/metrics"
	"github.com/whisper/randchat/internal/protocol"
)

// Sender delivers an already-encoded event to a session, at-most-once,
// best-effort. It is satisfied by *ws.Server.SendMessage.
type Sender interface {
	SendMessage(sessionID string, data []byte) error
}

// Pairer is the subset of *pairing.Manager the relay needs to find a
// sender's current partner.
type Pairer interface {
	PartnerOf(sessionID string) string
}

// Moderator is the external content-moderation collaborator (spec section
// 6): Check submits text and returns an allow/veto decision.
type Moderator interface {
	Check(text string) (allow bool, reason string, err error)
}

// Relay routes signaling, chat, and presence events between paired peers.
type Relay struct {
	sender    Sender
	pairing   Pairer
	moderator Moderator
	now       func() time.Time
}

// New constructs a Relay. moderator may be nil, in which case every chat
// message that passes validation is allowed.
func New(sender Sender, pairing Pairer, moderator Moderator) *Relay {
	return &Relay{sender: sender, pairing: pairing, moderator: moderator, now: time.Now}
}

// Signal forwards an opaque offer/answer/ice-candidate blob from sender to
// its declared target, but only if the target is in fact sender's current
// partner — per spec 4.E.1, a late signal after skip is dropped silently,
// never surfaced as an error.
func (r *Relay) Signal(senderSessionID string, msg protocol.SignalMsg) {
	partner := r.pairing.PartnerOf(senderSessionID)
	if partner == "" || partner != msg.To {
		return
	}

	data, err := protocol.NewServerMessage(msg.Type, protocol.ServerSignalMsg{
		From:      senderSessionID,
		SDP:       msg.SDP,
		Candidate: msg.Candidate,
	})
	if err != nil {
		log.Printf("[relay] failed to build signal message type=%s: %v", msg.Type, err)
		return
	}
	r.deliver(partner, data)
}

// SendMessage submits text to the Moderator. On veto, message-blocked is
// sent to the sender only and nothing is relayed. On allow, receive-message
// is delivered to both sender and partner — the echo to sender supplies a
// single authoritative timestamp and ordering for the pairing.
func (r *Relay) SendMessage(senderSessionID, text string) {
	partner := r.pairing.PartnerOf(senderSessionID)
	if partner == "" {
		return
	}

	if err := validateMessage(text); err != nil {
		log.Printf("[relay] dropping malformed message session=%s: %v", senderSessionID, err)
		return
	}

	start := r.now()
	allow, reason, err := r.checkModeration(text)
	metrics.MessageLatency.Observe(r.now().Sub(start).Seconds())
	if err != nil {
		// Fail-open: a moderator outage must not stall chat for every paired
		// session, so an unreachable moderator logs a warning and the message
		// is relayed unmoderated, same policy as a block-list fetch failure.
		log.Printf("[relay] moderator check failed, failing open session=%s: %v", senderSessionID, err)
		allow = true
		reason = ""
	}

	if !allow {
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		data, merr := protocol.NewServerMessage(protocol.TypeMessageBlocked, protocol.MessageBlockedMsg{Reason: reason})
		if merr != nil {
			log.Printf("[relay] failed to build message-blocked: %v", merr)
			return
		}
		r.deliver(senderSessionID, data)
		return
	}

	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	ts := r.now().UnixMilli()
	data, err := protocol.NewServerMessage(protocol.TypeReceiveMessage, protocol.ReceiveMessageMsg{
		Message:         text,
		Timestamp:       ts,
		SenderSessionID: senderSessionID,
	})
	if err != nil {
		log.Printf("[relay] failed to build receive-message: %v", err)
		return
	}
	r.deliver(senderSessionID, data)
	r.deliver(partner, data)
}

func (r *Relay) checkModeration(text string) (bool, string, error) {
	if r.moderator == nil {
		return true, "", nil
	}
	return r.moderator.Check(text)
}

// Typing / StopTyping / VideoToggle / AudioToggle forward verbatim to the
// partner under their renamed outbound event, dropped silently if no
// partner exists.
func (r *Relay) Typing(senderSessionID string) {
	r.forwardVerbatim(senderSessionID, protocol.TypeUserTyping, protocol.UserTypingMsg{})
}

func (r *Relay) StopTyping(senderSessionID string) {
	r.forwardVerbatim(senderSessionID, protocol.TypeUserStoppedTyping, protocol.UserStoppedTypingMsg{})
}

func (r *Relay) VideoToggle(senderSessionID string, enabled bool) {
	r.forwardVerbatim(senderSessionID, protocol.TypePeerVideoToggle, protocol.PeerVideoToggleMsg{Enabled: enabled})
}

func (r *Relay) AudioToggle(senderSessionID string, enabled bool) {
	r.forwardVerbatim(senderSessionID, protocol.TypePeerAudioToggle, protocol.PeerAudioToggleMsg{Enabled: enabled})
}

func (r *Relay) forwardVerbatim(senderSessionID, eventType string, payload interface{}) {
	partner := r.pairing.PartnerOf(senderSessionID)
	if partner == "" {
		return
	}
	data, err := protocol.NewServerMessage(eventType, payload)
	if err != nil {
		log.Printf("[relay] failed to build %s: %v", eventType, err)
		return
	}
	r.deliver(partner, data)
}

// deliver is best-effort, at-most-once: failures are logged, never retried,
// never surfaced back to the sender.
func (r *Relay) deliver(sessionID string, data []byte) {
	if err := r.sender.SendMessage(sessionID, data); err != nil {
		log.Printf("[relay] delivery failed session=%s: %v", sessionID, err)
	}
}

// rawJSON is a small helper used by tests to build opaque SDP/candidate
// payloads without importing encoding/json at the call site.
func rawJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(fmt.Sprintf("%q", err.Error()))
	}
	return b
}
