// Package protocol defines the client/server event types and structures for
// the matchmaking and relay core. All events are serialized as JSON and
// follow an envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server event types.
const (
	TypeFindMatch    = "find-match"
	TypeCancelMatch  = "cancel-match"
	TypeSkip         = "skip"
	TypeSendMessage  = "send-message"
	TypeTyping       = "typing"
	TypeStopTyping   = "stop-typing"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeVideoToggle  = "video-toggle"
	TypeAudioToggle  = "audio-toggle"
)

// Server -> Client event types.
const (
	TypeSearching          = "searching"
	TypeMatchFound         = "match-found"
	TypeMatchCancelled     = "match-cancelled"
	TypeMatchEnded         = "match-ended"
	TypeReceiveMessage     = "receive-message"
	TypeMessageBlocked     = "message-blocked"
	TypeUserTyping         = "user-typing"
	TypeUserStoppedTyping  = "user-stopped-typing"
	TypePeerVideoToggle    = "peer-video-toggle"
	TypePeerAudioToggle    = "peer-audio-toggle"
	TypeMatchmakingStopped = "matchmaking-stopped"
	TypeSkipSuccess        = "skip-success"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the event type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// Preferences mirrors domain.Preferences at the wire boundary.
type Preferences struct {
	Tier   string `json:"tier"`
	Gender string `json:"gender"`
	Region string `json:"region"`
}

// FindMatchMsg enters the matching queue.
type FindMatchMsg struct {
	Type        string      `json:"type"`
	UserID      string      `json:"userId"`
	Preferences Preferences `json:"preferences"`
}

// CancelMatchMsg aborts an in-flight search.
type CancelMatchMsg struct {
	Type string `json:"type"`
}

// SkipMsg ends the current pairing, optionally requeuing.
type SkipMsg struct {
	Type        string      `json:"type"`
	UserID      string      `json:"userId,omitempty"`
	Preferences Preferences `json:"preferences,omitempty"`
	AutoRequeue bool        `json:"autoRequeue"`
}

// SendMessageMsg is a chat message submitted by the sender.
type SendMessageMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// TypingMsg and StopTypingMsg carry no payload beyond the type.
type TypingMsg struct {
	Type string `json:"type"`
}

type StopTypingMsg struct {
	Type string `json:"type"`
}

// SignalMsg carries an opaque WebRTC signaling blob (offer/answer/ice-candidate)
// addressed to a declared target session. SDP/Candidate are opaque to the
// core — it never inspects them, only forwards.
type SignalMsg struct {
	Type      string          `json:"type"`
	To        string          `json:"to"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// VideoToggleMsg and AudioToggleMsg report local media state changes.
type VideoToggleMsg struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

type AudioToggleMsg struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SearchingMsg is a progress tick emitted while a Search Driver polls.
type SearchingMsg struct {
	Type          string `json:"type"`
	QueuePosition int    `json:"queuePosition,omitempty"`
	WaitTime      int64  `json:"waitTime"`
}

// MatchFoundMsg announces a new pairing to both sides.
type MatchFoundMsg struct {
	Type           string `json:"type"`
	MatchSessionID string `json:"matchSessionID"`
	MatchUserID    string `json:"matchUserID"`
	WaitTime       int64  `json:"waitTime"`
}

// MatchCancelledMsg confirms a cancel-match request.
type MatchCancelledMsg struct {
	Type string `json:"type"`
}

// MatchEndedMsg announces a pairing teardown.
type MatchEndedMsg struct {
	Type          string `json:"type"`
	Reason        string `json:"reason"`
	FromSessionID string `json:"fromSessionID"`
	Disconnected  bool   `json:"disconnected"`
	AutoRequeue   bool   `json:"autoRequeue"`
}

// ReceiveMessageMsg delivers an allowed chat message to both sides of a pairing.
type ReceiveMessageMsg struct {
	Type            string `json:"type"`
	Message         string `json:"message"`
	Timestamp       int64  `json:"timestamp"`
	SenderSessionID string `json:"senderId"`
}

// MessageBlockedMsg is sent to the sender only, on moderator veto.
type MessageBlockedMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// UserTypingMsg / UserStoppedTypingMsg relay typing presence verbatim.
type UserTypingMsg struct {
	Type string `json:"type"`
}

type UserStoppedTypingMsg struct {
	Type string `json:"type"`
}

// ServerSignalMsg relays a signaling blob, tagging its origin session.
type ServerSignalMsg struct {
	Type      string          `json:"type"`
	From      string          `json:"from"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// PeerVideoToggleMsg / PeerAudioToggleMsg relay media state changes.
type PeerVideoToggleMsg struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

type PeerAudioToggleMsg struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// MatchmakingStoppedMsg confirms the Search Driver has been torn down.
type MatchmakingStoppedMsg struct {
	Type string `json:"type"`
}

// SkipSuccessMsg acknowledges a skip request.
type SkipSuccessMsg struct {
	Type        string `json:"type"`
	AutoRequeue bool   `json:"autoRequeue"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw event bytes into a typed client message. It
// returns the event type string, the decoded struct, and any error
// encountered. An error is returned for unknown or server-only event types —
// callers treat this as a malformed event: drop and log, no surface to the
// client.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeFindMatch:
		var m FindMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCancelMatch:
		var m CancelMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSkip:
		var m SkipMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStopTyping:
		var m StopTypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeOffer, TypeAnswer, TypeICECandidate:
		var m SignalMsg
		err = json.Unmarshal(env.Raw, &m)
		m.Type = env.Type
		msg = m
	case TypeVideoToggle:
		var m VideoToggleMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAudioToggle:
		var m AudioToggleMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server -> client message structs above; this function marshals it
// to JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
