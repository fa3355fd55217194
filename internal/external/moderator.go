package external

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/whisper/randchat/internal/moderation"
)

// Moderator submits text for a content-moderation decision (spec section
// 4.E.2 / 6). relay.Relay depends on this same method signature via its own
// narrower Moderator interface; this one is the canonical definition.
type Moderator interface {
	Check(text string) (allow bool, reason string, err error)
}

// moderationTimeout bounds a single Check round-trip. The teacher's own
// messaging.NATSClient is fire-and-forget pub/sub with no request/reply
// timeout concept; this is the one new parameter request/reply requires.
const moderationTimeout = 2 * time.Second

// NATSModerator calls the external cmd/moderator microservice synchronously
// over NATS request/reply, grounded on internal/messaging/nats.go's subject
// naming and connection wrapper, adapted from that file's fire-and-forget
// Publish/Subscribe pair to nats.Conn.Request/nats.Msg.Respond since the
// core needs a decision back before it can relay or block a message.
type NATSModerator struct {
	conn *nats.Conn
}

// NewNATSModerator wraps an already-connected NATS connection.
func NewNATSModerator(conn *nats.Conn) *NATSModerator {
	return &NATSModerator{conn: conn}
}

// Check publishes text on moderation.check and blocks for the synchronous
// reply. A request that times out or finds no responder (the moderator
// service is down) is surfaced as an error — the caller decides the
// fail-open/fail-closed policy (internal/relay fails open on this error).
func (m *NATSModerator) Check(text string) (bool, string, error) {
	req := moderation.ModerationRequest{Text: text, Ts: time.Now().UnixMilli()}
	data, err := json.Marshal(req)
	if err != nil {
		return false, "", fmt.Errorf("moderator: marshal request: %w", err)
	}

	reply, err := m.conn.Request("moderation.check", data, moderationTimeout)
	if err != nil {
		return false, "", fmt.Errorf("moderator: request: %w", err)
	}

	var result moderation.ModerationResult
	if err := json.Unmarshal(reply.Data, &result); err != nil {
		return false, "", fmt.Errorf("moderator: unmarshal result: %w", err)
	}
	return !result.Blocked, result.Reason, nil
}

// LocalModerator runs content moderation in-process against a
// moderation.Filter, with no NATS round-trip. It backs single-binary mode
// and tests that don't want to stand up a NATS server.
type LocalModerator struct {
	filter *moderation.Filter
}

// NewLocalModerator wraps an already-constructed filter. Pass
// moderation.NewFilter() for the built-in blocklist.
func NewLocalModerator(filter *moderation.Filter) *LocalModerator {
	return &LocalModerator{filter: filter}
}

// Check runs the filter synchronously; it never errors.
func (m *LocalModerator) Check(text string) (bool, string, error) {
	result := m.filter.Check(text)
	return !result.Blocked, result.Reason, nil
}
