package ws

import (
	"log"
	"time"

	"github.com/whisper/randchat/internal/protocol"
)

// MessageHandler is the callback signature for handling a parsed client
// event. msg is the concrete struct returned by protocol.ParseClientMessage
// (e.g. protocol.FindMatchMsg, protocol.SendMessageMsg, etc.).
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher routes incoming events to registered handlers based on
// event type. Malformed events and unregistered types are dropped and
// logged — spec section 7 never surfaces a parse/unsupported-type error to
// the client.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	server   *Server
}

// NewMessageDispatcher creates a MessageDispatcher bound to the given server.
func NewMessageDispatcher(server *Server) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		server:   server,
	}
}

// SetServer assigns the Server reference on the dispatcher. This supports the
// initialization pattern where the dispatcher is created before the server
// (since NewServer requires the Dispatch callback).
func (d *MessageDispatcher) SetServer(server *Server) {
	d.server = server
}

// Register associates a MessageHandler with an event type. If a handler was
// already registered for the given type, it is silently replaced.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the onMessage callback implementation. It parses the raw bytes
// into a typed message and routes it to the registered handler. Parse
// errors and unregistered types are dropped silently (logged only) — the
// client never learns about a malformed or unsupported event.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	conn.LastPing = time.Now()

	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Printf("ws: dispatch parse error session=%s: %v", conn.ID, err)
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		log.Printf("ws: unsupported event type=%q session=%s", msgType, conn.ID)
		return
	}

	handler(conn, msg)
}
