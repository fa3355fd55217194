package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/whisper/randchat/internal/moderation"
)

// cmd/moderator is the external Moderator microservice (spec section 6):
// the core calls it synchronously over NATS request/reply for every
// send-message event, per spec 4.E.2's "submit text, get allow/veto"
// contract. Unlike the teacher's fire-and-forget publish/subscribe split
// (moderation.check in, moderation.result.<session> out), this replies
// directly on the request's inbox via msg.Respond so the core's
// external.NATSModerator.Check can block for the answer.
func main() {
	log.Println("Starting moderation service...")

	natsURL := nats.DefaultURL
	if v := os.Getenv("NATS_URL"); v != "" {
		natsURL = v
	}

	nc, err := nats.Connect(natsURL, nats.Name("randchat-moderator"))
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	filter := moderation.NewFilter()

	sub, err := nc.Subscribe("moderation.check", func(msg *nats.Msg) {
		var req moderation.ModerationRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Printf("[moderator] failed to unmarshal request: %v", err)
			return
		}

		result := filter.Check(req.Text)
		if result.Blocked {
			log.Printf("[moderator] FLAGGED reason=%s term=%q", result.Reason, result.Term)
		}

		resp := moderation.ModerationResult{
			Blocked: result.Blocked,
			Reason:  result.Reason,
			Term:    result.Term,
		}
		respData, err := json.Marshal(resp)
		if err != nil {
			log.Printf("[moderator] failed to marshal result: %v", err)
			return
		}
		if err := msg.Respond(respData); err != nil {
			log.Printf("[moderator] failed to respond: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to moderation checks: %v", err)
	}

	log.Printf("moderation service running")
	log.Printf("  nats_url: %s", natsURL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	_ = sub.Drain()
	nc.Close()
}
