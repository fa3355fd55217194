// cmd/core is the single-process entrypoint for the matchmaking and relay
// core (spec section 5: one authoritative in-memory process, no
// cross-process matching fan-out). It collapses two of the teacher's three
// binaries — cmd/wsserver (connection registry + inline handlers) and
// cmd/matcher (Redis-polled matching loop) — into one process wiring the
// Connection Registry, Matchmaking Queue, Pairing Manager, Relay, and the
// External Collaborators Facade together via internal/orchestrator.
// cmd/moderator remains a separate, genuinely external NATS service
// (spec section 6).
package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"

	"github.com/whisper/randchat/internal/external"
	"github.com/whisper/randchat/internal/matchqueue"
	"github.com/whisper/randchat/internal/metrics"
	"github.com/whisper/randchat/internal/moderation"
	"github.com/whisper/randchat/internal/orchestrator"
	"github.com/whisper/randchat/internal/pairing"
	"github.com/whisper/randchat/internal/relay"
	"github.com/whisper/randchat/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	// --- Matchmaking core (in-memory, per spec section 5) ---
	queue := matchqueue.New()
	pairs := pairing.New(queue)

	// --- BlockStore (Redis, fail-open on unavailability) ---
	var blockStore external.BlockStore
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		store, err := external.NewRedisBlockStore(redisAddr)
		if err != nil {
			log.Printf("blocklist: redis unavailable, continuing without block filtering: %v", err)
		} else {
			blockStore = store
		}
	}

	// --- Moderator: NATS request/reply against cmd/moderator, or an
	// in-process fallback for single-binary / no-NATS deployments ---
	var moderator relay.Moderator
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	nc, err := nats.Connect(natsURL, nats.Name("randchat-core"))
	if err != nil {
		log.Printf("moderator: NATS unavailable (%v), falling back to in-process filter", err)
		moderator = external.NewLocalModerator(moderation.NewFilter())
	} else {
		moderator = external.NewNATSModerator(nc)
	}

	// --- IdentityStore (Postgres, optional — anonymous sessions remain
	// supported when no DATABASE_URL is configured) ---
	var identityStore external.IdentityStore
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		migrationsPath, err := filepath.Abs("migrations")
		if err != nil {
			log.Fatalf("failed to resolve migrations path: %v", err)
		}
		if err := external.RunMigrations(databaseURL, migrationsPath); err != nil {
			log.Fatalf("failed to run database migrations: %v", err)
		}
		log.Printf("database migrations applied successfully")

		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			log.Fatalf("failed to open database connection: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("failed to ping database: %v", err)
		}
		defer db.Close()
		identityStore = external.NewPostgresIdentityStore(db)
	}

	log.Printf("randchat core starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  nats_url:        %s", natsURL)
	log.Printf("  identity_store:  %v", identityStore != nil)
	log.Printf("  block_store:     %v", blockStore != nil)

	dispatcher := ws.NewMessageDispatcher(nil)
	server := ws.NewServer(config, dispatcher.Dispatch)
	dispatcher.SetServer(server)
	if identityStore != nil {
		server.SetAuthenticator(identityStore)
	}

	rel := relay.New(server, pairs, moderator)
	svc := orchestrator.New(server, queue, pairs, rel, blockStore)
	svc.Register(dispatcher, server)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsAddr := os.Getenv("METRICS_ADDR")
		if metricsAddr == "" {
			metricsAddr = ":9090"
		}
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if nc != nil {
			nc.Close()
		}
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
