// Package external adapts the three genuinely out-of-process collaborators
// named in spec section 6 — IdentityStore, BlockStore, Moderator — behind
// small interfaces the core consumes. Everything else in this module
// (queue, pairing, search, relay) is in-memory and single-process; these
// three are the only boundaries where the core talks to another service.
package external

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/whisper/randchat/internal/domain"
)

// IdentityStore authenticates a client's bearer token into a stable UserID
// and subscription Tier. The core treats authentication as fully external —
// it never issues or verifies credentials itself.
type IdentityStore interface {
	Authenticate(ctx context.Context, token string) (userID string, tier domain.Tier, err error)
}

// PostgresIdentityStore is the reference IdentityStore backed by Postgres,
// grounded on internal/report/store.go's database/sql + parameterized query
// idiom. The teacher never had an identity/auth table of its own (sessions
// were anonymous, keyed only by a browser fingerprint) — this table and
// query are new, added to give the facade a concrete backing.
type PostgresIdentityStore struct {
	db *sql.DB
}

// NewPostgresIdentityStore wraps an already-opened database handle.
func NewPostgresIdentityStore(db *sql.DB) *PostgresIdentityStore {
	return &PostgresIdentityStore{db: db}
}

// Authenticate looks up the user a bearer token belongs to. A token that
// matches no row is reported as an error — the caller (the WS upgrade
// handler) must refuse the connection rather than treat this as fail-open;
// unlike BlockStore, an unauthenticated session has nothing safe to fall
// back to.
func (s *PostgresIdentityStore) Authenticate(ctx context.Context, token string) (string, domain.Tier, error) {
	const query = `
		SELECT user_id, tier
		FROM auth_tokens
		WHERE token = $1 AND revoked_at IS NULL`

	var userID, tier string
	err := s.db.QueryRowContext(ctx, query, token).Scan(&userID, &tier)
	if err != nil {
		return "", "", fmt.Errorf("identity: authenticate: %w", err)
	}
	return userID, domain.Tier(tier), nil
}

// RunMigrations applies the auth_tokens schema. The teacher's own
// cmd/wsserver/main.go calls an internal/database.RunMigrations helper that
// was never included in the retrieved pack; this is a from-scratch
// replacement using golang-migrate's public API directly against the
// migrations directory shipped alongside cmd/core.
func RunMigrations(databaseURL, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("identity: migrate.New: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("identity: migrate up: %w", err)
	}
	return nil
}
