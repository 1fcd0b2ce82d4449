//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// schema mirrors the production migrations closely enough for store tests:
// same columns, same constraints, same indexes the queries lean on.
const schema = `
CREATE TABLE IF NOT EXISTS requests (
	id                   UUID PRIMARY KEY,
	type                 TEXT NOT NULL,
	status               TEXT NOT NULL,
	unit_id              UUID NOT NULL,
	crate_id             UUID,
	version              BIGINT NOT NULL,
	purpose              TEXT NOT NULL DEFAULT '',
	expected_return_date TIMESTAMPTZ,
	submitted_by         UUID NOT NULL,
	approved_by          UUID,
	allocated_by         UUID,
	issued_by            UUID,
	returned_by          UUID,
	submitted_at         TIMESTAMPTZ NOT NULL,
	approved_at          TIMESTAMPTZ,
	allocated_at         TIMESTAMPTZ,
	issued_at            TIMESTAMPTZ,
	returned_at          TIMESTAMPTZ,
	completed_at         TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_unit_status ON requests (unit_id, status);

CREATE TABLE IF NOT EXISTS crates (
	id               UUID PRIMARY KEY,
	status           TEXT NOT NULL,
	storage_location TEXT,
	unit_id          UUID NOT NULL,
	to_central       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_crates_unit ON crates (unit_id);

CREATE TABLE IF NOT EXISTS send_backs (
	id         UUID PRIMARY KEY,
	request_id UUID NOT NULL REFERENCES requests (id),
	reason     TEXT NOT NULL,
	created_by UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_send_backs_request ON send_backs (request_id);

CREATE TABLE IF NOT EXISTS audit_trail (
	id              BIGSERIAL PRIMARY KEY,
	occurred_at     TIMESTAMPTZ NOT NULL,
	actor           UUID NOT NULL,
	role            TEXT NOT NULL,
	action          TEXT NOT NULL,
	entity          TEXT NOT NULL,
	entity_id       TEXT NOT NULL,
	unit_id         UUID NOT NULL,
	previous_status TEXT NOT NULL DEFAULT '',
	new_status      TEXT NOT NULL,
	reason          TEXT NOT NULL DEFAULT '',
	ip_address      TEXT NOT NULL DEFAULT '',
	user_agent      TEXT NOT NULL DEFAULT '',
	request_id      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_trail_entity ON audit_trail (entity, entity_id, occurred_at);

CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	password_hash TEXT NOT NULL
);
`

// PostgresContainer wraps a testcontainers PostgreSQL instance with the
// schema already applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// NewPostgresContainer starts a new PostgreSQL container and applies the
// schema. Prefer Manager.GetPostgres so suites share one instance.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("cratekeeper_test"),
		tcpostgres.WithUsername("cratekeeper"),
		tcpostgres.WithPassword("cratekeeper"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		DB:        db,
	}
}

// TruncateTables empties the given tables. Pass tables in dependency order;
// CASCADE takes care of foreign keys either way.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(tables, ", "))
	if _, err := p.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}
