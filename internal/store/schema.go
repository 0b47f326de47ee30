package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the PostgreSQL layout: a dense append-only events table, an
// append-only stakes table, and a sparse balances table. There is no
// delete path anywhere.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id             BIGINT PRIMARY KEY,
	creator        TEXT        NOT NULL,
	description    TEXT        NOT NULL,
	options        TEXT[]      NOT NULL,
	deadline       TIMESTAMPTZ NOT NULL,
	state          TEXT        NOT NULL,
	winning_option INT         NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS stakes (
	id        TEXT PRIMARY KEY,
	event_id  BIGINT      NOT NULL REFERENCES events(id),
	bettor    TEXT        NOT NULL,
	option    INT         NOT NULL,
	amount    NUMERIC     NOT NULL CHECK (amount > 0),
	placed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stakes_event ON stakes(event_id);

CREATE TABLE IF NOT EXISTS balances (
	participant TEXT PRIMARY KEY,
	amount      NUMERIC     NOT NULL DEFAULT 0 CHECK (amount >= 0),
	updated_at  TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
