package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                 BIGSERIAL PRIMARY KEY,
	name               TEXT      NOT NULL,
	user_id            BIGINT    NOT NULL,
	nonce_hash         TEXT      NOT NULL,
	refresh_nonce_hash TEXT      NOT NULL,
	header_nonce_hash  TEXT      NOT NULL,
	created_at         BIGINT    NOT NULL,
	expires_at         BIGINT    NOT NULL,
	updated_tally      BIGINT    NOT NULL DEFAULT 0,
	updated_at         BIGINT,
	additionals        JSONB,
	UNIQUE (name, user_id)
);

CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at);
`

// EnsureSchema creates the sessions table and indexes if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
