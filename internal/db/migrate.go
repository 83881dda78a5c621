package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const usersMigration = `
CREATE TABLE IF NOT EXISTS users (
    id uuid PRIMARY KEY,
    cognito_sub text NOT NULL,
    email text NOT NULL,
    given_name text NOT NULL DEFAULT '',
    family_name text NOT NULL DEFAULT '',
    email_verified boolean NOT NULL DEFAULT false,
    roles text[] NOT NULL DEFAULT ARRAY['user']::text[],
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    last_login_at timestamptz
);

CREATE UNIQUE INDEX IF NOT EXISTS users_cognito_sub_unique
ON users (cognito_sub);

CREATE INDEX IF NOT EXISTS users_email_lower_idx
ON users (LOWER(email));
`

// RunUsersMigration creates the users table when it does not exist
func RunUsersMigration(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, usersMigration)
	return err
}
