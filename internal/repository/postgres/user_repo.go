// internal/repository/postgres/user_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"objettrouve-service/internal/domain/auth"
	xerrors "objettrouve-service/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

const userColumns = `id::text, cognito_sub, email, given_name, family_name, email_verified,
		       roles, created_at, updated_at, last_login_at`

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertFromIdentity inserts or refreshes the user row for an identity-provider
// subject. Existing roles are kept and merged with roles.
func (r *UserRepository) UpsertFromIdentity(ctx context.Context, identity *auth.Identity, roles []string) (*auth.User, error) {
	query := `
		INSERT INTO users (id, cognito_sub, email, given_name, family_name, email_verified, roles, last_login_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (cognito_sub) DO UPDATE SET
			email          = EXCLUDED.email,
			given_name     = EXCLUDED.given_name,
			family_name    = EXCLUDED.family_name,
			email_verified = EXCLUDED.email_verified,
			roles          = ARRAY(SELECT DISTINCT unnest(users.roles || EXCLUDED.roles)),
			last_login_at  = EXCLUDED.last_login_at,
			updated_at     = NOW()
		RETURNING ` + userColumns

	row := r.db.QueryRow(ctx, query,
		uuid.New().String(),
		identity.Subject,
		strings.ToLower(identity.Email),
		identity.GivenName,
		identity.FamilyName,
		identity.EmailVerified,
		pq.Array(roles),
		time.Now(),
	)

	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

// FindBySubject retrieves a user by identity-provider subject
func (r *UserRepository) FindBySubject(ctx context.Context, subject string) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE cognito_sub = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, subject))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// GrantRoleByEmail adds role to the user with email. It reports false when
// no user matched or the role was already present.
func (r *UserRepository) GrantRoleByEmail(ctx context.Context, email, role string) (bool, error) {
	query := `
		UPDATE users
		SET roles = array_append(roles, $2), updated_at = NOW()
		WHERE LOWER(email) = LOWER($1) AND NOT ($2 = ANY(roles))
	`

	tag, err := r.db.Exec(ctx, query, email, role)
	if err != nil {
		return false, fmt.Errorf("failed to grant role: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u     auth.User
		roles []string
	)
	err := row.Scan(
		&u.ID, &u.CognitoSub, &u.Email, &u.GivenName, &u.FamilyName, &u.EmailVerified,
		pq.Array(&roles), &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}
