package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"cradle/internal/identity"
	id "cradle/pkg/domain"
	"cradle/pkg/platform/sentinel"
	txcontext "cradle/pkg/platform/tx"
)

// Postgres persists users in PostgreSQL. Statements join the caller's
// transaction when the context carries one, so business mutations and their
// audit entries commit together.
type Postgres struct {
	db    *sql.DB
	clock func() time.Time
}

type PostgresOption func(*Postgres)

// WithClock overrides timestamp defaulting. Tests only.
func WithClock(clock func() time.Time) PostgresOption {
	return func(p *Postgres) {
		if clock != nil {
			p.clock = clock
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	p := &Postgres{
		db:    db,
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return p.db
}

const userColumns = `id, tenant_id, email, full_name, roles, password_hash, active, verified, created_at, updated_at, last_login_at`

// Create inserts a new user. The tenant-scoped email uniqueness index is
// the arbiter: a conflicting insert affects zero rows and surfaces as
// sentinel.ErrAlreadyUsed.
func (p *Postgres) Create(ctx context.Context, user *identity.User) error {
	now := p.clock()
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := user.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, email) DO NOTHING
	`
	res, err := p.execer(ctx).ExecContext(ctx, query,
		user.ID.String(),
		user.TenantID.String(),
		user.Email,
		user.FullName,
		pq.Array(user.Roles),
		user.PasswordHash,
		user.Active,
		user.Verified,
		createdAt,
		updatedAt,
		nullableTime(user.LastLoginAt),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (p *Postgres) FindByID(ctx context.Context, tenantID id.TenantID, userID id.UserID) (*identity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND id = $2`
	user, err := scanUser(p.execer(ctx).QueryRowContext(ctx, query, tenantID.String(), userID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return user, nil
}

func (p *Postgres) FindByEmail(ctx context.Context, tenantID id.TenantID, email string) (*identity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND email = $2`
	user, err := scanUser(p.execer(ctx).QueryRowContext(ctx, query, tenantID.String(), email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return user, nil
}

func (p *Postgres) List(ctx context.Context, tenantID id.TenantID) ([]*identity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 ORDER BY created_at, email`
	rows, err := p.execer(ctx).QueryContext(ctx, query, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*identity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Update persists profile, role, and status changes. An email change that
// collides with another user in the tenant returns sentinel.ErrAlreadyUsed.
func (p *Postgres) Update(ctx context.Context, user *identity.User) error {
	ex := p.execer(ctx)

	var taken bool
	err := ex.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE tenant_id = $1 AND email = $2 AND id <> $3)`,
		user.TenantID.String(), user.Email, user.ID.String(),
	).Scan(&taken)
	if err != nil {
		return fmt.Errorf("check email uniqueness: %w", err)
	}
	if taken {
		return sentinel.ErrAlreadyUsed
	}

	updatedAt := user.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = p.clock()
	}

	query := `
		UPDATE users
		SET email = $3, full_name = $4, roles = $5, password_hash = $6,
			active = $7, verified = $8, updated_at = $9
		WHERE tenant_id = $1 AND id = $2
	`
	res, err := ex.ExecContext(ctx, query,
		user.TenantID.String(),
		user.ID.String(),
		user.Email,
		user.FullName,
		pq.Array(user.Roles),
		user.PasswordHash,
		user.Active,
		user.Verified,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// RecordLogin stamps the last login time without touching updated_at; a
// login is not a profile mutation.
func (p *Postgres) RecordLogin(ctx context.Context, tenantID id.TenantID, userID id.UserID, at time.Time) error {
	res, err := p.execer(ctx).ExecContext(ctx,
		`UPDATE users SET last_login_at = $3 WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), userID.String(), at,
	)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Deactivate clears the active flag.
func (p *Postgres) Deactivate(ctx context.Context, tenantID id.TenantID, userID id.UserID, at time.Time) error {
	res, err := p.execer(ctx).ExecContext(ctx,
		`UPDATE users SET active = FALSE, updated_at = $3 WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), userID.String(), at,
	)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*identity.User, error) {
	var (
		user      identity.User
		rawUserID string
		rawTenant string
		roles     pq.StringArray
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&rawUserID,
		&rawTenant,
		&user.Email,
		&user.FullName,
		&roles,
		&user.PasswordHash,
		&user.Active,
		&user.Verified,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
	)
	if err != nil {
		return nil, err
	}

	userID, err := id.ParseUserID(rawUserID)
	if err != nil {
		return nil, fmt.Errorf("stored user id: %w", err)
	}
	user.ID = userID
	user.TenantID = id.TenantID(rawTenant)
	user.Roles = []string(roles)
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	return &user, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
