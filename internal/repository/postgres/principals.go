package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/moodwell/internal/core/domain"
	"github.com/arklim/moodwell/internal/core/port"
	"github.com/arklim/moodwell/internal/repository"
)

const (
	principalsTable    = "identity.principals"
	uniqueViolationSQL = "23505"
)

var principalColumns = []string{
	"id",
	"email",
	"password_hash",
	"name",
	"username",
	"phone",
	"bio",
	"address",
	"picture",
	"role",
	"refresh_token",
	"notifications",
	"account_visibility",
	"account_status",
	"created_at",
}

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PrincipalRepository implements port.PrincipalRepository backed by PostgreSQL.
type PrincipalRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPrincipalRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewPrincipalRepository(exec pgExecutor) *PrincipalRepository {
	return &PrincipalRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a principal. A taken email or username yields repository.ErrConflict.
func (r *PrincipalRepository) Create(ctx context.Context, p domain.Principal) error {
	stmt, args, err := r.builder.Insert(principalsTable).
		Columns(principalColumns...).
		Values(
			p.ID,
			p.Email,
			p.PasswordHash,
			p.Name,
			nullableString(p.Username),
			p.Phone,
			p.Bio,
			p.Address,
			p.Picture,
			p.Role,
			nullableString(p.RefreshToken),
			p.Notifications,
			string(p.AccountVisibility),
			string(p.AccountStatus),
			p.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert principal sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationSQL {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert principal: %w", err)
	}

	return nil
}

// GetByID retrieves a principal by identifier.
func (r *PrincipalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves a principal by exact email.
func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return r.getOne(ctx, squirrel.Eq{"email": email})
}

// SetRefreshToken stores the outstanding refresh token. An empty token clears it.
func (r *PrincipalRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	stmt, args, err := r.builder.Update(principalsTable).
		Set("refresh_token", nullableString(token)).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update refresh token sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdatePasswordByEmail replaces the password hash of the principal owning email.
func (r *PrincipalRepository) UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) error {
	stmt, args, err := r.builder.Update(principalsTable).
		Set("password_hash", passwordHash).
		Where(squirrel.Eq{"email": email}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *PrincipalRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.Principal, error) {
	stmt, args, err := r.builder.
		Select(principalColumns...).
		From(principalsTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select principal sql: %w", err)
	}

	var (
		p            domain.Principal
		username     *string
		refreshToken *string
		visibility   string
		status       string
	)

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&p.ID,
		&p.Email,
		&p.PasswordHash,
		&p.Name,
		&username,
		&p.Phone,
		&p.Bio,
		&p.Address,
		&p.Picture,
		&p.Role,
		&refreshToken,
		&p.Notifications,
		&visibility,
		&status,
		&p.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}

	if username != nil {
		p.Username = *username
	}
	if refreshToken != nil {
		p.RefreshToken = *refreshToken
	}
	p.AccountVisibility = domain.AccountVisibility(visibility)
	p.AccountStatus = domain.AccountStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()

	return &p, nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

var _ port.PrincipalRepository = (*PrincipalRepository)(nil)
