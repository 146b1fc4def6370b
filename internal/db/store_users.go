package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, login, password_hash, company, is_superuser, capabilities, created_at`

func scanPrincipal(row pgx.Row) (*models.Principal, error) {
	var p models.Principal
	var caps []string
	if err := row.Scan(&p.ID, &p.Login, &p.PasswordHash, &p.Company, &p.IsSuperuser, &caps, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Capabilities = models.ParseCapabilities(caps)
	return &p, nil
}

// CreatePrincipal inserts a user.
func (db *DB) CreatePrincipal(ctx context.Context, p *models.Principal) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Login, p.PasswordHash, p.Company, p.IsSuperuser, p.CapabilityStrings(), p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return access.ErrLoginTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetPrincipalByID returns a user by ID.
func (db *DB) GetPrincipalByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	p, err := scanPrincipal(db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, access.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return p, nil
}

// GetPrincipalByLogin returns a user by login, case-insensitively.
func (db *DB) GetPrincipalByLogin(ctx context.Context, login string) (*models.Principal, error) {
	p, err := scanPrincipal(db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(login) = LOWER($1)`, login))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, access.ErrNotFound
		}
		return nil, fmt.Errorf("get user by login: %w", err)
	}
	return p, nil
}

// CountUsers returns the number of users.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// CountCompanies returns the number of distinct non-empty companies.
func (db *DB) CountCompanies(ctx context.Context) (int, error) {
	var n int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(DISTINCT company) FROM users WHERE company <> ''`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count companies: %w", err)
	}
	return n, nil
}
