package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/google/uuid"
	sqlite3 "modernc.org/sqlite/lib"
)

const userColumns = `id, login, password_hash, company, is_superuser, capabilities, created_at`

func scanPrincipal(row rowScanner) (*models.Principal, error) {
	var p models.Principal
	var id, caps, createdAt string
	if err := row.Scan(&id, &p.Login, &p.PasswordHash, &p.Company, &p.IsSuperuser, &caps, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse user created_at: %w", err)
	}
	var values []string
	if err := json.Unmarshal([]byte(caps), &values); err != nil {
		return nil, fmt.Errorf("parse capabilities: %w", err)
	}
	p.Capabilities = models.ParseCapabilities(values)
	return &p, nil
}

// CreatePrincipal inserts a user.
func (s *Store) CreatePrincipal(ctx context.Context, p *models.Principal) error {
	caps, err := marshalCapabilities(p)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID.String(), p.Login, p.PasswordHash, p.Company, p.IsSuperuser, caps, formatTime(p.CreatedAt))
	if err != nil {
		if constraintError(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE, "users.login") {
			return access.ErrLoginTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetPrincipalByID returns a user by ID.
func (s *Store) GetPrincipalByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	return s.getPrincipal(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
}

// GetPrincipalByLogin returns a user by login, case-insensitively.
func (s *Store) GetPrincipalByLogin(ctx context.Context, login string) (*models.Principal, error) {
	return s.getPrincipal(ctx, `SELECT `+userColumns+` FROM users WHERE login = ? COLLATE NOCASE`, login)
}

func (s *Store) getPrincipal(ctx context.Context, query string, arg any) (*models.Principal, error) {
	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, access.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return p, nil
}

// CountUsers returns the number of users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// CountCompanies returns the number of distinct non-empty companies.
func (s *Store) CountCompanies(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT company) FROM users WHERE company <> ''`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count companies: %w", err)
	}
	return n, nil
}
