// Package app wires storage, redis and bootstrap seeding for the hiveguard
// binaries.
package app

import (
	"context"
	"fmt"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/auth"
	"github.com/MacJediWizard/hiveguard/internal/config"
	"github.com/MacJediWizard/hiveguard/internal/db"
	"github.com/MacJediWizard/hiveguard/internal/db/memory"
	"github.com/MacJediWizard/hiveguard/internal/db/sqlite"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/rs/zerolog"
)

// Store is the storage surface shared by the server and the CLI.
type Store interface {
	access.Store
	access.InstallStats
	auth.PrincipalStore
	CreatePrincipal(ctx context.Context, p *models.Principal) error
}

var (
	_ Store = (*db.DB)(nil)
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*memory.Store)(nil)
)

// Pinger probes a storage backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Storage is an opened storage backend.
type Storage struct {
	Store  Store
	Driver config.StorageDriver
	// Pinger is nil for the memory driver.
	Pinger Pinger
	// Postgres is set only for the postgres driver.
	Postgres *db.DB
	close    func()
}

// Close releases the backend.
func (s *Storage) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStorage opens the backend selected by cfg.StorageDriver. PostgreSQL
// migrations run when migrate is true; SQLite always migrates on open.
func OpenStorage(ctx context.Context, cfg config.ServerConfig, migrate bool, logger zerolog.Logger) (*Storage, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if migrate {
			if err := database.Migrate(ctx); err != nil {
				database.Close()
				return nil, fmt.Errorf("run database migrations: %w", err)
			}
		}
		return &Storage{Store: database, Driver: cfg.StorageDriver, Pinger: database, Postgres: database, close: database.Close}, nil

	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return &Storage{
			Store:  store,
			Driver: cfg.StorageDriver,
			Pinger: store,
			close: func() {
				if err := store.Close(); err != nil {
					logger.Warn().Err(err).Msg("failed to close sqlite store")
				}
			},
		}, nil

	case config.StorageMemory:
		logger.Warn().Msg("using in-memory storage, state is lost on restart")
		return &Storage{Store: memory.New(), Driver: cfg.StorageDriver}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}
