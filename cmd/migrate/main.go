// Package main provides the PostgreSQL migration tool for hiveguard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/db"
	"github.com/rs/zerolog"
)

type options struct {
	dbURL  string
	status bool
	list   bool
	dryRun bool
}

func main() {
	var opts options
	flag.StringVar(&opts.dbURL, "db", "", "Database URL (or set DATABASE_URL env var)")
	flag.BoolVar(&opts.status, "version", false, "Show current schema version and pending migrations")
	flag.BoolVar(&opts.list, "list", false, "List embedded migrations")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Print pending migrations without applying them")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Str("component", "migrate").
		Logger()

	if err := run(opts, os.Stdout, logger); err != nil {
		logger.Error().Err(err).Msg("migrate failed")
		os.Exit(1)
	}
}

func run(opts options, out io.Writer, logger zerolog.Logger) error {
	if opts.list {
		migrations, err := db.GetMigrations()
		if err != nil {
			return err
		}
		printMigrations(out, "Embedded migrations:", migrations)
		return nil
	}

	url := opts.dbURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		return errors.New("database URL required: use -db flag or set DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg := db.DefaultConfig(url)
	cfg.MaxConns = 2
	cfg.MinConns = 1

	database, err := db.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer database.Close()

	version, err := database.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	pending, err := database.PendingMigrations(ctx)
	if err != nil {
		return err
	}

	if opts.status || opts.dryRun {
		fmt.Fprintf(out, "Current schema version: %d\n", version)
		if len(pending) == 0 {
			fmt.Fprintln(out, "Schema is up to date")
			return nil
		}
		printMigrations(out, "Pending migrations:", pending)
		if opts.dryRun {
			for _, m := range pending {
				fmt.Fprintf(out, "\n-- %s\n%s\n", m.Name, strings.TrimSpace(m.SQL))
			}
		}
		return nil
	}

	if len(pending) == 0 {
		logger.Info().Int("version", version).Msg("schema already up to date")
		return nil
	}

	logger.Info().Int("from", version).Int("pending", len(pending)).Msg("running database migrations")
	if err := database.Migrate(ctx); err != nil {
		return err
	}

	version, err = database.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	logger.Info().Int("version", version).Msg("migrations complete")
	return nil
}

func printMigrations(out io.Writer, title string, migrations []db.Migration) {
	if len(migrations) == 0 {
		fmt.Fprintln(out, "No migrations found")
		return
	}
	fmt.Fprintln(out, title)
	for _, m := range migrations {
		fmt.Fprintf(out, "  %03d: %s\n", m.Version, m.Name)
	}
}
