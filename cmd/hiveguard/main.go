// Package main is the entrypoint for the hiveguard console CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/app"
	"github.com/MacJediWizard/hiveguard/internal/config"
	"github.com/MacJediWizard/hiveguard/internal/httpclient"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/MacJediWizard/hiveguard/internal/remote"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

var verbose bool

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hiveguard",
		Short: "Console tooling for the hiveguard access gate",
		Long: `hiveguard inspects and drives the access state of this installation.

Storage is selected with the same environment variables as the server
(STORAGE_DRIVER, DATABASE_URL, SQLITE_PATH).`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(
		newVersionCmd(),
		newMigrateCmd(),
		newStatusCmd(),
		newHeartbeatCmd(),
		newLogsCmd(),
		newLocalCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hiveguard %s\n", Version)
			fmt.Printf("  Commit:        %s\n", Commit)
			fmt.Printf("  Built:         %s\n", BuildDate)
			fmt.Printf("  Addon version: %s\n", access.AddonVersion)
			fmt.Printf("  Go version:    %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// cliEnv is the storage and access engine for one command.
type cliEnv struct {
	cfg     config.ServerConfig
	logger  zerolog.Logger
	storage *app.Storage
	svc     *access.Service
}

func openEnv(ctx context.Context, migrate bool) (*cliEnv, error) {
	cfg := config.LoadServerConfig()
	if cfg.StorageDriver == config.StorageMemory {
		return nil, errors.New("the memory storage driver has no state to inspect from the console")
	}
	if err := cfg.ValidateStorage(); err != nil {
		return nil, err
	}

	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()

	storage, err := app.OpenStorage(ctx, cfg, migrate, logger)
	if err != nil {
		return nil, err
	}

	httpClient, err := httpclient.New(httpclient.Options{
		Timeout:   remote.Timeout,
		Proxy:     &cfg.Proxy,
		UserAgent: "hiveguard/" + Version,
	})
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("configure outbound HTTP client: %w", err)
	}

	svc := access.NewService(access.ServiceConfig{
		Store:       storage.Store,
		Remote:      remote.NewClient(httpClient, logger),
		Stats:       storage.Store,
		HostVersion: cfg.HostVersion,
		Logger:      logger,
	})
	return &cliEnv{cfg: cfg, logger: logger, storage: storage, svc: svc}, nil
}

func (e *cliEnv) Close() {
	e.storage.Close()
}

// activeConfig returns the active configuration, or ErrNoActiveConfig.
func (e *cliEnv) activeConfig(ctx context.Context) (*models.ClientConfig, error) {
	cfg, err := e.svc.GetActiveConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active configuration: %w", err)
	}
	if cfg == nil {
		return nil, access.ErrNoActiveConfig
	}
	return cfg, nil
}

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
