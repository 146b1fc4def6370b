package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/db"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/MacJediWizard/hiveguard/internal/scheduler"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply storage migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return listMigrations()
			}

			ctx, cancel := commandContext()
			defer cancel()

			env, err := openEnv(ctx, true)
			if err != nil {
				return err
			}
			defer env.Close()

			if env.storage.Postgres == nil {
				fmt.Printf("Storage %s is migrated when opened. Nothing else to do.\n", env.storage.Driver)
				return nil
			}
			version, err := env.storage.Postgres.CurrentVersion(ctx)
			if err != nil {
				return fmt.Errorf("get schema version: %w", err)
			}
			fmt.Printf("Migrations complete. Schema version: %d\n", version)
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List PostgreSQL migrations without connecting")
	return cmd
}

func listMigrations() error {
	migrations, err := db.GetMigrations()
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	fmt.Println("Available migrations:")
	for _, m := range migrations {
		fmt.Printf("  %03d: %s\n", m.Version, m.Name)
	}
	return nil
}

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the access state of the active configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			env, err := openEnv(ctx, false)
			if err != nil {
				return err
			}
			defer env.Close()

			cfg, err := env.activeConfig(ctx)
			if err != nil {
				return err
			}
			snap := access.Snapshot(cfg)
			if asJSON {
				return printJSON(snap)
			}

			fmt.Printf("Configuration:  %s (%s)\n", cfg.Name, cfg.ID)
			fmt.Printf("Server:         %s\n", cfg.ServerURL)
			fmt.Printf("Client ID:      %s\n", cfg.ClientID)
			fmt.Printf("Heartbeat:      every %d min\n", cfg.HeartbeatInterval)
			fmt.Println()
			if snap.IsBlocked {
				fmt.Printf("Access:         BLOCKED (%s)\n", snap.BlockReason)
			} else {
				fmt.Println("Access:         allowed")
			}
			if snap.ShowWarning {
				fmt.Printf("Warning:        %s\n", cfg.DisplayWarningMessage())
			}
			fmt.Printf("Payment:        %s", snap.PaymentStatus)
			if snap.OutstandingAmount > 0 {
				fmt.Printf(" (%.2f outstanding)", snap.OutstandingAmount)
			}
			fmt.Println()
			if snap.LastServerContact != nil {
				fmt.Printf("Last contact:   %s\n", *snap.LastServerContact)
			} else {
				fmt.Println("Last contact:   never")
			}
			if snap.LocalAdminMode {
				fmt.Println("Local admin:    ON (remote control suspended)")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func newHeartbeatCmd() *cobra.Command {
	var due bool

	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Send a heartbeat to the remote authority",
		Long: `Send a heartbeat for the active configuration now.

With --due, run one scheduler pass instead: every configuration whose
interval has elapsed gets a heartbeat.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			env, err := openEnv(ctx, false)
			if err != nil {
				return err
			}
			defer env.Close()

			if due {
				return runDuePass(ctx, env)
			}

			cfg, err := env.activeConfig(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Sending heartbeat to %s... ", cfg.ServerURL)
			res := env.svc.SendHeartbeat(ctx, cfg.ID)
			if !res.Success {
				fmt.Println("FAILED")
				return fmt.Errorf("heartbeat failed (%s): %s", res.Kind, res.Error)
			}
			fmt.Println("OK")

			updated, err := env.svc.GetConfig(ctx, cfg.ID)
			if err != nil {
				return err
			}
			state := "allowed"
			if updated.IsBlocked {
				state = "BLOCKED"
			}
			fmt.Printf("Access: %s, payment: %s\n", state, updated.PaymentStatus)
			return nil
		},
	}

	cmd.Flags().BoolVar(&due, "due", false, "Run one scheduler pass over all configurations")
	return cmd
}

func runDuePass(ctx context.Context, env *cliEnv) error {
	s := scheduler.New(env.svc, scheduler.Config{Concurrency: env.cfg.SchedulerConcurrency}, env.logger)
	outcomes, err := s.RunNow(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONFIG\tACTION\tERROR")
	var failed int
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s\t%s\t%s\n", o.ConfigID, o.Action, o.Error)
		if o.Action == scheduler.ActionFailed {
			failed++
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d heartbeat(s) failed", failed)
	}
	return nil
}

func newLogsCmd() *cobra.Command {
	var (
		limit      int
		logType    string
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List status log entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			env, err := openEnv(ctx, false)
			if err != nil {
				return err
			}
			defer env.Close()

			filter := access.StatusLogFilter{Type: models.StatusType(logType), Limit: limit}
			if activeOnly {
				cfg, err := env.activeConfig(ctx)
				if err != nil {
					return err
				}
				filter.ConfigID = &cfg.ID
			}

			logs, err := env.svc.ListStatusLogs(ctx, filter)
			if err != nil {
				return fmt.Errorf("list status logs: %w", err)
			}
			if len(logs) == 0 {
				fmt.Println("No status log entries")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tSEVERITY\tSOURCE\tMESSAGE")
			for _, l := range logs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					l.CreatedAt.Local().Format(time.DateTime), l.Type, l.Severity, l.Source, l.Message)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries")
	cmd.Flags().StringVar(&logType, "type", "", "Filter by type (heartbeat, warning, block, system, error)")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only entries for the active configuration")
	return cmd
}

func newLocalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Local administrator overrides (requires local admin mode)",
		Long: `Apply local administrator overrides as the console superuser.

Overrides are refused unless local admin mode is enabled on the active
configuration. No request is sent to the remote authority.`,
	}

	cmd.AddCommand(newLocalBlockCmd(), newLocalUnblockCmd(), newLocalWarningCmd())
	return cmd
}

func newLocalBlockCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "block",
		Short: "Block access to the installation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocalBlock(true, reason)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Block reason shown to users")
	return cmd
}

func newLocalUnblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock",
		Short: "Lift a block",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocalBlock(false, "")
		},
	}
}

func runLocalBlock(blocked bool, reason string) error {
	ctx, cancel := commandContext()
	defer cancel()

	env, err := openEnv(ctx, false)
	if err != nil {
		return err
	}
	defer env.Close()

	cfg, err := env.svc.SetLocalBlock(ctx, access.SystemPrincipal, blocked, reason)
	if err != nil {
		return localError(err)
	}
	if cfg.IsBlocked {
		fmt.Printf("Access blocked: %s\n", cfg.BlockReason)
	} else {
		fmt.Println("Access unblocked")
	}
	return nil
}

func newLocalWarningCmd() *cobra.Command {
	var update access.WarningUpdate

	cmd := &cobra.Command{
		Use:   "warning",
		Short: "Set or clear the warning banner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			env, err := openEnv(ctx, false)
			if err != nil {
				return err
			}
			defer env.Close()

			if _, err := env.svc.SetLocalWarning(ctx, access.SystemPrincipal, update); err != nil {
				return localError(err)
			}
			if update.ShowWarning {
				fmt.Println("Warning banner enabled")
			} else {
				fmt.Println("Warning banner disabled")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&update.ShowWarning, "show", true, "Show the banner")
	cmd.Flags().StringVar(&update.Message, "message", "", "Banner message")
	cmd.Flags().StringVar(&update.PaymentStatus, "payment-status", string(models.PaymentStatusPaid),
		"Payment status ("+strings.Join(paymentStatuses(), ", ")+")")
	cmd.Flags().Float64Var(&update.OutstandingAmount, "amount", 0, "Outstanding amount")
	return cmd
}

func paymentStatuses() []string {
	return []string{
		string(models.PaymentStatusPaid),
		string(models.PaymentStatusPending),
		string(models.PaymentStatusOverdue),
		string(models.PaymentStatusBlocked),
	}
}

func localError(err error) error {
	switch {
	case errors.Is(err, access.ErrFeatureDisabled):
		return fmt.Errorf("%w: enable local admin mode on the active configuration first", err)
	case errors.Is(err, access.ErrNoActiveConfig):
		return fmt.Errorf("%w: create and activate a configuration first", err)
	}
	return err
}
