package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/auth"
	"github.com/MacJediWizard/hiveguard/internal/config"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SeedResult reports what Seed wrote.
type SeedResult struct {
	Skipped    bool
	Principals int
	ConfigID   *uuid.UUID
}

// Seed applies a bootstrap file to an empty installation. Nothing is written
// when any client configuration already exists. Principals whose login is
// taken are left as they are.
func Seed(ctx context.Context, svc *access.Service, store Store, b *config.Bootstrap, logger zerolog.Logger) (SeedResult, error) {
	log := logger.With().Str("component", "bootstrap").Logger()

	existing, err := svc.ListConfigs(ctx)
	if err != nil {
		return SeedResult{}, fmt.Errorf("list configurations: %w", err)
	}
	if len(existing) > 0 {
		log.Debug().Int("configs", len(existing)).Msg("installation already configured, bootstrap skipped")
		return SeedResult{Skipped: true}, nil
	}

	var result SeedResult
	ids := make(map[string]uuid.UUID, len(b.Principals))
	for _, bp := range b.Principals {
		p, created, err := seedPrincipal(ctx, store, bp)
		if err != nil {
			return result, err
		}
		ids[p.Login] = p.ID
		if created {
			result.Principals++
		}
	}

	if b.Client == nil {
		log.Info().Int("principals", result.Principals).Msg("bootstrap applied without client configuration")
		return result, nil
	}

	cfg := models.NewClientConfig(b.Client.ServerURL, b.Client.ClientID, b.Client.APIKey)
	if b.Client.Name != "" {
		cfg.Name = b.Client.Name
	}
	if b.Client.HeartbeatInterval > 0 {
		cfg.HeartbeatInterval = b.Client.HeartbeatInterval
	}
	if b.Client.AutoReportStatus != nil {
		cfg.AutoReportStatus = *b.Client.AutoReportStatus
	}
	cfg.Active = true

	if err := svc.CreateConfig(ctx, access.SystemPrincipal, cfg); err != nil {
		return result, fmt.Errorf("create client configuration: %w", err)
	}
	result.ConfigID = &cfg.ID

	if b.Client.LocalAdminMode {
		var localAdmin *uuid.UUID
		if b.Client.LocalAdmin != "" {
			id := ids[b.Client.LocalAdmin]
			localAdmin = &id
		}
		if err := svc.SetLocalAdminMode(ctx, access.SystemPrincipal, cfg.ID, true, localAdmin); err != nil {
			return result, fmt.Errorf("enable local admin mode: %w", err)
		}
	}

	log.Info().
		Str("config_id", cfg.ID.String()).
		Int("principals", result.Principals).
		Bool("local_admin_mode", b.Client.LocalAdminMode).
		Msg("bootstrap applied")
	return result, nil
}

func seedPrincipal(ctx context.Context, store Store, bp config.BootstrapPrincipal) (*models.Principal, bool, error) {
	hash, err := auth.HashPassword(bp.Password)
	if err != nil {
		return nil, false, fmt.Errorf("principal %q: %w", bp.Login, err)
	}

	p := models.NewPrincipal(bp.Login, models.ParseCapabilities(bp.Capabilities)...)
	p.PasswordHash = hash
	p.Company = bp.Company
	p.IsSuperuser = bp.Superuser

	err = store.CreatePrincipal(ctx, p)
	if errors.Is(err, access.ErrLoginTaken) {
		existing, getErr := store.GetPrincipalByLogin(ctx, bp.Login)
		if getErr != nil {
			return nil, false, fmt.Errorf("load principal %q: %w", bp.Login, getErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create principal %q: %w", bp.Login, err)
	}
	return p, true, nil
}
