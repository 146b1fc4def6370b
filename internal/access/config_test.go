package access_test

import (
	"context"
	"testing"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateConfig(t *testing.T) {
	h := newHarness(t)

	cfg := models.NewClientConfig("https://hive.example.com", "acme", "key")
	assert.ErrorIs(t, h.svc.CreateConfig(context.Background(), plainUser(), cfg), access.ErrPermissionDenied)

	bad := models.NewClientConfig("ftp://hive.example.com", "acme", "key")
	var verr *models.ValidationError
	require.ErrorAs(t, h.svc.CreateConfig(context.Background(), superuser(), bad), &verr)
	assert.Equal(t, "server_url", verr.Field)

	cfg.Active = true
	require.NoError(t, h.svc.CreateConfig(context.Background(), superuser(), cfg))

	second := models.NewClientConfig("https://hive.example.com", "beta", "key")
	second.Active = true
	assert.ErrorIs(t, h.svc.CreateConfig(context.Background(), superuser(), second), access.ErrActiveConfigExists)
}

func TestActivateConfig_AtMostOneActive(t *testing.T) {
	h := newHarness(t)
	first := h.seedActive(t, nil)

	second := models.NewClientConfig("https://hive.example.com", "beta", "key")
	require.NoError(t, h.svc.CreateConfig(context.Background(), superuser(), second))

	assert.ErrorIs(t, h.svc.ActivateConfig(context.Background(), superuser(), second.ID), access.ErrActiveConfigExists)

	require.NoError(t, h.svc.DeactivateConfig(context.Background(), superuser(), first.ID))
	require.NoError(t, h.svc.ActivateConfig(context.Background(), superuser(), second.ID))

	active, err := h.svc.GetActiveConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestUpdateConfigSettings(t *testing.T) {
	h := newHarness(t)
	cfg := h.seedActive(t, func(c *models.ClientConfig) { c.IsBlocked = true })

	interval := 30
	url := "https://new.example.com"
	got, err := h.svc.UpdateConfigSettings(context.Background(), superuser(), cfg.ID, access.SettingsUpdate{
		ServerURL:         &url,
		HeartbeatInterval: &interval,
	})
	require.NoError(t, err)
	assert.Equal(t, url, got.ServerURL)
	assert.Equal(t, 30, got.HeartbeatInterval)
	assert.True(t, got.IsBlocked)

	zero := 0
	_, err = h.svc.UpdateConfigSettings(context.Background(), superuser(), cfg.ID, access.SettingsUpdate{HeartbeatInterval: &zero})
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = h.svc.UpdateConfigSettings(context.Background(), plainUser(), cfg.ID, access.SettingsUpdate{})
	assert.ErrorIs(t, err, access.ErrPermissionDenied)
}

func TestSetLocalAdminMode(t *testing.T) {
	h := newHarness(t)
	cfg := h.seedActive(t, nil)
	localAdmin := models.NewPrincipal("local")

	for _, p := range []*models.Principal{
		plainUser(),
		models.NewPrincipal("hive", models.CapabilityHiveAdmin),
		models.NewPrincipal("mgr", models.CapabilityERPManager),
	} {
		err := h.svc.SetLocalAdminMode(context.Background(), p, cfg.ID, true, &localAdmin.ID)
		assert.ErrorIs(t, err, access.ErrPermissionDenied, p.Login)
	}
	assert.False(t, h.reload(t, cfg).LocalAdminMode)

	sysAdmin := models.NewPrincipal("sys", models.CapabilitySystemAdmin)
	require.NoError(t, h.svc.SetLocalAdminMode(context.Background(), sysAdmin, cfg.ID, true, &localAdmin.ID))

	got := h.reload(t, cfg)
	assert.True(t, got.LocalAdminMode)
	assert.True(t, got.IsLocalAdmin(localAdmin.ID))

	entries := h.logsOfType(models.StatusTypeSystem)
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, models.SeverityInfo, last.Severity)
	assert.Equal(t, models.SourceLocalAdmin, last.Source)

	_, err := h.svc.SetLocalBlock(context.Background(), localAdmin, true, "")
	require.NoError(t, err)
}

func TestListStatusLogs(t *testing.T) {
	h := newHarness(t)
	cfg := h.seedActive(t, func(c *models.ClientConfig) { c.LocalAdminMode = true })

	_, err := h.svc.SetLocalBlock(context.Background(), superuser(), true, "")
	require.NoError(t, err)
	_, err = h.svc.SetLocalBlock(context.Background(), superuser(), false, "")
	require.NoError(t, err)

	logs, err := h.svc.ListStatusLogs(context.Background(), access.StatusLogFilter{ConfigID: &cfg.ID, Type: models.StatusTypeBlock})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.SeveritySuccess, logs[0].Severity, "newest first")

	logs, err = h.svc.ListStatusLogs(context.Background(), access.StatusLogFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
