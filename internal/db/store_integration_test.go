//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *DB

func TestMain(m *testing.M) {
	if !dockerAvailable() {
		fmt.Println("Docker is not available, skipping integration tests")
		os.Exit(0)
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("hiveguard_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		log.Fatalf("failed to get connection string: %v", err)
	}

	cfg := DefaultConfig(connStr)
	cfg.MaxConns = 5
	cfg.MinConns = 1

	testDB, err = New(ctx, cfg, zerolog.Nop())
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := testDB.Migrate(ctx); err != nil {
		testDB.Close()
		_ = pgContainer.Terminate(ctx)
		log.Fatalf("failed to run migrations: %v", err)
	}

	code := m.Run()

	testDB.Close()
	_ = pgContainer.Terminate(ctx)

	os.Exit(code)
}

func dockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	_, err := testDB.Pool.Exec(context.Background(), `TRUNCATE TABLE status_logs, client_configs, users CASCADE`)
	require.NoError(t, err)
	return testDB
}

func TestStore_SingleActiveConfig(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := models.NewClientConfig("https://hive.example.com", "acme", "key")
	first.Active = true
	require.NoError(t, db.CreateConfig(ctx, first))

	second := models.NewClientConfig("https://hive.example.com", "beta", "key")
	second.Active = true
	assert.ErrorIs(t, db.CreateConfig(ctx, second), access.ErrActiveConfigExists)

	second.Active = false
	require.NoError(t, db.CreateConfig(ctx, second))
	assert.ErrorIs(t, db.SetConfigActive(ctx, second.ID, true), access.ErrActiveConfigExists)

	require.NoError(t, db.SetConfigActive(ctx, first.ID, false))
	require.NoError(t, db.SetConfigActive(ctx, second.ID, true))

	active, err := db.ListActiveConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	got, err := db.GetActiveConfigByClientID(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = db.GetActiveConfigByClientID(ctx, "acme")
	assert.ErrorIs(t, err, access.ErrNotFound)
}

func TestStore_ApplyAccessState(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	cfg := models.NewClientConfig("https://hive.example.com", "acme", "key")
	cfg.WarningMessage = "keep"
	require.NoError(t, db.CreateConfig(ctx, cfg))

	blocked := true
	reason := "Overdue"
	status := models.PaymentStatusOverdue
	amount := 42.5
	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, db.ApplyAccessState(ctx, cfg.ID, access.RemoteControl, models.AccessStatePatch{
		IsBlocked:         &blocked,
		BlockReason:       &reason,
		PaymentStatus:     &status,
		OutstandingAmount: &amount,
		LastContact:       &now,
	}))

	got, err := db.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsBlocked)
	assert.Equal(t, "Overdue", got.BlockReason)
	assert.Equal(t, "keep", got.WarningMessage)
	assert.Equal(t, models.PaymentStatusOverdue, got.PaymentStatus)
	assert.InDelta(t, 42.5, got.OutstandingAmount, 0.001)
	require.NotNil(t, got.LastContact)
	assert.True(t, got.LastContact.Equal(now))

	bad := models.PaymentStatus("bankrupt")
	var verr *models.ValidationError
	assert.ErrorAs(t, db.ApplyAccessState(ctx, cfg.ID, access.RemoteControl, models.AccessStatePatch{PaymentStatus: &bad}), &verr)

	assert.ErrorIs(t, db.ApplyAccessState(ctx, uuid.New(), access.RemoteControl, models.AccessStatePatch{IsBlocked: &blocked}), access.ErrNotFound)
}

func TestStore_LocalAdmin(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	admin := models.NewPrincipal("local")
	require.NoError(t, db.CreatePrincipal(ctx, admin))

	cfg := models.NewClientConfig("https://hive.example.com", "acme", "key")
	require.NoError(t, db.CreateConfig(ctx, cfg))

	require.NoError(t, db.SetLocalAdmin(ctx, cfg.ID, true, &admin.ID))
	got, err := db.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.True(t, got.LocalAdminMode)
	assert.True(t, got.IsLocalAdmin(admin.ID))

	unknown := uuid.New()
	var verr *models.ValidationError
	assert.ErrorAs(t, db.SetLocalAdmin(ctx, cfg.ID, true, &unknown), &verr)
}

func TestStore_StatusLogs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	cfg := models.NewClientConfig("https://hive.example.com", "acme", "key")
	require.NoError(t, db.CreateConfig(ctx, cfg))

	base := time.Now().UTC()
	for i, typ := range []models.StatusType{models.StatusTypeHeartbeat, models.StatusTypeBlock, models.StatusTypeHeartbeat} {
		e := models.NewStatusLogEntry(&cfg.ID, typ, models.SeverityInfo, models.SourceSystem, fmt.Sprintf("entry %d", i))
		e.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, db.AppendStatusLog(ctx, e))
	}
	require.NoError(t, db.AppendStatusLog(ctx, models.NewStatusLogEntry(nil, models.StatusTypeError, models.SeverityError, models.SourceEnforcement, "no config")))

	logs, err := db.ListStatusLogs(ctx, access.StatusLogFilter{ConfigID: &cfg.ID, Type: models.StatusTypeHeartbeat})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "entry 2", logs[0].Message)

	logs, err = db.ListStatusLogs(ctx, access.StatusLogFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestStore_Principals(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p := models.NewPrincipal("Alice", models.CapabilityHiveAdmin)
	p.Company = "Acme"
	require.NoError(t, db.CreatePrincipal(ctx, p))
	assert.ErrorIs(t, db.CreatePrincipal(ctx, models.NewPrincipal("alice")), access.ErrLoginTaken)

	q := models.NewPrincipal("bob")
	q.Company = "Acme"
	require.NoError(t, db.CreatePrincipal(ctx, q))

	got, err := db.GetPrincipalByLogin(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.True(t, got.Has(models.CapabilityHiveAdmin))

	users, err := db.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, users)

	companies, err := db.CountCompanies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, companies)

	_, err = db.GetPrincipalByID(ctx, uuid.New())
	assert.ErrorIs(t, err, access.ErrNotFound)
}

func TestDB_SchemaState(t *testing.T) {
	ctx := context.Background()

	// Migrate is idempotent against an up-to-date schema.
	require.NoError(t, testDB.Migrate(ctx))

	migrations, err := GetMigrations()
	require.NoError(t, err)
	version, err := testDB.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, version)

	pending, err := testDB.PendingMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.Contains(t, testDB.Health(), "total_conns")
}

func TestDB_ExecTxRollsBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p := models.NewPrincipal("rollback")
	err := db.ExecTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO users (id, login) VALUES ($1, $2)`, p.ID, p.Login); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.EqualError(t, err, "abort")

	_, err = db.GetPrincipalByLogin(ctx, "rollback")
	assert.ErrorIs(t, err, access.ErrNotFound)
}

func TestStore_ApplyAccessStateRespectsControlMode(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	cfg := models.NewClientConfig("https://hive.example.com", "acme", "key")
	require.NoError(t, db.CreateConfig(ctx, cfg))

	blocked := true
	hold := "manual hold"
	patch := models.AccessStatePatch{IsBlocked: &blocked, BlockReason: &hold}

	assert.ErrorIs(t, db.ApplyAccessState(ctx, cfg.ID, access.LocalControl, patch), access.ErrFeatureDisabled)

	require.NoError(t, db.SetLocalAdmin(ctx, cfg.ID, true, nil))
	require.NoError(t, db.ApplyAccessState(ctx, cfg.ID, access.LocalControl, patch))

	unblocked := false
	assert.ErrorIs(t, db.ApplyAccessState(ctx, cfg.ID, access.RemoteControl, models.AccessStatePatch{IsBlocked: &unblocked}),
		access.ErrRemoteControlSuspended)

	got, err := db.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsBlocked)
	assert.Equal(t, "manual hold", got.BlockReason)

	assert.ErrorIs(t, db.ApplyAccessState(ctx, uuid.New(), access.LocalControl, patch), access.ErrNotFound)
}
