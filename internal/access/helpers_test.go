package access_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/db/memory"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/MacJediWizard/hiveguard/internal/remote"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type remoteCall struct {
	Target   remote.Target
	Endpoint string
	Method   string
	Payload  any
}

type fakeRemote struct {
	mu     sync.Mutex
	calls  []remoteCall
	result remote.Result
	// during runs while the request is in flight.
	during func()
}

func (f *fakeRemote) Request(_ context.Context, target remote.Target, endpoint, method string, payload any) remote.Result {
	f.mu.Lock()
	f.calls = append(f.calls, remoteCall{Target: target, Endpoint: endpoint, Method: method, Payload: payload})
	during, result := f.during, f.result
	f.mu.Unlock()

	if during != nil {
		during()
	}
	return result
}

func (f *fakeRemote) Calls() []remoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remoteCall(nil), f.calls...)
}

func okResult(body string) remote.Result {
	return remote.Result{Success: true, StatusCode: 200, Body: json.RawMessage(body)}
}

type recorder struct {
	mu         sync.Mutex
	heartbeats map[string]int
	decisions  map[string]int
	overrides  map[string]int
	failOpen   int
}

func newRecorder() *recorder {
	return &recorder{
		heartbeats: make(map[string]int),
		decisions:  make(map[string]int),
		overrides:  make(map[string]int),
	}
}

func (r *recorder) HeartbeatResult(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats[result]++
}

func (r *recorder) AccessDecision(decision string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions[decision]++
}

func (r *recorder) FailOpen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOpen++
}

func (r *recorder) OverrideAction(action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[action]++
}

// faultyStore fails or panics on active-config lookups.
type faultyStore struct {
	*memory.Store
	err   error
	panic bool
}

func (f *faultyStore) ListActiveConfigs(ctx context.Context) ([]*models.ClientConfig, error) {
	if f.panic {
		panic("storage exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.Store.ListActiveConfigs(ctx)
}

// modeFlippingStore disables local admin mode right after the active
// configuration is read.
type modeFlippingStore struct {
	*memory.Store
}

func (m *modeFlippingStore) ListActiveConfigs(ctx context.Context) ([]*models.ClientConfig, error) {
	configs, err := m.Store.ListActiveConfigs(ctx)
	for _, c := range configs {
		_ = m.Store.SetLocalAdmin(ctx, c.ID, false, nil)
	}
	return configs, err
}

var errStorageDown = errors.New("storage unavailable")

type harness struct {
	store    *memory.Store
	remote   *fakeRemote
	recorder *recorder
	svc      *access.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, memory.New(), nil)
}

func newHarnessWithStore(t *testing.T, mem *memory.Store, store access.Store) *harness {
	t.Helper()
	if store == nil {
		store = mem
	}
	h := &harness{
		store:    mem,
		remote:   &fakeRemote{result: okResult(`{"success": true}`)},
		recorder: newRecorder(),
	}
	h.svc = access.NewService(access.ServiceConfig{
		Store:       store,
		Remote:      h.remote,
		Stats:       mem,
		Metrics:     h.recorder,
		HostVersion: "17.0",
		Logger:      zerolog.Nop(),
		Clock:       func() time.Time { return fixedNow },
	})
	return h
}

// seedActive stores an active configuration after applying mutate.
func (h *harness) seedActive(t *testing.T, mutate func(*models.ClientConfig)) *models.ClientConfig {
	t.Helper()
	cfg := models.NewClientConfig("https://hive.example.com", "acme", "s3cret")
	cfg.Active = true
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, h.store.CreateConfig(context.Background(), cfg))
	return cfg
}

func (h *harness) reload(t *testing.T, cfg *models.ClientConfig) *models.ClientConfig {
	t.Helper()
	got, err := h.store.GetConfig(context.Background(), cfg.ID)
	require.NoError(t, err)
	return got
}

func (h *harness) logsOfType(typ models.StatusType) []models.StatusLogEntry {
	var out []models.StatusLogEntry
	for _, e := range h.store.StatusLogs() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func plainUser() *models.Principal {
	return models.NewPrincipal("clerk")
}

func superuser() *models.Principal {
	p := models.NewPrincipal("admin")
	p.IsSuperuser = true
	return p
}
