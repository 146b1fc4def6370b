// Package scheduler runs the periodic heartbeat reconciliation pass.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/MacJediWizard/hiveguard/internal/remote"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Per-configuration actions taken by a pass.
const (
	ActionSkippedInactive   = "skipped_inactive"
	ActionSkippedLocalAdmin = "skipped_local_admin"
	ActionSkippedIncomplete = "skipped_incomplete"
	ActionSkippedNotDue     = "skipped_not_due"
	ActionSkippedLocked     = "skipped_locked"
	ActionSkippedInFlight   = "skipped_in_flight"
	ActionSent              = "sent"
	ActionFailed            = "failed"
)

const (
	// DefaultTick is how often a pass runs when no tick is configured.
	DefaultTick = 5 * time.Minute
	// DefaultConcurrency bounds parallel heartbeats within one pass.
	DefaultConcurrency = 4
	// CallTimeout bounds a single heartbeat exchange.
	CallTimeout = 30 * time.Second
)

// Heartbeater loads configurations and sends heartbeats for them.
type Heartbeater interface {
	ListConfigs(ctx context.Context) ([]*models.ClientConfig, error)
	SendHeartbeat(ctx context.Context, configID uuid.UUID) remote.Result
}

// PassObserver receives pass timings and outcomes.
type PassObserver interface {
	ObservePass(d time.Duration, actions []string)
}

// Outcome is the result of one configuration in a pass.
type Outcome struct {
	ConfigID uuid.UUID
	Action   string
	Error    string
}

// Config holds scheduler settings.
type Config struct {
	Tick        time.Duration
	Concurrency int
	Locker      Locker
	Observer    PassObserver
	Clock       func() time.Time
}

// Scheduler triggers heartbeats for due configurations on a fixed tick.
type Scheduler struct {
	heartbeater Heartbeater
	locker      Locker
	observer    PassObserver
	tick        time.Duration
	concurrency int
	now         func() time.Time
	cron        *cron.Cron
	logger      zerolog.Logger
	mu          sync.Mutex
	running     bool

	flightMu sync.Mutex
	inFlight map[uuid.UUID]struct{} // configurations with a heartbeat underway
}

// New creates a new reconciliation scheduler.
func New(heartbeater Heartbeater, cfg Config, logger zerolog.Logger) *Scheduler {
	s := &Scheduler{
		heartbeater: heartbeater,
		locker:      cfg.Locker,
		observer:    cfg.Observer,
		tick:        cfg.Tick,
		concurrency: cfg.Concurrency,
		now:         cfg.Clock,
		inFlight:    make(map[uuid.UUID]struct{}),
		logger:      logger.With().Str("component", "scheduler").Logger(),
	}
	cl := cronLogger{logger: s.logger}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl)))
	if s.tick <= 0 {
		s.tick = DefaultTick
	}
	if s.concurrency < 1 {
		s.concurrency = DefaultConcurrency
	}
	if s.locker == nil {
		s.locker = NopLocker{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Start begins running passes every tick.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler already running")
	}

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.tick), s.runScheduled); err != nil {
		return fmt.Errorf("schedule heartbeat pass: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Dur("tick", s.tick).
		Int("concurrency", s.concurrency).
		Msg("scheduler started")
	return nil
}

// Stop stops the scheduler. The returned context is done once a running
// pass has finished.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping scheduler")
	return s.cron.Stop()
}

func (s *Scheduler) runScheduled() {
	if _, err := s.RunNow(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("heartbeat pass failed")
	}
}

// RunNow loads every configuration from storage and runs one pass.
func (s *Scheduler) RunNow(ctx context.Context) ([]Outcome, error) {
	configs, err := s.heartbeater.ListConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list configurations: %w", err)
	}
	return s.RunPass(ctx, configs, s.now()), nil
}

// RunPass evaluates every configuration against now and sends heartbeats
// for those that are due. Outcomes are returned in input order.
func (s *Scheduler) RunPass(ctx context.Context, configs []*models.ClientConfig, now time.Time) []Outcome {
	start := time.Now()
	outcomes := make([]Outcome, len(configs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, cfg := range configs {
		outcomes[i] = Outcome{ConfigID: cfg.ID}
		if action := precheck(cfg, now); action != "" {
			outcomes[i].Action = action
			continue
		}

		g.Go(func() error {
			outcomes[i] = s.runOne(gctx, cfg)
			return nil
		})
	}
	_ = g.Wait()

	actions := make([]string, len(outcomes))
	sent, failed := 0, 0
	for i, o := range outcomes {
		actions[i] = o.Action
		switch o.Action {
		case ActionSent:
			sent++
		case ActionFailed:
			failed++
		}
	}
	elapsed := time.Since(start)
	if s.observer != nil {
		s.observer.ObservePass(elapsed, actions)
	}

	s.logger.Debug().
		Int("configs", len(configs)).
		Int("sent", sent).
		Int("failed", failed).
		Dur("duration", elapsed).
		Msg("heartbeat pass completed")
	return outcomes
}

// precheck returns the skip action for cfg, or "" when a heartbeat is due.
func precheck(cfg *models.ClientConfig, now time.Time) string {
	switch {
	case !cfg.Active:
		return ActionSkippedInactive
	case cfg.LocalAdminMode:
		return ActionSkippedLocalAdmin
	case !cfg.HasRemoteCredentials():
		return ActionSkippedIncomplete
	case !cfg.HeartbeatDue(now):
		return ActionSkippedNotDue
	}
	return ""
}

func (s *Scheduler) runOne(ctx context.Context, cfg *models.ClientConfig) (out Outcome) {
	out = Outcome{ConfigID: cfg.ID}
	logger := s.logger.With().Str("config_id", cfg.ID.String()).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("heartbeat panicked")
			out.Action = ActionFailed
			out.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	if !s.claim(cfg.ID) {
		logger.Debug().Msg("heartbeat already in flight, skipping")
		out.Action = ActionSkippedInFlight
		return out
	}
	defer s.release(cfg.ID)

	callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	ttl := CallTimeout + 5*time.Second
	lock, acquired, err := s.locker.Acquire(callCtx, cfg.ID, ttl)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to acquire heartbeat lock")
		out.Action = ActionSkippedLocked
		out.Error = err.Error()
		return out
	}
	if !acquired {
		out.Action = ActionSkippedLocked
		return out
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("failed to release heartbeat lock")
		}
	}()

	res := s.heartbeater.SendHeartbeat(callCtx, cfg.ID)
	if !res.Success {
		out.Action = ActionFailed
		out.Error = res.Error
		return out
	}
	out.Action = ActionSent
	return out
}

// claim marks id as in flight. It reports false if a heartbeat for id is
// already running in this process, whether from a scheduled pass or RunNow.
func (s *Scheduler) claim(id uuid.UUID) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id uuid.UUID) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	delete(s.inFlight, id)
}

// cronLogger routes robfig/cron messages, including skipped overlapping
// ticks, through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
