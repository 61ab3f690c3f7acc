package backup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chronos-inventory/chronos/internal/model"
	"github.com/chronos-inventory/chronos/internal/store"
)

const runDateFormat = "2006-01-02"

// State represents what the scheduler is currently doing.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateError   State = "error"
)

// Status is broadcast whenever a scheduled run starts or finishes.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// StatusCallback is called whenever the scheduler state changes.
type StatusCallback func(Status)

// Scheduler fires automatic backups from persisted configuration and
// wall-clock time. Tick holds all of the decision logic and is driven by a
// minute ticker in production and directly with synthetic clocks in tests.
type Scheduler struct {
	mu      sync.Mutex
	running bool

	repo     *Repository
	settings *store.SettingsStore
	logger   *slog.Logger
	callback StatusCallback

	// now is the clock; tests substitute synthetic timestamps.
	now func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(repo *Repository, settings *store.SettingsStore, callback StatusCallback, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		repo:     repo,
		settings: settings,
		callback: callback,
		logger:   logger,
		now:      time.Now,
	}
}

// Start begins the background tick loop. Stop must be called to release it.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick evaluates whether an automatic backup is due and runs it if so. A tick
// arriving while a run is in progress is a no-op; a completed run earlier the
// same day makes every later tick that day a no-op.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	cfg, err := LoadAutoBackupConfig(s.settings)
	if err != nil {
		s.logger.Error("load scheduler config", "error", err)
		return
	}
	if !cfg.Enabled {
		return
	}

	now := s.now()
	today := now.Format(runDateFormat)
	if cfg.LastRunDate == today {
		return
	}
	if cfg.ScheduleMode == model.ScheduleWeekly && int(now.Weekday()) != cfg.Weekday {
		return
	}
	if now.Hour()*60+now.Minute() < cfg.Hour*60+cfg.Minute {
		return
	}

	s.notify(Status{State: StateRunning, InProgress: true})

	artifact, err := s.repo.Create(ctx, PrefixAuto)
	cfg.LastRunDate = today
	if err != nil {
		cfg.LastResult = fmt.Sprintf("error: %v", err)
		s.logger.Error("scheduled backup failed", "error", err)
	} else {
		cfg.LastResult = "ok"
		cfg.LastBackupName = artifact.Name
	}

	// Persist the outcome before sweeping so a crash between the two cannot
	// replay the run on restart.
	if err := saveRunState(s.settings, cfg); err != nil {
		s.logger.Error("persist scheduler run state", "error", err)
	}

	if artifact != nil {
		if _, err := s.repo.Sweep(ctx, cfg.RetentionDays); err != nil {
			s.logger.Warn("retention sweep failed", "error", err)
		}
		created := artifact.CreatedAt
		s.notify(Status{State: StateIdle, LastBackup: &created})
		return
	}
	s.notify(Status{State: StateError, Error: cfg.LastResult})
}

func (s *Scheduler) notify(status Status) {
	if s.callback != nil {
		s.callback(status)
	}
}
