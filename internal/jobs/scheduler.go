// Package jobs provides the ancillary job scheduling facility: recurring
// scheduled backups and best-effort follow-up submissions after an operation
// starts. Nothing here is load-bearing for operation correctness; failures
// are logged and never propagated to the caller path.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MacJediWizard/bosun/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// FollowUp describes an ancillary job submitted after an operation has been
// accepted, e.g. a later status re-check of a started backup.
type FollowUp struct {
	DeploymentName string
	BackupGUID     string
	Operation      models.OperationKind
}

// Scheduler is the orchestrator's view of the job subsystem.
type Scheduler interface {
	// Submit hands off a follow-up job. Best effort: an error means the job
	// was not recorded, and the caller is expected to log and move on.
	Submit(ctx context.Context, job FollowUp) error
}

// FollowUpFunc is invoked when a submitted follow-up comes due.
type FollowUpFunc func(ctx context.Context, job FollowUp)

// CronScheduler runs recurring entries and deferred follow-ups on a single
// cron runner.
type CronScheduler struct {
	cron          *cron.Cron
	logger        zerolog.Logger
	followUpDelay time.Duration
	onFollowUp    FollowUpFunc

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool
}

// Config holds CronScheduler settings.
type Config struct {
	// FollowUpDelay is how long after submission a follow-up job runs.
	FollowUpDelay time.Duration

	// OnFollowUp is called when a follow-up comes due. Optional; when nil,
	// due follow-ups are only logged.
	OnFollowUp FollowUpFunc
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		FollowUpDelay: 10 * time.Minute,
	}
}

// NewCronScheduler creates a CronScheduler.
func NewCronScheduler(cfg Config, logger zerolog.Logger) *CronScheduler {
	if cfg.FollowUpDelay <= 0 {
		cfg.FollowUpDelay = DefaultConfig().FollowUpDelay
	}
	return &CronScheduler{
		cron:          cron.New(),
		logger:        logger.With().Str("component", "scheduler").Logger(),
		followUpDelay: cfg.FollowUpDelay,
		onFollowUp:    cfg.OnFollowUp,
		entries:       make(map[string]cron.EntryID),
	}
}

// Start begins running scheduled entries.
func (s *CronScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	s.running = true
	s.cron.Start()
	s.logger.Info().Msg("job scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *CronScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("job scheduler stopped")
}

// RegisterRecurring adds a named recurring job with a cron expression
// (standard five-field syntax). Replaces any existing entry with the same
// name.
func (s *CronScheduler) RegisterRecurring(name, spec string, run func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[name]; ok {
		s.cron.Remove(existing)
	}
	id, err := s.cron.AddFunc(spec, run)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	s.entries[name] = id
	s.logger.Info().Str("job", name).Str("spec", spec).Msg("recurring job registered")
	return nil
}

// Submit schedules a one-shot follow-up to run after the configured delay.
func (s *CronScheduler) Submit(_ context.Context, job FollowUp) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return errors.New("scheduler not running")
	}

	time.AfterFunc(s.followUpDelay, func() {
		log := s.logger.With().
			Str("deployment", job.DeploymentName).
			Str("backup_guid", job.BackupGUID).
			Str("operation", string(job.Operation)).
			Logger()
		log.Info().Msg("follow-up job due")
		if s.onFollowUp != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			s.onFollowUp(ctx, job)
		}
	})

	s.logger.Debug().
		Str("deployment", job.DeploymentName).
		Str("backup_guid", job.BackupGUID).
		Dur("delay", s.followUpDelay).
		Msg("follow-up job submitted")
	return nil
}
