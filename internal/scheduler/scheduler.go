package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-ingest/internal/config"
	"github.com/Kamar-Folarin/repo-ingest/internal/db"
	"github.com/Kamar-Folarin/repo-ingest/internal/errors"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
	"github.com/Kamar-Folarin/repo-ingest/internal/pipeline"
)

// ActorID is recorded as the actor of scheduled runs.
const ActorID = "system:scheduler"

// RunStarter starts pipeline runs.
type RunStarter interface {
	StartRun(ctx context.Context, repositoryID string, mode pipeline.Mode, actorID string) (*pipeline.RunHandle, error)
	IsRunning(repositoryID string) bool
}

// Scheduler re-runs the pipeline for repositories whose realtime sync is due.
type Scheduler struct {
	store  db.RepositoryStore
	runner RunStarter
	cfg    *config.SyncConfig
	logger *logrus.Logger
	now    func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewScheduler creates a new sync scheduler
func NewScheduler(store db.RepositoryStore, runner RunStarter, cfg *config.SyncConfig, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		runner: runner,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start begins ticking until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	cronLogger := cron.PrintfLogger(s.logger)
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	interval := s.cfg.EffectiveTickInterval()
	c.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.WithError(err).Error("Sync tick failed")
		}
	}))
	c.Start()
	s.cron = c

	s.logger.WithField("tick_interval", interval.String()).Info("Sync scheduler started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts ticking and waits for a running tick to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("Sync scheduler stopped")
}

// Tick starts a re-sync for every due repository without an active run and
// returns how many runs it started.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	repos, err := s.store.ListSyncEnabledRepositories(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	due := make([]*models.Repository, 0, len(repos))
	for _, repo := range repos {
		if repo.IsSyncDue(now) && !repo.ScanStatus.IsActive() {
			due = append(due, repo)
		}
	}
	// Most overdue first, so a start limit cannot starve anyone.
	sort.Slice(due, func(i, j int) bool {
		return due[i].LastScannedAt.Add(due[i].SyncInterval()).Before(due[j].LastScannedAt.Add(due[j].SyncInterval()))
	})

	started := 0
	for _, repo := range due {
		if s.cfg.MaxStartsPerTick > 0 && started >= s.cfg.MaxStartsPerTick {
			s.logger.WithField("remaining", len(due)-started).Info("Start limit reached, deferring to next tick")
			break
		}

		logger := s.logger.WithFields(logrus.Fields{
			"repository_id": repo.ID,
			"action":        "scheduled_sync",
		})
		if s.runner.IsRunning(repo.ID) {
			logger.Debug("Run already in progress, retrying next tick")
			continue
		}

		handle, err := s.runner.StartRun(ctx, repo.ID, pipeline.ModeResync, ActorID)
		switch {
		case err == nil:
			started++
			logger.WithField("run_id", handle.RunID).Info("Scheduled sync started")
		case errors.IsConflict(err):
			logger.Debug("Run already in progress, retrying next tick")
		default:
			logger.WithError(err).Error("Failed to start scheduled sync")
		}
	}
	return started, nil
}
