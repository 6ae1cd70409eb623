package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-ingest/internal/audit"
	"github.com/Kamar-Folarin/repo-ingest/internal/config"
	"github.com/Kamar-Folarin/repo-ingest/internal/errors"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
)

// Failure reasons recorded in details.reason of a FAILED repository.
const (
	ReasonStageError  = "stage_error"
	ReasonTimeout     = "timeout"
	ReasonCancelled   = "cancelled"
	ReasonInterrupted = "interrupted"
)

const writeTimeout = 10 * time.Second

// RepositoryReader is the read side the runner needs.
type RepositoryReader interface {
	GetRepository(ctx context.Context, id string) (*models.Repository, error)
	ListActiveRepositories(ctx context.Context) ([]*models.Repository, error)
}

// StatusWriter persists lifecycle updates.
type StatusWriter interface {
	UpdateRepositoryStatus(ctx context.Context, id string, update models.StatusUpdate) error
}

// Outcome is the terminal result of a run.
type Outcome struct {
	Status      models.ScanStatus
	Reason      string
	FailedStage models.ScanStatus
	Err         error
}

// RunHandle identifies a started run.
type RunHandle struct {
	RunID        string
	RepositoryID string
	Mode         Mode
	EntryStage   models.ScanStatus
	StartedAt    time.Time

	done    chan struct{}
	outcome Outcome
}

// Done is closed once the terminal status is committed and the run lock released.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Outcome returns the terminal result. Only valid after Done is closed.
func (h *RunHandle) Outcome() Outcome {
	<-h.done
	return h.outcome
}

type run struct {
	handle *RunHandle
	cancel context.CancelFunc

	mu        sync.Mutex
	stopCause string
}

func (r *run) stop(reason string) {
	r.mu.Lock()
	if r.stopCause == "" {
		r.stopCause = reason
	}
	r.mu.Unlock()
	r.cancel()
}

func (r *run) stopReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCause
}

// stageError carries the failure classification out of a stage.
type stageError struct {
	reason string
	err    error
}

func (e *stageError) Error() string {
	return e.err.Error()
}

func (e *stageError) Unwrap() error {
	return e.err
}

// Runner drives repositories through the ingestion stages. It holds one
// run lock per repository; the lock is released only after the terminal
// status is committed.
type Runner struct {
	reader    RepositoryReader
	writer    StatusWriter
	executors Executors
	auditor   audit.Auditor
	cfg       *config.PipelineConfig
	logger    *logrus.Logger
	now       func() time.Time

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup
}

// NewRunner creates a new pipeline runner
func NewRunner(
	reader RepositoryReader,
	writer StatusWriter,
	executors Executors,
	auditor audit.Auditor,
	cfg *config.PipelineConfig,
	logger *logrus.Logger,
) *Runner {
	return &Runner{
		reader:    reader,
		writer:    writer,
		executors: executors,
		auditor:   auditor,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		runs:      make(map[string]*run),
	}
}

// StartRun acquires the repository's run lock, commits the entry stage with
// progress 0 and executes the remaining stages in the background.
func (r *Runner) StartRun(ctx context.Context, repositoryID string, mode Mode, actorID string) (*RunHandle, error) {
	logger := r.logger.WithFields(logrus.Fields{
		"repository_id": repositoryID,
		"mode":          mode,
		"action":        "start_run",
	})

	repo, err := r.reader.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}

	entry := mode.EntryStage()
	stages, err := models.StagesFrom(entry)
	if err != nil {
		return nil, errors.NewInternalError("invalid entry stage", err)
	}

	handle := &RunHandle{
		RunID:        uuid.NewString(),
		RepositoryID: repositoryID,
		Mode:         mode,
		EntryStage:   entry,
		StartedAt:    r.now(),
		done:         make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.NewInvalidStateError("runner is shutting down", nil)
	}
	if _, exists := r.runs[repositoryID]; exists {
		r.mu.Unlock()
		logger.Warn("Run already in progress")
		return nil, errors.NewRunInProgressError(repositoryID)
	}
	runCtx, cancel := context.WithTimeout(context.Background(), r.cfg.MaxRunDuration.Duration())
	current := &run{handle: handle, cancel: cancel}
	r.runs[repositoryID] = current
	r.wg.Add(1)
	r.mu.Unlock()

	from := repo.ScanStatus
	if from.IsActive() {
		// Left behind by a run this process does not own.
		logger.WithField("stale_status", from).Warn("Repository has an active status without a live run")
		from = models.StatusFailed
	}
	if err := models.Transition(from, entry); err != nil {
		r.release(current)
		return nil, errors.NewInvalidStateError("cannot start run", err)
	}

	if err := r.persist(repositoryID, models.StatusUpdate{
		ScanStatus:  entry,
		Progress:    0,
		CurrentStep: entry.Label(),
		Details:     models.Details{"runId": handle.RunID, "mode": string(mode)},
	}); err != nil {
		r.release(current)
		logger.WithError(err).Error("Failed to persist entry stage")
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	r.auditor.Record(ctx, models.AuditEvent{
		Action:       models.AuditRunStarted,
		RepositoryID: repositoryID,
		ActorID:      actorID,
		NamespaceIDs: repo.NamespaceIDs,
		Details:      models.Details{"runId": handle.RunID, "mode": string(mode), "entryStage": string(entry)},
	})

	target := Target{
		RunID:         handle.RunID,
		RepositoryID:  repo.ID,
		NamespaceIDs:  append([]string(nil), repo.NamespaceIDs...),
		GitURL:        repo.GitURL,
		DefaultBranch: repo.DefaultBranch,
		SourceDir:     r.sourceDir(repo),
		ObjectPrefix:  repo.ID + "/",
	}

	logger.WithField("run_id", handle.RunID).Info("Pipeline run started")
	go r.execute(runCtx, current, target, stages)
	return handle, nil
}

func (r *Runner) sourceDir(repo *models.Repository) string {
	if repo.IsLocalUpload() {
		return filepath.Join(r.cfg.UploadRoot, repo.UploadID())
	}
	return filepath.Join(r.cfg.WorkRoot, repo.ID)
}

func (r *Runner) execute(ctx context.Context, current *run, target Target, stages []models.ScanStatus) {
	handle := current.handle
	logger := r.logger.WithFields(logrus.Fields{
		"repository_id": handle.RepositoryID,
		"run_id":        handle.RunID,
	})
	defer current.cancel()

	ranges := stageRanges(stages, r.cfg)
	tracker := &progressTracker{status: handle.EntryStage}

	var failure *stageError
	var failedStage models.ScanStatus
	for i, stage := range stages {
		if i > 0 {
			if err := ctx.Err(); err != nil {
				failure, failedStage = r.classify(ctx, current, err), tracker.status
				break
			}
			if err := r.advance(tracker, handle, stage, ranges[stage].lo, nil); err != nil {
				failure, failedStage = &stageError{reason: ReasonStageError, err: err}, stage
				break
			}
		}

		logger.WithField("stage", stage).Info("Executing stage")
		if err := r.runStage(ctx, current, tracker, stage, target, ranges[stage]); err != nil {
			failure, failedStage = r.classify(ctx, current, err), stage
			break
		}
	}

	var outcome Outcome
	if failure == nil {
		outcome = r.complete(tracker, handle)
	} else {
		logger.WithError(failure.err).WithFields(logrus.Fields{
			"stage":  failedStage,
			"reason": failure.reason,
		}).Error("Pipeline run failed")
		outcome = r.fail(tracker, handle, failedStage, failure)
	}

	handle.outcome = outcome
	r.release(current)
}

// runStage runs one executor while watching for progress, inactivity and
// cancellation.
func (r *Runner) runStage(ctx context.Context, current *run, tracker *progressTracker, stage models.ScanStatus, target Target, rng progressRange) error {
	executor, ok := r.executors[stage]
	if !ok {
		return &stageError{reason: ReasonStageError, err: fmt.Errorf("no executor registered for stage %s", stage)}
	}

	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reports := make(chan Report, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- executor.Execute(stageCtx, target, func(rep Report) {
			select {
			case reports <- rep:
			case <-stageCtx.Done():
			}
		})
	}()

	apply := func(rep Report) {
		if rep.Heartbeat {
			return
		}
		if err := r.advance(tracker, current.handle, stage, rng.scale(rep.Percent), reportDetails(current.handle, rep)); err != nil {
			r.logger.WithError(err).WithField("repository_id", target.RepositoryID).Warn("Failed to persist progress")
		}
	}

	timeout := r.cfg.TimeoutFor(string(stage))
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case rep := <-reports:
			apply(rep)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)
		case err := <-errc:
			for drained := false; !drained; {
				select {
				case rep := <-reports:
					apply(rep)
				default:
					drained = true
				}
			}
			if err != nil {
				return fmt.Errorf("stage %s: %w", stage, err)
			}
			return nil
		case <-timer.C:
			return &stageError{
				reason: ReasonTimeout,
				err:    fmt.Errorf("stage %s reported no progress for %s", stage, timeout),
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func reportDetails(handle *RunHandle, rep Report) models.Details {
	details := rep.Detail.Clone()
	if details == nil {
		details = models.Details{}
	}
	details["runId"] = handle.RunID
	details["mode"] = string(handle.Mode)
	if rep.Message != "" {
		details["message"] = rep.Message
	}
	return details
}

func (r *Runner) classify(ctx context.Context, current *run, err error) *stageError {
	switch current.stopReason() {
	case ReasonCancelled:
		return &stageError{reason: ReasonCancelled, err: fmt.Errorf("run cancelled")}
	case ReasonInterrupted:
		return &stageError{reason: ReasonInterrupted, err: fmt.Errorf("run interrupted by shutdown")}
	}
	if se, ok := err.(*stageError); ok {
		return se
	}
	if ctx.Err() == context.DeadlineExceeded {
		return &stageError{reason: ReasonTimeout, err: fmt.Errorf("run exceeded %s", r.cfg.MaxRunDuration.Duration())}
	}
	return &stageError{reason: ReasonStageError, err: err}
}

// progressTracker is the run's view of what it last committed.
type progressTracker struct {
	status   models.ScanStatus
	progress int
}

// advance commits a status for the run, keeping progress monotonic and
// moving the status only along legal edges.
func (r *Runner) advance(t *progressTracker, handle *RunHandle, stage models.ScanStatus, progress int, details models.Details) error {
	if stage != t.status {
		if err := models.Transition(t.status, stage); err != nil {
			return err
		}
	}
	if progress < t.progress {
		progress = t.progress
	}
	if progress > 99 {
		progress = 99
	}
	if details == nil {
		details = models.Details{"runId": handle.RunID, "mode": string(handle.Mode)}
	}

	if err := r.persist(handle.RepositoryID, models.StatusUpdate{
		ScanStatus:  stage,
		Progress:    progress,
		CurrentStep: stage.Label(),
		Details:     details,
	}); err != nil {
		return err
	}
	t.status, t.progress = stage, progress
	return nil
}

func (r *Runner) complete(t *progressTracker, handle *RunHandle) Outcome {
	now := r.now()
	details := models.Details{
		"runId":      handle.RunID,
		"mode":       string(handle.Mode),
		"durationMs": now.Sub(handle.StartedAt).Milliseconds(),
	}
	err := r.persistTerminal(handle.RepositoryID, models.StatusUpdate{
		ScanStatus:    models.StatusCompleted,
		Progress:      100,
		CurrentStep:   models.StatusCompleted.Label(),
		Details:       details,
		LastScannedAt: &now,
	})
	if err != nil {
		return Outcome{Status: models.StatusFailed, Reason: ReasonStageError, Err: err}
	}
	t.status, t.progress = models.StatusCompleted, 100

	r.auditor.Record(context.Background(), models.AuditEvent{
		Action:       models.AuditRunCompleted,
		RepositoryID: handle.RepositoryID,
		Details:      details,
	})
	r.logger.WithFields(logrus.Fields{
		"repository_id": handle.RepositoryID,
		"run_id":        handle.RunID,
	}).Info("Pipeline run completed")
	return Outcome{Status: models.StatusCompleted}
}

func (r *Runner) fail(t *progressTracker, handle *RunHandle, stage models.ScanStatus, failure *stageError) Outcome {
	details := models.Details{
		"runId":       handle.RunID,
		"mode":        string(handle.Mode),
		"reason":      failure.reason,
		"failedStage": string(stage),
		"error":       failure.Error(),
	}
	if failure.reason == ReasonCancelled {
		details["cancelled"] = true
	}

	if err := r.persistTerminal(handle.RepositoryID, models.StatusUpdate{
		ScanStatus:  models.StatusFailed,
		Progress:    t.progress,
		CurrentStep: models.StatusFailed.Label(),
		Details:     details,
	}); err == nil {
		t.status = models.StatusFailed
	}

	r.auditor.Record(context.Background(), models.AuditEvent{
		Action:       models.AuditRunFailed,
		RepositoryID: handle.RepositoryID,
		Details:      details,
	})
	return Outcome{
		Status:      models.StatusFailed,
		Reason:      failure.reason,
		FailedStage: stage,
		Err:         errors.NewStageFailureError(fmt.Sprintf("stage %s failed", stage), failure),
	}
}

func (r *Runner) persist(repositoryID string, update models.StatusUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return r.writer.UpdateRepositoryStatus(ctx, repositoryID, update)
}

// persistTerminal retries the terminal write; the run lock is not released
// before it either commits or the retries run out.
func (r *Runner) persistTerminal(repositoryID string, update models.StatusUpdate) error {
	backoff := 100 * time.Millisecond
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = r.persist(repositoryID, update); err == nil {
			return nil
		}
		r.logger.WithError(err).WithFields(logrus.Fields{
			"repository_id": repositoryID,
			"attempt":       attempt,
			"scan_status":   update.ScanStatus,
		}).Error("Failed to persist terminal status")
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}

func (r *Runner) release(current *run) {
	r.mu.Lock()
	if r.runs[current.handle.RepositoryID] == current {
		delete(r.runs, current.handle.RepositoryID)
	}
	r.mu.Unlock()
	current.cancel()
	close(current.handle.done)
	r.wg.Done()
}

// Cancel requests cancellation of the repository's active run. The run
// ends FAILED with a cancelled detail.
func (r *Runner) Cancel(repositoryID string) error {
	r.mu.Lock()
	current, ok := r.runs[repositoryID]
	r.mu.Unlock()
	if !ok {
		return errors.NewInvalidStateError("no run in progress for repository "+repositoryID, nil)
	}

	r.logger.WithFields(logrus.Fields{
		"repository_id": repositoryID,
		"run_id":        current.handle.RunID,
	}).Info("Cancelling pipeline run")
	current.stop(ReasonCancelled)
	return nil
}

// IsRunning reports whether the repository has an active run.
func (r *Runner) IsRunning(repositoryID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runs[repositoryID]
	return ok
}

// ActiveRuns returns handles of all active runs.
func (r *Runner) ActiveRuns() []*RunHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := make([]*RunHandle, 0, len(r.runs))
	for _, current := range r.runs {
		handles = append(handles, current.handle)
	}
	return handles
}

// Shutdown refuses new runs, interrupts active ones and waits for their
// terminal status to be committed.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	active := make([]*run, 0, len(r.runs))
	for _, current := range r.runs {
		active = append(active, current)
	}
	r.mu.Unlock()

	for _, current := range active {
		current.stop(ReasonInterrupted)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecoverInterrupted fails repositories left in an active status by a
// previous process, so they can be started again.
func (r *Runner) RecoverInterrupted(ctx context.Context) (int, error) {
	repos, err := r.reader.ListActiveRepositories(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active repositories: %w", err)
	}

	recovered := 0
	for _, repo := range repos {
		if r.IsRunning(repo.ID) {
			continue
		}
		details := models.Details{
			"reason":      ReasonInterrupted,
			"failedStage": string(repo.ScanStatus),
			"error":       "run interrupted by restart",
		}
		if err := r.writer.UpdateRepositoryStatus(ctx, repo.ID, models.StatusUpdate{
			ScanStatus:  models.StatusFailed,
			Progress:    repo.Progress,
			CurrentStep: models.StatusFailed.Label(),
			Details:     details,
		}); err != nil {
			r.logger.WithError(err).WithField("repository_id", repo.ID).Error("Failed to recover interrupted repository")
			continue
		}
		r.auditor.Record(ctx, models.AuditEvent{
			Action:       models.AuditRunFailed,
			RepositoryID: repo.ID,
			NamespaceIDs: repo.NamespaceIDs,
			Details:      details,
		})
		recovered++
	}

	if recovered > 0 {
		r.logger.WithField("count", recovered).Warn("Marked interrupted runs as failed")
	}
	return recovered, nil
}
