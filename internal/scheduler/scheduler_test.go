package scheduler

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Kamar-Folarin/repo-ingest/internal/config"
	"github.com/Kamar-Folarin/repo-ingest/internal/db"
	"github.com/Kamar-Folarin/repo-ingest/internal/errors"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
	"github.com/Kamar-Folarin/repo-ingest/internal/pipeline"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) StartRun(ctx context.Context, repositoryID string, mode pipeline.Mode, actorID string) (*pipeline.RunHandle, error) {
	args := m.Called(ctx, repositoryID, mode, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.RunHandle), args.Error(1)
}

func (m *MockRunner) IsRunning(repositoryID string) bool {
	return m.Called(repositoryID).Bool(0)
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T, runner RunStarter, repos ...*models.Repository) *Scheduler {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := db.NewMemoryStore()
	for _, repo := range repos {
		require.NoError(t, store.CreateRepository(context.Background(), repo))
	}

	cfg := config.DefaultSyncConfig()
	s := NewScheduler(store, runner, cfg, logger)
	s.now = func() time.Time { return fixedNow }
	return s
}

func syncRepo(id string, enabled bool, interval int, lastScanned *time.Time) *models.Repository {
	return &models.Repository{
		ID:                  id,
		NamespaceIDs:        []string{"ns1"},
		GitURL:              "https://github.com/acme/" + id,
		ScanStatus:          models.StatusCompleted,
		Progress:            100,
		RealtimeSyncEnabled: enabled,
		SyncIntervalMinutes: interval,
		LastScannedAt:       lastScanned,
		CreatedAt:           fixedNow.Add(-48 * time.Hour),
	}
}

func ago(d time.Duration) *time.Time {
	t := fixedNow.Add(-d)
	return &t
}

func TestTickStartsDueRepositoriesInResyncMode(t *testing.T) {
	runner := new(MockRunner)
	s := newScheduler(t, runner,
		syncRepo("due", true, 60, ago(2*time.Hour)),
		syncRepo("fresh", true, 60, ago(10*time.Minute)),
		syncRepo("disabled", false, 1, ago(24*time.Hour)),
		syncRepo("never-scanned", true, 1, nil),
	)

	runner.On("IsRunning", "due").Return(false)
	runner.On("StartRun", mock.Anything, "due", pipeline.ModeResync, ActorID).
		Return(&pipeline.RunHandle{RunID: "run-1", RepositoryID: "due", Mode: pipeline.ModeResync}, nil)

	started, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	runner.AssertExpectations(t)
	runner.AssertNotCalled(t, "StartRun", mock.Anything, "disabled", mock.Anything, mock.Anything)
	runner.AssertNotCalled(t, "StartRun", mock.Anything, "fresh", mock.Anything, mock.Anything)
}

func TestTickTreatsRunningAsNoop(t *testing.T) {
	runner := new(MockRunner)
	s := newScheduler(t, runner,
		syncRepo("busy", true, 5, ago(time.Hour)),
		syncRepo("raced", true, 5, ago(time.Hour)),
	)

	runner.On("IsRunning", "busy").Return(true)
	runner.On("IsRunning", "raced").Return(false)
	runner.On("StartRun", mock.Anything, "raced", pipeline.ModeResync, ActorID).
		Return(nil, errors.NewRunInProgressError("raced"))

	started, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, started)
	runner.AssertNotCalled(t, "StartRun", mock.Anything, "busy", mock.Anything, mock.Anything)
}

func TestTickHonoursStartLimit(t *testing.T) {
	runner := new(MockRunner)
	s := newScheduler(t, runner,
		syncRepo("oldest", true, 10, ago(5*time.Hour)),
		syncRepo("older", true, 10, ago(3*time.Hour)),
		syncRepo("old", true, 10, ago(time.Hour)),
	)
	s.cfg.MaxStartsPerTick = 2

	runner.On("IsRunning", mock.Anything).Return(false)
	runner.On("StartRun", mock.Anything, mock.Anything, pipeline.ModeResync, ActorID).
		Return(&pipeline.RunHandle{RunID: "run"}, nil)

	started, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, started)
	runner.AssertCalled(t, "StartRun", mock.Anything, "oldest", pipeline.ModeResync, ActorID)
	runner.AssertCalled(t, "StartRun", mock.Anything, "older", pipeline.ModeResync, ActorID)
	runner.AssertNotCalled(t, "StartRun", mock.Anything, "old", mock.Anything, mock.Anything)
}

func TestTickContinuesAfterStartFailure(t *testing.T) {
	runner := new(MockRunner)
	s := newScheduler(t, runner,
		syncRepo("broken", true, 10, ago(5*time.Hour)),
		syncRepo("healthy", true, 10, ago(3*time.Hour)),
	)

	runner.On("IsRunning", mock.Anything).Return(false)
	runner.On("StartRun", mock.Anything, "broken", pipeline.ModeResync, ActorID).
		Return(nil, errors.NewInternalError("store unavailable", nil))
	runner.On("StartRun", mock.Anything, "healthy", pipeline.ModeResync, ActorID).
		Return(&pipeline.RunHandle{RunID: "run"}, nil)

	started, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, started)
}

func TestStartAndStop(t *testing.T) {
	runner := new(MockRunner)
	s := newScheduler(t, runner)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	s.Start(ctx)
	cancel()

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.cron == nil
	}, time.Second, 10*time.Millisecond)
	s.Stop()
}
