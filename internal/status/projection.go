package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-ingest/internal/authz"
	"github.com/Kamar-Folarin/repo-ingest/internal/db"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
)

// entry is immutable once stored in Projection.entries.
type entry struct {
	snapshot   *models.StatusSnapshot
	namespaces []string
	changed    chan struct{}
}

// Projection is a write-through cache of repository status. Writers go
// through it to the store; readers only ever take a short read lock and
// receive immutable snapshots.
type Projection struct {
	store        db.RepositoryStore
	authorizer   authz.Authorizer
	logger       *logrus.Logger
	pollInterval time.Duration

	mu      sync.RWMutex
	entries map[string]*entry

	locksMu    sync.Mutex
	writeLocks map[string]*sync.Mutex
}

// NewProjection creates a new status projection
func NewProjection(store db.RepositoryStore, authorizer authz.Authorizer, logger *logrus.Logger, pollInterval time.Duration) *Projection {
	return &Projection{
		store:        store,
		authorizer:   authorizer,
		logger:       logger,
		pollInterval: pollInterval,
		entries:      make(map[string]*entry),
		writeLocks:   make(map[string]*sync.Mutex),
	}
}

// GetStatus returns the latest committed status of a repository.
func (p *Projection) GetStatus(ctx context.Context, repositoryID string) (*models.StatusSnapshot, error) {
	e, err := p.load(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	return copySnapshot(e.snapshot), nil
}

// NamespacesOf returns the namespaces a repository currently belongs to.
func (p *Projection) NamespacesOf(ctx context.Context, repositoryID string) ([]string, error) {
	e, err := p.load(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), e.namespaces...), nil
}

// WaitForChange blocks until the snapshot version differs from version or
// ctx is done, then returns the current snapshot.
func (p *Projection) WaitForChange(ctx context.Context, repositoryID string, version uint64) (*models.StatusSnapshot, error) {
	e, err := p.load(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	if e.snapshot.Version != version {
		return copySnapshot(e.snapshot), nil
	}

	select {
	case <-e.changed:
	case <-ctx.Done():
	}
	return p.GetStatus(context.Background(), repositoryID)
}

// PollAfter tells clients how long to wait before polling again; zero means
// the repository is at rest and polling can stop.
func (p *Projection) PollAfter(s *models.StatusSnapshot) time.Duration {
	if s == nil || !s.ScanStatus.IsActive() {
		return 0
	}
	return p.pollInterval
}

// ListForNamespace lists repositories in a namespace the actor may view.
func (p *Projection) ListForNamespace(ctx context.Context, namespaceID, actorID string) ([]models.RepositorySummary, error) {
	if err := authz.RequireAny(ctx, p.authorizer, actorID, []string{namespaceID}, authz.ActionView); err != nil {
		return nil, err
	}

	repos, err := p.store.ListRepositoriesByNamespace(ctx, namespaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}

	summaries := make([]models.RepositorySummary, 0, len(repos))
	p.mu.RLock()
	for _, repo := range repos {
		summary := repo.Summary()
		if e, ok := p.entries[repo.ID]; ok {
			summary.ScanStatus = e.snapshot.ScanStatus
			summary.Progress = e.snapshot.Progress
			summary.CurrentStep = e.snapshot.CurrentStep
			summary.LastScannedAt = e.snapshot.LastScannedAt
		}
		summaries = append(summaries, summary)
	}
	p.mu.RUnlock()
	return summaries, nil
}

// UpdateRepositoryStatus persists a lifecycle update and publishes a new snapshot.
func (p *Projection) UpdateRepositoryStatus(ctx context.Context, repositoryID string, update models.StatusUpdate) error {
	lock := p.writeLock(repositoryID)
	lock.Lock()
	defer lock.Unlock()

	if err := p.store.UpdateRepositoryStatus(ctx, repositoryID, update); err != nil {
		return err
	}

	p.mu.RLock()
	current, cached := p.entries[repositoryID]
	p.mu.RUnlock()
	if !cached {
		_, err := p.refresh(ctx, repositoryID)
		return err
	}

	next := &models.StatusSnapshot{
		RepositoryID:  repositoryID,
		ScanStatus:    update.ScanStatus,
		Progress:      update.Progress,
		CurrentStep:   update.CurrentStep,
		Details:       update.Details.Clone(),
		LastScannedAt: current.snapshot.LastScannedAt,
		Version:       current.snapshot.Version + 1,
	}
	if update.LastScannedAt != nil {
		t := *update.LastScannedAt
		next.LastScannedAt = &t
	}
	p.publish(repositoryID, next, current.namespaces)
	return nil
}

// UpdateRepositoryConfig persists a configuration change. Lifecycle fields
// are untouched, so the snapshot version does not move.
func (p *Projection) UpdateRepositoryConfig(ctx context.Context, repositoryID string, update models.ConfigUpdate) error {
	lock := p.writeLock(repositoryID)
	lock.Lock()
	defer lock.Unlock()

	if err := p.store.UpdateRepositoryConfig(ctx, repositoryID, update); err != nil {
		return err
	}
	if update.NamespaceIDs == nil {
		return nil
	}

	// Published entries are never mutated; swap in a copy that keeps the
	// snapshot and the change channel, since the version does not move.
	namespaces := append([]string(nil), update.NamespaceIDs...)
	p.mu.Lock()
	if e, ok := p.entries[repositoryID]; ok {
		p.entries[repositoryID] = &entry{
			snapshot:   e.snapshot,
			namespaces: namespaces,
			changed:    e.changed,
		}
	}
	p.mu.Unlock()
	return nil
}

func (p *Projection) load(ctx context.Context, repositoryID string) (*entry, error) {
	p.mu.RLock()
	e, ok := p.entries[repositoryID]
	p.mu.RUnlock()
	if ok {
		return e, nil
	}

	lock := p.writeLock(repositoryID)
	lock.Lock()
	defer lock.Unlock()

	p.mu.RLock()
	e, ok = p.entries[repositoryID]
	p.mu.RUnlock()
	if ok {
		return e, nil
	}
	return p.refresh(ctx, repositoryID)
}

// refresh reloads an entry from the store. Callers hold the write lock.
func (p *Projection) refresh(ctx context.Context, repositoryID string) (*entry, error) {
	p.mu.RLock()
	e, ok := p.entries[repositoryID]
	p.mu.RUnlock()

	repo, err := p.store.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}

	version := uint64(1)
	if ok {
		version = e.snapshot.Version + 1
	}
	return p.publish(repositoryID, repo.Snapshot(version), repo.NamespaceIDs), nil
}

func (p *Projection) publish(repositoryID string, snapshot *models.StatusSnapshot, namespaces []string) *entry {
	next := &entry{
		snapshot:   snapshot,
		namespaces: append([]string(nil), namespaces...),
		changed:    make(chan struct{}),
	}

	p.mu.Lock()
	prev, ok := p.entries[repositoryID]
	p.entries[repositoryID] = next
	p.mu.Unlock()

	if ok {
		close(prev.changed)
	}

	p.logger.WithFields(logrus.Fields{
		"repository_id": repositoryID,
		"scan_status":   snapshot.ScanStatus,
		"progress":      snapshot.Progress,
		"version":       snapshot.Version,
	}).Debug("Published status snapshot")
	return next
}

func (p *Projection) writeLock(repositoryID string) *sync.Mutex {
	p.locksMu.Lock()
	defer p.locksMu.Unlock()
	lock, ok := p.writeLocks[repositoryID]
	if !ok {
		lock = &sync.Mutex{}
		p.writeLocks[repositoryID] = lock
	}
	return lock
}

func copySnapshot(s *models.StatusSnapshot) *models.StatusSnapshot {
	out := *s
	out.Details = s.Details.Clone()
	return &out
}
