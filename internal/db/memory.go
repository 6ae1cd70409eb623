package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Kamar-Folarin/repo-ingest/internal/errors"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
)

// MemoryStore is an in-process Store. Records are copied on the way in and out.
type MemoryStore struct {
	mu    sync.RWMutex
	repos map[string]*models.Repository
	audit []*models.AuditEvent
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		repos: make(map[string]*models.Repository),
		now:   time.Now,
	}
}

func (s *MemoryStore) CreateRepository(ctx context.Context, repo *models.Repository) error {
	if repo == nil || repo.ID == "" {
		return errors.NewValidationError("repository id cannot be empty", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.repos[repo.ID]; exists {
		return errors.NewConflictError("repository already exists: "+repo.ID, nil)
	}
	s.repos[repo.ID] = repo.Clone()
	return nil
}

func (s *MemoryStore) GetRepository(ctx context.Context, id string) (*models.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	repo, ok := s.repos[id]
	if !ok {
		return nil, errors.NewRepositoryNotFoundError(id)
	}
	return repo.Clone(), nil
}

func (s *MemoryStore) GetRepositoryByURL(ctx context.Context, normalizedURL string) ([]*models.Repository, error) {
	return s.filter(func(r *models.Repository) bool { return r.NormalizedURL == normalizedURL }), nil
}

func (s *MemoryStore) UpdateRepositoryStatus(ctx context.Context, id string, update models.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[id]
	if !ok {
		return errors.NewRepositoryNotFoundError(id)
	}
	update.Apply(repo, s.now())
	return nil
}

func (s *MemoryStore) UpdateRepositoryConfig(ctx context.Context, id string, update models.ConfigUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[id]
	if !ok {
		return errors.NewRepositoryNotFoundError(id)
	}
	update.Apply(repo, s.now())
	return nil
}

func (s *MemoryStore) ListRepositoriesByNamespace(ctx context.Context, namespaceID string) ([]*models.Repository, error) {
	return s.filter(func(r *models.Repository) bool { return r.InNamespace(namespaceID) }), nil
}

func (s *MemoryStore) ListSyncEnabledRepositories(ctx context.Context) ([]*models.Repository, error) {
	return s.filter(func(r *models.Repository) bool { return r.RealtimeSyncEnabled }), nil
}

func (s *MemoryStore) ListActiveRepositories(ctx context.Context) ([]*models.Repository, error) {
	return s.filter(func(r *models.Repository) bool { return r.ScanStatus.IsActive() }), nil
}

func (s *MemoryStore) filter(keep func(*models.Repository) bool) []*models.Repository {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Repository
	for _, repo := range s.repos {
		if keep(repo) {
			out = append(out, repo.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) AppendAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	if event == nil {
		return errors.NewValidationError("audit event cannot be nil", nil)
	}
	cp := *event
	cp.Details = event.Details.Clone()
	cp.NamespaceIDs = append([]string(nil), event.NamespaceIDs...)

	s.mu.Lock()
	s.audit = append(s.audit, &cp)
	s.mu.Unlock()
	return nil
}

// ListAuditEvents returns the newest events first.
func (s *MemoryStore) ListAuditEvents(ctx context.Context, repositoryID string, limit int) ([]*models.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AuditEvent
	for i := len(s.audit) - 1; i >= 0; i-- {
		ev := s.audit[i]
		if repositoryID != "" && ev.RepositoryID != repositoryID {
			continue
		}
		cp := *ev
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
