package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-ingest/internal/audit"
	"github.com/Kamar-Folarin/repo-ingest/internal/authz"
	"github.com/Kamar-Folarin/repo-ingest/internal/config"
	"github.com/Kamar-Folarin/repo-ingest/internal/db"
	"github.com/Kamar-Folarin/repo-ingest/internal/errors"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
	"github.com/Kamar-Folarin/repo-ingest/internal/pipeline"
	"github.com/Kamar-Folarin/repo-ingest/internal/utils"
)

// FallbackBranch is used when the default branch cannot be resolved.
const FallbackBranch = "main"

// Runner starts and cancels pipeline runs.
type Runner interface {
	StartRun(ctx context.Context, repositoryID string, mode pipeline.Mode, actorID string) (*pipeline.RunHandle, error)
	Cancel(repositoryID string) error
}

// StatusReader is the read side of the status projection.
type StatusReader interface {
	GetStatus(ctx context.Context, repositoryID string) (*models.StatusSnapshot, error)
	NamespacesOf(ctx context.Context, repositoryID string) ([]string, error)
	WaitForChange(ctx context.Context, repositoryID string, version uint64) (*models.StatusSnapshot, error)
	PollAfter(s *models.StatusSnapshot) time.Duration
	ListForNamespace(ctx context.Context, namespaceID, actorID string) ([]models.RepositorySummary, error)
	UpdateRepositoryConfig(ctx context.Context, repositoryID string, update models.ConfigUpdate) error
}

// BranchResolver looks up the default branch of a hosted repository.
type BranchResolver interface {
	DefaultBranch(ctx context.Context, owner, name string) (string, error)
}

// ImportRequest describes a repository to import.
type ImportRequest struct {
	GitURL              string
	NamespaceIDs        []string
	DefaultBranch       string
	RealtimeSyncEnabled bool
	SyncIntervalMinutes int
}

// SyncSettings is a partial update of a repository's sync configuration.
type SyncSettings struct {
	RealtimeSyncEnabled *bool
	SyncIntervalMinutes *int
}

// Gateway validates commands against authorization and lifecycle state
// before handing them to the runner or the status projection.
type Gateway struct {
	store      db.Store
	runner     Runner
	status     StatusReader
	authorizer authz.Authorizer
	auditor    audit.Auditor
	resolver   BranchResolver
	cfg        *config.SyncConfig
	logger     *logrus.Logger
	now        func() time.Time
}

// NewGateway creates a command gateway. resolver may be nil.
func NewGateway(
	store db.Store,
	runner Runner,
	status StatusReader,
	authorizer authz.Authorizer,
	auditor audit.Auditor,
	resolver BranchResolver,
	cfg *config.SyncConfig,
	logger *logrus.Logger,
) *Gateway {
	return &Gateway{
		store:      store,
		runner:     runner,
		status:     status,
		authorizer: authorizer,
		auditor:    auditor,
		resolver:   resolver,
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Import creates a repository record and starts its import run.
func (g *Gateway) Import(ctx context.Context, actorID string, req ImportRequest) (*models.Repository, error) {
	namespaces := cleanNamespaces(req.NamespaceIDs)
	if len(namespaces) == 0 {
		return nil, errors.NewInvalidStateError("a repository must belong to at least one namespace", nil)
	}
	if err := authz.RequireAll(ctx, g.authorizer, actorID, namespaces, authz.ActionImport); err != nil {
		return nil, err
	}

	gitURL := strings.TrimSpace(req.GitURL)
	normalizedURL, err := utils.NormalizeGitURL(gitURL)
	if err != nil {
		return nil, errors.NewValidationError(err.Error(), err)
	}
	interval := req.SyncIntervalMinutes
	if interval == 0 {
		interval = g.cfg.DefaultIntervalMinutes
	}
	if interval < 0 {
		return nil, errors.NewValidationError("sync interval must be a positive number of minutes", nil)
	}

	existing, err := g.store.GetRepositoryByURL(ctx, normalizedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing repository: %w", err)
	}
	for _, repo := range existing {
		if repo.SharesNamespace(namespaces) {
			return nil, errors.NewConflictError(fmt.Sprintf("repository %s is already imported as %s", gitURL, repo.ID), nil)
		}
	}

	now := g.now()
	repo := &models.Repository{
		ID:                  uuid.NewString(),
		NamespaceIDs:        namespaces,
		GitURL:              gitURL,
		NormalizedURL:       normalizedURL,
		DefaultBranch:       g.defaultBranch(ctx, normalizedURL, req.DefaultBranch),
		ScanStatus:          models.StatusPending,
		CurrentStep:         models.StatusPending.Label(),
		RealtimeSyncEnabled: req.RealtimeSyncEnabled,
		SyncIntervalMinutes: interval,
		AddedByID:           actorID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := g.store.CreateRepository(ctx, repo); err != nil {
		return nil, err
	}

	logger := g.logger.WithFields(logrus.Fields{
		"repository_id": repo.ID,
		"git_url":       gitURL,
		"actor_id":      actorID,
		"action":        "import",
	})
	logger.Info("Repository imported")

	g.auditor.Record(ctx, models.AuditEvent{
		Action:       models.AuditRepositoryImported,
		RepositoryID: repo.ID,
		ActorID:      actorID,
		NamespaceIDs: namespaces,
		Details:      models.Details{"gitUrl": gitURL, "defaultBranch": repo.DefaultBranch},
	})

	if _, err := g.runner.StartRun(ctx, repo.ID, pipeline.ModeImport, actorID); err != nil {
		logger.WithError(err).Error("Failed to start import run")
		return nil, fmt.Errorf("repository %s created but import could not start: %w", repo.ID, err)
	}
	return repo, nil
}

func (g *Gateway) defaultBranch(ctx context.Context, gitURL, requested string) string {
	if requested = strings.TrimSpace(requested); requested != "" {
		return requested
	}
	if strings.HasPrefix(gitURL, models.LocalUploadScheme) {
		return ""
	}
	if g.resolver == nil || !utils.IsGitHubURL(gitURL) {
		return FallbackBranch
	}

	_, owner, name, err := utils.ParseRepoURL(gitURL)
	if err != nil {
		return FallbackBranch
	}
	branch, err := g.resolver.DefaultBranch(ctx, owner, name)
	if err != nil {
		g.logger.WithError(err).WithField("git_url", gitURL).Warn("Could not resolve default branch, falling back")
		return FallbackBranch
	}
	return branch
}

// StartScan runs the pipeline for a repository at rest. Repositories that
// never completed an import are cloned again; others re-enter at the scan stage.
func (g *Gateway) StartScan(ctx context.Context, actorID, repositoryID string) (*pipeline.RunHandle, error) {
	repo, err := g.authorizedRepository(ctx, actorID, repositoryID, authz.ActionScan)
	if err != nil {
		return nil, err
	}
	if repo.ScanStatus.IsActive() {
		return nil, errors.NewConflictError(fmt.Sprintf("repository is %s", repo.ScanStatus), nil)
	}

	mode := pipeline.ModeResync
	if !repo.HasCompletedScan() {
		mode = pipeline.ModeImport
	}
	return g.runner.StartRun(ctx, repositoryID, mode, actorID)
}

// SyncNow re-syncs a repository immediately, whether or not realtime sync is enabled.
func (g *Gateway) SyncNow(ctx context.Context, actorID, repositoryID string) (*pipeline.RunHandle, error) {
	repo, err := g.authorizedRepository(ctx, actorID, repositoryID, authz.ActionSync)
	if err != nil {
		return nil, err
	}
	if repo.ScanStatus.IsActive() {
		return nil, errors.NewConflictError(fmt.Sprintf("repository is %s", repo.ScanStatus), nil)
	}

	// Nothing to re-scan until a clone has completed.
	mode := pipeline.ModeResync
	if !repo.HasCompletedScan() {
		mode = pipeline.ModeImport
	}
	return g.runner.StartRun(ctx, repositoryID, mode, actorID)
}

// Cancel requests cancellation of the repository's active run.
func (g *Gateway) Cancel(ctx context.Context, actorID, repositoryID string) error {
	repo, err := g.authorizedRepository(ctx, actorID, repositoryID, authz.ActionScan)
	if err != nil {
		return err
	}
	if err := g.runner.Cancel(repositoryID); err != nil {
		return err
	}

	g.auditor.Record(ctx, models.AuditEvent{
		Action:       models.AuditRunCancellationRequested,
		RepositoryID: repositoryID,
		ActorID:      actorID,
		NamespaceIDs: repo.NamespaceIDs,
	})
	return nil
}

// ToggleSync turns realtime sync on or off.
func (g *Gateway) ToggleSync(ctx context.Context, actorID, repositoryID string, enabled bool) (*models.Repository, error) {
	return g.UpdateSyncSettings(ctx, actorID, repositoryID, SyncSettings{RealtimeSyncEnabled: &enabled})
}

// UpdateSyncSettings changes sync configuration. An in-flight run is not affected.
func (g *Gateway) UpdateSyncSettings(ctx context.Context, actorID, repositoryID string, settings SyncSettings) (*models.Repository, error) {
	repo, err := g.authorizedRepository(ctx, actorID, repositoryID, authz.ActionConfigure)
	if err != nil {
		return nil, err
	}
	if settings.SyncIntervalMinutes != nil && *settings.SyncIntervalMinutes <= 0 {
		return nil, errors.NewValidationError("sync interval must be a positive number of minutes", nil)
	}

	update := models.ConfigUpdate{
		RealtimeSyncEnabled: settings.RealtimeSyncEnabled,
		SyncIntervalMinutes: settings.SyncIntervalMinutes,
	}
	if err := g.status.UpdateRepositoryConfig(ctx, repositoryID, update); err != nil {
		return nil, err
	}

	details := models.Details{}
	if settings.RealtimeSyncEnabled != nil {
		details["realtimeSyncEnabled"] = *settings.RealtimeSyncEnabled
	}
	if settings.SyncIntervalMinutes != nil {
		details["syncIntervalMinutes"] = *settings.SyncIntervalMinutes
	}
	g.auditor.Record(ctx, models.AuditEvent{
		Action:       models.AuditSyncSettingsUpdated,
		RepositoryID: repositoryID,
		ActorID:      actorID,
		NamespaceIDs: repo.NamespaceIDs,
		Details:      details,
	})

	g.logger.WithFields(logrus.Fields{
		"repository_id": repositoryID,
		"actor_id":      actorID,
		"action":        "update_sync_settings",
	}).Info("Sync settings updated")
	return g.store.GetRepository(ctx, repositoryID)
}

// UpdateNamespaces replaces the repository's namespace set. The actor must
// be allowed to configure the repository and every target namespace.
func (g *Gateway) UpdateNamespaces(ctx context.Context, actorID, repositoryID string, namespaceIDs []string) (*models.Repository, error) {
	repo, err := g.authorizedRepository(ctx, actorID, repositoryID, authz.ActionConfigure)
	if err != nil {
		return nil, err
	}
	namespaces := cleanNamespaces(namespaceIDs)
	if len(namespaces) == 0 {
		return nil, errors.NewInvalidStateError("a repository must belong to at least one namespace", nil)
	}
	if err := authz.RequireAll(ctx, g.authorizer, actorID, namespaces, authz.ActionConfigure); err != nil {
		return nil, err
	}

	if err := g.status.UpdateRepositoryConfig(ctx, repositoryID, models.ConfigUpdate{NamespaceIDs: namespaces}); err != nil {
		return nil, err
	}

	g.auditor.Record(ctx, models.AuditEvent{
		Action:       models.AuditNamespacesUpdated,
		RepositoryID: repositoryID,
		ActorID:      actorID,
		NamespaceIDs: namespaces,
		Details:      models.Details{"previous": repo.NamespaceIDs, "current": namespaces},
	})
	return g.store.GetRepository(ctx, repositoryID)
}

// GetStatus returns the latest committed status snapshot.
func (g *Gateway) GetStatus(ctx context.Context, actorID, repositoryID string) (*models.StatusSnapshot, error) {
	if err := g.authorizeView(ctx, actorID, repositoryID); err != nil {
		return nil, err
	}
	return g.status.GetStatus(ctx, repositoryID)
}

// WaitForStatus long-polls for a snapshot newer than version, for at most wait.
func (g *Gateway) WaitForStatus(ctx context.Context, actorID, repositoryID string, version uint64, wait time.Duration) (*models.StatusSnapshot, error) {
	if err := g.authorizeView(ctx, actorID, repositoryID); err != nil {
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return g.status.WaitForChange(waitCtx, repositoryID, version)
}

// PollAfter is the interval clients should wait before polling s again.
func (g *Gateway) PollAfter(s *models.StatusSnapshot) time.Duration {
	return g.status.PollAfter(s)
}

// ListForNamespace lists the repositories of a namespace the actor may view.
func (g *Gateway) ListForNamespace(ctx context.Context, actorID, namespaceID string) ([]models.RepositorySummary, error) {
	return g.status.ListForNamespace(ctx, namespaceID, actorID)
}

// AuditLog returns the most recent audit events of a repository.
func (g *Gateway) AuditLog(ctx context.Context, actorID, repositoryID string, limit int) ([]*models.AuditEvent, error) {
	if err := g.authorizeView(ctx, actorID, repositoryID); err != nil {
		return nil, err
	}
	return g.store.ListAuditEvents(ctx, repositoryID, limit)
}

func (g *Gateway) authorizeView(ctx context.Context, actorID, repositoryID string) error {
	namespaces, err := g.status.NamespacesOf(ctx, repositoryID)
	if err != nil {
		return err
	}
	return authz.RequireAny(ctx, g.authorizer, actorID, namespaces, authz.ActionView)
}

func (g *Gateway) authorizedRepository(ctx context.Context, actorID, repositoryID string, action authz.Action) (*models.Repository, error) {
	repo, err := g.store.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	if err := authz.RequireAny(ctx, g.authorizer, actorID, repo.NamespaceIDs, action); err != nil {
		g.logger.WithFields(logrus.Fields{
			"repository_id": repositoryID,
			"actor_id":      actorID,
			"action":        action,
		}).Warn("Command denied")
		return nil, err
	}
	return repo, nil
}

// cleanNamespaces trims, de-duplicates and sorts namespace ids.
func cleanNamespaces(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
