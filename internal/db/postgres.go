package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Kamar-Folarin/repo-ingest/internal/errors"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
	"github.com/lib/pq"
)

const repositoryColumns = `
	id, namespace_ids, git_url, normalized_git_url, default_branch, scan_status, progress,
	current_step, details, realtime_sync_enabled, sync_interval_minutes,
	last_scanned_at, added_by_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRepository(row rowScanner) (*models.Repository, error) {
	var repo models.Repository
	var namespaceIDs pq.StringArray
	var detailsJSON []byte
	var lastScannedAt sql.NullTime

	err := row.Scan(
		&repo.ID,
		&namespaceIDs,
		&repo.GitURL,
		&repo.NormalizedURL,
		&repo.DefaultBranch,
		&repo.ScanStatus,
		&repo.Progress,
		&repo.CurrentStep,
		&detailsJSON,
		&repo.RealtimeSyncEnabled,
		&repo.SyncIntervalMinutes,
		&lastScannedAt,
		&repo.AddedByID,
		&repo.CreatedAt,
		&repo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	repo.NamespaceIDs = []string(namespaceIDs)
	if lastScannedAt.Valid {
		t := lastScannedAt.Time
		repo.LastScannedAt = &t
	}
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &repo.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal details: %w", err)
		}
	}
	return &repo, nil
}

func marshalDetails(d models.Details) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal details: %w", err)
	}
	return b, nil
}

// CreateRepository inserts a new repository record
func (s *PostgresStore) CreateRepository(ctx context.Context, repo *models.Repository) error {
	if repo == nil || repo.ID == "" {
		return errors.NewValidationError("repository id cannot be empty", nil)
	}

	detailsJSON, err := marshalDetails(repo.Details)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO repositories (`+repositoryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		repo.ID,
		pq.Array(repo.NamespaceIDs),
		repo.GitURL,
		repo.NormalizedURL,
		repo.DefaultBranch,
		repo.ScanStatus,
		repo.Progress,
		repo.CurrentStep,
		detailsJSON,
		repo.RealtimeSyncEnabled,
		repo.SyncIntervalMinutes,
		repo.LastScannedAt,
		repo.AddedByID,
		repo.CreatedAt,
		repo.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errors.NewConflictError("repository already exists: "+repo.ID, err)
		}
		return fmt.Errorf("failed to create repository: %w", err)
	}
	return nil
}

// GetRepository retrieves a repository by id
func (s *PostgresStore) GetRepository(ctx context.Context, id string) (*models.Repository, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE id = $1`, id)
	repo, err := scanRepository(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewRepositoryNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}
	return repo, nil
}

// GetRepositoryByURL returns every repository whose normalized source URL is normalizedURL
func (s *PostgresStore) GetRepositoryByURL(ctx context.Context, normalizedURL string) ([]*models.Repository, error) {
	return s.queryRepositories(ctx, `SELECT `+repositoryColumns+` FROM repositories
		WHERE normalized_git_url = $1 ORDER BY created_at DESC, id`, normalizedURL)
}

// UpdateRepositoryStatus writes the lifecycle columns of a repository
func (s *PostgresStore) UpdateRepositoryStatus(ctx context.Context, id string, update models.StatusUpdate) error {
	detailsJSON, err := marshalDetails(update.Details)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE repositories SET
			scan_status = $2,
			progress = $3,
			current_step = $4,
			details = $5,
			last_scanned_at = COALESCE($6, last_scanned_at),
			updated_at = NOW()
		WHERE id = $1
	`, id, update.ScanStatus, update.Progress, update.CurrentStep, detailsJSON, update.LastScannedAt)
	if err != nil {
		return fmt.Errorf("failed to update repository status: %w", err)
	}
	return expectOneRow(res, id)
}

// UpdateRepositoryConfig writes the configuration columns of a repository
func (s *PostgresStore) UpdateRepositoryConfig(ctx context.Context, id string, update models.ConfigUpdate) error {
	var namespaces interface{}
	if update.NamespaceIDs != nil {
		namespaces = pq.Array(update.NamespaceIDs)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE repositories SET
			realtime_sync_enabled = COALESCE($2, realtime_sync_enabled),
			sync_interval_minutes = COALESCE($3, sync_interval_minutes),
			namespace_ids = COALESCE($4, namespace_ids),
			updated_at = NOW()
		WHERE id = $1
	`, id, update.RealtimeSyncEnabled, update.SyncIntervalMinutes, namespaces)
	if err != nil {
		return fmt.Errorf("failed to update repository config: %w", err)
	}
	return expectOneRow(res, id)
}

// ListRepositoriesByNamespace returns the repositories attached to a namespace
func (s *PostgresStore) ListRepositoriesByNamespace(ctx context.Context, namespaceID string) ([]*models.Repository, error) {
	return s.queryRepositories(ctx, `SELECT `+repositoryColumns+` FROM repositories
		WHERE $1 = ANY(namespace_ids) ORDER BY created_at DESC, id`, namespaceID)
}

// ListSyncEnabledRepositories returns repositories with realtime sync turned on
func (s *PostgresStore) ListSyncEnabledRepositories(ctx context.Context) ([]*models.Repository, error) {
	return s.queryRepositories(ctx, `SELECT `+repositoryColumns+` FROM repositories
		WHERE realtime_sync_enabled ORDER BY created_at DESC, id`)
}

// ListActiveRepositories returns repositories whose status belongs to a run
func (s *PostgresStore) ListActiveRepositories(ctx context.Context) ([]*models.Repository, error) {
	return s.queryRepositories(ctx, `SELECT `+repositoryColumns+` FROM repositories
		WHERE scan_status = ANY($1) ORDER BY created_at DESC, id`, pq.Array(activeStatuses()))
}

func (s *PostgresStore) queryRepositories(ctx context.Context, query string, args ...interface{}) ([]*models.Repository, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query repositories: %w", err)
	}
	defer rows.Close()

	var repos []*models.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repository row: %w", err)
		}
		repos = append(repos, repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating repository rows: %w", err)
	}
	return repos, nil
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return errors.NewRepositoryNotFoundError(id)
	}
	return nil
}

// AppendAuditEvent stores an audit event
func (s *PostgresStore) AppendAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	if event == nil {
		return errors.NewValidationError("audit event cannot be nil", nil)
	}

	detailsJSON, err := marshalDetails(event.Details)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, action, repository_id, actor_id, namespace_ids, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, event.Action, event.RepositoryID, event.ActorID, pq.Array(event.NamespaceIDs), detailsJSON, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the newest audit events for a repository
func (s *PostgresStore) ListAuditEvents(ctx context.Context, repositoryID string, limit int) ([]*models.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, repository_id, actor_id, namespace_ids, details, created_at
		FROM audit_events
		WHERE $1 = '' OR repository_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, repositoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		var ev models.AuditEvent
		var namespaceIDs pq.StringArray
		var detailsJSON []byte
		if err := rows.Scan(&ev.ID, &ev.Action, &ev.RepositoryID, &ev.ActorID, &namespaceIDs, &detailsJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event row: %w", err)
		}
		ev.NamespaceIDs = []string(namespaceIDs)
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &ev.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit event rows: %w", err)
	}
	return events, nil
}
