package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/Kamar-Folarin/repo-ingest/internal/models"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// RepositoryStore defines durable operations on repository records.
// Status updates only touch lifecycle columns and config updates only touch
// configuration columns, so the two never overwrite each other.
type RepositoryStore interface {
	CreateRepository(ctx context.Context, repo *models.Repository) error
	GetRepository(ctx context.Context, id string) (*models.Repository, error)
	GetRepositoryByURL(ctx context.Context, normalizedURL string) ([]*models.Repository, error)
	UpdateRepositoryStatus(ctx context.Context, id string, update models.StatusUpdate) error
	UpdateRepositoryConfig(ctx context.Context, id string, update models.ConfigUpdate) error
	ListRepositoriesByNamespace(ctx context.Context, namespaceID string) ([]*models.Repository, error)
	ListSyncEnabledRepositories(ctx context.Context) ([]*models.Repository, error)
	ListActiveRepositories(ctx context.Context) ([]*models.Repository, error)
}

// AuditStore persists audit events.
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, event *models.AuditEvent) error
	ListAuditEvents(ctx context.Context, repositoryID string, limit int) ([]*models.AuditEvent, error)
}

// Store defines the interface for database operations
type Store interface {
	RepositoryStore
	AuditStore
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate() error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// activeStatuses lists every status that belongs to an in-flight run.
func activeStatuses() []string {
	var out []string
	for _, st := range models.PipelineOrder {
		if st.IsActive() {
			out = append(out, string(st))
		}
	}
	return append(out, string(models.StatusScanning))
}
