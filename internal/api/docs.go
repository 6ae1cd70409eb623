package api

import (
	"time"

	_ "github.com/Kamar-Folarin/repo-ingest/docs"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
)

// ImportRequest describes a repository to import
// @Description A git URL or local upload to import into one or more namespaces
// @swagger:model ImportRequest
type ImportRequest struct {
	// Git URL (https, ssh) or local upload marker
	GitURL string `json:"gitUrl" binding:"required" example:"https://github.com/acme/api"`
	// Namespaces the repository belongs to
	NamespaceIDs []string `json:"namespaceIds" example:"ns-platform"`
	// Branch to clone; resolved from GitHub when empty
	DefaultBranch string `json:"defaultBranch,omitempty" example:"main"`
	// Re-sync on a schedule
	RealtimeSyncEnabled bool `json:"realtimeSyncEnabled"`
	// Minutes between scheduled re-syncs
	SyncIntervalMinutes int `json:"syncIntervalMinutes,omitempty" example:"60"`
}

// ImportResponse is returned when an import is accepted
// @swagger:model ImportResponse
type ImportResponse struct {
	RepositoryID string            `json:"repositoryId" example:"8f14e45f-ea5e-4c6b-9b8a-3c1d2e9f0a11"`
	ScanStatus   models.ScanStatus `json:"scanStatus" example:"CLONING"`
}

// RunResponse describes a started pipeline run
// @swagger:model RunResponse
type RunResponse struct {
	RepositoryID string            `json:"repositoryId"`
	RunID        string            `json:"runId"`
	Mode         string            `json:"mode" enums:"import,resync"`
	EntryStage   models.ScanStatus `json:"entryStage" example:"SCANNING_NAMESPACES"`
	StartedAt    time.Time         `json:"startedAt"`
}

// SyncSettingsRequest is a partial update of sync settings
// @swagger:model SyncSettingsRequest
type SyncSettingsRequest struct {
	RealtimeSyncEnabled *bool `json:"realtimeSyncEnabled,omitempty"`
	SyncIntervalMinutes *int  `json:"syncIntervalMinutes,omitempty" example:"30"`
}

// NamespacesRequest replaces a repository's namespaces
// @swagger:model NamespacesRequest
type NamespacesRequest struct {
	NamespaceIDs []string `json:"namespaceIds"`
}

// StatusResponse is a status snapshot plus a polling hint
// @Description Latest committed status. Poll again after pollAfterMs; 0 means the repository is at rest.
// @swagger:model StatusResponse
type StatusResponse struct {
	models.StatusSnapshot
	PollAfterMs int64 `json:"pollAfterMs" example:"2000"`
}

// RepositoryListResponse lists the repositories of a namespace
// @swagger:model RepositoryListResponse
type RepositoryListResponse struct {
	Data []models.RepositorySummary `json:"data"`
	// True while any listed repository has a run in flight
	Active bool `json:"active"`
}

// AuditLogResponse lists recent audit events
// @swagger:model AuditLogResponse
type AuditLogResponse struct {
	Data []*models.AuditEvent `json:"data"`
}

// ErrorResponse represents an API error
// @Description Error response from the API
// @swagger:model ErrorResponse
type ErrorResponse struct {
	// Error message
	Error string `json:"error" example:"repository is CLONING"`
	// Error classification
	Type string `json:"type" example:"CONFLICT"`
}
