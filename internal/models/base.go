package models

import "time"

// Audit actions emitted by the orchestrator.
const (
	AuditRepositoryImported       = "repository.imported"
	AuditSyncSettingsUpdated      = "repository.sync_settings_updated"
	AuditNamespacesUpdated        = "repository.namespaces_updated"
	AuditRunStarted               = "pipeline.run_started"
	AuditRunCompleted             = "pipeline.run_completed"
	AuditRunFailed                = "pipeline.run_failed"
	AuditRunCancellationRequested = "pipeline.run_cancel_requested"
)

// AuditEvent records a significant action on a repository.
type AuditEvent struct {
	ID           string    `json:"id"`
	Action       string    `json:"action"`
	RepositoryID string    `json:"repositoryId"`
	ActorID      string    `json:"actorId"`
	NamespaceIDs []string  `json:"namespaceIds,omitempty"`
	Details      Details   `json:"details,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// BatchProgress tracks the progress of batch processing
type BatchProgress struct {
	TotalBatches     int       `json:"total_batches"`
	ProcessedBatches int       `json:"processed_batches"`
	TotalItems       int       `json:"total_items"`
	ProcessedItems   int       `json:"processed_items"`
	FailedItems      int       `json:"failed_items"`
	StartTime        time.Time `json:"start_time"`
	LastUpdateTime   time.Time `json:"last_update_time"`
}

// Percent returns processed items as a 0-100 percentage.
func (p BatchProgress) Percent() int {
	if p.TotalItems == 0 {
		return 100
	}
	return p.ProcessedItems * 100 / p.TotalItems
}
