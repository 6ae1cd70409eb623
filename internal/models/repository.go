package models

import (
	"strings"
	"time"
)

// LocalUploadScheme marks repositories that were uploaded instead of cloned.
const LocalUploadScheme = "local://"

// Details is the stage-specific structured payload attached to a status.
type Details map[string]interface{}

// Clone returns a shallow copy of d.
func (d Details) Clone() Details {
	if d == nil {
		return nil
	}
	out := make(Details, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Repository is the durable record of an imported repository.
type Repository struct {
	ID           string   `json:"id"`
	NamespaceIDs []string `json:"namespaceIds"`

	// GitURL is the source as submitted and is what gets cloned;
	// NormalizedURL identifies it for duplicate detection.
	GitURL        string `json:"gitUrl"`
	NormalizedURL string `json:"-"`
	DefaultBranch string `json:"defaultBranch"`

	ScanStatus  ScanStatus `json:"scanStatus"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep"`
	Details     Details    `json:"details,omitempty"`

	RealtimeSyncEnabled bool       `json:"realtimeSyncEnabled"`
	SyncIntervalMinutes int        `json:"syncIntervalMinutes"`
	LastScannedAt       *time.Time `json:"lastScannedAt,omitempty"`

	AddedByID string    `json:"addedById"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy that shares no mutable state with r.
func (r *Repository) Clone() *Repository {
	if r == nil {
		return nil
	}
	out := *r
	out.NamespaceIDs = append([]string(nil), r.NamespaceIDs...)
	out.Details = r.Details.Clone()
	if r.LastScannedAt != nil {
		t := *r.LastScannedAt
		out.LastScannedAt = &t
	}
	return &out
}

// IsLocalUpload reports whether the repository source is a local upload.
func (r *Repository) IsLocalUpload() bool {
	return strings.HasPrefix(r.GitURL, LocalUploadScheme)
}

// UploadID returns the staged upload id for local uploads.
func (r *Repository) UploadID() string {
	return strings.TrimPrefix(r.GitURL, LocalUploadScheme)
}

// InNamespace reports whether the repository belongs to namespaceID.
func (r *Repository) InNamespace(namespaceID string) bool {
	for _, ns := range r.NamespaceIDs {
		if ns == namespaceID {
			return true
		}
	}
	return false
}

// SharesNamespace reports whether any of namespaceIDs is one of the repository's.
func (r *Repository) SharesNamespace(namespaceIDs []string) bool {
	for _, ns := range namespaceIDs {
		if r.InNamespace(ns) {
			return true
		}
	}
	return false
}

// HasCompletedScan reports whether an import ever reached COMPLETED.
func (r *Repository) HasCompletedScan() bool {
	return r.LastScannedAt != nil
}

// IsSyncDue reports whether realtime sync should re-run the pipeline at now.
// Repositories that never completed an import are not due; they need a full import.
func (r *Repository) IsSyncDue(now time.Time) bool {
	if !r.RealtimeSyncEnabled || r.SyncIntervalMinutes <= 0 || r.LastScannedAt == nil {
		return false
	}
	return now.Sub(*r.LastScannedAt) >= r.SyncInterval()
}

// SyncInterval returns the configured interval as a duration.
func (r *Repository) SyncInterval() time.Duration {
	return time.Duration(r.SyncIntervalMinutes) * time.Minute
}

// Snapshot projects the lifecycle fields served to polling clients.
func (r *Repository) Snapshot(version uint64) *StatusSnapshot {
	return &StatusSnapshot{
		RepositoryID:  r.ID,
		ScanStatus:    r.ScanStatus,
		Progress:      r.Progress,
		CurrentStep:   r.CurrentStep,
		Details:       r.Details.Clone(),
		LastScannedAt: r.LastScannedAt,
		Version:       version,
	}
}

// Summary projects the fields shown in namespace listings.
func (r *Repository) Summary() RepositorySummary {
	return RepositorySummary{
		ID:                  r.ID,
		NamespaceIDs:        append([]string(nil), r.NamespaceIDs...),
		GitURL:              r.GitURL,
		DefaultBranch:       r.DefaultBranch,
		ScanStatus:          r.ScanStatus,
		Progress:            r.Progress,
		CurrentStep:         r.CurrentStep,
		RealtimeSyncEnabled: r.RealtimeSyncEnabled,
		SyncIntervalMinutes: r.SyncIntervalMinutes,
		LastScannedAt:       r.LastScannedAt,
		CreatedAt:           r.CreatedAt,
	}
}

// StatusUpdate carries the lifecycle fields written by a pipeline run.
type StatusUpdate struct {
	ScanStatus    ScanStatus
	Progress      int
	CurrentStep   string
	Details       Details
	LastScannedAt *time.Time
}

// Apply writes the update onto r. LastScannedAt is only replaced when set.
func (u StatusUpdate) Apply(r *Repository, now time.Time) {
	r.ScanStatus = u.ScanStatus
	r.Progress = u.Progress
	r.CurrentStep = u.CurrentStep
	r.Details = u.Details.Clone()
	if u.LastScannedAt != nil {
		t := *u.LastScannedAt
		r.LastScannedAt = &t
	}
	r.UpdatedAt = now
}

// ConfigUpdate carries configuration changes. Nil fields are left untouched.
type ConfigUpdate struct {
	RealtimeSyncEnabled *bool
	SyncIntervalMinutes *int
	NamespaceIDs        []string
}

// Apply writes the update onto r.
func (u ConfigUpdate) Apply(r *Repository, now time.Time) {
	if u.RealtimeSyncEnabled != nil {
		r.RealtimeSyncEnabled = *u.RealtimeSyncEnabled
	}
	if u.SyncIntervalMinutes != nil {
		r.SyncIntervalMinutes = *u.SyncIntervalMinutes
	}
	if u.NamespaceIDs != nil {
		r.NamespaceIDs = append([]string(nil), u.NamespaceIDs...)
	}
	r.UpdatedAt = now
}

// StatusSnapshot is the read model served by the status endpoint.
type StatusSnapshot struct {
	RepositoryID  string     `json:"repositoryId"`
	ScanStatus    ScanStatus `json:"scanStatus"`
	Progress      int        `json:"progress"`
	CurrentStep   string     `json:"currentStep"`
	Details       Details    `json:"details,omitempty"`
	LastScannedAt *time.Time `json:"lastScannedAt,omitempty"`
	Version       uint64     `json:"version"`
}

// RepositorySummary is a listing row for a namespace view.
type RepositorySummary struct {
	ID                  string     `json:"id"`
	NamespaceIDs        []string   `json:"namespaceIds"`
	GitURL              string     `json:"gitUrl"`
	DefaultBranch       string     `json:"defaultBranch"`
	ScanStatus          ScanStatus `json:"scanStatus"`
	Progress            int        `json:"progress"`
	CurrentStep         string     `json:"currentStep"`
	RealtimeSyncEnabled bool       `json:"realtimeSyncEnabled"`
	SyncIntervalMinutes int        `json:"syncIntervalMinutes"`
	LastScannedAt       *time.Time `json:"lastScannedAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
}
