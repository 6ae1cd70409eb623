package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    ScanStatus
		to      ScanStatus
		wantErr bool
	}{
		{"import starts from pending", StatusPending, StatusCloning, false},
		{"resync starts from completed", StatusCompleted, StatusScanningNamespaces, false},
		{"retry starts from failed", StatusFailed, StatusCloning, false},
		{"forward by one", StatusCloning, StatusUploadingToFTP, false},
		{"forward skipping", StatusScanningNamespaces, StatusIndexing, false},
		{"complete from indexing", StatusIndexing, StatusCompleted, false},
		{"fail from any stage", StatusParsingFiles, StatusFailed, false},
		{"fail from pending", StatusPending, StatusFailed, false},
		{"reset failed to pending", StatusFailed, StatusPending, false},
		{"backwards", StatusParsingFiles, StatusCloning, true},
		{"same stage", StatusIndexing, StatusIndexing, true},
		{"fail twice", StatusFailed, StatusFailed, true},
		{"fail after completion", StatusCompleted, StatusFailed, true},
		{"enter at completed", StatusPending, StatusCompleted, true},
		{"pending from active", StatusCloning, StatusPending, true},
		{"legacy scanning cannot advance", StatusScanning, StatusIndexing, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Transition(tt.from, tt.to)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStagesFrom(t *testing.T) {
	stages, err := StagesFrom(StatusCloning)
	require.NoError(t, err)
	assert.Equal(t, []ScanStatus{
		StatusCloning, StatusUploadingToFTP, StatusScanningNamespaces,
		StatusParsingFiles, StatusGeneratingGraph, StatusIndexing,
	}, stages)

	stages, err = StagesFrom(StatusScanningNamespaces)
	require.NoError(t, err)
	assert.Equal(t, []ScanStatus{
		StatusScanningNamespaces, StatusParsingFiles, StatusGeneratingGraph, StatusIndexing,
	}, stages)

	_, err = StagesFrom(StatusCompleted)
	assert.Error(t, err)
	_, err = StagesFrom(StatusPending)
	assert.Error(t, err)
}

func TestStatusClassification(t *testing.T) {
	assert.False(t, StatusPending.IsActive())
	assert.False(t, StatusCompleted.IsActive())
	assert.False(t, StatusFailed.IsActive())
	assert.True(t, StatusCloning.IsActive())
	assert.True(t, StatusScanning.IsActive())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusScanning.IsStage())

	_, err := ParseScanStatus("CLONING")
	assert.NoError(t, err)
	_, err = ParseScanStatus("cloning")
	assert.Error(t, err)
}

func TestIsSyncDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sixAgo := now.Add(-6 * time.Minute)
	fourAgo := now.Add(-4 * time.Minute)

	repo := &Repository{RealtimeSyncEnabled: true, SyncIntervalMinutes: 5, LastScannedAt: &sixAgo}
	assert.True(t, repo.IsSyncDue(now))

	repo.LastScannedAt = &fourAgo
	assert.False(t, repo.IsSyncDue(now))

	repo.LastScannedAt = &sixAgo
	repo.RealtimeSyncEnabled = false
	assert.False(t, repo.IsSyncDue(now))

	neverScanned := &Repository{RealtimeSyncEnabled: true, SyncIntervalMinutes: 5}
	assert.False(t, neverScanned.IsSyncDue(now))
}

func TestRepositoryCloneIsIndependent(t *testing.T) {
	scanned := time.Now()
	repo := &Repository{
		ID:            "r1",
		NamespaceIDs:  []string{"ns1"},
		Details:       Details{"files": 3},
		LastScannedAt: &scanned,
	}
	cp := repo.Clone()
	cp.NamespaceIDs[0] = "other"
	cp.Details["files"] = 4

	assert.Equal(t, "ns1", repo.NamespaceIDs[0])
	assert.Equal(t, 3, repo.Details["files"])
	assert.NotSame(t, repo.LastScannedAt, cp.LastScannedAt)
}
