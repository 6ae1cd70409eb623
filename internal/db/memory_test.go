package db

import (
	"context"
	"testing"
	"time"

	"github.com/Kamar-Folarin/repo-ingest/internal/errors"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(id string, namespaces ...string) *models.Repository {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.Repository{
		ID:            id,
		NamespaceIDs:  namespaces,
		GitURL:        "https://github.com/acme/" + id + ".git",
		NormalizedURL: "https://github.com/acme/" + id,
		ScanStatus:    models.StatusPending,
		CurrentStep:   models.StatusPending.Label(),
		AddedByID:     "alice",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// storeContract runs the same behaviour checks against any Store.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		require.NoError(t, store.CreateRepository(ctx, newRepo("r1", "ns1")))

		got, err := store.GetRepository(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, []string{"ns1"}, got.NamespaceIDs)
		assert.Equal(t, models.StatusPending, got.ScanStatus)
		assert.Nil(t, got.LastScannedAt)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		err := store.CreateRepository(ctx, newRepo("r1", "ns1"))
		assert.True(t, errors.IsConflict(err))
	})

	t.Run("missing repository", func(t *testing.T) {
		_, err := store.GetRepository(ctx, "nope")
		assert.True(t, errors.IsNotFound(err))

		err = store.UpdateRepositoryStatus(ctx, "nope", models.StatusUpdate{ScanStatus: models.StatusCloning})
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("status and config updates do not overlap", func(t *testing.T) {
		require.NoError(t, store.CreateRepository(ctx, newRepo("r2", "ns1", "ns2")))

		enabled := true
		interval := 15
		require.NoError(t, store.UpdateRepositoryConfig(ctx, "r2", models.ConfigUpdate{
			RealtimeSyncEnabled: &enabled,
			SyncIntervalMinutes: &interval,
		}))

		scanned := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.UpdateRepositoryStatus(ctx, "r2", models.StatusUpdate{
			ScanStatus:    models.StatusCompleted,
			Progress:      100,
			CurrentStep:   models.StatusCompleted.Label(),
			Details:       models.Details{"files": float64(12)},
			LastScannedAt: &scanned,
		}))

		got, err := store.GetRepository(ctx, "r2")
		require.NoError(t, err)
		assert.True(t, got.RealtimeSyncEnabled)
		assert.Equal(t, 15, got.SyncIntervalMinutes)
		assert.Equal(t, models.StatusCompleted, got.ScanStatus)
		assert.Equal(t, 100, got.Progress)
		assert.Equal(t, float64(12), got.Details["files"])
		require.NotNil(t, got.LastScannedAt)
		assert.True(t, scanned.Equal(*got.LastScannedAt))

		// a later status write without a scan time keeps the previous one
		require.NoError(t, store.UpdateRepositoryStatus(ctx, "r2", models.StatusUpdate{
			ScanStatus: models.StatusScanningNamespaces,
		}))
		got, err = store.GetRepository(ctx, "r2")
		require.NoError(t, err)
		require.NotNil(t, got.LastScannedAt)
		assert.True(t, scanned.Equal(*got.LastScannedAt))
		assert.True(t, got.RealtimeSyncEnabled)
	})

	t.Run("listings", func(t *testing.T) {
		byNS, err := store.ListRepositoriesByNamespace(ctx, "ns2")
		require.NoError(t, err)
		require.Len(t, byNS, 1)
		assert.Equal(t, "r2", byNS[0].ID)

		synced, err := store.ListSyncEnabledRepositories(ctx)
		require.NoError(t, err)
		require.Len(t, synced, 1)
		assert.Equal(t, "r2", synced[0].ID)

		active, err := store.ListActiveRepositories(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, models.StatusScanningNamespaces, active[0].ScanStatus)

		byURL, err := store.GetRepositoryByURL(ctx, "https://github.com/acme/r1")
		require.NoError(t, err)
		require.Len(t, byURL, 1)
		assert.Equal(t, "https://github.com/acme/r1.git", byURL[0].GitURL)
	})

	t.Run("namespace reassignment", func(t *testing.T) {
		require.NoError(t, store.UpdateRepositoryConfig(ctx, "r1", models.ConfigUpdate{
			NamespaceIDs: []string{"ns3"},
		}))
		got, err := store.GetRepository(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, []string{"ns3"}, got.NamespaceIDs)
		assert.False(t, got.RealtimeSyncEnabled)
	})

	t.Run("audit events newest first", func(t *testing.T) {
		base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		for i, action := range []string{models.AuditRepositoryImported, models.AuditRunStarted, models.AuditRunCompleted} {
			require.NoError(t, store.AppendAuditEvent(ctx, &models.AuditEvent{
				ID:           action,
				Action:       action,
				RepositoryID: "r1",
				ActorID:      "alice",
				CreatedAt:    base.Add(time.Duration(i) * time.Minute),
			}))
		}

		events, err := store.ListAuditEvents(ctx, "r1", 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, models.AuditRunCompleted, events[0].Action)
		assert.Equal(t, models.AuditRunStarted, events[1].Action)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	repo := newRepo("r1", "ns1")
	require.NoError(t, store.CreateRepository(ctx, repo))

	repo.NamespaceIDs[0] = "mutated"
	got, err := store.GetRepository(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "ns1", got.NamespaceIDs[0])

	got.ScanStatus = models.StatusFailed
	again, err := store.GetRepository(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.ScanStatus)
}
