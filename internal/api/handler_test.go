package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Kamar-Folarin/repo-ingest/internal/errors"
	"github.com/Kamar-Folarin/repo-ingest/internal/gateway"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
	"github.com/Kamar-Folarin/repo-ingest/internal/pipeline"
)

// MockGateway is a mock implementation of Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Import(ctx context.Context, actorID string, req gateway.ImportRequest) (*models.Repository, error) {
	args := m.Called(ctx, actorID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Repository), args.Error(1)
}

func (m *MockGateway) StartScan(ctx context.Context, actorID, repositoryID string) (*pipeline.RunHandle, error) {
	args := m.Called(ctx, actorID, repositoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.RunHandle), args.Error(1)
}

func (m *MockGateway) SyncNow(ctx context.Context, actorID, repositoryID string) (*pipeline.RunHandle, error) {
	args := m.Called(ctx, actorID, repositoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.RunHandle), args.Error(1)
}

func (m *MockGateway) Cancel(ctx context.Context, actorID, repositoryID string) error {
	args := m.Called(ctx, actorID, repositoryID)
	return args.Error(0)
}

func (m *MockGateway) UpdateSyncSettings(ctx context.Context, actorID, repositoryID string, settings gateway.SyncSettings) (*models.Repository, error) {
	args := m.Called(ctx, actorID, repositoryID, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Repository), args.Error(1)
}

func (m *MockGateway) UpdateNamespaces(ctx context.Context, actorID, repositoryID string, namespaceIDs []string) (*models.Repository, error) {
	args := m.Called(ctx, actorID, repositoryID, namespaceIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Repository), args.Error(1)
}

func (m *MockGateway) GetStatus(ctx context.Context, actorID, repositoryID string) (*models.StatusSnapshot, error) {
	args := m.Called(ctx, actorID, repositoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StatusSnapshot), args.Error(1)
}

func (m *MockGateway) WaitForStatus(ctx context.Context, actorID, repositoryID string, version uint64, wait time.Duration) (*models.StatusSnapshot, error) {
	args := m.Called(ctx, actorID, repositoryID, version, wait)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StatusSnapshot), args.Error(1)
}

func (m *MockGateway) PollAfter(s *models.StatusSnapshot) time.Duration {
	args := m.Called(s)
	return args.Get(0).(time.Duration)
}

func (m *MockGateway) ListForNamespace(ctx context.Context, actorID, namespaceID string) ([]models.RepositorySummary, error) {
	args := m.Called(ctx, actorID, namespaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RepositorySummary), args.Error(1)
}

func (m *MockGateway) AuditLog(ctx context.Context, actorID, repositoryID string, limit int) ([]*models.AuditEvent, error) {
	args := m.Called(ctx, actorID, repositoryID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditEvent), args.Error(1)
}

func setupTestRouter(t *testing.T) (*gin.Engine, *MockGateway) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil)) // Discard logs during tests

	gw := new(MockGateway)
	t.Cleanup(func() { gw.AssertExpectations(t) })
	return SetupRouter(NewHandler(gw, logger), logger), gw
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ActorHeader, "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestImportRepository(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		router, gw := setupTestRouter(t)
		gw.On("Import", mock.Anything, "alice", gateway.ImportRequest{
			GitURL:       "https://github.com/acme/api",
			NamespaceIDs: []string{"ns1"},
		}).Return(&models.Repository{ID: "repo-1"}, nil)

		w := doRequest(router, http.MethodPost, "/api/v1/import", ImportRequest{
			GitURL:       "https://github.com/acme/api",
			NamespaceIDs: []string{"ns1"},
		})

		assert.Equal(t, http.StatusAccepted, w.Code)
		var resp ImportResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "repo-1", resp.RepositoryID)
	})

	t.Run("missing git url", func(t *testing.T) {
		router, _ := setupTestRouter(t)
		w := doRequest(router, http.MethodPost, "/api/v1/import", map[string]interface{}{"namespaceIds": []string{"ns1"}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, string(errors.ErrInvalidInput), decodeError(t, w).Type)
	})

	errorCases := []struct {
		name   string
		err    error
		status int
	}{
		{"duplicate", errors.NewConflictError("already imported", nil), http.StatusConflict},
		{"empty namespaces", errors.NewInvalidStateError("no namespaces", nil), http.StatusUnprocessableEntity},
		{"forbidden", errors.NewForbiddenError("denied", nil), http.StatusForbidden},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			router, gw := setupTestRouter(t)
			gw.On("Import", mock.Anything, "alice", mock.Anything).Return(nil, tc.err)

			w := doRequest(router, http.MethodPost, "/api/v1/import", ImportRequest{GitURL: "https://github.com/acme/api"})
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestSyncNow(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		router, gw := setupTestRouter(t)
		gw.On("SyncNow", mock.Anything, "alice", "repo-1").Return(&pipeline.RunHandle{
			RunID:        "run-1",
			RepositoryID: "repo-1",
			Mode:         pipeline.ModeResync,
			EntryStage:   models.StatusScanningNamespaces,
		}, nil)

		w := doRequest(router, http.MethodPost, "/api/v1/sync-now/repo-1", nil)
		assert.Equal(t, http.StatusAccepted, w.Code)

		var resp RunResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "run-1", resp.RunID)
		assert.Equal(t, models.StatusScanningNamespaces, resp.EntryStage)
		assert.Equal(t, "resync", resp.Mode)
	})

	t.Run("already running", func(t *testing.T) {
		router, gw := setupTestRouter(t)
		gw.On("SyncNow", mock.Anything, "alice", "repo-1").Return(nil, errors.NewRunInProgressError("repo-1"))

		w := doRequest(router, http.MethodPost, "/api/v1/sync-now/repo-1", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, string(errors.ErrConflict), decodeError(t, w).Type)
	})
}

func TestStartScanNotFound(t *testing.T) {
	router, gw := setupTestRouter(t)
	gw.On("StartScan", mock.Anything, "alice", "missing").Return(nil, errors.NewRepositoryNotFoundError("missing"))

	w := doRequest(router, http.MethodPost, "/api/v1/scan/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelRun(t *testing.T) {
	router, gw := setupTestRouter(t)
	gw.On("Cancel", mock.Anything, "alice", "repo-1").Return(nil)

	w := doRequest(router, http.MethodPost, "/api/v1/cancel/repo-1", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestUpdateSyncSettings(t *testing.T) {
	router, gw := setupTestRouter(t)
	enabled := true
	gw.On("UpdateSyncSettings", mock.Anything, "alice", "repo-1", gateway.SyncSettings{RealtimeSyncEnabled: &enabled}).
		Return(&models.Repository{ID: "repo-1", RealtimeSyncEnabled: true}, nil)

	w := doRequest(router, http.MethodPut, "/api/v1/sync-settings/repo-1", SyncSettingsRequest{RealtimeSyncEnabled: &enabled})
	assert.Equal(t, http.StatusOK, w.Code)

	var repo models.Repository
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &repo))
	assert.True(t, repo.RealtimeSyncEnabled)
}

func TestUpdateNamespaces(t *testing.T) {
	t.Run("empty set", func(t *testing.T) {
		router, gw := setupTestRouter(t)
		gw.On("UpdateNamespaces", mock.Anything, "alice", "repo-1", []string{}).
			Return(nil, errors.NewInvalidStateError("a repository must belong to at least one namespace", nil))

		w := doRequest(router, http.MethodPut, "/api/v1/namespaces/repo-1", NamespacesRequest{NamespaceIDs: []string{}})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "a repository must belong to at least one namespace", resp.Error)
		assert.Equal(t, string(errors.ErrInvalidState), resp.Type)
	})

	t.Run("ok", func(t *testing.T) {
		router, gw := setupTestRouter(t)
		gw.On("UpdateNamespaces", mock.Anything, "alice", "repo-1", []string{"ns1", "ns2"}).
			Return(&models.Repository{ID: "repo-1", NamespaceIDs: []string{"ns1", "ns2"}}, nil)

		w := doRequest(router, http.MethodPut, "/api/v1/namespaces/repo-1", NamespacesRequest{NamespaceIDs: []string{"ns1", "ns2"}})
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestGetStatus(t *testing.T) {
	snapshot := &models.StatusSnapshot{
		RepositoryID: "repo-1",
		ScanStatus:   models.StatusParsingFiles,
		Progress:     42,
		CurrentStep:  "Parsing files",
		Version:      7,
	}

	t.Run("current snapshot", func(t *testing.T) {
		router, gw := setupTestRouter(t)
		gw.On("GetStatus", mock.Anything, "alice", "repo-1").Return(snapshot, nil)
		gw.On("PollAfter", snapshot).Return(2 * time.Second)

		w := doRequest(router, http.MethodGet, "/api/v1/status/repo-1", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "PARSING_FILES", resp["scanStatus"])
		assert.Equal(t, float64(42), resp["progress"])
		assert.Equal(t, float64(7), resp["version"])
		assert.Equal(t, float64(2000), resp["pollAfterMs"])
	})

	t.Run("long poll", func(t *testing.T) {
		router, gw := setupTestRouter(t)
		gw.On("WaitForStatus", mock.Anything, "alice", "repo-1", uint64(6), 10*time.Second).Return(snapshot, nil)
		gw.On("PollAfter", snapshot).Return(2 * time.Second)

		w := doRequest(router, http.MethodGet, "/api/v1/status/repo-1?version=6&wait=10s", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("wait is capped", func(t *testing.T) {
		router, gw := setupTestRouter(t)
		gw.On("WaitForStatus", mock.Anything, "alice", "repo-1", uint64(6), MaxWait).Return(snapshot, nil)
		gw.On("PollAfter", snapshot).Return(2 * time.Second)

		w := doRequest(router, http.MethodGet, "/api/v1/status/repo-1?version=6&wait=600", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid version", func(t *testing.T) {
		router, _ := setupTestRouter(t)
		w := doRequest(router, http.MethodGet, "/api/v1/status/repo-1?version=abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("internal error hides details", func(t *testing.T) {
		router, gw := setupTestRouter(t)
		gw.On("GetStatus", mock.Anything, "alice", "repo-1").Return(nil, assert.AnError)

		w := doRequest(router, http.MethodGet, "/api/v1/status/repo-1", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, "internal server error", resp.Error)
		assert.Equal(t, string(errors.ErrInternal), resp.Type)
	})
}

func TestListNamespaceRepositories(t *testing.T) {
	router, gw := setupTestRouter(t)
	gw.On("ListForNamespace", mock.Anything, "alice", "ns1").Return([]models.RepositorySummary{
		{ID: "a", ScanStatus: models.StatusCompleted},
		{ID: "b", ScanStatus: models.StatusIndexing},
	}, nil)

	w := doRequest(router, http.MethodGet, "/api/v1/namespaces/ns1/repositories", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp RepositoryListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
	assert.True(t, resp.Active)
}

func TestGetAuditLog(t *testing.T) {
	t.Run("default limit", func(t *testing.T) {
		router, gw := setupTestRouter(t)
		gw.On("AuditLog", mock.Anything, "alice", "repo-1", defaultAuditLimit).Return(nil, nil)

		w := doRequest(router, http.MethodGet, "/api/v1/audit/repo-1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":[]}`, w.Body.String())
	})

	t.Run("limit is capped", func(t *testing.T) {
		router, gw := setupTestRouter(t)
		gw.On("AuditLog", mock.Anything, "alice", "repo-1", maxAuditLimit).Return([]*models.AuditEvent{{ID: "e1"}}, nil)

		w := doRequest(router, http.MethodGet, "/api/v1/audit/repo-1?limit=10000", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid limit", func(t *testing.T) {
		router, _ := setupTestRouter(t)
		w := doRequest(router, http.MethodGet, "/api/v1/audit/repo-1?limit=-1", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestParseWait(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", MaxWait},
		{"5s", 5 * time.Second},
		{"5", 5 * time.Second},
		{"1h", MaxWait},
		{"-3s", 0},
	}
	for _, tt := range tests {
		got, err := parseWait(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseWait("soon")
	assert.Error(t, err)
}
