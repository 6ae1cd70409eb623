package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-ingest/internal/errors"
	"github.com/Kamar-Folarin/repo-ingest/internal/gateway"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
	"github.com/Kamar-Folarin/repo-ingest/internal/pipeline"
)

const (
	// MaxWait bounds a long-poll on the status endpoint.
	MaxWait = 30 * time.Second

	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// Gateway is the command and query surface the handlers serve.
type Gateway interface {
	Import(ctx context.Context, actorID string, req gateway.ImportRequest) (*models.Repository, error)
	StartScan(ctx context.Context, actorID, repositoryID string) (*pipeline.RunHandle, error)
	SyncNow(ctx context.Context, actorID, repositoryID string) (*pipeline.RunHandle, error)
	Cancel(ctx context.Context, actorID, repositoryID string) error
	UpdateSyncSettings(ctx context.Context, actorID, repositoryID string, settings gateway.SyncSettings) (*models.Repository, error)
	UpdateNamespaces(ctx context.Context, actorID, repositoryID string, namespaceIDs []string) (*models.Repository, error)
	GetStatus(ctx context.Context, actorID, repositoryID string) (*models.StatusSnapshot, error)
	WaitForStatus(ctx context.Context, actorID, repositoryID string, version uint64, wait time.Duration) (*models.StatusSnapshot, error)
	PollAfter(s *models.StatusSnapshot) time.Duration
	ListForNamespace(ctx context.Context, actorID, namespaceID string) ([]models.RepositorySummary, error)
	AuditLog(ctx context.Context, actorID, repositoryID string, limit int) ([]*models.AuditEvent, error)
}

type Handler struct {
	gateway Gateway
	logger  *logrus.Logger
}

func NewHandler(gw Gateway, logger *logrus.Logger) *Handler {
	return &Handler{
		gateway: gw,
		logger:  logger,
	}
}

// ImportRepository godoc
// @Summary Import a repository
// @Description Create a repository record and start its import pipeline
// @Tags repositories
// @Accept json
// @Produce json
// @Param X-Actor-ID header string true "Acting user"
// @Param request body ImportRequest true "Repository to import"
// @Success 202 {object} ImportResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /import [post]
func (h *Handler) ImportRepository(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, errors.NewValidationError("invalid request body: "+err.Error(), err))
		return
	}

	repo, err := h.gateway.Import(c.Request.Context(), actorID(c), gateway.ImportRequest{
		GitURL:              req.GitURL,
		NamespaceIDs:        req.NamespaceIDs,
		DefaultBranch:       req.DefaultBranch,
		RealtimeSyncEnabled: req.RealtimeSyncEnabled,
		SyncIntervalMinutes: req.SyncIntervalMinutes,
	})
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, ImportResponse{RepositoryID: repo.ID, ScanStatus: models.StatusCloning})
}

// StartScan godoc
// @Summary Start a scan
// @Description Run the pipeline for a repository that is not currently running
// @Tags pipeline
// @Produce json
// @Param X-Actor-ID header string true "Acting user"
// @Param id path string true "Repository ID"
// @Success 202 {object} RunResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /scan/{id} [post]
func (h *Handler) StartScan(c *gin.Context) {
	handle, err := h.gateway.StartScan(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, runResponse(handle))
}

// SyncNow godoc
// @Summary Sync a repository now
// @Description Re-run the pipeline from the namespace scan, regardless of the realtime sync setting
// @Tags pipeline
// @Produce json
// @Param X-Actor-ID header string true "Acting user"
// @Param id path string true "Repository ID"
// @Success 202 {object} RunResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sync-now/{id} [post]
func (h *Handler) SyncNow(c *gin.Context) {
	handle, err := h.gateway.SyncNow(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, runResponse(handle))
}

// CancelRun godoc
// @Summary Cancel the active run
// @Tags pipeline
// @Produce json
// @Param X-Actor-ID header string true "Acting user"
// @Param id path string true "Repository ID"
// @Success 202 {object} map[string]string
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse "No run in progress"
// @Router /cancel/{id} [post]
func (h *Handler) CancelRun(c *gin.Context) {
	if err := h.gateway.Cancel(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

// UpdateSyncSettings godoc
// @Summary Update sync settings
// @Description Change realtime sync and its interval. An in-flight run is not interrupted.
// @Tags repositories
// @Accept json
// @Produce json
// @Param X-Actor-ID header string true "Acting user"
// @Param id path string true "Repository ID"
// @Param request body SyncSettingsRequest true "Settings to change"
// @Success 200 {object} models.Repository
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /sync-settings/{id} [put]
func (h *Handler) UpdateSyncSettings(c *gin.Context) {
	var req SyncSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, errors.NewValidationError("invalid request body: "+err.Error(), err))
		return
	}

	repo, err := h.gateway.UpdateSyncSettings(c.Request.Context(), actorID(c), c.Param("id"), gateway.SyncSettings{
		RealtimeSyncEnabled: req.RealtimeSyncEnabled,
		SyncIntervalMinutes: req.SyncIntervalMinutes,
	})
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, repo)
}

// UpdateNamespaces godoc
// @Summary Replace namespaces
// @Tags repositories
// @Accept json
// @Produce json
// @Param X-Actor-ID header string true "Acting user"
// @Param id path string true "Repository ID"
// @Param request body NamespacesRequest true "New namespace set"
// @Success 200 {object} models.Repository
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse "Empty namespace set"
// @Router /namespaces/{id} [put]
func (h *Handler) UpdateNamespaces(c *gin.Context) {
	var req NamespacesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, errors.NewValidationError("invalid request body: "+err.Error(), err))
		return
	}

	repo, err := h.gateway.UpdateNamespaces(c.Request.Context(), actorID(c), c.Param("id"), req.NamespaceIDs)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, repo)
}

// GetStatus godoc
// @Summary Get repository status
// @Description Latest committed status. With version, waits up to wait for a newer snapshot.
// @Tags status
// @Produce json
// @Param X-Actor-ID header string true "Acting user"
// @Param id path string true "Repository ID"
// @Param version query int false "Last version seen by the client"
// @Param wait query string false "Maximum wait, e.g. 10s (capped at 30s)"
// @Success 200 {object} StatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /status/{id} [get]
func (h *Handler) GetStatus(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	var (
		snapshot *models.StatusSnapshot
		err      error
	)
	if v := c.Query("version"); v != "" {
		version, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			h.respondWithError(c, errors.NewValidationError("invalid version parameter", perr))
			return
		}
		wait, perr := parseWait(c.Query("wait"))
		if perr != nil {
			h.respondWithError(c, errors.NewValidationError("invalid wait parameter", perr))
			return
		}
		snapshot, err = h.gateway.WaitForStatus(ctx, actorID(c), id, version, wait)
	} else {
		snapshot, err = h.gateway.GetStatus(ctx, actorID(c), id)
	}
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		StatusSnapshot: *snapshot,
		PollAfterMs:    h.gateway.PollAfter(snapshot).Milliseconds(),
	})
}

// ListNamespaceRepositories godoc
// @Summary List repositories in a namespace
// @Tags repositories
// @Produce json
// @Param X-Actor-ID header string true "Acting user"
// @Param namespaceId path string true "Namespace ID"
// @Success 200 {object} RepositoryListResponse
// @Failure 403 {object} ErrorResponse
// @Router /namespaces/{namespaceId}/repositories [get]
func (h *Handler) ListNamespaceRepositories(c *gin.Context) {
	repos, err := h.gateway.ListForNamespace(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	resp := RepositoryListResponse{Data: repos}
	for _, r := range repos {
		if r.ScanStatus.IsActive() {
			resp.Active = true
			break
		}
	}
	if resp.Data == nil {
		resp.Data = []models.RepositorySummary{}
	}
	c.JSON(http.StatusOK, resp)
}

// GetAuditLog godoc
// @Summary Recent audit events
// @Tags audit
// @Produce json
// @Param X-Actor-ID header string true "Acting user"
// @Param id path string true "Repository ID"
// @Param limit query int false "Number of events" default(50)
// @Success 200 {object} AuditLogResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /audit/{id} [get]
func (h *Handler) GetAuditLog(c *gin.Context) {
	limit, err := getIntQueryParam(c, "limit", defaultAuditLimit)
	if err != nil || limit <= 0 {
		h.respondWithError(c, errors.NewValidationError("invalid limit parameter", err))
		return
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	events, err := h.gateway.AuditLog(c.Request.Context(), actorID(c), c.Param("id"), limit)
	if err != nil {
		h.respondWithError(c, err)
		return
	}
	if events == nil {
		events = []*models.AuditEvent{}
	}
	c.JSON(http.StatusOK, AuditLogResponse{Data: events})
}

// Health godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func runResponse(h *pipeline.RunHandle) RunResponse {
	return RunResponse{
		RepositoryID: h.RepositoryID,
		RunID:        h.RunID,
		Mode:         string(h.Mode),
		EntryStage:   h.EntryStage,
		StartedAt:    h.StartedAt,
	}
}

// statusCode maps error types to HTTP status codes
func statusCode(errType errors.ErrorType) int {
	switch errType {
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrConflict:
		return http.StatusConflict
	case errors.ErrInvalidState:
		return http.StatusUnprocessableEntity
	case errors.ErrInvalidInput:
		return http.StatusBadRequest
	case errors.ErrForbidden:
		return http.StatusForbidden
	case errors.ErrUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func (h *Handler) respondWithError(c *gin.Context, err error) {
	errType, ok := errors.TypeOf(err)
	if !ok {
		errType = errors.ErrInternal
	}
	code := statusCode(errType)

	message := err.Error()
	if code == http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		message = "internal server error"
	} else {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			message = appErr.Message
		}
	}
	c.AbortWithStatusJSON(code, ErrorResponse{Error: message, Type: string(errType)})
}

// parseWait accepts a Go duration ("10s") or whole seconds ("10").
func parseWait(v string) (time.Duration, error) {
	if v == "" {
		return MaxWait, nil
	}
	wait, err := time.ParseDuration(v)
	if err != nil {
		secs, serr := strconv.Atoi(v)
		if serr != nil {
			return 0, err
		}
		wait = time.Duration(secs) * time.Second
	}
	if wait < 0 {
		wait = 0
	}
	if wait > MaxWait {
		wait = MaxWait
	}
	return wait, nil
}

func getIntQueryParam(c *gin.Context, param string, defaultValue int) (int, error) {
	value := c.Query(param)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}
