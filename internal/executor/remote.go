package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-ingest/internal/config"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
	"github.com/Kamar-Folarin/repo-ingest/internal/pipeline"
)

// Job states reported by the worker service.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

type jobRequest struct {
	Stage         string   `json:"stage"`
	RunID         string   `json:"runId"`
	RepositoryID  string   `json:"repositoryId"`
	NamespaceIDs  []string `json:"namespaceIds"`
	GitURL        string   `json:"gitUrl"`
	DefaultBranch string   `json:"defaultBranch"`
	ObjectPrefix  string   `json:"objectPrefix"`
}

type jobStatus struct {
	ID       string         `json:"id"`
	State    string         `json:"state"`
	Progress int            `json:"progress"`
	Message  string         `json:"message"`
	Details  models.Details `json:"details"`
	Error    string         `json:"error"`
}

// WorkerError is a non-success response from the worker service.
type WorkerError struct {
	StatusCode int
	Body       string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker service returned %d: %s", e.StatusCode, e.Body)
}

// RemoteJobExecutor runs a stage as a job on the external worker service
// and follows it until it finishes.
type RemoteJobExecutor struct {
	stage          models.ScanStatus
	baseURL        string
	client         *http.Client
	pollInterval   time.Duration
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *logrus.Logger
}

// NewRemoteJobExecutor creates an executor for one worker-backed stage
func NewRemoteJobExecutor(stage models.ScanStatus, cfg *config.WorkerConfig, client *http.Client, logger *logrus.Logger) *RemoteJobExecutor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	pollInterval := cfg.PollInterval.Duration()
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &RemoteJobExecutor{
		stage:          stage,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		client:         client,
		pollInterval:   pollInterval,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: 250 * time.Millisecond,
		maxBackoff:     10 * time.Second,
		logger:         logger,
	}
}

func (e *RemoteJobExecutor) Execute(ctx context.Context, target pipeline.Target, report pipeline.ProgressFunc) error {
	logger := e.logger.WithFields(logrus.Fields{
		"repository_id": target.RepositoryID,
		"run_id":        target.RunID,
		"stage":         e.stage,
	})

	var job jobStatus
	err := e.do(ctx, http.MethodPost, e.baseURL+"/v1/jobs", jobRequest{
		Stage:         string(e.stage),
		RunID:         target.RunID,
		RepositoryID:  target.RepositoryID,
		NamespaceIDs:  target.NamespaceIDs,
		GitURL:        target.GitURL,
		DefaultBranch: target.DefaultBranch,
		ObjectPrefix:  target.ObjectPrefix,
	}, &job)
	if err != nil {
		return fmt.Errorf("failed to submit %s job: %w", e.stage, err)
	}
	if job.ID == "" {
		return fmt.Errorf("worker service returned no job id")
	}
	logger = logger.WithField("job_id", job.ID)
	logger.Info("Submitted stage job")

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	lastProgress, lastMessage := -1, ""
	for {
		switch job.State {
		case JobSucceeded:
			report(pipeline.Report{Percent: 100, Message: job.Message, Detail: jobDetail(job)})
			logger.Info("Stage job succeeded")
			return nil
		case JobFailed:
			msg := job.Error
			if msg == "" {
				msg = "job failed"
			}
			return fmt.Errorf("%s job %s: %s", e.stage, job.ID, msg)
		}

		if job.Progress != lastProgress || job.Message != lastMessage {
			lastProgress, lastMessage = job.Progress, job.Message
			report(pipeline.Report{Percent: job.Progress, Message: job.Message, Detail: jobDetail(job)})
		} else {
			// The worker answered, so the job is alive even if it has not moved.
			report(pipeline.Report{Heartbeat: true})
		}

		select {
		case <-ctx.Done():
			e.cancelJob(job.ID, logger)
			return ctx.Err()
		case <-ticker.C:
		}

		var next jobStatus
		if err := e.do(ctx, http.MethodGet, e.baseURL+"/v1/jobs/"+url.PathEscape(job.ID), nil, &next); err != nil {
			if ctx.Err() != nil {
				e.cancelJob(job.ID, logger)
				return ctx.Err()
			}
			return fmt.Errorf("failed to poll %s job %s: %w", e.stage, job.ID, err)
		}
		job = next
	}
}

func jobDetail(job jobStatus) models.Details {
	detail := job.Details.Clone()
	if detail == nil {
		detail = models.Details{}
	}
	detail["jobId"] = job.ID
	detail["jobState"] = job.State
	return detail
}

// cancelJob asks the worker service to stop a job. Best effort.
func (e *RemoteJobExecutor) cancelJob(jobID string, logger *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.do(ctx, http.MethodDelete, e.baseURL+"/v1/jobs/"+url.PathEscape(jobID), nil, nil); err != nil {
		logger.WithError(err).Warn("Failed to cancel stage job")
	}
}

// do performs a JSON request, retrying network errors, 429 and 5xx with
// exponential backoff.
func (e *RemoteJobExecutor) do(ctx context.Context, method, endpoint string, body, result interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var lastErr error
	backoff := e.initialBackoff
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(backoff*2), float64(e.maxBackoff)))
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		if resp.StatusCode >= 300 {
			lastErr = &WorkerError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				continue
			}
			return lastErr
		}

		if result != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
