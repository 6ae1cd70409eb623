package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kamar-Folarin/repo-ingest/internal/config"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
	"github.com/Kamar-Folarin/repo-ingest/internal/pipeline"
)

// fakeWorker serves a scripted sequence of job states.
type fakeWorker struct {
	mu        sync.Mutex
	submitted []jobRequest
	states    []jobStatus
	polls     int
	deleted   int32
	failFirst int32
}

func (w *fakeWorker) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/jobs", func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		if atomic.AddInt32(&w.failFirst, -1) >= 0 {
			rw.WriteHeader(http.StatusBadGateway)
			return
		}
		var req jobRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.mu.Lock()
		w.submitted = append(w.submitted, req)
		w.mu.Unlock()
		rw.WriteHeader(http.StatusAccepted)
		json.NewEncoder(rw).Encode(jobStatus{ID: "job-1", State: JobQueued})
	})
	mux.HandleFunc("/v1/jobs/job-1", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			atomic.AddInt32(&w.deleted, 1)
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		w.mu.Lock()
		idx := w.polls
		if idx >= len(w.states) {
			idx = len(w.states) - 1
		}
		w.polls++
		state := w.states[idx]
		w.mu.Unlock()
		json.NewEncoder(rw).Encode(state)
	})
	return mux
}

func newRemoteExecutor(baseURL string) *RemoteJobExecutor {
	cfg := &config.WorkerConfig{
		BaseURL:      baseURL,
		PollInterval: config.Duration(5 * time.Millisecond),
		MaxRetries:   2,
	}
	e := NewRemoteJobExecutor(models.StatusParsingFiles, cfg, nil, quietLogger())
	e.initialBackoff = time.Millisecond
	return e
}

func TestRemoteJobExecutorFollowsJob(t *testing.T) {
	worker := &fakeWorker{
		failFirst: 1,
		states: []jobStatus{
			{ID: "job-1", State: JobRunning, Progress: 30, Message: "parsing"},
			{ID: "job-1", State: JobRunning, Progress: 30, Message: "parsing"},
			{ID: "job-1", State: JobRunning, Progress: 70, Message: "parsing"},
			{ID: "job-1", State: JobSucceeded, Progress: 100, Details: models.Details{"files": 42}},
		},
	}
	srv := httptest.NewServer(worker.handler(t))
	defer srv.Close()

	c := &reportCollector{}
	err := newRemoteExecutor(srv.URL).Execute(context.Background(), pipeline.Target{
		RunID:        "run-1",
		RepositoryID: "r1",
		NamespaceIDs: []string{"ns1"},
		ObjectPrefix: "r1/",
	}, c.report)
	require.NoError(t, err)

	worker.mu.Lock()
	require.Len(t, worker.submitted, 1, "the 502 is retried")
	assert.Equal(t, "PARSING_FILES", worker.submitted[0].Stage)
	assert.Equal(t, "r1/", worker.submitted[0].ObjectPrefix)
	worker.mu.Unlock()

	var percents []int
	heartbeats := 0
	for _, r := range c.all() {
		if r.Heartbeat {
			heartbeats++
			continue
		}
		percents = append(percents, r.Percent)
	}
	assert.Equal(t, []int{0, 30, 70, 100}, percents)
	assert.Equal(t, 1, heartbeats, "the unchanged poll still reports liveness")
	all := c.all()
	last := all[len(all)-1]
	assert.Equal(t, "job-1", last.Detail["jobId"])
	assert.Equal(t, float64(42), last.Detail["files"])
}

func TestRemoteJobExecutorJobFailure(t *testing.T) {
	worker := &fakeWorker{
		states: []jobStatus{{ID: "job-1", State: JobFailed, Error: "grammar not supported"}},
	}
	srv := httptest.NewServer(worker.handler(t))
	defer srv.Close()

	err := newRemoteExecutor(srv.URL).Execute(context.Background(), pipeline.Target{RepositoryID: "r1"}, func(pipeline.Report) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grammar not supported")
}

func TestRemoteJobExecutorCancelsJob(t *testing.T) {
	worker := &fakeWorker{
		states: []jobStatus{{ID: "job-1", State: JobRunning, Progress: 10}},
	}
	srv := httptest.NewServer(worker.handler(t))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- newRemoteExecutor(srv.URL).Execute(ctx, pipeline.Target{RepositoryID: "r1"}, func(pipeline.Report) {})
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&worker.deleted))
}

func TestRemoteJobExecutorDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(rw, "unknown stage", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newRemoteExecutor(srv.URL).Execute(context.Background(), pipeline.Target{RepositoryID: "r1"}, func(pipeline.Report) {})
	require.Error(t, err)
	var workerErr *WorkerError
	require.ErrorAs(t, err, &workerErr)
	assert.Equal(t, http.StatusBadRequest, workerErr.StatusCode)
	assert.Equal(t, int32(1), calls)
}
