package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kamar-Folarin/repo-ingest/internal/config"
)

func setupTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := *config.DefaultGitHubConfig()
	cfg.APIBaseURL = server.URL
	cfg.Token = "test-token"

	return NewClient(cfg, logger, WithRetryConfig(3, 10*time.Millisecond, 50*time.Millisecond))
}

func TestClient_DefaultBranch(t *testing.T) {
	ctx := context.Background()

	t.Run("successful request", func(t *testing.T) {
		client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/repos/test-owner/test-repo", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

			w.Header().Set("X-RateLimit-Limit", "5000")
			w.Header().Set("X-RateLimit-Remaining", "4999")
			w.Header().Set("X-RateLimit-Reset", "1234567890")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"name":"test-repo","default_branch":"develop"}`))
		})

		branch, err := client.DefaultBranch(ctx, "test-owner", "test-repo")
		require.NoError(t, err)
		assert.Equal(t, "develop", branch)

		info := client.RateLimit()
		assert.Equal(t, 5000, info.Limit)
		assert.Equal(t, 4999, info.Remaining)
		assert.Equal(t, time.Unix(1234567890, 0), info.ResetTime)
	})

	t.Run("not found", func(t *testing.T) {
		client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not Found"}`))
		})

		_, err := client.DefaultBranch(ctx, "test-owner", "missing")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls int32
		client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"default_branch":"main"}`))
		})

		branch, err := client.DefaultBranch(ctx, "test-owner", "test-repo")
		require.NoError(t, err)
		assert.Equal(t, "main", branch)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("rate limit exhausted", func(t *testing.T) {
		client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-RateLimit-Limit", "60")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusForbidden)
		})

		_, err := client.DefaultBranch(ctx, "test-owner", "test-repo")
		require.Error(t, err)
		assert.True(t, IsRateLimitError(err))
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls int32
		client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := client.DefaultBranch(ctx, "test-owner", "test-repo")
		require.Error(t, err)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.False(t, apiErr.Retryable())
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("empty response branch", func(t *testing.T) {
		client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		})

		_, err := client.DefaultBranch(ctx, "test-owner", "test-repo")
		assert.Error(t, err)
	})

	t.Run("validation", func(t *testing.T) {
		client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		})

		_, err := client.DefaultBranch(ctx, "", "test-repo")
		var vErr *ArgumentError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "owner", vErr.Field)

		_, err = client.DefaultBranch(ctx, "test-owner", "")
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "name", vErr.Field)
	})
}

func TestClient_NoTokenSendsNoAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"default_branch":"trunk"}`))
	}))
	defer server.Close()

	cfg := *config.DefaultGitHubConfig()
	cfg.APIBaseURL = server.URL + "/"

	client := NewClient(cfg, logrus.New())
	branch, err := client.DefaultBranch(context.Background(), "o", "r")
	require.NoError(t, err)
	assert.Equal(t, "trunk", branch)
}
