package github

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProfileServer(t *testing.T, handler http.HandlerFunc) (*ProfileFetcher, *Pool) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	pool, err := NewPool([]string{"tok-a"}, 10)
	require.NoError(t, err)
	fetcher, err := NewProfileFetcher(pool, NewClassifier(nil, nil), server.URL, 1000, nil)
	require.NoError(t, err)
	return fetcher, pool
}

func TestFetchProfile(t *testing.T) {
	reset := time.Now().Add(40 * time.Minute).Truncate(time.Second)
	fetcher, pool := newProfileServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/octocat", r.URL.Path)
		assert.Equal(t, "Bearer tok-a", r.Header.Get("Authorization"))
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "4999")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"login":"octocat","id":583231,"node_id":"MDQ6VXNlcjU4MzIzMQ==",
			"avatar_url":"https://avatars.githubusercontent.com/u/583231","created_at":"2011-01-25T18:44:36Z"}`)
	})

	info, err := fetcher.FetchProfile(context.Background(), "octocat")
	require.NoError(t, err)
	assert.Equal(t, "octocat", info.Login)
	assert.Equal(t, int64(583231), info.DatabaseID)
	assert.Equal(t, "MDQ6VXNlcjU4MzIzMQ==", info.NodeID)
	assert.Equal(t, time.Date(2011, 1, 25, 18, 44, 36, 0, time.UTC), info.CreatedAt.UTC())

	status := pool.Status()[0]
	assert.Equal(t, 4999, status.Remaining)
	assert.True(t, status.ResetAt.Equal(reset))
}

func TestFetchProfileNotFound(t *testing.T) {
	fetcher, _ := newProfileServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message":"Not Found"}`)
	})

	_, err := fetcher.FetchProfile(context.Background(), "ghost-user")
	require.Error(t, err)
	assert.Equal(t, KindUserNotFound, KindOf(err))
	assert.False(t, IsRetryable(err))
}

func TestFetchProfileRateLimited(t *testing.T) {
	reset := time.Now().Add(20 * time.Minute).Truncate(time.Second)
	fetcher, pool := newProfileServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"message":"API rate limit exceeded"}`)
	})

	_, err := fetcher.FetchProfile(context.Background(), "octocat")
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))

	status := pool.Status()[0]
	assert.Equal(t, 0, status.Remaining)
	assert.True(t, status.ResetAt.Equal(reset))
}

func TestFetchProfileInvalidLogin(t *testing.T) {
	fetcher, _ := newProfileServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := fetcher.FetchProfile(context.Background(), "not a login")
	assert.Equal(t, KindClientError, KindOf(err))
}
