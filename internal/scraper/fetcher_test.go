package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetch_ReturnsBodyAndStatus(t *testing.T) {
	t.Parallel()

	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.UserAgent()
		_, _ = w.Write([]byte("hello"))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(0)
	resp, err := f.Fetch(context.Background(), srv.URL, "test-agent/1.0")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []byte("hello"), resp.Body)
	require.Equal(t, "test-agent/1.0", gotAgent)
}

func TestFetch_NotFoundIsAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	f := NewFetcher(0)
	_, err := f.Fetch(context.Background(), srv.URL+"/missing", "test-agent")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

func TestFetch_CanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	f := NewFetcher(10 * time.Second)
	_, err := f.Fetch(ctx, srv.URL, "test-agent")
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetch_UserAgentDoesNotLeakBetweenFetches(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(0)
	_, err := f.Fetch(context.Background(), srv.URL, "agent-a")
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), srv.URL, "agent-b")
	require.NoError(t, err)

	require.Equal(t, "agent-a", <-agents)
	require.Equal(t, "agent-b", <-agents)
}
