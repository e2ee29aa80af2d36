package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatcher_OnlineTransitionFiresCallbacks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	watcher := NewWatcher(server.URL, time.Minute)

	fired := 0
	watcher.OnOnline(func() { fired++ })

	watcher.check(context.Background())
	assert.True(t, watcher.Online())
	assert.Equal(t, 1, fired)

	// Staying online does not re-fire.
	watcher.check(context.Background())
	assert.Equal(t, 1, fired)
}

func TestWatcher_RefiresAfterOutage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	watcher := NewWatcher(server.URL, time.Minute)

	fired := 0
	watcher.OnOnline(func() { fired++ })

	watcher.check(context.Background())
	assert.Equal(t, 1, fired)

	server.Close()
	watcher.check(context.Background())
	assert.False(t, watcher.Online())
	assert.Equal(t, 1, fired)
}

func TestWatcher_AnyStatusCountsAsReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	watcher := NewWatcher(server.URL, time.Minute)
	watcher.check(context.Background())

	assert.True(t, watcher.Online())
}

func TestWatcher_EmptyProbeURLStaysOffline(t *testing.T) {
	watcher := NewWatcher("", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	watcher.Run(ctx) // returns immediately

	assert.False(t, watcher.Online())
	assert.Equal(t, DefaultInterval, watcher.interval)
}

func TestWatcher_NilCallbackIgnored(t *testing.T) {
	watcher := NewWatcher("", 0)
	watcher.OnOnline(nil)
	assert.Empty(t, watcher.callbacks)
}
