// Package connectivity watches remote reachability and signals
// offline-to-online transitions, the trigger for replaying the sync queue.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultInterval is the probe cadence when none is configured.
const DefaultInterval = 30 * time.Second

// Watcher probes a remote URL on an interval and invokes registered
// callbacks whenever reachability is restored.
type Watcher struct {
	probeURL string
	interval time.Duration
	client   *http.Client

	mu        sync.Mutex
	online    bool
	callbacks []func()
}

// NewWatcher creates a watcher for the given probe URL. An empty URL
// yields a watcher that never reports online.
func NewWatcher(probeURL string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		probeURL: probeURL,
		interval: interval,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// OnOnline registers a callback fired on each offline-to-online
// transition.
func (w *Watcher) OnOnline(fn func()) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Online reports the last observed reachability.
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Run probes until ctx is cancelled. It returns immediately when no probe
// URL is configured.
func (w *Watcher) Run(ctx context.Context) {
	if w.probeURL == "" {
		return
	}

	w.check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	reachable := w.probe(ctx)

	w.mu.Lock()
	restored := reachable && !w.online
	w.online = reachable
	callbacks := make([]func(), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	if !restored {
		return
	}

	logrus.Info("Connectivity restored")
	for _, fn := range callbacks {
		fn()
	}
}

// probe counts any HTTP response as reachable; only transport errors mean
// offline.
func (w *Watcher) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return false
	}
	if closeErr := resp.Body.Close(); closeErr != nil {
		logrus.WithError(closeErr).Warn("Failed to close probe response body")
	}
	return true
}
