// Package assets serves the application shell from a versioned durable
// cache: cache-first reads with network fallback, pre-population on
// install, and eviction of stale generations on activation.
package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/polishcrew/syncbridge/internal/retry"
	"github.com/polishcrew/syncbridge/internal/storage"
	"github.com/sirupsen/logrus"
)

// Version names the current cache generation. Bumping it invalidates all
// previously cached assets on the next activation.
const Version = "pcwa-shell-v3"

const cachePrefix = "cache:"

// ShellAssets is the fixed list of application shell paths pre-populated
// on install.
var ShellAssets = []string{
	"/",
	"/index.html",
	"/styles.css",
	"/app.js",
	"/manifest.webmanifest",
	"/icons/icon-192.png",
	"/icons/icon-512.png",
}

type entry struct {
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// Cache is a versioned shell-asset cache in front of an upstream origin.
type Cache struct {
	store    *storage.Store
	upstream string
	client   *http.Client
}

// New creates a cache backed by the given store, fetching misses from the
// upstream origin.
func New(store *storage.Store, upstream string) *Cache {
	return &Cache{
		store:    store,
		upstream: strings.TrimRight(upstream, "/"),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Install pre-populates the current cache generation with the shell asset
// list. Each asset fetch is retried a few times; the first asset that
// still fails aborts the install.
func (c *Cache) Install(ctx context.Context) error {
	for _, path := range ShellAssets {
		p := path
		err := retry.Do(ctx, retry.Config{
			MaxAttempts: 3,
			Delays:      []time.Duration{time.Second, 3 * time.Second},
		}, func() error {
			status, contentType, body, fetchErr := c.fetch(ctx, p)
			if fetchErr != nil {
				return fetchErr
			}
			if status < 200 || status > 299 {
				return fmt.Errorf("upstream returned %d for %s", status, p)
			}
			return c.put(ctx, p, entry{ContentType: contentType, Body: body})
		})
		if err != nil {
			return fmt.Errorf("install %s: %w", p, err)
		}
	}
	logrus.WithField("version", Version).Info("Shell asset cache installed")
	return nil
}

// Activate evicts every cached asset belonging to a generation other than
// the current one.
func (c *Cache) Activate(ctx context.Context) error {
	deleted, err := c.store.DeletePrefixExcept(ctx, cachePrefix, cachePrefix+Version+":")
	if err != nil {
		return fmt.Errorf("activate cache: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"version": Version,
		"evicted": deleted,
	}).Info("Shell asset cache activated")
	return nil
}

// Handler serves GET requests cache-first with network fallback. Non-GET
// requests are passed through to the upstream untouched and never cached.
func (c *Cache) Handler() gin.HandlerFunc {
	return func(g *gin.Context) {
		path := g.Param("filepath")
		if path == "" {
			path = "/"
		}

		if g.Request.Method != http.MethodGet {
			c.passthrough(g, path)
			return
		}

		if cached, ok := c.get(g.Request.Context(), path); ok {
			g.Data(http.StatusOK, cached.ContentType, cached.Body)
			return
		}

		status, contentType, body, err := c.fetch(g.Request.Context(), path)
		if err != nil {
			// Network failure: last chance from cache, else a generic
			// network-error response.
			if cached, ok := c.get(g.Request.Context(), path); ok {
				g.Data(http.StatusOK, cached.ContentType, cached.Body)
				return
			}
			g.String(http.StatusBadGateway, "network error")
			return
		}

		if status >= 200 && status <= 299 {
			if putErr := c.put(g.Request.Context(), path, entry{ContentType: contentType, Body: body}); putErr != nil {
				logrus.WithError(putErr).WithField("path", path).Warn("Failed to cache asset")
			}
		}
		g.Data(status, contentType, body)
	}
}

func (c *Cache) passthrough(g *gin.Context, path string) {
	req, err := http.NewRequestWithContext(g.Request.Context(),
		g.Request.Method, c.upstream+path, g.Request.Body)
	if err != nil {
		g.String(http.StatusBadGateway, "network error")
		return
	}
	req.Header = g.Request.Header.Clone()

	resp, err := c.client.Do(req)
	if err != nil {
		g.String(http.StatusBadGateway, "network error")
		return
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close upstream response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		g.String(http.StatusBadGateway, "network error")
		return
	}
	g.Data(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

func (c *Cache) fetch(ctx context.Context, path string) (int, string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.upstream+path, nil)
	if err != nil {
		return 0, "", nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close upstream response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return 0, "", nil, fmt.Errorf("read %s: %w", path, err)
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), body, nil
}

func (c *Cache) get(ctx context.Context, path string) (entry, bool) {
	raw, ok, err := c.store.Get(ctx, c.key(path))
	if err != nil {
		logrus.WithError(err).WithField("path", path).Warn("Failed to read cached asset")
		return entry{}, false
	}
	if !ok {
		return entry{}, false
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		logrus.WithError(err).WithField("path", path).Warn("Discarding corrupt cached asset")
		return entry{}, false
	}
	return e, true
}

func (c *Cache) put(ctx context.Context, path string, e entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, c.key(path), string(raw))
}

func (c *Cache) key(path string) string {
	return cachePrefix + Version + ":" + path
}
