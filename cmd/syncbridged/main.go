package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/polishcrew/syncbridge/internal/api"
	"github.com/polishcrew/syncbridge/internal/assets"
	"github.com/polishcrew/syncbridge/internal/config"
	"github.com/polishcrew/syncbridge/internal/connectivity"
	"github.com/polishcrew/syncbridge/internal/queue"
	"github.com/polishcrew/syncbridge/internal/state"
	"github.com/polishcrew/syncbridge/internal/storage"
	"github.com/polishcrew/syncbridge/internal/supabase"
	syncbridge "github.com/polishcrew/syncbridge/internal/sync"
	"github.com/sirupsen/logrus"
)

const stateKey = "pc-local-state"

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	host := os.Getenv("HOST")
	if host == "" {
		host = "0.0.0.0"
	}

	dbPath := os.Getenv("PC_DB_PATH")
	if dbPath == "" {
		dbPath = "syncbridge.db"
	}

	cfg := config.Load()

	store, err := storage.NewStore(dbPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open local storage")
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close local storage")
		}
	}()

	client := supabase.NewClient(cfg)
	if !client.Ready() {
		logrus.Warn("Remote backend not configured; running in offline mode")
	}

	q := queue.New(store, client)
	bridge := syncbridge.NewBridge(cfg, client, q, nil)

	// Persist the state tree after every completed sync.
	bridge.On(syncbridge.EventSyncComplete, func(any) {
		persistState(store, bridge)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := loadState(ctx, store)
	result := bridge.Bootstrap(ctx, st)
	logrus.WithFields(logrus.Fields{
		"synced": result.Synced,
		"reason": result.Reason,
	}).Info("Bootstrap complete")

	watcher := connectivity.NewWatcher(client.BaseURL(), connectivity.DefaultInterval)
	watcher.OnOnline(func() {
		if drainErr := q.Drain(context.Background()); drainErr != nil {
			logrus.WithError(drainErr).Warn("Drain on reconnect failed")
		}
	})
	go watcher.Run(ctx)

	var cache *assets.Cache
	if origin := os.Getenv("PC_ASSET_ORIGIN"); origin != "" {
		cache = assets.New(store, origin)
		if installErr := cache.Install(ctx); installErr != nil {
			logrus.WithError(installErr).Warn("Shell asset install incomplete")
		}
		if activateErr := cache.Activate(ctx); activateErr != nil {
			logrus.WithError(activateErr).Warn("Shell asset activation failed")
		}
	}

	router := gin.Default()

	handler := api.NewHandler(bridge, q, watcher.Online)
	api.SetupRoutes(router, handler, cache)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", host, port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logrus.WithField("addr", srv.Addr).Info("Starting syncbridge server")
		if serveErr := srv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			logrus.WithError(serveErr).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logrus.WithError(shutdownErr).Fatal("Server forced to shutdown")
	}

	persistState(store, bridge)
	logrus.Info("Server exited")
}

// loadState restores the persisted state tree. Missing or corrupt data
// yields a fresh tree.
func loadState(ctx context.Context, store *storage.Store) *state.State {
	raw, ok, err := store.Get(ctx, stateKey)
	if err != nil {
		logrus.WithError(err).Warn("Failed to read persisted state")
		return state.New()
	}
	if !ok {
		return state.New()
	}

	st := state.New()
	if err := json.Unmarshal([]byte(raw), st); err != nil {
		logrus.WithError(err).Warn("Discarding corrupt persisted state")
		return state.New()
	}
	return st
}

// persistState snapshots the state tree under the bridge lock, so a merge
// running in another request cannot tear the persisted document.
func persistState(store *storage.Store, bridge *syncbridge.Bridge) {
	raw, err := bridge.StateJSON()
	if err != nil {
		logrus.WithError(err).Warn("Failed to serialize state")
		return
	}
	if raw == nil {
		return
	}
	if err := store.Put(context.Background(), stateKey, string(raw)); err != nil {
		logrus.WithError(err).Warn("Failed to persist state")
	}
}
