// Package queue implements the durable, replayable action queue. Pending
// mutations survive process restarts and are replayed in original order
// whenever connectivity is restored.
package queue

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/polishcrew/syncbridge/internal/metrics"
	"github.com/polishcrew/syncbridge/internal/storage"
	"github.com/polishcrew/syncbridge/pkg/types"
	"github.com/sirupsen/logrus"
)

// StorageKey is the single durable-storage key holding the queue body.
const StorageKey = "pc-sync-queue"

// Remote is the subset of the remote client a drain needs.
type Remote interface {
	Ready() bool
	Upsert(ctx context.Context, table string, payload json.RawMessage) error
	Invoke(ctx context.Context, functionName string, body json.RawMessage) (json.RawMessage, error)
}

// Queue is the persistent action queue.
type Queue struct {
	store  *storage.Store
	remote Remote

	mu       sync.Mutex // guards read-modify-write of the stored queue body
	draining atomic.Bool
}

// New creates a queue backed by the given store and remote handle.
func New(store *storage.Store, remote Remote) *Queue {
	return &Queue{
		store:  store,
		remote: remote,
	}
}

// Enqueue appends an action with a capture timestamp to durable storage
// and fires an immediate asynchronous drain attempt.
func (q *Queue) Enqueue(ctx context.Context, action types.Action) error {
	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	action.QueuedAt = time.Now().UnixMilli()

	q.mu.Lock()
	actions := q.read(ctx)
	actions = append(actions, action)
	err := q.write(ctx, actions)
	q.mu.Unlock()

	if err != nil {
		logrus.WithError(err).Warn("Failed to persist sync queue")
		return err
	}

	go func() {
		if drainErr := q.Drain(context.Background()); drainErr != nil {
			logrus.WithError(drainErr).Warn("Background drain failed")
		}
	}()

	return nil
}

// Drain attempts to deliver all currently queued actions, in original
// order, each at most once. Failed actions are retained in their original
// relative order for the next drain. Drains are serialized: a call that
// finds another drain in flight returns immediately.
func (q *Queue) Drain(ctx context.Context) error {
	if !q.remote.Ready() {
		return nil
	}
	if !q.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer q.draining.Store(false)

	q.mu.Lock()
	actions := q.read(ctx)
	if len(actions) > 0 {
		// Persist the snapshot so ids minted for legacy entries survive to
		// the reconciliation read below.
		if err := q.write(ctx, actions); err != nil {
			q.mu.Unlock()
			return err
		}
	}
	q.mu.Unlock()

	if len(actions) == 0 {
		return nil
	}

	delivered := make(map[string]bool, len(actions))
	for _, action := range actions {
		if err := q.deliver(ctx, action); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"action_type": action.Type,
				"table":       action.Table,
				"function":    action.FunctionName,
			}).Warn("Failed to flush sync action")
			metrics.DrainActionsTotal.WithLabelValues("failed").Inc()
			continue
		}
		delivered[action.ID] = true
		metrics.DrainActionsTotal.WithLabelValues("delivered").Inc()
	}

	// Reconcile against a fresh read so actions enqueued while this drain
	// was in flight are not lost by the write-back.
	q.mu.Lock()
	defer q.mu.Unlock()

	current := q.read(ctx)
	remaining := make([]types.Action, 0, len(current))
	for _, action := range current {
		if !delivered[action.ID] {
			remaining = append(remaining, action)
		}
	}
	return q.write(ctx, remaining)
}

// Depth returns the number of pending actions.
func (q *Queue) Depth(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.read(ctx))
}

func (q *Queue) deliver(ctx context.Context, action types.Action) error {
	switch {
	case action.Type == types.ActionUpsert && action.Table != "" && len(action.Payload) > 0:
		return q.remote.Upsert(ctx, action.Table, action.Payload)
	case action.Type == types.ActionInvoke && action.FunctionName != "":
		_, err := q.remote.Invoke(ctx, action.FunctionName, action.Payload)
		return err
	default:
		// Malformed actions cannot succeed on retry either; drop them.
		logrus.WithField("action_type", action.Type).Warn("Dropping malformed queued action")
		return nil
	}
}

// read loads the stored queue. A missing or unparseable body is treated as
// an empty queue, never a fatal error. Must be called with mu held.
func (q *Queue) read(ctx context.Context) []types.Action {
	raw, ok, err := q.store.Get(ctx, StorageKey)
	if err != nil {
		logrus.WithError(err).Warn("Failed to read sync queue")
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	var actions []types.Action
	if err := json.Unmarshal([]byte(raw), &actions); err != nil {
		logrus.WithError(err).Warn("Discarding corrupt sync queue")
		return nil
	}

	// Older queue bodies may predate per-action ids.
	for i := range actions {
		if actions[i].ID == "" {
			actions[i].ID = uuid.New().String()
		}
	}
	return actions
}

// write persists the queue body. Must be called with mu held.
func (q *Queue) write(ctx context.Context, actions []types.Action) error {
	if actions == nil {
		actions = []types.Action{}
	}
	raw, err := json.Marshal(actions)
	if err != nil {
		return err
	}
	if err := q.store.Put(ctx, StorageKey, string(raw)); err != nil {
		return err
	}
	metrics.QueueDepth.Set(float64(len(actions)))
	return nil
}
