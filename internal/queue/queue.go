// Package queue implements the durable, ordered offline mutation queue.
// Mutations buffered while disconnected are replayed against the remote
// backend, strictly in enqueue order, once connectivity returns.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jakpal97/fitcoach/internal/kvstore"
	"github.com/jakpal97/fitcoach/internal/metrics"
	"github.com/jakpal97/fitcoach/internal/netmon"
)

// Queue is the durable offline mutation queue. It owns the queue key in the
// key-value store exclusively.
type Queue struct {
	store     *kvstore.Store
	monitor   *netmon.Monitor
	config    Config
	logger    *slog.Logger
	collector *metrics.Collector

	mu        sync.Mutex
	handlers  map[Type]Handler
	syncing   bool
	listeners map[int]func(syncing bool)
	nextID    int

	unsubscribe func()

	// Injected for ordering tests
	now func() time.Time
}

// NewQueue creates a queue with validated configuration and subscribes it to
// the connectivity monitor: every offline→online transition triggers a drain.
// A nil collector disables metrics.
func NewQueue(store *kvstore.Store, monitor *netmon.Monitor, config Config, collector *metrics.Collector, logger *slog.Logger) (*Queue, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	if collector == nil {
		collector = metrics.Nop()
	}

	q := &Queue{
		store:     store,
		monitor:   monitor,
		config:    config,
		logger:    logger,
		collector: collector,
		handlers:  make(map[Type]Handler),
		listeners: make(map[int]func(bool)),
		now:       time.Now,
	}

	q.unsubscribe = monitor.Subscribe(func(online bool) {
		if online {
			go q.SyncAll(context.Background())
		}
	})

	return q, nil
}

// Close detaches the queue from the connectivity monitor. Pending operations
// stay in durable storage.
func (q *Queue) Close() {
	if q.unsubscribe != nil {
		q.unsubscribe()
	}
}

// RegisterHandler associates the handler replaying operations of typ.
// Registering again for the same type replaces the prior handler.
func (q *Queue) RegisterHandler(typ Type, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[typ] = handler
}

// UnregisteredTypes returns every operation kind that has no handler yet.
// Hosts call this after wiring to catch incomplete handler tables at startup
// instead of leaving operations pending forever.
func (q *Queue) UnregisteredTypes() []Type {
	q.mu.Lock()
	defer q.mu.Unlock()

	missing := []Type{}
	for _, typ := range AllTypes {
		if _, ok := q.handlers[typ]; !ok {
			missing = append(missing, typ)
		}
	}
	return missing
}

// Add appends a mutation to the durable queue and returns its generated id.
// If the device is currently online, a drain is triggered in the background;
// the caller does not await it.
func (q *Queue) Add(ctx context.Context, typ Type, data any, userID string) (string, error) {
	if !typ.Valid() {
		return "", fmt.Errorf("unknown operation type %q", typ)
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}

	op := Operation{
		ID:        generateOperationID(q.now()),
		Type:      typ,
		Data:      encoded,
		Timestamp: q.now().UnixMilli(),
		UserID:    userID,
	}

	q.mu.Lock()
	ops, err := q.operations()
	if err != nil {
		q.mu.Unlock()
		return "", err
	}
	ops = append(ops, op)
	if err := q.store.SetObject(kvstore.KeyOfflineQueue, ops); err != nil {
		q.mu.Unlock()
		return "", err
	}
	pending := len(ops)
	q.mu.Unlock()

	q.collector.RecordEnqueue()
	q.collector.SetPending(pending)

	q.logger.Debug("queued operation",
		"operation_id", op.ID,
		"type", typ,
		"pending", pending)

	if q.monitor.Status() {
		go q.SyncAll(context.Background())
	}

	return op.ID, nil
}

// SyncAll drains the queue once: snapshots the pending operations, sorts
// them by timestamp ascending and replays them strictly sequentially. It
// never returns an error; per-operation failures become retry bookkeeping.
//
// A drain already in progress makes this call a no-op returning a zero
// Result; no follow-up drain is queued, the caller retries later. Being
// offline also returns a zero Result without attempting anything.
func (q *Queue) SyncAll(ctx context.Context) Result {
	q.mu.Lock()
	if q.syncing {
		q.mu.Unlock()
		return Result{}
	}
	if !q.monitor.Status() {
		q.mu.Unlock()
		return Result{}
	}
	q.syncing = true
	q.mu.Unlock()

	start := q.now()
	q.notifyListeners(true)
	q.collector.SetSyncRunning(true)

	defer func() {
		q.mu.Lock()
		q.syncing = false
		q.mu.Unlock()

		q.collector.SetSyncRunning(false)
		q.collector.ObserveDrain(time.Since(start))
		q.collector.SetPending(q.PendingCount())
		q.notifyListeners(false)
	}()

	q.mu.Lock()
	snapshot, err := q.operations()
	q.mu.Unlock()
	if err != nil {
		q.logger.Error("failed to read offline queue", "error", err)
		return Result{}
	}

	if len(snapshot) == 0 {
		return Result{}
	}

	// Replay in insertion order
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].Timestamp < snapshot[j].Timestamp
	})

	result := Result{}
	for _, op := range snapshot {
		q.mu.Lock()
		handler, ok := q.handlers[op.Type]
		q.mu.Unlock()

		if !ok {
			// No handler registered yet: count as failed but leave the
			// operation untouched so it survives until registration
			q.logger.Warn("no handler for queued operation",
				"operation_id", op.ID,
				"type", op.Type)
			result.Failed++
			continue
		}

		if err := invokeHandler(ctx, handler, op); err != nil {
			result.Failed++
			q.recordFailure(op, err)
			continue
		}

		result.Success++
		q.removeOperation(op.ID)
		q.collector.RecordReplayed()
	}

	q.logger.Info("drained offline queue",
		"success", result.Success,
		"failed", result.Failed,
		"duration", time.Since(start))

	return result
}

// PendingCount returns the number of operations waiting in the queue
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.operations()
	if err != nil {
		q.logger.Error("failed to read offline queue", "error", err)
		return 0
	}
	return len(ops)
}

// IsSyncing reports whether a drain is currently in progress
func (q *Queue) IsSyncing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.syncing
}

// AddSyncListener registers a listener notified on drain entry and exit.
// Returns the listener's unsubscribe function.
func (q *Queue) AddSyncListener(fn func(syncing bool)) func() {
	q.mu.Lock()
	id := q.nextID
	q.nextID++
	q.listeners[id] = fn
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.listeners, id)
		q.mu.Unlock()
	}
}

// Clear destructively empties the queue
func (q *Queue) Clear() error {
	q.mu.Lock()
	err := q.store.SetObject(kvstore.KeyOfflineQueue, []Operation{})
	q.mu.Unlock()

	if err != nil {
		return err
	}

	q.collector.SetPending(0)
	q.logger.Info("cleared offline queue")
	return nil
}

// =============================================================================
// Internals
// =============================================================================

// operations reads the queue from the store. Caller holds q.mu.
func (q *Queue) operations() ([]Operation, error) {
	var ops []Operation
	_, err := q.store.GetObject(kvstore.KeyOfflineQueue, &ops)
	if err != nil {
		return nil, fmt.Errorf("malformed offline queue: %w", err)
	}
	return ops, nil
}

// recordFailure increments an operation's retry count, dropping it once the
// budget is exhausted. Dropped operations are permanent data loss; there is
// no dead-letter store.
func (q *Queue) recordFailure(failed Operation, cause error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.operations()
	if err != nil {
		q.logger.Error("failed to read offline queue", "error", err)
		return
	}

	updated := make([]Operation, 0, len(ops))
	for _, op := range ops {
		if op.ID != failed.ID {
			updated = append(updated, op)
			continue
		}

		op.RetryCount++
		if op.RetryCount >= q.config.MaxRetries {
			q.logger.Warn("dropping operation after exhausting retries",
				"operation_id", op.ID,
				"type", op.Type,
				"retries", op.RetryCount,
				"error", cause)
			q.collector.RecordDropped()
			continue
		}

		q.logger.Debug("operation will retry",
			"operation_id", op.ID,
			"type", op.Type,
			"retries", op.RetryCount,
			"error", cause)
		q.collector.RecordRetried()
		updated = append(updated, op)
	}

	if err := q.store.SetObject(kvstore.KeyOfflineQueue, updated); err != nil {
		q.logger.Error("failed to persist offline queue", "error", err)
	}
}

// removeOperation deletes a successfully replayed operation from the queue
func (q *Queue) removeOperation(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.operations()
	if err != nil {
		q.logger.Error("failed to read offline queue", "error", err)
		return
	}

	updated := make([]Operation, 0, len(ops))
	for _, op := range ops {
		if op.ID != id {
			updated = append(updated, op)
		}
	}

	if err := q.store.SetObject(kvstore.KeyOfflineQueue, updated); err != nil {
		q.logger.Error("failed to persist offline queue", "error", err)
	}
}

// notifyListeners fans a syncing state change out to sync listeners
func (q *Queue) notifyListeners(syncing bool) {
	q.mu.Lock()
	listeners := make([]func(bool), 0, len(q.listeners))
	for _, fn := range q.listeners {
		listeners = append(listeners, fn)
	}
	q.mu.Unlock()

	for _, fn := range listeners {
		fn(syncing)
	}
}

// invokeHandler runs a handler, converting a panic into an error so one
// misbehaving handler cannot abort the drain
func invokeHandler(ctx context.Context, handler Handler, op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, op)
}

// generateOperationID combines the enqueue time with a random suffix.
// Uniqueness is statistical, not cryptographic.
func generateOperationID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.New().String()[:8])
}
