// Package kvstore implements the two-tier key-value store at the base of the
// offline layer: an in-memory mirror that is authoritative for reads within a
// session, persisted write-behind to a durable storage collaborator.
//
// The durability contract is deliberately best-effort: a crash between the
// mirror write and the durable flush silently loses that write. Callers that
// need a hard barrier use the Sync variants or Flush.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jakpal97/fitcoach/internal/storage"
)

// Store is a two-tier key-value store over a durable storage collaborator
type Store struct {
	storage storage.Storage
	logger  *slog.Logger

	// Mirror state
	mu     sync.RWMutex
	mirror map[string]string
	ready  bool

	// Tracks in-flight write-behind goroutines
	writes sync.WaitGroup
}

// NewStore creates a store over the given durable storage. Call Initialize
// before trusting GetObject to reflect persisted state.
func NewStore(durable storage.Storage, logger *slog.Logger) *Store {
	return &Store{
		storage: durable,
		logger:  logger,
		mirror:  make(map[string]string),
	}
}

// Initialize loads every known static key plus all discoverable dynamic
// keys from durable storage into the memory mirror
func (s *Store) Initialize(ctx context.Context) error {
	keys, err := s.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list durable keys: %w", err)
	}

	loaded := 0
	for _, key := range keys {
		if !isKnownKey(key) {
			continue
		}

		value, err := s.storage.GetItem(ctx, key)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return fmt.Errorf("failed to load key %q: %w", key, err)
		}

		s.mu.Lock()
		s.mirror[key] = value
		s.mu.Unlock()
		loaded++
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	s.logger.Info("key-value store initialized", "loaded_keys", loaded)
	return nil
}

// Ready reports whether Initialize has completed
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// SetObject writes value to the memory mirror synchronously and persists it
// in the background. A persistence failure is logged, never returned, and
// never rolled back from the mirror. Only a marshal failure is an error.
func (s *Store) SetObject(key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %q: %w", key, err)
	}

	s.mu.Lock()
	s.mirror[key] = string(encoded)
	s.mu.Unlock()

	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		if err := s.storage.SetItem(context.Background(), key, string(encoded)); err != nil {
			s.logger.Error("failed to persist key",
				"key", key,
				"error", err)
		}
	}()

	return nil
}

// GetObject reads key from the memory mirror into out. It reports whether
// the key was present; absence is not an error, malformed stored data is.
func (s *Store) GetObject(key string, out any) (bool, error) {
	s.mu.RLock()
	encoded, ok := s.mirror[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}

	if err := json.Unmarshal([]byte(encoded), out); err != nil {
		return false, fmt.Errorf("malformed stored value for key %q: %w", key, err)
	}

	return true, nil
}

// SetObjectSync writes value to the mirror and durable storage in one
// round trip, propagating any persistence error. Used during startup and
// anywhere a durability barrier matters.
func (s *Store) SetObjectSync(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %q: %w", key, err)
	}

	if err := s.storage.SetItem(ctx, key, string(encoded)); err != nil {
		return fmt.Errorf("failed to persist key %q: %w", key, err)
	}

	s.mu.Lock()
	s.mirror[key] = string(encoded)
	s.mu.Unlock()

	return nil
}

// GetObjectSync reads key from durable storage into out, refreshing the
// mirror on success
func (s *Store) GetObjectSync(ctx context.Context, key string, out any) (bool, error) {
	value, err := s.storage.GetItem(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read key %q: %w", key, err)
	}

	s.mu.Lock()
	s.mirror[key] = value
	s.mu.Unlock()

	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, fmt.Errorf("malformed stored value for key %q: %w", key, err)
	}

	return true, nil
}

// RemoveKey deletes key from the mirror synchronously and from durable
// storage in the background, mirroring the SetObject contract
func (s *Store) RemoveKey(key string) {
	s.mu.Lock()
	delete(s.mirror, key)
	s.mu.Unlock()

	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		if err := s.storage.RemoveItem(context.Background(), key); err != nil {
			s.logger.Error("failed to remove key",
				"key", key,
				"error", err)
		}
	}()
}

// RemoveKeySync deletes key from the mirror and durable storage, propagating
// any persistence error
func (s *Store) RemoveKeySync(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.mirror, key)
	s.mu.Unlock()

	if err := s.storage.RemoveItem(ctx, key); err != nil {
		return fmt.Errorf("failed to remove key %q: %w", key, err)
	}
	return nil
}

// Flush blocks until every in-flight write-behind persistence has settled
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.writes.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClearCache removes every durable key except the offline queue key; the
// queue must survive cache wipes
func (s *Store) ClearCache(ctx context.Context) error {
	keys, err := s.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list durable keys: %w", err)
	}

	toRemove := []string{}
	for _, key := range keys {
		if key == KeyOfflineQueue {
			continue
		}
		toRemove = append(toRemove, key)
	}

	if err := s.storage.RemoveAll(ctx, toRemove); err != nil {
		return fmt.Errorf("failed to clear cache keys: %w", err)
	}

	s.mu.Lock()
	queue, hadQueue := s.mirror[KeyOfflineQueue]
	s.mirror = make(map[string]string)
	if hadQueue {
		s.mirror[KeyOfflineQueue] = queue
	}
	s.mu.Unlock()

	s.logger.Info("cleared cache", "removed_keys", len(toRemove))
	return nil
}

// ClearAll removes everything, including the offline queue
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.storage.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear storage: %w", err)
	}

	s.mu.Lock()
	s.mirror = make(map[string]string)
	s.mu.Unlock()

	s.logger.Info("cleared all stored state")
	return nil
}

// isKnownKey reports whether key belongs to the static catalogue or one of
// the discoverable dynamic prefixes
func isKnownKey(key string) bool {
	for _, static := range staticKeys {
		if key == static {
			return true
		}
	}

	for _, prefix := range knownPrefixes {
		if strings.HasPrefix(key, prefix+":") {
			return true
		}
	}

	return false
}
