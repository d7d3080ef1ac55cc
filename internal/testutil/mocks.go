package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jakpal97/fitcoach/internal/backend"
	"github.com/jakpal97/fitcoach/internal/storage"
)

// BackendCall records one invocation against the mock backend
type BackendCall struct {
	Op         string // "select", "insert", "update", "delete"
	Collection string
	Query      backend.Query
	Record     json.RawMessage
}

// MockBackend provides a mock remote backend for testing. Calls are recorded
// in invocation order; failures are programmable per collection.
type MockBackend struct {
	mu         sync.Mutex
	calls      []BackendCall
	selectRows map[string][]json.RawMessage
	failures   map[string]error
	nextID     int
}

func NewMockBackend() *MockBackend {
	return &MockBackend{
		selectRows: make(map[string][]json.RawMessage),
		failures:   make(map[string]error),
	}
}

// SetRows programs the rows returned by Select for a collection
func (m *MockBackend) SetRows(collection string, rows []any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	encoded := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		b, _ := json.Marshal(row)
		encoded = append(encoded, b)
	}
	m.selectRows[collection] = encoded
}

// SetError programs every call against a collection to fail. A nil error
// clears the failure.
func (m *MockBackend) SetError(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failures, collection)
		return
	}
	m.failures[collection] = err
}

func (m *MockBackend) Select(_ context.Context, collection string, q backend.Query) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, BackendCall{Op: "select", Collection: collection, Query: q})

	if err := m.failures[collection]; err != nil {
		return nil, err
	}
	return m.selectRows[collection], nil
}

func (m *MockBackend) Insert(_ context.Context, collection string, record any) (json.RawMessage, error) {
	encoded, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, BackendCall{Op: "insert", Collection: collection, Record: encoded})

	if err := m.failures[collection]; err != nil {
		return nil, err
	}

	// Echo the record back with a server-assigned id
	m.nextID++
	var row map[string]any
	if err := json.Unmarshal(encoded, &row); err != nil {
		return nil, err
	}
	row["id"] = fmt.Sprintf("srv-%d", m.nextID)
	return json.Marshal(row)
}

func (m *MockBackend) Update(_ context.Context, collection string, q backend.Query, record any) error {
	encoded, _ := json.Marshal(record)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, BackendCall{Op: "update", Collection: collection, Query: q, Record: encoded})
	return m.failures[collection]
}

func (m *MockBackend) Delete(_ context.Context, collection string, q backend.Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, BackendCall{Op: "delete", Collection: collection, Query: q})
	return m.failures[collection]
}

// Calls returns every recorded call in invocation order
func (m *MockBackend) Calls() []BackendCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]BackendCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallsFor returns the recorded calls of one kind against one collection
func (m *MockBackend) CallsFor(op, collection string) []BackendCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := []BackendCall{}
	for _, call := range m.calls {
		if call.Op == op && call.Collection == collection {
			result = append(result, call)
		}
	}
	return result
}

// ClearCalls drops the recorded call history
func (m *MockBackend) ClearCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// MockProber is a programmable connectivity prober
type MockProber struct {
	mu     sync.Mutex
	online bool
	err    error
}

func NewMockProber(online bool) *MockProber {
	return &MockProber{online: online}
}

func (p *MockProber) SetOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = online
}

func (p *MockProber) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *MockProber) Probe(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return false, p.err
	}
	return p.online, nil
}

// FlakyStorage wraps a Storage with programmable write failures, for
// exercising the write-behind contract
type FlakyStorage struct {
	storage.Storage

	mu       sync.Mutex
	writeErr error
}

func NewFlakyStorage(inner storage.Storage) *FlakyStorage {
	return &FlakyStorage{Storage: inner}
}

func (s *FlakyStorage) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *FlakyStorage) SetItem(ctx context.Context, key, value string) error {
	s.mu.Lock()
	err := s.writeErr
	s.mu.Unlock()

	if err != nil {
		return err
	}
	return s.Storage.SetItem(ctx, key, value)
}

// MockClock provides controllable time for testing
type MockClock struct {
	mu      sync.Mutex
	current time.Time
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{
		current: start,
	}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

// TestLogger provides a logger that captures logs for testing
type TestLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

func NewTestLogger() *TestLogger {
	return &TestLogger{
		entries: make([]LogEntry, 0),
	}
}

func (l *TestLogger) log(level, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := LogEntry{
		Level:   level,
		Message: msg,
		Fields:  make(map[string]interface{}),
	}

	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			key := fmt.Sprintf("%v", fields[i])
			entry.Fields[key] = fields[i+1]
		}
	}

	l.entries = append(l.entries, entry)
}

func (l *TestLogger) GetEntries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]LogEntry, len(l.entries))
	copy(result, l.entries)
	return result
}

func (l *TestLogger) GetEntriesByLevel(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]LogEntry, 0)
	for _, entry := range l.entries {
		if entry.Level == level {
			result = append(result, entry)
		}
	}
	return result
}

func (l *TestLogger) HasError() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.entries {
		if entry.Level == "ERROR" {
			return true
		}
	}
	return false
}

func (l *TestLogger) HasWarning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.entries {
		if entry.Level == "WARN" {
			return true
		}
	}
	return false
}

// Logger returns a *slog.Logger that writes to this TestLogger
func (l *TestLogger) Logger() *slog.Logger {
	return slog.New(&testLogHandler{logger: l})
}

// testLogHandler implements slog.Handler for TestLogger
type testLogHandler struct {
	logger *TestLogger
	attrs  []slog.Attr
	groups []string
}

func (h *testLogHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *testLogHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()
	msg := r.Message

	// Collect all attributes
	fields := make([]interface{}, 0, r.NumAttrs()*2)
	r.Attrs(func(a slog.Attr) bool {
		fields = append(fields, a.Key, a.Value.Any())
		return true
	})

	// Add handler-level attributes
	for _, attr := range h.attrs {
		fields = append(fields, attr.Key, attr.Value.Any())
	}

	h.logger.log(level, msg, fields...)
	return nil
}

func (h *testLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &testLogHandler{
		logger: h.logger,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *testLogHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name
	return &testLogHandler{
		logger: h.logger,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// WaitFor waits for a condition to be true with timeout
func WaitFor(t TestingT, condition func() bool, timeout time.Duration, msgAndArgs ...interface{}) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}

		select {
		case <-ticker.C:
			if time.Now().After(deadline) {
				t.Errorf("timeout waiting for condition: %v", msgAndArgs)
				return false
			}
		}
	}
}

// TestingT is a minimal interface for testing
type TestingT interface {
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}
