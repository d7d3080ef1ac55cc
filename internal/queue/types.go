package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Type identifies a kind of queued mutation. The set is closed; anything
// outside it is rejected at enqueue time and treated as malformed on decode.
type Type string

// The closed enumeration of mutation kinds
const (
	TypeSaveWorkout     Type = "save_workout"
	TypeSaveMeasurement Type = "save_measurement"
	TypeUpdatePlan      Type = "update_plan"
	TypeAddExercise     Type = "add_exercise"
	TypeUpdateExercise  Type = "update_exercise"
	TypeDeleteExercise  Type = "delete_exercise"
)

// AllTypes lists every operation kind, in no particular order
var AllTypes = []Type{
	TypeSaveWorkout,
	TypeSaveMeasurement,
	TypeUpdatePlan,
	TypeAddExercise,
	TypeUpdateExercise,
	TypeDeleteExercise,
}

// Valid reports whether t belongs to the closed enumeration
func (t Type) Valid() bool {
	switch t {
	case TypeSaveWorkout, TypeSaveMeasurement, TypeUpdatePlan,
		TypeAddExercise, TypeUpdateExercise, TypeDeleteExercise:
		return true
	}
	return false
}

// Operation is one pending mutation in the offline queue
type Operation struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Data       json.RawMessage `json:"data"`
	Timestamp  int64           `json:"timestamp"` // unix milliseconds at enqueue
	RetryCount int             `json:"retry_count"`
	UserID     string          `json:"user_id"`
}

// Handler replays one operation against the remote backend. A nil return
// removes the operation from the queue; an error counts against its retry
// budget.
type Handler func(ctx context.Context, op Operation) error

// Result is the aggregate outcome of one drain
type Result struct {
	Success int
	Failed  int
}

// Config holds offline queue settings
type Config struct {
	// MaxRetries is the per-operation retry budget; an operation whose
	// handler has failed this many times is dropped
	MaxRetries int `toml:"max_retries"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxRetries: 5,
	}
}

// validateConfig checks queue settings
func validateConfig(config Config) error {
	if config.MaxRetries <= 0 {
		return fmt.Errorf("queue max_retries must be positive")
	}
	return nil
}
