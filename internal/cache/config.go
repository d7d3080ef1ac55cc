package cache

import (
	"fmt"
	"time"
)

// Config holds the per-dataset staleness windows. A cached dataset older
// than its max age is considered stale and worth refreshing when online.
type Config struct {
	ProfileMaxAge           time.Duration `toml:"profile_max_age"`
	PlansMaxAge             time.Duration `toml:"plans_max_age"`
	ExercisesMaxAge         time.Duration `toml:"exercises_max_age"`
	MeasurementsMaxAge      time.Duration `toml:"measurements_max_age"`
	CompletedWorkoutsMaxAge time.Duration `toml:"completed_workouts_max_age"`
	ClientsMaxAge           time.Duration `toml:"clients_max_age"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		ProfileMaxAge:           30 * time.Minute,
		PlansMaxAge:             30 * time.Minute,
		ExercisesMaxAge:         60 * time.Minute,
		MeasurementsMaxAge:      30 * time.Minute,
		CompletedWorkoutsMaxAge: 15 * time.Minute,
		ClientsMaxAge:           30 * time.Minute,
	}
}

// validateConfig checks that every staleness window is positive
func validateConfig(config Config) error {
	windows := map[string]time.Duration{
		"profile_max_age":            config.ProfileMaxAge,
		"plans_max_age":              config.PlansMaxAge,
		"exercises_max_age":          config.ExercisesMaxAge,
		"measurements_max_age":       config.MeasurementsMaxAge,
		"completed_workouts_max_age": config.CompletedWorkoutsMaxAge,
		"clients_max_age":            config.ClientsMaxAge,
	}

	for name, window := range windows {
		if window <= 0 {
			return fmt.Errorf("cache %s must be positive", name)
		}
	}

	return nil
}
