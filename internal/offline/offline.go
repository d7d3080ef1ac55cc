// Package offline implements the per-entity read-through/write-through data
// access layer composing the remote backend, the cache manager, the offline
// queue and the connectivity monitor.
//
// Reads try the remote backend when online and fall back to cache on any
// remote failure; offline reads skip the network entirely and never fail on
// absence. Writes go direct when online; offline writes get an optimistic
// cached copy under a temporary id and are enqueued for replay.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jakpal97/fitcoach/internal/backend"
	"github.com/jakpal97/fitcoach/internal/cache"
	"github.com/jakpal97/fitcoach/internal/models"
	"github.com/jakpal97/fitcoach/internal/netmon"
	"github.com/jakpal97/fitcoach/internal/queue"
)

// Backend collection names
const (
	collTrainingPlans     = "training_plans"
	collExercises         = "exercises"
	collMeasurements      = "measurements"
	collCompletedWorkouts = "completed_workouts"
)

// Accessor is the offline-first data access layer
type Accessor struct {
	backend backend.Client
	cache   *cache.Manager
	queue   *queue.Queue
	monitor *netmon.Monitor
	logger  *slog.Logger

	// Injected for date-sensitive tests
	now func() time.Time
}

// NewAccessor creates the access layer and registers the full replay handler
// table on the queue, one handler per operation kind
func NewAccessor(client backend.Client, cacheMgr *cache.Manager, q *queue.Queue, monitor *netmon.Monitor, logger *slog.Logger) *Accessor {
	a := &Accessor{
		backend: client,
		cache:   cacheMgr,
		queue:   q,
		monitor: monitor,
		logger:  logger,
		now:     time.Now,
	}

	a.registerHandlers()
	return a
}

// SetClock overrides the accessor's time source for tests
func (a *Accessor) SetClock(now func() time.Time) {
	a.now = now
}

// =============================================================================
// Reads
// =============================================================================

// ActivePlan returns the user's active training plan, or nil if none. Online,
// the user's plans are fetched and written through to the cache; any remote
// failure falls back to the cached copy.
func (a *Accessor) ActivePlan(ctx context.Context, userID string) (*models.TrainingPlan, error) {
	if a.monitor.Status() {
		plans, err := a.fetchPlans(ctx, userID)
		if err == nil {
			return activeOf(plans), nil
		}
		a.logger.Warn("remote plan read failed, serving cache",
			"user_id", userID,
			"error", err)
	}

	plans, err := a.cache.CachedTrainingPlans(userID)
	if err != nil {
		return nil, err
	}
	return activeOf(plans), nil
}

// PlanDetails returns one plan with its days and exercises. The remote copy
// is merged into the user's cached plan list on success.
func (a *Accessor) PlanDetails(ctx context.Context, userID, planID string) (*models.TrainingPlan, error) {
	if a.monitor.Status() {
		rows, err := a.backend.Select(ctx, collTrainingPlans, backend.Query{
			Eq:    map[string]string{"id": planID},
			Limit: 1,
		})
		if err == nil && len(rows) > 0 {
			var plan models.TrainingPlan
			if err := json.Unmarshal(rows[0], &plan); err != nil {
				return nil, fmt.Errorf("failed to decode plan: %w", err)
			}

			if err := a.mergeCachedPlan(userID, plan); err != nil {
				a.logger.Warn("failed to cache plan", "plan_id", planID, "error", err)
			}
			return &plan, nil
		}
		if err != nil {
			a.logger.Warn("remote plan read failed, serving cache",
				"plan_id", planID,
				"error", err)
		}
	}

	plans, err := a.cache.CachedTrainingPlans(userID)
	if err != nil {
		return nil, err
	}
	for i := range plans {
		if plans[i].ID == planID {
			return &plans[i], nil
		}
	}
	return nil, nil
}

// CompletedWorkouts returns the user's workout history, newest first
func (a *Accessor) CompletedWorkouts(ctx context.Context, userID string) ([]models.CompletedWorkout, error) {
	if a.monitor.Status() {
		rows, err := a.backend.Select(ctx, collCompletedWorkouts, backend.Query{
			Eq:         map[string]string{"user_id": userID},
			OrderBy:    "completed_at",
			Descending: true,
		})
		if err == nil {
			workouts, err := decodeRows[models.CompletedWorkout](rows)
			if err != nil {
				return nil, err
			}

			if err := a.cache.CacheCompletedWorkouts(userID, workouts); err != nil {
				a.logger.Warn("failed to cache workouts", "user_id", userID, "error", err)
			}
			return workouts, nil
		}
		a.logger.Warn("remote workout read failed, serving cache",
			"user_id", userID,
			"error", err)
	}

	return a.cache.CachedCompletedWorkouts(userID)
}

// Measurements returns the user's measurement history, newest first
func (a *Accessor) Measurements(ctx context.Context, userID string) ([]models.Measurement, error) {
	if a.monitor.Status() {
		rows, err := a.backend.Select(ctx, collMeasurements, backend.Query{
			Eq:         map[string]string{"user_id": userID},
			OrderBy:    "measured_at",
			Descending: true,
		})
		if err == nil {
			measurements, err := decodeRows[models.Measurement](rows)
			if err != nil {
				return nil, err
			}

			if err := a.cache.CacheMeasurements(userID, measurements); err != nil {
				a.logger.Warn("failed to cache measurements", "user_id", userID, "error", err)
			}
			return measurements, nil
		}
		a.logger.Warn("remote measurement read failed, serving cache",
			"user_id", userID,
			"error", err)
	}

	return a.cache.CachedMeasurements(userID)
}

// TrainerExercises returns a trainer's exercise library
func (a *Accessor) TrainerExercises(ctx context.Context, trainerID string) ([]models.Exercise, error) {
	if a.monitor.Status() {
		rows, err := a.backend.Select(ctx, collExercises, backend.Query{
			Eq:      map[string]string{"trainer_id": trainerID},
			OrderBy: "name",
		})
		if err == nil {
			exercises, err := decodeRows[models.Exercise](rows)
			if err != nil {
				return nil, err
			}

			if err := a.cache.CacheExercises(trainerID, exercises); err != nil {
				a.logger.Warn("failed to cache exercises", "trainer_id", trainerID, "error", err)
			}
			return exercises, nil
		}
		a.logger.Warn("remote exercise read failed, serving cache",
			"trainer_id", trainerID,
			"error", err)
	}

	return a.cache.CachedExercises(trainerID)
}

// IsTodayWorkoutCompleted reports whether the user already completed the
// given workout day today. An offline-cached completion for today is
// authoritative and short-circuits the remote check even when online: a
// completion recorded on this device is never contradicted by a stale
// remote read within the same day.
func (a *Accessor) IsTodayWorkoutCompleted(ctx context.Context, userID, workoutDayID string) (bool, error) {
	completedOffline, err := a.cache.IsWorkoutDayCompletedOffline(userID, workoutDayID)
	if err != nil {
		return false, err
	}
	if completedOffline {
		return true, nil
	}

	if !a.monitor.Status() {
		return false, nil
	}

	today := a.now().Format("2006-01-02")
	rows, err := a.backend.Select(ctx, collCompletedWorkouts, backend.Query{
		Eq: map[string]string{
			"user_id":        userID,
			"workout_day_id": workoutDayID,
			"completed_at":   today,
		},
		Limit: 1,
	})
	if err != nil {
		a.logger.Warn("remote completion check failed",
			"user_id", userID,
			"workout_day_id", workoutDayID,
			"error", err)
		return false, nil
	}

	return len(rows) > 0, nil
}

// =============================================================================
// Internals
// =============================================================================

// fetchPlans reads and caches the user's full plan list
func (a *Accessor) fetchPlans(ctx context.Context, userID string) ([]models.TrainingPlan, error) {
	rows, err := a.backend.Select(ctx, collTrainingPlans, backend.Query{
		Eq: map[string]string{"user_id": userID},
	})
	if err != nil {
		return nil, err
	}

	plans, err := decodeRows[models.TrainingPlan](rows)
	if err != nil {
		return nil, err
	}

	if err := a.cache.CacheTrainingPlans(userID, plans); err != nil {
		a.logger.Warn("failed to cache plans", "user_id", userID, "error", err)
	}
	return plans, nil
}

// mergeCachedPlan replaces (or appends) one plan in the user's cached list
func (a *Accessor) mergeCachedPlan(userID string, plan models.TrainingPlan) error {
	plans, err := a.cache.CachedTrainingPlans(userID)
	if err != nil {
		return err
	}

	replaced := false
	for i := range plans {
		if plans[i].ID == plan.ID {
			plans[i] = plan
			replaced = true
			break
		}
	}
	if !replaced {
		plans = append(plans, plan)
	}

	return a.cache.CacheTrainingPlans(userID, plans)
}

// activeOf returns the first active plan in plans, or nil
func activeOf(plans []models.TrainingPlan) *models.TrainingPlan {
	for i := range plans {
		if plans[i].IsActive {
			return &plans[i]
		}
	}
	return nil
}

// decodeRows unmarshals backend rows into typed records
func decodeRows[T any](rows []json.RawMessage) ([]T, error) {
	records := make([]T, 0, len(rows))
	for _, row := range rows {
		var record T
		if err := json.Unmarshal(row, &record); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}
