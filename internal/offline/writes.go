package offline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jakpal97/fitcoach/internal/backend"
	"github.com/jakpal97/fitcoach/internal/models"
	"github.com/jakpal97/fitcoach/internal/queue"
)

// Queued payloads for operations that carry more than a bare record
type (
	// UpdatePlanPayload applies field updates to one training plan
	UpdatePlanPayload struct {
		PlanID string         `json:"plan_id"`
		Fields map[string]any `json:"fields"`
	}

	// UpdateExercisePayload applies field updates to one exercise
	UpdateExercisePayload struct {
		ExerciseID string         `json:"exercise_id"`
		Fields     map[string]any `json:"fields"`
	}

	// DeleteExercisePayload removes one exercise from a trainer's library
	DeleteExercisePayload struct {
		ExerciseID string `json:"exercise_id"`
	}
)

// SaveWorkout records a completed workout. Online it writes directly to the
// backend and returns the server-assigned id; a remote failure propagates to
// the caller, who owns retry or user notification. Offline it returns a
// temporary "offline-<timestamp>" id, caches the workout optimistically and
// enqueues the insert for replay.
//
// Temporary ids are never reconciled with the server-assigned id produced by
// the queued replay; callers must treat them as UI-local only.
func (a *Accessor) SaveWorkout(ctx context.Context, workout models.CompletedWorkout) (string, error) {
	if workout.CompletedAt == "" {
		workout.CompletedAt = a.now().Format("2006-01-02")
	}

	if a.monitor.Status() {
		row, err := a.backend.Insert(ctx, collCompletedWorkouts, workout)
		if err != nil {
			return "", fmt.Errorf("failed to save workout: %w", err)
		}
		return rowID(row)
	}

	workout.ID = a.temporaryID()
	if err := a.cache.AddCachedCompletedWorkout(workout.UserID, workout); err != nil {
		return "", err
	}

	if _, err := a.queue.Add(ctx, queue.TypeSaveWorkout, workout, workout.UserID); err != nil {
		return "", err
	}

	return workout.ID, nil
}

// SaveMeasurement records a body measurement with the same online-direct /
// offline-optimistic split as SaveWorkout
func (a *Accessor) SaveMeasurement(ctx context.Context, measurement models.Measurement) (string, error) {
	if measurement.MeasuredAt == "" {
		measurement.MeasuredAt = a.now().Format("2006-01-02")
	}

	if a.monitor.Status() {
		row, err := a.backend.Insert(ctx, collMeasurements, measurement)
		if err != nil {
			return "", fmt.Errorf("failed to save measurement: %w", err)
		}
		return rowID(row)
	}

	measurement.ID = a.temporaryID()
	if err := a.cache.AddCachedMeasurement(measurement.UserID, measurement); err != nil {
		return "", err
	}

	if _, err := a.queue.Add(ctx, queue.TypeSaveMeasurement, measurement, measurement.UserID); err != nil {
		return "", err
	}

	return measurement.ID, nil
}

// UpdatePlan applies field updates to a training plan, queueing them when
// offline
func (a *Accessor) UpdatePlan(ctx context.Context, userID, planID string, fields map[string]any) error {
	if a.monitor.Status() {
		q := backend.Query{Eq: map[string]string{"id": planID}}
		if err := a.backend.Update(ctx, collTrainingPlans, q, fields); err != nil {
			return fmt.Errorf("failed to update plan: %w", err)
		}
		return nil
	}

	payload := UpdatePlanPayload{PlanID: planID, Fields: fields}
	_, err := a.queue.Add(ctx, queue.TypeUpdatePlan, payload, userID)
	return err
}

// AddExercise adds an exercise to a trainer's library, caching it
// optimistically and queueing the insert when offline
func (a *Accessor) AddExercise(ctx context.Context, exercise models.Exercise) (string, error) {
	if a.monitor.Status() {
		row, err := a.backend.Insert(ctx, collExercises, exercise)
		if err != nil {
			return "", fmt.Errorf("failed to add exercise: %w", err)
		}
		return rowID(row)
	}

	exercise.ID = a.temporaryID()

	current, err := a.cache.CachedExercises(exercise.TrainerID)
	if err != nil {
		return "", err
	}
	if err := a.cache.CacheExercises(exercise.TrainerID, append([]models.Exercise{exercise}, current...)); err != nil {
		return "", err
	}

	if _, err := a.queue.Add(ctx, queue.TypeAddExercise, exercise, exercise.TrainerID); err != nil {
		return "", err
	}

	return exercise.ID, nil
}

// UpdateExercise applies field updates to an exercise, queueing them when
// offline
func (a *Accessor) UpdateExercise(ctx context.Context, trainerID, exerciseID string, fields map[string]any) error {
	if a.monitor.Status() {
		q := backend.Query{Eq: map[string]string{"id": exerciseID}}
		if err := a.backend.Update(ctx, collExercises, q, fields); err != nil {
			return fmt.Errorf("failed to update exercise: %w", err)
		}
		return nil
	}

	payload := UpdateExercisePayload{ExerciseID: exerciseID, Fields: fields}
	_, err := a.queue.Add(ctx, queue.TypeUpdateExercise, payload, trainerID)
	return err
}

// DeleteExercise removes an exercise from a trainer's library, removing the
// cached copy immediately and queueing the delete when offline
func (a *Accessor) DeleteExercise(ctx context.Context, trainerID, exerciseID string) error {
	if a.monitor.Status() {
		q := backend.Query{Eq: map[string]string{"id": exerciseID}}
		if err := a.backend.Delete(ctx, collExercises, q); err != nil {
			return fmt.Errorf("failed to delete exercise: %w", err)
		}
		return nil
	}

	current, err := a.cache.CachedExercises(trainerID)
	if err != nil {
		return err
	}
	kept := make([]models.Exercise, 0, len(current))
	for _, ex := range current {
		if ex.ID != exerciseID {
			kept = append(kept, ex)
		}
	}
	if err := a.cache.CacheExercises(trainerID, kept); err != nil {
		return err
	}

	payload := DeleteExercisePayload{ExerciseID: exerciseID}
	_, err = a.queue.Add(ctx, queue.TypeDeleteExercise, payload, trainerID)
	return err
}

// =============================================================================
// Replay handlers
// =============================================================================

// registerHandlers wires the exhaustive replay handler table, one handler
// per operation kind. Replays strip the temporary offline id so the backend
// assigns the real one.
func (a *Accessor) registerHandlers() {
	a.queue.RegisterHandler(queue.TypeSaveWorkout, func(ctx context.Context, op queue.Operation) error {
		var workout models.CompletedWorkout
		if err := json.Unmarshal(op.Data, &workout); err != nil {
			return fmt.Errorf("malformed workout payload: %w", err)
		}
		workout.ID = ""
		_, err := a.backend.Insert(ctx, collCompletedWorkouts, workout)
		return err
	})

	a.queue.RegisterHandler(queue.TypeSaveMeasurement, func(ctx context.Context, op queue.Operation) error {
		var measurement models.Measurement
		if err := json.Unmarshal(op.Data, &measurement); err != nil {
			return fmt.Errorf("malformed measurement payload: %w", err)
		}
		measurement.ID = ""
		_, err := a.backend.Insert(ctx, collMeasurements, measurement)
		return err
	})

	a.queue.RegisterHandler(queue.TypeUpdatePlan, func(ctx context.Context, op queue.Operation) error {
		var payload UpdatePlanPayload
		if err := json.Unmarshal(op.Data, &payload); err != nil {
			return fmt.Errorf("malformed plan update payload: %w", err)
		}
		q := backend.Query{Eq: map[string]string{"id": payload.PlanID}}
		return a.backend.Update(ctx, collTrainingPlans, q, payload.Fields)
	})

	a.queue.RegisterHandler(queue.TypeAddExercise, func(ctx context.Context, op queue.Operation) error {
		var exercise models.Exercise
		if err := json.Unmarshal(op.Data, &exercise); err != nil {
			return fmt.Errorf("malformed exercise payload: %w", err)
		}
		exercise.ID = ""
		_, err := a.backend.Insert(ctx, collExercises, exercise)
		return err
	})

	a.queue.RegisterHandler(queue.TypeUpdateExercise, func(ctx context.Context, op queue.Operation) error {
		var payload UpdateExercisePayload
		if err := json.Unmarshal(op.Data, &payload); err != nil {
			return fmt.Errorf("malformed exercise update payload: %w", err)
		}
		q := backend.Query{Eq: map[string]string{"id": payload.ExerciseID}}
		return a.backend.Update(ctx, collExercises, q, payload.Fields)
	})

	a.queue.RegisterHandler(queue.TypeDeleteExercise, func(ctx context.Context, op queue.Operation) error {
		var payload DeleteExercisePayload
		if err := json.Unmarshal(op.Data, &payload); err != nil {
			return fmt.Errorf("malformed exercise delete payload: %w", err)
		}
		q := backend.Query{Eq: map[string]string{"id": payload.ExerciseID}}
		return a.backend.Delete(ctx, collExercises, q)
	})
}

// temporaryID synthesizes a client-side id for an offline write
func (a *Accessor) temporaryID() string {
	return fmt.Sprintf("offline-%d", a.now().UnixMilli())
}

// rowID extracts the server-assigned id from an inserted row
func rowID(row json.RawMessage) (string, error) {
	var record struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(row, &record); err != nil {
		return "", fmt.Errorf("failed to decode inserted row: %w", err)
	}
	return record.ID, nil
}
