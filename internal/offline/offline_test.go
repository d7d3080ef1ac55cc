package offline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakpal97/fitcoach/internal/cache"
	"github.com/jakpal97/fitcoach/internal/kvstore"
	"github.com/jakpal97/fitcoach/internal/models"
	"github.com/jakpal97/fitcoach/internal/netmon"
	"github.com/jakpal97/fitcoach/internal/queue"
	"github.com/jakpal97/fitcoach/internal/storage"
	"github.com/jakpal97/fitcoach/internal/testutil"
)

// ==============================================================================
// Test Fixture
// ==============================================================================

// A Wednesday; the week containing it starts Monday 2025-06-02
var testNow = time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)

type fixture struct {
	accessor *Accessor
	backend  *testutil.MockBackend
	cache    *cache.Manager
	queue    *queue.Queue
	monitor  *netmon.Monitor
	clock    *testutil.MockClock
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()

	logger := testutil.NewTestLogger()
	clock := testutil.NewMockClock(testNow)

	store := kvstore.NewStore(storage.NewMemoryStorage(), logger.Logger())
	require.NoError(t, store.Initialize(context.Background()))

	monitor := netmon.NewMonitor(testutil.NewMockProber(online), logger.Logger())
	if !online {
		monitor.SetOnline(false)
	}

	cacheMgr, err := cache.NewManager(store, cache.DefaultConfig(), logger.Logger())
	require.NoError(t, err)
	cacheMgr.SetClock(clock.Now)

	q, err := queue.NewQueue(store, monitor, queue.DefaultConfig(), nil, logger.Logger())
	require.NoError(t, err)
	t.Cleanup(q.Close)

	mock := testutil.NewMockBackend()
	accessor := NewAccessor(mock, cacheMgr, q, monitor, logger.Logger())
	accessor.SetClock(clock.Now)

	require.Empty(t, q.UnregisteredTypes(), "accessor must register every handler")

	return &fixture{
		accessor: accessor,
		backend:  mock,
		cache:    cacheMgr,
		queue:    q,
		monitor:  monitor,
		clock:    clock,
	}
}

// ==============================================================================
// Offline Write Tests
// ==============================================================================

func TestAccessor_SaveMeasurementOffline(t *testing.T) {
	f := newFixture(t, false)

	id, err := f.accessor.SaveMeasurement(context.Background(), models.Measurement{
		UserID:   "u1",
		WeightKg: 80,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "offline-"), "expected temporary id, got %q", id)

	// Optimistically cached under the temporary id
	cached, err := f.cache.CachedMeasurements("u1")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, id, cached[0].ID)
	assert.Equal(t, "2025-06-04", cached[0].MeasuredAt, "missing date defaults to today")

	// Queued, not sent
	assert.Equal(t, 1, f.queue.PendingCount())
	assert.Empty(t, f.backend.Calls())
}

func TestAccessor_SaveWorkoutOffline(t *testing.T) {
	f := newFixture(t, false)

	id, err := f.accessor.SaveWorkout(context.Background(), models.CompletedWorkout{
		UserID:       "u1",
		WorkoutDayID: "day-1",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "offline-"))

	cached, err := f.cache.CachedCompletedWorkouts("u1")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "2025-06-04", cached[0].CompletedAt)
	assert.Equal(t, 1, f.queue.PendingCount())
}

func TestAccessor_OfflineSaveReplaysOnReconnect(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.accessor.SaveMeasurement(context.Background(), models.Measurement{
		UserID:   "u1",
		WeightKg: 80,
	})
	require.NoError(t, err)
	require.Empty(t, f.backend.CallsFor("insert", "measurements"))

	f.monitor.SetOnline(true)
	testutil.WaitFor(t, func() bool {
		return f.queue.PendingCount() == 0
	}, time.Second, "reconnect should drain the queue")

	inserts := f.backend.CallsFor("insert", "measurements")
	require.Len(t, inserts, 1)

	var sent models.Measurement
	require.NoError(t, json.Unmarshal(inserts[0].Record, &sent))
	assert.Equal(t, 80.0, sent.WeightKg)
	assert.Equal(t, "u1", sent.UserID)
	assert.Empty(t, sent.ID, "replay must strip the temporary id")
}

func TestAccessor_ReplayPreservesSaveOrder(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.accessor.SaveMeasurement(context.Background(), models.Measurement{UserID: "u1", WeightKg: 80})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.accessor.SaveMeasurement(context.Background(), models.Measurement{UserID: "u1", WeightKg: 81})
	require.NoError(t, err)

	f.monitor.SetOnline(true)
	testutil.WaitFor(t, func() bool {
		return f.queue.PendingCount() == 0
	}, time.Second, "reconnect should drain the queue")

	inserts := f.backend.CallsFor("insert", "measurements")
	require.Len(t, inserts, 2)

	weights := []float64{}
	for _, call := range inserts {
		var m models.Measurement
		require.NoError(t, json.Unmarshal(call.Record, &m))
		weights = append(weights, m.WeightKg)
	}
	assert.Equal(t, []float64{80, 81}, weights)
}

func TestAccessor_UpdateAndDeleteQueueWhileOffline(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.cache.CacheExercises("t1", []models.Exercise{
		{ID: "ex-1", TrainerID: "t1", Name: "Squat"},
		{ID: "ex-2", TrainerID: "t1", Name: "Bench"},
	}))

	err := f.accessor.UpdatePlan(context.Background(), "u1", "p1", map[string]any{"name": "Bulk"})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	err = f.accessor.DeleteExercise(context.Background(), "t1", "ex-1")
	require.NoError(t, err)

	// Delete takes effect in the cache immediately
	cached, err := f.cache.CachedExercises("t1")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "ex-2", cached[0].ID)

	assert.Equal(t, 2, f.queue.PendingCount())
	assert.Empty(t, f.backend.Calls())

	f.monitor.SetOnline(true)
	testutil.WaitFor(t, func() bool {
		return f.queue.PendingCount() == 0
	}, time.Second, "reconnect should drain the queue")

	updates := f.backend.CallsFor("update", "training_plans")
	require.Len(t, updates, 1)
	assert.Equal(t, "p1", updates[0].Query.Eq["id"])

	deletes := f.backend.CallsFor("delete", "exercises")
	require.Len(t, deletes, 1)
	assert.Equal(t, "ex-1", deletes[0].Query.Eq["id"])
}

func TestAccessor_AddExerciseOfflinePrependsToCache(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.cache.CacheExercises("t1", []models.Exercise{
		{ID: "ex-1", TrainerID: "t1", Name: "Squat"},
	}))

	id, err := f.accessor.AddExercise(context.Background(), models.Exercise{
		TrainerID: "t1",
		Name:      "Deadlift",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "offline-"))

	cached, err := f.cache.CachedExercises("t1")
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, "Deadlift", cached[0].Name)
}

// ==============================================================================
// Online Write Tests
// ==============================================================================

func TestAccessor_OnlineSaveGoesDirect(t *testing.T) {
	f := newFixture(t, true)

	id, err := f.accessor.SaveWorkout(context.Background(), models.CompletedWorkout{
		UserID:       "u1",
		WorkoutDayID: "day-1",
		CompletedAt:  "2025-06-04",
	})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", id)
	assert.Equal(t, 0, f.queue.PendingCount())
	assert.Len(t, f.backend.CallsFor("insert", "completed_workouts"), 1)
}

func TestAccessor_OnlineSaveFailurePropagates(t *testing.T) {
	f := newFixture(t, true)
	f.backend.SetError("measurements", errors.New("503"))

	_, err := f.accessor.SaveMeasurement(context.Background(), models.Measurement{
		UserID:   "u1",
		WeightKg: 80,
	})
	assert.Error(t, err)
	// A direct failure is the caller's problem, not the queue's
	assert.Equal(t, 0, f.queue.PendingCount())
}

// ==============================================================================
// Read Tests
// ==============================================================================

func TestAccessor_OnlineReadWritesThroughToCache(t *testing.T) {
	f := newFixture(t, true)
	f.backend.SetRows("exercises", []any{
		models.Exercise{ID: "ex-1", TrainerID: "t1", Name: "Squat"},
	})

	exercises, err := f.accessor.TrainerExercises(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, exercises, 1)

	cached, err := f.cache.CachedExercises("t1")
	require.NoError(t, err)
	assert.Equal(t, exercises, cached)
}

func TestAccessor_RemoteFailureFallsBackToCache(t *testing.T) {
	f := newFixture(t, true)
	f.backend.SetRows("exercises", []any{
		models.Exercise{ID: "ex-1", TrainerID: "t1", Name: "Squat"},
	})

	// Warm the cache, then break the backend
	_, err := f.accessor.TrainerExercises(context.Background(), "t1")
	require.NoError(t, err)
	f.backend.SetError("exercises", errors.New("timeout"))

	exercises, err := f.accessor.TrainerExercises(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, exercises, 1)
	assert.Equal(t, "ex-1", exercises[0].ID)
}

func TestAccessor_OfflineReadServesCacheWithoutNetwork(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.cache.CacheMeasurements("u1", []models.Measurement{
		{ID: "m1", UserID: "u1", WeightKg: 80, MeasuredAt: "2025-06-01"},
	}))

	measurements, err := f.accessor.Measurements(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, measurements, 1)
	assert.Empty(t, f.backend.Calls(), "offline reads must not touch the backend")
}

func TestAccessor_OfflineReadOnEmptyCacheIsNotAnError(t *testing.T) {
	f := newFixture(t, false)

	workouts, err := f.accessor.CompletedWorkouts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, workouts)
}

func TestAccessor_ActivePlan(t *testing.T) {
	f := newFixture(t, true)
	f.backend.SetRows("training_plans", []any{
		models.TrainingPlan{ID: "p1", UserID: "u1", Name: "Cut", IsActive: false},
		models.TrainingPlan{ID: "p2", UserID: "u1", Name: "Bulk", IsActive: true},
	})

	plan, err := f.accessor.ActivePlan(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "p2", plan.ID)

	// Offline, the cached copy answers
	f.monitor.SetOnline(false)
	plan, err = f.accessor.ActivePlan(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "p2", plan.ID)
}

func TestAccessor_ActivePlanNoneIsNil(t *testing.T) {
	f := newFixture(t, false)

	plan, err := f.accessor.ActivePlan(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestAccessor_PlanDetailsFallsBackToCachedList(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.cache.CacheTrainingPlans("u1", []models.TrainingPlan{
		{ID: "p1", UserID: "u1", Name: "Cut"},
		{ID: "p2", UserID: "u1", Name: "Bulk"},
	}))

	plan, err := f.accessor.PlanDetails(context.Background(), "u1", "p2")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "Bulk", plan.Name)

	missing, err := f.accessor.PlanDetails(context.Background(), "u1", "p9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// ==============================================================================
// Completion Check Tests
// ==============================================================================

func TestAccessor_TodayCompletionOfflineCacheShortCircuits(t *testing.T) {
	f := newFixture(t, true)

	// An offline-recorded completion for today answers without a remote read
	require.NoError(t, f.cache.AddCachedCompletedWorkout("u1", models.CompletedWorkout{
		ID:           "offline-123",
		UserID:       "u1",
		WorkoutDayID: "day-1",
		CompletedAt:  "2025-06-04",
	}))

	done, err := f.accessor.IsTodayWorkoutCompleted(context.Background(), "u1", "day-1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, f.backend.CallsFor("select", "completed_workouts"))
}

func TestAccessor_TodayCompletionRemoteCheck(t *testing.T) {
	f := newFixture(t, true)
	f.backend.SetRows("completed_workouts", []any{
		models.CompletedWorkout{ID: "w1", UserID: "u1", WorkoutDayID: "day-1", CompletedAt: "2025-06-04"},
	})

	done, err := f.accessor.IsTodayWorkoutCompleted(context.Background(), "u1", "day-1")
	require.NoError(t, err)
	assert.True(t, done)

	selects := f.backend.CallsFor("select", "completed_workouts")
	require.Len(t, selects, 1)
	assert.Equal(t, "2025-06-04", selects[0].Query.Eq["completed_at"])
}

func TestAccessor_TodayCompletionRemoteFailureMeansNotDone(t *testing.T) {
	f := newFixture(t, true)
	f.backend.SetError("completed_workouts", errors.New("timeout"))

	done, err := f.accessor.IsTodayWorkoutCompleted(context.Background(), "u1", "day-1")
	require.NoError(t, err)
	assert.False(t, done)
}

// ==============================================================================
// Stats Tests
// ==============================================================================

func TestAccessor_WorkoutStatsOffline(t *testing.T) {
	f := newFixture(t, false)

	// Week starts Monday 2025-06-02; 06-01 is the previous Sunday
	require.NoError(t, f.cache.CacheCompletedWorkouts("u1", []models.CompletedWorkout{
		{ID: "w1", UserID: "u1", CompletedAt: "2025-06-04"},
		{ID: "w2", UserID: "u1", CompletedAt: "2025-06-03"},
		{ID: "w3", UserID: "u1", CompletedAt: "2025-06-01"},
		{ID: "w4", UserID: "u1", CompletedAt: "2025-05-20"},
	}))

	stats, err := f.accessor.WorkoutStats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.ThisWeek)
	assert.Equal(t, 0, stats.Streak, "streak is not computable offline")
}

func TestAccessor_WorkoutStatsOnlineStreak(t *testing.T) {
	f := newFixture(t, true)
	f.backend.SetRows("completed_workouts", []any{
		models.CompletedWorkout{ID: "w1", UserID: "u1", CompletedAt: "2025-06-04"},
		models.CompletedWorkout{ID: "w2", UserID: "u1", CompletedAt: "2025-06-03"},
		models.CompletedWorkout{ID: "w3", UserID: "u1", CompletedAt: "2025-06-02"},
	})

	stats, err := f.accessor.WorkoutStats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.ThisWeek)
	assert.Equal(t, 3, stats.Streak)
}

func TestAccessor_StreakSurvivesUntilAFullDayIsMissed(t *testing.T) {
	f := newFixture(t, true)
	// Worked out yesterday and the day before, but not yet today
	f.backend.SetRows("completed_workouts", []any{
		models.CompletedWorkout{ID: "w1", UserID: "u1", CompletedAt: "2025-06-03"},
		models.CompletedWorkout{ID: "w2", UserID: "u1", CompletedAt: "2025-06-02"},
	})

	stats, err := f.accessor.WorkoutStats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Streak)
}
