// Package cache provides typed read/write helpers over the key-value store
// for each domain dataset, with per-dataset staleness tracking. The cache
// manager exclusively owns the cache keys and the last-sync metadata map;
// the offline queue owns only its queue key.
package cache

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jakpal97/fitcoach/internal/kvstore"
	"github.com/jakpal97/fitcoach/internal/models"
)

// Manager is the typed cache layer over the key-value store
type Manager struct {
	store  *kvstore.Store
	config Config
	logger *slog.Logger

	// Injected for staleness tests
	now func() time.Time
}

// NewManager creates a cache manager with validated configuration
func NewManager(store *kvstore.Store, config Config, logger *slog.Logger) (*Manager, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return &Manager{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}, nil
}

// SetClock overrides the manager's time source. Tests use this to simulate
// the passage of staleness windows.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// =============================================================================
// Profile
// =============================================================================

// CacheProfile stores the signed-in user's profile and stamps its sync time
func (m *Manager) CacheProfile(profile models.Profile) error {
	return m.write(kvstore.KeyProfile, profile)
}

// CachedProfile returns the cached profile, or nil if nothing is cached
func (m *Manager) CachedProfile() (*models.Profile, error) {
	var profile models.Profile
	found, err := m.store.GetObject(kvstore.KeyProfile, &profile)
	if err != nil || !found {
		return nil, err
	}
	return &profile, nil
}

// IsProfileStale reports whether the cached profile is older than its max age
func (m *Manager) IsProfileStale() bool {
	return m.isStale(kvstore.KeyProfile, m.config.ProfileMaxAge)
}

// =============================================================================
// Training plans
// =============================================================================

// CacheTrainingPlans stores a user's training plans
func (m *Manager) CacheTrainingPlans(userID string, plans []models.TrainingPlan) error {
	return m.write(kvstore.UserKey(kvstore.PrefixTrainingPlans, userID), plans)
}

// CachedTrainingPlans returns a user's cached plans; nil means nothing cached
func (m *Manager) CachedTrainingPlans(userID string) ([]models.TrainingPlan, error) {
	var plans []models.TrainingPlan
	_, err := m.store.GetObject(kvstore.UserKey(kvstore.PrefixTrainingPlans, userID), &plans)
	return plans, err
}

// IsTrainingPlansStale reports whether a user's cached plans are stale
func (m *Manager) IsTrainingPlansStale(userID string) bool {
	return m.isStale(kvstore.UserKey(kvstore.PrefixTrainingPlans, userID), m.config.PlansMaxAge)
}

// =============================================================================
// Exercises
// =============================================================================

// CacheExercises stores a trainer's exercise library
func (m *Manager) CacheExercises(trainerID string, exercises []models.Exercise) error {
	return m.write(kvstore.UserKey(kvstore.PrefixExercises, trainerID), exercises)
}

// CachedExercises returns a trainer's cached exercise library
func (m *Manager) CachedExercises(trainerID string) ([]models.Exercise, error) {
	var exercises []models.Exercise
	_, err := m.store.GetObject(kvstore.UserKey(kvstore.PrefixExercises, trainerID), &exercises)
	return exercises, err
}

// IsExercisesStale reports whether a trainer's cached library is stale
func (m *Manager) IsExercisesStale(trainerID string) bool {
	return m.isStale(kvstore.UserKey(kvstore.PrefixExercises, trainerID), m.config.ExercisesMaxAge)
}

// =============================================================================
// Measurements
// =============================================================================

// CacheMeasurements stores a user's measurement history, newest first
func (m *Manager) CacheMeasurements(userID string, measurements []models.Measurement) error {
	return m.write(kvstore.UserKey(kvstore.PrefixMeasurements, userID), measurements)
}

// CachedMeasurements returns a user's cached measurements
func (m *Manager) CachedMeasurements(userID string) ([]models.Measurement, error) {
	var measurements []models.Measurement
	_, err := m.store.GetObject(kvstore.UserKey(kvstore.PrefixMeasurements, userID), &measurements)
	return measurements, err
}

// IsMeasurementsStale reports whether a user's cached measurements are stale
func (m *Manager) IsMeasurementsStale(userID string) bool {
	return m.isStale(kvstore.UserKey(kvstore.PrefixMeasurements, userID), m.config.MeasurementsMaxAge)
}

// AddCachedMeasurement prepends a measurement to the cached list and rewrites
// the whole list. No merge, no deduplication by id.
func (m *Manager) AddCachedMeasurement(userID string, measurement models.Measurement) error {
	current, err := m.CachedMeasurements(userID)
	if err != nil {
		return err
	}

	updated := append([]models.Measurement{measurement}, current...)
	return m.CacheMeasurements(userID, updated)
}

// =============================================================================
// Completed workouts
// =============================================================================

// CacheCompletedWorkouts stores a user's completed workout history, newest first
func (m *Manager) CacheCompletedWorkouts(userID string, workouts []models.CompletedWorkout) error {
	return m.write(kvstore.UserKey(kvstore.PrefixCompletedWorkouts, userID), workouts)
}

// CachedCompletedWorkouts returns a user's cached completed workouts
func (m *Manager) CachedCompletedWorkouts(userID string) ([]models.CompletedWorkout, error) {
	var workouts []models.CompletedWorkout
	_, err := m.store.GetObject(kvstore.UserKey(kvstore.PrefixCompletedWorkouts, userID), &workouts)
	return workouts, err
}

// IsCompletedWorkoutsStale reports whether a user's cached workouts are stale
func (m *Manager) IsCompletedWorkoutsStale(userID string) bool {
	return m.isStale(kvstore.UserKey(kvstore.PrefixCompletedWorkouts, userID), m.config.CompletedWorkoutsMaxAge)
}

// AddCachedCompletedWorkout prepends a completed workout to the cached list
// and rewrites the whole list
func (m *Manager) AddCachedCompletedWorkout(userID string, workout models.CompletedWorkout) error {
	current, err := m.CachedCompletedWorkouts(userID)
	if err != nil {
		return err
	}

	updated := append([]models.CompletedWorkout{workout}, current...)
	return m.CacheCompletedWorkouts(userID, updated)
}

// IsWorkoutDayCompletedOffline reports whether a cached completed workout
// exists for workoutDayID dated today. The comparison is exact string
// equality on the normalized date, not a range check.
func (m *Manager) IsWorkoutDayCompletedOffline(userID, workoutDayID string) (bool, error) {
	workouts, err := m.CachedCompletedWorkouts(userID)
	if err != nil {
		return false, err
	}

	today := m.now().Format("2006-01-02")
	for _, workout := range workouts {
		if workout.WorkoutDayID == workoutDayID && normalizeDate(workout.CompletedAt) == today {
			return true, nil
		}
	}

	return false, nil
}

// =============================================================================
// Clients
// =============================================================================

// CacheClients stores a trainer's client roster
func (m *Manager) CacheClients(trainerID string, clients []models.Client) error {
	return m.write(kvstore.UserKey(kvstore.PrefixClients, trainerID), clients)
}

// CachedClients returns a trainer's cached client roster
func (m *Manager) CachedClients(trainerID string) ([]models.Client, error) {
	var clients []models.Client
	_, err := m.store.GetObject(kvstore.UserKey(kvstore.PrefixClients, trainerID), &clients)
	return clients, err
}

// IsClientsStale reports whether a trainer's cached roster is stale
func (m *Manager) IsClientsStale(trainerID string) bool {
	return m.isStale(kvstore.UserKey(kvstore.PrefixClients, trainerID), m.config.ClientsMaxAge)
}

// =============================================================================
// Cache lifecycle
// =============================================================================

// ClearUserCache removes every per-user dataset key for userID plus the
// global profile key. The profile key is not user-scoped; a wipe for any
// user drops it.
func (m *Manager) ClearUserCache(userID string) error {
	keys := []string{
		kvstore.UserKey(kvstore.PrefixTrainingPlans, userID),
		kvstore.UserKey(kvstore.PrefixExercises, userID),
		kvstore.UserKey(kvstore.PrefixMeasurements, userID),
		kvstore.UserKey(kvstore.PrefixCompletedWorkouts, userID),
		kvstore.UserKey(kvstore.PrefixClients, userID),
		kvstore.KeyProfile,
	}

	meta, err := m.metadata()
	if err != nil {
		return err
	}

	for _, key := range keys {
		m.store.RemoveKey(key)
		delete(meta, key)
	}

	if err := m.store.SetObject(kvstore.KeyCacheMetadata, meta); err != nil {
		return err
	}

	m.logger.Info("cleared user cache", "user_id", userID)
	return nil
}

// =============================================================================
// Internals
// =============================================================================

// write stores value under key and stamps last-sync = now in the metadata map
func (m *Manager) write(key string, value any) error {
	if err := m.store.SetObject(key, value); err != nil {
		return err
	}

	meta, err := m.metadata()
	if err != nil {
		return err
	}

	meta[key] = m.now().Format(time.RFC3339)
	return m.store.SetObject(kvstore.KeyCacheMetadata, meta)
}

// metadata returns the cache key → last-sync timestamp map
func (m *Manager) metadata() (map[string]string, error) {
	meta := map[string]string{}
	found, err := m.store.GetObject(kvstore.KeyCacheMetadata, &meta)
	if err != nil {
		return nil, fmt.Errorf("malformed cache metadata: %w", err)
	}
	if !found {
		return map[string]string{}, nil
	}
	return meta, nil
}

// isStale reports whether key's last sync is missing or older than maxAge
func (m *Manager) isStale(key string, maxAge time.Duration) bool {
	meta, err := m.metadata()
	if err != nil {
		m.logger.Warn("treating cache as stale", "key", key, "error", err)
		return true
	}

	stamp, ok := meta[key]
	if !ok {
		return true
	}

	lastSync, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return true
	}

	return m.now().Sub(lastSync) > maxAge
}

// normalizeDate reduces a stored timestamp to its YYYY-MM-DD date portion
func normalizeDate(value string) string {
	if idx := strings.IndexAny(value, "T "); idx > 0 {
		return value[:idx]
	}
	return value
}
