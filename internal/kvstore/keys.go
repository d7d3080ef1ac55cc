package kvstore

// Static keys hold process-wide state
const (
	// KeyProfile holds the signed-in user's profile
	KeyProfile = "profile"
	// KeyOfflineQueue holds the pending mutation list; survives cache wipes
	KeyOfflineQueue = "offline_queue"
	// KeyCacheMetadata holds the cache key → last-sync timestamp map
	KeyCacheMetadata = "cache_metadata"
)

// Per-user dataset prefixes. Dynamic keys are "<prefix>:<ownerID>".
const (
	PrefixTrainingPlans     = "training_plans"
	PrefixExercises         = "exercises"
	PrefixMeasurements      = "measurements"
	PrefixCompletedWorkouts = "completed_workouts"
	PrefixClients           = "clients"
)

// staticKeys is the catalogue loaded eagerly on Initialize
var staticKeys = []string{
	KeyProfile,
	KeyOfflineQueue,
	KeyCacheMetadata,
}

// knownPrefixes is the catalogue of discoverable dynamic key prefixes
var knownPrefixes = []string{
	PrefixTrainingPlans,
	PrefixExercises,
	PrefixMeasurements,
	PrefixCompletedWorkouts,
	PrefixClients,
}

// UserKey builds the dynamic key for a per-user dataset
func UserKey(prefix, ownerID string) string {
	return prefix + ":" + ownerID
}
