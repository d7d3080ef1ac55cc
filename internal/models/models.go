package models

// Profile represents an application user, either a trainer or a client.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"` // 'trainer' or 'client'
	TrainerID string `json:"trainer_id,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// TrainingPlan represents a plan assigned to a client by a trainer
type TrainingPlan struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TrainerID string    `json:"trainer_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	Days      []PlanDay `json:"days,omitempty"`
	CreatedAt string    `json:"created_at,omitempty"`
	UpdatedAt string    `json:"updated_at,omitempty"`
}

// PlanDay represents a single workout day within a training plan
type PlanDay struct {
	ID        string         `json:"id"`
	PlanID    string         `json:"plan_id"`
	Name      string         `json:"name"`
	DayOrder  int            `json:"day_order"`
	Exercises []PlanExercise `json:"exercises,omitempty"`
}

// PlanExercise represents an exercise slot within a plan day
type PlanExercise struct {
	ID            string `json:"id"`
	DayID         string `json:"day_id"`
	ExerciseID    string `json:"exercise_id"`
	Name          string `json:"name"`
	Sets          int    `json:"sets"`
	Reps          string `json:"reps"`
	RestSeconds   int    `json:"rest_seconds"`
	ExerciseOrder int    `json:"exercise_order"`
	Notes         string `json:"notes,omitempty"`
}

// Exercise represents an entry in a trainer's exercise library
type Exercise struct {
	ID          string `json:"id"`
	TrainerID   string `json:"trainer_id"`
	Name        string `json:"name"`
	MuscleGroup string `json:"muscle_group"`
	Description string `json:"description,omitempty"`
	VideoURL    string `json:"video_url,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// Measurement represents a client's body measurement entry
type Measurement struct {
	ID         string   `json:"id"`
	UserID     string   `json:"user_id"`
	WeightKg   float64  `json:"weight_kg"`
	BodyFatPct *float64 `json:"body_fat_pct,omitempty"`
	ChestCm    *float64 `json:"chest_cm,omitempty"`
	WaistCm    *float64 `json:"waist_cm,omitempty"`
	HipsCm     *float64 `json:"hips_cm,omitempty"`
	MeasuredAt string   `json:"measured_at"`
	Notes      string   `json:"notes,omitempty"`
}

// CompletedWorkout represents a finished workout session
type CompletedWorkout struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	PlanID          string `json:"plan_id,omitempty"`
	WorkoutDayID    string `json:"workout_day_id"`
	CompletedAt     string `json:"completed_at"` // date portion normalized to YYYY-MM-DD
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// Client represents a client entry in a trainer's roster
type Client struct {
	ID        string `json:"id"`
	TrainerID string `json:"trainer_id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// WorkoutStats summarizes a client's workout history
type WorkoutStats struct {
	Total    int `json:"total"`
	ThisWeek int `json:"this_week"`
	Streak   int `json:"streak"`
}
