package offline

import (
	"context"
	"time"

	"github.com/jakpal97/fitcoach/internal/models"
)

// WorkoutStats summarizes the user's workout history. Online, stats derive
// from a fresh remote read (which also refreshes the cache). Offline, total
// and this-week come from the cached history; streak is not computable from
// a possibly-partial cache and is reported as 0.
func (a *Accessor) WorkoutStats(ctx context.Context, userID string) (models.WorkoutStats, error) {
	online := a.monitor.Status()

	workouts, err := a.CompletedWorkouts(ctx, userID)
	if err != nil {
		return models.WorkoutStats{}, err
	}

	stats := models.WorkoutStats{
		Total:    len(workouts),
		ThisWeek: a.countThisWeek(workouts),
	}

	if online {
		stats.Streak = a.streak(workouts)
	}

	return stats, nil
}

// countThisWeek counts completions on or after the most recent Monday. The
// app's weeks start on Monday (Monday=0 .. Sunday=6).
func (a *Accessor) countThisWeek(workouts []models.CompletedWorkout) int {
	now := a.now()
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		AddDate(0, 0, -daysSinceMonday)

	count := 0
	for _, workout := range workouts {
		day, ok := completionDay(workout, now.Location())
		if !ok {
			continue
		}
		if !day.Before(monday) {
			count++
		}
	}
	return count
}

// streak counts consecutive workout days ending today or yesterday
func (a *Accessor) streak(workouts []models.CompletedWorkout) int {
	now := a.now()
	days := map[string]bool{}
	for _, workout := range workouts {
		if day, ok := completionDay(workout, now.Location()); ok {
			days[day.Format("2006-01-02")] = true
		}
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	cursor := today
	if !days[cursor.Format("2006-01-02")] {
		// A streak survives until a full day is missed
		cursor = cursor.AddDate(0, 0, -1)
	}

	streak := 0
	for days[cursor.Format("2006-01-02")] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

// completionDay parses a workout's normalized completion date
func completionDay(workout models.CompletedWorkout, loc *time.Location) (time.Time, bool) {
	value := workout.CompletedAt
	if len(value) > 10 {
		value = value[:10]
	}

	day, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
