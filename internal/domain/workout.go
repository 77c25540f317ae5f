package domain

import "time"

// ExerciseType is the closed set of quantitative parameter kinds a step can carry.
type ExerciseType string

const (
	ExerciseReps     ExerciseType = "reps"
	ExerciseDuration ExerciseType = "duration"
	ExerciseWeight   ExerciseType = "weight"
	ExerciseDistance ExerciseType = "distance"
	ExerciseCustom   ExerciseType = "custom"
)

// Valid reports whether t is one of the known exercise types.
func (t ExerciseType) Valid() bool {
	switch t {
	case ExerciseReps, ExerciseDuration, ExerciseWeight, ExerciseDistance, ExerciseCustom:
		return true
	}
	return false
}

// StepDefaults carries the default quantitative value for a step. Exactly the
// field matching the step's exercise type may be set; the rest must be nil.
type StepDefaults struct {
	Reps        *int
	DurationSec *int
	WeightKg    *float64
	DistanceM   *float64
	Custom      *string
}

// WorkoutPackage is a named collection of ordered steps forming one workout.
// OwnerID is empty for shared/public content.
type WorkoutPackage struct {
	ID                   string
	Title                string
	Description          string
	Category             string
	EstimatedDurationSec int
	CoverImageURL        string
	OwnerID              string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// WorkoutStep is one instructed movement within a package. StepOrder is unique
// within the owning package; gaps are permitted and never compacted. Version is
// a monotonic counter bumped on every write, used to reject stale concurrent
// voice-pointer updates.
type WorkoutStep struct {
	ID                   string
	PackageID            string
	StepOrder            int
	Title                string
	Description          string
	DurationSec          int
	Exercise             ExerciseType
	Defaults             StepDefaults
	PostureImageURL      string
	CurrentInstructionID string
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// VoiceInstruction is an immutable record of synthesized narration audio.
// Regeneration creates a new record; existing rows are never mutated, only
// superseded by moving the step's pointer.
type VoiceInstruction struct {
	ID          string
	StepID      string
	Provider    string
	AudioURL    string
	Transcript  string
	DurationSec *float64
	CreatedAt   time.Time
}

func validateDefaults(exercise ExerciseType, d StepDefaults) error {
	type field struct {
		name string
		set  bool
	}
	fields := []field{
		{"default_reps", d.Reps != nil},
		{"default_duration_sec", d.DurationSec != nil},
		{"default_weight_kg", d.WeightKg != nil},
		{"default_distance_m", d.DistanceM != nil},
		{"default_custom", d.Custom != nil},
	}

	allowed := map[ExerciseType]string{
		ExerciseReps:     "default_reps",
		ExerciseDuration: "default_duration_sec",
		ExerciseWeight:   "default_weight_kg",
		ExerciseDistance: "default_distance_m",
		ExerciseCustom:   "default_custom",
	}[exercise]

	for _, f := range fields {
		if f.set && f.name != allowed {
			return invalid(f.name, "does not match exercise type "+string(exercise))
		}
	}
	return nil
}
