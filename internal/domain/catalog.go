// Package domain defines the workout content model and the narration pipeline.
package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PackageFilter narrows package listings. An empty OwnerID limits results to
// shared content (no owner); a non-empty OwnerID includes that owner's
// packages alongside shared ones.
type PackageFilter struct {
	OwnerID  string
	Category string
	Limit    int
	Offset   int
}

// Repository captures persistence operations for packages, steps and voice
// instructions. Lookups return (nil, nil) when the entity is absent; deletes
// report whether a row was removed.
type Repository interface {
	InsertPackage(ctx context.Context, pkg WorkoutPackage) error
	GetPackage(ctx context.Context, packageID string) (*WorkoutPackage, error)
	ListPackages(ctx context.Context, filter PackageFilter) ([]WorkoutPackage, error)
	UpdatePackage(ctx context.Context, pkg WorkoutPackage) error
	DeletePackage(ctx context.Context, packageID string) (bool, error)

	// InsertStep and UpdateStep return ErrDuplicateStepOrder when the step
	// order collides with a sibling in the same package.
	InsertStep(ctx context.Context, step WorkoutStep) error
	GetStep(ctx context.Context, stepID string) (*WorkoutStep, error)
	ListSteps(ctx context.Context, packageID string) ([]WorkoutStep, error)
	// UpdateStep persists the step and returns its new version, or
	// ErrStepNotFound when the step no longer exists.
	UpdateStep(ctx context.Context, step WorkoutStep) (int64, error)
	DeleteStep(ctx context.Context, stepID string) (bool, error)

	InsertInstruction(ctx context.Context, inst VoiceInstruction) error
	GetInstruction(ctx context.Context, instructionID string) (*VoiceInstruction, error)
	// SetStepVoicePointer conditionally repoints the step's current instruction,
	// guarded on expectedVersion. Returns ErrStaleWrite when the guard fails.
	SetStepVoicePointer(ctx context.Context, stepID, instructionID string, expectedVersion int64) error
}

// Catalog owns package and step lifecycles and enforces the content model's
// ordering and uniqueness invariants.
type Catalog struct {
	repo Repository
}

// NewCatalog constructs a Catalog.
func NewCatalog(repo Repository) *Catalog {
	return &Catalog{repo: repo}
}

// CreatePackageInput captures the payload for a new workout package.
type CreatePackageInput struct {
	Title                string
	Description          string
	Category             string
	EstimatedDurationSec int
	CoverImageURL        string
	OwnerID              string
}

// CreatePackage validates and persists a new package.
func (c *Catalog) CreatePackage(ctx context.Context, in CreatePackageInput) (*WorkoutPackage, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, invalid("title", "must not be empty")
	}
	if in.EstimatedDurationSec < 0 {
		return nil, invalid("estimated_duration_sec", "must not be negative")
	}

	now := time.Now().UTC()
	pkg := WorkoutPackage{
		ID:                   uuid.NewString(),
		Title:                in.Title,
		Description:          in.Description,
		Category:             in.Category,
		EstimatedDurationSec: in.EstimatedDurationSec,
		CoverImageURL:        in.CoverImageURL,
		OwnerID:              in.OwnerID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := c.repo.InsertPackage(ctx, pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// ListPackages returns packages matching the filter.
func (c *Catalog) ListPackages(ctx context.Context, filter PackageFilter) ([]WorkoutPackage, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return c.repo.ListPackages(ctx, filter)
}

// GetPackageWithSteps returns a package and its steps sorted ascending by
// step order.
func (c *Catalog) GetPackageWithSteps(ctx context.Context, packageID string) (*WorkoutPackage, []WorkoutStep, error) {
	pkg, err := c.repo.GetPackage(ctx, packageID)
	if err != nil {
		return nil, nil, err
	}
	if pkg == nil {
		return nil, nil, ErrPackageNotFound
	}

	steps, err := c.repo.ListSteps(ctx, packageID)
	if err != nil {
		return nil, nil, err
	}
	return pkg, steps, nil
}

// UpdatePackageInput holds partial updates; nil fields are left untouched.
type UpdatePackageInput struct {
	Title                *string
	Description          *string
	Category             *string
	EstimatedDurationSec *int
	CoverImageURL        *string
}

// UpdatePackage applies a partial update to a package. Private packages may
// only be changed by their owner; shared packages accept any writer.
func (c *Catalog) UpdatePackage(ctx context.Context, packageID, actorID string, in UpdatePackageInput) (*WorkoutPackage, error) {
	pkg, err := c.repo.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, ErrPackageNotFound
	}
	if pkg.OwnerID != "" && pkg.OwnerID != actorID {
		return nil, ErrNotOwner
	}

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, invalid("title", "must not be empty")
		}
		pkg.Title = *in.Title
	}
	if in.Description != nil {
		pkg.Description = *in.Description
	}
	if in.Category != nil {
		pkg.Category = *in.Category
	}
	if in.EstimatedDurationSec != nil {
		if *in.EstimatedDurationSec < 0 {
			return nil, invalid("estimated_duration_sec", "must not be negative")
		}
		pkg.EstimatedDurationSec = *in.EstimatedDurationSec
	}
	if in.CoverImageURL != nil {
		pkg.CoverImageURL = *in.CoverImageURL
	}
	pkg.UpdatedAt = time.Now().UTC()

	if err := c.repo.UpdatePackage(ctx, *pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

// DeletePackage removes a package, cascading to its steps and their voice
// instructions. Private packages may only be removed by their owner.
func (c *Catalog) DeletePackage(ctx context.Context, packageID, actorID string) error {
	pkg, err := c.repo.GetPackage(ctx, packageID)
	if err != nil {
		return err
	}
	if pkg == nil {
		return ErrPackageNotFound
	}
	if pkg.OwnerID != "" && pkg.OwnerID != actorID {
		return ErrNotOwner
	}

	deleted, err := c.repo.DeletePackage(ctx, packageID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrPackageNotFound
	}
	return nil
}

// AddStepInput captures the payload for a new workout step.
type AddStepInput struct {
	PackageID       string
	ActorID         string
	Order           int
	Title           string
	Description     string
	DurationSec     int
	Exercise        ExerciseType
	Defaults        StepDefaults
	PostureImageURL string
}

// AddStep validates and persists a new step within a package.
func (c *Catalog) AddStep(ctx context.Context, in AddStepInput) (*WorkoutStep, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, invalid("title", "must not be empty")
	}
	if in.DurationSec <= 0 {
		return nil, invalid("duration_sec", "must be positive")
	}
	if !in.Exercise.Valid() {
		return nil, invalid("exercise_type", "must be one of reps, duration, weight, distance, custom")
	}
	if err := validateDefaults(in.Exercise, in.Defaults); err != nil {
		return nil, err
	}

	pkg, err := c.repo.GetPackage(ctx, in.PackageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, ErrPackageNotFound
	}
	if pkg.OwnerID != "" && pkg.OwnerID != in.ActorID {
		return nil, ErrNotOwner
	}

	now := time.Now().UTC()
	step := WorkoutStep{
		ID:              uuid.NewString(),
		PackageID:       in.PackageID,
		StepOrder:       in.Order,
		Title:           in.Title,
		Description:     in.Description,
		DurationSec:     in.DurationSec,
		Exercise:        in.Exercise,
		Defaults:        in.Defaults,
		PostureImageURL: in.PostureImageURL,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := c.repo.InsertStep(ctx, step); err != nil {
		return nil, err
	}
	return &step, nil
}

// UpdateStepInput holds partial step updates; nil fields are left untouched.
// Changing Exercise resets Defaults unless new ones are supplied.
type UpdateStepInput struct {
	Order           *int
	Title           *string
	Description     *string
	DurationSec     *int
	Exercise        *ExerciseType
	Defaults        *StepDefaults
	PostureImageURL *string
}

// UpdateStep applies a partial update to a step. A changed order is
// re-validated for uniqueness against sibling steps. Steps of a private
// package may only be changed by the package owner.
func (c *Catalog) UpdateStep(ctx context.Context, stepID, actorID string, in UpdateStepInput) (*WorkoutStep, error) {
	step, err := c.repo.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if step == nil {
		return nil, ErrStepNotFound
	}
	if err := c.authorizeStepWrite(ctx, step, actorID); err != nil {
		return nil, err
	}

	if in.Order != nil {
		step.StepOrder = *in.Order
	}
	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, invalid("title", "must not be empty")
		}
		step.Title = *in.Title
	}
	if in.Description != nil {
		step.Description = *in.Description
	}
	if in.DurationSec != nil {
		if *in.DurationSec <= 0 {
			return nil, invalid("duration_sec", "must be positive")
		}
		step.DurationSec = *in.DurationSec
	}
	if in.Exercise != nil {
		if !in.Exercise.Valid() {
			return nil, invalid("exercise_type", "must be one of reps, duration, weight, distance, custom")
		}
		step.Exercise = *in.Exercise
		step.Defaults = StepDefaults{}
	}
	if in.Defaults != nil {
		step.Defaults = *in.Defaults
	}
	if err := validateDefaults(step.Exercise, step.Defaults); err != nil {
		return nil, err
	}
	if in.PostureImageURL != nil {
		step.PostureImageURL = *in.PostureImageURL
	}
	step.UpdatedAt = time.Now().UTC()

	version, err := c.repo.UpdateStep(ctx, *step)
	if err != nil {
		return nil, err
	}
	step.Version = version
	return step, nil
}

// DeleteStep removes a step and, transitively, its voice instructions.
// Steps of a private package may only be removed by the package owner.
func (c *Catalog) DeleteStep(ctx context.Context, stepID, actorID string) error {
	step, err := c.repo.GetStep(ctx, stepID)
	if err != nil {
		return err
	}
	if step == nil {
		return ErrStepNotFound
	}
	if err := c.authorizeStepWrite(ctx, step, actorID); err != nil {
		return err
	}
	deleted, err := c.repo.DeleteStep(ctx, stepID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrStepNotFound
	}
	return nil
}

// authorizeStepWrite loads the step's package and rejects writes to a
// private package by anyone but its owner.
func (c *Catalog) authorizeStepWrite(ctx context.Context, step *WorkoutStep, actorID string) error {
	pkg, err := c.repo.GetPackage(ctx, step.PackageID)
	if err != nil {
		return err
	}
	if pkg == nil {
		return ErrStepNotFound
	}
	if pkg.OwnerID != "" && pkg.OwnerID != actorID {
		return ErrNotOwner
	}
	return nil
}
