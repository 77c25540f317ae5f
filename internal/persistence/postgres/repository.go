// Package postgres provides pgx-backed persistence for the workout catalog,
// voice instructions and the event outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/workouts/internal/domain"
	"example.com/workouts/internal/observability"
	"example.com/workouts/internal/outbox"
)

// Repository provides Postgres-backed persistence for packages, steps and
// voice instructions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const packageColumns = `package_id, title, description, category, estimated_duration_sec, cover_image_url, owner_id, created_at, updated_at`

const stepColumns = `step_id, package_id, step_order, title, description, duration_sec, exercise_type,
        default_reps, default_duration_sec, default_weight_kg, default_distance_m, default_custom,
        posture_image_url, current_voice_instruction_id, version, created_at, updated_at`

const instructionColumns = `instruction_id, step_id, provider, audio_url, transcript, duration_sec, created_at`

// InsertPackage persists a package and records its lifecycle event in the
// same transaction.
func (r *Repository) InsertPackage(ctx context.Context, pkg domain.WorkoutPackage) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO workout_packages (` + packageColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		pkg.ID,
		pkg.Title,
		nullIfEmpty(pkg.Description),
		nullIfEmpty(pkg.Category),
		pkg.EstimatedDurationSec,
		nullIfEmpty(pkg.CoverImageURL),
		nullIfEmpty(pkg.OwnerID),
		pkg.CreatedAt,
		pkg.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, "package.created", "workout_package", pkg.ID, outbox.PackageCreated{
		PackageID: pkg.ID,
		OwnerID:   pkg.OwnerID,
		Title:     pkg.Title,
		Category:  pkg.Category,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetPackage retrieves a package by ID, returning (nil, nil) when absent.
func (r *Repository) GetPackage(ctx context.Context, packageID string) (*domain.WorkoutPackage, error) {
	const query = `SELECT ` + packageColumns + ` FROM workout_packages WHERE package_id=$1`

	row := r.pool.QueryRow(ctx, query, packageID)
	pkg, err := scanPackage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return pkg, nil
}

// ListPackages returns packages visible to the filter's owner: their own plus
// shared content, newest first.
func (r *Repository) ListPackages(ctx context.Context, filter domain.PackageFilter) ([]domain.WorkoutPackage, error) {
	query := `SELECT ` + packageColumns + ` FROM workout_packages WHERE `
	args := []interface{}{}

	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		query += fmt.Sprintf(`(owner_id = $%d OR owner_id IS NULL)`, len(args))
	} else {
		query += `owner_id IS NULL`
	}

	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}

	args = append(args, filter.Limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, package_id DESC LIMIT $%d`, len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(` OFFSET $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.WorkoutPackage, 0, filter.Limit)
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *pkg)
	}
	return results, rows.Err()
}

// UpdatePackage writes the full package row.
func (r *Repository) UpdatePackage(ctx context.Context, pkg domain.WorkoutPackage) error {
	const stmt = `UPDATE workout_packages
        SET title=$2, description=$3, category=$4, estimated_duration_sec=$5, cover_image_url=$6, updated_at=$7
        WHERE package_id=$1`

	_, err := r.pool.Exec(ctx, stmt,
		pkg.ID,
		pkg.Title,
		nullIfEmpty(pkg.Description),
		nullIfEmpty(pkg.Category),
		pkg.EstimatedDurationSec,
		nullIfEmpty(pkg.CoverImageURL),
		pkg.UpdatedAt,
	)
	return err
}

// DeletePackage removes a package; steps and their voice instructions go with
// it via ON DELETE CASCADE. Reports whether a row was removed.
func (r *Repository) DeletePackage(ctx context.Context, packageID string) (deleted bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var ownerID *string
	err = tx.QueryRow(ctx, `SELECT owner_id FROM workout_packages WHERE package_id=$1`, packageID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = tx.Rollback(ctx)
			return false, err
		}
		return false, err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM workout_packages WHERE package_id=$1`, packageID); err != nil {
		return false, err
	}

	if err = r.insertOutbox(ctx, tx, "package.deleted", "workout_package", packageID, outbox.PackageDeleted{
		PackageID: packageID,
		OwnerID:   deref(ownerID),
	}); err != nil {
		return false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// InsertStep persists a step. An order collision within the package surfaces
// as domain.ErrDuplicateStepOrder.
func (r *Repository) InsertStep(ctx context.Context, step domain.WorkoutStep) error {
	const stmt = `INSERT INTO workout_steps (` + stepColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	_, err := r.pool.Exec(ctx, stmt,
		step.ID,
		step.PackageID,
		step.StepOrder,
		step.Title,
		nullIfEmpty(step.Description),
		step.DurationSec,
		string(step.Exercise),
		step.Defaults.Reps,
		step.Defaults.DurationSec,
		step.Defaults.WeightKg,
		step.Defaults.DistanceM,
		step.Defaults.Custom,
		nullIfEmpty(step.PostureImageURL),
		nullIfEmpty(step.CurrentInstructionID),
		step.Version,
		step.CreatedAt,
		step.UpdatedAt,
	)
	return mapStepConflict(err)
}

// GetStep retrieves a step by ID, returning (nil, nil) when absent.
func (r *Repository) GetStep(ctx context.Context, stepID string) (*domain.WorkoutStep, error) {
	const query = `SELECT ` + stepColumns + ` FROM workout_steps WHERE step_id=$1`

	row := r.pool.QueryRow(ctx, query, stepID)
	step, err := scanStep(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return step, nil
}

// ListSteps returns a package's steps sorted ascending by step order.
func (r *Repository) ListSteps(ctx context.Context, packageID string) ([]domain.WorkoutStep, error) {
	const query = `SELECT ` + stepColumns + ` FROM workout_steps WHERE package_id=$1 ORDER BY step_order ASC`

	rows, err := r.pool.Query(ctx, query, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.WorkoutStep, 0)
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *step)
	}
	return results, rows.Err()
}

// UpdateStep writes the step's mutable fields and bumps its version, so
// in-flight voice regenerations against the old version lose their race.
func (r *Repository) UpdateStep(ctx context.Context, step domain.WorkoutStep) (int64, error) {
	const stmt = `UPDATE workout_steps
        SET step_order=$2, title=$3, description=$4, duration_sec=$5, exercise_type=$6,
            default_reps=$7, default_duration_sec=$8, default_weight_kg=$9, default_distance_m=$10, default_custom=$11,
            posture_image_url=$12, version=version+1, updated_at=$13
        WHERE step_id=$1
        RETURNING version`

	var version int64
	err := r.pool.QueryRow(ctx, stmt,
		step.ID,
		step.StepOrder,
		step.Title,
		nullIfEmpty(step.Description),
		step.DurationSec,
		string(step.Exercise),
		step.Defaults.Reps,
		step.Defaults.DurationSec,
		step.Defaults.WeightKg,
		step.Defaults.DistanceM,
		step.Defaults.Custom,
		nullIfEmpty(step.PostureImageURL),
		step.UpdatedAt,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrStepNotFound
	}
	if err != nil {
		return 0, mapStepConflict(err)
	}
	return version, nil
}

// DeleteStep removes a step; its voice instructions cascade away with it.
func (r *Repository) DeleteStep(ctx context.Context, stepID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workout_steps WHERE step_id=$1`, stepID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// InsertInstruction persists an immutable voice instruction and records its
// lifecycle event in the same transaction.
func (r *Repository) InsertInstruction(ctx context.Context, inst domain.VoiceInstruction) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO voice_instructions (` + instructionColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt,
		inst.ID,
		inst.StepID,
		inst.Provider,
		inst.AudioURL,
		inst.Transcript,
		inst.DurationSec,
		inst.CreatedAt,
	)
	if err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, "instruction.created", "voice_instruction", inst.ID, outbox.InstructionCreated{
		InstructionID: inst.ID,
		StepID:        inst.StepID,
		Provider:      inst.Provider,
		AudioURL:      inst.AudioURL,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordInstructionPersisted(inst.CreatedAt)
	return nil
}

// GetInstruction retrieves a voice instruction by ID, returning (nil, nil)
// when absent.
func (r *Repository) GetInstruction(ctx context.Context, instructionID string) (*domain.VoiceInstruction, error) {
	const query = `SELECT ` + instructionColumns + ` FROM voice_instructions WHERE instruction_id=$1`

	var (
		inst        domain.VoiceInstruction
		durationSec *float64
	)
	err := r.pool.QueryRow(ctx, query, instructionID).Scan(
		&inst.ID, &inst.StepID, &inst.Provider, &inst.AudioURL, &inst.Transcript, &durationSec, &inst.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	inst.DurationSec = durationSec
	return &inst, nil
}

// SetStepVoicePointer conditionally repoints the step's current instruction.
// The guard on version makes exactly one concurrent regeneration win per
// generation; losers get domain.ErrStaleWrite.
func (r *Repository) SetStepVoicePointer(ctx context.Context, stepID, instructionID string, expectedVersion int64) error {
	const stmt = `UPDATE workout_steps
        SET current_voice_instruction_id=$2, version=version+1, updated_at=NOW()
        WHERE step_id=$1 AND version=$3`

	tag, err := r.pool.Exec(ctx, stmt, stepID, instructionID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleWrite
	}
	return nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, eventType, aggregateType, aggregateID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		aggregateID,
		body,
		fmt.Sprintf("%s:%s", aggregateID, eventType),
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic string
}

var eventCatalog = map[string]EventMetadata{
	"package.created":     {Topic: "workout_events"},
	"package.deleted":     {Topic: "workout_events"},
	"instruction.created": {Topic: "workout_events"},
}

func scanPackage(row pgx.Row) (*domain.WorkoutPackage, error) {
	var (
		pkg                                        domain.WorkoutPackage
		description, category, coverImage, ownerID *string
	)
	if err := row.Scan(
		&pkg.ID, &pkg.Title, &description, &category, &pkg.EstimatedDurationSec,
		&coverImage, &ownerID, &pkg.CreatedAt, &pkg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	pkg.Description = deref(description)
	pkg.Category = deref(category)
	pkg.CoverImageURL = deref(coverImage)
	pkg.OwnerID = deref(ownerID)
	return &pkg, nil
}

func scanStep(row pgx.Row) (*domain.WorkoutStep, error) {
	var (
		step                                 domain.WorkoutStep
		description, postureImage, pointerID *string
		exercise                             string
	)
	if err := row.Scan(
		&step.ID, &step.PackageID, &step.StepOrder, &step.Title, &description, &step.DurationSec, &exercise,
		&step.Defaults.Reps, &step.Defaults.DurationSec, &step.Defaults.WeightKg, &step.Defaults.DistanceM, &step.Defaults.Custom,
		&postureImage, &pointerID, &step.Version, &step.CreatedAt, &step.UpdatedAt,
	); err != nil {
		return nil, err
	}
	step.Description = deref(description)
	step.Exercise = domain.ExerciseType(exercise)
	step.PostureImageURL = deref(postureImage)
	step.CurrentInstructionID = deref(pointerID)
	return &step, nil
}

const uniqueViolation = "23505"

func mapStepConflict(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrDuplicateStepOrder
	}
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
