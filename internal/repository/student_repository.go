package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-api/internal/models"
)

// ErrStaleStudent is returned when an update loses an optimistic version race.
var ErrStaleStudent = errors.New("student was modified concurrently")

const studentColumns = `id, academy_id, name, status, enrollment_date, class_days, time_slot, weekly_count, monthly_tuition,
discount_rate, due_day, rest_start_date, rest_end_date, rest_reason, is_trial, trial_remaining, trial_dates,
version, deleted_at, created_at, updated_at`

// StudentRepository handles persistence of students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create persists a new student.
func (r *StudentRepository) Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	if student.Version == 0 {
		student.Version = 1
	}
	if student.ClassDays == nil {
		student.ClassDays = models.ClassDays{}
	}
	if student.TrialDates == nil {
		student.TrialDates = models.TrialDates{}
	}

	const query = `INSERT INTO students (id, academy_id, name, status, enrollment_date, class_days, time_slot, weekly_count,
monthly_tuition, discount_rate, due_day, rest_start_date, rest_end_date, rest_reason, is_trial, trial_remaining, trial_dates,
version, created_at, updated_at)
VALUES (:id, :academy_id, :name, :status, :enrollment_date, :class_days, :time_slot, :weekly_count,
:monthly_tuition, :discount_rate, :due_day, :rest_start_date, :rest_end_date, :rest_reason, :is_trial, :trial_remaining, :trial_dates,
:version, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// FindByID returns a live student owned by the academy.
func (r *StudentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, academyID, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1 AND academy_id = $2 AND deleted_at IS NULL`
	var student models.Student
	if err := sqlx.GetContext(ctx, r.exec(exec), &student, query, id, academyID); err != nil {
		return nil, err
	}
	return &student, nil
}

// LockByID loads a student and holds its row lock until the transaction ends.
func (r *StudentRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, academyID, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1 AND academy_id = $2 AND deleted_at IS NULL FOR UPDATE`
	var student models.Student
	if err := sqlx.GetContext(ctx, r.exec(exec), &student, query, id, academyID); err != nil {
		return nil, err
	}
	return &student, nil
}

// Update writes lifecycle fields guarded by the optimistic version.
func (r *StudentRepository) Update(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET status = :status, enrollment_date = :enrollment_date, class_days = :class_days,
time_slot = :time_slot, weekly_count = :weekly_count, monthly_tuition = :monthly_tuition, discount_rate = :discount_rate,
due_day = :due_day, rest_start_date = :rest_start_date, rest_end_date = :rest_end_date, rest_reason = :rest_reason,
is_trial = :is_trial, trial_remaining = :trial_remaining, trial_dates = :trial_dates, version = version + 1, updated_at = :updated_at
WHERE id = :id AND academy_id = :academy_id AND version = :version AND deleted_at IS NULL`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("student rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStaleStudent
	}
	student.Version++
	return nil
}

// ListTrials returns the academy's live trial students.
func (r *StudentRepository) ListTrials(ctx context.Context, academyID string) ([]models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE academy_id = $1 AND status = $2 AND deleted_at IS NULL ORDER BY id`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, academyID, models.StudentStatusTrial); err != nil {
		return nil, fmt.Errorf("list trial students: %w", err)
	}
	return students, nil
}

// ListTrialAcademies returns the academies that currently have trial students.
func (r *StudentRepository) ListTrialAcademies(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT academy_id FROM students WHERE status = $1 AND deleted_at IS NULL ORDER BY academy_id`
	var academies []string
	if err := r.db.SelectContext(ctx, &academies, query, models.StudentStatusTrial); err != nil {
		return nil, fmt.Errorf("list trial academies: %w", err)
	}
	return academies, nil
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
