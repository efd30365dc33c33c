package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-api/internal/models"
)

// ClassScheduleRepository persists shared class occurrences.
type ClassScheduleRepository struct {
	db *sqlx.DB
}

// NewClassScheduleRepository constructs the repository.
func NewClassScheduleRepository(db *sqlx.DB) *ClassScheduleRepository {
	return &ClassScheduleRepository{db: db}
}

func (r *ClassScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Upsert returns the occurrence for (academy, date, slot), creating it when missing.
// The boolean reports whether this call inserted the row. Concurrent callers
// converge on the same row through the unique constraint.
func (r *ClassScheduleRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, academyID string, date time.Time, slot models.TimeSlot) (*models.ClassSchedule, bool, error) {
	const query = `INSERT INTO class_schedules (id, academy_id, class_date, time_slot, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (academy_id, class_date, time_slot) DO UPDATE SET time_slot = EXCLUDED.time_slot
RETURNING id, academy_id, class_date, time_slot, created_at, (xmax = 0) AS inserted`

	var row struct {
		models.ClassSchedule
		Inserted bool `db:"inserted"`
	}
	if err := sqlx.GetContext(ctx, r.exec(exec), &row, query, uuid.NewString(), academyID, dateParam(date), slot, time.Now().UTC()); err != nil {
		return nil, false, fmt.Errorf("upsert class schedule: %w", err)
	}
	schedule := row.ClassSchedule
	return &schedule, row.Inserted, nil
}

// ListByAcademyAndRange returns occurrences in [from, to].
func (r *ClassScheduleRepository) ListByAcademyAndRange(ctx context.Context, academyID string, from, to time.Time) ([]models.ClassSchedule, error) {
	const query = `SELECT id, academy_id, class_date, time_slot, created_at FROM class_schedules
WHERE academy_id = $1 AND class_date BETWEEN $2 AND $3 ORDER BY class_date ASC, time_slot ASC`
	var schedules []models.ClassSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, academyID, dateParam(from), dateParam(to)); err != nil {
		return nil, fmt.Errorf("list class schedules: %w", err)
	}
	return schedules, nil
}

func dateParam(t time.Time) string {
	return t.Format("2006-01-02")
}
