package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/academy-api/internal/models"
)

// AttendanceCleanup scopes deletion of a student's future attendance rows.
type AttendanceCleanup struct {
	StudentID string
	AcademyID string
	From      time.Time
	Cutoff    models.DateCutoff
	Statuses  []models.AttendanceStatus
}

// AttendanceRepository persists per-student attendance rows.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func (r *AttendanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// EnsurePlaceholder inserts an unset row unless the student is already on the schedule.
func (r *AttendanceRepository) EnsurePlaceholder(ctx context.Context, exec sqlx.ExtContext, scheduleID, studentID string) (bool, error) {
	now := time.Now().UTC()
	const query = `INSERT INTO attendance_records (id, schedule_id, student_id, attendance_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (schedule_id, student_id) DO NOTHING`
	result, err := r.exec(exec).ExecContext(ctx, query, uuid.NewString(), scheduleID, studentID, models.AttendanceStatusUnset, now)
	if err != nil {
		return false, fmt.Errorf("insert attendance placeholder: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("attendance placeholder rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteFuture removes the student's rows in the given statuses past the cutoff date.
func (r *AttendanceRepository) DeleteFuture(ctx context.Context, exec sqlx.ExtContext, params AttendanceCleanup) (int64, error) {
	if len(params.Statuses) == 0 {
		return 0, nil
	}
	statuses := make([]string, len(params.Statuses))
	for i, s := range params.Statuses {
		statuses[i] = string(s)
	}
	query := fmt.Sprintf(`DELETE FROM attendance_records a USING class_schedules s
WHERE a.schedule_id = s.id AND a.student_id = $1 AND s.academy_id = $2 AND s.class_date %s $3
AND a.attendance_status = ANY($4)`, params.Cutoff.Operator())
	result, err := r.exec(exec).ExecContext(ctx, query, params.StudentID, params.AcademyID, dateParam(params.From), pq.Array(statuses))
	if err != nil {
		return 0, fmt.Errorf("delete future attendance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("future attendance rows affected: %w", err)
	}
	return affected, nil
}

// CountInRange counts the student's rows in [from, to] whose status is in statuses.
func (r *AttendanceRepository) CountInRange(ctx context.Context, exec sqlx.ExtContext, studentID, academyID string, from, to time.Time, statuses []models.AttendanceStatus) (int, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	const query = `SELECT COUNT(*) FROM attendance_records a JOIN class_schedules s ON s.id = a.schedule_id
WHERE a.student_id = $1 AND s.academy_id = $2 AND s.class_date BETWEEN $3 AND $4 AND a.attendance_status = ANY($5)`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, studentID, academyID, dateParam(from), dateParam(to), pq.Array(values)); err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return count, nil
}
