package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/academy-api/internal/models"
)

// SeasonEnrollmentRepository covers the season hooks the lifecycle engine needs.
type SeasonEnrollmentRepository struct {
	db *sqlx.DB
}

// NewSeasonEnrollmentRepository constructs the repository.
func NewSeasonEnrollmentRepository(db *sqlx.DB) *SeasonEnrollmentRepository {
	return &SeasonEnrollmentRepository{db: db}
}

// CancelOpenByStudent cancels registered and active season enrollments.
func (r *SeasonEnrollmentRepository) CancelOpenByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string, at time.Time) (int64, error) {
	if exec == nil {
		exec = r.db
	}
	open := pq.Array([]string{string(models.SeasonEnrollmentRegistered), string(models.SeasonEnrollmentActive)})
	const query = `UPDATE season_enrollments SET status = $1, cancelled_at = $2, updated_at = $2
WHERE student_id = $3 AND status = ANY($4)`
	result, err := exec.ExecContext(ctx, query, models.SeasonEnrollmentCancelled, at.UTC(), studentID, open)
	if err != nil {
		return 0, fmt.Errorf("cancel season enrollments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("season enrollment rows affected: %w", err)
	}
	return affected, nil
}
