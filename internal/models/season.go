package models

import "time"

// SeasonEnrollmentStatus tracks a student's registration to a seasonal program.
type SeasonEnrollmentStatus string

const (
	SeasonEnrollmentRegistered SeasonEnrollmentStatus = "registered"
	SeasonEnrollmentActive     SeasonEnrollmentStatus = "active"
	SeasonEnrollmentCancelled  SeasonEnrollmentStatus = "cancelled"
)

// SeasonEnrollment links a student to a seasonal program.
type SeasonEnrollment struct {
	ID          string                 `db:"id" json:"id"`
	StudentID   string                 `db:"student_id" json:"student_id"`
	SeasonID    string                 `db:"season_id" json:"season_id"`
	Status      SeasonEnrollmentStatus `db:"status" json:"status"`
	SeasonFee   int64                  `db:"season_fee" json:"season_fee"`
	CancelledAt *time.Time             `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time              `db:"updated_at" json:"updated_at"`
}
