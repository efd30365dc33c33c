package models

import "time"

// AttendanceStatus represents the outcome recorded for a scheduled class.
type AttendanceStatus string

const (
	// AttendanceStatusUnset marks a placeholder whose outcome is not recorded yet.
	AttendanceStatusUnset   AttendanceStatus = "unset"
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusHalfDay AttendanceStatus = "half_day"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusUnset, AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusAbsent, AttendanceStatusHalfDay:
		return true
	default:
		return false
	}
}

// Attended reports whether the outcome counts as a class taken.
func (s AttendanceStatus) Attended() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusLate || s == AttendanceStatusHalfDay
}

// AttendedStatuses lists the outcomes that consume a class from the monthly quota.
var AttendedStatuses = []AttendanceStatus{AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusHalfDay}

// AttendanceRecord places a student on a class schedule.
type AttendanceRecord struct {
	ID               string           `db:"id" json:"id"`
	ScheduleID       string           `db:"schedule_id" json:"schedule_id"`
	StudentID        string           `db:"student_id" json:"student_id"`
	AttendanceStatus AttendanceStatus `db:"attendance_status" json:"attendance_status"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// DateCutoff selects how a cleanup compares schedule dates with its start date.
type DateCutoff string

const (
	// CutoffAfter removes rows strictly after the date.
	CutoffAfter DateCutoff = "after"
	// CutoffOnOrAfter removes rows on or after the date.
	CutoffOnOrAfter DateCutoff = "on_or_after"
)

// Operator returns the SQL comparison for the cutoff.
func (c DateCutoff) Operator() string {
	if c == CutoffOnOrAfter {
		return ">="
	}
	return ">"
}
