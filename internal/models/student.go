package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StudentStatus is the lifecycle state of a student.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "active"
	StudentStatusTrial     StudentStatus = "trial"
	StudentStatusPaused    StudentStatus = "paused"
	StudentStatusPending   StudentStatus = "pending"
	StudentStatusWithdrawn StudentStatus = "withdrawn"
	StudentStatusGraduated StudentStatus = "graduated"
)

// Valid reports whether the status is known.
func (s StudentStatus) Valid() bool {
	switch s {
	case StudentStatusActive, StudentStatusTrial, StudentStatusPaused, StudentStatusPending, StudentStatusWithdrawn, StudentStatusGraduated:
		return true
	default:
		return false
	}
}

// Terminal reports whether the student has left the academy.
func (s StudentStatus) Terminal() bool {
	return s == StudentStatusWithdrawn || s == StudentStatusGraduated
}

// TimeSlot is the part of the day a class runs in.
type TimeSlot string

const (
	TimeSlotMorning   TimeSlot = "morning"
	TimeSlotAfternoon TimeSlot = "afternoon"
	TimeSlotEvening   TimeSlot = "evening"
)

// Valid reports whether the slot is known.
func (t TimeSlot) Valid() bool {
	switch t {
	case TimeSlotMorning, TimeSlotAfternoon, TimeSlotEvening:
		return true
	default:
		return false
	}
}

// TrialDate is one scheduled trial lesson.
type TrialDate struct {
	Date     time.Time `json:"date"`
	TimeSlot TimeSlot  `json:"time_slot"`
	Attended bool      `json:"attended"`
}

// TrialDates is stored as a jsonb array.
type TrialDates []TrialDate

// Value implements driver.Valuer.
func (t TrialDates) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]TrialDate(t))
}

// Scan implements sql.Scanner.
func (t *TrialDates) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = TrialDates{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported trial_dates type %T", src)
	}
	var dates []TrialDate
	if err := json.Unmarshal(raw, &dates); err != nil {
		return fmt.Errorf("decode trial_dates: %w", err)
	}
	*t = dates
	return nil
}

// Last returns the latest trial date, if any.
func (t TrialDates) Last() (time.Time, bool) {
	var last time.Time
	for _, d := range t {
		if d.Date.After(last) {
			last = d.Date
		}
	}
	return last, !last.IsZero()
}

// Student is an academy member whose status, schedule and ledger the lifecycle engine keeps consistent.
type Student struct {
	ID             string        `db:"id" json:"id"`
	AcademyID      string        `db:"academy_id" json:"academy_id"`
	Name           string        `db:"name" json:"name"`
	Status         StudentStatus `db:"status" json:"status"`
	EnrollmentDate time.Time     `db:"enrollment_date" json:"enrollment_date"`
	ClassDays      ClassDays     `db:"class_days" json:"class_days"`
	TimeSlot       TimeSlot      `db:"time_slot" json:"time_slot"`
	WeeklyCount    int           `db:"weekly_count" json:"weekly_count"`
	MonthlyTuition int64         `db:"monthly_tuition" json:"monthly_tuition"`
	DiscountRate   int           `db:"discount_rate" json:"discount_rate"`
	DueDay         *int          `db:"due_day" json:"due_day,omitempty"`
	RestStartDate  *time.Time    `db:"rest_start_date" json:"rest_start_date,omitempty"`
	RestEndDate    *time.Time    `db:"rest_end_date" json:"rest_end_date,omitempty"`
	RestReason     *string       `db:"rest_reason" json:"rest_reason,omitempty"`
	IsTrial        bool          `db:"is_trial" json:"is_trial"`
	TrialRemaining int           `db:"trial_remaining" json:"trial_remaining"`
	TrialDates     TrialDates    `db:"trial_dates" json:"trial_dates"`
	Version        int           `db:"version" json:"version"`
	DeletedAt      *time.Time    `db:"deleted_at" json:"-"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// ClearRest drops the rest fields, which only exist while paused.
func (s *Student) ClearRest() {
	s.RestStartDate = nil
	s.RestEndDate = nil
	s.RestReason = nil
}

// ClearTrial drops the trial fields.
func (s *Student) ClearTrial() {
	s.IsTrial = false
	s.TrialRemaining = 0
	s.TrialDates = TrialDates{}
}

// EffectiveWeeklyCount falls back to the class-day pattern, then to two classes a week.
func (s *Student) EffectiveWeeklyCount() int {
	if s.WeeklyCount > 0 {
		return s.WeeklyCount
	}
	if len(s.ClassDays) > 0 {
		return len(s.ClassDays)
	}
	return 2
}
