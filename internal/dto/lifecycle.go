package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/academy-api/internal/models"
)

// DateLayout is the calendar-date format accepted and returned by the API.
const DateLayout = "2006-01-02"

// TrialDateInput is one requested trial lesson.
type TrialDateInput struct {
	Date     string `json:"date"`
	TimeSlot string `json:"time_slot,omitempty"`
}

// EnrollStudentRequest describes payload for creating a student.
type EnrollStudentRequest struct {
	Name           string           `json:"name"`
	Status         string           `json:"status"`
	EnrollmentDate string           `json:"enrollment_date,omitempty"`
	ClassDays      models.ClassDays `json:"class_days"`
	TimeSlot       string           `json:"time_slot"`
	WeeklyCount    int              `json:"weekly_count"`
	MonthlyTuition int64            `json:"monthly_tuition"`
	DiscountRate   int              `json:"discount_rate"`
	DueDay         *int             `json:"due_day,omitempty"`
	TrialDates     []TrialDateInput `json:"trial_dates,omitempty"`
}

// ChangeStatusRequest describes payload for a lifecycle transition.
type ChangeStatusRequest struct {
	Status        string `json:"status"`
	EffectiveDate string `json:"effective_date,omitempty"`
	RestStartDate string `json:"rest_start_date,omitempty"`
	RestEndDate   string `json:"rest_end_date,omitempty"`
	RestReason    string `json:"rest_reason,omitempty"`
}

// ChangeScheduleRequest describes payload for editing a student's class pattern.
// Omitted fields are left unchanged.
type ChangeScheduleRequest struct {
	ClassDays   *models.ClassDays `json:"class_days,omitempty"`
	TimeSlot    *string           `json:"time_slot,omitempty"`
	WeeklyCount *int              `json:"weekly_count,omitempty"`
}

// ManualCreditRequest grants a credit for a class count or a date range.
type ManualCreditRequest struct {
	StudentID  string `json:"student_id"`
	ClassCount *int   `json:"class_count,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	CreditType string `json:"credit_type,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ApplyCreditRequest names the invoice a credit is applied to.
type ApplyCreditRequest struct {
	InvoiceID string `json:"invoice_id" validate:"required"`
}

// UpdateCreditRequest edits a credit that has not been consumed yet.
type UpdateCreditRequest struct {
	CreditAmount *int64  `json:"credit_amount,omitempty"`
	Status       *string `json:"status,omitempty"`
	Reason       *string `json:"reason,omitempty"`
}

// UpdateSettingsRequest edits per-academy defaults.
type UpdateSettingsRequest struct {
	DefaultDueDay  *int    `json:"default_due_day,omitempty"`
	Timezone       *string `json:"timezone,omitempty"`
	TrialGraceDays *int    `json:"trial_grace_days,omitempty"`
}

// ParseDate reads an optional calendar date. Full RFC 3339 timestamps are
// accepted and truncated to their date.
func ParseDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a date in YYYY-MM-DD format", field)
	}
	date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &date, nil
}

// ParseTrialDates converts requested trial lessons into model values.
func ParseTrialDates(inputs []TrialDateInput) (models.TrialDates, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	dates := make(models.TrialDates, 0, len(inputs))
	for i, in := range inputs {
		date, err := ParseDate(fmt.Sprintf("trial_dates[%d].date", i), in.Date)
		if err != nil {
			return nil, err
		}
		if date == nil {
			return nil, fmt.Errorf("trial_dates[%d].date is required", i)
		}
		dates = append(dates, models.TrialDate{Date: *date, TimeSlot: models.TimeSlot(in.TimeSlot)})
	}
	return dates, nil
}
