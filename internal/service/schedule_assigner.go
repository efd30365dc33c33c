package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/internal/repository"
	"github.com/noah-isme/academy-api/pkg/calendar"
)

type classScheduleUpserter interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, academyID string, date time.Time, slot models.TimeSlot) (*models.ClassSchedule, bool, error)
}

type attendancePlanner interface {
	EnsurePlaceholder(ctx context.Context, exec sqlx.ExtContext, scheduleID, studentID string) (bool, error)
	DeleteFuture(ctx context.Context, exec sqlx.ExtContext, params repository.AttendanceCleanup) (int64, error)
}

// AssignRequest places a student on every matching weekday in [From, To].
type AssignRequest struct {
	StudentID string
	AcademyID string
	ClassDays models.ClassDays
	From      time.Time
	To        time.Time
	TimeSlot  models.TimeSlot
}

// AssignResult counts rows created by a placement.
type AssignResult struct {
	SchedulesCreated  int `json:"schedules_created"`
	AttendanceCreated int `json:"attendance_created"`
}

func (r *AssignResult) add(other AssignResult) {
	r.SchedulesCreated += other.SchedulesCreated
	r.AttendanceCreated += other.AttendanceCreated
}

// ReassignRequest replans a student's placeholders from From to the end of that month.
type ReassignRequest struct {
	StudentID    string
	AcademyID    string
	OldClassDays models.ClassDays
	NewClassDays models.ClassDays
	From         time.Time
	TimeSlot     models.TimeSlot
}

// ReassignResult reports removed placeholders and the new placement.
type ReassignResult struct {
	Removed  int64        `json:"removed"`
	Assigned AssignResult `json:"assigned"`
}

// CleanupRequest removes a student's future placeholders.
type CleanupRequest struct {
	StudentID     string
	AcademyID     string
	From          time.Time
	Cutoff        models.DateCutoff
	IncludeAbsent bool
}

// ScheduleAssigner materializes class occurrences and attendance placeholders.
// It never commits; every call runs on the executor it is given.
type ScheduleAssigner struct {
	schedules  classScheduleUpserter
	attendance attendancePlanner
}

// NewScheduleAssigner constructs ScheduleAssigner.
func NewScheduleAssigner(schedules classScheduleUpserter, attendance attendancePlanner) *ScheduleAssigner {
	return &ScheduleAssigner{schedules: schedules, attendance: attendance}
}

// Assign finds or creates the occurrence for each matching day and an unset placeholder on it.
func (a *ScheduleAssigner) Assign(ctx context.Context, exec sqlx.ExtContext, req AssignRequest) (AssignResult, error) {
	var result AssignResult
	if len(req.ClassDays) == 0 || calendar.After(req.From, req.To) {
		return result, nil
	}
	var err error
	calendar.EachDay(req.From, req.To, func(day time.Time) {
		if err != nil || !req.ClassDays.Contains(day.Weekday()) {
			return
		}
		var placed AssignResult
		placed, err = a.place(ctx, exec, req.StudentID, req.AcademyID, day, req.TimeSlot)
		result.add(placed)
	})
	return result, err
}

// Reassign drops the student's unset placeholders on or after From and assigns
// the new class days through the end of From's month. Resolved outcomes are kept.
func (a *ScheduleAssigner) Reassign(ctx context.Context, exec sqlx.ExtContext, req ReassignRequest) (ReassignResult, error) {
	var result ReassignResult
	removed, err := a.attendance.DeleteFuture(ctx, exec, repository.AttendanceCleanup{
		StudentID: req.StudentID,
		AcademyID: req.AcademyID,
		From:      req.From,
		Cutoff:    models.CutoffOnOrAfter,
		Statuses:  []models.AttendanceStatus{models.AttendanceStatusUnset},
	})
	if err != nil {
		return result, err
	}
	result.Removed = removed

	assigned, err := a.Assign(ctx, exec, AssignRequest{
		StudentID: req.StudentID,
		AcademyID: req.AcademyID,
		ClassDays: req.NewClassDays,
		From:      req.From,
		To:        calendar.MonthEnd(req.From),
		TimeSlot:  req.TimeSlot,
	})
	result.Assigned = assigned
	return result, err
}

// CleanupFuture deletes unset placeholders past the cutoff, and absent rows when asked.
func (a *ScheduleAssigner) CleanupFuture(ctx context.Context, exec sqlx.ExtContext, req CleanupRequest) (int64, error) {
	statuses := []models.AttendanceStatus{models.AttendanceStatusUnset}
	if req.IncludeAbsent {
		statuses = append(statuses, models.AttendanceStatusAbsent)
	}
	cutoff := req.Cutoff
	if cutoff == "" {
		cutoff = models.CutoffAfter
	}
	return a.attendance.DeleteFuture(ctx, exec, repository.AttendanceCleanup{
		StudentID: req.StudentID,
		AcademyID: req.AcademyID,
		From:      req.From,
		Cutoff:    cutoff,
		Statuses:  statuses,
	})
}

// PlaceTrial puts the student on each explicit trial date and slot.
func (a *ScheduleAssigner) PlaceTrial(ctx context.Context, exec sqlx.ExtContext, studentID, academyID string, dates models.TrialDates) (AssignResult, error) {
	var result AssignResult
	for _, trial := range dates {
		placed, err := a.place(ctx, exec, studentID, academyID, calendar.DateOf(trial.Date), trial.TimeSlot)
		result.add(placed)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

func (a *ScheduleAssigner) place(ctx context.Context, exec sqlx.ExtContext, studentID, academyID string, day time.Time, slot models.TimeSlot) (AssignResult, error) {
	var result AssignResult
	schedule, inserted, err := a.schedules.Upsert(ctx, exec, academyID, day, slot)
	if err != nil {
		return result, err
	}
	if inserted {
		result.SchedulesCreated++
	}
	created, err := a.attendance.EnsurePlaceholder(ctx, exec, schedule.ID, studentID)
	if err != nil {
		return result, err
	}
	if created {
		result.AttendanceCreated++
	}
	return result, nil
}
