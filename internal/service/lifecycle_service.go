package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/internal/repository"
	"github.com/noah-isme/academy-api/pkg/calendar"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

type studentStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error
	LockByID(ctx context.Context, exec sqlx.ExtContext, academyID, id string) (*models.Student, error)
	Update(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error
	ListTrials(ctx context.Context, academyID string) ([]models.Student, error)
}

type invoiceStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, invoice *models.TuitionInvoice) error
	FindMonthly(ctx context.Context, exec sqlx.ExtContext, studentID, yearMonth string) (*models.TuitionInvoice, error)
	UpdateAmounts(ctx context.Context, exec sqlx.ExtContext, invoice *models.TuitionInvoice) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	DeleteUnpaidByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]string, error)
}

type seasonCanceller interface {
	CancelOpenByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string, at time.Time) (int64, error)
}

type attendanceCounter interface {
	CountInRange(ctx context.Context, exec sqlx.ExtContext, studentID, academyID string, from, to time.Time, statuses []models.AttendanceStatus) (int, error)
}

// EnrollRequest creates a student as active or trial.
type EnrollRequest struct {
	Name           string               `json:"name" validate:"required,max=100"`
	Status         models.StudentStatus `json:"status" validate:"required,oneof=active trial"`
	EnrollmentDate *time.Time           `json:"enrollment_date"`
	ClassDays      models.ClassDays     `json:"class_days"`
	TimeSlot       models.TimeSlot      `json:"time_slot" validate:"required,oneof=morning afternoon evening"`
	WeeklyCount    int                  `json:"weekly_count" validate:"gte=0,lte=7"`
	MonthlyTuition int64                `json:"monthly_tuition" validate:"gte=0"`
	DiscountRate   int                  `json:"discount_rate" validate:"gte=0,lte=100"`
	DueDay         *int                 `json:"due_day" validate:"omitempty,min=1,max=31"`
	TrialDates     models.TrialDates    `json:"trial_dates"`
}

// ChangeStatusRequest moves a student to another lifecycle status.
type ChangeStatusRequest struct {
	Status        models.StudentStatus `json:"status" validate:"required,oneof=active trial paused pending withdrawn graduated"`
	EffectiveDate *time.Time           `json:"effective_date"`
	RestStartDate *time.Time           `json:"rest_start_date"`
	RestEndDate   *time.Time           `json:"rest_end_date"`
	RestReason    string               `json:"rest_reason" validate:"max=500"`
}

func (r ChangeStatusRequest) carriesChanges() bool {
	return r.EffectiveDate != nil || r.RestStartDate != nil || r.RestEndDate != nil || strings.TrimSpace(r.RestReason) != ""
}

// ChangeScheduleRequest edits a student's recurring class pattern.
type ChangeScheduleRequest struct {
	ClassDays   *models.ClassDays `json:"class_days"`
	TimeSlot    *models.TimeSlot  `json:"time_slot" validate:"omitempty,oneof=morning afternoon evening"`
	WeeklyCount *int              `json:"weekly_count" validate:"omitempty,gte=0,lte=7"`
}

// TransitionResult reports everything a lifecycle operation changed.
type TransitionResult struct {
	Student           *models.Student            `json:"student"`
	From              models.StudentStatus       `json:"from,omitempty"`
	To                models.StudentStatus       `json:"to"`
	Assigned          AssignResult               `json:"assigned"`
	AttendanceRemoved int64                      `json:"attendance_removed"`
	Invoice           *models.TuitionInvoice     `json:"invoice,omitempty"`
	InvoicesDeleted   []string                   `json:"invoices_deleted,omitempty"`
	Credit            *models.CreditLedgerEntry  `json:"credit,omitempty"`
	CreditsApplied    []models.CreditLedgerEntry `json:"credits_applied,omitempty"`
	SeasonsCancelled  int64                      `json:"seasons_cancelled"`
}

// ExpireTrialsResult lists trial students moved to pending.
type ExpireTrialsResult struct {
	AcademyID string   `json:"academy_id"`
	Expired   []string `json:"expired"`
}

// LifecycleServiceDeps groups the collaborators of LifecycleService.
type LifecycleServiceDeps struct {
	Tx         txProvider
	Students   studentStore
	Invoices   invoiceStore
	Seasons    seasonCanceller
	Attendance attendanceCounter
	Assigner   *ScheduleAssigner
	Proration  *ProrationCalculator
	Credits    *CreditLedger
	Settings   settingsProvider
	Clock      calendar.Clock
	Metrics    lifecycleMetrics
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// LifecycleService keeps a student's status, schedule and ledger consistent.
// Every operation runs in one transaction holding the student's row lock.
type LifecycleService struct {
	tx         txProvider
	students   studentStore
	invoices   invoiceStore
	seasons    seasonCanceller
	attendance attendanceCounter
	assigner   *ScheduleAssigner
	proration  *ProrationCalculator
	credits    *CreditLedger
	settings   settingsProvider
	clock      calendar.Clock
	metrics    lifecycleMetrics
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewLifecycleService constructs LifecycleService.
func NewLifecycleService(deps LifecycleServiceDeps) *LifecycleService {
	svc := &LifecycleService{
		tx:         deps.Tx,
		students:   deps.Students,
		invoices:   deps.Invoices,
		seasons:    deps.Seasons,
		attendance: deps.Attendance,
		assigner:   deps.Assigner,
		proration:  deps.Proration,
		credits:    deps.Credits,
		settings:   deps.Settings,
		clock:      deps.Clock,
		metrics:    deps.Metrics,
		validator:  deps.Validator,
		logger:     deps.Logger,
	}
	if svc.proration == nil {
		svc.proration = NewProrationCalculator(defaultResumeDueOffset)
	}
	if svc.clock == nil {
		svc.clock = calendar.SystemClock{}
	}
	if svc.metrics == nil {
		svc.metrics = nopMetrics{}
	}
	if svc.validator == nil {
		svc.validator = validator.New()
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

// Enroll creates a student and runs the enrollment cascade for its status.
func (s *LifecycleService) Enroll(ctx context.Context, academyID string, req EnrollRequest) (*TransitionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	trialDates, err := normalizeTrialDates(req)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx, academyID)
	if err != nil {
		return nil, err
	}
	today := calendar.Today(s.clock, settings.Location())

	student := &models.Student{
		AcademyID:      academyID,
		Name:           strings.TrimSpace(req.Name),
		Status:         req.Status,
		EnrollmentDate: effectiveDate(req.EnrollmentDate, today),
		ClassDays:      models.NewClassDays(req.ClassDays...),
		TimeSlot:       req.TimeSlot,
		WeeklyCount:    req.WeeklyCount,
		MonthlyTuition: req.MonthlyTuition,
		DiscountRate:   req.DiscountRate,
		DueDay:         req.DueDay,
	}
	if req.Status == models.StudentStatusTrial {
		student.IsTrial = true
		student.TrialDates = trialDates
		for _, d := range trialDates {
			if !d.Attended {
				student.TrialRemaining++
			}
		}
	}

	result := &TransitionResult{Student: student, To: req.Status}
	started := time.Now()
	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.students.Create(ctx, tx, student); err != nil {
			return appErrors.Internal(err, "failed to create student")
		}
		if student.Status == models.StudentStatusTrial {
			placed, err := s.assigner.PlaceTrial(ctx, tx, student.ID, academyID, student.TrialDates)
			result.Assigned = placed
			if err != nil {
				return appErrors.Internal(err, "failed to place trial classes")
			}
			return nil
		}
		return s.activate(ctx, tx, student, settings, false, result)
	})
	return s.finish(result, started, err)
}

// ChangeStatus moves the student to req.Status and runs the cascade for that
// pair of statuses. Pairs without a cascade only update the status.
func (s *LifecycleService) ChangeStatus(ctx context.Context, academyID, studentID string, req ChangeStatusRequest) (*TransitionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if req.RestStartDate != nil && req.RestEndDate != nil && calendar.Before(*req.RestEndDate, *req.RestStartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rest_end_date must not precede rest_start_date")
	}
	settings, err := s.settings.Get(ctx, academyID)
	if err != nil {
		return nil, err
	}
	today := calendar.Today(s.clock, settings.Location())

	result := &TransitionResult{To: req.Status}
	started := time.Now()
	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		student, err := s.lockStudent(ctx, tx, academyID, studentID)
		if err != nil {
			return err
		}
		result.Student = student
		result.From = student.Status
		if student.Status == req.Status {
			if req.carriesChanges() {
				return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("student is already %s", student.Status))
			}
			return nil
		}
		if student.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("student is %s and must be re-enrolled", student.Status))
		}

		from, to := student.Status, req.Status
		switch {
		case from == models.StudentStatusTrial && to == models.StudentStatusActive:
			err = s.convertTrial(ctx, tx, student, settings, effectiveDate(req.EffectiveDate, today), result)
		case from == models.StudentStatusActive && to == models.StudentStatusPaused:
			err = s.pause(ctx, tx, student, req, today, result)
		case from == models.StudentStatusPaused && to == models.StudentStatusActive:
			err = s.resume(ctx, tx, student, effectiveDate(req.EffectiveDate, today), result)
		case to.Terminal():
			err = s.leave(ctx, tx, student, to, today, result)
		default:
			setPlainStatus(student, req, today)
		}
		if err != nil {
			return err
		}
		return s.saveStudent(ctx, tx, student)
	})
	if err == nil && result.From == result.To {
		return result, nil
	}
	return s.finish(result, started, err)
}

// ChangeSchedule updates the class pattern and replans placeholders when the
// pattern or slot changed for an active or paused student.
func (s *LifecycleService) ChangeSchedule(ctx context.Context, academyID, studentID string, req ChangeScheduleRequest) (*TransitionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	if req.ClassDays == nil && req.TimeSlot == nil && req.WeeklyCount == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to change")
	}
	settings, err := s.settings.Get(ctx, academyID)
	if err != nil {
		return nil, err
	}
	today := calendar.Today(s.clock, settings.Location())

	result := &TransitionResult{}
	started := time.Now()
	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		student, err := s.lockStudent(ctx, tx, academyID, studentID)
		if err != nil {
			return err
		}
		result.Student = student
		result.From, result.To = student.Status, student.Status
		if student.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("student is %s; schedule is frozen", student.Status))
		}

		oldDays, oldSlot := student.ClassDays, student.TimeSlot
		if req.ClassDays != nil {
			student.ClassDays = models.NewClassDays(*req.ClassDays...)
		}
		if req.TimeSlot != nil {
			student.TimeSlot = *req.TimeSlot
		}
		if req.WeeklyCount != nil {
			student.WeeklyCount = *req.WeeklyCount
		}
		changed := !oldDays.Equal(student.ClassDays) || oldSlot != student.TimeSlot

		if from, ok := replanStart(student, today); changed && ok {
			reassigned, err := s.assigner.Reassign(ctx, tx, ReassignRequest{
				StudentID:    student.ID,
				AcademyID:    student.AcademyID,
				OldClassDays: oldDays,
				NewClassDays: student.ClassDays,
				From:         from,
				TimeSlot:     student.TimeSlot,
			})
			result.Assigned = reassigned.Assigned
			result.AttendanceRemoved = reassigned.Removed
			if err != nil {
				return appErrors.Internal(err, "failed to replan schedule")
			}
		}
		return s.saveStudent(ctx, tx, student)
	})
	return s.finish(result, started, err)
}

// ExpireTrials moves the academy's trial students whose last trial date plus
// the grace period has passed to pending. Each student commits on its own;
// failures are collected and returned together.
func (s *LifecycleService) ExpireTrials(ctx context.Context, academyID string) (*ExpireTrialsResult, error) {
	settings, err := s.settings.Get(ctx, academyID)
	if err != nil {
		return nil, err
	}
	today := calendar.Today(s.clock, settings.Location())

	trials, err := s.students.ListTrials(ctx, academyID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list trial students")
	}

	result := &ExpireTrialsResult{AcademyID: academyID, Expired: []string{}}
	var errs error
	for i := range trials {
		if !trialElapsed(&trials[i], settings.TrialGraceDays, today) {
			continue
		}
		studentID := trials[i].ID
		started := time.Now()
		expired := false
		err := runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
			student, err := s.lockStudent(ctx, tx, academyID, studentID)
			if err != nil {
				return err
			}
			if student.Status != models.StudentStatusTrial {
				return nil
			}
			student.Status = models.StudentStatusPending
			student.ClearTrial()
			expired = true
			return s.saveStudent(ctx, tx, student)
		})
		if err != nil {
			s.metrics.ObserveTransition(models.StudentStatusTrial, models.StudentStatusPending, outcomeFailed, time.Since(started))
			errs = multierr.Append(errs, fmt.Errorf("expire trial %s: %w", studentID, err))
			continue
		}
		if expired {
			s.metrics.ObserveTransition(models.StudentStatusTrial, models.StudentStatusPending, outcomeCommitted, time.Since(started))
			result.Expired = append(result.Expired, studentID)
		}
	}
	s.metrics.ObserveTrialsExpired(len(result.Expired))
	if len(result.Expired) > 0 {
		s.logger.Info("trials expired", zap.String("academy_id", academyID), zap.Int("count", len(result.Expired)))
	}
	return result, errs
}

func (s *LifecycleService) activate(ctx context.Context, tx *sqlx.Tx, student *models.Student, settings *models.AcademySettings, replan bool, result *TransitionResult) error {
	dueDay := settings.DefaultDueDay
	if student.DueDay != nil {
		dueDay = *student.DueDay
	}
	draft := s.proration.FirstInvoice(FirstInvoiceInput{
		StudentID:      student.ID,
		AcademyID:      student.AcademyID,
		MonthlyTuition: student.MonthlyTuition,
		DiscountRate:   student.DiscountRate,
		ClassDays:      student.ClassDays,
		EnrollmentDate: student.EnrollmentDate,
		DueDay:         dueDay,
		IsTrial:        student.Status == models.StudentStatusTrial,
	})
	if draft != nil {
		exists := false
		if replan {
			var err error
			if exists, err = s.monthlyInvoiceExists(ctx, tx, student.ID, draft.YearMonth); err != nil {
				return err
			}
		}
		if !exists {
			if err := s.createInvoice(ctx, tx, draft); err != nil {
				return err
			}
			result.Invoice = draft
		}
	}

	if len(student.ClassDays) == 0 {
		return nil
	}
	if replan {
		reassigned, err := s.assigner.Reassign(ctx, tx, ReassignRequest{
			StudentID:    student.ID,
			AcademyID:    student.AcademyID,
			NewClassDays: student.ClassDays,
			From:         student.EnrollmentDate,
			TimeSlot:     student.TimeSlot,
		})
		result.Assigned = reassigned.Assigned
		result.AttendanceRemoved = reassigned.Removed
		if err != nil {
			return appErrors.Internal(err, "failed to assign class schedule")
		}
		return nil
	}
	assigned, err := s.assigner.Assign(ctx, tx, AssignRequest{
		StudentID: student.ID,
		AcademyID: student.AcademyID,
		ClassDays: student.ClassDays,
		From:      student.EnrollmentDate,
		To:        calendar.MonthEnd(student.EnrollmentDate),
		TimeSlot:  student.TimeSlot,
	})
	result.Assigned = assigned
	if err != nil {
		return appErrors.Internal(err, "failed to assign class schedule")
	}
	return nil
}

func (s *LifecycleService) convertTrial(ctx context.Context, tx *sqlx.Tx, student *models.Student, settings *models.AcademySettings, from time.Time, result *TransitionResult) error {
	student.ClearTrial()
	student.Status = models.StudentStatusActive
	student.EnrollmentDate = from
	return s.activate(ctx, tx, student, settings, true, result)
}

func (s *LifecycleService) pause(ctx context.Context, tx *sqlx.Tx, student *models.Student, req ChangeStatusRequest, today time.Time, result *TransitionResult) error {
	restStart := today
	cutoff := models.CutoffAfter
	lastKept := today
	if req.RestStartDate != nil {
		restStart = calendar.DateOf(*req.RestStartDate)
		cutoff = models.CutoffOnOrAfter
		lastKept = calendar.AddDays(restStart, -1)
	}
	var restEnd *time.Time
	if req.RestEndDate != nil {
		end := calendar.DateOf(*req.RestEndDate)
		restEnd = &end
	}

	month := today
	if calendar.After(calendar.MonthStart(restStart), today) {
		month = restStart
	}
	if err := s.settlePausedMonth(ctx, tx, student, restStart, restEnd, month, lastKept, result); err != nil {
		return err
	}

	removed, err := s.assigner.CleanupFuture(ctx, tx, CleanupRequest{
		StudentID: student.ID,
		AcademyID: student.AcademyID,
		From:      restStart,
		Cutoff:    cutoff,
	})
	if err != nil {
		return appErrors.Internal(err, "failed to clean up future classes")
	}
	result.AttendanceRemoved = removed

	student.Status = models.StudentStatusPaused
	student.RestStartDate = &restStart
	student.RestEndDate = restEnd
	student.RestReason = optionalString(req.RestReason)
	return nil
}

// settlePausedMonth credits a paid invoice for the rest days, or shrinks an
// unpaid one to the classes attended before the rest.
func (s *LifecycleService) settlePausedMonth(ctx context.Context, tx *sqlx.Tx, student *models.Student, restStart time.Time, restEnd *time.Time, month, lastKept time.Time, result *TransitionResult) error {
	invoice, err := s.invoices.FindMonthly(ctx, tx, student.ID, calendar.YearMonth(month))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Internal(err, "failed to load current invoice")
	}

	if invoice.PaymentStatus == models.PaymentStatusPaid {
		credit, err := s.credits.CreateRestCredit(ctx, tx, RestCreditRequest{
			Student:         student,
			RestStart:       restStart,
			RestEnd:         restEnd,
			CreditType:      models.CreditTypeCarryover,
			SourceInvoiceID: &invoice.ID,
			Month:           month,
		})
		if err != nil {
			return err
		}
		result.Credit = credit
		return nil
	}

	attended := 0
	if monthStart := calendar.MonthStart(month); !calendar.Before(lastKept, monthStart) {
		attended, err = s.attendance.CountInRange(ctx, tx, student.ID, student.AcademyID, monthStart, lastKept, models.AttendedStatuses)
		if err != nil {
			return appErrors.Internal(err, "failed to count attended classes")
		}
	}
	newBase, drop := s.proration.PauseAdjustment(PauseAdjustmentInput{
		MonthlyTuition: student.MonthlyTuition,
		BaseAmount:     invoice.BaseAmount,
		ClassDays:      student.ClassDays,
		WeeklyCount:    student.WeeklyCount,
		Attended:       attended,
	})
	if drop && invoice.PaidAmount == 0 {
		if err := s.returnCarryover(ctx, tx, student, invoice.ID, invoice.CarryoverAmount, result); err != nil {
			return err
		}
		if err := s.invoices.Delete(ctx, tx, invoice.ID); err != nil {
			return appErrors.Internal(err, "failed to delete invoice")
		}
		result.InvoicesDeleted = append(result.InvoicesDeleted, invoice.ID)
		return nil
	}

	if newBase < invoice.PaidAmount {
		newBase = invoice.PaidAmount
	}
	invoice.BaseAmount = newBase
	invoice.DiscountAmount = discountFloored(newBase, student.DiscountRate)
	invoice.IsProrated = true
	if due := invoice.BaseAmount - invoice.DiscountAmount; invoice.CarryoverAmount > due {
		if err := s.returnCarryover(ctx, tx, student, invoice.ID, invoice.CarryoverAmount-due, result); err != nil {
			return err
		}
		invoice.CarryoverAmount = due
	}
	invoice.Recalculate()
	if invoice.PaidAmount > 0 && invoice.PaidAmount >= invoice.FinalAmount {
		invoice.PaymentStatus = models.PaymentStatusPaid
	}
	if err := s.invoices.UpdateAmounts(ctx, tx, invoice); err != nil {
		return appErrors.Internal(err, "failed to update invoice")
	}
	result.Invoice = invoice
	return nil
}

func (s *LifecycleService) returnCarryover(ctx context.Context, tx *sqlx.Tx, student *models.Student, invoiceID string, amount int64, result *TransitionResult) error {
	credit, err := s.credits.ReturnCarryover(ctx, tx, student, invoiceID, amount)
	if err != nil {
		return err
	}
	if credit != nil {
		result.Credit = credit
	}
	return nil
}

func (s *LifecycleService) resume(ctx context.Context, tx *sqlx.Tx, student *models.Student, from time.Time, result *TransitionResult) error {
	reassigned, err := s.assigner.Reassign(ctx, tx, ReassignRequest{
		StudentID:    student.ID,
		AcademyID:    student.AcademyID,
		OldClassDays: student.ClassDays,
		NewClassDays: student.ClassDays,
		From:         from,
		TimeSlot:     student.TimeSlot,
	})
	result.Assigned = reassigned.Assigned
	result.AttendanceRemoved = reassigned.Removed
	if err != nil {
		return appErrors.Internal(err, "failed to rebuild schedule")
	}

	exists, err := s.monthlyInvoiceExists(ctx, tx, student.ID, calendar.YearMonth(from))
	if err != nil {
		return err
	}
	if !exists {
		invoice := s.proration.ResumeInvoice(ResumeInvoiceInput{
			StudentID:      student.ID,
			AcademyID:      student.AcademyID,
			MonthlyTuition: student.MonthlyTuition,
			DiscountRate:   student.DiscountRate,
			ClassDays:      student.ClassDays,
			WeeklyCount:    student.WeeklyCount,
			ResumeDate:     from,
		})
		if invoice != nil {
			if err := s.createInvoice(ctx, tx, invoice); err != nil {
				return err
			}
			applied, err := s.credits.ApplyPending(ctx, tx, invoice)
			if err != nil {
				return err
			}
			result.Invoice = invoice
			result.CreditsApplied = applied
		}
	}

	student.Status = models.StudentStatusActive
	student.ClearRest()
	return nil
}

func (s *LifecycleService) leave(ctx context.Context, tx *sqlx.Tx, student *models.Student, to models.StudentStatus, today time.Time, result *TransitionResult) error {
	deleted, err := s.invoices.DeleteUnpaidByStudent(ctx, tx, student.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to delete unpaid invoices")
	}
	result.InvoicesDeleted = deleted

	cancelled, err := s.seasons.CancelOpenByStudent(ctx, tx, student.ID, s.clock.Now().UTC())
	if err != nil {
		return appErrors.Internal(err, "failed to cancel season enrollments")
	}
	result.SeasonsCancelled = cancelled

	removed, err := s.assigner.CleanupFuture(ctx, tx, CleanupRequest{
		StudentID:     student.ID,
		AcademyID:     student.AcademyID,
		From:          today,
		Cutoff:        models.CutoffAfter,
		IncludeAbsent: true,
	})
	if err != nil {
		return appErrors.Internal(err, "failed to clean up future classes")
	}
	result.AttendanceRemoved = removed

	student.Status = to
	student.ClearRest()
	return nil
}

func (s *LifecycleService) lockStudent(ctx context.Context, tx *sqlx.Tx, academyID, studentID string) (*models.Student, error) {
	student, err := s.students.LockByID(ctx, tx, academyID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	return student, nil
}

func (s *LifecycleService) saveStudent(ctx context.Context, tx *sqlx.Tx, student *models.Student) error {
	if err := s.students.Update(ctx, tx, student); err != nil {
		if errors.Is(err, repository.ErrStaleStudent) {
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "student was modified concurrently")
		}
		return appErrors.Internal(err, "failed to update student")
	}
	return nil
}

func (s *LifecycleService) createInvoice(ctx context.Context, tx *sqlx.Tx, invoice *models.TuitionInvoice) error {
	if err := s.invoices.Create(ctx, tx, invoice); err != nil {
		if errors.Is(err, repository.ErrDuplicateInvoice) {
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "monthly invoice already exists")
		}
		return appErrors.Internal(err, "failed to create invoice")
	}
	return nil
}

func (s *LifecycleService) monthlyInvoiceExists(ctx context.Context, tx *sqlx.Tx, studentID, yearMonth string) (bool, error) {
	if _, err := s.invoices.FindMonthly(ctx, tx, studentID, yearMonth); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Internal(err, "failed to load monthly invoice")
	}
	return true, nil
}

func (s *LifecycleService) finish(result *TransitionResult, started time.Time, err error) (*TransitionResult, error) {
	elapsed := time.Since(started)
	fields := []zap.Field{
		zap.String("from", string(result.From)),
		zap.String("to", string(result.To)),
	}
	if result.Student != nil {
		fields = append(fields, zap.String("student_id", result.Student.ID), zap.String("academy_id", result.Student.AcademyID))
	}
	if err != nil {
		s.metrics.ObserveTransition(result.From, result.To, outcomeFailed, elapsed)
		s.logger.Warn("student transition failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	s.metrics.ObserveTransition(result.From, result.To, outcomeCommitted, elapsed)
	s.logger.Info("student transition", append(fields,
		zap.Int("schedules_created", result.Assigned.SchedulesCreated),
		zap.Int("attendance_created", result.Assigned.AttendanceCreated),
		zap.Int64("attendance_removed", result.AttendanceRemoved),
		zap.Int("invoices_deleted", len(result.InvoicesDeleted)),
		zap.Int("credits_applied", len(result.CreditsApplied)),
		zap.Int64("seasons_cancelled", result.SeasonsCancelled),
	)...)
	return result, nil
}

// setPlainStatus handles pairs without a cascade. Rest fields only survive
// while paused and trial fields are dropped when leaving trial.
func setPlainStatus(student *models.Student, req ChangeStatusRequest, today time.Time) {
	from := student.Status
	student.Status = req.Status
	if req.Status == models.StudentStatusPaused {
		start := effectiveDate(req.RestStartDate, today)
		student.RestStartDate = &start
		if req.RestEndDate != nil {
			end := calendar.DateOf(*req.RestEndDate)
			student.RestEndDate = &end
		}
		student.RestReason = optionalString(req.RestReason)
	} else {
		student.ClearRest()
	}
	if from == models.StudentStatusTrial {
		student.ClearTrial()
	}
	if req.Status == models.StudentStatusTrial {
		student.IsTrial = true
	}
}

// replanStart returns where a schedule change starts replanning. Paused
// students replan after their rest ends; an open-ended rest defers replanning
// to resume.
func replanStart(student *models.Student, today time.Time) (time.Time, bool) {
	switch student.Status {
	case models.StudentStatusActive:
		return today, true
	case models.StudentStatusPaused:
		if student.RestEndDate == nil {
			return time.Time{}, false
		}
		if next := calendar.AddDays(calendar.DateOf(*student.RestEndDate), 1); calendar.After(next, today) {
			return next, true
		}
		return today, true
	default:
		return time.Time{}, false
	}
}

func trialElapsed(student *models.Student, graceDays int, today time.Time) bool {
	last, ok := student.TrialDates.Last()
	if !ok {
		last = student.EnrollmentDate
	}
	return calendar.Before(calendar.AddDays(calendar.DateOf(last), graceDays), today)
}

func normalizeTrialDates(req EnrollRequest) (models.TrialDates, error) {
	if req.Status != models.StudentStatusTrial {
		return models.TrialDates{}, nil
	}
	if len(req.TrialDates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "trial enrollment needs at least one trial date")
	}
	dates := make(models.TrialDates, 0, len(req.TrialDates))
	for _, d := range req.TrialDates {
		if d.Date.IsZero() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "trial date is required")
		}
		if d.TimeSlot == "" {
			d.TimeSlot = req.TimeSlot
		}
		if !d.TimeSlot.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid trial time slot")
		}
		d.Date = calendar.DateOf(d.Date)
		dates = append(dates, d)
	}
	return dates, nil
}

func effectiveDate(value *time.Time, fallback time.Time) time.Time {
	if value == nil {
		return fallback
	}
	return calendar.DateOf(*value)
}
