package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/pkg/calendar"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

const (
	minManualCreditClasses = 1
	maxManualCreditClasses = 12
)

type creditStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, entry *models.CreditLedgerEntry) error
	LockByID(ctx context.Context, exec sqlx.ExtContext, academyID, id string) (*models.CreditLedgerEntry, error)
	Update(ctx context.Context, exec sqlx.ExtContext, entry *models.CreditLedgerEntry) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	ListOpenByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.CreditLedgerEntry, error)
	ListByStudent(ctx context.Context, academyID, studentID string) ([]models.CreditLedgerEntry, error)
}

type creditInvoiceStore interface {
	LockByID(ctx context.Context, exec sqlx.ExtContext, academyID, id string) (*models.TuitionInvoice, error)
	UpdateAmounts(ctx context.Context, exec sqlx.ExtContext, invoice *models.TuitionInvoice) error
}

type creditStudentReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, academyID, id string) (*models.Student, error)
}

// RestCreditRequest describes a rest period to credit within Month.
type RestCreditRequest struct {
	Student         *models.Student
	RestStart       time.Time
	RestEnd         *time.Time
	CreditType      models.CreditType
	SourceInvoiceID *string
	Month           time.Time
}

// ManualCreditRequest grants a credit for a number of classes, given directly or as a date range.
type ManualCreditRequest struct {
	StudentID  string            `json:"student_id" validate:"required"`
	ClassCount *int              `json:"class_count"`
	From       *time.Time        `json:"from"`
	To         *time.Time        `json:"to"`
	CreditType models.CreditType `json:"credit_type"`
	Reason     string            `json:"reason" validate:"max=500"`
}

// UpdateCreditRequest edits a credit that has not been consumed yet.
// CreditAmount is accepted only to be rejected.
type UpdateCreditRequest struct {
	CreditAmount *int64               `json:"credit_amount" validate:"omitempty,gt=0"`
	Status       *models.CreditStatus `json:"status"`
	Reason       *string              `json:"reason" validate:"omitempty,max=500"`
}

// ApplyResult reports a single credit application.
type ApplyResult struct {
	Credit        *models.CreditLedgerEntry `json:"credit"`
	Invoice       *models.TuitionInvoice    `json:"invoice"`
	AppliedAmount int64                     `json:"applied_amount"`
}

// CreditLedger creates, edits and applies credits owed to students.
type CreditLedger struct {
	tx        txProvider
	credits   creditStore
	invoices  creditInvoiceStore
	students  creditStudentReader
	metrics   lifecycleMetrics
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCreditLedger constructs CreditLedger.
func NewCreditLedger(tx txProvider, credits creditStore, invoices creditInvoiceStore, students creditStudentReader, metrics lifecycleMetrics, validate *validator.Validate, logger *zap.Logger) *CreditLedger {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &CreditLedger{tx: tx, credits: credits, invoices: invoices, students: students, metrics: metrics, validator: validate, logger: logger}
}

// CreateRestCredit credits the calendar days of the rest period falling in the
// request month. Nothing is created when the amount rounds down to zero.
func (l *CreditLedger) CreateRestCredit(ctx context.Context, exec sqlx.ExtContext, req RestCreditRequest) (*models.CreditLedgerEntry, error) {
	student := req.Student
	if student == nil || student.MonthlyTuition <= 0 {
		return nil, nil
	}
	monthStart := calendar.MonthStart(req.Month)
	monthEnd := calendar.MonthEnd(req.Month)
	restEnd := monthEnd
	if req.RestEnd != nil {
		restEnd = *req.RestEnd
	}
	restDays := calendar.OverlapDays(req.RestStart, restEnd, monthStart, monthEnd)
	amount := floorThousand(student.MonthlyTuition * int64(restDays) / int64(calendar.DaysInMonth(req.Month)))
	if amount <= 0 {
		return nil, nil
	}

	creditType := req.CreditType
	if creditType == "" {
		creditType = models.CreditTypeCarryover
	}
	restStart := calendar.DateOf(req.RestStart)
	entry := &models.CreditLedgerEntry{
		AcademyID:       student.AcademyID,
		StudentID:       student.ID,
		SourcePaymentID: req.SourceInvoiceID,
		RestStartDate:   &restStart,
		RestEndDate:     req.RestEnd,
		RestDays:        restDays,
		CreditAmount:    amount,
		RemainingAmount: amount,
		CreditType:      creditType,
		Status:          models.CreditStatusPending,
	}
	if err := l.credits.Create(ctx, exec, entry); err != nil {
		return nil, appErrors.Internal(err, "failed to create rest credit")
	}
	return entry, nil
}

// ReturnCarryover re-issues credit that an invoice can no longer absorb after
// it shrank or was dropped. The spent credits stay untouched.
func (l *CreditLedger) ReturnCarryover(ctx context.Context, exec sqlx.ExtContext, student *models.Student, invoiceID string, amount int64) (*models.CreditLedgerEntry, error) {
	if amount <= 0 {
		return nil, nil
	}
	source := invoiceID
	entry := &models.CreditLedgerEntry{
		AcademyID:       student.AcademyID,
		StudentID:       student.ID,
		SourcePaymentID: &source,
		CreditAmount:    amount,
		RemainingAmount: amount,
		CreditType:      models.CreditTypeRefund,
		Status:          models.CreditStatusPending,
		Reason:          optionalString("carryover returned from adjusted invoice " + invoiceID),
	}
	if err := l.credits.Create(ctx, exec, entry); err != nil {
		return nil, appErrors.Internal(err, "failed to return carryover")
	}
	return entry, nil
}

// CreateManualCredit grants a per-class credit for between 1 and 12 classes.
func (l *CreditLedger) CreateManualCredit(ctx context.Context, academyID string, req ManualCreditRequest) (*models.CreditLedgerEntry, error) {
	if err := l.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid manual credit payload")
	}
	creditType := req.CreditType
	if creditType == "" {
		creditType = models.CreditTypeManual
	}
	if !creditType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown credit type")
	}

	student, err := l.students.FindByID(ctx, nil, academyID, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}

	var classCount int
	switch {
	case req.ClassCount != nil:
		classCount = *req.ClassCount
	case req.From != nil && req.To != nil:
		if calendar.After(*req.From, *req.To) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
		}
		classCount = calendar.CountWeekdays(*req.From, *req.To, student.ClassDays.Weekdays())
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_count or a from/to range is required")
	}
	if classCount < minManualCreditClasses || classCount > maxManualCreditClasses {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class count must be between 1 and 12")
	}

	perClassFee := floorThousand(student.MonthlyTuition / int64(student.EffectiveWeeklyCount()*weeksPerBillingMonth))
	amount := floorThousand(perClassFee * int64(classCount))
	if amount <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "credit amount must be positive")
	}

	entry := &models.CreditLedgerEntry{
		AcademyID:       academyID,
		StudentID:       student.ID,
		CreditAmount:    amount,
		RemainingAmount: amount,
		CreditType:      creditType,
		Status:          models.CreditStatusPending,
		Reason:          optionalString(req.Reason),
	}
	if req.From != nil && req.To != nil {
		from, to := calendar.DateOf(*req.From), calendar.DateOf(*req.To)
		entry.RestStartDate = &from
		entry.RestEndDate = &to
		entry.RestDays = calendar.OverlapDays(from, to, from, to)
	}
	if err := l.credits.Create(ctx, nil, entry); err != nil {
		return nil, appErrors.Internal(err, "failed to create manual credit")
	}
	return entry, nil
}

// Apply settles as much of the invoice as the credit covers.
func (l *CreditLedger) Apply(ctx context.Context, academyID, creditID, invoiceID string) (*ApplyResult, error) {
	var result *ApplyResult
	err := runInTx(ctx, l.tx, func(tx *sqlx.Tx) error {
		credit, err := l.credits.LockByID(ctx, tx, academyID, creditID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "credit not found")
			}
			return appErrors.Internal(err, "failed to load credit")
		}
		invoice, err := l.invoices.LockByID(ctx, tx, academyID, invoiceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
			}
			return appErrors.Internal(err, "failed to load invoice")
		}
		if credit.StudentID != invoice.StudentID {
			return appErrors.Clone(appErrors.ErrValidation, "credit and invoice belong to different students")
		}

		amount, err := applyCredit(credit, invoice)
		if err != nil {
			return err
		}
		if err := l.invoices.UpdateAmounts(ctx, tx, invoice); err != nil {
			return appErrors.Internal(err, "failed to update invoice")
		}
		if err := l.credits.Update(ctx, tx, credit); err != nil {
			return appErrors.Internal(err, "failed to update credit")
		}
		result = &ApplyResult{Credit: credit, Invoice: invoice, AppliedAmount: amount}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.metrics.ObserveCreditApplied(result.AppliedAmount)
	l.logger.Info("credit applied",
		zap.String("credit_id", creditID),
		zap.String("invoice_id", invoiceID),
		zap.Int64("amount", result.AppliedAmount),
		zap.String("credit_status", string(result.Credit.Status)),
	)
	return result, nil
}

// ApplyPending spends the student's open credits, oldest first, on invoice
// until it is settled. It runs inside the caller's transaction.
func (l *CreditLedger) ApplyPending(ctx context.Context, exec sqlx.ExtContext, invoice *models.TuitionInvoice) ([]models.CreditLedgerEntry, error) {
	if invoice == nil || invoice.FinalAmount <= 0 || invoice.PaymentStatus == models.PaymentStatusPaid {
		return nil, nil
	}
	open, err := l.credits.ListOpenByStudent(ctx, exec, invoice.StudentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load open credits")
	}

	var applied []models.CreditLedgerEntry
	for i := range open {
		if invoice.FinalAmount <= 0 {
			break
		}
		credit := &open[i]
		amount, err := applyCredit(credit, invoice)
		if err != nil {
			return nil, err
		}
		if err := l.credits.Update(ctx, exec, credit); err != nil {
			return nil, appErrors.Internal(err, "failed to update credit")
		}
		l.metrics.ObserveCreditApplied(amount)
		applied = append(applied, *credit)
	}
	if len(applied) > 0 {
		if err := l.invoices.UpdateAmounts(ctx, exec, invoice); err != nil {
			return nil, appErrors.Internal(err, "failed to update invoice")
		}
	}
	return applied, nil
}

// Update edits the status or reason of an unconsumed credit. The amount is
// fixed at creation and the applied status is reserved for Apply.
func (l *CreditLedger) Update(ctx context.Context, academyID, creditID string, req UpdateCreditRequest) (*models.CreditLedgerEntry, error) {
	if err := l.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid credit payload")
	}
	if req.CreditAmount != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "credit amount cannot change after creation")
	}
	if req.Status != nil {
		switch *req.Status {
		case models.CreditStatusApplied:
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "credits become applied only by applying them")
		case models.CreditStatusPending, models.CreditStatusPartial:
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown credit status")
		}
	}

	var updated *models.CreditLedgerEntry
	err := runInTx(ctx, l.tx, func(tx *sqlx.Tx) error {
		credit, err := l.lockEditable(ctx, tx, academyID, creditID)
		if err != nil {
			return err
		}
		if req.Status != nil {
			used := credit.RemainingAmount < credit.CreditAmount
			switch {
			case *req.Status == models.CreditStatusPending && used:
				return appErrors.Clone(appErrors.ErrInvalidTransition, "a partially used credit cannot return to pending")
			case *req.Status == models.CreditStatusPartial && !used:
				return appErrors.Clone(appErrors.ErrInvalidTransition, "an unused credit cannot be marked partial")
			}
			credit.Status = *req.Status
		}
		if req.Reason != nil {
			credit.Reason = optionalString(*req.Reason)
		}
		if err := l.credits.Update(ctx, tx, credit); err != nil {
			return appErrors.Internal(err, "failed to update credit")
		}
		updated = credit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a credit that has not been fully applied.
func (l *CreditLedger) Delete(ctx context.Context, academyID, creditID string) error {
	return runInTx(ctx, l.tx, func(tx *sqlx.Tx) error {
		credit, err := l.lockEditable(ctx, tx, academyID, creditID)
		if err != nil {
			return err
		}
		if err := l.credits.Delete(ctx, tx, credit.ID); err != nil {
			return appErrors.Internal(err, "failed to delete credit")
		}
		return nil
	})
}

// ListByStudent returns every credit of a student.
func (l *CreditLedger) ListByStudent(ctx context.Context, academyID, studentID string) ([]models.CreditLedgerEntry, error) {
	entries, err := l.credits.ListByStudent(ctx, academyID, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list credits")
	}
	if entries == nil {
		entries = []models.CreditLedgerEntry{}
	}
	return entries, nil
}

func (l *CreditLedger) lockEditable(ctx context.Context, tx *sqlx.Tx, academyID, creditID string) (*models.CreditLedgerEntry, error) {
	credit, err := l.credits.LockByID(ctx, tx, academyID, creditID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "credit not found")
		}
		return nil, appErrors.Internal(err, "failed to load credit")
	}
	if credit.Status == models.CreditStatusApplied {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "applied credits are immutable")
	}
	return credit, nil
}

// applyCredit moves min(remaining, final) from the credit onto the invoice.
// Neither side is touched when the application is rejected.
func applyCredit(credit *models.CreditLedgerEntry, invoice *models.TuitionInvoice) (int64, error) {
	if credit.RemainingAmount <= 0 {
		return 0, appErrors.Clone(appErrors.ErrAlreadyApplied, "credit has nothing remaining")
	}
	if invoice.PaymentStatus == models.PaymentStatusPaid {
		return 0, appErrors.Clone(appErrors.ErrInvoiceAlreadyPaid, "invoice is already paid")
	}
	amount := credit.RemainingAmount
	if invoice.FinalAmount < amount {
		amount = invoice.FinalAmount
	}
	if amount <= 0 {
		return 0, appErrors.Clone(appErrors.ErrInvalidTransition, "invoice has no outstanding amount")
	}

	invoice.CarryoverAmount += amount
	invoice.FinalAmount -= amount

	credit.RemainingAmount -= amount
	if credit.RemainingAmount == 0 {
		credit.Status = models.CreditStatusApplied
		invoiceID := invoice.ID
		credit.AppliedToPaymentID = &invoiceID
	} else {
		credit.Status = models.CreditStatusPartial
	}
	return amount, nil
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
