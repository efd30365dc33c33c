package service

import (
	"time"

	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/pkg/calendar"
)

const (
	defaultWeeklyCount     = 2
	weeksPerBillingMonth   = 4
	defaultResumeDueOffset = 7
)

// FirstInvoiceInput carries everything needed to price an enrollment month.
type FirstInvoiceInput struct {
	StudentID      string
	AcademyID      string
	MonthlyTuition int64
	DiscountRate   int
	ClassDays      models.ClassDays
	EnrollmentDate time.Time
	DueDay         int
	IsTrial        bool
}

// ResumeInvoiceInput carries everything needed to price the remainder of a month after a pause.
type ResumeInvoiceInput struct {
	StudentID      string
	AcademyID      string
	MonthlyTuition int64
	DiscountRate   int
	ClassDays      models.ClassDays
	WeeklyCount    int
	ResumeDate     time.Time
}

// PauseAdjustmentInput describes an unpaid invoice being shrunk because the student paused.
type PauseAdjustmentInput struct {
	MonthlyTuition int64
	BaseAmount     int64
	ClassDays      models.ClassDays
	WeeklyCount    int
	Attended       int
}

// ProrationCalculator prices partial months. It performs no I/O.
type ProrationCalculator struct {
	resumeDueOffset int
}

// NewProrationCalculator constructs the calculator. Non-positive offsets fall back to 7 days.
func NewProrationCalculator(resumeDueOffsetDays int) *ProrationCalculator {
	if resumeDueOffsetDays <= 0 {
		resumeDueOffsetDays = defaultResumeDueOffset
	}
	return &ProrationCalculator{resumeDueOffset: resumeDueOffsetDays}
}

// FirstInvoice prices the enrollment month by class days remaining, or by
// calendar days when the student has no class-day pattern. It returns nil for
// trials and free tuition.
func (p *ProrationCalculator) FirstInvoice(in FirstInvoiceInput) *models.TuitionInvoice {
	if in.MonthlyTuition <= 0 || in.IsTrial {
		return nil
	}
	enrolled := calendar.DateOf(in.EnrollmentDate)
	monthEnd := calendar.MonthEnd(enrolled)

	total := calendar.CountWeekdays(calendar.MonthStart(enrolled), monthEnd, in.ClassDays.Weekdays())
	remaining := calendar.CountWeekdays(enrolled, monthEnd, in.ClassDays.Weekdays())

	var base int64
	if total > 0 && remaining > 0 {
		base = roundDiv(in.MonthlyTuition*int64(remaining), int64(total))
	} else {
		daysInMonth := calendar.DaysInMonth(enrolled)
		remainingDays := daysInMonth - enrolled.Day() + 1
		base = roundDiv(in.MonthlyTuition*int64(remainingDays), int64(daysInMonth))
	}
	discount := roundDiv(base*int64(clampRate(in.DiscountRate)), 100)

	invoice := &models.TuitionInvoice{
		AcademyID:      in.AcademyID,
		StudentID:      in.StudentID,
		YearMonth:      calendar.YearMonth(enrolled),
		InvoiceType:    models.InvoiceTypeMonthly,
		BaseAmount:     base,
		DiscountAmount: discount,
		DueDate:        dueDateFor(enrolled, in.DueDay),
		PaymentStatus:  models.PaymentStatusPending,
		IsProrated:     true,
	}
	invoice.Recalculate()
	return invoice
}

// ResumeInvoice prices the rest of the month after a pause against a fixed
// four-week quota. Resuming on the first of the month charges the full tuition.
func (p *ProrationCalculator) ResumeInvoice(in ResumeInvoiceInput) *models.TuitionInvoice {
	if in.MonthlyTuition <= 0 {
		return nil
	}
	resumed := calendar.DateOf(in.ResumeDate)
	monthlyTotal := monthlyQuota(in.ClassDays, in.WeeklyCount)

	var remaining int
	if len(in.ClassDays) > 0 {
		remaining = calendar.CountWeekdays(resumed, calendar.MonthEnd(resumed), in.ClassDays.Weekdays())
	} else {
		daysInMonth := calendar.DaysInMonth(resumed)
		remaining = monthlyTotal * (daysInMonth - resumed.Day() + 1) / daysInMonth
	}
	if remaining > monthlyTotal {
		remaining = monthlyTotal
	}

	base := in.MonthlyTuition
	prorated := resumed.Day() != 1
	if prorated {
		base = floorThousand(in.MonthlyTuition * int64(remaining) / int64(monthlyTotal))
	}
	discount := discountFloored(base, in.DiscountRate)

	invoice := &models.TuitionInvoice{
		AcademyID:      in.AcademyID,
		StudentID:      in.StudentID,
		YearMonth:      calendar.YearMonth(resumed),
		InvoiceType:    models.InvoiceTypeMonthly,
		BaseAmount:     base,
		DiscountAmount: discount,
		DueDate:        calendar.AddDays(resumed, p.resumeDueOffset),
		PaymentStatus:  models.PaymentStatusPending,
		IsProrated:     prorated,
	}
	invoice.Recalculate()
	return invoice
}

// PauseAdjustment shrinks an unpaid invoice to the classes already attended in
// the month. When nothing was attended the invoice should be deleted.
func (p *ProrationCalculator) PauseAdjustment(in PauseAdjustmentInput) (int64, bool) {
	if in.Attended <= 0 {
		return 0, true
	}
	quota := monthlyQuota(in.ClassDays, in.WeeklyCount)
	newBase := floorThousand(in.MonthlyTuition * int64(in.Attended) / int64(quota))
	if newBase > in.BaseAmount {
		newBase = in.BaseAmount
	}
	return newBase, false
}

// monthlyQuota is the number of classes a month is assumed to hold.
func monthlyQuota(days models.ClassDays, weeklyCount int) int {
	perWeek := len(days)
	if perWeek == 0 {
		perWeek = weeklyCount
	}
	if perWeek <= 0 {
		perWeek = defaultWeeklyCount
	}
	return perWeek * weeksPerBillingMonth
}

// dueDateFor places the due day in the enrollment month, or the next month
// when it has already passed.
func dueDateFor(enrolled time.Time, dueDay int) time.Time {
	due := calendar.DayOfMonth(enrolled, dueDay)
	if calendar.Before(due, enrolled) {
		next := calendar.MonthStart(enrolled).AddDate(0, 1, 0)
		due = calendar.DayOfMonth(next, dueDay)
	}
	return due
}

// roundDiv returns n/d rounded half up. Both operands must be non-negative.
func roundDiv(n, d int64) int64 {
	if d == 0 {
		return 0
	}
	return (2*n + d) / (2 * d)
}

func floorThousand(v int64) int64 {
	if v <= 0 {
		return 0
	}
	return v / 1000 * 1000
}

func discountFloored(base int64, rate int) int64 {
	return floorThousand(base * int64(clampRate(rate)) / 100)
}

func clampRate(rate int) int {
	switch {
	case rate < 0:
		return 0
	case rate > 100:
		return 100
	default:
		return rate
	}
}
