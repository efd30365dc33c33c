package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/internal/repository"
	"github.com/noah-isme/academy-api/pkg/calendar"
)

// memStore backs every fake repository in this package's tests. Rows are
// copied in and out so services only see changes they explicitly save.
type memStore struct {
	seq        int
	students   map[string]models.Student
	schedules  map[string]models.ClassSchedule
	attendance map[string]models.AttendanceRecord
	invoices   map[string]models.TuitionInvoice
	credits    map[string]models.CreditLedgerEntry
	seasons    map[string]models.SeasonEnrollment

	upsertErr        error
	deleteFutureErr  error
	cancelSeasonsErr error
	updateStudentErr error
}

func newMemStore() *memStore {
	return &memStore{
		students:   map[string]models.Student{},
		schedules:  map[string]models.ClassSchedule{},
		attendance: map[string]models.AttendanceRecord{},
		invoices:   map[string]models.TuitionInvoice{},
		credits:    map[string]models.CreditLedgerEntry{},
		seasons:    map[string]models.SeasonEnrollment{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func scheduleKey(academyID string, date time.Time, slot models.TimeSlot) string {
	return academyID + "|" + date.Format("2006-01-02") + "|" + string(slot)
}

func attendanceKey(scheduleID, studentID string) string {
	return scheduleID + "|" + studentID
}

// seedAttendance places a student on a date with a recorded outcome.
func (m *memStore) seedAttendance(academyID, studentID string, date time.Time, slot models.TimeSlot, status models.AttendanceStatus) {
	key := scheduleKey(academyID, date, slot)
	schedule, ok := m.schedules[key]
	if !ok {
		schedule = models.ClassSchedule{ID: m.nextID("sched"), AcademyID: academyID, ClassDate: calendar.DateOf(date), TimeSlot: slot}
		m.schedules[key] = schedule
	}
	m.attendance[attendanceKey(schedule.ID, studentID)] = models.AttendanceRecord{
		ID: m.nextID("att"), ScheduleID: schedule.ID, StudentID: studentID, AttendanceStatus: status,
	}
}

// attendanceFor returns the student's rows keyed by date.
func (m *memStore) attendanceFor(studentID string) map[string]models.AttendanceStatus {
	out := map[string]models.AttendanceStatus{}
	for _, rec := range m.attendance {
		if rec.StudentID != studentID {
			continue
		}
		schedule := m.scheduleByID(rec.ScheduleID)
		out[schedule.ClassDate.Format("2006-01-02")] = rec.AttendanceStatus
	}
	return out
}

func (m *memStore) scheduleByID(id string) models.ClassSchedule {
	for _, s := range m.schedules {
		if s.ID == id {
			return s
		}
	}
	return models.ClassSchedule{}
}

type fakeStudentRepo struct{ *memStore }

func (f fakeStudentRepo) Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if student.ID == "" {
		student.ID = f.nextID("student")
	}
	if student.Version == 0 {
		student.Version = 1
	}
	f.students[student.ID] = *student
	return nil
}

func (f fakeStudentRepo) FindByID(ctx context.Context, exec sqlx.ExtContext, academyID, id string) (*models.Student, error) {
	student, ok := f.students[id]
	if !ok || student.AcademyID != academyID || student.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

func (f fakeStudentRepo) LockByID(ctx context.Context, exec sqlx.ExtContext, academyID, id string) (*models.Student, error) {
	return f.FindByID(ctx, exec, academyID, id)
}

func (f fakeStudentRepo) Update(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if f.updateStudentErr != nil {
		return f.updateStudentErr
	}
	stored, ok := f.students[student.ID]
	if !ok || stored.Version != student.Version {
		return repository.ErrStaleStudent
	}
	student.Version++
	f.students[student.ID] = *student
	return nil
}

func (f fakeStudentRepo) ListTrials(ctx context.Context, academyID string) ([]models.Student, error) {
	var out []models.Student
	for _, s := range f.students {
		if s.AcademyID == academyID && s.Status == models.StudentStatusTrial {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeStudentRepo) ListTrialAcademies(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range f.students {
		if s.Status != models.StudentStatusTrial {
			continue
		}
		if _, ok := seen[s.AcademyID]; !ok {
			seen[s.AcademyID] = struct{}{}
			out = append(out, s.AcademyID)
		}
	}
	sort.Strings(out)
	return out, nil
}

type fakeScheduleRepo struct{ *memStore }

func (f fakeScheduleRepo) Upsert(ctx context.Context, exec sqlx.ExtContext, academyID string, date time.Time, slot models.TimeSlot) (*models.ClassSchedule, bool, error) {
	if f.upsertErr != nil {
		return nil, false, f.upsertErr
	}
	key := scheduleKey(academyID, date, slot)
	if existing, ok := f.schedules[key]; ok {
		return &existing, false, nil
	}
	schedule := models.ClassSchedule{ID: f.nextID("sched"), AcademyID: academyID, ClassDate: calendar.DateOf(date), TimeSlot: slot}
	f.schedules[key] = schedule
	return &schedule, true, nil
}

type fakeAttendanceRepo struct{ *memStore }

func (f fakeAttendanceRepo) EnsurePlaceholder(ctx context.Context, exec sqlx.ExtContext, scheduleID, studentID string) (bool, error) {
	key := attendanceKey(scheduleID, studentID)
	if _, ok := f.attendance[key]; ok {
		return false, nil
	}
	f.attendance[key] = models.AttendanceRecord{ID: f.nextID("att"), ScheduleID: scheduleID, StudentID: studentID, AttendanceStatus: models.AttendanceStatusUnset}
	return true, nil
}

func (f fakeAttendanceRepo) DeleteFuture(ctx context.Context, exec sqlx.ExtContext, params repository.AttendanceCleanup) (int64, error) {
	if f.deleteFutureErr != nil {
		return 0, f.deleteFutureErr
	}
	statuses := map[models.AttendanceStatus]bool{}
	for _, s := range params.Statuses {
		statuses[s] = true
	}
	var removed int64
	for key, rec := range f.attendance {
		if rec.StudentID != params.StudentID || !statuses[rec.AttendanceStatus] {
			continue
		}
		schedule := f.scheduleByID(rec.ScheduleID)
		if schedule.AcademyID != params.AcademyID {
			continue
		}
		match := calendar.After(schedule.ClassDate, params.From)
		if params.Cutoff == models.CutoffOnOrAfter {
			match = !calendar.Before(schedule.ClassDate, params.From)
		}
		if match {
			delete(f.attendance, key)
			removed++
		}
	}
	return removed, nil
}

func (f fakeAttendanceRepo) CountInRange(ctx context.Context, exec sqlx.ExtContext, studentID, academyID string, from, to time.Time, statuses []models.AttendanceStatus) (int, error) {
	allowed := map[models.AttendanceStatus]bool{}
	for _, s := range statuses {
		allowed[s] = true
	}
	count := 0
	for _, rec := range f.attendance {
		if rec.StudentID != studentID || !allowed[rec.AttendanceStatus] {
			continue
		}
		schedule := f.scheduleByID(rec.ScheduleID)
		if schedule.AcademyID == academyID && !calendar.Before(schedule.ClassDate, from) && !calendar.After(schedule.ClassDate, to) {
			count++
		}
	}
	return count, nil
}

type fakeInvoiceRepo struct{ *memStore }

func (f fakeInvoiceRepo) Create(ctx context.Context, exec sqlx.ExtContext, invoice *models.TuitionInvoice) error {
	for _, existing := range f.invoices {
		if existing.StudentID == invoice.StudentID && existing.YearMonth == invoice.YearMonth && existing.InvoiceType == models.InvoiceTypeMonthly {
			return repository.ErrDuplicateInvoice
		}
	}
	if invoice.ID == "" {
		invoice.ID = f.nextID("inv")
	}
	f.invoices[invoice.ID] = *invoice
	return nil
}

func (f fakeInvoiceRepo) FindMonthly(ctx context.Context, exec sqlx.ExtContext, studentID, yearMonth string) (*models.TuitionInvoice, error) {
	for _, inv := range f.invoices {
		if inv.StudentID == studentID && inv.YearMonth == yearMonth && inv.InvoiceType == models.InvoiceTypeMonthly {
			return &inv, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f fakeInvoiceRepo) LockByID(ctx context.Context, exec sqlx.ExtContext, academyID, id string) (*models.TuitionInvoice, error) {
	inv, ok := f.invoices[id]
	if !ok || inv.AcademyID != academyID {
		return nil, sql.ErrNoRows
	}
	return &inv, nil
}

func (f fakeInvoiceRepo) UpdateAmounts(ctx context.Context, exec sqlx.ExtContext, invoice *models.TuitionInvoice) error {
	f.invoices[invoice.ID] = *invoice
	return nil
}

func (f fakeInvoiceRepo) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	delete(f.invoices, id)
	return nil
}

func (f fakeInvoiceRepo) DeleteUnpaidByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]string, error) {
	var ids []string
	for id, inv := range f.invoices {
		if inv.StudentID == studentID && inv.PaymentStatus != models.PaymentStatusPaid {
			ids = append(ids, id)
			delete(f.invoices, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type fakeCreditRepo struct{ *memStore }

func (f fakeCreditRepo) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.CreditLedgerEntry) error {
	if entry.ID == "" {
		entry.ID = f.nextID("credit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Date(2026, 1, 1, 0, 0, f.seq, 0, time.UTC)
	}
	f.credits[entry.ID] = *entry
	return nil
}

func (f fakeCreditRepo) LockByID(ctx context.Context, exec sqlx.ExtContext, academyID, id string) (*models.CreditLedgerEntry, error) {
	entry, ok := f.credits[id]
	if !ok || entry.AcademyID != academyID {
		return nil, sql.ErrNoRows
	}
	return &entry, nil
}

func (f fakeCreditRepo) Update(ctx context.Context, exec sqlx.ExtContext, entry *models.CreditLedgerEntry) error {
	f.credits[entry.ID] = *entry
	return nil
}

func (f fakeCreditRepo) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	delete(f.credits, id)
	return nil
}

func (f fakeCreditRepo) ListOpenByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.CreditLedgerEntry, error) {
	var out []models.CreditLedgerEntry
	for _, c := range f.credits {
		if c.StudentID == studentID && c.Status != models.CreditStatusApplied {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f fakeCreditRepo) ListByStudent(ctx context.Context, academyID, studentID string) ([]models.CreditLedgerEntry, error) {
	var out []models.CreditLedgerEntry
	for _, c := range f.credits {
		if c.AcademyID == academyID && c.StudentID == studentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type fakeSeasonRepo struct{ *memStore }

func (f fakeSeasonRepo) CancelOpenByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string, at time.Time) (int64, error) {
	if f.cancelSeasonsErr != nil {
		return 0, f.cancelSeasonsErr
	}
	var n int64
	for id, s := range f.seasons {
		if s.StudentID != studentID {
			continue
		}
		if s.Status == models.SeasonEnrollmentRegistered || s.Status == models.SeasonEnrollmentActive {
			s.Status = models.SeasonEnrollmentCancelled
			cancelled := at
			s.CancelledAt = &cancelled
			f.seasons[id] = s
			n++
		}
	}
	return n, nil
}

type fakeSettings struct {
	settings *models.AcademySettings
	err      error
}

func (f fakeSettings) Get(ctx context.Context, academyID string) (*models.AcademySettings, error) {
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.settings
	copied.AcademyID = academyID
	return &copied, nil
}

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func expectCommittedTx(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

func expectRolledBackTx(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectRollback()
}
