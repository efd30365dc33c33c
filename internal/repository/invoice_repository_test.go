package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-api/internal/models"
)

func TestInvoiceRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectExec("INSERT INTO tuition_invoices").WillReturnResult(sqlmock.NewResult(1, 1))

	invoice := &models.TuitionInvoice{AcademyID: "academy-1", StudentID: "student-1", YearMonth: "2026-06", BaseAmount: 150000}
	require.NoError(t, repo.Create(context.Background(), nil, invoice))
	assert.NotEmpty(t, invoice.ID)
	assert.Equal(t, models.InvoiceTypeMonthly, invoice.InvoiceType)
	assert.Equal(t, models.PaymentStatusPending, invoice.PaymentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectExec("INSERT INTO tuition_invoices").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectExec("INSERT INTO tuition_invoices").WillReturnError(&pq.Error{Code: "23503"})

	err := repo.Create(context.Background(), nil, &models.TuitionInvoice{StudentID: "student-1", YearMonth: "2026-06"})
	assert.True(t, errors.Is(err, ErrDuplicateInvoice))

	err = repo.Create(context.Background(), nil, &models.TuitionInvoice{StudentID: "student-1", YearMonth: "2026-07"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicateInvoice))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryFindMonthly(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)
	due := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

	columns := []string{"id", "academy_id", "student_id", "year_month", "invoice_type", "base_amount", "discount_amount",
		"carryover_amount", "final_amount", "paid_amount", "due_date", "payment_status", "is_prorated", "notes", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 AND year_month = $2 AND invoice_type = $3 FOR UPDATE")).
		WithArgs("student-1", "2026-06", models.InvoiceTypeMonthly).
		WillReturnRows(sqlmock.NewRows(columns).AddRow("inv-1", "academy-1", "student-1", "2026-06", "monthly",
			int64(150000), int64(15000), int64(0), int64(135000), int64(0), due, "pending", false, nil, due, due))
	mock.ExpectQuery("FROM tuition_invoices").WillReturnError(sql.ErrNoRows)

	invoice, err := repo.FindMonthly(context.Background(), nil, "student-1", "2026-06")
	require.NoError(t, err)
	assert.Equal(t, int64(135000), invoice.FinalAmount)
	assert.Nil(t, invoice.Notes)

	_, err = repo.FindMonthly(context.Background(), nil, "student-1", "2026-07")
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryDeleteUnpaidByStudent(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM tuition_invoices WHERE student_id = $1 AND payment_status <> $2 RETURNING id")).
		WithArgs("student-1", models.PaymentStatusPaid).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("inv-may").AddRow("inv-jun"))

	ids, err := repo.DeleteUnpaidByStudent(context.Background(), nil, "student-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"inv-may", "inv-jun"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepositoryUpdateAndDelete(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectExec("UPDATE tuition_invoices SET base_amount").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tuition_invoices WHERE id = $1")).
		WithArgs("inv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	invoice := &models.TuitionInvoice{ID: "inv-1", BaseAmount: 100000, FinalAmount: 90000}
	require.NoError(t, repo.UpdateAmounts(context.Background(), nil, invoice))
	assert.False(t, invoice.UpdatedAt.IsZero())
	require.NoError(t, repo.Delete(context.Background(), nil, "inv-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
