package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/academy-api/internal/models"
)

// ErrDuplicateInvoice is returned when a monthly invoice already exists for the month.
var ErrDuplicateInvoice = errors.New("monthly invoice already exists")

const invoiceColumns = `id, academy_id, student_id, year_month, invoice_type, base_amount, discount_amount, carryover_amount,
final_amount, paid_amount, due_date, payment_status, is_prorated, notes, created_at, updated_at`

// InvoiceRepository persists tuition invoices.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository constructs the repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts an invoice.
func (r *InvoiceRepository) Create(ctx context.Context, exec sqlx.ExtContext, invoice *models.TuitionInvoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	if invoice.InvoiceType == "" {
		invoice.InvoiceType = models.InvoiceTypeMonthly
	}
	if invoice.PaymentStatus == "" {
		invoice.PaymentStatus = models.PaymentStatusPending
	}
	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = now

	const query = `INSERT INTO tuition_invoices (id, academy_id, student_id, year_month, invoice_type, base_amount, discount_amount,
carryover_amount, final_amount, paid_amount, due_date, payment_status, is_prorated, notes, created_at, updated_at)
VALUES (:id, :academy_id, :student_id, :year_month, :invoice_type, :base_amount, :discount_amount,
:carryover_amount, :final_amount, :paid_amount, :due_date, :payment_status, :is_prorated, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, invoice); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateInvoice
		}
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// FindMonthly returns the student's monthly invoice for yearMonth.
func (r *InvoiceRepository) FindMonthly(ctx context.Context, exec sqlx.ExtContext, studentID, yearMonth string) (*models.TuitionInvoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM tuition_invoices WHERE student_id = $1 AND year_month = $2 AND invoice_type = $3 FOR UPDATE`
	var invoice models.TuitionInvoice
	if err := sqlx.GetContext(ctx, r.exec(exec), &invoice, query, studentID, yearMonth, models.InvoiceTypeMonthly); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// LockByID loads an invoice owned by the academy and locks it.
func (r *InvoiceRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, academyID, id string) (*models.TuitionInvoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM tuition_invoices WHERE id = $1 AND academy_id = $2 FOR UPDATE`
	var invoice models.TuitionInvoice
	if err := sqlx.GetContext(ctx, r.exec(exec), &invoice, query, id, academyID); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// UpdateAmounts writes the monetary fields of an invoice.
func (r *InvoiceRepository) UpdateAmounts(ctx context.Context, exec sqlx.ExtContext, invoice *models.TuitionInvoice) error {
	invoice.UpdatedAt = time.Now().UTC()
	const query = `UPDATE tuition_invoices SET base_amount = :base_amount, discount_amount = :discount_amount,
carryover_amount = :carryover_amount, final_amount = :final_amount, payment_status = :payment_status,
is_prorated = :is_prorated, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, invoice); err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return nil
}

// Delete removes an invoice.
func (r *InvoiceRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM tuition_invoices WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	return nil
}

// DeleteUnpaidByStudent removes every invoice of the student that is not fully paid.
func (r *InvoiceRepository) DeleteUnpaidByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]string, error) {
	const query = `DELETE FROM tuition_invoices WHERE student_id = $1 AND payment_status <> $2 RETURNING id`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, studentID, models.PaymentStatusPaid); err != nil {
		return nil, fmt.Errorf("delete unpaid invoices: %w", err)
	}
	return ids, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
