package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-api/internal/models"
)

const creditColumns = `id, academy_id, student_id, source_payment_id, rest_start_date, rest_end_date, rest_days, credit_amount,
remaining_amount, credit_type, status, applied_to_payment_id, reason, created_at, updated_at`

// CreditRepository persists credit ledger entries.
type CreditRepository struct {
	db *sqlx.DB
}

// NewCreditRepository constructs the repository.
func NewCreditRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a ledger entry.
func (r *CreditRepository) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.CreditLedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	const query = `INSERT INTO credit_ledger_entries (id, academy_id, student_id, source_payment_id, rest_start_date, rest_end_date,
rest_days, credit_amount, remaining_amount, credit_type, status, applied_to_payment_id, reason, created_at, updated_at)
VALUES (:id, :academy_id, :student_id, :source_payment_id, :rest_start_date, :rest_end_date,
:rest_days, :credit_amount, :remaining_amount, :credit_type, :status, :applied_to_payment_id, :reason, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("create credit entry: %w", err)
	}
	return nil
}

// LockByID loads an entry owned by the academy and locks it.
func (r *CreditRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, academyID, id string) (*models.CreditLedgerEntry, error) {
	query := `SELECT ` + creditColumns + ` FROM credit_ledger_entries WHERE id = $1 AND academy_id = $2 FOR UPDATE`
	var entry models.CreditLedgerEntry
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, id, academyID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Update writes the mutable fields of an entry.
func (r *CreditRepository) Update(ctx context.Context, exec sqlx.ExtContext, entry *models.CreditLedgerEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE credit_ledger_entries SET credit_amount = :credit_amount, remaining_amount = :remaining_amount,
status = :status, applied_to_payment_id = :applied_to_payment_id, reason = :reason, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("update credit entry: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (r *CreditRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM credit_ledger_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete credit entry: %w", err)
	}
	return nil
}

// ListOpenByStudent locks the student's unconsumed entries, oldest first.
func (r *CreditRepository) ListOpenByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.CreditLedgerEntry, error) {
	query := `SELECT ` + creditColumns + ` FROM credit_ledger_entries WHERE student_id = $1 AND status IN ($2, $3)
ORDER BY created_at ASC, id ASC FOR UPDATE`
	var entries []models.CreditLedgerEntry
	if err := sqlx.SelectContext(ctx, r.exec(exec), &entries, query, studentID, models.CreditStatusPending, models.CreditStatusPartial); err != nil {
		return nil, fmt.Errorf("list open credits: %w", err)
	}
	return entries, nil
}

// ListByStudent returns all entries for a student in the academy, newest first.
func (r *CreditRepository) ListByStudent(ctx context.Context, academyID, studentID string) ([]models.CreditLedgerEntry, error) {
	query := `SELECT ` + creditColumns + ` FROM credit_ledger_entries WHERE academy_id = $1 AND student_id = $2 ORDER BY created_at DESC`
	var entries []models.CreditLedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, academyID, studentID); err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	return entries, nil
}
