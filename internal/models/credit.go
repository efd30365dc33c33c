package models

import "time"

// CreditType describes why a credit was granted.
type CreditType string

const (
	CreditTypeCarryover CreditType = "carryover"
	CreditTypeRefund    CreditType = "refund"
	CreditTypeManual    CreditType = "manual"
	CreditTypeExcused   CreditType = "excused"
)

// Valid reports whether the type is known.
func (t CreditType) Valid() bool {
	switch t {
	case CreditTypeCarryover, CreditTypeRefund, CreditTypeManual, CreditTypeExcused:
		return true
	default:
		return false
	}
}

// CreditStatus tracks consumption of a credit.
type CreditStatus string

const (
	CreditStatusPending CreditStatus = "pending"
	CreditStatusPartial CreditStatus = "partial"
	CreditStatusApplied CreditStatus = "applied"
)

// CreditLedgerEntry is a partially consumable credit owed to a student.
// Status is applied exactly when RemainingAmount is zero.
type CreditLedgerEntry struct {
	ID                 string       `db:"id" json:"id"`
	AcademyID          string       `db:"academy_id" json:"academy_id"`
	StudentID          string       `db:"student_id" json:"student_id"`
	SourcePaymentID    *string      `db:"source_payment_id" json:"source_payment_id,omitempty"`
	RestStartDate      *time.Time   `db:"rest_start_date" json:"rest_start_date,omitempty"`
	RestEndDate        *time.Time   `db:"rest_end_date" json:"rest_end_date,omitempty"`
	RestDays           int          `db:"rest_days" json:"rest_days"`
	CreditAmount       int64        `db:"credit_amount" json:"credit_amount"`
	RemainingAmount    int64        `db:"remaining_amount" json:"remaining_amount"`
	CreditType         CreditType   `db:"credit_type" json:"credit_type"`
	Status             CreditStatus `db:"status" json:"status"`
	AppliedToPaymentID *string      `db:"applied_to_payment_id" json:"applied_to_payment_id,omitempty"`
	Reason             *string      `db:"reason" json:"reason,omitempty"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at" json:"updated_at"`
}
