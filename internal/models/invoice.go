package models

import "time"

// PaymentStatus is the settlement state of an invoice.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// InvoiceType distinguishes recurring tuition from season fees.
type InvoiceType string

const (
	InvoiceTypeMonthly InvoiceType = "monthly"
	InvoiceTypeSeason  InvoiceType = "season"
)

// TuitionInvoice is a monthly tuition charge.
type TuitionInvoice struct {
	ID              string        `db:"id" json:"id"`
	AcademyID       string        `db:"academy_id" json:"academy_id"`
	StudentID       string        `db:"student_id" json:"student_id"`
	YearMonth       string        `db:"year_month" json:"year_month"`
	InvoiceType     InvoiceType   `db:"invoice_type" json:"invoice_type"`
	BaseAmount      int64         `db:"base_amount" json:"base_amount"`
	DiscountAmount  int64         `db:"discount_amount" json:"discount_amount"`
	CarryoverAmount int64         `db:"carryover_amount" json:"carryover_amount"`
	FinalAmount     int64         `db:"final_amount" json:"final_amount"`
	PaidAmount      int64         `db:"paid_amount" json:"paid_amount"`
	DueDate         time.Time     `db:"due_date" json:"due_date"`
	PaymentStatus   PaymentStatus `db:"payment_status" json:"payment_status"`
	IsProrated      bool          `db:"is_prorated" json:"is_prorated"`
	Notes           *string       `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// Recalculate derives FinalAmount from its parts, never going below zero.
func (i *TuitionInvoice) Recalculate() {
	final := i.BaseAmount - i.DiscountAmount - i.CarryoverAmount
	if final < 0 {
		final = 0
	}
	i.FinalAmount = final
}
