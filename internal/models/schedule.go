package models

import "time"

// ClassSchedule is one class occurrence shared by every student on that date and slot.
type ClassSchedule struct {
	ID        string    `db:"id" json:"id"`
	AcademyID string    `db:"academy_id" json:"academy_id"`
	ClassDate time.Time `db:"class_date" json:"class_date"`
	TimeSlot  TimeSlot  `db:"time_slot" json:"time_slot"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
