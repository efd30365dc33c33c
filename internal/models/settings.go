package models

import "time"

// AcademySettings holds per-academy billing and calendar defaults.
type AcademySettings struct {
	AcademyID      string `db:"academy_id" json:"academy_id"`
	DefaultDueDay  int    `db:"default_due_day" json:"default_due_day"`
	Timezone       string `db:"timezone" json:"timezone"`
	TrialGraceDays int    `db:"trial_grace_days" json:"trial_grace_days"`
}

// Location resolves the academy time zone, falling back to UTC when unknown.
func (s *AcademySettings) Location() *time.Location {
	if s == nil || s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
