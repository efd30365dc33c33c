package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academy-api/internal/models"
)

// SettingsRepository reads per-academy settings.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// FindByAcademy returns the academy's settings row.
func (r *SettingsRepository) FindByAcademy(ctx context.Context, academyID string) (*models.AcademySettings, error) {
	const query = `SELECT academy_id, default_due_day, timezone, trial_grace_days FROM academy_settings WHERE academy_id = $1`
	var settings models.AcademySettings
	if err := r.db.GetContext(ctx, &settings, query, academyID); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Upsert creates or replaces the academy's settings row.
func (r *SettingsRepository) Upsert(ctx context.Context, settings *models.AcademySettings) error {
	const query = `INSERT INTO academy_settings (academy_id, default_due_day, timezone, trial_grace_days)
VALUES (:academy_id, :default_due_day, :timezone, :trial_grace_days)
ON CONFLICT (academy_id) DO UPDATE SET default_due_day = EXCLUDED.default_due_day,
timezone = EXCLUDED.timezone, trial_grace_days = EXCLUDED.trial_grace_days`
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("upsert academy settings: %w", err)
	}
	return nil
}
