package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/pkg/config"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

const settingsCacheKind = "settings"

type settingsRepository interface {
	FindByAcademy(ctx context.Context, academyID string) (*models.AcademySettings, error)
	Upsert(ctx context.Context, settings *models.AcademySettings) error
}

type settingsProvider interface {
	Get(ctx context.Context, academyID string) (*models.AcademySettings, error)
}

// UpdateSettingsRequest changes an academy's lifecycle defaults.
type UpdateSettingsRequest struct {
	DefaultDueDay  *int    `json:"default_due_day" validate:"omitempty,min=1,max=31"`
	Timezone       *string `json:"timezone" validate:"omitempty,max=64"`
	TrialGraceDays *int    `json:"trial_grace_days" validate:"omitempty,min=0,max=60"`
}

// SettingsService resolves academy settings, filling gaps from process config.
type SettingsService struct {
	repo      settingsRepository
	cache     *CacheService
	defaults  config.LifecycleConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSettingsService constructs SettingsService.
func NewSettingsService(repo settingsRepository, cache *CacheService, defaults config.LifecycleConfig, validate *validator.Validate, logger *zap.Logger) *SettingsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{repo: repo, cache: cache, defaults: defaults, validator: validate, logger: logger}
}

// Get returns the academy's settings. Academies without a row get the configured defaults.
func (s *SettingsService) Get(ctx context.Context, academyID string) (*models.AcademySettings, error) {
	var cached models.AcademySettings
	if hit, _ := s.cache.Get(ctx, academyID, settingsCacheKind, &cached); hit {
		return &cached, nil
	}

	settings, err := s.repo.FindByAcademy(ctx, academyID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to load academy settings")
		}
		settings = &models.AcademySettings{
			AcademyID:      academyID,
			DefaultDueDay:  s.defaults.DefaultDueDay,
			Timezone:       s.defaults.Timezone,
			TrialGraceDays: s.defaults.TrialGraceDays,
		}
	}
	s.applyDefaults(settings)

	_ = s.cache.Set(ctx, academyID, settingsCacheKind, settings, s.defaults.SettingsCacheTTL)
	return settings, nil
}

// Update stores new defaults for the academy and drops the cached copy.
func (s *SettingsService) Update(ctx context.Context, academyID string, req UpdateSettingsRequest) (*models.AcademySettings, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown timezone")
		}
	}

	settings, err := s.Get(ctx, academyID)
	if err != nil {
		return nil, err
	}
	if req.DefaultDueDay != nil {
		settings.DefaultDueDay = *req.DefaultDueDay
	}
	if req.Timezone != nil {
		settings.Timezone = *req.Timezone
	}
	if req.TrialGraceDays != nil {
		settings.TrialGraceDays = *req.TrialGraceDays
	}
	if err := s.repo.Upsert(ctx, settings); err != nil {
		return nil, appErrors.Internal(err, "failed to save academy settings")
	}
	if err := s.cache.Invalidate(ctx, academyID, settingsCacheKind); err != nil {
		s.logger.Warn("settings cache not invalidated", zap.String("academy_id", academyID), zap.Error(err))
	}
	return settings, nil
}

func (s *SettingsService) applyDefaults(settings *models.AcademySettings) {
	if settings.DefaultDueDay <= 0 {
		settings.DefaultDueDay = s.defaults.DefaultDueDay
	}
	if settings.Timezone == "" {
		settings.Timezone = s.defaults.Timezone
	}
	if settings.TrialGraceDays < 0 {
		settings.TrialGraceDays = s.defaults.TrialGraceDays
	}
}
