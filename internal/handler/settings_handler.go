package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-api/internal/dto"
	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/internal/service"
	"github.com/noah-isme/academy-api/pkg/response"
)

type settingsService interface {
	Get(ctx context.Context, academyID string) (*models.AcademySettings, error)
	Update(ctx context.Context, academyID string, req service.UpdateSettingsRequest) (*models.AcademySettings, error)
}

// SettingsHandler exposes the caller's academy settings.
type SettingsHandler struct {
	service settingsService
}

// NewSettingsHandler builds a new handler.
func NewSettingsHandler(service settingsService) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// Get godoc
// @Summary Get academy settings
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	settings, err := h.service.Get(c.Request.Context(), academyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

// Update godoc
// @Summary Update academy settings
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body dto.UpdateSettingsRequest true "Settings payload"
// @Success 200 {object} response.Envelope
// @Router /settings [put]
func (h *SettingsHandler) Update(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var payload dto.UpdateSettingsRequest
	if !bindJSON(c, &payload, "invalid settings payload") {
		return
	}
	settings, err := h.service.Update(c.Request.Context(), academyID, service.UpdateSettingsRequest{
		DefaultDueDay:  payload.DefaultDueDay,
		Timezone:       payload.Timezone,
		TrialGraceDays: payload.TrialGraceDays,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}
