package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-api/internal/dto"
	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/internal/service"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
	"github.com/noah-isme/academy-api/pkg/response"
)

type lifecycleService interface {
	Enroll(ctx context.Context, academyID string, req service.EnrollRequest) (*service.TransitionResult, error)
	ChangeStatus(ctx context.Context, academyID, studentID string, req service.ChangeStatusRequest) (*service.TransitionResult, error)
	ChangeSchedule(ctx context.Context, academyID, studentID string, req service.ChangeScheduleRequest) (*service.TransitionResult, error)
	ExpireTrials(ctx context.Context, academyID string) (*service.ExpireTrialsResult, error)
}

// LifecycleHandler exposes student lifecycle endpoints.
type LifecycleHandler struct {
	service lifecycleService
}

// NewLifecycleHandler builds a new handler.
func NewLifecycleHandler(service lifecycleService) *LifecycleHandler {
	return &LifecycleHandler{service: service}
}

// Enroll godoc
// @Summary Enroll a student as active or trial
// @Tags Lifecycle
// @Accept json
// @Produce json
// @Param payload body dto.EnrollStudentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /students [post]
func (h *LifecycleHandler) Enroll(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var payload dto.EnrollStudentRequest
	if !bindJSON(c, &payload, "invalid enrollment payload") {
		return
	}
	req, err := toEnrollRequest(payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Enroll(c.Request.Context(), academyID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ChangeStatus godoc
// @Summary Move a student to another lifecycle status
// @Tags Lifecycle
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.ChangeStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/status [patch]
func (h *LifecycleHandler) ChangeStatus(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var payload dto.ChangeStatusRequest
	if !bindJSON(c, &payload, "invalid status payload") {
		return
	}
	req, err := toChangeStatusRequest(payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.ChangeStatus(c.Request.Context(), academyID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ChangeSchedule godoc
// @Summary Change a student's class days or time slot
// @Tags Lifecycle
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.ChangeScheduleRequest true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/schedule [patch]
func (h *LifecycleHandler) ChangeSchedule(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var payload dto.ChangeScheduleRequest
	if !bindJSON(c, &payload, "invalid schedule payload") {
		return
	}
	req := service.ChangeScheduleRequest{ClassDays: payload.ClassDays, WeeklyCount: payload.WeeklyCount}
	if payload.TimeSlot != nil {
		slot := models.TimeSlot(*payload.TimeSlot)
		req.TimeSlot = &slot
	}
	result, err := h.service.ChangeSchedule(c.Request.Context(), academyID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ExpireTrials godoc
// @Summary Move lapsed trial students to pending
// @Tags Lifecycle
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /lifecycle/trials/expire [post]
func (h *LifecycleHandler) ExpireTrials(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	result, err := h.service.ExpireTrials(c.Request.Context(), academyID)
	if err != nil {
		if result != nil && len(result.Expired) > 0 {
			response.Partial(c, result, err)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func toEnrollRequest(payload dto.EnrollStudentRequest) (service.EnrollRequest, error) {
	enrollmentDate, err := dto.ParseDate("enrollment_date", payload.EnrollmentDate)
	if err != nil {
		return service.EnrollRequest{}, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	trialDates, err := dto.ParseTrialDates(payload.TrialDates)
	if err != nil {
		return service.EnrollRequest{}, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	return service.EnrollRequest{
		Name:           payload.Name,
		Status:         models.StudentStatus(payload.Status),
		EnrollmentDate: enrollmentDate,
		ClassDays:      payload.ClassDays,
		TimeSlot:       models.TimeSlot(payload.TimeSlot),
		WeeklyCount:    payload.WeeklyCount,
		MonthlyTuition: payload.MonthlyTuition,
		DiscountRate:   payload.DiscountRate,
		DueDay:         payload.DueDay,
		TrialDates:     trialDates,
	}, nil
}

func toChangeStatusRequest(payload dto.ChangeStatusRequest) (service.ChangeStatusRequest, error) {
	req := service.ChangeStatusRequest{Status: models.StudentStatus(payload.Status), RestReason: payload.RestReason}
	fields := []struct {
		name string
		raw  string
		dest **time.Time
	}{
		{name: "effective_date", raw: payload.EffectiveDate, dest: &req.EffectiveDate},
		{name: "rest_start_date", raw: payload.RestStartDate, dest: &req.RestStartDate},
		{name: "rest_end_date", raw: payload.RestEndDate, dest: &req.RestEndDate},
	}
	for _, f := range fields {
		parsed, err := dto.ParseDate(f.name, f.raw)
		if err != nil {
			return service.ChangeStatusRequest{}, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		*f.dest = parsed
	}
	return req, nil
}
