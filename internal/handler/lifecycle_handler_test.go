package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/noah-isme/academy-api/internal/middleware"
	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/internal/service"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

type lifecycleServiceMock struct {
	academyID   string
	studentID   string
	enrollReq   service.EnrollRequest
	statusReq   service.ChangeStatusRequest
	scheduleReq service.ChangeScheduleRequest
	expireResp  *service.ExpireTrialsResult
	err         error
}

func (m *lifecycleServiceMock) Enroll(ctx context.Context, academyID string, req service.EnrollRequest) (*service.TransitionResult, error) {
	m.academyID, m.enrollReq = academyID, req
	if m.err != nil {
		return nil, m.err
	}
	return &service.TransitionResult{Student: &models.Student{ID: "student-1", Status: req.Status}, To: req.Status}, nil
}

func (m *lifecycleServiceMock) ChangeStatus(ctx context.Context, academyID, studentID string, req service.ChangeStatusRequest) (*service.TransitionResult, error) {
	m.academyID, m.studentID, m.statusReq = academyID, studentID, req
	if m.err != nil {
		return nil, m.err
	}
	return &service.TransitionResult{From: models.StudentStatusActive, To: req.Status}, nil
}

func (m *lifecycleServiceMock) ChangeSchedule(ctx context.Context, academyID, studentID string, req service.ChangeScheduleRequest) (*service.TransitionResult, error) {
	m.academyID, m.studentID, m.scheduleReq = academyID, studentID, req
	if m.err != nil {
		return nil, m.err
	}
	return &service.TransitionResult{}, nil
}

func (m *lifecycleServiceMock) ExpireTrials(ctx context.Context, academyID string) (*service.ExpireTrialsResult, error) {
	m.academyID = academyID
	return m.expireResp, m.err
}

func newLifecycleRouter(svc lifecycleService, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewLifecycleHandler(svc)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ContextUserKey, claims)
		}
		c.Next()
	})
	router.POST("/students", h.Enroll)
	router.PATCH("/students/:id/status", h.ChangeStatus)
	router.PATCH("/students/:id/schedule", h.ChangeSchedule)
	router.POST("/lifecycle/trials/expire", h.ExpireTrials)
	return router
}

var ownerClaims = &models.JWTClaims{UserID: "user-1", AcademyID: "academy-1", Role: models.RoleOwner}

func doJSON(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

func TestLifecycleHandlerEnroll(t *testing.T) {
	svc := &lifecycleServiceMock{}
	router := newLifecycleRouter(svc, ownerClaims)

	rec := doJSON(router, http.MethodPost, "/students", `{
		"name": "Kim",
		"status": "trial",
		"enrollment_date": "2026-06-15",
		"class_days": ["mon", 3, "금"],
		"time_slot": "evening",
		"monthly_tuition": 150000,
		"trial_dates": [{"date": "2026-06-17"}, {"date": "2026-06-19T10:00:00+09:00", "time_slot": "morning"}]
	}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "academy-1", svc.academyID)
	assert.Equal(t, models.StudentStatusTrial, svc.enrollReq.Status)
	assert.Equal(t, models.NewClassDays(time.Monday, time.Wednesday, time.Friday), svc.enrollReq.ClassDays)
	require.NotNil(t, svc.enrollReq.EnrollmentDate)
	assert.Equal(t, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC), *svc.enrollReq.EnrollmentDate)
	require.Len(t, svc.enrollReq.TrialDates, 2)
	assert.Equal(t, time.Date(2026, 6, 19, 0, 0, 0, 0, time.UTC), svc.enrollReq.TrialDates[1].Date)
	assert.Equal(t, models.TimeSlotMorning, svc.enrollReq.TrialDates[1].TimeSlot)

	var envelope struct {
		Data service.TransitionResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "student-1", envelope.Data.Student.ID)
}

func TestLifecycleHandlerEnrollRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"malformed json":    `{"name":`,
		"bad weekday":       `{"name": "Kim", "status": "active", "class_days": ["someday"], "time_slot": "evening"}`,
		"bad date":          `{"name": "Kim", "status": "active", "enrollment_date": "15/06/2026", "time_slot": "evening"}`,
		"missing trial day": `{"name": "Kim", "status": "trial", "time_slot": "evening", "trial_dates": [{"date": ""}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &lifecycleServiceMock{}
			rec := doJSON(newLifecycleRouter(svc, ownerClaims), http.MethodPost, "/students", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, svc.academyID)
		})
	}
}

func TestLifecycleHandlerRequiresAcademyScope(t *testing.T) {
	svc := &lifecycleServiceMock{}

	rec := doJSON(newLifecycleRouter(svc, nil), http.MethodPost, "/students", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(newLifecycleRouter(svc, &models.JWTClaims{UserID: "user-1", Role: models.RoleOwner}), http.MethodPatch, "/students/s-1/status", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLifecycleHandlerChangeStatus(t *testing.T) {
	svc := &lifecycleServiceMock{}
	router := newLifecycleRouter(svc, ownerClaims)

	rec := doJSON(router, http.MethodPatch, "/students/student-7/status",
		`{"status": "paused", "rest_start_date": "2026-06-17", "rest_end_date": "2026-06-30", "rest_reason": "travel"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "student-7", svc.studentID)
	assert.Equal(t, models.StudentStatusPaused, svc.statusReq.Status)
	require.NotNil(t, svc.statusReq.RestStartDate)
	require.NotNil(t, svc.statusReq.RestEndDate)
	assert.Equal(t, 30, svc.statusReq.RestEndDate.Day())
	assert.Nil(t, svc.statusReq.EffectiveDate)
	assert.Equal(t, "travel", svc.statusReq.RestReason)
}

func TestLifecycleHandlerChangeStatusMapsServiceErrors(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"not found":  {err: appErrors.Clone(appErrors.ErrNotFound, "student not found"), status: http.StatusNotFound},
		"terminal":   {err: appErrors.Clone(appErrors.ErrInvalidTransition, "student is withdrawn"), status: http.StatusConflict},
		"stale":      {err: appErrors.Clone(appErrors.ErrConflict, "student was modified"), status: http.StatusConflict},
		"unexpected": {err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(newLifecycleRouter(&lifecycleServiceMock{err: tc.err}, ownerClaims), http.MethodPatch,
				"/students/student-1/status", `{"status": "active"}`)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestLifecycleHandlerChangeSchedule(t *testing.T) {
	svc := &lifecycleServiceMock{}
	router := newLifecycleRouter(svc, ownerClaims)

	rec := doJSON(router, http.MethodPatch, "/students/student-1/schedule", `{"class_days": ["tue", "thu"], "time_slot": "morning"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.scheduleReq.ClassDays)
	assert.Equal(t, models.NewClassDays(time.Tuesday, time.Thursday), *svc.scheduleReq.ClassDays)
	require.NotNil(t, svc.scheduleReq.TimeSlot)
	assert.Equal(t, models.TimeSlotMorning, *svc.scheduleReq.TimeSlot)
	assert.Nil(t, svc.scheduleReq.WeeklyCount)
}

func TestLifecycleHandlerExpireTrials(t *testing.T) {
	svc := &lifecycleServiceMock{expireResp: &service.ExpireTrialsResult{AcademyID: "academy-1", Expired: []string{"student-a"}}}

	rec := doJSON(newLifecycleRouter(svc, ownerClaims), http.MethodPost, "/lifecycle/trials/expire", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "student-a")
}

func TestLifecycleHandlerExpireTrialsPartialFailure(t *testing.T) {
	svc := &lifecycleServiceMock{
		expireResp: &service.ExpireTrialsResult{AcademyID: "academy-1", Expired: []string{"student-a"}},
		err:        multierr.Append(nil, appErrors.Internal(errors.New("lock timeout"), "failed to save student")),
	}

	rec := doJSON(newLifecycleRouter(svc, ownerClaims), http.MethodPost, "/lifecycle/trials/expire", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "student-a")
	assert.Contains(t, rec.Body.String(), `"failures":["failed to save student: lock timeout"]`)
}
