package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-api/internal/middleware"
	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/internal/service"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

type creditLedgerMock struct {
	academyID string
	creditID  string
	invoiceID string
	manualReq service.ManualCreditRequest
	updateReq service.UpdateCreditRequest
	deleted   bool
	err       error
}

func (m *creditLedgerMock) ListByStudent(ctx context.Context, academyID, studentID string) ([]models.CreditLedgerEntry, error) {
	m.academyID = academyID
	return []models.CreditLedgerEntry{{ID: "credit-1", StudentID: studentID, RemainingAmount: 30000}}, m.err
}

func (m *creditLedgerMock) CreateManualCredit(ctx context.Context, academyID string, req service.ManualCreditRequest) (*models.CreditLedgerEntry, error) {
	m.academyID, m.manualReq = academyID, req
	if m.err != nil {
		return nil, m.err
	}
	return &models.CreditLedgerEntry{ID: "credit-2", StudentID: req.StudentID}, nil
}

func (m *creditLedgerMock) Apply(ctx context.Context, academyID, creditID, invoiceID string) (*service.ApplyResult, error) {
	m.academyID, m.creditID, m.invoiceID = academyID, creditID, invoiceID
	if m.err != nil {
		return nil, m.err
	}
	return &service.ApplyResult{AppliedAmount: 80000}, nil
}

func (m *creditLedgerMock) Update(ctx context.Context, academyID, creditID string, req service.UpdateCreditRequest) (*models.CreditLedgerEntry, error) {
	m.academyID, m.creditID, m.updateReq = academyID, creditID, req
	if m.err != nil {
		return nil, m.err
	}
	return &models.CreditLedgerEntry{ID: creditID}, nil
}

func (m *creditLedgerMock) Delete(ctx context.Context, academyID, creditID string) error {
	m.academyID, m.creditID = academyID, creditID
	m.deleted = m.err == nil
	return m.err
}

func newCreditRouter(ledger creditLedger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewCreditHandler(ledger)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, ownerClaims)
		c.Next()
	})
	router.GET("/students/:id/credits", h.ListByStudent)
	router.POST("/credits/manual", h.CreateManual)
	router.POST("/credits/:id/apply", h.Apply)
	router.PATCH("/credits/:id", h.Update)
	router.DELETE("/credits/:id", h.Delete)
	return router
}

func TestCreditHandlerListByStudent(t *testing.T) {
	ledger := &creditLedgerMock{}
	rec := doJSON(newCreditRouter(ledger), http.MethodGet, "/students/student-1/credits", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "academy-1", ledger.academyID)
	assert.Contains(t, rec.Body.String(), `"remaining_amount":30000`)
}

func TestCreditHandlerCreateManualByRange(t *testing.T) {
	ledger := &creditLedgerMock{}
	rec := doJSON(newCreditRouter(ledger), http.MethodPost, "/credits/manual",
		`{"student_id": "student-1", "from": "2026-06-01", "to": "2026-06-07", "credit_type": "excused", "reason": "flu"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "student-1", ledger.manualReq.StudentID)
	assert.Nil(t, ledger.manualReq.ClassCount)
	require.NotNil(t, ledger.manualReq.From)
	require.NotNil(t, ledger.manualReq.To)
	assert.Equal(t, time.Date(2026, 6, 7, 0, 0, 0, 0, time.UTC), *ledger.manualReq.To)
	assert.Equal(t, models.CreditTypeExcused, ledger.manualReq.CreditType)
}

func TestCreditHandlerCreateManualRejectsBadDate(t *testing.T) {
	ledger := &creditLedgerMock{}
	rec := doJSON(newCreditRouter(ledger), http.MethodPost, "/credits/manual", `{"student_id": "student-1", "from": "June 1st"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ledger.academyID)
}

func TestCreditHandlerApply(t *testing.T) {
	ledger := &creditLedgerMock{}
	rec := doJSON(newCreditRouter(ledger), http.MethodPost, "/credits/credit-1/apply", `{"invoice_id": "inv-1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "credit-1", ledger.creditID)
	assert.Equal(t, "inv-1", ledger.invoiceID)
	assert.Contains(t, rec.Body.String(), `"applied_amount":80000`)

	rec = doJSON(newCreditRouter(&creditLedgerMock{}), http.MethodPost, "/credits/credit-1/apply", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(newCreditRouter(&creditLedgerMock{err: appErrors.ErrInvoiceAlreadyPaid}), http.MethodPost, "/credits/credit-1/apply", `{"invoice_id": "inv-1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVOICE_ALREADY_PAID")
}

func TestCreditHandlerUpdate(t *testing.T) {
	ledger := &creditLedgerMock{}
	rec := doJSON(newCreditRouter(ledger), http.MethodPatch, "/credits/credit-1", `{"credit_amount": 45000, "status": "partial"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ledger.updateReq.CreditAmount)
	assert.Equal(t, int64(45000), *ledger.updateReq.CreditAmount)
	require.NotNil(t, ledger.updateReq.Status)
	assert.Equal(t, models.CreditStatusPartial, *ledger.updateReq.Status)
	assert.Nil(t, ledger.updateReq.Reason)
}

func TestCreditHandlerDelete(t *testing.T) {
	ledger := &creditLedgerMock{}
	rec := doJSON(newCreditRouter(ledger), http.MethodDelete, "/credits/credit-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, ledger.deleted)

	rec = doJSON(newCreditRouter(&creditLedgerMock{err: appErrors.Clone(appErrors.ErrAlreadyApplied, "credit fully applied")}), http.MethodDelete, "/credits/credit-1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
