package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-api/internal/dto"
	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/internal/service"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
	"github.com/noah-isme/academy-api/pkg/response"
)

type creditLedger interface {
	ListByStudent(ctx context.Context, academyID, studentID string) ([]models.CreditLedgerEntry, error)
	CreateManualCredit(ctx context.Context, academyID string, req service.ManualCreditRequest) (*models.CreditLedgerEntry, error)
	Apply(ctx context.Context, academyID, creditID, invoiceID string) (*service.ApplyResult, error)
	Update(ctx context.Context, academyID, creditID string, req service.UpdateCreditRequest) (*models.CreditLedgerEntry, error)
	Delete(ctx context.Context, academyID, creditID string) error
}

// CreditHandler exposes the credit ledger.
type CreditHandler struct {
	ledger creditLedger
}

// NewCreditHandler builds a new handler.
func NewCreditHandler(ledger creditLedger) *CreditHandler {
	return &CreditHandler{ledger: ledger}
}

// ListByStudent godoc
// @Summary List a student's credits
// @Tags Credits
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/credits [get]
func (h *CreditHandler) ListByStudent(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	entries, err := h.ledger.ListByStudent(c.Request.Context(), academyID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// CreateManual godoc
// @Summary Grant a manual credit
// @Tags Credits
// @Accept json
// @Produce json
// @Param payload body dto.ManualCreditRequest true "Credit payload"
// @Success 201 {object} response.Envelope
// @Router /credits/manual [post]
func (h *CreditHandler) CreateManual(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var payload dto.ManualCreditRequest
	if !bindJSON(c, &payload, "invalid credit payload") {
		return
	}
	from, err := dto.ParseDate("from", payload.From)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	to, err := dto.ParseDate("to", payload.To)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	entry, err := h.ledger.CreateManualCredit(c.Request.Context(), academyID, service.ManualCreditRequest{
		StudentID:  payload.StudentID,
		ClassCount: payload.ClassCount,
		From:       from,
		To:         to,
		CreditType: models.CreditType(payload.CreditType),
		Reason:     payload.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Apply godoc
// @Summary Apply a credit to an invoice
// @Tags Credits
// @Accept json
// @Produce json
// @Param id path string true "Credit ID"
// @Param payload body dto.ApplyCreditRequest true "Target invoice"
// @Success 200 {object} response.Envelope
// @Router /credits/{id}/apply [post]
func (h *CreditHandler) Apply(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var payload dto.ApplyCreditRequest
	if !bindJSON(c, &payload, "invalid apply payload") {
		return
	}
	if payload.InvoiceID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invoice_id is required"))
		return
	}
	result, err := h.ledger.Apply(c.Request.Context(), academyID, c.Param("id"), payload.InvoiceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Update godoc
// @Summary Edit an unconsumed credit
// @Tags Credits
// @Accept json
// @Produce json
// @Param id path string true "Credit ID"
// @Param payload body dto.UpdateCreditRequest true "Credit changes"
// @Success 200 {object} response.Envelope
// @Router /credits/{id} [patch]
func (h *CreditHandler) Update(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	var payload dto.UpdateCreditRequest
	if !bindJSON(c, &payload, "invalid credit payload") {
		return
	}
	req := service.UpdateCreditRequest{CreditAmount: payload.CreditAmount, Reason: payload.Reason}
	if payload.Status != nil {
		status := models.CreditStatus(*payload.Status)
		req.Status = &status
	}
	entry, err := h.ledger.Update(c.Request.Context(), academyID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Delete godoc
// @Summary Delete a credit that is not fully applied
// @Tags Credits
// @Param id path string true "Credit ID"
// @Success 204
// @Router /credits/{id} [delete]
func (h *CreditHandler) Delete(c *gin.Context) {
	academyID, ok := academyFromContext(c)
	if !ok {
		return
	}
	if err := h.ledger.Delete(c.Request.Context(), academyID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
