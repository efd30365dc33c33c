package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"

	"github.com/noah-isme/academy-api/internal/models"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
	"github.com/noah-isme/academy-api/pkg/middleware/requestid"
)

// retryAfterSeconds is advertised on version conflicts. A transition that lost
// the race can be replayed once the winner commits.
const retryAfterSeconds = "1"

// Envelope represents the common response contract.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr, Meta: errorMeta(c, appErr)})
}

// Partial reports work that committed alongside the failures that stopped the
// rest of it. Each aggregated failure is listed separately.
func Partial(c *gin.Context, data interface{}, err error) {
	appErr := appErrors.FromError(err)
	meta := errorMeta(c, appErr)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	failures := make([]string, 0)
	for _, e := range multierr.Errors(err) {
		failures = append(failures, e.Error())
	}
	meta["failures"] = failures
	noStore(c)
	c.JSON(appErr.Status, Envelope{Data: data, Error: appErr, Meta: meta})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func errorMeta(c *gin.Context, appErr *appErrors.Error) map[string]interface{} {
	meta := map[string]interface{}{}
	if reqID := requestid.Value(c); reqID != "" {
		meta["request_id"] = reqID
	}
	if appErr.Is(appErrors.ErrConflict) {
		c.Header("Retry-After", retryAfterSeconds)
		meta["retryable"] = true
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
