package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondKindError maps an error's kind onto an HTTP status so handlers do
// not repeat the table.
func RespondKindError(c *gin.Context, err error) {
	kind := errkind.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case errkind.Validation:
		status = http.StatusBadRequest
	case errkind.Conflict:
		status = http.StatusConflict
	case errkind.Unsupported:
		status = http.StatusUnsupportedMediaType
	case errkind.Corrupt, errkind.Malformed, errkind.PlanningIncomplete:
		status = http.StatusUnprocessableEntity
	case errkind.RateLimit:
		status = http.StatusTooManyRequests
	case errkind.Unavailable, errkind.Network:
		status = http.StatusServiceUnavailable
	}
	RespondError(c, status, string(kind), err)
}
