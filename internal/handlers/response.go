package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lessonforge/lessonforge-backend/internal/pipeline"
	"github.com/lessonforge/lessonforge-backend/internal/services"
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

// respondPipelineError maps pipeline failures to HTTP: missing records to
// 404, held leases to 409, everything else to 500 tagged with the stage kind.
func respondPipelineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, pipeline.ErrAlreadyProcessing):
		RespondError(c, http.StatusConflict, "already_processing", err)
	case errors.Is(err, pipeline.ErrNotEnoughMembers):
		RespondError(c, http.StatusBadRequest, "not_enough_members", err)
	default:
		code := pipeline.ErrKind(err)
		if code == "" {
			code = "internal"
		}
		RespondError(c, http.StatusInternalServerError, code, err)
	}
}
