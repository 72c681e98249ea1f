package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"portwatch/export"
	"portwatch/jobs"
	"portwatch/scanner"
)

var (
	errHistoryDisabled = errors.New("export history requires redis")
	errForbidden       = errors.New("permission denied")
	errArtifactMissing = errors.New("export file not found")
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scanner.ErrInvalidPortSpec),
		errors.Is(err, jobs.ErrEmptyTarget),
		errors.Is(err, export.ErrInvalidFilename),
		errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrJobNotFound),
		errors.Is(err, export.ErrRecordNotFound),
		errors.Is(err, errArtifactMissing):
		return http.StatusNotFound
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, jobs.ErrJobNotTerminal):
		return http.StatusConflict
	case errors.Is(err, export.ErrNoResults):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errHistoryDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the error body. Internal errors are logged and
// replaced by a generic message.
func (s *Server) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		msg = "internal server error"
		if errors.Is(err, export.ErrExportIO) {
			msg = export.ErrExportIO.Error()
		}
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
