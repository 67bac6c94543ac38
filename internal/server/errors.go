package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/maauso/pixelframe-api/internal/export"
	"github.com/maauso/pixelframe-api/internal/job"
	"github.com/maauso/pixelframe-api/internal/session"
)

// errorMapping maps a domain error onto an HTTP status and error code.
type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{session.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found"},
	{session.ErrNotReady, http.StatusNotFound, "NOT_READY", "no frame has been rendered yet"},
	{session.ErrNoClip, http.StatusConflict, "NOT_READY", "no clip is loaded"},
	{session.ErrClosed, http.StatusConflict, "NOT_READY", "session is closed"},
	{session.ErrInvalidClip, http.StatusUnprocessableEntity, "INVALID_VIDEO", "upload is not a readable video"},
	{export.ErrUnsupportedFormat, http.StatusBadRequest, "UNSUPPORTED_FORMAT", ""},
	{export.ErrExportFailed, http.StatusInternalServerError, "EXPORT_FAILED", ""},
	{job.ErrJobNotFound, http.StatusNotFound, "JOB_NOT_FOUND", "job not found"},
	{job.ErrJobNotReady, http.StatusConflict, "JOB_NOT_READY", "job has not completed"},
	{job.ErrExportInProgress, http.StatusConflict, "EXPORT_IN_PROGRESS", ""},
}

// writeServiceError maps err onto the standard error response. Unknown
// errors are logged and answered with a generic 500.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, attrs ...any) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		msg := m.message
		if msg == "" {
			msg = err.Error()
		}
		if m.status >= http.StatusInternalServerError {
			h.logger.Error("request failed", append(attrs, slog.String("error", err.Error()))...)
		}
		writeError(w, m.status, msg, m.code)
		return
	}

	h.logger.Error("request failed", append(attrs, slog.String("error", err.Error()))...)
	writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
}
