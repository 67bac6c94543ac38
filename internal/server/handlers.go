package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/pixelframe-api/internal/export"
	"github.com/maauso/pixelframe-api/internal/grid"
	"github.com/maauso/pixelframe-api/internal/job"
	"github.com/maauso/pixelframe-api/internal/session"
)

// multipartMemory is the part of an upload kept in memory before spilling to disk.
const multipartMemory = 32 << 20

// DefaultMaxUploadBytes is the upload limit when none is configured.
const DefaultMaxUploadBytes = 512 << 20

// Export format names resolved to the configured defaults.
const (
	formatDefaultStill = "still"
	formatDefaultVideo = "video"
)

// SessionOpener creates sessions from uploaded clips.
type SessionOpener interface {
	Open(ctx context.Context, name string, data io.Reader, cfg grid.Config) (*session.Session, error)
}

var _ SessionOpener = (*session.Opener)(nil)

// Exporter runs exports and tracks video export jobs.
type Exporter interface {
	Format(name string) (export.Format, error)
	Formats() []export.Format
	ExportStill(ctx context.Context, sessionID, format string) (export.Artifact, error)
	StartVideoExport(ctx context.Context, sessionID, format string, push bool) (*job.Job, error)
	GetJob(ctx context.Context, id string) (*job.Job, error)
	Download(ctx context.Context, id string) (job.Output, []byte, error)
	Cancel(ctx context.Context, id string) (*job.Job, error)
}

var _ Exporter = (*job.ExportService)(nil)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	sessions     *session.Registry
	opener       SessionOpener
	exports      Exporter
	validator    *validator.Validate
	logger       *slog.Logger
	defaults     grid.Config
	defaultStill string
	defaultVideo string
	maxUpload    int64
	onSessions   func(n int)
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithGridDefaults sets the grid configuration of newly uploaded sessions.
func WithGridDefaults(cfg grid.Config) HandlerOption {
	return func(h *Handlers) {
		h.defaults = cfg
	}
}

// WithDefaultStillFormat sets the format used when an export names none.
func WithDefaultStillFormat(name string) HandlerOption {
	return func(h *Handlers) {
		if name != "" {
			h.defaultStill = name
		}
	}
}

// WithDefaultVideoFormat sets the format an export named "video" resolves to.
func WithDefaultVideoFormat(name string) HandlerOption {
	return func(h *Handlers) {
		if name != "" {
			h.defaultVideo = name
		}
	}
}

// WithMaxUploadBytes limits the size of a clip upload.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// WithSessionObserver registers a callback that receives the number of open
// sessions whenever it changes.
func WithSessionObserver(fn func(n int)) HandlerOption {
	return func(h *Handlers) {
		h.onSessions = fn
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions *session.Registry, opener SessionOpener, exports Exporter, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		sessions:     sessions,
		opener:       opener,
		exports:      exports,
		validator:    validator.New(),
		logger:       logger,
		defaults:     grid.DefaultConfig(),
		defaultStill: export.PNG.Name,
		defaultVideo: export.WebM.Name,
		maxUpload:    DefaultMaxUploadBytes,
		onSessions:   func(int) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ListFormats handles GET /formats requests.
func (h *Handlers) ListFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newFormatListResponse(h.exports.Formats()))
}

// CreateSession handles POST /sessions requests: a multipart upload with a
// "video" file and optional columns, cell_size and border_size fields.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit", "UPLOAD_TOO_LARGE")
			return
		}
		h.logger.Warn("failed to parse upload", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid multipart form", "INVALID_FORM")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "a video file is required", "MISSING_VIDEO")
		return
	}
	defer func() { _ = file.Close() }()

	req, err := parseConfigForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	sess, err := h.opener.Open(r.Context(), header.Filename, file, req.apply(h.defaults))
	if err != nil {
		h.writeServiceError(w, err, slog.String("file", header.Filename))
		return
	}
	h.onSessions(h.sessions.Len())

	h.logger.Info("session created",
		slog.String("session_id", sess.ID),
		slog.String("file", header.Filename),
		slog.Int64("size", header.Size),
	)
	w.Header().Set("Location", "/sessions/"+sess.ID)
	writeJSON(w, http.StatusCreated, newSessionResponse(sess.Info()))
}

// parseConfigForm reads the optional grid fields of an upload form.
func parseConfigForm(r *http.Request) (UpdateConfigRequest, error) {
	var req UpdateConfigRequest
	fields := []struct {
		name string
		dst  **int
	}{
		{"columns", &req.Columns},
		{"cell_size", &req.CellSize},
		{"border_size", &req.BorderSize},
	}
	for _, f := range fields {
		v := r.FormValue(f.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return UpdateConfigRequest{}, errors.New(f.name + " must be an integer")
		}
		*f.dst = &n
	}
	return req, nil
}

// ListSessions handles GET /sessions requests.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.List()
	resp := SessionListResponse{Sessions: make([]SessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, newSessionResponse(s.Info()))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSession handles GET /sessions/{id} requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess.Info()))
}

// UpdateConfig handles PUT /sessions/{id}/config requests.
func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	applied := sess.SetConfig(req.apply(sess.Config()))
	h.logger.Info("grid config updated",
		slog.String("session_id", sess.ID),
		slog.Int("columns", applied.Columns),
		slog.Int("cell_size", applied.CellSize),
		slog.Int("border_size", applied.BorderSize),
	)
	writeJSON(w, http.StatusOK, newSessionResponse(sess.Info()))
}

// Play handles POST /sessions/{id}/play requests.
func (h *Handlers) Play(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, func(s *session.Session) error { return s.Play() })
}

// Pause handles POST /sessions/{id}/pause requests.
func (h *Handlers) Pause(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, func(s *session.Session) error { return s.Pause() })
}

// Rewind handles POST /sessions/{id}/rewind requests.
func (h *Handlers) Rewind(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, func(s *session.Session) error { return s.Rewind(r.Context()) })
}

func (h *Handlers) control(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	if err := fn(sess); err != nil {
		h.writeServiceError(w, err, slog.String("session_id", sess.ID))
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess.Info()))
}

// Raster handles GET /sessions/{id}/raster requests with the current render as PNG.
func (h *Handlers) Raster(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	frame, err := sess.Snapshot()
	if err != nil {
		h.writeServiceError(w, err, slog.String("session_id", sess.ID))
		return
	}
	data, err := export.EncodePNG(r.Context(), frame)
	if err != nil {
		h.writeServiceError(w, err, slog.String("session_id", sess.ID))
		return
	}
	w.Header().Set("Content-Type", export.PNG.MIME)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// DeleteSession handles DELETE /sessions/{id} requests.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := h.sessions.Delete(sessionID); err != nil {
		h.writeServiceError(w, err, slog.String("session_id", sessionID))
		return
	}
	h.onSessions(h.sessions.Len())

	h.logger.Info("session deleted", slog.String("session_id", sessionID))
	w.WriteHeader(http.StatusNoContent)
}

// CreateExport handles POST /sessions/{id}/exports requests. Single-frame
// formats answer with the file; video formats answer 202 with a job. An empty
// format or "still" selects the default still format, "video" the default
// video format.
func (h *Handlers) CreateExport(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req CreateExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	switch req.Format {
	case "", formatDefaultStill:
		req.Format = h.defaultStill
	case formatDefaultVideo:
		req.Format = h.defaultVideo
	}

	f, err := h.exports.Format(req.Format)
	if err != nil {
		h.writeServiceError(w, err, slog.String("format", req.Format))
		return
	}

	if f.Kind == export.KindVideo {
		j, err := h.exports.StartVideoExport(r.Context(), sessionID, f.Name, req.PushToS3)
		if err != nil {
			h.writeServiceError(w, err, slog.String("session_id", sessionID), slog.String("format", f.Name))
			return
		}
		w.Header().Set("Location", "/jobs/"+j.ID)
		writeJSON(w, http.StatusAccepted, newJobResponse(j))
		return
	}

	art, err := h.exports.ExportStill(r.Context(), sessionID, f.Name)
	if err != nil {
		h.writeServiceError(w, err, slog.String("session_id", sessionID), slog.String("format", f.Name))
		return
	}
	writeAttachment(w, art.Name, art.MIME, art.Data)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.exports.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err, slog.String("job_id", jobID))
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(foundJob))
}

// DownloadJob handles GET /jobs/{id}/download requests. The job is removed
// once the file has been handed out.
func (h *Handlers) DownloadJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	out, data, err := h.exports.Download(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err, slog.String("job_id", jobID))
		return
	}
	writeAttachment(w, out.FileName, out.MIME, data)
}

// CancelJob handles DELETE /jobs/{id} requests.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	cancelled, err := h.exports.Cancel(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err, slog.String("job_id", jobID))
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(cancelled))
}

func (h *Handlers) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sessionID := r.PathValue("id")
	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		h.writeServiceError(w, err, slog.String("session_id", sessionID))
		return nil, false
	}
	return sess, true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeAttachment writes data as a file download.
func writeAttachment(w http.ResponseWriter, name, mime string, data []byte) {
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
