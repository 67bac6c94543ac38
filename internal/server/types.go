// Package server provides the HTTP server for the pixelframe API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/pixelframe-api/internal/export"
	"github.com/maauso/pixelframe-api/internal/grid"
	"github.com/maauso/pixelframe-api/internal/job"
	"github.com/maauso/pixelframe-api/internal/session"
)

// UpdateConfigRequest is the HTTP request body for changing grid settings.
// Omitted fields keep their current value; values are clamped into range.
// The same fields are read from the multipart form of a session upload.
type UpdateConfigRequest struct {
	// Columns is the number of cells across.
	Columns *int `json:"columns" validate:"omitempty,min=1,max=4096"`
	// CellSize is the side of one cell in output pixels.
	CellSize *int `json:"cell_size" validate:"omitempty,min=1,max=512"`
	// BorderSize is the gap between cells in output pixels.
	BorderSize *int `json:"border_size" validate:"omitempty,min=0,max=512"`
}

// apply merges the request over cfg.
func (r UpdateConfigRequest) apply(cfg grid.Config) grid.Config {
	if r.Columns != nil {
		cfg.Columns = *r.Columns
	}
	if r.CellSize != nil {
		cfg.CellSize = *r.CellSize
	}
	if r.BorderSize != nil {
		cfg.BorderSize = *r.BorderSize
	}
	return cfg
}

// CreateExportRequest is the HTTP request body for exporting a session.
type CreateExportRequest struct {
	// Format is the export format name. Empty or "still" selects the default
	// still format, "video" the default video format.
	Format string `json:"format" validate:"omitempty,alphanum,max=16"`
	// PushToS3 uploads a finished video to object storage.
	PushToS3 bool `json:"push_to_s3"`
}

// SizeResponse is a width and height in pixels.
type SizeResponse struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ClipResponse describes the clip loaded in a session.
type ClipResponse struct {
	ID            string  `json:"id"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	DurationMs    int64   `json:"duration_ms"`
	PositionMs    int64   `json:"position_ms"`
	PlaybackState string  `json:"playback_state"`
	FrameRate     float64 `json:"frame_rate,omitempty"`
}

// SessionResponse is the HTTP representation of a render session.
type SessionResponse struct {
	ID        string        `json:"id"`
	State     string        `json:"state"`
	Ready     bool          `json:"ready"`
	Config    grid.Config   `json:"config"`
	Grid      *SizeResponse `json:"grid,omitempty"`
	Output    *SizeResponse `json:"output,omitempty"`
	Clip      *ClipResponse `json:"clip,omitempty"`
	Passes    int64         `json:"passes"`
	CreatedAt time.Time     `json:"created_at"`
}

// newSessionResponse maps session state onto its HTTP representation.
func newSessionResponse(info session.Info) SessionResponse {
	resp := SessionResponse{
		ID:        info.ID,
		State:     string(info.State),
		Ready:     info.Ready,
		Config:    info.Config,
		Passes:    info.Passes,
		CreatedAt: info.CreatedAt,
	}
	if info.ClipID == "" {
		return resp
	}
	resp.Grid = &SizeResponse{Width: info.Layout.Columns, Height: info.Layout.Rows}
	resp.Output = &SizeResponse{Width: info.Layout.Width, Height: info.Layout.Height}
	resp.Clip = &ClipResponse{
		ID:            info.ClipID,
		Width:         info.SourceWidth,
		Height:        info.SourceHeight,
		DurationMs:    info.Duration.Milliseconds(),
		PositionMs:    info.Position.Milliseconds(),
		PlaybackState: string(info.PlaybackState),
		FrameRate:     info.FrameRate,
	}
	return resp
}

// SessionListResponse lists open sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// FormatResponse describes one export format.
type FormatResponse struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Ext  string `json:"ext"`
	MIME string `json:"mime"`
}

// FormatListResponse lists the available export formats.
type FormatListResponse struct {
	Formats []FormatResponse `json:"formats"`
}

func newFormatListResponse(formats []export.Format) FormatListResponse {
	resp := FormatListResponse{Formats: make([]FormatResponse, 0, len(formats))}
	for _, f := range formats {
		resp.Formats = append(resp.Formats, FormatResponse{
			Name: f.Name,
			Kind: f.Kind.String(),
			Ext:  f.Ext,
			MIME: f.MIME,
		})
	}
	return resp
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// SessionID is the session being exported.
	SessionID string `json:"session_id"`
	// Format is the export format.
	Format string `json:"format"`
	// Status is the current job status.
	Status string `json:"status"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// FileName is the download name once completed.
	FileName string `json:"file_name,omitempty"`
	// Size is the artifact size in bytes once completed.
	Size int64 `json:"size,omitempty"`
	// DownloadURL is the path serving the artifact once completed.
	DownloadURL string `json:"download_url,omitempty"`
	// VideoURL is the object storage URL if push_to_s3 was set.
	VideoURL string `json:"video_url,omitempty"`
	// CreatedAt is when the job was accepted.
	CreatedAt time.Time `json:"created_at"`
}

func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		SessionID: j.SessionID,
		Format:    j.Format,
		Status:    string(j.Status),
		Error:     j.Error,
		VideoURL:  j.URL,
		CreatedAt: j.CreatedAt,
	}
	if j.Status == job.StatusCompleted {
		resp.FileName = j.Output.FileName
		resp.Size = j.Output.Size
		resp.DownloadURL = "/jobs/" + j.ID + "/download"
	}
	return resp
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
