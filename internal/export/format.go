// Package export serializes rendered pixel grids into downloadable files:
// raster images, SVG documents, JSON pixel dumps and re-encoded videos.
package export

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/maauso/pixelframe-api/internal/media"
	"github.com/maauso/pixelframe-api/internal/session"
)

// Static errors for the export pipeline.
var (
	// ErrUnsupportedFormat is returned when a format name is unknown or its
	// encoder is not available at runtime.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrExportFailed is the single user-facing error for a failed export.
	ErrExportFailed = errors.New("export failed")
)

// Kind tags a Format with the handler that produces it.
type Kind int

const (
	// KindStill encodes the rendered raster.
	KindStill Kind = iota
	// KindVector emits one SVG rect per cell from the pixel buffer.
	KindVector
	// KindDump serializes the pixel buffer as JSON.
	KindDump
	// KindVideo re-records the whole clip through the render pipeline.
	KindVideo
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindStill:
		return "still"
	case KindVector:
		return "vector"
	case KindDump:
		return "dump"
	case KindVideo:
		return "video"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Base names of exported files.
const (
	FrameBaseName = "pixel-frame"
	VideoBaseName = "pixel-video"
)

// DefaultQuality is the quality used for lossy still formats (0-100).
const DefaultQuality = 92

// Format describes one export target.
type Format struct {
	Name string
	Kind Kind
	Ext  string
	MIME string
	// Codec and Container are the ffmpeg encoder and muxer for video formats.
	Codec     string
	Container string
}

// FileName returns the download name for an artifact of this format.
func (f Format) FileName() string {
	if f.Kind == KindVideo {
		return VideoBaseName + "." + f.Ext
	}
	return FrameBaseName + "." + f.Ext
}

// Built-in formats.
var (
	PNG  = Format{Name: "png", Kind: KindStill, Ext: "png", MIME: "image/png"}
	JPEG = Format{Name: "jpg", Kind: KindStill, Ext: "jpg", MIME: "image/jpeg"}
	WebP = Format{Name: "webp", Kind: KindStill, Ext: "webp", MIME: "image/webp"}
	SVG  = Format{Name: "svg", Kind: KindVector, Ext: "svg", MIME: "image/svg+xml"}
	JSON = Format{Name: "json", Kind: KindDump, Ext: "json", MIME: "application/json"}
	WebM = Format{Name: "webm", Kind: KindVideo, Ext: "webm", MIME: "video/webm", Codec: "libvpx-vp9", Container: "webm"}
	MP4  = Format{Name: "mp4", Kind: KindVideo, Ext: "mp4", MIME: "video/mp4", Codec: "libx264", Container: "mp4"}
)

// aliases maps alternative names onto registered format names.
var aliases = map[string]string{
	"jpeg": "jpg",
}

// Artifact is a finished export ready for download.
type Artifact struct {
	Name string
	MIME string
	Data []byte
	// Chunks is the number of encoder chunks assembled into Data; zero for stills.
	Chunks int
}

// FrameEncoder encodes a single render snapshot.
type FrameEncoder func(ctx context.Context, frame session.Frame) ([]byte, error)

// Registry maps format names to their handlers.
type Registry struct {
	formats  map[string]Format
	encoders map[string]FrameEncoder
}

// NewRegistry returns a registry with the formats that need no external
// encoder: png, jpg, svg and json. When enc is not nil webp, webm and mp4
// are registered too.
func NewRegistry(enc media.Encoder) *Registry {
	r := &Registry{
		formats:  make(map[string]Format),
		encoders: make(map[string]FrameEncoder),
	}
	r.Register(PNG, EncodePNG)
	r.Register(JPEG, JPEGEncoder(DefaultQuality))
	r.Register(SVG, func(_ context.Context, f session.Frame) ([]byte, error) {
		return BuildSVG(f.Buffer, f.Layout.CellSize, f.Layout.BorderSize), nil
	})
	r.Register(JSON, EncodeDump)
	if enc != nil {
		r.Register(WebP, WebPEncoder(enc, DefaultQuality))
		r.Register(WebM, nil)
		r.Register(MP4, nil)
	}
	return r
}

// Register adds or replaces a format. Video formats carry no FrameEncoder.
func (r *Registry) Register(f Format, enc FrameEncoder) {
	r.formats[f.Name] = f
	if enc != nil {
		r.encoders[f.Name] = enc
	}
}

// Lookup resolves a format by name, case-insensitively.
func (r *Registry) Lookup(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	f, ok := r.formats[name]
	if !ok {
		return Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
	return f, nil
}

// Formats returns every registered format sorted by name.
func (r *Registry) Formats() []Format {
	out := make([]Format, 0, len(r.formats))
	for _, f := range r.formats {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ExportFrame encodes frame in the named still, vector or dump format.
func (r *Registry) ExportFrame(ctx context.Context, name string, frame session.Frame) (Artifact, error) {
	f, err := r.Lookup(name)
	if err != nil {
		return Artifact{}, err
	}
	enc, ok := r.encoders[f.Name]
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %q is not a single-frame format", ErrUnsupportedFormat, f.Name)
	}
	if frame.Buffer == nil || frame.Raster == nil {
		return Artifact{}, session.ErrNotReady
	}
	data, err := enc(ctx, frame)
	if err != nil {
		return Artifact{}, fmt.Errorf("encode %s: %w", f.Name, err)
	}
	return Artifact{Name: f.FileName(), MIME: f.MIME, Data: data}, nil
}
