package export

import (
	"bytes"
	"context"
	"image/jpeg"
	"image/png"

	"github.com/maauso/pixelframe-api/internal/media"
	"github.com/maauso/pixelframe-api/internal/session"
)

// EncodePNG encodes the rendered raster as PNG.
func EncodePNG(_ context.Context, f session.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Raster); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JPEGEncoder returns a FrameEncoder producing baseline JPEG at quality.
func JPEGEncoder(quality int) FrameEncoder {
	return func(_ context.Context, f session.Frame) ([]byte, error) {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, f.Raster, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// WebPEncoder returns a FrameEncoder that encodes lossy WebP through enc.
func WebPEncoder(enc media.Encoder, quality int) FrameEncoder {
	return func(ctx context.Context, f session.Frame) ([]byte, error) {
		return enc.EncodeWebP(ctx, f.Raster, quality)
	}
}
