// Package imaging turns request payloads into images the model accepts.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/joseph-ayodele/vlm-ocr/internal/common"
	"github.com/joseph-ayodele/vlm-ocr/internal/runner"
)

// DefaultMaxPixels caps width*height before any pixel buffer is allocated.
const DefaultMaxPixels = 89_478_485

type Config struct {
	HeicConverter string // heif-convert | magick | sips; default magick
	MaxPixels     int
}

// Decoder decodes raw image bytes and normalizes them to opaque RGB.
type Decoder struct {
	cfg    Config
	runner runner.Runner
	logger *slog.Logger
}

func NewDecoder(cfg Config, r runner.Runner, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HeicConverter == "" {
		cfg.HeicConverter = "magick"
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = DefaultMaxPixels
	}
	if r == nil {
		r = runner.New(logger)
	}
	return &Decoder{cfg: cfg, runner: r, logger: logger}
}

// Decode parses data and returns the image converted to 3-channel color along with
// the detected format. Payload failures are a common.ErrDecode; a HEIC converter
// that cannot run is a common.ErrInternal.
func (d *Decoder) Decode(ctx context.Context, data []byte) (*image.NRGBA, string, error) {
	if len(data) == 0 {
		return nil, "", common.NewDecodeError(errors.New("empty image payload"))
	}

	format := ""
	if isHEIC(data) {
		png, err := convertHEICtoPNG(ctx, d.runner, d.logger, d.cfg.HeicConverter, data)
		if err != nil {
			return nil, "heic", err
		}
		data = png
		format = "heic"
	}

	if err := d.checkDimensions(data); err != nil {
		return nil, format, err
	}

	img, detected, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, common.NewDecodeError(fmt.Errorf("decode %d bytes: %w", len(data), err))
	}
	if format == "" {
		format = detected
	}
	if img.Bounds().Empty() {
		return nil, format, common.NewDecodeError(errors.New("image has no pixels"))
	}
	return ToRGB(img), format, nil
}

// checkDimensions reads only the image header and rejects sizes the decoder
// would have to allocate an oversized buffer for.
func (d *Decoder) checkDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return common.NewDecodeError(fmt.Errorf("read header of %d bytes: %w", len(data), err))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return common.NewDecodeError(errors.New("image has no pixels"))
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(d.cfg.MaxPixels) {
		return common.NewDecodeError(fmt.Errorf("image is %dx%d, limit is %d pixels", cfg.Width, cfg.Height, d.cfg.MaxPixels))
	}
	return nil
}
