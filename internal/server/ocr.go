package server

import (
	"context"
	"image"
	"log/slog"
	"time"

	ocrv1 "github.com/joseph-ayodele/vlm-ocr/gen/proto/ocr/v1"
	"github.com/joseph-ayodele/vlm-ocr/internal/async"
	"github.com/joseph-ayodele/vlm-ocr/internal/common"
)

// Extractor runs the model on a decoded image.
type Extractor interface {
	Extract(ctx context.Context, img image.Image, prompt string) (string, error)
}

// ImageDecoder turns request bytes into an opaque RGB image.
type ImageDecoder interface {
	Decode(ctx context.Context, data []byte) (*image.NRGBA, string, error)
}

// Submitter runs work on the bounded worker pool.
type Submitter interface {
	Submit(ctx context.Context, fn async.Func) error
}

type OCRService struct {
	ocrv1.UnimplementedOCRServiceServer
	engine  Extractor
	decoder ImageDecoder
	pool    Submitter
	logger  *slog.Logger
}

func NewOCRService(engine Extractor, decoder ImageDecoder, pool Submitter, logger *slog.Logger) *OCRService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRService{
		engine:  engine,
		decoder: decoder,
		pool:    pool,
		logger:  logger,
	}
}

// ExtractOCR implements ocrv1.OCRServiceServer
func (s *OCRService) ExtractOCR(ctx context.Context, req *ocrv1.ExtractOCRRequest) (*ocrv1.ExtractOCRResponse, error) {
	logger := common.LoggerFromContext(ctx, s.logger)

	v := common.NewValidator().
		Field("image", req.GetImage(), common.Required).
		Field("prompt", req.GetPrompt(), common.Required)
	if err := common.ValidateAndReturnError(v); err != nil {
		logger.Warn("invalid extract request", "error", v.ErrorMessage())
		return nil, err
	}

	start := time.Now()
	var out string
	err := s.pool.Submit(ctx, func(ctx context.Context) error {
		img, format, err := s.decoder.Decode(ctx, req.GetImage())
		if err != nil {
			return err
		}
		b := img.Bounds()
		logger.Debug("image decoded", "format", format, "width", b.Dx(), "height", b.Dy(), "bytes", len(req.GetImage()))

		out, err = s.engine.Extract(ctx, img, req.GetPrompt())
		return err
	})
	if err != nil {
		logger.Error("extract failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, common.ToStatus(err)
	}

	logger.Info("extract succeeded", "output_len", len(out), "elapsed_ms", time.Since(start).Milliseconds())
	return &ocrv1.ExtractOCRResponse{Output: out}, nil
}
