package imaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/joseph-ayodele/vlm-ocr/constants"
	"github.com/joseph-ayodele/vlm-ocr/internal/common"
	"github.com/joseph-ayodele/vlm-ocr/internal/runner"
)

// isHEIC sniffs the ISO-BMFF header: bytes 4..8 are "ftyp", 8..12 the major brand.
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	return constants.IsHEICBrand(string(data[8:12]))
}

// converterArgs returns the command line that converts in to out with the named tool.
func converterArgs(converter, in, out string) (string, []string, bool) {
	switch converter {
	case "heif-convert", "magick":
		return converter, []string{in, out}, true
	case "sips":
		return "sips", []string{"-s", "format", "png", in, "--out", out}, true
	default:
		return "", nil, false
	}
}

// convertHEICtoPNG converts HEIC/HEIF bytes to PNG bytes with an external converter.
// Work files live in a temp directory removed before returning. A converter that is
// unknown or cannot be started yields a common.NewConverterError; a converter that
// runs and rejects the payload yields a common.ErrDecode.
func convertHEICtoPNG(ctx context.Context, r runner.Runner, logger *slog.Logger, converter string, data []byte) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "vlm-heic-*")
	if err != nil {
		return nil, common.NewConverterError("create heic work dir", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logger.Warn("failed to remove heic temp dir", "dir", tmpDir, "error", err)
		}
	}()

	in := filepath.Join(tmpDir, "input.heic")
	out := filepath.Join(tmpDir, "page.png")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, common.NewConverterError("write heic input", err)
	}

	name, args, ok := converterArgs(converter, in, out)
	if !ok {
		return nil, common.NewConverterError(
			fmt.Sprintf("HEIC converter %q not supported: set HEIC_CONVERTER to one of: heif-convert | magick | sips", converter), nil)
	}
	if _, errb, err := r.Run(ctx, name, args...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if converterMissing(err) {
			return nil, common.NewConverterError(fmt.Sprintf("HEIC converter %s cannot be started", name), err)
		}
		return nil, common.NewDecodeError(fmt.Errorf("%s convert failed: %w: %s", name, err, runner.Truncate(string(errb), 512)))
	}

	png, err := os.ReadFile(out)
	if err != nil {
		return nil, common.NewDecodeError(fmt.Errorf("HEIC conversion produced no output: %w", err))
	}
	logger.Debug("converted heic to png", "converter", converter, "in_bytes", len(data), "out_bytes", len(png))
	return png, nil
}

func converterMissing(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission)
}
