package llamacpp

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
)

// pngDataURL encodes img losslessly for the image_url content part.
func pngDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
