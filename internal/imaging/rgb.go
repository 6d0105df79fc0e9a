package imaging

import (
	"image"

	"golang.org/x/image/draw"
)

// ToRGB copies img into an opaque NRGBA image anchored at (0,0). Alpha is discarded
// rather than composited and single-channel sources are expanded to three channels.
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	rect := image.Rect(0, 0, b.Dx(), b.Dy())

	// Straight-alpha rows copy as is so translucent pixels keep their exact color.
	if src, ok := img.(*image.NRGBA); ok {
		dst := image.NewNRGBA(rect)
		row := 4 * b.Dx()
		for y := 0; y < b.Dy(); y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+row], src.Pix[off:off+row])
		}
		forceOpaque(dst.Pix)
		return dst
	}

	rgba := image.NewRGBA(rect)
	draw.Draw(rgba, rect, img, b.Min, draw.Src)
	pix := rgba.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		a := uint32(pix[i+3])
		if a == 0xff || a == 0 {
			continue
		}
		pix[i] = uint8((uint32(pix[i]) * 0xffff / a) >> 8)
		pix[i+1] = uint8((uint32(pix[i+1]) * 0xffff / a) >> 8)
		pix[i+2] = uint8((uint32(pix[i+2]) * 0xffff / a) >> 8)
	}
	forceOpaque(pix)
	return &image.NRGBA{Pix: pix, Stride: rgba.Stride, Rect: rect}
}

func forceOpaque(pix []uint8) {
	for i := 3; i < len(pix); i += 4 {
		pix[i] = 0xff
	}
}
