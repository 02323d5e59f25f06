package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Frames are compared on a small grayscale thumbnail; full-resolution
// comparison buys nothing for "did the screen change" and costs real CPU.
const (
	thumbWidth  = 320
	thumbHeight = 180
)

// decodeFrame decodes an encoded frame and reduces it to the comparison
// thumbnail.
func decodeFrame(data []byte) (*image.Gray, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return downscale(src), nil
}

func downscale(src image.Image) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, thumbWidth, thumbHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// changeScore returns the mean absolute pixel difference between two
// thumbnails, normalized to 0-1. Zero means identical, one means every
// pixel flipped between black and white.
func changeScore(prev, cur *image.Gray) float64 {
	if len(prev.Pix) != len(cur.Pix) || len(cur.Pix) == 0 {
		return 1
	}

	total := 0
	for i := range cur.Pix {
		d := int(cur.Pix[i]) - int(prev.Pix[i])
		if d < 0 {
			d = -d
		}
		total += d
	}
	return float64(total) / float64(len(cur.Pix)) / 255
}
