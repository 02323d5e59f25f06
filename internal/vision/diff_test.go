package vision

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func grayFrame(shade uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, thumbWidth, thumbHeight))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	return img
}

func TestChangeScoreIdentical(t *testing.T) {
	a := grayFrame(128)
	b := grayFrame(128)

	if got := changeScore(a, b); got != 0 {
		t.Errorf("changeScore(identical) = %v, want 0", got)
	}
}

func TestChangeScoreOpposite(t *testing.T) {
	black := grayFrame(0)
	white := grayFrame(255)

	if got := changeScore(black, white); got != 1 {
		t.Errorf("changeScore(black, white) = %v, want 1", got)
	}
}

func TestChangeScorePartialChange(t *testing.T) {
	a := grayFrame(0)
	b := grayFrame(0)
	// Flip the top half to white.
	for i := 0; i < len(b.Pix)/2; i++ {
		b.Pix[i] = 255
	}

	got := changeScore(a, b)
	if got < 0.49 || got > 0.51 {
		t.Errorf("changeScore(half flipped) = %v, want ~0.5", got)
	}
}

func TestChangeScoreMismatchedSizes(t *testing.T) {
	a := grayFrame(0)
	b := image.NewGray(image.Rect(0, 0, 10, 10))

	if got := changeScore(a, b); got != 1 {
		t.Errorf("changeScore(mismatched) = %v, want 1 (treat as full change)", got)
	}
}

func TestDecodeFrameDownscales(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 1280, 720))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	thumb, err := decodeFrame(buf.Bytes())
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}

	bounds := thumb.Bounds()
	if bounds.Dx() != thumbWidth || bounds.Dy() != thumbHeight {
		t.Errorf("thumbnail = %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), thumbWidth, thumbHeight)
	}
	// A flat source stays flat after scaling.
	if got := changeScore(grayFrame(200), thumb); got > 0.01 {
		t.Errorf("flat frame drifted after downscale: change %v", got)
	}
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	if _, err := decodeFrame([]byte("definitely not an image")); err == nil {
		t.Error("decodeFrame accepted garbage input")
	}
}
