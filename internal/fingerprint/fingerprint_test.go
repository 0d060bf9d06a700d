package fingerprint

import (
	"image"
	"image/color"
	"testing"
)

// makeFrame creates test frames with distinct patterns.
func makeFrame(pattern int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			var c color.RGBA
			switch pattern {
			case 0: // solid gray
				c = color.RGBA{R: 128, G: 128, B: 128, A: 255}
			case 1: // checkerboard
				if (x/8+y/8)%2 == 0 {
					c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
				} else {
					c = color.RGBA{R: 0, G: 0, B: 0, A: 255}
				}
			case 2: // horizontal gradient
				c = color.RGBA{R: uint8(x * 4), G: 0, B: uint8(255 - x*4), A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestExactHashDeterministic(t *testing.T) {
	a := ExactHash(makeFrame(1))
	b := ExactHash(makeFrame(1))

	if a != b {
		t.Errorf("identical frames produced different exact hashes: %s vs %s", a.Short(), b.Short())
	}
}

func TestExactHashOnePixelDifference(t *testing.T) {
	img1 := makeFrame(0)
	img2 := makeFrame(0)
	img2.SetRGBA(10, 10, color.RGBA{R: 129, G: 128, B: 128, A: 255})

	if ExactHash(img1) == ExactHash(img2) {
		t.Error("frames differing in one pixel produced the same exact hash")
	}
}

func TestExactHashDimensionsMatter(t *testing.T) {
	// Same bytes, different shape: 2x8 vs 4x4 solid images have identical
	// pixel buffers but must not collide.
	wide := image.NewRGBA(image.Rect(0, 0, 8, 2))
	square := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range wide.Pix {
		wide.Pix[i] = 0xAB
		square.Pix[i] = 0xAB
	}

	if ExactHash(wide) == ExactHash(square) {
		t.Error("frames with equal bytes but different dimensions collided")
	}
}

func TestExactHashNonZeroOrigin(t *testing.T) {
	// A sub-image with a shifted origin must canonicalize to the same hash
	// as an equivalent zero-origin image.
	big := makeFrame(2)
	sub := big.SubImage(image.Rect(8, 8, 40, 40)).(*image.RGBA)

	flat := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			flat.Set(x, y, big.At(x+8, y+8))
		}
	}

	if ExactHash(sub) != ExactHash(flat) {
		t.Error("canonicalization did not normalize origin and stride")
	}
}

func TestCanonicalFastPath(t *testing.T) {
	img := makeFrame(0)
	if Canonical(img) != img {
		t.Error("tightly packed zero-origin RGBA should be returned as-is")
	}
}

func TestPerceptualSimilarFrames(t *testing.T) {
	a, err := Perceptual(makeFrame(1), 16)
	if err != nil {
		t.Fatalf("Perceptual: %v", err)
	}

	// Same checkerboard with a tiny blemish should stay close.
	img := makeFrame(1)
	img.SetRGBA(0, 0, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	b, err := Perceptual(img, 16)
	if err != nil {
		t.Fatalf("Perceptual: %v", err)
	}

	dist, err := a.Distance(b)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if dist > 4 {
		t.Errorf("near-identical frames have distance %d, want <= 4", dist)
	}
}

func TestPerceptualDistinctFrames(t *testing.T) {
	a, err := Perceptual(makeFrame(1), 16)
	if err != nil {
		t.Fatalf("Perceptual: %v", err)
	}
	b, err := Perceptual(makeFrame(2), 16)
	if err != nil {
		t.Fatalf("Perceptual: %v", err)
	}

	dist, err := a.Distance(b)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if dist < 16 {
		t.Errorf("visually distinct frames have distance %d, want >= 16", dist)
	}
}
