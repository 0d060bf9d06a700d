// Package fingerprint computes exact and perceptual fingerprints for captured frames.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"image"
	"image/draw"

	"github.com/corona10/goimagehash"
)

// Exact is a SHA-256 digest over a canonicalized frame. Equal digests mean
// pixel-identical content after canonicalization.
type Exact [sha256.Size]byte

// String returns the digest as hex.
func (e Exact) String() string {
	return hex.EncodeToString(e[:])
}

// Short returns a truncated hex form for logging.
func (e Exact) Short() string {
	return hex.EncodeToString(e[:8])
}

// Canonical converts an image to tightly packed RGBA with a zero origin.
// Frames straight off the grabber usually already satisfy this and are
// returned as-is.
func Canonical(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		b := rgba.Bounds()
		if b.Min == (image.Point{}) && rgba.Stride == b.Dx()*4 {
			return rgba
		}
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// ExactHash canonicalizes the frame and digests width, height, and the raw
// pixel bytes. Width and height are mixed in as big-endian uint32 so frames
// with identical bytes but different shapes cannot collide.
func ExactHash(img image.Image) Exact {
	rgba := Canonical(img)
	b := rgba.Bounds()

	h := sha256.New()
	var dims [8]byte
	binary.BigEndian.PutUint32(dims[:4], uint32(b.Dx()))
	binary.BigEndian.PutUint32(dims[4:], uint32(b.Dy()))
	h.Write(dims[:])
	h.Write(rgba.Pix)

	var e Exact
	h.Sum(e[:0])
	return e
}

// Perceptual computes an average hash over a gridSize x gridSize grid. Frames
// with similar brightness layout produce hashes with small Hamming distance.
func Perceptual(img image.Image, gridSize int) (*goimagehash.ExtImageHash, error) {
	return goimagehash.ExtAverageHash(img, gridSize, gridSize)
}
