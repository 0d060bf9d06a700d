package fingerprint

import "github.com/corona10/goimagehash"

// Policy converts a configured change ratio into a Hamming-distance threshold
// over perceptual fingerprints. It is the single source of truth for "same
// visual state" and must be rebuilt whenever the configuration changes.
type Policy struct {
	gridSize  int
	threshold int
}

// NewPolicy derives the bit threshold floor(gridSize^2 * changeRatio),
// clamped to [0, gridSize^2].
func NewPolicy(gridSize int, changeRatio float64) Policy {
	bits := gridSize * gridSize
	threshold := int(float64(bits) * changeRatio)
	if threshold < 0 {
		threshold = 0
	}
	if threshold > bits {
		threshold = bits
	}
	return Policy{gridSize: gridSize, threshold: threshold}
}

// GridSize returns the perceptual hash grid dimension.
func (p Policy) GridSize() int { return p.gridSize }

// Threshold returns the maximum Hamming distance still considered similar.
func (p Policy) Threshold() int { return p.threshold }

// Similar reports whether two perceptual fingerprints represent the same
// visual state. At threshold 0 only identical fingerprints match.
func (p Policy) Similar(a, b *goimagehash.ExtImageHash) bool {
	if a == nil || b == nil {
		return false
	}
	dist, err := a.Distance(b)
	if err != nil {
		return false
	}
	return dist <= p.threshold
}
