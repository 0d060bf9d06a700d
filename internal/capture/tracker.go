// Package capture runs the screenshot capture loop: sample, fingerprint,
// confirm stability, persist.
package capture

import (
	"github.com/corona10/goimagehash"

	"framekeep/internal/fingerprint"
)

// Tracker decides when the screen has stayed visually constant long enough
// to persist. Cursor blinks, clocks, and transient animation never
// accumulate the required run of consecutive same-state samples.
type Tracker struct {
	policy   fingerprint.Policy
	required int

	tracking   bool
	exact      fingerprint.Exact
	perceptual *goimagehash.ExtImageHash
	count      int
}

// NewTracker creates a tracker requiring samples consecutive same-state
// observations before confirming.
func NewTracker(policy fingerprint.Policy, samples int) *Tracker {
	if samples < 1 {
		samples = 1
	}
	return &Tracker{policy: policy, required: samples}
}

// Pending reports whether a candidate is currently being confirmed.
func (t *Tracker) Pending() bool { return t.tracking }

// Reset discards the current candidate.
func (t *Tracker) Reset() {
	t.tracking = false
	t.perceptual = nil
	t.count = 0
}

// Observe feeds one sampled fingerprint pair and returns true when the
// candidate has been seen for the required number of consecutive samples.
// An observation continues the candidate if its exact fingerprint matches
// or the policy judges it perceptually similar; anything else replaces the
// candidate and restarts the count.
func (t *Tracker) Observe(e fingerprint.Exact, p *goimagehash.ExtImageHash) bool {
	switch {
	case !t.tracking:
		t.begin(e, p)
	case e == t.exact || t.policy.Similar(p, t.perceptual):
		t.count++
	default:
		t.begin(e, p)
	}

	if t.count >= t.required {
		t.Reset()
		return true
	}
	return false
}

func (t *Tracker) begin(e fingerprint.Exact, p *goimagehash.ExtImageHash) {
	t.tracking = true
	t.exact = e
	t.perceptual = p
	t.count = 1
}
