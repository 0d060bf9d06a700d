// Package screen provides frame acquisition for capture sessions.
package screen

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/kbinani/screenshot"
)

// Frame is a raw captured image. It is owned by the tick that grabbed it and
// must not be retained across ticks.
type Frame struct {
	Img        *image.RGBA
	CapturedAt time.Time
}

// Region describes what to grab. An empty rectangle means the primary display.
type Region struct {
	Rect image.Rectangle
}

// Primary reports whether the region falls back to the primary display.
func (r Region) Primary() bool { return r.Rect.Empty() }

// Grabber acquires frames for a region. Grab may fail per tick; callers treat
// failures as non-fatal and retry on the next tick.
type Grabber interface {
	Grab(region Region) (*Frame, error)
}

// DisplayGrabber captures frames from the local displays.
type DisplayGrabber struct{}

// NewGrabber creates a display grabber.
func NewGrabber() *DisplayGrabber { return &DisplayGrabber{} }

// Grab captures the region, or the primary display when the region is empty.
func (g *DisplayGrabber) Grab(region Region) (*Frame, error) {
	rect := region.Rect
	if region.Primary() {
		if screenshot.NumActiveDisplays() == 0 {
			return nil, errors.New("no active displays")
		}
		rect = screenshot.GetDisplayBounds(0)
	}

	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return nil, fmt.Errorf("capture %v: %w", rect, err)
	}
	return &Frame{Img: img, CapturedAt: time.Now()}, nil
}
