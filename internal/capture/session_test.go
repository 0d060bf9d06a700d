package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"framekeep/internal/archive"
	"framekeep/internal/fingerprint"
	"framekeep/internal/screen"
)

func solidImage(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func checkerImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			c := color.RGBA{A: 255}
			if (x/8+y/8)%2 == 0 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// stubGrabber serves a swappable fixed image.
type stubGrabber struct {
	mu  sync.Mutex
	img *image.RGBA
}

func (g *stubGrabber) set(img *image.RGBA) {
	g.mu.Lock()
	g.img = img
	g.mu.Unlock()
}

func (g *stubGrabber) Grab(screen.Region) (*screen.Frame, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &screen.Frame{Img: g.img, CapturedAt: time.Now()}, nil
}

// flipGrabber alternates between images on every grab.
type flipGrabber struct {
	mu   sync.Mutex
	n    int
	imgs []*image.RGBA
}

func (g *flipGrabber) Grab(screen.Region) (*screen.Frame, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	img := g.imgs[g.n%len(g.imgs)]
	g.n++
	return &screen.Frame{Img: img, CapturedAt: time.Now()}, nil
}

// countingGrabber counts grabs of a fixed image.
type countingGrabber struct {
	mu    sync.Mutex
	calls int
	img   *image.RGBA
}

func (g *countingGrabber) Grab(screen.Region) (*screen.Frame, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return &screen.Frame{Img: g.img, CapturedAt: time.Now()}, nil
}

func (g *countingGrabber) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// cancellingGrabber cancels a context from inside the grab, simulating a Stop
// landing mid-tick.
type cancellingGrabber struct {
	cancel context.CancelFunc
	img    *image.RGBA
}

func (g *cancellingGrabber) Grab(screen.Region) (*screen.Frame, error) {
	g.cancel()
	return &screen.Frame{Img: g.img, CapturedAt: time.Now()}, nil
}

type errGrabber struct{}

func (errGrabber) Grab(screen.Region) (*screen.Frame, error) {
	return nil, errors.New("display unavailable")
}

func testConfig(root string) Config {
	return Config{
		CheckInterval:     5 * time.Millisecond,
		StabilityInterval: 2 * time.Millisecond,
		StabilitySamples:  2,
		GridSize:          8,
		ChangeRatio:       0,
		OutputRoot:        root,
		StopTimeout:       2 * time.Second,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func sessionPNGs(t *testing.T, root string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(root, "*", "*", "*.png"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return matches
}

func TestSessionSavesStableFrameOnce(t *testing.T) {
	root := t.TempDir()
	g := &stubGrabber{img: solidImage(color.RGBA{R: 40, G: 40, B: 40, A: 255})}
	s := NewSession(g, testConfig(root))

	if err := s.Start("unit test", "unit_test"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if !waitFor(t, 2*time.Second, func() bool { return s.Status().Count == 1 }) {
		t.Fatal("stable frame never saved")
	}

	// The frame stays on screen; it must not be saved again.
	time.Sleep(50 * time.Millisecond)
	if got := s.Status().Count; got != 1 {
		t.Errorf("count = %d after unchanged screen, want 1", got)
	}
	if files := sessionPNGs(t, root); len(files) != 1 {
		t.Errorf("files on disk = %v, want exactly one", files)
	}
	if s.Status().LastPath == "" {
		t.Error("status has no last path after a save")
	}
}

func TestSessionIgnoresUnstableScreen(t *testing.T) {
	root := t.TempDir()
	g := &flipGrabber{imgs: []*image.RGBA{
		solidImage(color.RGBA{R: 40, G: 40, B: 40, A: 255}),
		checkerImage(),
	}}
	s := NewSession(g, testConfig(root))

	if err := s.Start("flicker", "flicker"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	if got := s.Status().Count; got != 0 {
		t.Errorf("count = %d for ever-changing screen, want 0", got)
	}
	if files := sessionPNGs(t, root); len(files) != 0 {
		t.Errorf("files on disk = %v, want none", files)
	}
}

func TestSessionSavesNewStateAfterChange(t *testing.T) {
	root := t.TempDir()
	g := &stubGrabber{img: solidImage(color.RGBA{R: 40, G: 40, B: 40, A: 255})}
	s := NewSession(g, testConfig(root))

	if err := s.Start("change", "change"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if !waitFor(t, 2*time.Second, func() bool { return s.Status().Count == 1 }) {
		t.Fatal("first state never saved")
	}

	g.set(checkerImage())
	if !waitFor(t, 2*time.Second, func() bool { return s.Status().Count == 2 }) {
		t.Fatal("second state never saved")
	}
}

func TestSessionStartStopIdempotent(t *testing.T) {
	root := t.TempDir()
	g := &stubGrabber{img: solidImage(color.RGBA{R: 40, G: 40, B: 40, A: 255})}
	s := NewSession(g, testConfig(root))

	if err := s.Start("a", "a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start("b", "b"); err != nil {
		t.Fatalf("duplicate Start: %v", err)
	}
	if got := s.Status().Label; got != "a" {
		t.Errorf("duplicate Start replaced label: got %q", got)
	}

	s.Stop()
	if s.Running() {
		t.Error("running after Stop")
	}
	s.Stop() // must not panic or block
}

func TestSessionSurvivesGrabErrors(t *testing.T) {
	s := NewSession(errGrabber{}, testConfig(t.TempDir()))

	if err := s.Start("err", "err"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	if got := s.Status().Count; got != 0 {
		t.Errorf("count = %d with failing grabber, want 0", got)
	}
}

func TestLoopExitsBeforeFirstTickWhenCancelled(t *testing.T) {
	// A Stop that lands before the loop's first tick (e.g. during a long
	// reconciliation) must not cost another grab.
	g := &countingGrabber{img: solidImage(color.RGBA{R: 40, G: 40, B: 40, A: 255})}
	s := NewSession(g, testConfig(t.TempDir()))

	policy := fingerprint.NewPolicy(8, 0)
	w := &worker{
		policy:  policy,
		arch:    archive.New(t.TempDir(), policy),
		tracker: NewTracker(policy, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.loop(ctx, w, make(chan struct{}))

	if got := g.count(); got != 0 {
		t.Errorf("grabs after pre-loop cancellation = %d, want 0", got)
	}
}

func TestTickAfterCancellationPublishesNothing(t *testing.T) {
	// When cancellation lands mid-tick the shared snapshot may already
	// belong to a successor session, so this tick must not publish into it.
	ctx, cancel := context.WithCancel(context.Background())
	g := &cancellingGrabber{cancel: cancel, img: solidImage(color.RGBA{R: 40, G: 40, B: 40, A: 255})}
	s := NewSession(g, testConfig(t.TempDir()))

	policy := fingerprint.NewPolicy(8, 0)
	w := &worker{
		policy:  policy,
		arch:    archive.New(t.TempDir(), policy),
		tracker: NewTracker(policy, 1),
	}

	_ = s.tick(ctx, w)

	if st := s.Status(); st.Count != 0 || st.LastPath != "" {
		t.Errorf("cancelled tick published status: %+v", st)
	}
}

func TestSessionIsolatesObserverPanics(t *testing.T) {
	root := t.TempDir()
	g := &stubGrabber{img: solidImage(color.RGBA{R: 40, G: 40, B: 40, A: 255})}
	s := NewSession(g, testConfig(root))
	s.SetObserver(func(Status) { panic("observer bug") })

	if err := s.Start("panic", "panic"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if !waitFor(t, 2*time.Second, func() bool { return s.Status().Count == 1 }) {
		t.Fatal("loop died after observer panic")
	}
}
