package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"framekeep/internal/archive"
	"framekeep/internal/fingerprint"
	"framekeep/internal/screen"
	"framekeep/internal/syncx"
)

// Config holds capture session tuning. Zero fields fall back to defaults.
type Config struct {
	// CheckInterval is the tick cadence while no candidate is pending.
	CheckInterval time.Duration
	// StabilityInterval is the faster cadence while confirming a candidate.
	StabilityInterval time.Duration
	// StabilitySamples is the number of consecutive same-state samples
	// required before a frame is persisted.
	StabilitySamples int
	// GridSize is the perceptual hash grid dimension (GridSize^2 bits).
	GridSize int
	// ChangeRatio in [0,1] sets the similarity threshold as a fraction of
	// the perceptual hash bits.
	ChangeRatio float64
	// OutputRoot is the directory screenshots are archived under, one
	// subdirectory per date and session slug.
	OutputRoot string
	// Region selects what to grab; empty means the primary display.
	Region screen.Region
	// StopTimeout bounds how long Stop waits for the worker to end.
	StopTimeout time.Duration
}

// Defaults.
const (
	DefaultCheckInterval     = 2 * time.Second
	DefaultStabilityInterval = 500 * time.Millisecond
	DefaultStabilitySamples  = 3
	DefaultGridSize          = 16
	DefaultChangeRatio       = 0.05
	DefaultStopTimeout       = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.StabilityInterval <= 0 {
		c.StabilityInterval = DefaultStabilityInterval
	}
	if c.StabilitySamples < 1 {
		c.StabilitySamples = DefaultStabilitySamples
	}
	if c.GridSize < 2 {
		c.GridSize = DefaultGridSize
	}
	if c.ChangeRatio < 0 {
		c.ChangeRatio = DefaultChangeRatio
	}
	if c.OutputRoot == "" {
		c.OutputRoot = filepath.Join("output", "screens")
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return c
}

// Session owns one capture loop. The loop goroutine is the sole mutator of
// the archive and tracker; everything external callers read goes through a
// published status snapshot.
type Session struct {
	cfg     Config
	grabber screen.Grabber
	status  *syncx.Snapshot[Status]

	mu       sync.Mutex
	running  bool
	observer Observer
	cancel   context.CancelFunc
	done     chan struct{}
}

// worker bundles the per-session state owned exclusively by one loop
// goroutine. A lagging worker from a timed-out Stop keeps its own archive and
// tracker, and its ticks stop publishing once its context is cancelled, so a
// newer session's state stays untouched.
type worker struct {
	policy  fingerprint.Policy
	arch    *archive.Archive
	tracker *Tracker
}

// NewSession creates a capture session over a grabber.
func NewSession(grabber screen.Grabber, cfg Config) *Session {
	return &Session{
		cfg:     cfg.withDefaults(),
		grabber: grabber,
		status:  syncx.NewSnapshot(Status{}),
	}
}

// SetObserver registers the status observer. Pass nil to unregister.
func (s *Session) SetObserver(fn Observer) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// Status returns the latest published snapshot.
func (s *Session) Status() Status { return s.status.Get() }

// Running reports whether a session is active.
func (s *Session) Running() bool { return s.status.Get().Running }

// Start begins capturing into <root>/<date>/<slug>/. It is a no-op when a
// session is already running. Per-session state is reset and the target
// directory reconciled before the first tick.
func (s *Session) Start(label, slug string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		slog.Debug("capture session already running")
		return nil
	}

	dir := filepath.Join(s.cfg.OutputRoot, time.Now().Format("20060102"), slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("create session directory: %w", err)
	}

	// Policy is rebuilt at every start so config changes take effect.
	policy := fingerprint.NewPolicy(s.cfg.GridSize, s.cfg.ChangeRatio)
	w := &worker{
		policy:  policy,
		arch:    archive.New(dir, policy),
		tracker: NewTracker(policy, s.cfg.StabilitySamples),
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	id := uuid.NewString()
	st := s.status.Update(func(st *Status) {
		*st = Status{SessionID: id, Running: true, Label: label}
	})

	stats, err := w.arch.Reconcile(ctx)
	if err != nil {
		slog.Warn("archive reconciliation failed", "dir", dir, "error", err)
	} else if stats.Scanned > 0 {
		slog.Info("reconciled existing archive",
			"dir", dir, "scanned", stats.Scanned, "kept", stats.Kept,
			"exact_removed", stats.ExactRemoved, "similar_removed", stats.SimilarRemoved,
			"skipped", stats.Skipped)
	}

	go s.loop(ctx, w, s.done)
	slog.Info("screenshot capture started", "dir", dir, "session", id)
	s.notify(st)
	return nil
}

// Stop signals the loop to end and waits up to the configured timeout. It is
// idempotent; after it returns the session is logically stopped even if a
// lagging tick is still unwinding.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(s.cfg.StopTimeout):
		slog.Warn("capture worker did not stop within timeout", "timeout", s.cfg.StopTimeout)
	}

	st := s.status.Update(func(st *Status) { st.Running = false })
	slog.Info("screenshot capture stopped", "count", st.Count)
	s.notify(st)
}

// loop ticks until cancelled. Cadence is the check interval while idle and
// the stability interval while a candidate is pending, each minus the time
// the previous tick spent processing.
func (s *Session) loop(ctx context.Context, w *worker, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		started := time.Now()
		if err := s.tick(ctx, w); err != nil && ctx.Err() == nil {
			slog.Error("screenshot tick failed", "error", err)
		}

		interval := s.cfg.CheckInterval
		if w.tracker.Pending() {
			interval = s.cfg.StabilityInterval
		}
		delay := interval - time.Since(started)
		if delay < 0 {
			delay = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// tick runs one sample: grab, fingerprint, stability check, persist. Errors
// are reported to the caller, logged, and never end the session.
func (s *Session) tick(ctx context.Context, w *worker) error {
	frame, err := s.grabber.Grab(s.cfg.Region)
	if err != nil {
		return fmt.Errorf("grab frame: %w", err)
	}

	exact := fingerprint.ExactHash(frame.Img)
	perceptual, err := fingerprint.Perceptual(frame.Img, w.policy.GridSize())
	if err != nil {
		return fmt.Errorf("perceptual hash: %w", err)
	}

	// Already archived: nothing pending, nothing to save.
	if w.arch.Contains(exact) {
		w.tracker.Reset()
		return nil
	}

	if !w.tracker.Observe(exact, perceptual) {
		return nil
	}

	rec, err := w.arch.Commit(ctx, frame.Img, exact, perceptual, frame.CapturedAt)
	if err != nil {
		return fmt.Errorf("save screenshot: %w", err)
	}
	slog.Debug("saved stable screen", "path", rec.Path, "exact", exact.Short())

	// Stopped mid-tick: the file is on disk and reconciliation picks it up
	// next start, but the shared snapshot may already belong to a successor.
	if ctx.Err() != nil {
		return nil
	}

	st := s.status.Update(func(st *Status) {
		st.Count = w.arch.Count()
		st.LastPath = w.arch.LastPath()
	})
	s.notify(st)
	return nil
}

// notify delivers a snapshot to the observer, isolating the loop from
// observer panics.
func (s *Session) notify(st Status) {
	s.mu.Lock()
	fn := s.observer
	s.mu.Unlock()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("status observer panicked", "panic", r)
		}
	}()
	fn(st)
}
