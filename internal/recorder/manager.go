// Package recorder coordinates screen capture and audio recording for one
// session under a shared label.
package recorder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"framekeep/internal/audio"
	"framekeep/internal/capture"
	"framekeep/internal/config"
	"framekeep/internal/screen"
	"framekeep/internal/syncx"
	"framekeep/internal/title"
)

// Status combines the screen and audio snapshots for one session.
type Status struct {
	Running bool
	Label   string
	Slug    string
	Screen  capture.Status
	Audio   audio.Status
}

const eventBuffer = 32

// Manager owns the capture session, the audio recorder, and the
// single-instance lock over the output root.
type Manager struct {
	cfg      *config.Config
	session  *capture.Session
	recorder *audio.Recorder // nil when audio is disabled or unavailable
	lock     *flock.Flock

	status *syncx.Snapshot[Status]
	events chan Status

	mu      sync.Mutex
	running bool
}

// New builds a manager from config. Audio device failures are not fatal;
// the session runs screenshot-only.
func New(cfg *config.Config) *Manager {
	session := capture.NewSession(screen.NewGrabber(), capture.Config{
		CheckInterval:     cfg.Capture.CheckInterval(),
		StabilityInterval: cfg.Capture.StabilityIntervalDuration(),
		StabilitySamples:  cfg.Capture.StabilitySamples,
		GridSize:          cfg.Capture.HashSize,
		ChangeRatio:       cfg.Capture.ChangeThreshold,
		OutputRoot:        cfg.Capture.OutputDir,
		Region:            screen.Region{Rect: cfg.Capture.Rect()},
	})

	var rec *audio.Recorder
	if cfg.Audio.Enabled {
		var err error
		rec, err = audio.NewRecorder(audio.Config{
			OutputRoot:         cfg.Audio.OutputDir,
			SampleRate:         cfg.Audio.SampleRate,
			Channels:           cfg.Audio.Channels,
			BlockSize:          cfg.Audio.BlockSize,
			SilenceThresholdDB: cfg.Audio.SilenceThresholdDB,
			SilenceResumeDB:    cfg.Audio.SilenceResumeDB,
			SilenceMinDuration: cfg.Audio.SilenceMinDuration(),
		})
		if err != nil {
			slog.Error("failed to create audio recorder, continuing without audio", "error", err)
		}
	}

	m := &Manager{
		cfg:      cfg,
		session:  session,
		recorder: rec,
		status:   syncx.NewSnapshot(Status{}),
		events:   make(chan Status, eventBuffer),
	}

	session.SetObserver(func(st capture.Status) {
		m.publish(func(s *Status) { s.Screen = st })
	})
	if rec != nil {
		rec.SetObserver(func(st audio.Status) {
			m.publish(func(s *Status) { s.Audio = st })
		})
	}
	return m
}

// Events returns the channel of combined status snapshots.
func (m *Manager) Events() <-chan Status { return m.events }

// Status returns the latest combined snapshot.
func (m *Manager) Status() Status { return m.status.Get() }

// Start begins a session named by label. Idempotent while running. A file
// lock on the output root keeps two processes from capturing, reconciling,
// and evicting in the same archive.
func (m *Manager) Start(label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		slog.Debug("session already running")
		return nil
	}

	display := title.Sanitize(label)
	slug := title.Slugify(label)

	if err := m.acquireLock(); err != nil {
		return err
	}

	if err := m.session.Start(display, slug); err != nil {
		m.releaseLock()
		return fmt.Errorf("start screen capture: %w", err)
	}
	if m.recorder != nil {
		if err := m.recorder.Start(display, slug); err != nil {
			slog.Warn("audio recording unavailable for this session", "error", err)
		}
	}

	m.running = true
	m.publish(func(s *Status) {
		s.Running = true
		s.Label = display
		s.Slug = slug
	})
	return nil
}

// Stop ends the session. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}

	m.session.Stop()
	if m.recorder != nil {
		m.recorder.Stop()
	}
	m.releaseLock()

	m.running = false
	m.publish(func(s *Status) { s.Running = false })
}

// Close stops any session and releases held resources.
func (m *Manager) Close() {
	m.Stop()
	if m.recorder != nil {
		m.recorder.Close()
	}
}

func (m *Manager) acquireLock() error {
	root := m.cfg.Capture.OutputDir
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create output root: %w", err)
	}

	lock := flock.New(filepath.Join(root, "framekeep.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire output lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("output root %s is in use by another instance", root)
	}
	m.lock = lock
	return nil
}

func (m *Manager) releaseLock() {
	if m.lock == nil {
		return
	}
	if err := m.lock.Unlock(); err != nil {
		slog.Warn("failed to release output lock", "error", err)
	}
	m.lock = nil
}

// publish updates the combined snapshot and emits it without blocking.
func (m *Manager) publish(mutate func(*Status)) {
	st := m.status.Update(mutate)
	select {
	case m.events <- st:
	default:
	}
}
