// Package audio records session audio to WAV files with silence gating.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"framekeep/internal/syncx"
)

// Defaults mirror the capture hardware we target.
const (
	DefaultSampleRate = 44100
	DefaultChannels   = 2
	DefaultBlockSize  = 2048

	// Writing suspends after SilenceMinDuration below the threshold and
	// resumes above the resume level (hysteresis keeps it from flapping).
	DefaultSilenceThresholdDB = -45.0
	DefaultSilenceResumeDB    = -40.0
	DefaultSilenceMinDuration = 3 * time.Second

	// MinLevelDB is the VU meter floor.
	MinLevelDB = -60.0

	chunkBuffer = 64
	stopTimeout = 5 * time.Second
)

// Config holds recorder tuning. Zero fields fall back to defaults.
type Config struct {
	OutputRoot         string
	SampleRate         int
	Channels           int
	BlockSize          int
	SilenceThresholdDB float64
	SilenceResumeDB    float64
	SilenceMinDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.OutputRoot == "" {
		c.OutputRoot = filepath.Join("output", "audio")
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = DefaultChannels
	}
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.SilenceThresholdDB == 0 {
		c.SilenceThresholdDB = DefaultSilenceThresholdDB
	}
	if c.SilenceResumeDB == 0 {
		c.SilenceResumeDB = DefaultSilenceResumeDB
	}
	if c.SilenceMinDuration <= 0 {
		c.SilenceMinDuration = DefaultSilenceMinDuration
	}
	return c
}

// Status is an immutable snapshot of the recorder.
type Status struct {
	LevelDB         float64
	StreamActive    bool
	Writing         bool
	RecordedSeconds float64
	Path            string
	Label           string
}

// Observer receives status snapshots.
type Observer func(Status)

// Recorder captures the default input device to a WAV file, one file per
// session, pausing the writer during prolonged silence.
type Recorder struct {
	cfg    Config
	status *syncx.Snapshot[Status]

	mu       sync.Mutex
	running  bool
	observer Observer
	stream   *portaudio.Stream
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRecorder initializes portaudio and creates a recorder. Callers must
// Close it to release the audio host.
func NewRecorder(cfg Config) (*Recorder, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize audio host: %w", err)
	}
	return &Recorder{
		cfg:    cfg.withDefaults(),
		status: syncx.NewSnapshot(Status{LevelDB: MinLevelDB}),
	}, nil
}

// SetObserver registers the status observer. Pass nil to unregister.
func (r *Recorder) SetObserver(fn Observer) {
	r.mu.Lock()
	r.observer = fn
	r.mu.Unlock()
}

// Status returns the latest snapshot.
func (r *Recorder) Status() Status { return r.status.Get() }

// Start opens the default input stream and begins writing
// <root>/<date>/<slug>/audio_<HHMMSS>.wav. No-op when already running.
func (r *Recorder) Start(label, slug string) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		slog.Debug("audio recorder already running")
		return nil
	}
	r.mu.Unlock()

	dir := filepath.Join(r.cfg.OutputRoot, time.Now().Format("20060102"), slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("audio_%s.wav", time.Now().Format("150405")))

	wav, err := newWavWriter(path, r.cfg.SampleRate, r.cfg.Channels)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}

	buf := make([]float32, r.cfg.BlockSize*r.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(r.cfg.Channels, 0, float64(r.cfg.SampleRate), r.cfg.BlockSize, buf)
	if err != nil {
		wav.Close()
		os.Remove(path)
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		wav.Close()
		os.Remove(path)
		return fmt.Errorf("start input stream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	chunks := make(chan []float32, chunkBuffer)
	done := make(chan struct{})

	r.mu.Lock()
	r.running = true
	r.stream = stream
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	st := r.status.Update(func(st *Status) {
		*st = Status{LevelDB: MinLevelDB, StreamActive: true, Writing: true, Path: path, Label: label}
	})
	r.notify(st)

	go r.readLoop(ctx, stream, buf, chunks)
	go r.writeLoop(ctx, wav, chunks, done)

	slog.Info("audio recording started", "path", path)
	return nil
}

// readLoop pulls blocks off the stream and hands them to the writer,
// dropping blocks when the writer falls behind.
func (r *Recorder) readLoop(ctx context.Context, stream *portaudio.Stream, buf []float32, chunks chan<- []float32) {
	defer close(chunks)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if ctx.Err() == nil {
				slog.Debug("audio read error", "error", err)
			}
			return
		}

		chunk := append([]float32(nil), buf...)
		select {
		case chunks <- chunk:
		default:
			slog.Debug("audio buffer full, dropping block")
		}
	}
}

// writeLoop meters each block and appends it to the WAV file unless the
// recorder is suspended for silence.
func (r *Recorder) writeLoop(ctx context.Context, wav *wavWriter, chunks <-chan []float32, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := wav.Close(); err != nil {
			slog.Warn("failed to finalize wav file", "error", err)
		}
	}()

	writing := true
	var silenceStart time.Time

	for chunk := range chunks {
		level := levelDB(chunk)

		switch {
		case level < r.cfg.SilenceThresholdDB:
			if silenceStart.IsZero() {
				silenceStart = time.Now()
			} else if writing && time.Since(silenceStart) >= r.cfg.SilenceMinDuration {
				writing = false
				slog.Debug("suspending audio writer during silence", "level_db", level)
			}
		case level > r.cfg.SilenceResumeDB:
			if !writing {
				slog.Debug("resuming audio writer", "level_db", level)
			}
			writing = true
			silenceStart = time.Time{}
		}

		if writing {
			if err := wav.WriteSamples(chunk); err != nil {
				slog.Error("audio write failed", "error", err)
				return
			}
		}

		st := r.status.Update(func(st *Status) {
			st.LevelDB = level
			st.Writing = writing
			st.RecordedSeconds = wav.Seconds()
		})
		r.notify(st)
	}
}

// Stop ends the recording and finalizes the file. Idempotent; waits a
// bounded time for the writer to flush.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stream, cancel, done := r.stream, r.cancel, r.done
	r.stream = nil
	r.mu.Unlock()

	cancel()
	if err := stream.Stop(); err != nil {
		slog.Debug("audio stream stop error", "error", err)
	}
	stream.Close()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		slog.Warn("audio writer did not stop within timeout")
	}

	st := r.status.Update(func(st *Status) {
		st.StreamActive = false
		st.Writing = false
		st.LevelDB = MinLevelDB
	})
	slog.Info("audio recording stopped", "seconds", st.RecordedSeconds, "path", st.Path)
	r.notify(st)
}

// Close stops any active recording and releases the audio host.
func (r *Recorder) Close() {
	r.Stop()
	if err := portaudio.Terminate(); err != nil {
		slog.Debug("audio host terminate error", "error", err)
	}
}

func (r *Recorder) notify(st Status) {
	r.mu.Lock()
	fn := r.observer
	r.mu.Unlock()
	if fn == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("audio status observer panicked", "panic", rec)
		}
	}()
	fn(st)
}

// levelDB computes the RMS level of a block in dBFS, floored at MinLevelDB.
func levelDB(samples []float32) float64 {
	if len(samples) == 0 {
		return MinLevelDB
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms <= 0 {
		return MinLevelDB
	}
	db := 20 * math.Log10(rms)
	if db < MinLevelDB {
		return MinLevelDB
	}
	return db
}
