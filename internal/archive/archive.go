package archive

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/corona10/goimagehash"

	"framekeep/internal/fingerprint"
	"framekeep/internal/resilience"
)

// Archive owns one session directory plus the index over its files. It is
// mutated only by the capture loop; callers read state through snapshots
// taken by the session.
type Archive struct {
	dir      string
	policy   fingerprint.Policy
	idx      *Index
	lastPath string
}

// New creates an archive over dir. The directory is not scanned until
// Reconcile is called.
func New(dir string, policy fingerprint.Policy) *Archive {
	return &Archive{
		dir:    dir,
		policy: policy,
		idx:    NewIndex(policy),
	}
}

// Count returns the number of distinct archived states. Eviction decrements
// it; a replacement save leaves it unchanged.
func (a *Archive) Count() int { return a.idx.Len() }

// LastPath returns the most recently saved file, or "" if none survives.
func (a *Archive) LastPath() string { return a.lastPath }

// Contains reports whether a frame with this exact fingerprint is archived.
func (a *Archive) Contains(e fingerprint.Exact) bool { return a.idx.Contains(e) }

// Commit persists a confirmed frame. Any record with the same exact
// fingerprint or a policy-similar perceptual fingerprint is evicted first,
// so the archive always holds one representative per visual state.
func (a *Archive) Commit(ctx context.Context, img image.Image, e fingerprint.Exact, p *goimagehash.ExtImageHash, capturedAt time.Time) (Record, error) {
	a.evict(e, p)

	name := fmt.Sprintf("screenshot_%s_%06d.png", capturedAt.Format("150405"), capturedAt.Nanosecond()/1000)
	path := filepath.Join(a.dir, name)

	err := resilience.Retry(ctx, resilience.FileRetryConfig(), func() error {
		return writePNG(path, img)
	})
	if err != nil {
		return Record{}, fmt.Errorf("write %s: %w", path, err)
	}

	rec := Record{Path: path, Exact: e, Perceptual: p}
	a.idx.Insert(rec)
	a.lastPath = path
	return rec, nil
}

// evict removes records superseded by a new frame: the same exact
// fingerprint plus anything the policy judges perceptually similar.
func (a *Archive) evict(e fingerprint.Exact, p *goimagehash.ExtImageHash) {
	if old, ok := a.idx.Lookup(e); ok {
		a.drop(old)
	}
	for _, old := range a.idx.FindSimilar(p) {
		a.drop(old)
	}
}

// drop removes a record from the index and deletes its file. A missing file
// counts as deleted; any other failure is logged and the record stays
// removed, keeping the index consistent over the disk.
func (a *Archive) drop(rec Record) {
	a.idx.Remove(rec.Exact)
	if err := os.Remove(rec.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to delete superseded screenshot", "path", rec.Path, "error", err)
	}
	if a.lastPath == rec.Path {
		a.lastPath = ""
	}
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
