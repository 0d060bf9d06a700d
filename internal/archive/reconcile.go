package archive

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"framekeep/internal/fingerprint"
)

// Parallelism for fingerprinting pre-existing files on startup.
const scanWorkers = 4

// Stats summarizes one reconciliation pass.
type Stats struct {
	Scanned        int
	Skipped        int
	ExactRemoved   int
	SimilarRemoved int
	Kept           int
}

// Reconcile rebuilds the index from files already in the archive directory.
// Files are processed in sorted order: exact duplicates of an
// earlier-processed file are deleted immediately, then a pruning pass
// removes survivors perceptually similar to an earlier survivor. Files that
// cannot be read or hashed are skipped and left on disk.
func (a *Archive) Reconcile(ctx context.Context) (Stats, error) {
	var stats Stats

	entries, err := os.ReadDir(a.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("scan %s: %w", a.dir, err)
	}

	var paths []string
	for _, ent := range entries {
		if ent.IsDir() || !strings.EqualFold(filepath.Ext(ent.Name()), ".png") {
			continue
		}
		paths = append(paths, filepath.Join(a.dir, ent.Name()))
	}
	sort.Strings(paths)
	stats.Scanned = len(paths)
	if len(paths) == 0 {
		return stats, nil
	}

	type scanned struct {
		rec Record
		err error
	}
	results := make([]scanned, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanWorkers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := a.fingerprintFile(path)
			results[i] = scanned{rec: rec, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	// First pass: index survivors, delete exact duplicates on sight.
	for i, res := range results {
		if res.err != nil {
			stats.Skipped++
			slog.Warn("skipping unreadable screenshot", "path", paths[i], "error", res.err)
			continue
		}
		if a.idx.Contains(res.rec.Exact) {
			// Exact duplicate of an earlier file from a prior run; the
			// earlier record stays, only the extra copy goes.
			stats.ExactRemoved++
			if err := os.Remove(res.rec.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("failed to delete duplicate screenshot", "path", res.rec.Path, "error", err)
			}
			continue
		}
		a.idx.Insert(res.rec)
	}

	// Second pass: prune survivors similar to an earlier-processed record.
	var survivors []Record
	for _, res := range results {
		if res.err == nil {
			if rec, ok := a.idx.Lookup(res.rec.Exact); ok && rec.Path == res.rec.Path {
				survivors = append(survivors, rec)
			}
		}
	}

	var doomed []Record
	var earlier []Record
	for _, rec := range survivors {
		similar := false
		for _, prev := range earlier {
			if a.policy.Similar(prev.Perceptual, rec.Perceptual) {
				similar = true
				break
			}
		}
		earlier = append(earlier, rec)
		if similar {
			doomed = append(doomed, rec)
		}
	}
	for _, rec := range doomed {
		stats.SimilarRemoved++
		a.drop(rec)
	}

	stats.Kept = a.idx.Len()
	return stats, nil
}

// fingerprintFile loads a file and computes both fingerprints.
func (a *Archive) fingerprintFile(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return Record{}, err
	}

	perceptual, err := fingerprint.Perceptual(img, a.policy.GridSize())
	if err != nil {
		return Record{}, err
	}

	return Record{
		Path:       path,
		Exact:      fingerprint.ExactHash(img),
		Perceptual: perceptual,
	}, nil
}
