// Package archive maintains the on-disk screenshot archive and its in-memory
// index. The index holds at most one record per visually distinct screen
// state; a record exists exactly as long as its backing file.
package archive

import (
	"sort"

	"github.com/corona10/goimagehash"

	"framekeep/internal/fingerprint"
)

// Record ties a saved file to both of its fingerprints.
type Record struct {
	Path       string
	Exact      fingerprint.Exact
	Perceptual *goimagehash.ExtImageHash
}

// Index maps exact fingerprints to saved records.
type Index struct {
	policy  fingerprint.Policy
	records map[fingerprint.Exact]Record
}

// NewIndex creates an empty index bound to a similarity policy.
func NewIndex(policy fingerprint.Policy) *Index {
	return &Index{
		policy:  policy,
		records: make(map[fingerprint.Exact]Record),
	}
}

// Len returns the number of indexed records.
func (x *Index) Len() int { return len(x.records) }

// Lookup returns the record for an exact fingerprint.
func (x *Index) Lookup(e fingerprint.Exact) (Record, bool) {
	rec, ok := x.records[e]
	return rec, ok
}

// Contains reports whether an exact fingerprint is indexed.
func (x *Index) Contains(e fingerprint.Exact) bool {
	_, ok := x.records[e]
	return ok
}

// FindSimilar returns all records whose perceptual fingerprint the policy
// judges similar to p. Linear scan; archives stay small within a session.
func (x *Index) FindSimilar(p *goimagehash.ExtImageHash) []Record {
	var matches []Record
	for _, rec := range x.records {
		if x.policy.Similar(rec.Perceptual, p) {
			matches = append(matches, rec)
		}
	}
	return matches
}

// Insert adds or replaces a record.
func (x *Index) Insert(rec Record) {
	x.records[rec.Exact] = rec
}

// Remove drops a record by exact fingerprint.
func (x *Index) Remove(e fingerprint.Exact) {
	delete(x.records, e)
}

// Records returns all records sorted by path for stable iteration.
func (x *Index) Records() []Record {
	recs := make([]Record, 0, len(x.records))
	for _, rec := range x.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Path < recs[j].Path })
	return recs
}
