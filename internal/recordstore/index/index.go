// Package index implements the inverted word index of the record store. Each
// lowercase token maps to the set of row numbers holding it, kept as a
// roaring bitmap so that unions and intersections stay cheap for tables of a
// few thousand rows.
//
// An Index is not safe for concurrent use; it is owned by a single store.
package index

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// Index maps tokens to row sets.
type Index struct {
	postings map[string]*roaring.Bitmap
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		postings: make(map[string]*roaring.Bitmap),
	}
}

// Add records that row holds token. Adding the same pair twice is harmless.
func (ix *Index) Add(token string, row uint32) {
	if token == "" {
		return
	}
	bm, ok := ix.postings[token]
	if !ok {
		bm = roaring.New()
		ix.postings[token] = bm
	}
	bm.Add(row)
}

// Lookup returns the rows holding exactly token.
func (ix *Index) Lookup(token string) *roaring.Bitmap {
	if bm, ok := ix.postings[token]; ok {
		return bm.Clone()
	}
	return roaring.New()
}

// Match returns the union of the rows under every token that contains term
// as a substring, so "disp" matches rows indexed under "dispatch".
func (ix *Index) Match(term string) *roaring.Bitmap {
	if term == "" {
		return roaring.New()
	}
	hits := make([]*roaring.Bitmap, 0, 4)
	for token, bm := range ix.postings {
		if strings.Contains(token, term) {
			hits = append(hits, bm)
		}
	}
	switch len(hits) {
	case 0:
		return roaring.New()
	case 1:
		return hits[0].Clone()
	default:
		return roaring.FastOr(hits...)
	}
}

// Search returns the rows matching every term, in ascending row order. No
// terms yields no rows.
func (ix *Index) Search(terms []string) []uint32 {
	if len(terms) == 0 {
		return []uint32{}
	}
	sets := make([]*roaring.Bitmap, 0, len(terms))
	for _, term := range terms {
		hits := ix.Match(term)
		if hits.IsEmpty() {
			return []uint32{}
		}
		sets = append(sets, hits)
	}
	// Start from the smallest set so later intersections shrink fastest.
	sort.Slice(sets, func(i, j int) bool {
		return sets[i].GetCardinality() < sets[j].GetCardinality()
	})
	result := sets[0]
	for _, s := range sets[1:] {
		result.And(s)
		if result.IsEmpty() {
			return []uint32{}
		}
	}
	return result.ToArray()
}

// Terms returns the number of distinct tokens.
func (ix *Index) Terms() int {
	return len(ix.postings)
}

// Tokens returns every distinct token in sorted order.
func (ix *Index) Tokens() []string {
	tokens := make([]string, 0, len(ix.postings))
	for t := range ix.postings {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}

// SizeBytes estimates the serialized size of all posting sets.
func (ix *Index) SizeBytes() uint64 {
	var size uint64
	for token, bm := range ix.postings {
		size += uint64(len(token)) + bm.GetSerializedSizeInBytes()
	}
	return size
}
