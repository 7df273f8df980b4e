// Package resolver maps an edited document's paragraphs onto the stable
// paragraph identities of the previous version.
package resolver

import (
	"fmt"
	"sort"

	"github.com/joescharf/draftscore/internal/similarity"
)

// DefaultThreshold is the minimum similarity for a paragraph to keep its identity.
const DefaultThreshold = 0.5

// Previous is one live paragraph of the last saved version, in document order.
type Previous struct {
	StableID int64
	Text     string
}

// Assignment is the identity chosen for one current paragraph.
type Assignment struct {
	Index      int // position in the current document
	StableID   int64
	Text       string
	Similarity float64 // similarity to the inherited paragraph; 0 when minted
	Minted     bool
}

// Ambiguity records a match that was decided by tie-break rather than by
// similarity alone. It is informational and never blocks a save.
type Ambiguity struct {
	Index      int
	StableID   int64
	Similarity float64
	Rivals     []int64 // previous stable IDs of the tied pairs; StableID itself when another current paragraph tied for it
}

func (a Ambiguity) String() string {
	return fmt.Sprintf("paragraph %d matched #%d at %.3f over tied candidates %v", a.Index, a.StableID, a.Similarity, a.Rivals)
}

// Resolution is the resolver's output for one edit cycle.
type Resolution struct {
	Assignments []Assignment // one per current paragraph, in document order
	Removed     []int64      // previous stable IDs without a match, ascending
	NextID      int64        // counter value after minting
	Ambiguities []Ambiguity
}

// Minted returns the stable IDs created in this resolution.
func (r Resolution) Minted() []int64 {
	var ids []int64
	for _, a := range r.Assignments {
		if a.Minted {
			ids = append(ids, a.StableID)
		}
	}
	return ids
}

// Resolver assigns stable identities. The zero value is not usable; use New.
type Resolver struct {
	threshold float64
	matcher   Matcher
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMatcher replaces the default greedy matcher.
func WithMatcher(m Matcher) Option {
	return func(r *Resolver) { r.matcher = m }
}

// WithSimilarity swaps the similarity metric used by the default matcher.
func WithSimilarity(fn similarity.Func) Option {
	return func(r *Resolver) { r.matcher = GreedyMatcher{Similarity: fn} }
}

// New creates a Resolver. threshold must be in (0, 1].
func New(threshold float64, opts ...Option) (*Resolver, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("similarity threshold must be in (0, 1], got %v", threshold)
	}
	r := &Resolver{threshold: threshold, matcher: GreedyMatcher{}}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Threshold returns the configured similarity threshold.
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// Resolve maps current paragraphs onto previous stable IDs. Unmatched current
// paragraphs receive IDs starting at nextID in document order; unmatched
// previous IDs are reported as removed.
func (r *Resolver) Resolve(previous []Previous, current []string, nextID int64) Resolution {
	matches, ambiguities := r.matcher.Match(previous, current, r.threshold)

	res := Resolution{
		Assignments: make([]Assignment, len(current)),
		Ambiguities: ambiguities,
	}

	matchedCur := make(map[int]Pair, len(matches))
	matchedPrev := make(map[int]bool, len(matches))
	for _, m := range matches {
		matchedCur[m.Cur] = m
		matchedPrev[m.Prev] = true
	}

	// Never mint an ID at or below one already in use.
	for _, p := range previous {
		if p.StableID >= nextID {
			nextID = p.StableID + 1
		}
	}

	for i, text := range current {
		if m, ok := matchedCur[i]; ok {
			res.Assignments[i] = Assignment{
				Index:      i,
				StableID:   previous[m.Prev].StableID,
				Text:       text,
				Similarity: m.Similarity,
			}
			continue
		}
		res.Assignments[i] = Assignment{Index: i, StableID: nextID, Text: text, Minted: true}
		nextID++
	}
	res.NextID = nextID

	for i, p := range previous {
		if !matchedPrev[i] {
			res.Removed = append(res.Removed, p.StableID)
		}
	}
	sort.Slice(res.Removed, func(a, b int) bool { return res.Removed[a] < res.Removed[b] })

	return res
}
