package resolver

import (
	"math"
	"sort"

	"github.com/joescharf/draftscore/internal/similarity"
)

// Pair is a candidate correspondence between a previous and a current paragraph.
type Pair struct {
	Prev       int // index into the previous slice
	Cur        int // index into the current slice
	Similarity float64
}

// Matcher chooses which previous paragraph each current paragraph inherits its
// identity from. Implementations must be deterministic for identical inputs.
type Matcher interface {
	Match(prev []Previous, cur []string, threshold float64) (matches []Pair, ambiguities []Ambiguity)
}

// GreedyMatcher commits pairs in descending similarity order. Equal
// similarities are broken by position proximity, then by the lower previous
// stable ID, then by the lower current index.
type GreedyMatcher struct {
	Similarity similarity.Func
}

// simEpsilon treats floating point similarities this close as a tie.
const simEpsilon = 1e-9

func (m GreedyMatcher) Match(prev []Previous, cur []string, threshold float64) ([]Pair, []Ambiguity) {
	if len(prev) == 0 || len(cur) == 0 {
		return nil, nil
	}

	simFn := m.Similarity
	pairs := make([]Pair, 0, len(prev)*len(cur))
	if simFn == nil {
		// Tokenize once per paragraph instead of once per pair.
		prevText := make([]similarity.Text, len(prev))
		for i, p := range prev {
			prevText[i] = similarity.NewText(p.Text)
		}
		curText := make([]similarity.Text, len(cur))
		for j, c := range cur {
			curText[j] = similarity.NewText(c)
		}
		for i := range prev {
			for j := range cur {
				pairs = append(pairs, Pair{Prev: i, Cur: j, Similarity: prevText[i].Jaccard(curText[j])})
			}
		}
	} else {
		for i, p := range prev {
			for j, c := range cur {
				pairs = append(pairs, Pair{Prev: i, Cur: j, Similarity: simFn(p.Text, c)})
			}
		}
	}

	sort.SliceStable(pairs, func(a, b int) bool {
		pa, pb := pairs[a], pairs[b]
		if d := pa.Similarity - pb.Similarity; math.Abs(d) > simEpsilon {
			return d > 0
		}
		da, db := distance(pa), distance(pb)
		if da != db {
			return da < db
		}
		if prev[pa.Prev].StableID != prev[pb.Prev].StableID {
			return prev[pa.Prev].StableID < prev[pb.Prev].StableID
		}
		return pa.Cur < pb.Cur
	})

	prevUsed := make([]bool, len(prev))
	curUsed := make([]bool, len(cur))
	var (
		matches     []Pair
		ambiguities []Ambiguity
	)

	for k, p := range pairs {
		if p.Similarity < threshold {
			break
		}
		if prevUsed[p.Prev] || curUsed[p.Cur] {
			continue
		}

		// A later pair with the same similarity that shares a side and is
		// still eligible lost only on tie-break.
		var rivals []int64
		for _, q := range pairs[k+1:] {
			if math.Abs(q.Similarity-p.Similarity) > simEpsilon {
				break
			}
			if prevUsed[q.Prev] || curUsed[q.Cur] {
				continue
			}
			if q.Prev == p.Prev || q.Cur == p.Cur {
				rivals = append(rivals, prev[q.Prev].StableID)
			}
		}
		if len(rivals) > 0 {
			ambiguities = append(ambiguities, Ambiguity{
				Index:      p.Cur,
				StableID:   prev[p.Prev].StableID,
				Similarity: p.Similarity,
				Rivals:     rivals,
			})
		}

		prevUsed[p.Prev] = true
		curUsed[p.Cur] = true
		matches = append(matches, p)
	}
	return matches, ambiguities
}

func distance(p Pair) int {
	d := p.Prev - p.Cur
	if d < 0 {
		return -d
	}
	return d
}
