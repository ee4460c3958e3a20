package gallery

import (
	"math"
	"slices"

	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/coder/hnsw"
)

// Conflict is an entry whose nearest other entry carries a different label within the
// match threshold. It usually means a build image picked up the wrong face.
type Conflict struct {
	Index         int
	Label         string
	Neighbor      int
	NeighborLabel string
	Distance      float64
}

// HNSW parameters for galleries too large to scan exhaustively
const (
	auditMaxNeighbors     = 16
	auditEfSearch         = 100
	auditSearchMultiplier = 3
)

// ExactAuditLimit is the largest gallery audited by exhaustive scan. Larger galleries go
// through an HNSW index, which may miss conflicts but never reports a false one.
const ExactAuditLimit = 5000

type neighbor struct {
	index int
	dist  float64
}

// neighborSearch returns up to k entries nearest to entry i, excluding i, closest first
type neighborSearch func(i, k int) []neighbor

// Audit checks every entry against its k nearest other entries.
// It is advisory only and never takes part in Match.
func Audit(g *Gallery, threshold float64, k int) []Conflict {
	if g.Len() < 2 {
		return nil
	}
	search := exactNeighbors(g)
	if g.Len() > ExactAuditLimit {
		search = indexedNeighbors(g)
	}
	return audit(g, threshold, max(k, 1), search)
}

func audit(g *Gallery, threshold float64, k int, search neighborSearch) []Conflict {
	var out []Conflict
	for i := 0; i < g.Len(); i++ {
		for _, n := range search(i, k) {
			if !(n.dist < threshold) {
				break
			}
			if g.labels[n.index] != g.labels[i] {
				out = append(out, Conflict{
					Index:         i,
					Label:         g.labels[i],
					Neighbor:      n.index,
					NeighborLabel: g.labels[n.index],
					Distance:      n.dist,
				})
			}
		}
	}
	return out
}

// exactNeighbors scans every row. Ties keep the lower index first.
func exactNeighbors(g *Gallery) neighborSearch {
	return func(i, k int) []neighbor {
		best := make([]neighbor, 0, k+1)
		for j := 0; j < g.Len(); j++ {
			if j == i {
				continue
			}
			d := types.Distance(g.row(i), g.row(j))
			if math.IsNaN(d) || len(best) == k && !(d < best[k-1].dist) {
				continue
			}
			at := len(best)
			for at > 0 && d < best[at-1].dist {
				at--
			}
			best = slices.Insert(best, at, neighbor{index: j, dist: d})
			if len(best) > k {
				best = best[:k]
			}
		}
		return best
	}
}

// indexedNeighbors proposes candidates from an HNSW graph and ranks them by exact distance
func indexedNeighbors(g *Gallery) neighborSearch {
	graph := hnsw.NewGraph[int]()
	graph.M = auditMaxNeighbors
	graph.Ml = 1.0 / float64(auditMaxNeighbors)
	graph.EfSearch = auditEfSearch
	graph.Distance = hnsw.EuclideanDistance
	for i := 0; i < g.Len(); i++ {
		graph.Add(hnsw.MakeNode(i, []float32(g.row(i))))
	}

	return func(i, k int) []neighbor {
		var out []neighbor
		for _, n := range graph.Search([]float32(g.row(i)), (k+1)*auditSearchMultiplier) {
			if n.Key == i {
				continue
			}
			if d := types.Distance(g.row(i), g.row(n.Key)); !math.IsNaN(d) {
				out = append(out, neighbor{index: n.Key, dist: d})
			}
		}
		slices.SortStableFunc(out, func(a, b neighbor) int {
			switch {
			case a.dist < b.dist:
				return -1
			case a.dist > b.dist:
				return 1
			}
			return a.index - b.index
		})
		if len(out) > k {
			out = out[:k]
		}
		return out
	}
}
