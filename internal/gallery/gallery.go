// Package gallery holds the known identities used as the matching reference.
//
// A gallery is two parallel sequences: labels and fixed-width descriptors.
// A label may appear several times. The gallery is read-only once built and
// is matched with an exact nearest-neighbour scan.
package gallery

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/andresmejia3/facewatch/internal/types"
)

// DefaultThreshold is the acceptance distance used when none is configured
const DefaultThreshold = 0.6

var (
	ErrEmptyGallery      = errors.New("gallery is empty")
	ErrDimensionMismatch = errors.New("descriptor dimension does not match gallery")
)

type Gallery struct {
	labels []string
	matrix []float32 // row-major, dim columns
	dim    int
}

// New builds a gallery from entries in storage order. All descriptors must have the same length.
func New(entries []types.GalleryEntry) (*Gallery, error) {
	g := &Gallery{}
	if len(entries) == 0 {
		return g, nil
	}
	g.dim = len(entries[0].Descriptor)
	if g.dim == 0 {
		return nil, fmt.Errorf("entry 0 (%q): %w: empty descriptor", entries[0].Label, ErrDimensionMismatch)
	}
	g.labels = make([]string, 0, len(entries))
	g.matrix = make([]float32, 0, len(entries)*g.dim)
	for i, e := range entries {
		if len(e.Descriptor) != g.dim {
			return nil, fmt.Errorf("entry %d (%q) has %d values, expected %d: %w", i, e.Label, len(e.Descriptor), g.dim, ErrDimensionMismatch)
		}
		g.labels = append(g.labels, e.Label)
		g.matrix = append(g.matrix, e.Descriptor...)
	}
	return g, nil
}

// Len is the number of entries
func (g *Gallery) Len() int { return len(g.labels) }

// Dim is the descriptor length, 0 for an empty gallery
func (g *Gallery) Dim() int { return g.dim }

// Labels returns a copy of the labels in storage order, duplicates included.
func (g *Gallery) Labels() []string { return slices.Clone(g.labels) }

func (g *Gallery) row(i int) types.Descriptor {
	return g.matrix[i*g.dim : (i+1)*g.dim]
}

// Entries returns a copy of every entry in storage order.
func (g *Gallery) Entries() []types.GalleryEntry {
	out := make([]types.GalleryEntry, g.Len())
	for i := range out {
		out[i] = types.GalleryEntry{Label: g.labels[i], Descriptor: slices.Clone(g.row(i))}
	}
	return out
}

// LabelCount is the number of entries carrying one label
type LabelCount struct {
	Label string
	Count int
}

// Counts returns per-label entry counts, labels in first-seen order.
func (g *Gallery) Counts() []LabelCount {
	idx := map[string]int{}
	var out []LabelCount
	for _, l := range g.labels {
		i, ok := idx[l]
		if !ok {
			i = len(out)
			idx[l] = i
			out = append(out, LabelCount{Label: l})
		}
		out[i].Count++
	}
	return out
}

// Relabel returns a copy of the gallery with label from renamed to to, and the number of entries changed.
func (g *Gallery) Relabel(from, to string) (*Gallery, int) {
	ng := &Gallery{labels: slices.Clone(g.labels), matrix: g.matrix, dim: g.dim}
	n := 0
	for i, l := range ng.labels {
		if l == from {
			ng.labels[i] = to
			n++
		}
	}
	return ng, n
}

// Nearest returns the index and distance of the closest entry.
// Ties keep the entry that comes first in storage order. The index is -1 if no distance is comparable.
func (g *Gallery) Nearest(d types.Descriptor) (int, float64, error) {
	if g.Len() == 0 {
		return -1, 0, ErrEmptyGallery
	}
	if len(d) != g.dim {
		return -1, 0, fmt.Errorf("probe has %d values, gallery has %d: %w", len(d), g.dim, ErrDimensionMismatch)
	}
	best, bestDist := -1, math.Inf(1)
	for i := 0; i < g.Len(); i++ {
		dist := types.Distance(d, g.row(i))
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		// NaN or infinite distances only
		return -1, math.NaN(), nil
	}
	return best, bestDist, nil
}

// Match identifies a descriptor. The nearest label is returned if its distance is
// strictly under threshold, otherwise types.Unknown with the same distance.
func (g *Gallery) Match(d types.Descriptor, threshold float64) (string, float64, error) {
	i, dist, err := g.Nearest(d)
	if err != nil {
		return "", 0, err
	}
	if i >= 0 && dist < threshold {
		return g.labels[i], dist, nil
	}
	return types.Unknown, dist, nil
}
