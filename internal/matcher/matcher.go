// Package matcher decides whether a face embedding belongs to an enrolled
// identity.
package matcher

import (
	"math"

	"github.com/andresmejia3/faceroll/internal/types"
)

// DefaultThreshold is the face_recognition library's default tolerance.
const DefaultThreshold = 0.6

// UnknownLabel is drawn for faces that match nobody.
const UnknownLabel = "unknown"

// Result is the outcome of matching one query embedding.
type Result struct {
	Known    bool
	Name     string
	Index    int     // gallery position of the match, -1 when unknown
	Distance float64 // distance to the matched entry, 0 when unknown
}

// Label returns the identity name, or UnknownLabel.
func (r Result) Label() string {
	if !r.Known {
		return UnknownLabel
	}
	return r.Name
}

var unknown = Result{Index: -1}

// Matcher compares embeddings with a fixed Euclidean threshold.
type Matcher struct {
	threshold float64
}

// New returns a Matcher. A non-positive threshold falls back to DefaultThreshold.
func New(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold returns the configured matching threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match returns the first entry, in gallery order, whose distance to query is
// below the threshold. A closer entry further down the gallery does not win.
func (m *Matcher) Match(query types.Embedding, entries []types.GalleryEntry) Result {
	for i, e := range entries {
		d := Distance(e.Embedding, query)
		if d < m.threshold {
			return Result{Known: true, Name: e.Name, Index: i, Distance: d}
		}
	}
	return unknown
}

// Compare reports, for each known embedding, whether it matches candidate.
func (m *Matcher) Compare(known []types.Embedding, candidate types.Embedding) []bool {
	matches := make([]bool, len(known))
	for i, k := range known {
		matches[i] = Distance(k, candidate) < m.threshold
	}
	return matches
}

// Distance is the Euclidean distance between two embeddings.
func Distance(a, b types.Embedding) float64 {
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// Distances returns the distance from query to every entry, in gallery order.
func Distances(entries []types.GalleryEntry, query types.Embedding) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = Distance(e.Embedding, query)
	}
	return out
}
