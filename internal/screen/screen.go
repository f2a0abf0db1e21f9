// Package screen defines the perception side of a module: the Locator
// contract consumed by sessions, and the helpers which turn noisy template
// matches into usable click targets.
package screen

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

const (
	// Radius is both the clustering bucket size and the per-axis distance
	// under which two points are considered the same position.
	Radius = 30
	// ClusterLimit caps how many clusters are kept after Cluster.
	ClusterLimit = 5
	// DefaultThreshold is the minimal match confidence.
	DefaultThreshold = 0.8
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Match is a detected on-screen point with the confidence of the detection.
// Score is only used for ranking.
type Match struct {
	Point
	Score float64 `json:"score"`
}

// Template is a resolved handle of a reference image.
type Template struct {
	Name string
	Path string
}

func (t Template) String() string {
	return t.Name
}

// Locator finds templates on the screen. Implementations must be cheap
// enough to be called in tight retry loops. Absence of a match is not an
// error.
type Locator interface {
	LocateOne(ctx context.Context, tpl Template, threshold float64) (Point, bool, error)
	LocateAll(ctx context.Context, tpl Template, threshold float64) ([]Match, error)
}

// Near reports whether a and b are closer than radius on both axes.
func Near(a, b Point, radius int) bool {
	return abs(a.X-b.X) < radius && abs(a.Y-b.Y) < radius
}

// Cluster merges near-duplicate matches produced by overlapping match
// windows. Matches are grouped into bucket x bucket cells, the best scoring
// match of every cell is kept and at most limit cells are returned, best
// first. A limit <= 0 keeps all cells.
func Cluster(matches []Match, bucket, limit int) []Match {
	if bucket <= 0 {
		bucket = Radius
	}
	type cell struct{ x, y int }
	best := make(map[cell]int, len(matches))
	var out []Match
	for _, m := range matches {
		c := cell{floorDiv(m.X, bucket), floorDiv(m.Y, bucket)}
		i, ok := best[c]
		if !ok {
			best[c] = len(out)
			out = append(out, m)
			continue
		}
		if m.Score > out[i].Score {
			out[i] = m
		}
	}
	slices.SortStableFunc(out, func(a, b Match) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FirstFresh returns the first candidate which is not near any used position.
func FirstFresh(candidates []Match, used *UsedPositions) (Match, bool) {
	for _, c := range candidates {
		if used == nil || !used.Contains(c.Point) {
			return c, true
		}
	}
	return Match{}, false
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
