// Package coverage tracks which parts of the map a client already has, so
// repeated viewport changes do not trigger duplicate local-map fetches.
package coverage

import (
	"fmt"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
)

// eps absorbs floating point noise when slicing rectangles.
const eps = 1e-9

// Rect is an axis-aligned world-space rectangle.
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// RectAround returns the square of half-size radius centred on c.
func RectAround(c graph.World, radius float64) Rect {
	return Rect{MinX: c.X - radius, MinY: c.Y - radius, MaxX: c.X + radius, MaxY: c.Y + radius}
}

func (r Rect) String() string {
	return fmt.Sprintf("[%.2f,%.2f %.2f,%.2f]", r.MinX, r.MinY, r.MaxX, r.MaxY)
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.MaxX-r.MinX <= eps || r.MaxY-r.MinY <= eps
}

func (r Rect) Width() float64  { return r.MaxX - r.MinX }
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Center returns the midpoint of r.
func (r Rect) Center() graph.World {
	return graph.World{X: (r.MinX + r.MaxX) / 2, Y: (r.MinY + r.MaxY) / 2}
}

// Contains reports whether o lies entirely inside r.
func (r Rect) Contains(o Rect) bool {
	return o.MinX >= r.MinX-eps && o.MinY >= r.MinY-eps &&
		o.MaxX <= r.MaxX+eps && o.MaxY <= r.MaxY+eps
}

// ContainsPoint reports whether p lies inside r.
func (r Rect) ContainsPoint(p graph.World) bool {
	return p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

// Intersect returns the overlap of r and o.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	out := Rect{
		MinX: max(r.MinX, o.MinX),
		MinY: max(r.MinY, o.MinY),
		MaxX: min(r.MaxX, o.MaxX),
		MaxY: min(r.MaxY, o.MaxY),
	}
	if out.Empty() {
		return Rect{}, false
	}
	return out, true
}

// Subtract returns the parts of r not covered by o, as at most four
// non-overlapping rectangles.
func (r Rect) Subtract(o Rect) []Rect {
	in, ok := r.Intersect(o)
	if !ok {
		return []Rect{r}
	}
	var out []Rect
	add := func(p Rect) {
		if !p.Empty() {
			out = append(out, p)
		}
	}
	add(Rect{MinX: r.MinX, MinY: r.MinY, MaxX: r.MaxX, MaxY: in.MinY})
	add(Rect{MinX: r.MinX, MinY: in.MaxY, MaxX: r.MaxX, MaxY: r.MaxY})
	add(Rect{MinX: r.MinX, MinY: in.MinY, MaxX: in.MinX, MaxY: in.MaxY})
	add(Rect{MinX: in.MaxX, MinY: in.MinY, MaxX: r.MaxX, MaxY: in.MaxY})
	return out
}

// ContainedInUnion reports whether r is fully covered by the union of rects.
// An empty r is never covered, so callers fall through to a fetch.
func ContainedInUnion(r Rect, rects []Rect) bool {
	if r.Empty() {
		return false
	}
	rest := []Rect{r}
	for _, c := range rects {
		var next []Rect
		for _, piece := range rest {
			next = append(next, piece.Subtract(c)...)
		}
		rest = next
		if len(rest) == 0 {
			return true
		}
	}
	return false
}
