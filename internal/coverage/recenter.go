package coverage

import "github.com/pipecat-ai/gradient-bang-sub003/internal/graph"

// Recenter keeps focus away from the edges of view. margin is the fraction
// of each half-extent that forms the edge band. When focus is inside the
// band or outside the view, the view is moved (same size) to centre on it.
func Recenter(view Rect, focus graph.World, margin float64) (Rect, bool) {
	halfW, halfH := view.Width()/2, view.Height()/2
	inner := Rect{
		MinX: view.MinX + margin*halfW,
		MinY: view.MinY + margin*halfH,
		MaxX: view.MaxX - margin*halfW,
		MaxY: view.MaxY - margin*halfH,
	}
	if inner.ContainsPoint(focus) {
		return view, false
	}
	return Rect{
		MinX: focus.X - halfW,
		MinY: focus.Y - halfH,
		MaxX: focus.X + halfW,
		MaxY: focus.Y + halfH,
	}, true
}
