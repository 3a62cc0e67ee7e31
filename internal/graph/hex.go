package graph

import "math"

// World is a point in continuous map space.
type World struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

var sqrt3 = math.Sqrt(3)

// ToWorld converts an odd-q offset hex coordinate (flat-top hexes of unit
// size) to world space.
func ToWorld(p Position) World {
	return World{
		X: 1.5 * float64(p.X),
		Y: sqrt3 * (float64(p.Y) + 0.5*float64(p.X&1)),
	}
}

// Distance returns the Euclidean distance between two world points.
func (w World) Distance(o World) float64 {
	return math.Hypot(w.X-o.X, w.Y-o.Y)
}
