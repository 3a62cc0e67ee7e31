package coverage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
)

func rect(minX, minY, maxX, maxY float64) Rect {
	return Rect{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

func TestRect_Subtract(t *testing.T) {
	r := rect(0, 0, 10, 10)

	assert.Equal(t, []Rect{r}, r.Subtract(rect(20, 20, 30, 30)), "disjoint")
	assert.Empty(t, r.Subtract(rect(-1, -1, 11, 11)), "fully covered")

	pieces := r.Subtract(rect(2, 2, 8, 8))
	require.Len(t, pieces, 4)
	area := 0.0
	for _, p := range pieces {
		area += p.Width() * p.Height()
		_, overlaps := p.Intersect(rect(2, 2, 8, 8))
		assert.False(t, overlaps, "piece %v overlaps the hole", p)
	}
	assert.InDelta(t, 100-36, area, 1e-9)
}

func TestContainedInUnion(t *testing.T) {
	halves := []Rect{rect(0, 0, 5, 10), rect(5, 0, 10, 10)}
	assert.True(t, ContainedInUnion(rect(1, 1, 9, 9), halves), "spans two touching rects")
	assert.False(t, ContainedInUnion(rect(1, 1, 11, 9), halves), "sticks out")
	assert.False(t, ContainedInUnion(rect(1, 1, 2, 2), nil))
	assert.False(t, ContainedInUnion(Rect{}, nil), "empty rect is never covered")
	assert.False(t, ContainedInUnion(rect(5, 5, 1, 1), halves), "inverted rect is never covered")

	gap := []Rect{rect(0, 0, 4, 10), rect(6, 0, 10, 10)}
	assert.False(t, ContainedInUnion(rect(1, 1, 9, 9), gap))
}

func TestState_DedupAfterResponse(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewState(10 * time.Second)
	r := rect(0, 0, 10, 10)

	require.False(t, s.IsAlreadyCovered(r, now))
	s.BeginFetch("a", r, now)
	s.CompleteFetch("a", r)

	assert.True(t, s.IsAlreadyCovered(rect(2, 2, 8, 8), now.Add(time.Hour)))
	assert.True(t, s.IsAlreadyCovered(r, now.Add(time.Hour)))
	assert.False(t, s.IsAlreadyCovered(rect(5, 5, 15, 15), now))
	assert.False(t, s.IsAlreadyCovered(rect(3, 3, 3, 3), now), "degenerate rect inside coverage")
	assert.Empty(t, s.Pending())
}

func TestState_InFlightSuppressesUntilStale(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewState(10 * time.Second)
	s.BeginFetch("a", rect(0, 0, 10, 10), now)

	assert.True(t, s.IsAlreadyCovered(rect(1, 1, 9, 9), now.Add(9*time.Second)))
	assert.False(t, s.IsAlreadyCovered(rect(1, 1, 9, 9), now.Add(10*time.Second)))
	assert.Empty(t, s.Pending(), "stale entry pruned")
}

func TestState_ConfirmedAndPendingAreNotCombined(t *testing.T) {
	now := time.Unix(0, 0)
	s := NewState(time.Minute)
	s.CompleteFetch("a", rect(0, 0, 5, 10))
	s.BeginFetch("b", rect(5, 0, 10, 10), now)
	assert.False(t, s.IsAlreadyCovered(rect(1, 1, 9, 9), now))
}

func TestState_FailFetchAllowsRetry(t *testing.T) {
	now := time.Unix(0, 0)
	s := NewState(time.Minute)
	r := rect(0, 0, 1, 1)
	s.BeginFetch("a", r, now)
	require.True(t, s.IsAlreadyCovered(r, now))
	s.FailFetch("a")
	assert.False(t, s.IsAlreadyCovered(r, now))
}

func TestState_CompleteCompactsAndReset(t *testing.T) {
	s := NewState(time.Minute)
	s.CompleteFetch("a", rect(1, 1, 2, 2))
	s.CompleteFetch("b", rect(5, 5, 6, 6))
	s.CompleteFetch("c", rect(0, 0, 3, 3))
	assert.ElementsMatch(t, []Rect{rect(5, 5, 6, 6), rect(0, 0, 3, 3)}, s.Confirmed())

	s.BeginFetch("d", rect(0, 0, 1, 1), time.Unix(0, 0))
	s.Reset()
	assert.Empty(t, s.Confirmed())
	assert.Empty(t, s.Pending())
}

func TestState_InvalidateDropsContainingRects(t *testing.T) {
	s := NewState(time.Minute)
	s.CompleteFetch("a", rect(0, 0, 4, 4))
	s.CompleteFetch("b", rect(10, 10, 14, 14))
	s.BeginFetch("c", rect(0, 0, 1, 1), time.Unix(0, 0))

	assert.Equal(t, 1, s.Invalidate(graph.World{X: 2, Y: 2}))
	assert.Equal(t, []Rect{rect(10, 10, 14, 14)}, s.Confirmed())
	assert.Equal(t, []string{"c"}, s.Pending())
	assert.Equal(t, 0, s.Invalidate(graph.World{X: 50, Y: 50}))
}

func TestFitRetry_AbandonsAfterStalls(t *testing.T) {
	f := NewFitRetry(5)
	require.Equal(t, FitRetryFetch, f.Start([]int{7, 3}, 1))

	for i := 1; i < 5; i++ {
		assert.Equal(t, FitRetryFetch, f.OnKnowledgeUpdate(1), "update %d", i)
	}
	assert.Equal(t, FitAbandoned, f.OnKnowledgeUpdate(1))
	assert.False(t, f.Active())
	assert.Equal(t, FitIdle, f.OnKnowledgeUpdate(1), "no retries after abandonment")
}

func TestFitRetry_ProgressResetsStalls(t *testing.T) {
	f := NewFitRetry(5)
	f.Start([]int{1, 2, 3}, 3)
	for i := 0; i < 4; i++ {
		f.OnKnowledgeUpdate(3)
	}
	assert.Equal(t, 4, f.Stalls())
	assert.Equal(t, FitProgress, f.OnKnowledgeUpdate(2))
	assert.Equal(t, 0, f.Stalls())
	assert.Equal(t, FitSatisfied, f.OnKnowledgeUpdate(0))
	assert.False(t, f.Active())
}

func TestFitRetry_NewTargetsResetCounters(t *testing.T) {
	f := NewFitRetry(5)
	f.Start([]int{1, 2}, 2)
	f.OnKnowledgeUpdate(2)
	f.OnKnowledgeUpdate(2)

	f.Start([]int{2, 1, 1}, 2)
	assert.Equal(t, 2, f.Stalls(), "same set keeps counters")

	f.Start([]int{9}, 1)
	assert.Equal(t, 0, f.Stalls())
	assert.Equal(t, []int{9}, f.Targets())

	assert.Equal(t, FitSatisfied, f.Start([]int{4}, 0))
	assert.False(t, f.Active())
}

func TestFitOutcome_String(t *testing.T) {
	assert.Equal(t, "abandoned", FitAbandoned.String())
	assert.Equal(t, "unknown", FitOutcome(99).String())
}

func TestRecenter(t *testing.T) {
	view := rect(0, 0, 10, 10)

	got, moved := Recenter(view, graph.World{X: 5, Y: 5}, 0.2)
	assert.False(t, moved)
	assert.Equal(t, view, got)

	got, moved = Recenter(view, graph.World{X: 9.5, Y: 5}, 0.2)
	assert.True(t, moved, "inside the edge band")
	assert.Equal(t, graph.World{X: 9.5, Y: 5}, got.Center())
	assert.InDelta(t, 10, got.Width(), 1e-9)

	_, moved = Recenter(view, graph.World{X: 50, Y: 50}, 0.2)
	assert.True(t, moved, "outside the view")
}
