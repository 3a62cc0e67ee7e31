package coverage

import (
	"sort"
	"time"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
)

type inFlight struct {
	rect    Rect
	started time.Time
}

// State is one client session's coverage bookkeeping: confirmed rectangles
// whose responses were applied, and in-flight requests that expire after a
// TTL. It is not safe for concurrent use. Every time-dependent method takes
// now explicitly.
type State struct {
	ttl       time.Duration
	confirmed []Rect
	inflight  map[string]inFlight
}

// NewState returns an empty State whose in-flight entries expire after ttl.
func NewState(ttl time.Duration) *State {
	return &State{ttl: ttl, inflight: make(map[string]inFlight)}
}

// IsAlreadyCovered reports whether r is inside confirmed coverage or, after
// stale in-flight requests are dropped, inside pending coverage.
func (s *State) IsAlreadyCovered(r Rect, now time.Time) bool {
	if ContainedInUnion(r, s.confirmed) {
		return true
	}
	s.PruneStale(now)
	if len(s.inflight) == 0 {
		return false
	}
	pending := make([]Rect, 0, len(s.inflight))
	for _, f := range s.inflight {
		pending = append(pending, f.rect)
	}
	return ContainedInUnion(r, pending)
}

// BeginFetch records an issued request for r under key.
func (s *State) BeginFetch(key string, r Rect, now time.Time) {
	s.inflight[key] = inFlight{rect: r, started: now}
}

// CompleteFetch promotes a response into confirmed coverage. r is the area
// the response covers; it is confirmed even when the in-flight entry already
// expired. Confirmed rectangles swallowed by r are dropped.
func (s *State) CompleteFetch(key string, r Rect) {
	delete(s.inflight, key)
	if r.Empty() {
		return
	}
	kept := s.confirmed[:0]
	for _, c := range s.confirmed {
		if !r.Contains(c) {
			kept = append(kept, c)
		}
	}
	s.confirmed = append(kept, r)
}

// FailFetch forgets a request so the area can be fetched again.
func (s *State) FailFetch(key string) {
	delete(s.inflight, key)
}

// PruneStale drops in-flight requests older than the TTL and returns how
// many were dropped.
func (s *State) PruneStale(now time.Time) int {
	n := 0
	for key, f := range s.inflight {
		if now.Sub(f.started) >= s.ttl {
			delete(s.inflight, key)
			n++
		}
	}
	return n
}

// Reset forgets all coverage, e.g. after the server reports that knowledge
// was rewritten.
func (s *State) Reset() {
	s.confirmed = nil
	s.inflight = make(map[string]inFlight)
}

// Invalidate drops every confirmed rectangle containing p and returns how
// many were dropped. In-flight requests are left alone.
func (s *State) Invalidate(p graph.World) int {
	kept := s.confirmed[:0]
	for _, c := range s.confirmed {
		if !c.ContainsPoint(p) {
			kept = append(kept, c)
		}
	}
	n := len(s.confirmed) - len(kept)
	s.confirmed = kept
	return n
}

// Confirmed returns a copy of the confirmed rectangles.
func (s *State) Confirmed() []Rect {
	return append([]Rect(nil), s.confirmed...)
}

// Pending returns the keys of in-flight requests in sorted order.
func (s *State) Pending() []string {
	keys := make([]string, 0, len(s.inflight))
	for k := range s.inflight {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
