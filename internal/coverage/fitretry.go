package coverage

import (
	"slices"
	"sort"
)

// FitOutcome tells the caller what to do after a FitRetry transition.
type FitOutcome int

const (
	// FitIdle: no fit request is pending.
	FitIdle FitOutcome = iota
	// FitSatisfied: every target sector is known; the request is cleared.
	FitSatisfied
	// FitProgress: fewer targets are missing than before; keep waiting.
	FitProgress
	// FitRetryFetch: no progress yet; issue another region fetch.
	FitRetryFetch
	// FitAbandoned: too many updates without progress; the request is cleared.
	FitAbandoned
)

func (o FitOutcome) String() string {
	switch o {
	case FitIdle:
		return "idle"
	case FitSatisfied:
		return "satisfied"
	case FitProgress:
		return "progress"
	case FitRetryFetch:
		return "retry_fetch"
	case FitAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// FitRetry tracks a request to fit the map to a set of sectors that may not
// be known yet. A request is abandoned after limit consecutive knowledge
// updates in which the number of missing targets did not decrease.
type FitRetry struct {
	limit       int
	targets     []int
	active      bool
	lastMissing int
	stalls      int
}

// NewFitRetry returns an idle FitRetry.
func NewFitRetry(limit int) *FitRetry {
	if limit <= 0 {
		limit = 5
	}
	return &FitRetry{limit: limit}
}

// Start begins fitting to targets, of which missing are not yet known. A
// different target set resets the counters; restarting the pending set keeps
// them.
func (f *FitRetry) Start(targets []int, missing int) FitOutcome {
	set := append([]int(nil), targets...)
	sort.Ints(set)
	set = slices.Compact(set)

	same := f.active && slices.Equal(set, f.targets)
	if !same {
		f.targets = set
		f.stalls = 0
		f.lastMissing = missing
	}
	if missing <= 0 {
		f.clear()
		return FitSatisfied
	}
	f.active = true
	if missing < f.lastMissing {
		f.lastMissing = missing
	}
	return FitRetryFetch
}

// OnKnowledgeUpdate reports the current number of missing targets.
func (f *FitRetry) OnKnowledgeUpdate(missing int) FitOutcome {
	if !f.active {
		return FitIdle
	}
	if missing <= 0 {
		f.clear()
		return FitSatisfied
	}
	if missing < f.lastMissing {
		f.lastMissing = missing
		f.stalls = 0
		return FitProgress
	}
	f.stalls++
	if f.stalls >= f.limit {
		f.clear()
		return FitAbandoned
	}
	return FitRetryFetch
}

func (f *FitRetry) clear() {
	f.active = false
	f.targets = nil
	f.stalls = 0
	f.lastMissing = 0
}

// Active reports whether a fit request is pending.
func (f *FitRetry) Active() bool { return f.active }

// Targets returns the pending target set.
func (f *FitRetry) Targets() []int { return append([]int(nil), f.targets...) }

// Stalls returns the number of consecutive updates without progress.
func (f *FitRetry) Stalls() int { return f.stalls }
