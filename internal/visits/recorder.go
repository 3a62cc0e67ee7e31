// Package visits records completed movements into knowledge records.
package visits

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/events"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
)

// ErrConflictRetriesExhausted is returned when every optimistic write attempt
// lost against a concurrent writer. Callers may retry later.
var ErrConflictRetriesExhausted = errors.New("knowledge update conflicted too many times")

// ErrNoCorporation is returned for corporation-owned movements of a
// character without a corporation.
var ErrNoCorporation = errors.New("no corporation")

// Result is the outcome of one recorded visit.
type Result struct {
	Updated   bool
	Knowledge *knowledge.MapKnowledge
	Version   int64
	// Attempts is the number of read-modify-write rounds used.
	Attempts int
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// Recorder applies visits to a knowledge Store. Writes to the same scope are
// serialized; different scopes proceed in parallel.
type Recorder struct {
	store    knowledge.Store
	pub      events.Publisher
	attempts int
	locks    keyedMutex

	// OnConflict, if set, is called for every version conflict.
	OnConflict func(scope knowledge.Scope)
}

// NewRecorder creates a Recorder making at most attempts optimistic writes
// per visit. pub may be nil.
func NewRecorder(store knowledge.Store, pub events.Publisher, attempts int) *Recorder {
	if attempts <= 0 {
		attempts = 3
	}
	return &Recorder{store: store, pub: pub, attempts: attempts}
}

// RecordVisit upserts v into the scope's knowledge. An identical repeat of
// the last visit is a no-op and writes nothing.
func (r *Recorder) RecordVisit(ctx context.Context, scope knowledge.Scope, v knowledge.Visit) (Result, error) {
	if err := scope.Validate(); err != nil {
		return Result{}, err
	}
	unlock := r.locks.lock(scope.Key())
	defer unlock()

	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		k, version, err := r.store.Load(ctx, scope)
		if err != nil {
			return Result{}, fmt.Errorf("load %s: %w", scope, err)
		}
		updated, next := knowledge.Upsert(k, v)
		if !updated {
			return Result{Updated: false, Knowledge: k, Version: version, Attempts: attempt}, nil
		}
		newVersion, err := r.store.Save(ctx, scope, next, version)
		if errors.Is(err, knowledge.ErrVersionConflict) {
			if r.OnConflict != nil {
				r.OnConflict(scope)
			}
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("save %s: %w", scope, err)
		}
		if r.pub != nil {
			r.pub.Publish(events.MapUpdate{
				Scope:               scope.Key(),
				SectorID:            v.SectorID,
				TotalSectorsVisited: next.TotalSectorsVisited,
				Version:             newVersion,
				At:                  v.Timestamp.UTC(),
			})
		}
		return Result{Updated: true, Knowledge: next, Version: newVersion, Attempts: attempt}, nil
	}
	return Result{}, fmt.Errorf("%s: %w", scope, ErrConflictRetriesExhausted)
}
