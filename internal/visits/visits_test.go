package visits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/events"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
)

type record struct {
	k       *knowledge.MapKnowledge
	version int64
}

// casStore is an in-memory versioned store. forceConflicts makes the next N
// saves fail as if another writer got there first.
type casStore struct {
	mu             sync.Mutex
	data           map[string]record
	saves          int
	forceConflicts int
}

func newCASStore() *casStore { return &casStore{data: make(map[string]record)} }

func (s *casStore) Load(_ context.Context, scope knowledge.Scope) (*knowledge.MapKnowledge, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data[scope.Key()]
	if !ok {
		return knowledge.New(), 0, nil
	}
	return r.k.Clone(), r.version, nil
}

func (s *casStore) Save(_ context.Context, scope knowledge.Scope, k *knowledge.MapKnowledge, expected int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forceConflicts > 0 {
		s.forceConflicts--
		return 0, knowledge.ErrVersionConflict
	}
	cur := s.data[scope.Key()]
	if cur.version != expected {
		return 0, knowledge.ErrVersionConflict
	}
	s.saves++
	s.data[scope.Key()] = record{k: k.Clone(), version: expected + 1}
	return expected + 1, nil
}

func testVisit(sector int) knowledge.Visit {
	return knowledge.Visit{
		SectorID:  sector,
		Adjacency: []int{sector + 1},
		Position:  graph.Position{X: sector},
		Timestamp: time.Unix(1700000000, 0),
	}
}

func TestRecordVisit_Idempotent(t *testing.T) {
	store := newCASStore()
	rec := NewRecorder(store, nil, 3)
	scope := knowledge.CharacterScope("alice")
	ctx := context.Background()

	first, err := rec.RecordVisit(ctx, scope, testVisit(5))
	if err != nil || !first.Updated {
		t.Fatalf("first visit = %+v, %v", first, err)
	}
	second, err := rec.RecordVisit(ctx, scope, testVisit(5))
	if err != nil {
		t.Fatalf("second visit: %v", err)
	}
	if second.Updated {
		t.Error("second identical visit reported an update")
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
	if second.Version != first.Version {
		t.Errorf("version = %d, want %d", second.Version, first.Version)
	}
}

func TestRecordVisit_RetriesConflicts(t *testing.T) {
	store := newCASStore()
	store.forceConflicts = 2
	conflicts := 0
	rec := NewRecorder(store, nil, 3)
	rec.OnConflict = func(knowledge.Scope) { conflicts++ }

	res, err := rec.RecordVisit(context.Background(), knowledge.CharacterScope("alice"), testVisit(1))
	if err != nil {
		t.Fatalf("RecordVisit: %v", err)
	}
	if res.Attempts != 3 || conflicts != 2 {
		t.Errorf("attempts = %d, conflicts = %d; want 3, 2", res.Attempts, conflicts)
	}
}

func TestRecordVisit_ConflictRetriesExhausted(t *testing.T) {
	store := newCASStore()
	store.forceConflicts = 3
	rec := NewRecorder(store, nil, 3)
	_, err := rec.RecordVisit(context.Background(), knowledge.CharacterScope("alice"), testVisit(1))
	if !errors.Is(err, ErrConflictRetriesExhausted) {
		t.Fatalf("err = %v, want ErrConflictRetriesExhausted", err)
	}
}

func TestRecordVisit_NoLostUpdates(t *testing.T) {
	store := newCASStore()
	rec := NewRecorder(store, nil, 1)
	scope := knowledge.CorporationScope("acme")

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(sector int) {
			defer wg.Done()
			if _, err := rec.RecordVisit(context.Background(), scope, testVisit(sector)); err != nil {
				t.Errorf("sector %d: %v", sector, err)
			}
		}(i)
	}
	wg.Wait()

	k, _, _ := store.Load(context.Background(), scope)
	if len(k.SectorsVisited) != 50 || k.TotalSectorsVisited != 50 {
		t.Errorf("sectors = %d, total = %d; want 50", len(k.SectorsVisited), k.TotalSectorsVisited)
	}
	if n := rec.locks.size(); n != 0 {
		t.Errorf("lock table size = %d, want 0", n)
	}
}

func TestRecordVisit_PublishesOnUpdate(t *testing.T) {
	hub := events.NewHub(4)
	_, ch := hub.Subscribe("character:alice")
	rec := NewRecorder(newCASStore(), hub, 3)
	scope := knowledge.CharacterScope("alice")

	rec.RecordVisit(context.Background(), scope, testVisit(3))
	rec.RecordVisit(context.Background(), scope, testVisit(3))

	if len(ch) != 1 {
		t.Fatalf("events = %d, want 1", len(ch))
	}
	u := <-ch
	if u.SectorID != 3 || u.Version != 1 || u.TotalSectorsVisited != 1 {
		t.Errorf("event = %+v", u)
	}
}

func TestRecordVisit_InvalidScope(t *testing.T) {
	rec := NewRecorder(newCASStore(), nil, 3)
	if _, err := rec.RecordVisit(context.Background(), knowledge.CharacterScope(""), testVisit(1)); err == nil {
		t.Error("expected error for empty scope id")
	}
}

type members struct {
	chars   map[string]knowledge.Character
	current map[string]int
}

func (m *members) Character(_ context.Context, id string) (knowledge.Character, error) {
	ch, ok := m.chars[id]
	if !ok {
		return knowledge.Character{}, knowledge.ErrUnknownCharacter
	}
	return ch, nil
}

func (m *members) SetCurrentSector(_ context.Context, id string, sector int) error {
	m.current[id] = sector
	return nil
}

func newRouter(t *testing.T) (*Router, *casStore, *members) {
	t.Helper()
	u := graph.NewUniverse()
	u.AddSector(1, graph.Position{X: 0, Y: 0}, "core")
	u.AddSector(2, graph.Position{X: 1, Y: 0}, "core")
	u.AddWarp(1, 2, true, false)
	u.SetPort(2, "BBS")
	m := &members{
		chars: map[string]knowledge.Character{
			"alice": {ID: "alice", CorporationID: "acme"},
			"solo":  {ID: "solo"},
		},
		current: map[string]int{},
	}
	store := newCASStore()
	return NewRouter(NewRecorder(store, nil, 3), u, m), store, m
}

func TestRouter_RoutesByOwnership(t *testing.T) {
	rt, store, m := newRouter(t)
	ctx := context.Background()
	at := time.Unix(1700000000, 0)

	if _, err := rt.RecordMovement(ctx, Movement{CharacterID: "alice", SectorID: 2, At: at}); err != nil {
		t.Fatalf("personal: %v", err)
	}
	if _, err := rt.RecordMovement(ctx, Movement{CharacterID: "alice", SectorID: 1, CorpOwned: true, At: at}); err != nil {
		t.Fatalf("corp: %v", err)
	}

	personal, _, _ := store.Load(ctx, knowledge.CharacterScope("alice"))
	corp, _, _ := store.Load(ctx, knowledge.CorporationScope("acme"))
	if !personal.Visited(2) || personal.Visited(1) {
		t.Errorf("personal sectors = %v, want [2]", personal.SectorIDs())
	}
	if !corp.Visited(1) || corp.Visited(2) {
		t.Errorf("corp sectors = %v, want [1]", corp.SectorIDs())
	}
	e := personal.Entry(2)
	if e.Port == nil || e.Port.Code != "BBS" {
		t.Errorf("port = %+v, want BBS", e.Port)
	}
	if len(e.AdjacentSectors) != 1 || e.AdjacentSectors[0] != 1 {
		t.Errorf("adjacency = %v, want [1]", e.AdjacentSectors)
	}
	if m.current["alice"] != 2 {
		t.Errorf("current sector = %d, want 2 (corp moves must not relocate the character)", m.current["alice"])
	}
}

func TestRouter_Errors(t *testing.T) {
	rt, _, _ := newRouter(t)
	ctx := context.Background()
	if _, err := rt.RecordMovement(ctx, Movement{CharacterID: "alice", SectorID: 99}); !errors.Is(err, graph.ErrUnknownSector) {
		t.Errorf("unknown sector err = %v", err)
	}
	if _, err := rt.RecordMovement(ctx, Movement{CharacterID: "solo", SectorID: 1, CorpOwned: true}); !errors.Is(err, ErrNoCorporation) {
		t.Errorf("corp-owned move without a corporation err = %v, want ErrNoCorporation", err)
	}
	if _, err := rt.RecordMovement(ctx, Movement{CharacterID: "ghost", SectorID: 1}); !errors.Is(err, knowledge.ErrUnknownCharacter) {
		t.Errorf("unknown character err = %v", err)
	}
}
