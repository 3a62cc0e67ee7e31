package redisstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/events"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/visits"
)

// setupTestStore creates a store connected to a miniredis instance.
func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	s, err := NewStore(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestNewStore(t *testing.T) {
	t.Run("connects", func(t *testing.T) {
		s, _ := setupTestStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
	t.Run("rejects empty namespace", func(t *testing.T) {
		_, err := NewStore(&redis.Options{Addr: "localhost:6379"}, "")
		assert.ErrorContains(t, err, "namespace cannot be empty")
	})
}

func TestSchema(t *testing.T) {
	assert.Equal(t, "sectormap:ns:knowledge:character:alice", KnowledgeKey("ns", knowledge.CharacterScope("alice")))
	assert.Equal(t, "sectormap:ns:map_events", MapEventsChannel("ns"))
}

func TestStore_LoadSaveCAS(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()
	scope := knowledge.CorporationScope("acme")

	k, v, err := s.Load(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
	assert.Empty(t, k.SectorsVisited)

	_, k = knowledge.Upsert(k, knowledge.Visit{SectorID: 3, Adjacency: []int{4, 5}, Position: graph.Position{X: 1, Y: 1}, Timestamp: time.Unix(10, 0)})
	v1, err := s.Save(ctx, scope, k, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	_, err = s.Save(ctx, scope, k, 0)
	assert.ErrorIs(t, err, knowledge.ErrVersionConflict)

	got, v, err := s.Load(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, []int{4, 5}, got.Entry(3).AdjacentSectors)
	assert.Equal(t, knowledge.EncodingZstd, mr.HGet(KnowledgeKey("test", scope), fieldEncoding))
}

func TestStore_CorruptVersion(t *testing.T) {
	s, mr := setupTestStore(t)
	scope := knowledge.CharacterScope("bob")
	mr.HSet(KnowledgeKey("test", scope), fieldVersion, "nope")
	_, _, err := s.Load(context.Background(), scope)
	assert.Error(t, err)
}

func TestStore_RecorderNoLostUpdates(t *testing.T) {
	s, _ := setupTestStore(t)
	rec := visits.NewRecorder(s, nil, 3)
	scope := knowledge.CharacterScope("alice")

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(sector int) {
			defer wg.Done()
			_, err := rec.RecordVisit(context.Background(), scope, knowledge.Visit{SectorID: sector, Timestamp: time.Unix(int64(sector), 0)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	k, v, err := s.Load(context.Background(), scope)
	require.NoError(t, err)
	assert.Len(t, k.SectorsVisited, 20)
	assert.Equal(t, int64(20), v)
}

func TestStore_ForwardSkipsOwnEvents(t *testing.T) {
	a, mr := setupTestStore(t)
	b, err := NewStore(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	hub := events.NewHub(8)
	_, ch := hub.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready, errCh := b.Forward(ctx, hub)
	select {
	case <-ready:
	case err := <-errCh:
		t.Fatalf("Forward: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not ready")
	}

	b.Publish(events.MapUpdate{Scope: "character:b", SectorID: 1})
	a.Publish(events.MapUpdate{Scope: "character:a", SectorID: 2})

	require.Eventually(t, func() bool { return len(ch) == 1 }, 2*time.Second, 10*time.Millisecond)
	u := <-ch
	assert.Equal(t, 2, u.SectorID)
	assert.Equal(t, "character:a", u.Scope)
}
