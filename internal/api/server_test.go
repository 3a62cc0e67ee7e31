package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/config"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/events"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
)

// memStore is a versioned in-memory knowledge.Store.
type memStore struct {
	mu       sync.Mutex
	data     map[string]*knowledge.MapKnowledge
	versions map[string]int64
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]*knowledge.MapKnowledge), versions: make(map[string]int64)}
}

func (m *memStore) Load(_ context.Context, scope knowledge.Scope) (*knowledge.MapKnowledge, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.data[scope.Key()]; ok {
		return k.Clone(), m.versions[scope.Key()], nil
	}
	return knowledge.New(), 0, nil
}

func (m *memStore) Save(_ context.Context, scope knowledge.Scope, k *knowledge.MapKnowledge, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[scope.Key()] != expected {
		return 0, knowledge.ErrVersionConflict
	}
	m.data[scope.Key()] = k.Clone()
	m.versions[scope.Key()] = expected + 1
	return expected + 1, nil
}

type memMembers struct {
	mu    sync.Mutex
	chars map[string]knowledge.Character
}

func (m *memMembers) Character(_ context.Context, id string) (knowledge.Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.chars[id]
	if !ok {
		return knowledge.Character{}, knowledge.ErrUnknownCharacter
	}
	return ch, nil
}

func (m *memMembers) SetCurrentSector(_ context.Context, id string, sector int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.chars[id]
	if !ok {
		return knowledge.ErrUnknownCharacter
	}
	ch.CurrentSector = &sector
	m.chars[id] = ch
	return nil
}

type failingRepo struct{ *graph.Universe }

func (failingRepo) FetchSectors(context.Context, []int) (map[int]*graph.Sector, error) {
	return nil, errors.New("database is locked")
}

// testUniverse is a chain 1-2-3-4 plus an isolated sector 9.
func testUniverse() *graph.Universe {
	u := graph.NewUniverse()
	for i := 1; i <= 4; i++ {
		u.AddSector(i, graph.Position{X: i - 1}, "core")
	}
	u.AddSector(9, graph.Position{X: 20, Y: 20}, "rim")
	for i := 1; i < 4; i++ {
		u.AddWarp(i, i+1, true, false)
	}
	u.SetPort(2, "BBS")
	return u
}

func newTestServer(t *testing.T, repo graph.Repository) (*Server, *memStore) {
	t.Helper()
	store := newMemStore()
	personal := knowledge.New()
	ts := time.Unix(1700000000, 0).UTC()
	personal.SectorsVisited[1] = &knowledge.Entry{AdjacentSectors: []int{2}, LastVisited: &ts}
	personal.TotalSectorsVisited = 1
	one := 1
	personal.CurrentSector = &one
	store.data[knowledge.CharacterScope("alice").Key()] = personal
	store.versions[knowledge.CharacterScope("alice").Key()] = 1

	members := &memMembers{chars: map[string]knowledge.Character{
		"alice": {ID: "alice", CorporationID: "acme"},
		"bob":   {ID: "bob"},
	}}
	return NewServer(config.Default(), repo, store, members, events.NewHub(8), nil), store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer(t, testUniverse())
	rec := do(t, srv.Handler(), http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeMap(t, rec)
	assert.Equal(t, "sqlite", out["knowledge_backend"])
	assert.EqualValues(t, 0, out["subscribers"])
	assert.EqualValues(t, 5, out["sectors"])

	cached, _ := newTestServer(t, graph.NewCachedRepository(testUniverse(), 10))
	rec = do(t, cached.Handler(), http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out = decodeMap(t, rec)
	assert.EqualValues(t, 5, out["sectors"])
	assert.EqualValues(t, 0, out["cached_sectors"])
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, testUniverse())
	rec := do(t, srv.Handler(), http.MethodOptions, "/api/map/local", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleLocalMap_MatchesSchema(t *testing.T) {
	srv, _ := newTestServer(t, testUniverse())
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/map/local", `{"character_id":"alice","max_hops":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.Bytes()

	schemaRec := do(t, h, http.MethodGet, "/api/map/local/schema", "")
	require.Equal(t, http.StatusOK, schemaRec.Code)
	schema, err := jsonschema.CompileString("local_map.schema.json", schemaRec.Body.String())
	require.NoError(t, err)

	var doc interface{}
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.NoError(t, schema.Validate(doc))

	var payload struct {
		CenterSector int `json:"center_sector"`
		TotalSectors int `json:"total_sectors"`
		TotalVisited int `json:"total_visited"`
		Sectors      []struct {
			ID      int  `json:"id"`
			Visited bool `json:"visited"`
		} `json:"sectors"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, 1, payload.CenterSector)
	assert.Equal(t, 2, payload.TotalSectors)
	assert.Equal(t, 1, payload.TotalVisited)
}

func TestHandleLocalMap_Errors(t *testing.T) {
	srv, _ := newTestServer(t, testUniverse())
	h := srv.Handler()

	cases := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing character", `{"character_id":""}`, http.StatusBadRequest},
		{"unknown character", `{"character_id":"ghost"}`, http.StatusBadRequest},
		{"negative hops", `{"character_id":"alice","max_hops":-1}`, http.StatusBadRequest},
		{"unvisited center", `{"character_id":"alice","center_sector":3}`, http.StatusBadRequest},
		{"no center", `{"character_id":"bob"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := do(t, h, http.MethodPost, "/api/map/local", tc.body)
		assert.Equal(t, tc.code, rec.Code, tc.name)
		assert.NotEmpty(t, decodeMap(t, rec)["error"], tc.name)
	}

	failing, _ := newTestServer(t, failingRepo{testUniverse()})
	rec := do(t, failing.Handler(), http.MethodPost, "/api/map/local", `{"character_id":"alice"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandlePath(t *testing.T) {
	srv, _ := newTestServer(t, testUniverse())
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/map/path", `{"from_sector":1,"to_sector":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res graph.PathResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, []int{1, 2, 3, 4}, res.Path)
	assert.Equal(t, 3, res.Distance)

	rec = do(t, h, http.MethodPost, "/api/map/path", `{"from_sector":1,"to_sector":9}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	out := decodeMap(t, rec)
	assert.Equal(t, "no path", out["error"])
	assert.EqualValues(t, 1, out["from_sector"])
	assert.EqualValues(t, 9, out["to_sector"])

	rec = do(t, h, http.MethodPost, "/api/map/path", `{"from_sector":1,"to_sector":77}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/map/path", `{"from_sector":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeMap(t, rec)["error"], "to_sector")
}

func TestHandleVisit_UpdatesKnowledge(t *testing.T) {
	srv, store := newTestServer(t, testUniverse())
	h := srv.Handler()

	body := `{"character_id":"alice","sector_id":2,"timestamp":"2024-01-02T03:04:05Z"}`
	rec := do(t, h, http.MethodPost, "/api/map/visit", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeMap(t, rec)
	assert.Equal(t, true, out["updated"])
	assert.EqualValues(t, 2, out["total_sectors_visited"])
	assert.EqualValues(t, 2, out["version"])

	// Same snapshot and timestamp again is a no-op.
	rec = do(t, h, http.MethodPost, "/api/map/visit", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeMap(t, rec)["updated"])

	k, _, err := store.Load(context.Background(), knowledge.CharacterScope("alice"))
	require.NoError(t, err)
	require.NotNil(t, k.Entry(2))
	assert.Equal(t, []int{1, 3}, k.Entry(2).AdjacentSectors)
	require.NotNil(t, k.Entry(2).Port)
	assert.Equal(t, "BBS", k.Entry(2).Port.Code)

	rec = do(t, h, http.MethodGet, "/api/map/knowledge?character_id=alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var merged knowledge.MapKnowledge
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&merged))
	assert.Len(t, merged.SectorsVisited, 2)
	assert.Equal(t, knowledge.SourcePlayer, merged.SectorsVisited[2].Source)
}

func TestHandleVisit_Errors(t *testing.T) {
	srv, _ := newTestServer(t, testUniverse())
	h := srv.Handler()

	cases := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `nope`, http.StatusBadRequest},
		{"missing sector", `{"character_id":"alice"}`, http.StatusBadRequest},
		{"unknown sector", `{"character_id":"alice","sector_id":77}`, http.StatusBadRequest},
		{"unknown character", `{"character_id":"ghost","sector_id":1}`, http.StatusNotFound},
		{"corp move without corporation", `{"character_id":"bob","sector_id":1,"corp_owned":true}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := do(t, h, http.MethodPost, "/api/map/visit", tc.body)
		assert.Equal(t, tc.code, rec.Code, tc.name)
	}

	rec := do(t, h, http.MethodGet, "/api/map/knowledge", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEvents_StreamsScopeUpdates(t *testing.T) {
	srv, _ := newTestServer(t, testUniverse())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/map/events?character_id=alice"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// A corp-owned move lands in the corporation scope, which alice follows.
	body := bytes.NewBufferString(`{"character_id":"alice","sector_id":3,"corp_owned":true}`)
	resp, err := http.Post(ts.URL+"/api/map/visit", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var u events.MapUpdate
	require.NoError(t, json.Unmarshal(msg, &u))
	assert.Equal(t, "corporation:acme", u.Scope)
	assert.Equal(t, 3, u.SectorID)
	assert.EqualValues(t, 1, u.Version)
}

func TestHandleEvents_RequiresCharacter(t *testing.T) {
	srv, _ := newTestServer(t, testUniverse())
	rec := do(t, srv.Handler(), http.MethodGet, "/api/map/events", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, srv.Handler(), http.MethodGet, "/api/map/events?character_id=ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testUniverse())
	h := srv.Handler()
	do(t, h, http.MethodPost, "/api/map/local", `{"character_id":"alice"}`)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sectormap_local_map_builds_total")
}
