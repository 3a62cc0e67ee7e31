package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/config"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/events"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/localmap"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/visits"
)

// SectorCounter is implemented by repositories that can report their size.
type SectorCounter interface {
	SectorCount(ctx context.Context) (int, error)
}

// Server is the HTTP API server that connects the sector repository, the
// knowledge store and the local map builder.
type Server struct {
	cfg       *config.Config
	repo      graph.Repository
	members   knowledge.Membership
	localMaps *localmap.Service
	router    *visits.Router
	hub       *events.Hub
	validate  *validator.Validate
	upgrader  websocket.Upgrader
	started   time.Time
}

// NewServer wires a Server. Visit events go to the hub and, when pub is
// non-nil, to pub as well.
func NewServer(cfg *config.Config, repo graph.Repository, store knowledge.Store, members knowledge.Membership, hub *events.Hub, pub events.Publisher) *Server {
	if hub == nil {
		hub = events.NewHub(0)
	}
	var publisher events.Publisher = hub
	if pub != nil {
		publisher = events.Multi{hub, pub}
	}
	rec := visits.NewRecorder(store, publisher, cfg.VisitRetries)
	rec.OnConflict = func(scope knowledge.Scope) {
		knowledgeConflicts.WithLabelValues(string(scope.Kind)).Inc()
	}
	return &Server{
		cfg:       cfg,
		repo:      repo,
		members:   members,
		localMaps: localmap.NewService(store, members, repo, cfg.LocalMap),
		router:    visits.NewRouter(rec, repo, members),
		hub:       hub,
		validate:  newValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		started: time.Now(),
	}
}

// Handler returns the HTTP handler with all API routes and CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/map/local", s.handleLocalMap)
	mux.HandleFunc("GET /api/map/local/schema", s.handleLocalMapSchema)
	mux.HandleFunc("POST /api/map/path", s.handlePath)
	mux.HandleFunc("POST /api/map/visit", s.handleVisit)
	mux.HandleFunc("GET /api/map/knowledge", s.handleKnowledge)
	mux.HandleFunc("GET /api/map/events", s.handleEvents)
	mux.Handle("GET /metrics", promhttp.Handler())
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeServiceError maps domain errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var ve *localmap.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, knowledge.ErrUnknownCharacter):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, graph.ErrUnknownSector), errors.Is(err, visits.ErrNoCorporation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, visits.ErrConflictRetriesExhausted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		log.Printf("[API] repository error: %v", err)
		writeError(w, http.StatusBadGateway, "repository error")
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage renders the first validator error as "field: problem".
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := fe.Field()
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s: failed %s", field, fe.Tag())
}

// --- Handlers ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result := map[string]interface{}{
		"knowledge_backend": s.cfg.KnowledgeBackend,
		"subscribers":       s.hub.Len(),
		"uptime_seconds":    int(time.Since(s.started).Seconds()),
	}
	counted := s.repo
	if w, ok := counted.(interface{ Unwrap() graph.Repository }); ok {
		counted = w.Unwrap()
	}
	if c, ok := counted.(SectorCounter); ok {
		n, err := c.SectorCount(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		result["sectors"] = n
	}
	if c, ok := s.repo.(interface{ Len() int }); ok {
		result["cached_sectors"] = c.Len()
	}
	writeJSON(w, result)
}

func (s *Server) handleLocalMap(w http.ResponseWriter, r *http.Request) {
	var req localmap.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json")
		return
	}

	start := time.Now()
	payload, err := s.localMaps.LocalMap(r.Context(), req)
	mode := "hops"
	if req.Bounds != nil {
		mode = "bounds"
	}
	localMapDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err != nil {
		localMapBuilds.WithLabelValues(mode, resultLabel(err)).Inc()
		writeServiceError(w, err)
		return
	}
	localMapBuilds.WithLabelValues(mode, "ok").Inc()
	localMapSectors.Observe(float64(payload.TotalSectors))

	log.Printf("[API] LocalMap: character=%s center=%d mode=%s sectors=%d visited=%d (%s)",
		req.CharacterID, payload.CenterSector, mode, payload.TotalSectors, payload.TotalVisited,
		time.Since(start).Round(time.Millisecond))
	writeJSON(w, payload)
}

type pathRequest struct {
	FromSector *int `json:"from_sector" validate:"required,gte=0"`
	ToSector   *int `json:"to_sector" validate:"required,gte=0"`
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, 400, validationMessage(err))
		return
	}

	start := time.Now()
	res, err := graph.FindPath(r.Context(), s.repo, *req.FromSector, *req.ToSector)
	pathDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		pathFinds.WithLabelValues(resultLabel(err)).Inc()
		writeServiceError(w, err)
		return
	}
	if !res.Found {
		pathFinds.WithLabelValues("not_found").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":       graph.ErrPathNotFound.Error(),
			"from_sector": *req.FromSector,
			"to_sector":   *req.ToSector,
		})
		return
	}
	pathFinds.WithLabelValues("ok").Inc()
	log.Printf("[API] Path: %d -> %d distance=%d", *req.FromSector, *req.ToSector, res.Distance)
	writeJSON(w, res)
}

type visitRequest struct {
	CharacterID string     `json:"character_id" validate:"required"`
	SectorID    *int       `json:"sector_id" validate:"required,gte=0"`
	CorpOwned   bool       `json:"corp_owned"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

func (s *Server) handleVisit(w http.ResponseWriter, r *http.Request) {
	var req visitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, 400, validationMessage(err))
		return
	}
	m := visits.Movement{
		CharacterID: strings.TrimSpace(req.CharacterID),
		SectorID:    *req.SectorID,
		CorpOwned:   req.CorpOwned,
	}
	if req.Timestamp != nil {
		m.At = *req.Timestamp
	}

	res, err := s.router.RecordMovement(r.Context(), m)
	if err != nil {
		visitsRecorded.WithLabelValues(resultLabel(err)).Inc()
		writeServiceError(w, err)
		return
	}
	if res.Updated {
		visitsRecorded.WithLabelValues("updated").Inc()
	} else {
		visitsRecorded.WithLabelValues("unchanged").Inc()
	}
	writeJSON(w, map[string]interface{}{
		"updated":               res.Updated,
		"version":               res.Version,
		"total_sectors_visited": res.Knowledge.TotalSectorsVisited,
		"current_sector":        res.Knowledge.CurrentSector,
	})
}

func (s *Server) handleKnowledge(w http.ResponseWriter, r *http.Request) {
	characterID := strings.TrimSpace(r.URL.Query().Get("character_id"))
	if characterID == "" {
		writeError(w, 400, "character_id is required")
		return
	}
	k, _, err := s.localMaps.Knowledge(r.Context(), characterID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, k)
}

func resultLabel(err error) string {
	switch {
	case localmap.IsValidation(err):
		return "invalid"
	case errors.Is(err, knowledge.ErrUnknownCharacter), errors.Is(err, graph.ErrUnknownSector),
		errors.Is(err, visits.ErrNoCorporation):
		return "invalid"
	case errors.Is(err, visits.ErrConflictRetriesExhausted):
		return "conflict"
	default:
		return "error"
	}
}
