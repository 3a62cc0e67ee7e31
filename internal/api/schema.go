package api

import (
	_ "embed"
	"net/http"
)

// localMapSchema documents the POST /api/map/local response.
//
//go:embed local_map.schema.json
var localMapSchema []byte

func (s *Server) handleLocalMapSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	w.Write(localMapSchema)
}
