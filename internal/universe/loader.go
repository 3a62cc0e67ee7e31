// Package universe loads universe definition files into a sector graph.
package universe

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/logger"
)

//go:embed universe.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("universe.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

type fileWarp struct {
	To        int  `json:"to"`
	TwoWay    bool `json:"two_way"`
	Hyperlane bool `json:"hyperlane"`
}

type fileSector struct {
	ID       int            `json:"id"`
	Position graph.Position `json:"position"`
	Region   string         `json:"region"`
	Warps    []fileWarp     `json:"warps"`
}

type file struct {
	Sectors []fileSector      `json:"sectors"`
	Ports   map[string]string `json:"ports"`
}

// Load reads and parses a universe file.
func Load(path string) (*graph.Universe, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	u, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Section("Universe")
	logger.Stats("Sectors", len(u.Sectors))
	logger.Stats("Warps", warpCount(u))
	logger.Stats("Ports", len(u.Ports))
	return u, nil
}

// Parse validates b against the universe schema and builds the graph.
// Warps must point at sectors defined in the same file.
func Parse(b []byte) (*graph.Universe, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid universe: %w", err)
	}

	var f file
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	u := graph.NewUniverse()
	for _, fs := range f.Sectors {
		if _, dup := u.Sectors[fs.ID]; dup {
			return nil, fmt.Errorf("duplicate sector %d", fs.ID)
		}
		u.AddSector(fs.ID, fs.Position, fs.Region)
	}
	for _, fs := range f.Sectors {
		for _, w := range fs.Warps {
			if _, ok := u.Sectors[w.To]; !ok {
				return nil, fmt.Errorf("sector %d warps to unknown sector %d", fs.ID, w.To)
			}
			u.AddWarp(fs.ID, w.To, w.TwoWay, w.Hyperlane)
		}
	}
	for key, code := range f.Ports {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("port key %q: %w", key, err)
		}
		if _, ok := u.Sectors[id]; !ok {
			return nil, fmt.Errorf("port in unknown sector %d", id)
		}
		u.SetPort(id, code)
	}
	return u, nil
}

func warpCount(u *graph.Universe) int {
	n := 0
	for _, s := range u.Sectors {
		n += len(s.Warps)
	}
	return n
}
