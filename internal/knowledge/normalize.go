package knowledge

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
)

// Normalize parses a stored knowledge blob. It never fails: malformed input
// yields an empty knowledge set and malformed entries are dropped.
func Normalize(raw []byte) *MapKnowledge {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return New()
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return New()
	}
	return NormalizeValue(v)
}

// NormalizeValue normalizes an already-decoded knowledge value.
func NormalizeValue(v interface{}) *MapKnowledge {
	out := New()
	obj, ok := v.(map[string]interface{})
	if !ok {
		return out
	}

	if sectors, ok := obj["sectors_visited"].(map[string]interface{}); ok {
		for key, rawEntry := range sectors {
			id, ok := toInt(key)
			if !ok {
				continue
			}
			fields, ok := rawEntry.(map[string]interface{})
			if !ok {
				continue
			}
			out.SectorsVisited[id] = normalizeEntry(fields)
		}
	}

	if total, ok := toInt(obj["total_sectors_visited"]); ok && total > 0 {
		out.TotalSectorsVisited = total
	}
	if cs, ok := toInt(obj["current_sector"]); ok {
		out.CurrentSector = &cs
	}
	if t, ok := toTime(obj["last_update"]); ok {
		out.LastUpdate = &t
	}
	return out
}

func normalizeEntry(fields map[string]interface{}) *Entry {
	e := &Entry{}
	if list, ok := fields["adjacent_sectors"].([]interface{}); ok {
		e.AdjacentSectors = make([]int, 0, len(list))
		for _, item := range list {
			if n, ok := toInt(item); ok {
				e.AdjacentSectors = append(e.AdjacentSectors, n)
			}
		}
	}
	if pos, ok := toPosition(fields["position"]); ok {
		e.Position = pos
	}
	if t, ok := toTime(fields["last_visited"]); ok {
		e.LastVisited = &t
	}
	switch p := fields["port"].(type) {
	case map[string]interface{}:
		if code, ok := p["code"].(string); ok && strings.TrimSpace(code) != "" {
			e.Port = &PortSummary{Code: strings.TrimSpace(code)}
		}
	case string:
		if strings.TrimSpace(p) != "" {
			e.Port = &PortSummary{Code: strings.TrimSpace(p)}
		}
	}
	if s, ok := fields["source"].(string); ok {
		switch Source(s) {
		case SourcePlayer, SourceCorp, SourceBoth:
			e.Source = Source(s)
		}
	}
	return e
}

// toInt coerces JSON numbers, integral floats and numeric strings.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt(f)
		}
	case float64:
		return floatToInt(n)
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInt(f)
		}
	}
	return 0, false
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func toPosition(v interface{}) (graph.Position, bool) {
	switch p := v.(type) {
	case []interface{}:
		if len(p) != 2 {
			return graph.Position{}, false
		}
		x, okX := toInt(p[0])
		y, okY := toInt(p[1])
		if okX && okY {
			return graph.Position{X: x, Y: y}, true
		}
	case map[string]interface{}:
		x, okX := toInt(p["x"])
		y, okY := toInt(p["y"])
		if okX && okY {
			return graph.Position{X: x, Y: y}, true
		}
	}
	return graph.Position{}, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// toTime accepts RFC3339-like strings (naive times are UTC) and unix seconds.
func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
	case json.Number, float64, int, int64:
		if secs, ok := toInt(t); ok {
			return time.Unix(int64(secs), 0).UTC(), true
		}
	}
	return time.Time{}, false
}
