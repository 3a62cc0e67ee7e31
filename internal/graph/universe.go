package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Position is a sector's offset hex coordinate (column X, row Y).
// It encodes as a two-element JSON array.
type Position struct {
	X int
	Y int
}

func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.X, p.Y})
}

// UnmarshalJSON accepts [x, y] or {"x": .., "y": ..}.
func (p *Position) UnmarshalJSON(b []byte) error {
	var arr []int
	if err := json.Unmarshal(b, &arr); err == nil {
		if len(arr) != 2 {
			return fmt.Errorf("position: want 2 coordinates, got %d", len(arr))
		}
		p.X, p.Y = arr[0], arr[1]
		return nil
	}
	var obj struct {
		X *int `json:"x"`
		Y *int `json:"y"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("position: %w", err)
	}
	if obj.X == nil || obj.Y == nil {
		return fmt.Errorf("position: missing x or y")
	}
	p.X, p.Y = *obj.X, *obj.Y
	return nil
}

// WarpEdge is a directed warp out of a sector.
type WarpEdge struct {
	To        int  `json:"to"`
	TwoWay    bool `json:"two_way"`
	Hyperlane bool `json:"hyperlane"`
}

// Sector is a node of the universe graph. Sectors are immutable once loaded.
type Sector struct {
	ID       int        `json:"id"`
	Position Position   `json:"position"`
	Region   string     `json:"region,omitempty"`
	Warps    []WarpEdge `json:"warps"`
}

// Adjacent returns the destination ids of the sector's warps in edge order.
func (s *Sector) Adjacent() []int {
	out := make([]int, 0, len(s.Warps))
	for _, w := range s.Warps {
		out = append(out, w.To)
	}
	return out
}

// WarpTo returns the outgoing warp to dest, if any.
func (s *Sector) WarpTo(dest int) (WarpEdge, bool) {
	for _, w := range s.Warps {
		if w.To == dest {
			return w, true
		}
	}
	return WarpEdge{}, false
}

// Universe holds the full sector graph in memory plus port codes.
// It is safe for concurrent reads once loading has finished.
type Universe struct {
	// Sectors maps sectorID -> sector
	Sectors map[int]*Sector
	// Ports maps sectorID -> port code (e.g. "BBS")
	Ports map[int]string
}

// NewUniverse creates an empty Universe with initialized maps.
func NewUniverse() *Universe {
	return &Universe{
		Sectors: make(map[int]*Sector),
		Ports:   make(map[int]string),
	}
}

// AddSector registers a sector, replacing position and region if it exists.
func (u *Universe) AddSector(id int, pos Position, region string) *Sector {
	s, ok := u.Sectors[id]
	if !ok {
		s = &Sector{ID: id}
		u.Sectors[id] = s
	}
	s.Position = pos
	s.Region = region
	return s
}

// AddWarp adds a warp from -> to. Two-way warps also add the reverse edge.
// Duplicate edges are ignored.
func (u *Universe) AddWarp(from, to int, twoWay, hyperlane bool) {
	u.addEdge(from, WarpEdge{To: to, TwoWay: twoWay, Hyperlane: hyperlane})
	if twoWay {
		u.addEdge(to, WarpEdge{To: from, TwoWay: true, Hyperlane: hyperlane})
	}
}

func (u *Universe) addEdge(from int, e WarpEdge) {
	s, ok := u.Sectors[from]
	if !ok {
		s = &Sector{ID: from}
		u.Sectors[from] = s
	}
	if _, exists := s.WarpTo(e.To); exists {
		return
	}
	s.Warps = append(s.Warps, e)
}

// SetPort records the port code for a sector.
func (u *Universe) SetPort(sectorID int, code string) {
	u.Ports[sectorID] = code
}

// SectorIDs returns all sector ids in ascending order.
func (u *Universe) SectorIDs() []int {
	ids := make([]int, 0, len(u.Sectors))
	for id := range u.Sectors {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// SectorCount returns the number of sectors.
func (u *Universe) SectorCount(ctx context.Context) (int, error) {
	return len(u.Sectors), nil
}

// FetchSectors implements Repository.
func (u *Universe) FetchSectors(ctx context.Context, ids []int) (map[int]*Sector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[int]*Sector, len(ids))
	for _, id := range ids {
		if s, ok := u.Sectors[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

// FetchSectorsInBounds implements Repository.
func (u *Universe) FetchSectorsInBounds(ctx context.Context, center World, radius float64) (map[int]*Sector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[int]*Sector)
	for id, s := range u.Sectors {
		if ToWorld(s.Position).Distance(center) <= radius {
			out[id] = s
		}
	}
	return out, nil
}

// FetchPortCodes implements Repository.
func (u *Universe) FetchPortCodes(ctx context.Context, ids []int) (map[int]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[int]string)
	for _, id := range ids {
		if code, ok := u.Ports[id]; ok && code != "" {
			out[id] = code
		}
	}
	return out, nil
}
