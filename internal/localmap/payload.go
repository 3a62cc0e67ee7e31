package localmap

import (
	"time"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
)

// SectorView is one sector of a local map payload.
type SectorView struct {
	ID             int  `json:"id"`
	Visited        bool `json:"visited"`
	HopsFromCenter int  `json:"hops_from_center"`
	// DistanceUnknown is set whenever HopsFromCenter is -1.
	DistanceUnknown bool `json:"distance_unknown,omitempty"`
	// Unreachable is set when a full-graph scan proved there is no path from
	// the center; it implies DistanceUnknown.
	Unreachable     bool                   `json:"unreachable,omitempty"`
	Position        graph.Position         `json:"position"`
	Region          string                 `json:"region,omitempty"`
	Port            *knowledge.PortSummary `json:"port"`
	Lanes           []graph.WarpEdge       `json:"lanes"`
	AdjacentSectors []int                  `json:"adjacent_sectors"`
	LastVisited     *time.Time             `json:"last_visited,omitempty"`
	Source          knowledge.Source       `json:"source,omitempty"`
}

// Payload is the local map returned to callers.
type Payload struct {
	CenterSector   int          `json:"center_sector"`
	Sectors        []SectorView `json:"sectors"`
	TotalSectors   int          `json:"total_sectors"`
	TotalVisited   int          `json:"total_visited"`
	TotalUnvisited int          `json:"total_unvisited"`
}

// Sector returns the view for id, if present.
func (p *Payload) Sector(id int) (SectorView, bool) {
	for _, s := range p.Sectors {
		if s.ID == id {
			return s, true
		}
	}
	return SectorView{}, false
}

// IDs returns sector ids in payload order.
func (p *Payload) IDs() []int {
	out := make([]int, 0, len(p.Sectors))
	for _, s := range p.Sectors {
		out = append(out, s.ID)
	}
	return out
}
