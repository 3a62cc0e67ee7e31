package knowledge

import (
	"time"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
)

// Visit is the sector snapshot recorded when a movement completes.
type Visit struct {
	SectorID  int
	Adjacency []int
	Position  graph.Position
	Timestamp time.Time
	Port      *PortSummary
}

// Upsert applies a visit to k. When the existing entry already has the same
// adjacency (order-sensitive) and timestamp, it returns false and k itself.
// Otherwise it returns true and a new knowledge set; k is never modified.
func Upsert(k *MapKnowledge, v Visit) (bool, *MapKnowledge) {
	ts := v.Timestamp.UTC()
	if existing := k.Entry(v.SectorID); existing != nil {
		if sameAdjacency(existing.AdjacentSectors, v.Adjacency) &&
			existing.LastVisited != nil && existing.LastVisited.Equal(ts) {
			return false, k
		}
	}

	out := k.Clone()
	entry := &Entry{
		AdjacentSectors: append([]int{}, v.Adjacency...),
		Position:        v.Position,
		LastVisited:     &ts,
	}
	if v.Port != nil {
		p := *v.Port
		entry.Port = &p
	} else if prev := out.SectorsVisited[v.SectorID]; prev != nil {
		entry.Port = prev.Port
	}
	out.SectorsVisited[v.SectorID] = entry

	sector := v.SectorID
	out.CurrentSector = &sector
	updated := ts
	out.LastUpdate = &updated
	out.TotalSectorsVisited = max(out.TotalSectorsVisited, len(out.SectorsVisited))
	return true, out
}

func sameAdjacency(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
