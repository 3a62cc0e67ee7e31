// Package knowledge models an actor's partial view of the sector graph and
// the pure transforms over it: normalization of stored blobs, personal and
// corporation merge, and the visit upsert.
package knowledge

import (
	"sort"
	"time"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
)

// Source tags the provenance of an entry in a merged knowledge set.
type Source string

const (
	SourcePlayer Source = "player"
	SourceCorp   Source = "corp"
	SourceBoth   Source = "both"
)

// PortSummary is the port data remembered from a visit.
type PortSummary struct {
	Code string `json:"code"`
}

// Entry is what a scope remembers about one visited sector.
type Entry struct {
	// AdjacentSectors is the outgoing warp snapshot from the last visit.
	// Empty means the adjacency was never recorded.
	AdjacentSectors []int          `json:"adjacent_sectors"`
	Position        graph.Position `json:"position"`
	LastVisited     *time.Time     `json:"last_visited,omitempty"`
	Port            *PortSummary   `json:"port,omitempty"`
	// Source is only set on merged views.
	Source Source `json:"source,omitempty"`
}

// visitedAt returns LastVisited, treating a missing timestamp as the epoch.
func (e *Entry) visitedAt() time.Time {
	if e == nil || e.LastVisited == nil {
		return time.Unix(0, 0).UTC()
	}
	return *e.LastVisited
}

func (e *Entry) clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	if e.AdjacentSectors != nil {
		c.AdjacentSectors = append([]int(nil), e.AdjacentSectors...)
	}
	if e.LastVisited != nil {
		t := *e.LastVisited
		c.LastVisited = &t
	}
	if e.Port != nil {
		p := *e.Port
		c.Port = &p
	}
	return &c
}

// MapKnowledge is one scope's knowledge of the universe.
type MapKnowledge struct {
	SectorsVisited      map[int]*Entry `json:"sectors_visited"`
	TotalSectorsVisited int            `json:"total_sectors_visited"`
	CurrentSector       *int           `json:"current_sector,omitempty"`
	LastUpdate          *time.Time     `json:"last_update,omitempty"`
}

// New returns an empty knowledge set.
func New() *MapKnowledge {
	return &MapKnowledge{SectorsVisited: make(map[int]*Entry)}
}

// Clone returns a deep copy. A nil receiver yields an empty set.
func (k *MapKnowledge) Clone() *MapKnowledge {
	out := New()
	if k == nil {
		return out
	}
	for id, e := range k.SectorsVisited {
		out.SectorsVisited[id] = e.clone()
	}
	out.TotalSectorsVisited = k.TotalSectorsVisited
	if k.CurrentSector != nil {
		cs := *k.CurrentSector
		out.CurrentSector = &cs
	}
	if k.LastUpdate != nil {
		t := *k.LastUpdate
		out.LastUpdate = &t
	}
	return out
}

// Visited reports whether the scope has an entry for sectorID.
func (k *MapKnowledge) Visited(sectorID int) bool {
	if k == nil {
		return false
	}
	_, ok := k.SectorsVisited[sectorID]
	return ok
}

// Entry returns the entry for sectorID or nil.
func (k *MapKnowledge) Entry(sectorID int) *Entry {
	if k == nil {
		return nil
	}
	return k.SectorsVisited[sectorID]
}

// SectorIDs returns the visited sector ids in ascending order.
func (k *MapKnowledge) SectorIDs() []int {
	if k == nil {
		return nil
	}
	ids := make([]int, 0, len(k.SectorsVisited))
	for id := range k.SectorsVisited {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Merge combines personal and corporation knowledge into a new set. Every
// entry is tagged with its source. For sectors known to both, the entry with
// the strictly newer last_visited wins; ties keep the personal entry.
// The personal current sector is kept.
func Merge(personal, corp *MapKnowledge) *MapKnowledge {
	out := New()
	if personal != nil {
		for id, e := range personal.SectorsVisited {
			c := e.clone()
			c.Source = SourcePlayer
			out.SectorsVisited[id] = c
		}
		if personal.CurrentSector != nil {
			cs := *personal.CurrentSector
			out.CurrentSector = &cs
		}
	}
	if corp != nil {
		for id, ce := range corp.SectorsVisited {
			pe, both := out.SectorsVisited[id]
			if !both {
				c := ce.clone()
				c.Source = SourceCorp
				out.SectorsVisited[id] = c
				continue
			}
			if ce.visitedAt().After(pe.visitedAt()) {
				c := ce.clone()
				c.Source = SourceBoth
				out.SectorsVisited[id] = c
			} else {
				pe.Source = SourceBoth
			}
		}
	}
	out.LastUpdate = latest(personal, corp)
	out.TotalSectorsVisited = len(out.SectorsVisited)
	return out
}

// TagAsPlayerOnly returns a copy with every entry tagged as personal, used
// when the actor has no corporation knowledge.
func TagAsPlayerOnly(k *MapKnowledge) *MapKnowledge {
	out := k.Clone()
	for _, e := range out.SectorsVisited {
		e.Source = SourcePlayer
	}
	out.TotalSectorsVisited = len(out.SectorsVisited)
	return out
}

func latest(sets ...*MapKnowledge) *time.Time {
	var best *time.Time
	for _, k := range sets {
		if k == nil || k.LastUpdate == nil {
			continue
		}
		if best == nil || k.LastUpdate.After(*best) {
			t := *k.LastUpdate
			best = &t
		}
	}
	return best
}
