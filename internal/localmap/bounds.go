package localmap

import (
	"context"
	"fmt"
	"sort"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
)

// BuildBounds returns every visited sector within radius world units of
// focus, nearest first, plus their unvisited neighbours as fog, capped at
// maxSectors. Hop distances of visited sectors are measured from center over
// the full graph; fog sectors carry an unknown distance.
func (b *Builder) BuildBounds(ctx context.Context, center int, focus graph.World, radius float64, maxSectors int, k *knowledge.MapKnowledge) (*Payload, error) {
	if maxSectors <= 0 {
		return nil, &ValidationError{Field: "max_sectors", Message: "must be greater than 0"}
	}
	r := newRegion(center, k)

	inBounds, err := b.repo.FetchSectorsInBounds(ctx, focus, radius)
	if err != nil {
		return nil, fmt.Errorf("fetch sectors in bounds: %w", err)
	}
	for id, row := range inBounds {
		r.rows[id] = row
	}

	var visited []int
	for id := range inBounds {
		if r.visited(id) {
			visited = append(visited, id)
		}
	}
	dist := func(id int) float64 {
		p, _ := r.position(id)
		return graph.ToWorld(p).Distance(focus)
	}
	sort.Slice(visited, func(i, j int) bool {
		di, dj := dist(visited[i]), dist(visited[j])
		if di != dj {
			return di < dj
		}
		return visited[i] < visited[j]
	})
	if len(visited) > maxSectors {
		visited = visited[:maxSectors]
	}

	scan, err := graph.DistancesFrom(ctx, b.repo, center, visited)
	if err != nil {
		return nil, fmt.Errorf("scan distances: %w", err)
	}
	for _, id := range visited {
		if h, ok := scan.Hops[id]; ok {
			r.add(id, h)
			continue
		}
		r.add(id, -1)
		r.unknown[id] = true
		r.unreachable[id] = scan.Exhausted
	}

	if err := b.resolveAdjacency(ctx, r, visited); err != nil {
		return nil, err
	}
	var fog []int
	for _, id := range visited {
		for _, n := range r.adjacency[id] {
			if r.visited(n) {
				continue
			}
			if !r.discovered(n) {
				if len(r.order) >= maxSectors {
					continue
				}
				r.add(n, -1)
				r.unknown[n] = true
				fog = append(fog, n)
			}
			r.addSeenFrom(n, id)
		}
	}
	if err := b.fetchRows(ctx, r, fog); err != nil {
		return nil, err
	}
	return b.assemble(ctx, r)
}
