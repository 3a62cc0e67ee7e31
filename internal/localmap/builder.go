// Package localmap builds fog-of-war local maps from an actor's knowledge.
package localmap

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
)

// Builder assembles local map payloads. It holds no per-build state and is
// safe for concurrent use.
type Builder struct {
	repo graph.Repository
}

// NewBuilder returns a Builder reading topology from repo.
func NewBuilder(repo graph.Repository) *Builder {
	return &Builder{repo: repo}
}

// region is the working state of a single build.
type region struct {
	center int
	k      *knowledge.MapKnowledge

	order       []int
	hops        map[int]int
	unknown     map[int]bool
	unreachable map[int]bool
	seenFrom    map[int][]int
	adjacency   map[int][]int
	rows        map[int]*graph.Sector
}

func newRegion(center int, k *knowledge.MapKnowledge) *region {
	if k == nil {
		k = knowledge.New()
	}
	return &region{
		center:      center,
		k:           k,
		hops:        make(map[int]int),
		unknown:     make(map[int]bool),
		unreachable: make(map[int]bool),
		seenFrom:    make(map[int][]int),
		adjacency:   make(map[int][]int),
		rows:        make(map[int]*graph.Sector),
	}
}

// visited reports whether id may be traversed. The center always may.
func (r *region) visited(id int) bool {
	return id == r.center || r.k.Visited(id)
}

func (r *region) discovered(id int) bool {
	_, ok := r.hops[id]
	return ok
}

func (r *region) add(id, hop int) {
	r.hops[id] = hop
	r.order = append(r.order, id)
}

func (r *region) addSeenFrom(id, src int) {
	for _, s := range r.seenFrom[id] {
		if s == src {
			return
		}
	}
	r.seenFrom[id] = append(r.seenFrom[id], src)
}

// Build runs the knowledge-gated BFS from center. Visited sectors are
// expanded; unvisited neighbours are recorded as fog and never traversed.
// Expansion stops at lim.MaxHops, when lim.MaxSectors sectors have been
// discovered, or when the frontier empties. Missing data degrades the
// payload; only repository failures are returned as errors.
func (b *Builder) Build(ctx context.Context, center int, lim Limits, k *knowledge.MapKnowledge) (*Payload, error) {
	if lim.MaxSectors <= 0 {
		return nil, &ValidationError{Field: "max_sectors", Message: "must be greater than 0"}
	}
	r := newRegion(center, k)
	r.add(center, 0)

	frontier := []int{center}
	capped := len(r.order) >= lim.MaxSectors
	for hop := 0; hop < lim.MaxHops && len(frontier) > 0 && !capped; hop++ {
		if err := b.resolveAdjacency(ctx, r, frontier); err != nil {
			return nil, err
		}
		var next []int
	layer:
		for _, id := range frontier {
			for _, n := range r.adjacency[id] {
				if r.discovered(n) {
					if !r.visited(n) {
						r.addSeenFrom(n, id)
					}
					continue
				}
				if len(r.order) >= lim.MaxSectors {
					capped = true
					break layer
				}
				r.add(n, hop+1)
				if r.visited(n) {
					next = append(next, n)
				} else {
					r.addSeenFrom(n, id)
				}
			}
		}
		frontier = next
	}

	if err := b.fetchRows(ctx, r, r.order); err != nil {
		return nil, err
	}
	targets := r.disconnectedTargets(lim.MaxSectors - len(r.order))
	if err := b.recover(ctx, r, targets); err != nil {
		return nil, err
	}
	return b.assemble(ctx, r)
}

// resolveAdjacency fills r.adjacency for the frontier, preferring knowledge
// and batching every sector without recorded adjacency into one fetch.
func (b *Builder) resolveAdjacency(ctx context.Context, r *region, frontier []int) error {
	var missing []int
	for _, id := range frontier {
		if _, ok := r.adjacency[id]; ok {
			continue
		}
		if e := r.k.Entry(id); e != nil && len(e.AdjacentSectors) > 0 {
			r.adjacency[id] = e.AdjacentSectors
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return nil
	}
	if err := b.fetchRows(ctx, r, missing); err != nil {
		return err
	}
	for _, id := range missing {
		if row := r.rows[id]; row != nil {
			r.adjacency[id] = row.Adjacent()
		} else {
			r.adjacency[id] = nil
		}
	}
	return nil
}

// fetchRows loads repository rows for ids not fetched yet.
func (b *Builder) fetchRows(ctx context.Context, r *region, ids []int) error {
	var missing []int
	for _, id := range ids {
		if _, ok := r.rows[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	rows, err := b.repo.FetchSectors(ctx, missing)
	if err != nil {
		return fmt.Errorf("fetch sectors: %w", err)
	}
	for _, id := range missing {
		r.rows[id] = rows[id]
	}
	return nil
}

// position returns the best known position of id: the knowledge entry for
// visited sectors, else the repository row.
func (r *region) position(id int) (graph.Position, bool) {
	if e := r.k.Entry(id); e != nil {
		return e.Position, true
	}
	if row := r.rows[id]; row != nil {
		return row.Position, true
	}
	return graph.Position{}, false
}

// disconnectedTargets returns visited sectors that lie inside the position
// bounding box of the discovered set but were not reached, at most budget.
func (r *region) disconnectedTargets(budget int) []int {
	if budget <= 0 {
		return nil
	}
	minX, minY := math.MaxInt, math.MaxInt
	maxX, maxY := math.MinInt, math.MinInt
	found := false
	for _, id := range r.order {
		p, ok := r.position(id)
		if !ok {
			continue
		}
		found = true
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}
	if !found {
		return nil
	}
	var out []int
	for _, id := range r.k.SectorIDs() {
		if r.discovered(id) {
			continue
		}
		p := r.k.Entry(id).Position
		if p.X < minX || p.X > maxX || p.Y < minY || p.Y > maxY {
			continue
		}
		out = append(out, id)
		if len(out) == budget {
			break
		}
	}
	return out
}

// recover resolves hop distances for disconnected visited sectors with a
// full-graph scan from the center and adds them to the region.
func (b *Builder) recover(ctx context.Context, r *region, targets []int) error {
	if len(targets) == 0 {
		return nil
	}
	var scan graph.DistanceScan
	var rows map[int]*graph.Sector
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		scan, err = graph.DistancesFrom(gctx, b.repo, r.center, targets)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = b.repo.FetchSectors(gctx, targets)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("recover disconnected sectors: %w", err)
	}
	for _, id := range targets {
		r.rows[id] = rows[id]
		if h, ok := scan.Hops[id]; ok {
			r.add(id, h)
			continue
		}
		r.add(id, -1)
		r.unknown[id] = true
		r.unreachable[id] = scan.Exhausted
	}
	return nil
}

// assemble turns the region into a payload, batch-fetching port codes for
// visited sectors whose knowledge has none.
func (b *Builder) assemble(ctx context.Context, r *region) (*Payload, error) {
	var needPorts []int
	for _, id := range r.order {
		if !r.visited(id) {
			continue
		}
		if e := r.k.Entry(id); e == nil || e.Port == nil {
			needPorts = append(needPorts, id)
		}
	}
	codes := map[int]string{}
	if len(needPorts) > 0 {
		var err error
		codes, err = b.repo.FetchPortCodes(ctx, needPorts)
		if err != nil {
			return nil, fmt.Errorf("fetch port codes: %w", err)
		}
	}

	p := &Payload{CenterSector: r.center, Sectors: make([]SectorView, 0, len(r.order))}
	for _, id := range r.order {
		v := r.view(id, codes)
		if v.Visited {
			p.TotalVisited++
		} else {
			p.TotalUnvisited++
		}
		p.Sectors = append(p.Sectors, v)
	}
	p.TotalSectors = len(p.Sectors)
	return p, nil
}

func (r *region) view(id int, codes map[int]string) SectorView {
	v := SectorView{
		ID:              id,
		Visited:         r.visited(id),
		HopsFromCenter:  r.hops[id],
		DistanceUnknown: r.unknown[id],
		Unreachable:     r.unreachable[id],
		AdjacentSectors: []int{},
		Lanes:           []graph.WarpEdge{},
	}
	row := r.rows[id]
	if pos, ok := r.position(id); ok {
		v.Position = pos
	}
	if row != nil {
		v.Region = row.Region
	}

	if !v.Visited {
		srcs := append([]int(nil), r.seenFrom[id]...)
		sort.Ints(srcs)
		for _, src := range srcs {
			lane := graph.WarpEdge{To: src}
			if srow := r.rows[src]; srow != nil {
				if w, ok := srow.WarpTo(id); ok {
					lane.TwoWay, lane.Hyperlane = w.TwoWay, w.Hyperlane
				}
			}
			v.Lanes = append(v.Lanes, lane)
		}
		return v
	}

	e := r.k.Entry(id)
	if e != nil {
		v.LastVisited = e.LastVisited
		v.Source = e.Source
		if e.Port != nil {
			port := *e.Port
			v.Port = &port
		}
	}
	if v.Port == nil {
		if code, ok := codes[id]; ok && code != "" {
			v.Port = &knowledge.PortSummary{Code: code}
		}
	}
	switch {
	case e != nil && len(e.AdjacentSectors) > 0:
		v.AdjacentSectors = append(v.AdjacentSectors, e.AdjacentSectors...)
	case row != nil:
		v.AdjacentSectors = row.Adjacent()
	}
	if row != nil {
		v.Lanes = append(v.Lanes, row.Warps...)
	} else {
		for _, n := range v.AdjacentSectors {
			v.Lanes = append(v.Lanes, graph.WarpEdge{To: n})
		}
	}
	return v
}
