package graph

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnknownSector is returned when a path endpoint does not exist.
	ErrUnknownSector = errors.New("unknown sector")
	// ErrPathNotFound is what PathResult.Err reports for disconnected sectors.
	ErrPathNotFound = errors.New("no path")
)

// PathResult is the outcome of FindPath. Found is false when the two
// sectors lie in disconnected components; that is a valid answer, not an error.
type PathResult struct {
	Path     []int `json:"path"`
	Distance int   `json:"distance"`
	Found    bool  `json:"-"`
}

// Err returns ErrPathNotFound when no path was found.
func (r PathResult) Err() error {
	if r.Found {
		return nil
	}
	return ErrPathNotFound
}

// walker runs layered BFS over a Repository, fetching adjacency for a whole
// layer in one call and caching it for the lifetime of the walk.
type walker struct {
	repo Repository
	adj  map[int][]int
}

func newWalker(repo Repository) *walker {
	return &walker{repo: repo, adj: make(map[int][]int)}
}

// load fetches adjacency for every id in layer that is not cached yet.
// Ids the repository does not know get an empty adjacency.
func (w *walker) load(ctx context.Context, layer []int) error {
	var missing []int
	for _, id := range layer {
		if _, ok := w.adj[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	rows, err := w.repo.FetchSectors(ctx, missing)
	if err != nil {
		return fmt.Errorf("fetch sectors: %w", err)
	}
	for _, id := range missing {
		if s, ok := rows[id]; ok {
			w.adj[id] = s.Adjacent()
		} else {
			w.adj[id] = nil
		}
	}
	return nil
}

// walk visits sectors in BFS order starting at origin. visit is called once
// per newly reached sector with its parent and hop distance; returning true
// stops the walk. walk reports whether the graph was exhausted.
func (w *walker) walk(ctx context.Context, origin int, visit func(id, parent, dist int) bool) (bool, error) {
	seen := map[int]bool{origin: true}
	frontier := []int{origin}
	dist := 0
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := w.load(ctx, frontier); err != nil {
			return false, err
		}
		dist++
		var next []int
		for _, id := range frontier {
			for _, n := range w.adj[id] {
				if seen[n] {
					continue
				}
				seen[n] = true
				if visit(n, id, dist) {
					return false, nil
				}
				next = append(next, n)
			}
		}
		frontier = next
	}
	return true, nil
}

// FindPath returns the shortest warp path from -> to over the full graph.
// Knowledge plays no part here: every sector the repository knows is traversable.
// FindPath(X, X) is always {[X], 0}, without a repository lookup.
func FindPath(ctx context.Context, repo Repository, from, to int) (PathResult, error) {
	if from == to {
		return PathResult{Path: []int{from}, Distance: 0, Found: true}, nil
	}
	ends, err := repo.FetchSectors(ctx, uniqueInts(from, to))
	if err != nil {
		return PathResult{}, fmt.Errorf("fetch sectors: %w", err)
	}
	for _, id := range []int{from, to} {
		if _, ok := ends[id]; !ok {
			return PathResult{}, fmt.Errorf("%w: %d", ErrUnknownSector, id)
		}
	}
	w := newWalker(repo)
	w.adj[from] = ends[from].Adjacent()
	parent := make(map[int]int)
	found := false
	if _, err := w.walk(ctx, from, func(id, p, _ int) bool {
		parent[id] = p
		if id == to {
			found = true
			return true
		}
		return false
	}); err != nil {
		return PathResult{}, err
	}
	if !found {
		return PathResult{Found: false, Distance: -1}, nil
	}

	path := []int{to}
	for cur := to; cur != from; {
		cur = parent[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return PathResult{Path: path, Distance: len(path) - 1, Found: true}, nil
}

// DistanceScan is the result of DistancesFrom.
type DistanceScan struct {
	// Hops maps each reached target to its hop distance from the origin.
	Hops map[int]int
	// Exhausted is true when the whole reachable graph was scanned, so any
	// target missing from Hops is genuinely unreachable.
	Exhausted bool
}

// DistancesFrom runs an unbounded BFS over the full graph from origin until
// every target is reached or the reachable graph is exhausted.
func DistancesFrom(ctx context.Context, repo Repository, origin int, targets []int) (DistanceScan, error) {
	scan := DistanceScan{Hops: make(map[int]int, len(targets))}
	pending := make(map[int]bool, len(targets))
	for _, t := range targets {
		if t == origin {
			scan.Hops[t] = 0
			continue
		}
		pending[t] = true
	}
	if len(pending) == 0 {
		return scan, nil
	}

	w := newWalker(repo)
	exhausted, err := w.walk(ctx, origin, func(id, _, dist int) bool {
		if pending[id] {
			scan.Hops[id] = dist
			delete(pending, id)
		}
		return len(pending) == 0
	})
	if err != nil {
		return DistanceScan{}, err
	}
	scan.Exhausted = exhausted
	return scan, nil
}

func uniqueInts(ids ...int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
