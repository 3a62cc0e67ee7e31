package graph

import "context"

// Repository is the batched read contract for sector topology. It is the
// only path from this subsystem to durable sector storage.
//
// Implementations return only the sectors they know; unknown ids are simply
// absent from the result map. A non-nil error means the lookup itself failed.
type Repository interface {
	FetchSectors(ctx context.Context, ids []int) (map[int]*Sector, error)
	FetchSectorsInBounds(ctx context.Context, center World, radius float64) (map[int]*Sector, error)
	FetchPortCodes(ctx context.Context, ids []int) (map[int]string, error)
}
