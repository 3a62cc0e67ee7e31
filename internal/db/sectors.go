package db

import (
	"context"
	"fmt"
	"sort"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
)

// Repository adapts the sector tables to graph.Repository.
func (d *DB) Repository() graph.Repository {
	return d
}

// FetchSectors loads sectors and their warps for ids. Unknown ids are absent.
func (d *DB) FetchSectors(ctx context.Context, ids []int) (map[int]*graph.Sector, error) {
	out := make(map[int]*graph.Sector, len(ids))
	for _, chunk := range chunks(dedupe(ids)) {
		rows, err := d.sql.QueryContext(ctx,
			"SELECT sector_id, x, y, region FROM sectors WHERE sector_id IN ("+placeholders(len(chunk))+")",
			intArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("query sectors: %w", err)
		}
		for rows.Next() {
			s := &graph.Sector{Warps: []graph.WarpEdge{}}
			if err := rows.Scan(&s.ID, &s.Position.X, &s.Position.Y, &s.Region); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan sector: %w", err)
			}
			out[s.ID] = s
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	if err := d.loadWarps(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DB) loadWarps(ctx context.Context, sectors map[int]*graph.Sector) error {
	ids := make([]int, 0, len(sectors))
	for id := range sectors {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, chunk := range chunks(ids) {
		rows, err := d.sql.QueryContext(ctx,
			"SELECT from_sector, to_sector, two_way, hyperlane FROM warps WHERE from_sector IN ("+placeholders(len(chunk))+") ORDER BY from_sector, ordinal",
			intArgs(chunk)...)
		if err != nil {
			return fmt.Errorf("query warps: %w", err)
		}
		for rows.Next() {
			var from int
			var w graph.WarpEdge
			if err := rows.Scan(&from, &w.To, &w.TwoWay, &w.Hyperlane); err != nil {
				rows.Close()
				return fmt.Errorf("scan warp: %w", err)
			}
			if s := sectors[from]; s != nil {
				s.Warps = append(s.Warps, w)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// FetchSectorsInBounds returns sectors whose world position lies within
// radius of center.
func (d *DB) FetchSectorsInBounds(ctx context.Context, center graph.World, radius float64) (map[int]*graph.Sector, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT sector_id, world_x, world_y FROM sectors
		WHERE world_x BETWEEN ? AND ? AND world_y BETWEEN ? AND ?`,
		center.X-radius, center.X+radius, center.Y-radius, center.Y+radius)
	if err != nil {
		return nil, fmt.Errorf("query sectors in bounds: %w", err)
	}
	var ids []int
	for rows.Next() {
		var id int
		var w graph.World
		if err := rows.Scan(&id, &w.X, &w.Y); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan sector: %w", err)
		}
		if w.Distance(center) <= radius {
			ids = append(ids, id)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return map[int]*graph.Sector{}, nil
	}
	return d.FetchSectors(ctx, ids)
}

// FetchPortCodes returns port codes for the ids that have a port.
func (d *DB) FetchPortCodes(ctx context.Context, ids []int) (map[int]string, error) {
	out := make(map[int]string)
	for _, chunk := range chunks(dedupe(ids)) {
		rows, err := d.sql.QueryContext(ctx,
			"SELECT sector_id, code FROM ports WHERE sector_id IN ("+placeholders(len(chunk))+")",
			intArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("query ports: %w", err)
		}
		for rows.Next() {
			var id int
			var code string
			if err := rows.Scan(&id, &code); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan port: %w", err)
			}
			if code != "" {
				out[id] = code
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SectorCount returns the number of imported sectors.
func (d *DB) SectorCount(ctx context.Context) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM sectors").Scan(&n)
	return n, err
}

// ImportUniverse replaces the stored sector graph with u in one transaction.
func (d *DB) ImportUniverse(ctx context.Context, u *graph.Universe) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM warps", "DELETE FROM ports", "DELETE FROM sectors"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}

	insSector, err := tx.PrepareContext(ctx, "INSERT INTO sectors (sector_id, x, y, world_x, world_y, region) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer insSector.Close()
	insWarp, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO warps (from_sector, to_sector, ordinal, two_way, hyperlane) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer insWarp.Close()

	for _, id := range u.SectorIDs() {
		s := u.Sectors[id]
		w := graph.ToWorld(s.Position)
		if _, err := insSector.ExecContext(ctx, s.ID, s.Position.X, s.Position.Y, w.X, w.Y, s.Region); err != nil {
			return fmt.Errorf("insert sector %d: %w", s.ID, err)
		}
		for i, e := range s.Warps {
			if _, err := insWarp.ExecContext(ctx, s.ID, e.To, i, e.TwoWay, e.Hyperlane); err != nil {
				return fmt.Errorf("insert warp %d->%d: %w", s.ID, e.To, err)
			}
		}
	}
	for id, code := range u.Ports {
		if _, err := tx.ExecContext(ctx, "INSERT INTO ports (sector_id, code) VALUES (?, ?)", id, code); err != nil {
			return fmt.Errorf("insert port %d: %w", id, err)
		}
	}
	return tx.Commit()
}

func dedupe(ids []int) []int {
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
