package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/db"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/localmap"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/logger"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/universe"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/visits"
)

func newImportCmd(g *globalFlags) *cobra.Command {
	var file string
	var characters []string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a universe file into the database",
		Long: `Validates a universe JSON file and replaces the sector graph with it.
Characters can be registered at the same time as ID or ID:CORPORATION.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.UniverseFile
			}
			if file == "" {
				return fmt.Errorf("--universe is required")
			}
			u, err := universe.Load(file)
			if err != nil {
				return err
			}
			d, err := db.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := cmd.Context()
			if err := d.ImportUniverse(ctx, u); err != nil {
				return err
			}
			for _, spec := range characters {
				id, corp, _ := strings.Cut(spec, ":")
				ch := knowledge.Character{ID: strings.TrimSpace(id), CorporationID: strings.TrimSpace(corp)}
				if ch.ID == "" {
					return fmt.Errorf("invalid --character %q", spec)
				}
				if err := d.UpsertCharacter(ctx, ch); err != nil {
					return err
				}
			}
			logger.Success("Import", fmt.Sprintf("%d sectors, %d characters", len(u.Sectors), len(characters)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "universe", "u", "", "Universe JSON file")
	cmd.Flags().StringArrayVar(&characters, "character", nil, "Register a character as ID or ID:CORPORATION (repeatable)")
	return cmd
}

func newPathCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path FROM TO",
		Short: "Print the shortest warp path between two sectors",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid FROM sector %q", args[0])
			}
			to, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid TO sector %q", args[1])
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}
			d, err := db.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer d.Close()

			res, err := graph.FindPath(cmd.Context(), d.Repository(), from, to)
			if err != nil {
				return err
			}
			if err := res.Err(); err != nil {
				return fmt.Errorf("%d -> %d: %w", from, to, err)
			}
			hops := make([]string, len(res.Path))
			for i, id := range res.Path {
				hops[i] = strconv.Itoa(id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d hops)\n", strings.Join(hops, " -> "), res.Distance)
			return nil
		},
	}
}

func newLocalMapCmd(g *globalFlags) *cobra.Command {
	var (
		req                         localmap.Request
		center, maxHops, maxSectors int
	)
	cmd := &cobra.Command{
		Use:   "localmap",
		Short: "Print a character's local map as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("center") {
				req.CenterSector = &center
			}
			if flags.Changed("max-hops") {
				req.MaxHops = &maxHops
			}
			if flags.Changed("max-sectors") {
				req.MaxSectors = &maxSectors
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}
			d, err := db.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, d)
			if err != nil {
				return err
			}
			defer b.Close()

			svc := localmap.NewService(b.store, d, d.Repository(), cfg.LocalMap)
			payload, err := svc.LocalMap(ctx, req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		},
	}
	cmd.Flags().StringVar(&req.CharacterID, "character", "", "Character id")
	cmd.Flags().IntVar(&center, "center", 0, "Center sector (defaults to the current sector)")
	cmd.Flags().IntVar(&maxHops, "max-hops", 0, "Maximum hops from the center")
	cmd.Flags().IntVar(&maxSectors, "max-sectors", 0, "Maximum sectors in the map")
	cmd.MarkFlagRequired("character")
	return cmd
}

func newVisitCmd(g *globalFlags) *cobra.Command {
	var m visits.Movement
	cmd := &cobra.Command{
		Use:   "visit",
		Short: "Record a completed movement into a character's or corporation's map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			d, err := db.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, d)
			if err != nil {
				return err
			}
			defer b.Close()

			rec := visits.NewRecorder(b.store, b.pub, cfg.VisitRetries)
			res, err := visits.NewRouter(rec, d.Repository(), d).RecordMovement(ctx, m)
			if err != nil {
				return err
			}
			state := "unchanged"
			if res.Updated {
				state = "updated"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sector %d %s (version %d, %d sectors visited)\n",
				m.SectorID, state, res.Version, res.Knowledge.TotalSectorsVisited)
			return nil
		},
	}
	cmd.Flags().StringVar(&m.CharacterID, "character", "", "Character id")
	cmd.Flags().IntVar(&m.SectorID, "sector", 0, "Sector the movement ended in")
	cmd.Flags().BoolVar(&m.CorpOwned, "corp", false, "Record into the corporation's map")
	cmd.MarkFlagRequired("character")
	cmd.MarkFlagRequired("sector")
	return cmd
}
