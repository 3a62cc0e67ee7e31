// Package cli holds the sectormap command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/config"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/db"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/events"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/knowledge"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/redisstore"
)

var version = "dev"

// SetVersion sets the version shown by --version and the serve banner.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	dbPath     string
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "sectormap",
		Short: "sectormap - knowledge-gated sector maps",
		Long: `sectormap serves local maps of a sector graph as seen by a character:
visited sectors with full detail, their unvisited neighbours as fog.`,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
		SilenceErrors:      true,
		SilenceUsage:       true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&g.dbPath, "db", "", "SQLite database path (overrides config)")

	root.AddCommand(
		newServeCmd(g),
		newImportCmd(g),
		newPathCmd(g),
		newLocalMapCmd(g),
		newVisitCmd(g),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.dbPath != "" {
		cfg.DBPath = g.dbPath
	}
	return cfg, nil
}

// backend is the knowledge store chosen by config plus, for redis, the
// cross-process event publisher.
type backend struct {
	store knowledge.Store
	pub   events.Publisher
	redis *redisstore.Store
}

func (b *backend) Close() error {
	if b.redis != nil {
		return b.redis.Close()
	}
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config, d *db.DB) (*backend, error) {
	if cfg.KnowledgeBackend != config.BackendRedis {
		return &backend{store: d.Knowledge()}, nil
	}
	rs, err := redisstore.NewStore(&redis.Options{Addr: cfg.RedisAddr}, cfg.RedisNamespace)
	if err != nil {
		return nil, err
	}
	if err := rs.Ping(ctx); err != nil {
		rs.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	return &backend{store: rs, pub: rs, redis: rs}, nil
}
