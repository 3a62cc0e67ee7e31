package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pipecat-ai/gradient-bang-sub003/internal/api"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/config"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/db"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/events"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/graph"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/logger"
	"github.com/pipecat-ai/gradient-bang-sub003/internal/universe"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the map HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.ListenAddr = fmt.Sprintf("127.0.0.1:%d", port)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides listen_addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.Banner(version)
	addr := cfg.ListenAddr

	d, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer d.Close()

	n, err := d.SectorCount(ctx)
	if err != nil {
		return err
	}
	if n == 0 && cfg.UniverseFile != "" {
		u, err := universe.Load(cfg.UniverseFile)
		if err != nil {
			return err
		}
		if err := d.ImportUniverse(ctx, u); err != nil {
			return err
		}
		n = len(u.Sectors)
	}
	if n == 0 {
		logger.Warn("DB", "No sectors loaded; run `sectormap import --universe FILE`")
	}

	var repo graph.Repository = d.Repository()
	if cfg.GraphCacheSize > 0 {
		repo = graph.NewCachedRepository(repo, cfg.GraphCacheSize)
	}

	b, err := openBackend(ctx, cfg, d)
	if err != nil {
		return err
	}
	defer b.Close()

	hub := events.NewHub(0)
	if b.redis != nil {
		ready, errCh := b.redis.Forward(ctx, hub)
		select {
		case <-ready:
			logger.Success("Redis", "Forwarding map events from "+cfg.RedisAddr)
		case err := <-errCh:
			return err
		}
		go func() {
			if err, ok := <-errCh; ok && err != nil {
				logger.Error("Redis", err.Error())
			}
		}()
	}

	logger.Section("Config")
	logger.Stats("Sectors", n)
	logger.Stats("Knowledge", cfg.KnowledgeBackend)
	logger.Stats("Default max hops", cfg.LocalMap.DefaultMaxHops)
	logger.Stats("Default max sectors", cfg.LocalMap.DefaultMaxSectors)

	srv := api.NewServer(cfg, repo, b.store, d, hub, b.pub)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Server(addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("Server", "Stopped")
	return nil
}
