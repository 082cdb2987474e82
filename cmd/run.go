package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubev2v/vsphere-machinery/internal/config"
	"github.com/kubev2v/vsphere-machinery/internal/handlers"
	"github.com/kubev2v/vsphere-machinery/internal/server"
)

const (
	dbFile          = "machinery.duckdb"
	shutdownTimeout = 30 * time.Second
)

func NewRunCommand(cfg *config.Configuration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the machinery API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfiguration(cfg); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	registerServerFlags(cmd.Flags(), cfg)
	registerVSphereFlags(cmd.Flags(), cfg)
	registerAgentFlags(cmd.Flags(), cfg)

	return cmd
}

func run(ctx context.Context, cfg *config.Configuration) error {
	logger := zap.S().Named("run")
	redacted := *cfg
	if redacted.VSphere.Password != "" {
		redacted.VSphere.Password = "(sensitive)"
	}
	logger.Infow("starting vsphere-machinery", "configuration", redacted.DebugMap())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Agent.DataFolder, 0o750); err != nil {
		return fmt.Errorf("failed to create data folder: %w", err)
	}
	if err := os.MkdirAll(cfg.Agent.DumpFolder, 0o750); err != nil {
		return fmt.Errorf("failed to create dump folder: %w", err)
	}

	env, err := newEnvironment(ctx, cfg, filepath.Join(cfg.Agent.DataFolder, dbFile))
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.machinery.RecoverJournal(ctx); err != nil {
		return err
	}

	// Misconfigured machines are reported but do not keep the others from
	// being served.
	if err := env.machinery.Check(ctx); err != nil {
		logger.Warnw("machine check reported problems", "error", err)
	}

	h := handlers.New(env.machinery, env.machinery)
	srv, err := server.NewServer(cfg, env.metrics.Handler(), func(router *gin.RouterGroup) {
		h.Register(router)
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("server listening", "port", cfg.Server.HTTPPort, "mode", cfg.Server.ServerMode)
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Stop(shutdownCtx)
		logger.Info("server stopped")
		return nil
	})

	return g.Wait()
}
