package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fitsbook-server/internal/config"
	"fitsbook-server/internal/deploy"
	"fitsbook-server/internal/metrics"
	"fitsbook-server/internal/server"
	"fitsbook-server/internal/socketio"
	"fitsbook-server/internal/store"
	"fitsbook-server/internal/sweep"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP and Socket.IO server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	m := metrics.New()
	socket := socketio.NewServer(socketio.Deps{Metrics: m})
	runner := deploy.NewRunner(cfg.DeployScript, cfg.RefreshCommand, cfg.DeployTimeout)
	defer runner.Wait()

	if cfg.TokenSweepSchedule != "" {
		sweeper, err := sweep.New(cfg.TokenSweepSchedule, st.Auth, func(n int64) {
			m.TokensPruned.Add(float64(n))
		})
		if err != nil {
			return err
		}
		sweeper.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			sweeper.Stop(stopCtx)
		}()
	}

	router, release := server.NewRouter(server.Deps{
		Store:    st,
		Config:   cfg,
		Socket:   socket,
		Metrics:  m,
		Deployer: runner,
		Version:  version,
	})
	defer release()

	log.WithFields(log.Fields{
		"port":          cfg.Port,
		"database":      cfg.DatabasePath,
		"auth_required": cfg.AuthRequired,
		"version":       version,
	}).Info("fitsbook-server listening")
	return server.Run(ctx, cfg, router)
}

func openStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	st, err := store.Open(ctx, store.Options{
		Path:              cfg.DatabasePath,
		SchemaVersionFile: cfg.SchemaVersionFile,
		TokenTTL:          cfg.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}
