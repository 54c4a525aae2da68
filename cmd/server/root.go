package main

import (
	"os"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fitsbook-server/internal/config"
)

var version = "dev"

type options struct {
	configFile string
}

// flagEnv lets --config stand in for CONFIG_FILE.
type flagEnv struct {
	configFile string
}

func (e flagEnv) Getenv(key string) string {
	if key == "CONFIG_FILE" && e.configFile != "" {
		return e.configFile
	}
	return os.Getenv(key)
}

func (o *options) load() (config.Config, error) {
	cfg, err := config.LoadConfigFromEnv(flagEnv{configFile: o.configFile})
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg config.Config) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	gin.SetMode(cfg.GinMode)
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	serve := newServeCmd(opts)
	cmd := &cobra.Command{
		Use:           "fitsbook-server",
		Short:         "Bookkeeping server for training runs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"YAML config file (overrides CONFIG_FILE)")

	cmd.AddCommand(serve)
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newUserCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}
