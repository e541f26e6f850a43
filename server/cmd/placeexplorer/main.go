package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"place-explorer/server/internal/config"
	"place-explorer/server/internal/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
	envFile    string
}

// loadConfig reads the config file; --log-level wins over the file.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger.Setup(level, cfg.Logging.Format)
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "placeexplorer",
		Short:         "Place discovery and selection sync server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.envFile != "" {
				if err := godotenv.Load(opts.envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
					return errors.Wrapf(err, "load %s", opts.envFile)
				}
			}
			level := opts.logLevel
			if level == "" {
				level = "info"
			}
			logger.Setup(level, "console")
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "server/configs/config.yaml", "config file path")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (trace|debug|info|warn|error), overrides the config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(newServeCmd(opts), newLookupCmd(opts), newHashPasswordCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("placeexplorer failed")
		os.Exit(1)
	}
}
