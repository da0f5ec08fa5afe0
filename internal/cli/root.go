package cli

import (
	"os"

	"classroom-live/internal/config"
	"classroom-live/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	logLevel   string
	logFormat  string
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	opts := &options{}
	cmd := &cobra.Command{
		Use:           "classroom-live",
		Short:         "Live classroom answer delivery and monitoring over STOMP",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (pretty or json)")
	cmd.AddCommand(NewMonitorCmd(opts))
	cmd.AddCommand(NewAnswerCmd(opts))
	cmd.AddCommand(NewHistoryCmd(opts))
	cmd.AddCommand(NewResultsCmd(opts))
	cmd.AddCommand(NewMigrateCmd(opts))
	return cmd
}

// load reads the config and builds the logger; flags win over the file.
func (o *options) load() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	level := cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	format := cfg.Log.Format
	if o.logFormat != "" {
		format = o.logFormat
	}
	return cfg, logger.Setup(level, format), nil
}
