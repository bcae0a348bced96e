package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bioc/pathwayPCA/lib/logging"
	"github.com/bioc/pathwayPCA/lib/settings"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	logLevel   string
	logFormat  string
	configPath string
	logger     zerolog.Logger
}

func (o *rootOptions) loadSettings() (settings.AESSettings, error) {
	if o.configPath == "" {
		return settings.NewAESSettings(), nil
	}
	return settings.Load(o.configPath)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{logger: log.Logger}
	root := &cobra.Command{
		Use:          "aespca",
		Short:        "Adaptive elastic-net sparse principal components of pathway matrices",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.Setup(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "One of trace, debug, info, warn, error.")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", logging.FORMAT_CONSOLE, "Log output format: console or json.")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "A YAML settings file. Flags override its values.")

	root.AddCommand(decomposeCmd(opts))
	root.AddCommand(serveCmd(opts))
	root.AddCommand(submitCmd(opts))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("aespca failed")
		os.Exit(1)
	}
}
