/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pulsefit/aithrottle/log"
	"github.com/pulsefit/aithrottle/service"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the limiter with the status server until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAppConfig(opts.configFile)
			if err != nil {
				return err
			}
			logger, closeLogger := log.NewLogger(cfg.Log)
			defer closeLogger()

			a, err := newApp(cfg, logger)
			if err != nil {
				logger.Error("failed to initialize", log.Error(err))
				return err
			}
			defer a.close()

			a.httpMetrics.MustRegister()
			defer a.httpMetrics.Unregister()

			logger.Info("starting aithrottle", log.String("version", cmd.Root().Version),
				log.String("address", cfg.Server.Address), log.Bool("redis", cfg.Redis.Enabled))
			return service.New(logger, a.unit()).StartContext(cmd.Context())
		},
	}
}
