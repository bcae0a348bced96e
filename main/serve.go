package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bioc/pathwayPCA/lib/aespca"
	"github.com/bioc/pathwayPCA/lib/pathway"
	"github.com/bioc/pathwayPCA/receiver"
	"github.com/spf13/cobra"
)

func serveCmd(root *rootOptions) *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve decompositions over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadSettings()
			if err != nil {
				return err
			}
			logger := root.logger
			runner := pathway.NewRunner(aespca.NewDecomposer(logger), logger)
			service := receiver.NewService(runner, cfg, logger)

			server := &http.Server{
				Addr:              listenAddr,
				Handler:           service.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			serveErr := make(chan error, 1)
			go func() {
				logger.Info().Str("address", listenAddr).Msg("decomposition service listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err := <-serveErr:
				return err
			case <-cmd.Context().Done():
			}
			logger.Info().Msg("decomposition service shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen-address", ":9207", "The address the decomposition endpoint binds to.")
	return cmd
}
