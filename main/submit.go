package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bioc/pathwayPCA/lib/datatypes"
	"github.com/bioc/pathwayPCA/lib/kafka"
	"github.com/bioc/pathwayPCA/lib/pathway"
	"github.com/spf13/cobra"
)

type submitOptions struct {
	decomposeOptions
	kafkaURL string
	groupID  string
	timeout  time.Duration
}

func submitCmd(root *rootOptions) *cobra.Command {
	opts := &submitOptions{}
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Send a matrix file to the kafka workers and wait for the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadSettings()
			if err != nil {
				return err
			}
			cfg, err = applyFlags(cmd, &opts.decomposeOptions, cfg)
			if err != nil {
				return err
			}
			features, x, err := readMatrixFile(opts.input)
			if err != nil {
				return err
			}
			job, err := pathway.NewJob("", opts.pathwayName, features, x, cfg)
			if err != nil {
				return err
			}
			msg := &kafka.JobMessage{Job: *job}

			results := make(chan *datatypes.ResultMessage, 16)
			dispatcher := kafka.NewDispatcher(opts.kafkaURL, opts.groupID, results, root.logger)
			defer func() {
				if err := dispatcher.Shutdown(); err != nil {
					root.logger.Warn().Err(err).Msg("closing kafka connections")
				}
			}()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			if err := dispatcher.Submit(ctx, msg); err != nil {
				return err
			}
			root.logger.Info().Str("job", msg.ID).Str("pathway", msg.Pathway).Msg("submitted job")
			got, err := kafka.Await(ctx, results, msg.ID)
			if err != nil {
				return fmt.Errorf("waiting for job %s: %w", msg.ID, err)
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(got[msg.ID])
		},
	}
	cmd.Flags().StringVar(&opts.kafkaURL, "kafka-url", "localhost:9092", "The address of the kafka broker.")
	cmd.Flags().StringVar(&opts.groupID, "group-id", "",
		"Consumer group for reading results. Empty gives this process a group of its own.")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "How long to wait for the result.")
	cmd.Flags().StringVar(&opts.input, "input", "", "Name of the matrix file to read.")
	cmd.Flags().StringVar(&opts.pathwayName, "pathway", "", "Name to report for the matrix.")
	addSettingsFlags(cmd, &opts.decomposeOptions)
	cmd.MarkFlagRequired("input")
	return cmd
}
