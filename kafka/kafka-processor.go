package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bioc/pathwayPCA/lib/aespca"
	"github.com/bioc/pathwayPCA/lib/datatypes"
	messages "github.com/bioc/pathwayPCA/lib/kafka"
	"github.com/bioc/pathwayPCA/lib/logging"
	"github.com/bioc/pathwayPCA/lib/pathway"
	"github.com/bioc/pathwayPCA/lib/settings"
	"github.com/bioc/pathwayPCA/receiver"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
)

type worker struct {
	runner   *pathway.Runner
	settings settings.AESSettings
	logger   zerolog.Logger
}

// process turns one job message into a result message. Jobs that cannot be
// decomposed still get an answer so the submitter does not wait forever.
func (w *worker) process(msg kafka.Message) (*datatypes.ResultMessage, error) {
	job, err := messages.DecodeJobMessage(msg)
	if err != nil {
		return nil, err
	}
	w.logger.Debug().Str("job", job.ID).Str("pathway", job.Pathway).Int("partition", msg.Partition).
		Msg("received job")
	result, outcome, err := w.runner.Run(&job.Job, w.settings)
	if err != nil {
		w.logger.Info().Err(err).Str("job", job.ID).Msg("rejected job")
		return &datatypes.ResultMessage{JobID: job.ID, Pathway: job.Pathway, Error: err.Error()}, nil
	}
	receiver.Observe(outcome)
	return result, nil
}

func (w *worker) loop(ctx context.Context, reader *kafka.Reader, writer *kafka.Writer) error {
	w.logger.Info().Msg("kafka worker waiting for jobs")
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn().Err(err).Msg("failed to read job message")
			continue
		}
		result, err := w.process(msg)
		if err != nil {
			w.logger.Warn().Err(err).Str("key", string(msg.Key)).Msg("failed to decode job message")
			continue
		}
		out, err := messages.EncodeResultMessage(result)
		if err != nil {
			w.logger.Error().Err(err).Str("job", result.JobID).Msg("error encoding result message")
			continue
		}
		if err := writer.WriteMessages(ctx, out); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn().Err(err).Str("job", result.JobID).Msg("failed to send result message")
			continue
		}
		w.logger.Info().Str("job", result.JobID).Str("status", string(result.Status)).Msg("sent result")
	}
}

func workerCmd() *cobra.Command {
	var kafkaURL, groupID, configPath, metricsAddr, logLevel, logFormat string
	cmd := &cobra.Command{
		Use:          "aespca-worker",
		Short:        "Decompose jobs read from kafka and publish the results",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.Setup(cmd.ErrOrStderr(), logLevel, logFormat)
			if err != nil {
				return err
			}
			cfg := settings.NewAESSettings()
			if configPath != "" {
				if cfg, err = settings.Load(configPath); err != nil {
					return err
				}
			}
			w := &worker{
				runner:   pathway.NewRunner(aespca.NewDecomposer(logger), logger),
				settings: cfg,
				logger:   logger,
			}

			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers: []string{kafkaURL},
				GroupID: groupID,
				Topic:   messages.JOBS_TOPIC,
			})
			defer reader.Close()
			writer := &kafka.Writer{
				Addr:     kafka.TCP(kafkaURL),
				Topic:    messages.RESULTS_TOPIC,
				Balancer: &kafka.Hash{},
			}
			defer writer.Close()

			metricsServer := &http.Server{
				Addr:              metricsAddr,
				Handler:           promhttp.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Str("address", metricsAddr).Msg("metrics endpoint failed")
				}
			}()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				metricsServer.Shutdown(ctx)
			}()

			return w.loop(cmd.Context(), reader, writer)
		},
	}
	cmd.Flags().StringVar(&kafkaURL, "kafka-url", "localhost:9092", "The address of the kafka broker.")
	cmd.Flags().StringVar(&groupID, "group-id", "aespca-workers", "Consumer group shared by all workers.")
	cmd.Flags().StringVar(&configPath, "config", "", "A YAML settings file that jobs override.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-address", ":9203", "The address the metrics endpoint binds to.")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "One of trace, debug, info, warn, error.")
	cmd.Flags().StringVar(&logFormat, "log-format", logging.FORMAT_CONSOLE, "Log output format: console or json.")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := workerCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("worker failed")
		os.Exit(1)
	}
}
