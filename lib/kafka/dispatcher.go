package kafka

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/bioc/pathwayPCA/lib/datatypes"
	"github.com/rs/zerolog"
	kafka "github.com/segmentio/kafka-go"
)

// A Dispatcher sends decomposition jobs as kafka messages for workers to
// pick up. It then listens for the results and forwards them to a channel.
type Dispatcher struct {
	jobWriter     *kafka.Writer
	resultReader  *kafka.Reader
	resultChannel chan<- *datatypes.ResultMessage
	runnerCtx     context.Context
	runnerCancel  context.CancelFunc
	logger        zerolog.Logger
}

// NewDispatcher connects to the broker at kafkaURL. An empty groupID gives
// the dispatcher a consumer group of its own, so that no other submitter is
// assigned the partitions its results arrive on.
func NewDispatcher(kafkaURL string, groupID string, results chan<- *datatypes.ResultMessage,
	logger zerolog.Logger) *Dispatcher {
	if groupID == "" {
		groupID = uniqueGroupID("aespca-submit")
	}
	d := &Dispatcher{
		resultChannel: results,
		logger:        logger,
		jobWriter: &kafka.Writer{
			Addr:     kafka.TCP(kafkaURL),
			Topic:    JOBS_TOPIC,
			Balancer: &kafka.LeastBytes{},
		},
		resultReader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{kafkaURL},
			GroupID:     groupID,
			Topic:       RESULTS_TOPIC,
			StartOffset: kafka.FirstOffset,
		}),
	}

	d.runnerCtx, d.runnerCancel = context.WithCancel(context.Background())
	go d.receive(d.runnerCtx)
	d.logger.Info().Str("url", kafkaURL).Str("group", groupID).Msg("kafka dispatcher initialized")
	return d
}

var groupCounter atomic.Uint64

func uniqueGroupID(prefix string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s-%d-%d-%d", prefix, host, os.Getpid(), time.Now().UnixNano(), groupCounter.Add(1))
}

func (d *Dispatcher) receive(ctx context.Context) {
	for {
		msg, err := d.resultReader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				d.logger.Debug().Msg("result reader stopped")
				return
			}
			d.logger.Warn().Err(err).Msg("error getting result message")
			continue
		}
		res, err := DecodeResultMessage(msg)
		if err != nil {
			d.logger.Warn().Err(err).Str("key", string(msg.Key)).Msg("error decoding result message")
			continue
		}
		select {
		case d.resultChannel <- res:
		case <-ctx.Done():
			return
		}
	}
}

// Submit sends jobs. Jobs without an id get one.
func (d *Dispatcher) Submit(ctx context.Context, jobs ...*JobMessage) error {
	msgs := make([]kafka.Message, 0, len(jobs))
	for i, job := range jobs {
		if job.ID == "" {
			job.ID = fmt.Sprintf("%s-%d-%d", job.Pathway, time.Now().UnixNano(), i)
		}
		if job.SubmittedAt.IsZero() {
			job.SubmittedAt = time.Now()
		}
		msg, err := EncodeJobMessage(job)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := d.jobWriter.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("sending %d jobs: %w", len(msgs), err)
	}
	d.logger.Debug().Int("jobs", len(msgs)).Msg("sent jobs to kafka")
	return nil
}

// Await reads results until one for every id has arrived. Results for
// other jobs are dropped.
func Await(ctx context.Context, results <-chan *datatypes.ResultMessage, ids ...string) (map[string]*datatypes.ResultMessage, error) {
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	ret := make(map[string]*datatypes.ResultMessage, len(ids))
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return ret, ctx.Err()
		case res, ok := <-results:
			if !ok {
				return ret, fmt.Errorf("results closed with %d jobs pending", len(pending))
			}
			if !pending[res.JobID] {
				continue
			}
			delete(pending, res.JobID)
			ret[res.JobID] = res
		}
	}
	return ret, nil
}

func (d *Dispatcher) Shutdown() error {
	d.logger.Info().Msg("kafka dispatcher shutting down")
	if d.runnerCancel != nil {
		d.runnerCancel()
	}
	var errs []error
	if d.jobWriter != nil {
		errs = append(errs, d.jobWriter.Close())
	}
	if d.resultReader != nil {
		errs = append(errs, d.resultReader.Close())
	}
	return errors.Join(errs...)
}
