package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bioc/pathwayPCA/lib/datatypes"
	"github.com/bioc/pathwayPCA/lib/pathway"
	kafka "github.com/segmentio/kafka-go"
)

const (
	JOBS_TOPIC    = "aespca_jobs"
	RESULTS_TOPIC = "aespca_results"
)

type JobMessage struct {
	pathway.Job
	SubmittedAt time.Time `json:"submittedAt"`
}

func EncodeJobMessage(job *JobMessage) (kafka.Message, error) {
	if job.ID == "" {
		return kafka.Message{}, fmt.Errorf("job for pathway %s has no id", job.Pathway)
	}
	b, err := json.Marshal(job)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(job.ID), Value: b}, nil
}

func DecodeJobMessage(msg kafka.Message) (*JobMessage, error) {
	job := &JobMessage{}
	if err := json.Unmarshal(msg.Value, job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = string(msg.Key)
	}
	return job, nil
}

// EncodeResultMessage keys the result by its job id so that all results of
// one job land on the same partition.
func EncodeResultMessage(res *datatypes.ResultMessage) (kafka.Message, error) {
	b, err := res.MarshalJSON()
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(res.JobID), Value: b}, nil
}

func DecodeResultMessage(msg kafka.Message) (*datatypes.ResultMessage, error) {
	res := &datatypes.ResultMessage{}
	if err := res.UnmarshalJSON(msg.Value); err != nil {
		return nil, err
	}
	return res, nil
}
