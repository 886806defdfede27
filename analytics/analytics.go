package analytics

import (
	"github.com/mohitkumar/mediaflow/model"
)

type DataCollectorConfig struct {
	FileName      string
	CollectorType DataCollectorType
}

type DataCollectorType string

const LOG_FILE_DATA_COLLECTOR DataCollectorType = "LOG_FILE_DATA_COLLECTOR"
const NOOP_DATA_COLLECTOR DataCollectorType = "NOOP"

type JobDataCollector interface {
	RecordJobSuccess(job map[string]any)
	RecordJobFailure(job map[string]any, reason string)
	RecordJobCanceled(job map[string]any)
	Close() error
}

func NewDataCollector(config DataCollectorConfig) (JobDataCollector, error) {
	switch config.CollectorType {
	case LOG_FILE_DATA_COLLECTOR:
		return NewLogFileDataCollector(config.FileName)
	}
	return noopCollector{}, nil
}

// Handler adapts a collector into an event bus handler for job lifecycle events.
func Handler(c JobDataCollector) func(evt model.Event) error {
	return func(evt model.Event) error {
		switch evt.Type {
		case model.JOB_COMPLETED:
			c.RecordJobSuccess(evt.Payload)
		case model.JOB_FAILED:
			reason, _ := evt.Payload["error_message"].(string)
			c.RecordJobFailure(evt.Payload, reason)
		case model.JOB_CANCELLED:
			c.RecordJobCanceled(evt.Payload)
		}
		return nil
	}
}

type noopCollector struct{}

func (noopCollector) RecordJobSuccess(map[string]any)         {}
func (noopCollector) RecordJobFailure(map[string]any, string) {}
func (noopCollector) RecordJobCanceled(map[string]any)        {}
func (noopCollector) Close() error                            { return nil }
