// Package metrics turns lifecycle events into opencensus measurements.
package metrics

import (
	"context"

	"github.com/mohitkumar/mediaflow/model"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	JobEvents      = stats.Int64("mediaflow/job_events", "job lifecycle events", stats.UnitDimensionless)
	WorkflowEvents = stats.Int64("mediaflow/workflow_events", "workflow lifecycle events", stats.UnitDimensionless)
	JobRetries     = stats.Int64("mediaflow/job_retry_count", "retry count of jobs reaching a terminal state", stats.UnitDimensionless)

	KeyEventType = tag.MustNewKey("event_type")
	KeyOperation = tag.MustNewKey("operation")
)

var (
	JobEventsView = &view.View{
		Name:        "mediaflow/job_events_total",
		Description: "number of job lifecycle events by type and operation",
		Measure:     JobEvents,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyEventType, KeyOperation},
	}
	WorkflowEventsView = &view.View{
		Name:        "mediaflow/workflow_events_total",
		Description: "number of workflow lifecycle events by type",
		Measure:     WorkflowEvents,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{KeyEventType},
	}
	JobRetriesView = &view.View{
		Name:        "mediaflow/job_retry_count",
		Description: "retries used by finished jobs",
		Measure:     JobRetries,
		Aggregation: view.Distribution(0, 1, 2, 3, 5, 10),
		TagKeys:     []tag.Key{KeyOperation},
	}
)

var Views = []*view.View{JobEventsView, WorkflowEventsView, JobRetriesView}

func Register() error {
	return view.Register(Views...)
}

// Handle records one event. It is meant to be subscribed to every event on
// the bus.
func Handle(evt model.Event) error {
	operation, _ := evt.Payload["operation"].(string)
	switch evt.Type {
	case model.WORKFLOW_STARTED, model.WORKFLOW_COMPLETED, model.WORKFLOW_FAILED:
		ctx, err := tag.New(context.Background(), tag.Upsert(KeyEventType, string(evt.Type)))
		if err != nil {
			return err
		}
		stats.Record(ctx, WorkflowEvents.M(1))
	case model.MODULE_REGISTERED:
	default:
		ctx, err := tag.New(context.Background(),
			tag.Upsert(KeyEventType, string(evt.Type)),
			tag.Upsert(KeyOperation, operation),
		)
		if err != nil {
			return err
		}
		stats.Record(ctx, JobEvents.M(1))
		if evt.Type == model.JOB_COMPLETED || evt.Type == model.JOB_FAILED {
			if retries, ok := evt.Payload["retry_count"].(int); ok {
				stats.Record(ctx, JobRetries.M(int64(retries)))
			}
		}
	}
	return nil
}
