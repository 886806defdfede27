package metrics

import (
	"testing"

	"github.com/mohitkumar/mediaflow/events"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
)

func countFor(t *testing.T, viewName string, eventType model.EventType) int64 {
	rows, err := view.RetrieveData(viewName)
	require.NoError(t, err)
	for _, row := range rows {
		for _, tg := range row.Tags {
			if tg.Key == KeyEventType && tg.Value == string(eventType) {
				return row.Data.(*view.CountData).Value
			}
		}
	}
	return 0
}

func TestHandle(t *testing.T) {
	require.NoError(t, Register())
	defer view.Unregister(Views...)

	job := &model.Job{Id: "j1", ProjectId: "p1", Operation: model.IMAGE_GENERATE, RetryCount: 1}
	require.NoError(t, Handle(events.NewEvent(model.JOB_CREATED, model.JobEventPayload(job), "")))
	require.NoError(t, Handle(events.NewEvent(model.JOB_COMPLETED, model.JobEventPayload(job), "")))
	require.NoError(t, Handle(events.NewEvent(model.JOB_COMPLETED, model.JobEventPayload(job), "")))
	require.NoError(t, Handle(events.NewEvent(model.WORKFLOW_STARTED, map[string]any{"draft_id": "d1"}, "")))
	require.NoError(t, Handle(events.NewEvent(model.MODULE_REGISTERED, map[string]any{"module_id": "image.basic"}, "")))

	require.Equal(t, int64(1), countFor(t, JobEventsView.Name, model.JOB_CREATED))
	require.Equal(t, int64(2), countFor(t, JobEventsView.Name, model.JOB_COMPLETED))
	require.Equal(t, int64(1), countFor(t, WorkflowEventsView.Name, model.WORKFLOW_STARTED))

	rows, err := view.RetrieveData(JobRetriesView.Name)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(2), rows[0].Data.(*view.DistributionData).Count)
}
