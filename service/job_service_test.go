package service

import (
	"context"
	"testing"
	"time"

	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/config"
	"github.com/mohitkumar/mediaflow/dispatch"
	"github.com/mohitkumar/mediaflow/events"
	"github.com/mohitkumar/mediaflow/ledger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence"
	"github.com/mohitkumar/mediaflow/persistence/memory"
	"github.com/mohitkumar/mediaflow/registry"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	service    *JobService
	dispatcher *dispatch.Dispatcher
	recorder   *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	storage := memory.NewStorage()
	recorder := events.NewRecorder()
	l := ledger.NewJobLedger(storage.Jobs, recorder, 2)
	r := registry.NewModuleRegistry(storage.Modules, recorder, time.Minute)
	d := dispatch.NewDispatcher(r, l, storage.Queue, storage.DelayQueue, config.DispatchConfig{
		Timeout:     time.Second,
		RetryPolicy: config.RETRY_POLICY_FIXED,
		Capacity:    16,
	}, 1)
	d.Start()
	t.Cleanup(d.Stop)

	_, err := r.Register(context.Background(), model.ModuleCapability{
		Id:           "video.remote",
		Category:     "video",
		Version:      "1",
		Active:       true,
		EndpointType: model.ENDPOINT_EXTERNAL,
		Endpoint:     "grpc://video:8099",
	})
	require.NoError(t, err)
	return &fixture{
		service:    NewJobService(l, d, r, time.Minute),
		dispatcher: d,
		recorder:   recorder,
	}
}

func (f *fixture) submit(t *testing.T) *model.Job {
	job, err := f.service.Submit(context.Background(), model.CreateJobRequest{
		ProjectId:    "p1",
		ModuleId:     "video.remote",
		Operation:    model.VIDEO_GENERATE,
		InputPayload: map[string]any{"prompt": "a beach at dusk"},
	})
	require.NoError(t, err)
	return job
}

func (f *fixture) pollOne(t *testing.T) *model.DispatchMessage {
	var msg *model.DispatchMessage
	require.Eventually(t, func() bool {
		msgs, err := f.service.Poll(context.Background(), "video.generate", 1)
		if err != nil || len(msgs) == 0 {
			return false
		}
		msg = msgs[0]
		return true
	}, time.Second, 10*time.Millisecond)
	return msg
}

func TestJobService(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"unknown module creates no job":        testSubmitUnknownModule,
		"submitted job reaches its worker":     testSubmitAndPoll,
		"failed job is dispatched again":       testFailAndRedispatch,
		"stale retry entry is discarded":       testStaleRedispatch,
		"timeout requeues a running job":       testExpire,
		"timeout after completion is absorbed": testStaleExpire,
		"empty queue reports poll error":       testPollEmpty,
		"poll batch out of range":              testPollBatchRange,
	} {
		t.Run(scenario, fn)
	}
}

func testSubmitUnknownModule(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Submit(context.Background(), model.CreateJobRequest{
		ProjectId: "p1",
		ModuleId:  "nope",
		Operation: model.IMAGE_GENERATE,
	})
	require.True(t, api.IsUnknownModule(err))
	jobs, err := f.service.ListByProject(context.Background(), "p1")
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func testSubmitAndPoll(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t)
	require.Equal(t, model.JOB_STATUS_QUEUED, job.Status)
	msg := f.pollOne(t)
	require.Equal(t, job.Id, msg.JobId)
	require.Equal(t, 0, msg.Attempt)
	require.Equal(t, "a beach at dusk", msg.InputPayload["prompt"])
}

func testFailAndRedispatch(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t)
	f.pollOne(t)
	_, err := f.service.Start(context.Background(), job.Id)
	require.NoError(t, err)
	failed, err := f.service.Fail(context.Background(), job.Id, "provider unavailable")
	require.NoError(t, err)
	require.Equal(t, model.JOB_STATUS_QUEUED, failed.Status)
	require.Equal(t, 1, failed.RetryCount)

	entries, err := f.dispatcher.PollTimers(context.Background(), persistence.RETRY_QUEUE)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, f.service.Redispatch(context.Background(), entries[0]))

	msg := f.pollOne(t)
	require.Equal(t, job.Id, msg.JobId)
	require.Equal(t, 1, msg.Attempt)
}

func testStaleRedispatch(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t)
	f.pollOne(t)
	_, err := f.service.Cancel(context.Background(), job.Id)
	require.NoError(t, err)

	require.NoError(t, f.service.Redispatch(context.Background(), model.TimerEntry{JobId: job.Id, Version: job.Version}))
	require.NoError(t, f.service.Redispatch(context.Background(), model.TimerEntry{JobId: "missing", Version: 1}))
	got, err := f.service.Get(context.Background(), job.Id)
	require.NoError(t, err)
	require.Equal(t, model.JOB_STATUS_CANCELED, got.Status)
}

func testExpire(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t)
	f.pollOne(t)
	running, err := f.service.Start(context.Background(), job.Id)
	require.NoError(t, err)

	require.NoError(t, f.service.Expire(context.Background(), model.TimerEntry{JobId: job.Id, Version: running.Version}))
	got, err := f.service.Get(context.Background(), job.Id)
	require.NoError(t, err)
	require.Equal(t, model.JOB_STATUS_QUEUED, got.Status)
	require.Equal(t, 1, got.RetryCount)
	require.Equal(t, TIMEOUT_MESSAGE, got.ErrorMessage)

	entries, err := f.dispatcher.PollTimers(context.Background(), persistence.RETRY_QUEUE)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, got.Version, entries[0].Version)
}

func testStaleExpire(t *testing.T) {
	f := newFixture(t)
	job := f.submit(t)
	f.pollOne(t)
	running, err := f.service.Start(context.Background(), job.Id)
	require.NoError(t, err)
	_, err = f.service.Complete(context.Background(), job.Id, map[string]any{"video_url": "mock://video.mp4"})
	require.NoError(t, err)

	require.NoError(t, f.service.Expire(context.Background(), model.TimerEntry{JobId: job.Id, Version: running.Version}))
	got, err := f.service.Get(context.Background(), job.Id)
	require.NoError(t, err)
	require.Equal(t, model.JOB_STATUS_SUCCESS, got.Status)
	require.Equal(t, 0, f.recorder.Count(model.JOB_RETRYING))
}

func testPollEmpty(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Poll(context.Background(), "video.generate", 5)
	var pollErr api.PollError
	require.ErrorAs(t, err, &pollErr)
}

func testPollBatchRange(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	for _, batch := range []int{0, -1, model.MAX_POLL_BATCH + 1} {
		_, err := f.service.Poll(context.Background(), "video.generate", batch)
		require.True(t, api.IsValidation(err))
	}
	require.NotNil(t, f.pollOne(t))
}
