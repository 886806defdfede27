package worker

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/mediaflow/config"
	"github.com/mohitkumar/mediaflow/dispatch"
	"github.com/mohitkumar/mediaflow/events"
	"github.com/mohitkumar/mediaflow/ledger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence/memory"
	"github.com/mohitkumar/mediaflow/registry"
	"github.com/mohitkumar/mediaflow/rpc"
	"github.com/mohitkumar/mediaflow/service"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func setupServer(t *testing.T) (*service.JobService, grpc.DialOption) {
	storage := memory.NewStorage()
	publisher := events.NoopPublisher{}
	l := ledger.NewJobLedger(storage.Jobs, publisher, 0)
	r := registry.NewModuleRegistry(storage.Modules, publisher, time.Minute)
	_, err := r.Register(context.Background(), model.ModuleCapability{
		Id: "audio.remote", Category: "audio", Version: "1", Active: true,
		EndpointType: model.ENDPOINT_EXTERNAL,
	})
	require.NoError(t, err)
	d := dispatch.NewDispatcher(r, l, storage.Queue, storage.DelayQueue, config.DispatchConfig{Timeout: time.Second, Capacity: 16}, 1)
	d.Start()
	t.Cleanup(d.Stop)
	jobs := service.NewJobService(l, d, r, time.Minute)

	gsrv, err := rpc.NewGrpcServer(&rpc.GrpcConfig{JobService: jobs})
	require.NoError(t, err)
	lis := bufconn.Listen(1 << 20)
	go func() {
		_ = gsrv.Serve(lis)
	}()
	t.Cleanup(gsrv.Stop)
	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	return jobs, dialer
}

func TestPollerWorker(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"successful handler completes the job": testHandlerSucceeds,
		"failing handler fails the job":        testHandlerFails,
	} {
		t.Run(scenario, fn)
	}
}

func startWorker(t *testing.T, dialer grpc.DialOption, handler Handler) {
	var wg sync.WaitGroup
	pw, err := NewPollerWorker(Config{
		ServerUrl:    "bufnet",
		Channel:      "audio.stems",
		BatchSize:    4,
		PollInterval: 10 * time.Millisecond,
		DialOptions:  []grpc.DialOption{dialer},
	}, handler, &wg)
	require.NoError(t, err)
	pw.Start()
	t.Cleanup(func() {
		require.NoError(t, pw.Stop())
		wg.Wait()
	})
}

func submit(t *testing.T, jobs *service.JobService) *model.Job {
	job, err := jobs.Submit(context.Background(), model.CreateJobRequest{
		ProjectId:    "p1",
		ModuleId:     "audio.remote",
		Operation:    model.AUDIO_STEMS,
		InputPayload: map[string]any{"audio_path": "s3://bucket/song.wav"},
	})
	require.NoError(t, err)
	return job
}

func waitForStatus(t *testing.T, jobs *service.JobService, id string, want model.JobStatus) *model.Job {
	var job *model.Job
	require.Eventually(t, func() bool {
		got, err := jobs.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = got
		return got.Status == want
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func testHandlerSucceeds(t *testing.T) {
	jobs, dialer := setupServer(t)
	startWorker(t, dialer, func(ctx context.Context, msg *model.DispatchMessage) (map[string]any, error) {
		return map[string]any{"stems": map[string]any{"vocal": "s3://bucket/vocal.wav"}, "source": msg.InputPayload["audio_path"]}, nil
	})
	job := submit(t, jobs)
	done := waitForStatus(t, jobs, job.Id, model.JOB_STATUS_SUCCESS)
	require.Equal(t, "s3://bucket/song.wav", done.OutputPayload["source"])
}

func testHandlerFails(t *testing.T) {
	jobs, dialer := setupServer(t)
	startWorker(t, dialer, func(ctx context.Context, msg *model.DispatchMessage) (map[string]any, error) {
		return nil, errors.New("separation model crashed")
	})
	job := submit(t, jobs)
	failed := waitForStatus(t, jobs, job.Id, model.JOB_STATUS_FAILED)
	require.Equal(t, "separation model crashed", failed.ErrorMessage)
}
