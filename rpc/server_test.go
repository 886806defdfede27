package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mohitkumar/mediaflow/config"
	"github.com/mohitkumar/mediaflow/dispatch"
	"github.com/mohitkumar/mediaflow/events"
	"github.com/mohitkumar/mediaflow/ledger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence/memory"
	"github.com/mohitkumar/mediaflow/registry"
	"github.com/mohitkumar/mediaflow/service"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func setupTest(t *testing.T) (*WorkerServiceClient, *service.JobService) {
	storage := memory.NewStorage()
	publisher := events.NoopPublisher{}
	l := ledger.NewJobLedger(storage.Jobs, publisher, 3)
	r := registry.NewModuleRegistry(storage.Modules, publisher, time.Minute)
	_, err := r.Register(context.Background(), model.ModuleCapability{
		Id: "video.remote", Category: "video", Version: "1", Active: true,
		EndpointType: model.ENDPOINT_EXTERNAL,
	})
	require.NoError(t, err)
	d := dispatch.NewDispatcher(r, l, storage.Queue, storage.DelayQueue, config.DispatchConfig{Timeout: time.Second, Capacity: 16}, 1)
	d.Start()
	t.Cleanup(d.Stop)
	jobs := service.NewJobService(l, d, r, time.Minute)

	gsrv, err := NewGrpcServer(&GrpcConfig{JobService: jobs})
	require.NoError(t, err)
	lis := bufconn.Listen(1 << 20)
	go func() {
		_ = gsrv.Serve(lis)
	}()
	t.Cleanup(gsrv.Stop)

	conn, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewWorkerServiceClient(conn), jobs
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestWorkerService(t *testing.T) {
	client, jobs := setupTest(t)
	ctx := context.Background()

	_, err := client.Poll(ctx, mustStruct(t, map[string]any{"channel": "video.generate"}))
	require.Equal(t, codes.NotFound, status.Code(err))

	job, err := jobs.Submit(ctx, model.CreateJobRequest{ProjectId: "p1", ModuleId: "video.remote", Operation: model.VIDEO_GENERATE})
	require.NoError(t, err)

	var polled *structpb.Struct
	require.Eventually(t, func() bool {
		res, err := client.Poll(ctx, mustStruct(t, map[string]any{"channel": "video.generate", "batch_size": 5}))
		if err != nil {
			return false
		}
		polled = res
		return true
	}, time.Second, 10*time.Millisecond)
	list := polled.Fields["jobs"].GetListValue().GetValues()
	require.Len(t, list, 1)
	require.Equal(t, job.Id, list[0].GetStructValue().Fields["job_id"].GetStringValue())

	res, err := client.Start(ctx, mustStruct(t, map[string]any{"job_id": job.Id}))
	require.NoError(t, err)
	require.Equal(t, "running", res.Fields["status"].GetStringValue())

	res, err = client.Complete(ctx, mustStruct(t, map[string]any{
		"job_id":         job.Id,
		"output_payload": map[string]any{"video_url": "s3://bucket/out.mp4"},
	}))
	require.NoError(t, err)
	require.Equal(t, "success", res.Fields["status"].GetStringValue())
	require.Equal(t, "s3://bucket/out.mp4", res.Fields["output_payload"].GetStructValue().Fields["video_url"].GetStringValue())

	_, err = client.Start(ctx, mustStruct(t, map[string]any{"job_id": job.Id}))
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	_, err = client.Get(ctx, mustStruct(t, map[string]any{"job_id": "missing"}))
	require.Equal(t, codes.NotFound, status.Code(err))
	_, err = client.Fail(ctx, mustStruct(t, map[string]any{}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestPollBatchSize(t *testing.T) {
	client, jobs := setupTest(t)
	ctx := context.Background()
	_, err := jobs.Submit(ctx, model.CreateJobRequest{ProjectId: "p1", ModuleId: "video.remote", Operation: model.VIDEO_GENERATE})
	require.NoError(t, err)

	for scenario, batch := range map[string]any{
		"too large":   1e19,
		"above limit": float64(model.MAX_POLL_BATCH + 1),
		"fractional":  2.5,
		"zero":        0,
		"negative":    -3,
		"not numeric": "ten",
	} {
		t.Run(scenario, func(t *testing.T) {
			_, err := client.Poll(ctx, mustStruct(t, map[string]any{"channel": "video.generate", "batch_size": batch}))
			require.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}

	require.Eventually(t, func() bool {
		res, err := client.Poll(ctx, mustStruct(t, map[string]any{"channel": "video.generate", "batch_size": model.MAX_POLL_BATCH}))
		return err == nil && len(res.Fields["jobs"].GetListValue().GetValues()) == 1
	}, time.Second, 10*time.Millisecond)
}

type panickingJobService struct {
	JobService
}

func (panickingJobService) Poll(ctx context.Context, channel string, batchSize int) ([]*model.DispatchMessage, error) {
	panic("queue exploded")
}

func TestRecoverFromPanic(t *testing.T) {
	gsrv, err := NewGrpcServer(&GrpcConfig{JobService: panickingJobService{}})
	require.NoError(t, err)
	lis := bufconn.Listen(1 << 20)
	go func() {
		_ = gsrv.Serve(lis)
	}()
	t.Cleanup(gsrv.Stop)
	conn, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	client := NewWorkerServiceClient(conn)

	for i := 0; i < 2; i++ {
		_, err = client.Poll(context.Background(), mustStruct(t, map[string]any{"channel": "video.generate"}))
		require.Equal(t, codes.Internal, status.Code(err))
	}
}
