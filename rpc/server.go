package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/util"
	"go.opencensus.io/plugin/ocgrpc"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type JobService interface {
	Get(ctx context.Context, id string) (*model.Job, error)
	Start(ctx context.Context, id string) (*model.Job, error)
	Complete(ctx context.Context, id string, output map[string]any) (*model.Job, error)
	Fail(ctx context.Context, id string, message string) (*model.Job, error)
	Cancel(ctx context.Context, id string) (*model.Job, error)
	Poll(ctx context.Context, channel string, batchSize int) ([]*model.DispatchMessage, error)
}

type GrpcConfig struct {
	JobService JobService
}

type grpcServer struct {
	*GrpcConfig
}

var _ WorkerServiceServer = (*grpcServer)(nil)

func NewGrpcServer(config *GrpcConfig) (*grpc.Server, error) {
	zl := logger.Named("grpc")
	zapOpts := []grpc_zap.Option{
		grpc_zap.WithDurationField(
			func(duration time.Duration) zapcore.Field {
				return zap.Int64(
					"grpc.time_ns",
					duration.Nanoseconds(),
				)
			},
		),
	}
	recoveryOpts := []grpc_recovery.Option{
		grpc_recovery.WithRecoveryHandler(func(p any) error {
			zl.Error("recovered from panic in grpc handler", zap.Any("panic", p), zap.Stack("stack"))
			return status.Errorf(codes.Internal, "internal error")
		}),
	}
	trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
	if err := view.Register(ocgrpc.DefaultServerViews...); err != nil {
		return nil, err
	}
	gsrv := grpc.NewServer(
		grpc.StreamInterceptor(
			grpc_middleware.ChainStreamServer(
				grpc_ctxtags.StreamServerInterceptor(),
				grpc_zap.StreamServerInterceptor(zl, zapOpts...),
				grpc_recovery.StreamServerInterceptor(recoveryOpts...),
			)),
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_ctxtags.UnaryServerInterceptor(),
			grpc_zap.UnaryServerInterceptor(zl, zapOpts...),
			grpc_recovery.UnaryServerInterceptor(recoveryOpts...),
		)),
		grpc.StatsHandler(&ocgrpc.ServerHandler{}),
	)
	RegisterWorkerServiceServer(gsrv, &grpcServer{GrpcConfig: config})
	return gsrv, nil
}

func (srv *grpcServer) Poll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	channel := util.StringField(req, "channel")
	if len(channel) == 0 {
		return nil, api.ValidationError{Field: "channel", Reason: "required"}
	}
	batch, err := batchSize(req)
	if err != nil {
		return nil, err
	}
	msgs, err := srv.JobService.Poll(ctx, channel, batch)
	if err != nil {
		return nil, err
	}
	jobs := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		m, err := toMap(msg)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, m)
	}
	return util.ConvertToStruct(map[string]any{"jobs": jobs})
}

func batchSize(req *structpb.Struct) (int, error) {
	v, ok := req.GetFields()["batch_size"]
	if !ok {
		return 1, nil
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber || n.NumberValue != math.Trunc(n.NumberValue) || n.NumberValue < 1 || n.NumberValue > model.MAX_POLL_BATCH {
		return 0, api.ValidationError{Field: "batch_size", Reason: fmt.Sprintf("must be an integer between 1 and %d", model.MAX_POLL_BATCH)}
	}
	return int(n.NumberValue), nil
}

func (srv *grpcServer) Start(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return srv.withJob(req, func(id string) (*model.Job, error) {
		return srv.JobService.Start(ctx, id)
	})
}

func (srv *grpcServer) Complete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var output map[string]any
	if v, ok := req.GetFields()["output_payload"]; ok {
		output = v.GetStructValue().AsMap()
	}
	return srv.withJob(req, func(id string) (*model.Job, error) {
		return srv.JobService.Complete(ctx, id, output)
	})
}

func (srv *grpcServer) Fail(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	message := util.StringField(req, "error_message")
	return srv.withJob(req, func(id string) (*model.Job, error) {
		return srv.JobService.Fail(ctx, id, message)
	})
}

func (srv *grpcServer) Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return srv.withJob(req, func(id string) (*model.Job, error) {
		return srv.JobService.Cancel(ctx, id)
	})
}

func (srv *grpcServer) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return srv.withJob(req, func(id string) (*model.Job, error) {
		return srv.JobService.Get(ctx, id)
	})
}

func (srv *grpcServer) withJob(req *structpb.Struct, fn func(id string) (*model.Job, error)) (*structpb.Struct, error) {
	id := util.StringField(req, "job_id")
	if len(id) == 0 {
		return nil, api.ValidationError{Field: "job_id", Reason: "required"}
	}
	job, err := fn(id)
	if err != nil {
		return nil, err
	}
	m, err := toMap(job)
	if err != nil {
		return nil, err
	}
	return util.ConvertToStruct(m)
}

// toMap gives v the field names of its json form.
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
