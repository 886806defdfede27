package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/util"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type PollerWorker struct {
	conf    Config
	handler Handler
	client  *client
	tw      *util.TickWorker
	wg      *sync.WaitGroup
}

func NewPollerWorker(conf Config, handler Handler, wg *sync.WaitGroup) (*PollerWorker, error) {
	if conf.BatchSize <= 0 {
		conf.BatchSize = 1
	}
	if conf.BatchSize > model.MAX_POLL_BATCH {
		conf.BatchSize = model.MAX_POLL_BATCH
	}
	if conf.PollInterval <= 0 {
		conf.PollInterval = time.Second
	}
	if conf.ReportRetryInterval <= 0 {
		conf.ReportRetryInterval = time.Second
	}
	c, err := newClient(conf.ServerUrl, conf.DialOptions...)
	if err != nil {
		return nil, err
	}
	return &PollerWorker{
		conf:    conf,
		handler: handler,
		client:  c,
		wg:      wg,
	}, nil
}

func (pw *PollerWorker) Start() {
	pw.tw = util.NewTickWorker("poller-"+pw.conf.Channel, pw.conf.PollInterval, pw.poll, pw.wg)
	pw.tw.Start()
}

func (pw *PollerWorker) Stop() error {
	if pw.tw != nil {
		pw.tw.Stop()
	}
	return pw.client.Close()
}

func (pw *PollerWorker) poll() {
	ctx := context.Background()
	req, err := structpb.NewStruct(map[string]any{
		"channel":    pw.conf.Channel,
		"batch_size": pw.conf.BatchSize,
	})
	if err != nil {
		logger.Error("error building poll request", zap.Error(err))
		return
	}
	res, err := pw.client.api.Poll(ctx, req)
	if err != nil {
		if status.Code(err) != codes.NotFound {
			logger.Error("error polling jobs", zap.String("channel", pw.conf.Channel), zap.Error(err))
		}
		return
	}
	for _, v := range res.GetFields()["jobs"].GetListValue().GetValues() {
		msg, err := decodeMessage(v.GetStructValue())
		if err != nil {
			logger.Error("can not decode dispatch message", zap.Error(err))
			continue
		}
		pw.execute(ctx, msg)
	}
}

func (pw *PollerWorker) execute(ctx context.Context, msg *model.DispatchMessage) {
	jobRef, _ := structpb.NewStruct(map[string]any{"job_id": msg.JobId})
	if _, err := pw.client.api.Start(ctx, jobRef); err != nil {
		logger.Warn("job not started", zap.String("jobId", msg.JobId), zap.Error(err))
		return
	}
	output, err := pw.handler(ctx, msg)
	report := map[string]any{"job_id": msg.JobId}
	method := pw.client.api.Complete
	if err != nil {
		report["error_message"] = err.Error()
		method = pw.client.api.Fail
	} else {
		report["output_payload"] = output
	}
	req, err := util.ConvertToStruct(report)
	if err != nil {
		logger.Error("can not encode job result", zap.String("jobId", msg.JobId), zap.Error(err))
		return
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(pw.conf.ReportRetryInterval), uint64(pw.conf.MaxReportRetries))
	err = backoff.Retry(func() error {
		_, err := method(ctx, req)
		switch status.Code(err) {
		case codes.OK:
			return nil
		case codes.Unavailable, codes.DeadlineExceeded, codes.Internal:
			return err
		}
		return backoff.Permanent(err)
	}, b)
	if err != nil {
		logger.Error("error reporting job result", zap.String("jobId", msg.JobId), zap.Error(err))
	}
}

func decodeMessage(s *structpb.Struct) (*model.DispatchMessage, error) {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return nil, err
	}
	var msg model.DispatchMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
