package executor

import (
	"context"
	"sync"
	"time"

	"github.com/mohitkumar/mediaflow/dispatch"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/persistence"
	"github.com/mohitkumar/mediaflow/service"
	"github.com/mohitkumar/mediaflow/util"
	"go.uber.org/zap"
)

var _ Executor = new(RetryExecutor)

type RetryExecutor struct {
	service      *service.JobService
	dispatcher   *dispatch.Dispatcher
	pollInterval time.Duration
	tw           *util.TickWorker
	wg           *sync.WaitGroup
}

func NewRetryExecutor(service *service.JobService, dispatcher *dispatch.Dispatcher, pollInterval time.Duration, wg *sync.WaitGroup) *RetryExecutor {
	return &RetryExecutor{
		service:      service,
		dispatcher:   dispatcher,
		pollInterval: pollInterval,
		wg:           wg,
	}
}

func (ex *RetryExecutor) Name() string {
	return "retry-executor"
}

func (ex *RetryExecutor) Start() error {
	fn := func() {
		ctx := context.Background()
		entries, err := ex.dispatcher.PollTimers(ctx, persistence.RETRY_QUEUE)
		if err != nil {
			logger.Error("error while polling retry queue", zap.Error(err))
			return
		}
		for _, entry := range entries {
			if err := ex.service.Redispatch(ctx, entry); err != nil {
				logger.Error("error redispatching job", zap.String("jobId", entry.JobId), zap.Error(err))
			}
		}
	}
	ex.tw = util.NewTickWorker("retry-worker", ex.pollInterval, fn, ex.wg)
	ex.tw.Start()
	logger.Info("retry executor started")
	return nil
}

func (ex *RetryExecutor) Stop() error {
	if ex.tw != nil {
		ex.tw.Stop()
	}
	return nil
}
