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

var _ Executor = new(TimeoutExecutor)

// TimeoutExecutor fails running jobs whose timeout entry came due before
// they finished.
type TimeoutExecutor struct {
	service      *service.JobService
	dispatcher   *dispatch.Dispatcher
	pollInterval time.Duration
	tw           *util.TickWorker
	wg           *sync.WaitGroup
}

func NewTimeoutExecutor(service *service.JobService, dispatcher *dispatch.Dispatcher, pollInterval time.Duration, wg *sync.WaitGroup) *TimeoutExecutor {
	return &TimeoutExecutor{
		service:      service,
		dispatcher:   dispatcher,
		pollInterval: pollInterval,
		wg:           wg,
	}
}

func (ex *TimeoutExecutor) Name() string {
	return "timeout-executor"
}

func (ex *TimeoutExecutor) Start() error {
	fn := func() {
		ctx := context.Background()
		entries, err := ex.dispatcher.PollTimers(ctx, persistence.TIMEOUT_QUEUE)
		if err != nil {
			logger.Error("error while polling timeout queue", zap.Error(err))
			return
		}
		for _, entry := range entries {
			if err := ex.service.Expire(ctx, entry); err != nil {
				logger.Error("error expiring job", zap.String("jobId", entry.JobId), zap.Error(err))
			}
		}
	}
	ex.tw = util.NewTickWorker("timeout-worker", ex.pollInterval, fn, ex.wg)
	ex.tw.Start()
	logger.Info("timeout executor started")
	return nil
}

func (ex *TimeoutExecutor) Stop() error {
	if ex.tw != nil {
		ex.tw.Stop()
	}
	return nil
}
