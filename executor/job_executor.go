package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/provider"
	"github.com/mohitkumar/mediaflow/service"
	"github.com/mohitkumar/mediaflow/util"
	"go.uber.org/zap"
)

var _ Executor = new(JobExecutor)

// JobExecutor runs jobs routed to internal modules on the in-process
// providers. A tick worker drains the internal queues of every channel a
// provider serves and spreads the messages over a pool of workers.
type JobExecutor struct {
	service      *service.JobService
	providers    provider.Set
	channels     []string
	workers      []*util.Worker
	tw           *util.TickWorker
	numWorkers   int
	capacity     int
	pollInterval time.Duration
	jobTimeout   time.Duration
	wg           *sync.WaitGroup
	next         int
}

func NewJobExecutor(service *service.JobService, providers provider.Set, numWorkers int, capacity int, pollInterval time.Duration, jobTimeout time.Duration, wg *sync.WaitGroup) *JobExecutor {
	var channels []string
	for _, op := range model.WellKnownOperations() {
		if _, ok := providers.For(op.Category()); ok {
			channels = append(channels, op.Channel())
		}
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &JobExecutor{
		service:      service,
		providers:    providers,
		channels:     channels,
		numWorkers:   numWorkers,
		capacity:     capacity,
		pollInterval: pollInterval,
		jobTimeout:   jobTimeout,
		wg:           wg,
	}
}

func (ex *JobExecutor) Name() string {
	return "job-executor"
}

func (ex *JobExecutor) Start() error {
	for i := 0; i < ex.numWorkers; i++ {
		w := util.NewWorker(fmt.Sprintf("job-worker-%d", i), ex.wg, ex.handler, ex.capacity)
		w.Start()
		ex.workers = append(ex.workers, w)
	}
	ex.tw = util.NewTickWorker("job-poller", ex.pollInterval, ex.poll, ex.wg)
	ex.tw.Start()
	logger.Info("job executor started", zap.Strings("channels", ex.channels), zap.Int("workers", ex.numWorkers))
	return nil
}

func (ex *JobExecutor) Stop() error {
	if ex.tw != nil {
		ex.tw.Stop()
	}
	for _, w := range ex.workers {
		w.Stop()
	}
	return nil
}

// poll only takes as many messages as the workers can buffer, so handing
// them over never blocks the poller.
func (ex *JobExecutor) poll() {
	ctx := context.Background()
	for _, channel := range ex.channels {
		free := 0
		for _, w := range ex.workers {
			free += w.Free()
		}
		if free == 0 {
			return
		}
		msgs, err := ex.service.PollInternal(ctx, channel, free)
		if err != nil {
			logger.Error("error while polling job queue", zap.String("channel", channel), zap.Error(err))
			continue
		}
		for _, msg := range msgs {
			ex.nextWorker().Sender() <- msg
		}
	}
}

func (ex *JobExecutor) nextWorker() *util.Worker {
	for {
		w := ex.workers[ex.next]
		ex.next = (ex.next + 1) % len(ex.workers)
		if w.Free() > 0 {
			return w
		}
	}
}

func (ex *JobExecutor) handler(task util.Task) error {
	msg, ok := task.(*model.DispatchMessage)
	if !ok {
		return fmt.Errorf("can not handle task of type %T", task)
	}
	ctx := context.Background()
	job, err := ex.service.Get(ctx, msg.JobId)
	if err != nil {
		return err
	}
	if job.Status != model.JOB_STATUS_QUEUED || job.RetryCount != msg.Attempt {
		logger.Debug("discarding stale dispatch", zap.String("jobId", msg.JobId), zap.Int("attempt", msg.Attempt), zap.String("status", string(job.Status)))
		return nil
	}
	if _, err := ex.service.Start(ctx, msg.JobId); err != nil {
		if api.IsInvalidTransition(err) {
			return nil
		}
		return err
	}
	output, err := ex.run(ctx, msg)
	if err != nil {
		logger.Warn("job execution failed", zap.String("jobId", msg.JobId), zap.String("type", string(msg.Operation)), zap.Error(err))
		_, err = ex.service.Fail(ctx, msg.JobId, err.Error())
		return err
	}
	_, err = ex.service.Complete(ctx, msg.JobId, output)
	return err
}

func (ex *JobExecutor) run(ctx context.Context, msg *model.DispatchMessage) (map[string]any, error) {
	capability, ok := ex.providers.For(msg.Operation.Category())
	if !ok {
		return nil, fmt.Errorf("no provider for category %s", msg.Operation.Category())
	}
	if ex.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ex.jobTimeout)
		defer cancel()
	}
	return capability.Execute(ctx, msg.Operation, msg.InputPayload)
}
