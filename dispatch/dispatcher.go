package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mohitkumar/mediaflow/config"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence"
	"github.com/mohitkumar/mediaflow/util"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Resolver interface {
	Resolve(ctx context.Context, moduleId string) (*model.Route, error)
}

// JobFailer is the part of the ledger the dispatcher reports hand-off
// failures to.
type JobFailer interface {
	Fail(ctx context.Context, id string, message string) (*model.Job, error)
}

// QueueName is the execution queue for an endpoint type and channel, e.g.
// internal:image.generate.
func QueueName(endpointType model.EndpointType, channel string) string {
	return fmt.Sprintf("%s:%s", endpointType, channel)
}

type handoff struct {
	message model.DispatchMessage
	queue   string
}

// Dispatcher routes jobs to execution queues. Enqueue only resolves the
// module on the caller's goroutine; the queue write happens on a hand-off
// worker with a bounded timeout.
type Dispatcher struct {
	resolver   Resolver
	failer     JobFailer
	queue      persistence.Queue
	delayQueue persistence.DelayQueue
	limiter    *rate.Limiter
	conf       config.DispatchConfig
	workers    []*util.Worker
	wg         *sync.WaitGroup
	mu         sync.Mutex
	next       int
}

func NewDispatcher(resolver Resolver, failer JobFailer, queue persistence.Queue, delayQueue persistence.DelayQueue, conf config.DispatchConfig, handoffWorkers int) *Dispatcher {
	d := &Dispatcher{
		resolver:   resolver,
		failer:     failer,
		queue:      queue,
		delayQueue: delayQueue,
		conf:       conf,
		wg:         &sync.WaitGroup{},
	}
	if conf.RatePerSecond > 0 {
		burst := conf.Burst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(conf.RatePerSecond), burst)
	}
	if handoffWorkers <= 0 {
		handoffWorkers = 1
	}
	capacity := conf.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	for i := 0; i < handoffWorkers; i++ {
		d.workers = append(d.workers, util.NewWorker(fmt.Sprintf("dispatch-handoff-%d", i), d.wg, d.handle, capacity))
	}
	return d
}

func (d *Dispatcher) Start() {
	for _, w := range d.workers {
		w.Start()
	}
}

func (d *Dispatcher) Stop() {
	for _, w := range d.workers {
		w.Stop()
	}
	d.wg.Wait()
}

// Enqueue resolves the job's module and hands the job off without waiting for
// the queue write. An unknown module is returned to the caller; a failed
// hand-off is reported to the ledger and retried like a worker failure.
func (d *Dispatcher) Enqueue(ctx context.Context, job *model.Job) error {
	route, err := d.resolver.Resolve(ctx, job.ModuleId)
	if err != nil {
		logger.Error("can not resolve module for job", zap.String("jobId", job.Id), zap.String("moduleId", job.ModuleId), zap.Error(err))
		return err
	}
	task := handoff{
		queue: QueueName(route.EndpointType, job.Operation.Channel()),
		message: model.DispatchMessage{
			JobId:        job.Id,
			ProjectId:    job.ProjectId,
			ModuleId:     route.ModuleId,
			Operation:    job.Operation,
			Priority:     job.Priority,
			Attempt:      job.RetryCount,
			Endpoint:     route.Endpoint,
			EndpointType: route.EndpointType,
			InputPayload: job.InputPayload,
		},
	}
	if !d.nextWorker().TrySend(task) {
		go d.handoffFailed(job.Id, "dispatch buffer full")
	}
	return nil
}

func (d *Dispatcher) nextWorker() *util.Worker {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.workers[d.next]
	d.next = (d.next + 1) % len(d.workers)
	return w
}

func (d *Dispatcher) handle(t util.Task) error {
	task, ok := t.(handoff)
	if !ok {
		return fmt.Errorf("unexpected task %T", t)
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			d.handoffFailed(task.message.JobId, "dispatch rate limited: "+err.Error())
			return nil
		}
	}
	data, err := json.Marshal(task.message)
	if err != nil {
		d.handoffFailed(task.message.JobId, "can not encode dispatch message: "+err.Error())
		return nil
	}
	if err := d.queue.Push(ctx, task.queue, task.message.JobId, data); err != nil {
		d.handoffFailed(task.message.JobId, "dispatch failed: "+err.Error())
		return nil
	}
	logger.Debug("job dispatched", zap.String("jobId", task.message.JobId), zap.String("queue", task.queue))
	return nil
}

func (d *Dispatcher) timeout() time.Duration {
	if d.conf.Timeout <= 0 {
		return 5 * time.Second
	}
	return d.conf.Timeout
}

func (d *Dispatcher) handoffFailed(jobId string, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()
	logger.Warn("job hand-off failed", zap.String("jobId", jobId), zap.String("reason", reason))
	job, err := d.failer.Fail(ctx, jobId, reason)
	if err != nil {
		logger.Error("error recording hand-off failure", zap.String("jobId", jobId), zap.Error(err))
		return
	}
	if err := d.Retry(ctx, job); err != nil {
		logger.Error("error scheduling retry", zap.String("jobId", jobId), zap.Error(err))
	}
}

// Retry schedules a queued job for another dispatch after the retry delay.
// Jobs in any other status are left alone.
func (d *Dispatcher) Retry(ctx context.Context, job *model.Job) error {
	if job.Status != model.JOB_STATUS_QUEUED {
		return nil
	}
	delay := RetryDelay(d.conf.RetryPolicy, d.conf.RetryAfterSeconds, job.RetryCount)
	return d.schedule(ctx, persistence.RETRY_QUEUE, job, delay)
}

// WatchTimeout arms the timeout of a running job. The entry carries the job
// version so it is ignored once the job moved on.
func (d *Dispatcher) WatchTimeout(ctx context.Context, job *model.Job, defaultTimeout time.Duration) error {
	timeout := defaultTimeout
	if route, err := d.resolver.Resolve(ctx, job.ModuleId); err == nil && route.TimeoutSeconds > 0 {
		timeout = time.Duration(route.TimeoutSeconds) * time.Second
	}
	if timeout <= 0 {
		return nil
	}
	return d.schedule(ctx, persistence.TIMEOUT_QUEUE, job, timeout)
}

func (d *Dispatcher) schedule(ctx context.Context, queueName string, job *model.Job, delay time.Duration) error {
	data, err := json.Marshal(model.TimerEntry{JobId: job.Id, Version: job.Version})
	if err != nil {
		return err
	}
	return d.delayQueue.PushWithDelay(ctx, queueName, delay, data)
}

// PollTimers returns the due entries of a timer queue.
func (d *Dispatcher) PollTimers(ctx context.Context, queueName string) ([]model.TimerEntry, error) {
	values, err := d.delayQueue.Pop(ctx, queueName)
	if err != nil {
		return nil, err
	}
	out := make([]model.TimerEntry, 0, len(values))
	for _, v := range values {
		var entry model.TimerEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			logger.Error("dropping malformed timer entry", zap.String("queue", queueName), zap.Error(err))
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// Poll takes up to batchSize messages from an execution queue.
func (d *Dispatcher) Poll(ctx context.Context, endpointType model.EndpointType, channel string, batchSize int) ([]*model.DispatchMessage, error) {
	values, err := d.queue.Pop(ctx, QueueName(endpointType, channel), batchSize)
	if err != nil {
		return nil, err
	}
	out := make([]*model.DispatchMessage, 0, len(values))
	for _, v := range values {
		var msg model.DispatchMessage
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			logger.Error("dropping malformed dispatch message", zap.String("channel", channel), zap.Error(err))
			continue
		}
		out = append(out, &msg)
	}
	return out, nil
}
