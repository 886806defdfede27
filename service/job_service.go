package service

import (
	"context"
	"fmt"
	"time"

	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/dispatch"
	"github.com/mohitkumar/mediaflow/ledger"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/model"
	"go.uber.org/zap"
)

const TIMEOUT_MESSAGE = "job timed out"

// JobService is the entry point for job operations coming from the API and
// from workers. It pairs ledger transitions with the dispatcher work they
// imply: a retry puts the job back on the retry queue, a start arms its
// timeout.
type JobService struct {
	ledger     *ledger.JobLedger
	dispatcher *dispatch.Dispatcher
	resolver   dispatch.Resolver
	jobTimeout time.Duration
}

func NewJobService(ledger *ledger.JobLedger, dispatcher *dispatch.Dispatcher, resolver dispatch.Resolver, jobTimeout time.Duration) *JobService {
	return &JobService{
		ledger:     ledger,
		dispatcher: dispatcher,
		resolver:   resolver,
		jobTimeout: jobTimeout,
	}
}

// Submit creates a job and dispatches it. The module is resolved first so an
// unknown module leaves no job behind.
func (s *JobService) Submit(ctx context.Context, req model.CreateJobRequest) (*model.Job, error) {
	if len(req.ModuleId) != 0 {
		if _, err := s.resolver.Resolve(ctx, req.ModuleId); err != nil {
			return nil, err
		}
	}
	job, err := s.ledger.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.Dispatch(ctx, job)
	return job, nil
}

// Dispatch enqueues a created job. A module that can no longer be resolved
// counts as a failed attempt.
func (s *JobService) Dispatch(ctx context.Context, job *model.Job) {
	if err := s.dispatcher.Enqueue(ctx, job); err != nil {
		if _, ferr := s.Fail(ctx, job.Id, err.Error()); ferr != nil {
			logger.Error("error failing undispatchable job", zap.String("jobId", job.Id), zap.Error(ferr))
		}
	}
}

func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	return s.ledger.Get(ctx, id)
}

func (s *JobService) ListByProject(ctx context.Context, projectId string) ([]*model.Job, error) {
	return s.ledger.ListByProject(ctx, projectId)
}

func (s *JobService) Start(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.ledger.TransitionToRunning(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.dispatcher.WatchTimeout(ctx, job, s.jobTimeout); err != nil {
		logger.Error("error arming job timeout", zap.String("jobId", id), zap.Error(err))
	}
	return job, nil
}

func (s *JobService) Complete(ctx context.Context, id string, output map[string]any) (*model.Job, error) {
	return s.ledger.Complete(ctx, id, output)
}

func (s *JobService) Fail(ctx context.Context, id string, message string) (*model.Job, error) {
	job, err := s.ledger.Fail(ctx, id, message)
	if err != nil {
		return nil, err
	}
	s.retry(ctx, job)
	return job, nil
}

func (s *JobService) Cancel(ctx context.Context, id string) (*model.Job, error) {
	return s.ledger.Cancel(ctx, id)
}

// Expire handles a due timeout entry.
func (s *JobService) Expire(ctx context.Context, entry model.TimerEntry) error {
	job, expired, err := s.ledger.Expire(ctx, entry.JobId, entry.Version, TIMEOUT_MESSAGE)
	if err != nil {
		if api.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !expired {
		logger.Debug("discarding stale timeout", zap.String("jobId", entry.JobId), zap.Int64("version", entry.Version))
		return nil
	}
	logger.Warn("job timed out", zap.String("jobId", job.Id), zap.Int("retryCount", job.RetryCount))
	s.retry(ctx, job)
	return nil
}

// Redispatch handles a due retry entry. The job is enqueued again only when
// it is still queued at the version the entry was scheduled for.
func (s *JobService) Redispatch(ctx context.Context, entry model.TimerEntry) error {
	job, err := s.ledger.Get(ctx, entry.JobId)
	if err != nil {
		if api.IsNotFound(err) {
			return nil
		}
		return err
	}
	if job.Status != model.JOB_STATUS_QUEUED || job.Version != entry.Version {
		logger.Debug("discarding stale retry", zap.String("jobId", entry.JobId), zap.Int64("version", entry.Version))
		return nil
	}
	s.Dispatch(ctx, job)
	return nil
}

// Poll hands queued external work to an out-of-process worker.
func (s *JobService) Poll(ctx context.Context, channel string, batchSize int) ([]*model.DispatchMessage, error) {
	if batchSize < 1 || batchSize > model.MAX_POLL_BATCH {
		return nil, api.ValidationError{Field: "batch_size", Reason: fmt.Sprintf("must be between 1 and %d", model.MAX_POLL_BATCH)}
	}
	msgs, err := s.dispatcher.Poll(ctx, model.ENDPOINT_EXTERNAL, channel, batchSize)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, api.PollError{QueueName: channel}
	}
	return msgs, nil
}

// PollInternal drains an internal execution queue for the in-process
// executor. An empty queue is not an error here.
func (s *JobService) PollInternal(ctx context.Context, channel string, batchSize int) ([]*model.DispatchMessage, error) {
	return s.dispatcher.Poll(ctx, model.ENDPOINT_INTERNAL, channel, batchSize)
}

func (s *JobService) retry(ctx context.Context, job *model.Job) {
	if err := s.dispatcher.Retry(ctx, job); err != nil {
		logger.Error("error scheduling retry", zap.String("jobId", job.Id), zap.Error(err))
	}
}
