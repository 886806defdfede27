package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/events"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence"
	"go.uber.org/zap"
)

// casAttempts bounds how often a transition re-reads the job after losing a
// compare-and-swap to a concurrent writer.
const casAttempts = 8

// JobLedger owns the job state machine:
//
//	queued -> running -> success | queued (retry) | failed
//	queued | running -> canceled
//
// success, failed and canceled are terminal.
type JobLedger struct {
	storage           persistence.JobStorage
	publisher         events.Publisher
	defaultMaxRetries int
}

func NewJobLedger(storage persistence.JobStorage, publisher events.Publisher, defaultMaxRetries int) *JobLedger {
	if defaultMaxRetries < 0 {
		defaultMaxRetries = model.DEFAULT_MAX_RETRIES
	}
	return &JobLedger{
		storage:           storage,
		publisher:         publisher,
		defaultMaxRetries: defaultMaxRetries,
	}
}

func (l *JobLedger) Create(ctx context.Context, req model.CreateJobRequest) (*model.Job, error) {
	if err := l.validate(req); err != nil {
		return nil, err
	}
	priority := model.DEFAULT_PRIORITY
	if req.Priority != nil {
		priority = *req.Priority
	}
	maxRetries := l.defaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	job := &model.Job{
		Id:           uuid.NewString(),
		ProjectId:    req.ProjectId,
		DraftId:      req.DraftId,
		ModuleId:     req.ModuleId,
		Operation:    req.Operation,
		Status:       model.JOB_STATUS_QUEUED,
		Priority:     priority,
		InputPayload: req.InputPayload,
		MaxRetries:   maxRetries,
		QueuedAt:     time.Now().UTC(),
	}
	if err := l.storage.CreateJob(ctx, job); err != nil {
		logger.Error("error creating job", zap.String("projectId", job.ProjectId), zap.Error(err))
		return nil, err
	}
	logger.Debug("job created", zap.String("jobId", job.Id), zap.String("operation", string(job.Operation)))
	l.publisher.Publish(ctx, model.JOB_CREATED, model.JobEventPayload(job), "")
	return job, nil
}

func (l *JobLedger) validate(req model.CreateJobRequest) error {
	if len(strings.TrimSpace(req.ProjectId)) == 0 {
		return api.ValidationError{Field: "project_id", Reason: "required"}
	}
	if len(strings.TrimSpace(req.ModuleId)) == 0 {
		return api.ValidationError{Field: "module_id", Reason: "required"}
	}
	if len(strings.TrimSpace(string(req.Operation))) == 0 {
		return api.ValidationError{Field: "type", Reason: "required"}
	}
	if req.Priority != nil && (*req.Priority < model.MIN_PRIORITY || *req.Priority > model.MAX_PRIORITY) {
		return api.ValidationError{Field: "priority", Reason: "must be between 0 and 9"}
	}
	if req.MaxRetries != nil && *req.MaxRetries < 0 {
		return api.ValidationError{Field: "max_retries", Reason: "must not be negative"}
	}
	return model.ValidatePayload(req.Operation, req.InputPayload)
}

func (l *JobLedger) Get(ctx context.Context, id string) (*model.Job, error) {
	return l.storage.GetJob(ctx, id)
}

func (l *JobLedger) ListByProject(ctx context.Context, projectId string) ([]*model.Job, error) {
	return l.storage.ListJobsByProject(ctx, projectId)
}

func (l *JobLedger) ListByDraft(ctx context.Context, draftId string) ([]*model.Job, error) {
	return l.storage.ListJobsByDraft(ctx, draftId)
}

func (l *JobLedger) TransitionToRunning(ctx context.Context, id string) (*model.Job, error) {
	return l.update(ctx, id, func(job *model.Job) (model.EventType, bool, error) {
		if job.Status != model.JOB_STATUS_QUEUED {
			return "", false, api.InvalidTransitionError{JobId: id, From: string(job.Status), To: string(model.JOB_STATUS_RUNNING)}
		}
		now := time.Now().UTC()
		job.Status = model.JOB_STATUS_RUNNING
		job.StartedAt = &now
		return model.JOB_STARTED, true, nil
	})
}

// Complete is a no-op on a terminal job so a late worker report after a
// cancel or timeout is absorbed.
func (l *JobLedger) Complete(ctx context.Context, id string, output map[string]any) (*model.Job, error) {
	return l.update(ctx, id, func(job *model.Job) (model.EventType, bool, error) {
		if job.Status.IsTerminal() {
			return "", false, nil
		}
		if job.Status != model.JOB_STATUS_RUNNING {
			return "", false, api.InvalidTransitionError{JobId: id, From: string(job.Status), To: string(model.JOB_STATUS_SUCCESS)}
		}
		now := time.Now().UTC()
		job.Status = model.JOB_STATUS_SUCCESS
		job.OutputPayload = output
		job.ErrorMessage = ""
		job.FinishedAt = &now
		return model.JOB_COMPLETED, true, nil
	})
}

// Fail puts the job back to queued while retries remain, otherwise fails it
// for good. No-op on a terminal job.
func (l *JobLedger) Fail(ctx context.Context, id string, message string) (*model.Job, error) {
	return l.update(ctx, id, func(job *model.Job) (model.EventType, bool, error) {
		if job.Status.IsTerminal() {
			return "", false, nil
		}
		job.ErrorMessage = message
		if job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = model.JOB_STATUS_QUEUED
			job.StartedAt = nil
			return model.JOB_RETRYING, true, nil
		}
		now := time.Now().UTC()
		job.Status = model.JOB_STATUS_FAILED
		job.FinishedAt = &now
		return model.JOB_FAILED, true, nil
	})
}

func (l *JobLedger) Cancel(ctx context.Context, id string) (*model.Job, error) {
	return l.update(ctx, id, func(job *model.Job) (model.EventType, bool, error) {
		if job.Status.IsTerminal() {
			return "", false, nil
		}
		now := time.Now().UTC()
		job.Status = model.JOB_STATUS_CANCELED
		job.FinishedAt = &now
		return model.JOB_CANCELLED, true, nil
	})
}

// Expire fails a running job that has not moved since version was observed.
// A job that changed in the meantime is returned untouched with false.
func (l *JobLedger) Expire(ctx context.Context, id string, version int64, message string) (*model.Job, bool, error) {
	expired := false
	job, err := l.update(ctx, id, func(job *model.Job) (model.EventType, bool, error) {
		if job.Status != model.JOB_STATUS_RUNNING || job.Version != version {
			return "", false, nil
		}
		expired = true
		job.ErrorMessage = message
		if job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = model.JOB_STATUS_QUEUED
			job.StartedAt = nil
			return model.JOB_RETRYING, true, nil
		}
		now := time.Now().UTC()
		job.Status = model.JOB_STATUS_FAILED
		job.FinishedAt = &now
		return model.JOB_FAILED, true, nil
	})
	return job, expired && err == nil, err
}

// update applies fn to a fresh copy of the job and stores it conditioned on
// the status and version that were read. fn reports whether it changed the
// job; an unchanged job is returned as is without an event.
func (l *JobLedger) update(ctx context.Context, id string, fn func(job *model.Job) (model.EventType, bool, error)) (*model.Job, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		current, err := l.storage.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		eventType, changed, err := fn(next)
		if err != nil {
			return nil, err
		}
		if !changed {
			return current, nil
		}
		next.Version = current.Version + 1
		ok, err := l.storage.CompareAndSwapJob(ctx, next, current.Status, current.Version)
		if err != nil {
			logger.Error("error updating job", zap.String("jobId", id), zap.Error(err))
			return nil, err
		}
		if ok {
			logger.Debug("job transitioned", zap.String("jobId", id), zap.String("from", string(current.Status)), zap.String("to", string(next.Status)))
			l.publisher.Publish(ctx, eventType, model.JobEventPayload(next), "")
			return next, nil
		}
		logger.Debug("lost job update race, retrying", zap.String("jobId", id), zap.Int("attempt", attempt))
	}
	return nil, persistence.StorageLayerError{Message: "too many concurrent updates on job " + id}
}
