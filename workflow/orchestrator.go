// Package workflow expands workflow drafts into jobs and reports on their
// progress.
//
// Steps of a draft are independent. Execute creates every job up front in
// step order and enqueues them all at once; a step never waits for an earlier
// step to finish and never sees its output. Step params may only reference
// the draft itself (see ResolveParams), not the results of sibling jobs.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/config"
	"github.com/mohitkumar/mediaflow/dispatch"
	"github.com/mohitkumar/mediaflow/events"
	"github.com/mohitkumar/mediaflow/ledger"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence"
	"github.com/mohitkumar/mediaflow/util"
	"go.uber.org/zap"
)

// JobDispatcher hands a freshly created job to its executor.
type JobDispatcher interface {
	Dispatch(ctx context.Context, job *model.Job)
}

type Orchestrator struct {
	drafts     persistence.DraftStorage
	projects   persistence.ProjectStorage
	ledger     *ledger.JobLedger
	resolver   dispatch.Resolver
	dispatcher JobDispatcher
	publisher  events.Publisher
	scope      config.StatusScope
}

func NewOrchestrator(drafts persistence.DraftStorage, projects persistence.ProjectStorage, ledger *ledger.JobLedger,
	resolver dispatch.Resolver, dispatcher JobDispatcher, publisher events.Publisher, scope config.StatusScope) *Orchestrator {
	if len(scope) == 0 {
		scope = config.STATUS_SCOPE_PROJECT
	}
	return &Orchestrator{
		drafts:     drafts,
		projects:   projects,
		ledger:     ledger,
		resolver:   resolver,
		dispatcher: dispatcher,
		publisher:  publisher,
		scope:      scope,
	}
}

// Execute fans a draft out into one job per step. Every step is validated
// before the draft is claimed, so a bad step leaves the draft and the ledger
// untouched. The claim is a compare-and-set out of draft or ready, which
// makes a second Execute fail with InvalidStateError.
func (o *Orchestrator) Execute(ctx context.Context, draftId string, projectId string) (*model.ExecuteResult, error) {
	draft, err := o.drafts.GetDraft(ctx, draftId)
	if err != nil {
		return nil, err
	}
	if !draft.Status.Executable() {
		return nil, api.InvalidStateError{DraftId: draftId, State: string(draft.Status), Reason: "draft was already executed"}
	}
	requests, err := o.buildRequests(ctx, draft)
	if err != nil {
		return nil, err
	}
	if len(projectId) != 0 {
		if _, err := o.projects.GetProject(ctx, projectId); err != nil {
			return nil, err
		}
	}

	claimed := *draft
	claimed.Status = model.DRAFT_EXECUTING
	if len(requests) == 0 {
		claimed.Status = model.DRAFT_COMPLETED
	}
	claimed.UpdatedAt = time.Now().UTC()
	ok, err := o.drafts.CompareAndSwapDraft(ctx, &claimed, draft.Status)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := o.drafts.GetDraft(ctx, draftId)
		if err != nil {
			return nil, err
		}
		return nil, api.InvalidStateError{DraftId: draftId, State: string(current.Status), Reason: "draft is being executed concurrently"}
	}

	if len(projectId) == 0 {
		project, err := o.createProject(ctx, draftId)
		if err != nil {
			o.abort(ctx, &claimed, nil, err)
			return nil, err
		}
		projectId = project.Id
	}
	claimed.ProjectId = projectId
	if err := o.saveProject(ctx, &claimed); err != nil {
		o.abort(ctx, &claimed, nil, err)
		return nil, err
	}

	jobs := make([]*model.Job, 0, len(requests))
	for _, req := range requests {
		req.ProjectId = projectId
		job, err := o.ledger.Create(ctx, req)
		if err != nil {
			o.abort(ctx, &claimed, jobs, err)
			return nil, err
		}
		jobs = append(jobs, job)
	}

	jobIds := make([]string, 0, len(jobs))
	for _, job := range jobs {
		jobIds = append(jobIds, job.Id)
	}
	o.publisher.Publish(ctx, model.WORKFLOW_STARTED, map[string]any{
		"draft_id":   draftId,
		"project_id": projectId,
		"step_count": len(requests),
		"job_ids":    jobIds,
		"timestamp":  time.Now().UTC(),
	}, "")
	logger.Info("workflow started", zap.String("draftId", draftId), zap.String("projectId", projectId), zap.Int("steps", len(requests)))
	if len(requests) == 0 {
		o.publishSettled(ctx, &claimed)
	}
	for _, job := range jobs {
		o.dispatcher.Dispatch(ctx, job)
	}
	return &model.ExecuteResult{
		DraftId:   draftId,
		ProjectId: projectId,
		JobIds:    jobIds,
		Status:    claimed.Status,
	}, nil
}

func (o *Orchestrator) buildRequests(ctx context.Context, draft *model.WorkflowDraft) ([]model.CreateJobRequest, error) {
	data := templateData(draft)
	requests := make([]model.CreateJobRequest, 0, len(draft.Steps))
	for i, step := range draft.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		if err := validateStep(field, step); err != nil {
			return nil, err
		}
		op := model.OperationFor(step.Module, step.Action)
		params := util.ResolveParams(data, step.Params)
		if err := model.ValidatePayload(op, params); err != nil {
			var ve api.ValidationError
			if errors.As(err, &ve) {
				ve.Field = joinField(field, ve.Field)
				return nil, ve
			}
			return nil, err
		}
		if _, err := o.resolver.Resolve(ctx, step.Module); err != nil {
			return nil, err
		}
		requests = append(requests, model.CreateJobRequest{
			DraftId:      draft.Id,
			ModuleId:     step.Module,
			Operation:    op,
			InputPayload: params,
		})
	}
	return requests, nil
}

// templateData is what step params can reference, e.g. {$.metadata.prompt}.
func templateData(draft *model.WorkflowDraft) map[string]any {
	metadata := draft.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return map[string]any{
		"draft_id": draft.Id,
		"idea_id":  draft.IdeaId,
		"metadata": metadata,
	}
}

func (o *Orchestrator) createProject(ctx context.Context, draftId string) (*model.Project, error) {
	project := &model.Project{
		Id:        uuid.NewString(),
		Name:      "Workflow " + draftId,
		OwnerId:   model.SYSTEM_OWNER,
		Metadata:  map[string]any{"workflow_draft_id": draftId},
		CreatedAt: time.Now().UTC(),
	}
	if err := o.projects.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// saveProject records the project on the claimed draft. The status is left
// as claimed, so the swap only fails if someone else moved the draft.
func (o *Orchestrator) saveProject(ctx context.Context, draft *model.WorkflowDraft) error {
	ok, err := o.drafts.CompareAndSwapDraft(ctx, draft, draft.Status)
	if err != nil {
		return err
	}
	if !ok {
		return persistence.StorageLayerError{Message: "workflow draft " + draft.Id + " changed during execution"}
	}
	return nil
}

// abort marks a claimed draft failed after a storage error in the middle of
// the fan-out and cancels the jobs created so far.
func (o *Orchestrator) abort(ctx context.Context, draft *model.WorkflowDraft, jobs []*model.Job, cause error) {
	logger.Error("workflow fan-out failed", zap.String("draftId", draft.Id), zap.Int("createdJobs", len(jobs)), zap.Error(cause))
	for _, job := range jobs {
		if _, err := o.ledger.Cancel(ctx, job.Id); err != nil {
			logger.Error("error canceling job of aborted workflow", zap.String("jobId", job.Id), zap.Error(err))
		}
	}
	failed := *draft
	failed.Status = model.DRAFT_FAILED
	failed.UpdatedAt = time.Now().UTC()
	ok, err := o.drafts.CompareAndSwapDraft(ctx, &failed, draft.Status)
	if err != nil || !ok {
		logger.Error("error marking workflow draft failed", zap.String("draftId", draft.Id), zap.Error(err))
		return
	}
	o.publishSettled(ctx, &failed)
}

func (o *Orchestrator) publishSettled(ctx context.Context, draft *model.WorkflowDraft) {
	eventType := model.WORKFLOW_COMPLETED
	if draft.Status == model.DRAFT_FAILED {
		eventType = model.WORKFLOW_FAILED
	}
	o.publisher.Publish(ctx, eventType, map[string]any{
		"draft_id":   draft.Id,
		"project_id": draft.ProjectId,
		"status":     string(draft.Status),
		"timestamp":  time.Now().UTC(),
	}, "")
}

// Status aggregates the jobs of a draft. With the project scope every job of
// the draft's project is counted, including jobs of other drafts sharing the
// project; the draft scope counts only jobs the draft created.
//
// Once no job is pending the draft is settled to completed, or failed when
// any job failed or was canceled. Settling is a compare-and-set out of
// executing so the WORKFLOW_COMPLETED or WORKFLOW_FAILED event goes out once.
func (o *Orchestrator) Status(ctx context.Context, draftId string) (*model.WorkflowStatus, error) {
	draft, err := o.drafts.GetDraft(ctx, draftId)
	if err != nil {
		return nil, err
	}
	jobs, err := o.jobsOf(ctx, draft)
	if err != nil {
		return nil, err
	}
	status := &model.WorkflowStatus{
		DraftId:   draftId,
		Status:    draft.Status,
		TotalJobs: len(jobs),
	}
	for _, job := range jobs {
		switch job.Status {
		case model.JOB_STATUS_SUCCESS:
			status.CompletedJobs++
		case model.JOB_STATUS_FAILED:
			status.FailedJobs++
		case model.JOB_STATUS_CANCELED:
			status.FailedJobs++
			status.CanceledJobs++
		default:
			status.PendingJobs++
		}
	}
	switch {
	case status.TotalJobs > 0:
		status.ProgressPercent = math.Round(float64(status.CompletedJobs)/float64(status.TotalJobs)*10000) / 100
	case draft.Status == model.DRAFT_COMPLETED:
		status.ProgressPercent = 100
	}
	if draft.Status == model.DRAFT_EXECUTING && status.TotalJobs > 0 && status.PendingJobs == 0 {
		status.Status = o.settle(ctx, draft, status.FailedJobs > 0)
	}
	return status, nil
}

func (o *Orchestrator) jobsOf(ctx context.Context, draft *model.WorkflowDraft) ([]*model.Job, error) {
	if o.scope == config.STATUS_SCOPE_DRAFT {
		return o.ledger.ListByDraft(ctx, draft.Id)
	}
	if len(draft.ProjectId) == 0 {
		return nil, nil
	}
	return o.ledger.ListByProject(ctx, draft.ProjectId)
}

func (o *Orchestrator) settle(ctx context.Context, draft *model.WorkflowDraft, failed bool) model.DraftStatus {
	settled := *draft
	settled.Status = model.DRAFT_COMPLETED
	if failed {
		settled.Status = model.DRAFT_FAILED
	}
	settled.UpdatedAt = time.Now().UTC()
	ok, err := o.drafts.CompareAndSwapDraft(ctx, &settled, model.DRAFT_EXECUTING)
	if err != nil {
		logger.Error("error settling workflow draft", zap.String("draftId", draft.Id), zap.Error(err))
		return draft.Status
	}
	if !ok {
		current, err := o.drafts.GetDraft(ctx, draft.Id)
		if err != nil {
			return draft.Status
		}
		return current.Status
	}
	logger.Info("workflow settled", zap.String("draftId", draft.Id), zap.String("status", string(settled.Status)))
	o.publishSettled(ctx, &settled)
	return settled.Status
}
