package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/model"
	"go.uber.org/zap"
)

const ESTIMATED_COST = 0.5
const ESTIMATED_TIME_SECONDS = 300

func (o *Orchestrator) CreateDraft(ctx context.Context, req model.CreateDraftRequest) (*model.WorkflowDraft, error) {
	if len(req.IdeaId) == 0 {
		return nil, api.ValidationError{Field: "idea_id", Reason: "required"}
	}
	for i, step := range req.Steps {
		if err := validateStep(fmt.Sprintf("steps[%d]", i), step); err != nil {
			return nil, err
		}
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	steps := req.Steps
	if steps == nil {
		steps = []model.WorkflowStep{}
	}
	now := time.Now().UTC()
	draft := &model.WorkflowDraft{
		Id:        uuid.NewString(),
		IdeaId:    req.IdeaId,
		Steps:     steps,
		Status:    model.DRAFT_DRAFT,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.drafts.CreateDraft(ctx, draft); err != nil {
		return nil, err
	}
	logger.Info("workflow draft created", zap.String("draftId", draft.Id), zap.String("ideaId", draft.IdeaId), zap.Int("steps", len(steps)))
	return draft, nil
}

// GenerateDraft builds a draft from the step template of an idea type.
// Unknown types get the mixed template. The prompt is kept in the draft
// metadata and referenced from the step params.
func (o *Orchestrator) GenerateDraft(ctx context.Context, req model.GenerateDraftRequest) (*model.WorkflowDraft, error) {
	if req.VersionIndex < 0 {
		return nil, api.ValidationError{Field: "version_index", Reason: "must not be negative"}
	}
	return o.CreateDraft(ctx, model.CreateDraftRequest{
		IdeaId: req.IdeaId,
		Steps:  templateFor(req.IdeaType),
		Metadata: map[string]any{
			"idea_type":      req.IdeaType,
			"prompt":         req.Prompt,
			"version_index":  req.VersionIndex,
			"estimated_cost": ESTIMATED_COST,
			"estimated_time": ESTIMATED_TIME_SECONDS,
		},
	})
}

func (o *Orchestrator) GetDraft(ctx context.Context, id string) (*model.WorkflowDraft, error) {
	return o.drafts.GetDraft(ctx, id)
}

// UpdateSteps replaces the steps of a draft. Steps are frozen once the draft
// left the draft status.
func (o *Orchestrator) UpdateSteps(ctx context.Context, id string, steps []model.WorkflowStep) (*model.WorkflowDraft, error) {
	for i, step := range steps {
		if err := validateStep(fmt.Sprintf("steps[%d]", i), step); err != nil {
			return nil, err
		}
	}
	return o.updateDraft(ctx, id, func(draft *model.WorkflowDraft) (bool, error) {
		if draft.Status != model.DRAFT_DRAFT {
			return false, api.InvalidStateError{DraftId: id, State: string(draft.Status), Reason: "steps can only change while drafting"}
		}
		draft.Steps = steps
		if draft.Steps == nil {
			draft.Steps = []model.WorkflowStep{}
		}
		return true, nil
	})
}

// MarkReady moves a draft to ready. Marking a ready draft again is a no-op.
func (o *Orchestrator) MarkReady(ctx context.Context, id string) (*model.WorkflowDraft, error) {
	return o.updateDraft(ctx, id, func(draft *model.WorkflowDraft) (bool, error) {
		switch draft.Status {
		case model.DRAFT_READY:
			return false, nil
		case model.DRAFT_DRAFT:
			draft.Status = model.DRAFT_READY
			return true, nil
		}
		return false, api.InvalidStateError{DraftId: id, State: string(draft.Status), Reason: "only a draft can be marked ready"}
	})
}

func (o *Orchestrator) updateDraft(ctx context.Context, id string, fn func(draft *model.WorkflowDraft) (bool, error)) (*model.WorkflowDraft, error) {
	current, err := o.drafts.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *current
	changed, err := fn(&next)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current, nil
	}
	next.UpdatedAt = time.Now().UTC()
	ok, err := o.drafts.CompareAndSwapDraft(ctx, &next, current.Status)
	if err != nil {
		return nil, err
	}
	if !ok {
		latest, err := o.drafts.GetDraft(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, api.InvalidStateError{DraftId: id, State: string(latest.Status), Reason: "draft changed concurrently"}
	}
	return &next, nil
}

func validateStep(field string, step model.WorkflowStep) error {
	if len(step.Module) == 0 {
		return api.ValidationError{Field: field + ".module", Reason: "required"}
	}
	if len(step.Action) == 0 {
		return api.ValidationError{Field: field + ".action", Reason: "required"}
	}
	return nil
}

func joinField(prefix string, field string) string {
	if len(field) == 0 {
		return prefix
	}
	return prefix + "." + field
}
