package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/config"
	"github.com/mohitkumar/mediaflow/dispatch"
	"github.com/mohitkumar/mediaflow/events"
	"github.com/mohitkumar/mediaflow/ledger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence"
	"github.com/mohitkumar/mediaflow/persistence/memory"
	"github.com/mohitkumar/mediaflow/provider"
	"github.com/mohitkumar/mediaflow/registry"
	"github.com/mohitkumar/mediaflow/service"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	orchestrator *Orchestrator
	ledger       *ledger.JobLedger
	storage      *persistence.Storage
	recorder     *events.Recorder
}

func newFixture(t *testing.T, scope config.StatusScope) *fixture {
	storage := memory.NewStorage()
	recorder := events.NewRecorder()
	l := ledger.NewJobLedger(storage.Jobs, recorder, 1)
	r := registry.NewModuleRegistry(storage.Modules, recorder, time.Minute)
	for _, m := range provider.MockModules() {
		_, err := r.Register(context.Background(), m)
		require.NoError(t, err)
	}
	d := dispatch.NewDispatcher(r, l, storage.Queue, storage.DelayQueue, config.DispatchConfig{
		Timeout:     time.Second,
		RetryPolicy: config.RETRY_POLICY_FIXED,
		Capacity:    16,
	}, 1)
	d.Start()
	t.Cleanup(d.Stop)
	s := service.NewJobService(l, d, r, time.Minute)
	return &fixture{
		orchestrator: NewOrchestrator(storage.Drafts, storage.Projects, l, r, s, recorder, scope),
		ledger:       l,
		storage:      storage,
		recorder:     recorder,
	}
}

func (f *fixture) draft(t *testing.T, steps ...model.WorkflowStep) *model.WorkflowDraft {
	draft, err := f.orchestrator.CreateDraft(context.Background(), model.CreateDraftRequest{
		IdeaId:   "idea-1",
		Steps:    steps,
		Metadata: map[string]any{"prompt": "a lighthouse in a storm"},
	})
	require.NoError(t, err)
	require.Equal(t, model.DRAFT_DRAFT, draft.Status)
	return draft
}

func (f *fixture) succeed(t *testing.T, id string) {
	ctx := context.Background()
	_, err := f.ledger.TransitionToRunning(ctx, id)
	require.NoError(t, err)
	_, err = f.ledger.Complete(ctx, id, map[string]any{"url": "mock://asset"})
	require.NoError(t, err)
}

// exhaust fails a job until its single retry is used up.
func (f *fixture) exhaust(t *testing.T, id string) {
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := f.ledger.TransitionToRunning(ctx, id)
		require.NoError(t, err)
		_, err = f.ledger.Fail(ctx, id, "provider unavailable")
		require.NoError(t, err)
	}
	job, err := f.ledger.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.JOB_STATUS_FAILED, job.Status)
}

func requireConsistent(t *testing.T, st *model.WorkflowStatus) {
	require.Equal(t, st.TotalJobs, st.CompletedJobs+st.FailedJobs+st.PendingJobs)
	require.LessOrEqual(t, st.CanceledJobs, st.FailedJobs)
}

var imageThenVideo = []model.WorkflowStep{
	{Module: "image", Action: "generate"},
	{Module: "video", Action: "generate"},
}

func TestOrchestrator(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"one job done one failed is half way":     testMixedOutcome,
		"second execute is rejected":              testExecuteTwice,
		"zero step draft completes at once":       testZeroSteps,
		"bad step leaves draft untouched":         testInvalidStep,
		"unknown module leaves draft untouched":   testUnknownModule,
		"unknown project is rejected":             testUnknownProject,
		"project is created for the draft":        testProjectCreated,
		"existing project is reused":              testExistingProject,
		"step params are resolved from metadata":  testGeneratedDraft,
		"steps are frozen once ready":             testUpdateSteps,
		"concurrent executes fan out once":        testConcurrentExecute,
		"draft scope separates drafts in project": testDraftScope,
		"canceled jobs count as failed":           testCanceledJobs,
		"unknown draft is not found":              testUnknownDraft,
	} {
		t.Run(scenario, fn)
	}
}

func testMixedOutcome(t *testing.T) {
	f := newFixture(t, config.STATUS_SCOPE_PROJECT)
	ctx := context.Background()
	draft := f.draft(t, imageThenVideo...)

	res, err := f.orchestrator.Execute(ctx, draft.Id, "")
	require.NoError(t, err)
	require.Len(t, res.JobIds, 2)
	require.Equal(t, model.DRAFT_EXECUTING, res.Status)
	for _, id := range res.JobIds {
		job, err := f.ledger.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, model.JOB_STATUS_QUEUED, job.Status)
		require.Equal(t, draft.Id, job.DraftId)
	}
	first, err := f.ledger.Get(ctx, res.JobIds[0])
	require.NoError(t, err)
	require.Equal(t, model.IMAGE_GENERATE, first.Operation)

	st, err := f.orchestrator.Status(ctx, draft.Id)
	require.NoError(t, err)
	require.Equal(t, 2, st.PendingJobs)
	require.Equal(t, float64(0), st.ProgressPercent)
	requireConsistent(t, st)

	f.succeed(t, res.JobIds[0])
	st, err = f.orchestrator.Status(ctx, draft.Id)
	require.NoError(t, err)
	require.Equal(t, model.DRAFT_EXECUTING, st.Status)
	requireConsistent(t, st)

	f.exhaust(t, res.JobIds[1])
	st, err = f.orchestrator.Status(ctx, draft.Id)
	require.NoError(t, err)
	require.Equal(t, 2, st.TotalJobs)
	require.Equal(t, 1, st.CompletedJobs)
	require.Equal(t, 1, st.FailedJobs)
	require.Equal(t, 0, st.PendingJobs)
	require.Equal(t, float64(50), st.ProgressPercent)
	require.Equal(t, model.DRAFT_FAILED, st.Status)

	_, err = f.orchestrator.Status(ctx, draft.Id)
	require.NoError(t, err)
	require.Equal(t, 1, f.recorder.Count(model.WORKFLOW_FAILED))
	require.Equal(t, 0, f.recorder.Count(model.WORKFLOW_COMPLETED))
}

func testExecuteTwice(t *testing.T) {
	f := newFixture(t, config.STATUS_SCOPE_PROJECT)
	ctx := context.Background()
	draft := f.draft(t, imageThenVideo...)
	res, err := f.orchestrator.Execute(ctx, draft.Id, "")
	require.NoError(t, err)

	_, err = f.orchestrator.Execute(ctx, draft.Id, "")
	require.True(t, api.IsInvalidState(err))

	jobs, err := f.ledger.ListByProject(ctx, res.ProjectId)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, 1, f.recorder.Count(model.WORKFLOW_STARTED))
}

func testZeroSteps(t *testing.T) {
	f := newFixture(t, config.STATUS_SCOPE_PROJECT)
	ctx := context.Background()
	draft := f.draft(t)
	res, err := f.orchestrator.Execute(ctx, draft.Id, "")
	require.NoError(t, err)
	require.Empty(t, res.JobIds)
	require.NotNil(t, res.JobIds)
	require.Equal(t, model.DRAFT_COMPLETED, res.Status)

	st, err := f.orchestrator.Status(ctx, draft.Id)
	require.NoError(t, err)
	require.Equal(t, 0, st.TotalJobs)
	require.Equal(t, float64(100), st.ProgressPercent)
	require.Equal(t, model.DRAFT_COMPLETED, st.Status)
	require.Equal(t, 1, f.recorder.Count(model.WORKFLOW_STARTED))
	require.Equal(t, 1, f.recorder.Count(model.WORKFLOW_COMPLETED))

	_, err = f.orchestrator.Execute(ctx, draft.Id, "")
	require.True(t, api.IsInvalidState(err))
}

func testInvalidStep(t *testing.T) {
	f := newFixture(t, config.STATUS_SCOPE_PROJECT)
	ctx := context.Background()
	draft := f.draft(t,
		model.WorkflowStep{Module: "image", Action: "generate"},
		model.WorkflowStep{Module: "image", Action: "generate", Params: map[string]any{"width": 10}},
	)
	_, err := f.orchestrator.Execute(ctx, draft.Id, "")
	var ve api.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "steps[1].width", ve.Field)

	got, err := f.orchestrator.GetDraft(ctx, draft.Id)
	require.NoError(t, err)
	require.Equal(t, model.DRAFT_DRAFT, got.Status)
	require.Equal(t, 0, f.recorder.Count(model.JOB_CREATED))
}

func testUnknownModule(t *testing.T) {
	f := newFixture(t, config.STATUS_SCOPE_PROJECT)
	ctx := context.Background()
	draft := f.draft(t, model.WorkflowStep{Module: "hologram", Action: "render"})
	_, err := f.orchestrator.Execute(ctx, draft.Id, "")
	require.True(t, api.IsUnknownModule(err))

	got, err := f.orchestrator.GetDraft(ctx, draft.Id)
	require.NoError(t, err)
	require.Equal(t, model.DRAFT_DRAFT, got.Status)
}

func testUnknownProject(t *testing.T) {
	f := newFixture(t, config.STATUS_SCOPE_PROJECT)
	ctx := context.Background()
	draft := f.draft(t, imageThenVideo...)
	_, err := f.orchestrator.Execute(ctx, draft.Id, "missing")
	require.True(t, api.IsNotFound(err))

	got, err := f.orchestrator.GetDraft(ctx, draft.Id)
	require.NoError(t, err)
	require.Equal(t, model.DRAFT_DRAFT, got.Status)
}

func testProjectCreated(t *testing.T) {
	f := newFixture(t, config.STATUS_SCOPE_PROJECT)
	ctx := context.Background()
	draft := f.draft(t, imageThenVideo...)
	res, err := f.orchestrator.Execute(ctx, draft.Id, "")
	require.NoError(t, err)

	project, err := f.storage.Projects.GetProject(ctx, res.ProjectId)
	require.NoError(t, err)
	require.Equal(t, "Workflow "+draft.Id, project.Name)
	require.Equal(t, model.SYSTEM_OWNER, project.OwnerId)
	require.Equal(t, draft.Id, project.Metadata["workflow_draft_id"])

	got, err := f.orchestrator.GetDraft(ctx, draft.Id)
	require.NoError(t, err)
	require.Equal(t, res.ProjectId, got.ProjectId)
}

func testExistingProject(t *testing.T) {
	f := newFixture(t, config.STATUS_SCOPE_PROJECT)
	ctx := context.Background()
	require.NoError(t, f.storage.Projects.CreateProject(ctx, &model.Project{Id: "p1", Name: "launch", OwnerId: "u1"}))
	draft := f.draft(t, imageThenVideo...)
	res, err := f.orchestrator.Execute(ctx, draft.Id, "p1")
	require.NoError(t, err)
	require.Equal(t, "p1", res.ProjectId)
	for _, id := range res.JobIds {
		job, err := f.ledger.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "p1", job.ProjectId)
	}
}

func testGeneratedDraft(t *testing.T) {
	f := newFixture(t, config.STATUS_SCOPE_PROJECT)
	ctx := context.Background()
	draft, err := f.orchestrator.GenerateDraft(ctx, model.GenerateDraftRequest{
		IdeaId:       "idea-9",
		IdeaType:     "image",
		Prompt:       "a red fox",
		VersionIndex: 2,
	})
	require.NoError(t, err)
	require.Len(t, draft.Steps, 2)
	require.Equal(t, ESTIMATED_COST, draft.Metadata["estimated_cost"])
	require.Equal(t, 2, draft.Metadata["version_index"])

	res, err := f.orchestrator.Execute(ctx, draft.Id, "")
	require.NoError(t, err)
	generate, err := f.ledger.Get(ctx, res.JobIds[0])
	require.NoError(t, err)
	require.Equal(t, "a red fox", generate.InputPayload["prompt"])
	upscale, err := f.ledger.Get(ctx, res.JobIds[1])
	require.NoError(t, err)
	require.Equal(t, model.IMAGE_UPSCALE, upscale.Operation)
	require.Equal(t, 2, upscale.InputPayload["scale"])

	mixed, err := f.orchestrator.GenerateDraft(ctx, model.GenerateDraftRequest{IdeaId: "idea-9", IdeaType: "mixed"})
	require.NoError(t, err)
	require.Len(t, mixed.Steps, 3)
}

func testUpdateSteps(t *testing.T) {
	f := newFixture(t, config.STATUS_SCOPE_PROJECT)
	ctx := context.Background()
	draft := f.draft(t, imageThenVideo...)

	updated, err := f.orchestrator.UpdateSteps(ctx, draft.Id, imageThenVideo[:1])
	require.NoError(t, err)
	require.Len(t, updated.Steps, 1)

	_, err = f.orchestrator.UpdateSteps(ctx, draft.Id, []model.WorkflowStep{{Module: "image"}})
	var ve api.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "steps[0].action", ve.Field)

	ready, err := f.orchestrator.MarkReady(ctx, draft.Id)
	require.NoError(t, err)
	require.Equal(t, model.DRAFT_READY, ready.Status)
	_, err = f.orchestrator.MarkReady(ctx, draft.Id)
	require.NoError(t, err)

	_, err = f.orchestrator.UpdateSteps(ctx, draft.Id, imageThenVideo)
	require.True(t, api.IsInvalidState(err))

	res, err := f.orchestrator.Execute(ctx, draft.Id, "")
	require.NoError(t, err)
	require.Len(t, res.JobIds, 1)

	_, err = f.orchestrator.MarkReady(ctx, draft.Id)
	require.True(t, api.IsInvalidState(err))
}

func testConcurrentExecute(t *testing.T) {
	f := newFixture(t, config.STATUS_SCOPE_PROJECT)
	ctx := context.Background()
	draft := f.draft(t, imageThenVideo...)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orchestrator.Execute(ctx, draft.Id, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if api.IsInvalidState(err) {
				rejected++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, succeeded)
	require.Equal(t, 7, rejected)
	require.Equal(t, 2, f.recorder.Count(model.JOB_CREATED))
}

func testDraftScope(t *testing.T) {
	ctx := context.Background()
	for scope, want := range map[config.StatusScope]int{
		config.STATUS_SCOPE_PROJECT: 3,
		config.STATUS_SCOPE_DRAFT:   2,
	} {
		f := newFixture(t, scope)
		require.NoError(t, f.storage.Projects.CreateProject(ctx, &model.Project{Id: "shared", Name: "shared", OwnerId: "u1"}))
		first := f.draft(t, imageThenVideo...)
		second := f.draft(t, imageThenVideo[:1]...)
		_, err := f.orchestrator.Execute(ctx, first.Id, "shared")
		require.NoError(t, err)
		_, err = f.orchestrator.Execute(ctx, second.Id, "shared")
		require.NoError(t, err)

		st, err := f.orchestrator.Status(ctx, first.Id)
		require.NoError(t, err)
		require.Equal(t, want, st.TotalJobs, "scope %s", scope)
		requireConsistent(t, st)
	}
}

func testCanceledJobs(t *testing.T) {
	f := newFixture(t, config.STATUS_SCOPE_DRAFT)
	ctx := context.Background()
	draft := f.draft(t, imageThenVideo...)
	res, err := f.orchestrator.Execute(ctx, draft.Id, "")
	require.NoError(t, err)

	f.succeed(t, res.JobIds[0])
	_, err = f.ledger.Cancel(ctx, res.JobIds[1])
	require.NoError(t, err)

	st, err := f.orchestrator.Status(ctx, draft.Id)
	require.NoError(t, err)
	require.Equal(t, 1, st.FailedJobs)
	require.Equal(t, 1, st.CanceledJobs)
	require.Equal(t, model.DRAFT_FAILED, st.Status)
	requireConsistent(t, st)
}

func testUnknownDraft(t *testing.T) {
	f := newFixture(t, config.STATUS_SCOPE_PROJECT)
	_, err := f.orchestrator.Status(context.Background(), "missing")
	require.True(t, api.IsNotFound(err))
	_, err = f.orchestrator.Execute(context.Background(), "missing", "")
	require.True(t, api.IsNotFound(err))
}
