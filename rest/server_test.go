package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohitkumar/mediaflow/config"
	"github.com/mohitkumar/mediaflow/dispatch"
	"github.com/mohitkumar/mediaflow/events"
	"github.com/mohitkumar/mediaflow/ledger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence/memory"
	"github.com/mohitkumar/mediaflow/provider"
	"github.com/mohitkumar/mediaflow/registry"
	"github.com/mohitkumar/mediaflow/service"
	"github.com/mohitkumar/mediaflow/workflow"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	storage := memory.NewStorage()
	publisher := events.NoopPublisher{}
	l := ledger.NewJobLedger(storage.Jobs, publisher, 3)
	r := registry.NewModuleRegistry(storage.Modules, publisher, time.Minute)
	for _, m := range provider.MockModules() {
		_, err := r.Register(context.Background(), m)
		require.NoError(t, err)
	}
	d := dispatch.NewDispatcher(r, l, storage.Queue, storage.DelayQueue, config.DispatchConfig{Timeout: time.Second, Capacity: 16}, 1)
	d.Start()
	t.Cleanup(d.Stop)
	jobs := service.NewJobService(l, d, r, time.Minute)
	o := workflow.NewOrchestrator(storage.Drafts, storage.Projects, l, r, jobs, publisher, config.STATUS_SCOPE_PROJECT)
	s, err := NewServer(0, jobs, r, o)
	require.NoError(t, err)
	return s
}

func call(t *testing.T, s *Server, method string, path string, body any, out any) int {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestServer(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, s *Server){
		"job lifecycle over http":           testJobLifecycle,
		"errors map to status codes":        testErrorCodes,
		"workflow draft execute and status": testWorkflow,
		"modules are listed by category":    testModules,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, newTestServer(t))
		})
	}
}

func testJobLifecycle(t *testing.T, s *Server) {
	var job model.Job
	code := call(t, s, http.MethodPost, "/jobs", map[string]any{
		"project_id":    "p1",
		"module_id":     "image.basic",
		"type":          "IMAGE_GENERATE",
		"input_payload": map[string]any{"prompt": "a red fox"},
	}, &job)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, model.JOB_STATUS_QUEUED, job.Status)

	require.Equal(t, http.StatusOK, call(t, s, http.MethodPost, "/jobs/"+job.Id+"/start", nil, &job))
	require.Equal(t, model.JOB_STATUS_RUNNING, job.Status)
	require.Equal(t, http.StatusOK, call(t, s, http.MethodPost, "/jobs/"+job.Id+"/complete", map[string]any{
		"output_payload": map[string]any{"image_url": "mock://image.png"},
	}, &job))
	require.Equal(t, model.JOB_STATUS_SUCCESS, job.Status)

	var jobs []model.Job
	require.Equal(t, http.StatusOK, call(t, s, http.MethodGet, "/projects/p1/jobs", nil, &jobs))
	require.Len(t, jobs, 1)
	require.Equal(t, "mock://image.png", jobs[0].OutputPayload["image_url"])
}

func testErrorCodes(t *testing.T, s *Server) {
	require.Equal(t, http.StatusNotFound, call(t, s, http.MethodGet, "/jobs/missing", nil, nil))
	require.Equal(t, http.StatusBadRequest, call(t, s, http.MethodPost, "/jobs", map[string]any{
		"project_id": "p1", "module_id": "image", "type": "IMAGE_GENERATE", "priority": 12,
	}, nil))
	require.Equal(t, http.StatusNotFound, call(t, s, http.MethodPost, "/jobs", map[string]any{
		"project_id": "p1", "module_id": "hologram", "type": "HOLOGRAM_RENDER",
	}, nil))

	var job model.Job
	require.Equal(t, http.StatusCreated, call(t, s, http.MethodPost, "/jobs", map[string]any{
		"project_id": "p1", "module_id": "image", "type": "IMAGE_GENERATE",
	}, &job))
	require.Equal(t, http.StatusConflict, call(t, s, http.MethodPost, "/jobs/"+job.Id+"/complete", map[string]any{}, nil))
	require.Equal(t, http.StatusBadRequest, call(t, s, http.MethodGet, "/queues/video.generate/poll?batch=abc", nil, nil))
	require.Equal(t, http.StatusBadRequest, call(t, s, http.MethodGet, "/queues/video.generate/poll?batch=10000000000000000000", nil, nil))
	require.Equal(t, http.StatusBadRequest, call(t, s, http.MethodGet, "/queues/video.generate/poll?batch=101", nil, nil))
	require.Equal(t, http.StatusNotFound, call(t, s, http.MethodGet, "/queues/video.generate/poll", nil, nil))
}

func testWorkflow(t *testing.T, s *Server) {
	var draft model.WorkflowDraft
	require.Equal(t, http.StatusCreated, call(t, s, http.MethodPost, "/workflows/drafts", map[string]any{
		"idea_id": "idea-1",
		"steps": []map[string]any{
			{"module": "image", "action": "generate"},
			{"module": "video", "action": "generate"},
		},
	}, &draft))

	var res model.ExecuteResult
	require.Equal(t, http.StatusOK, call(t, s, http.MethodPost, "/workflows/drafts/"+draft.Id+"/execute", nil, &res))
	require.Len(t, res.JobIds, 2)
	require.Equal(t, http.StatusConflict, call(t, s, http.MethodPost, "/workflows/drafts/"+draft.Id+"/execute", nil, nil))

	var st model.WorkflowStatus
	require.Equal(t, http.StatusOK, call(t, s, http.MethodGet, "/workflows/drafts/"+draft.Id+"/status", nil, &st))
	require.Equal(t, 2, st.TotalJobs)
	require.Equal(t, 2, st.PendingJobs)
	require.Equal(t, http.StatusNotFound, call(t, s, http.MethodGet, "/workflows/drafts/missing/status", nil, nil))
}

func testModules(t *testing.T, s *Server) {
	var modules []model.ModuleCapability
	require.Equal(t, http.StatusOK, call(t, s, http.MethodGet, "/modules?category=image", nil, &modules))
	require.Len(t, modules, 1)
	require.Equal(t, "image.basic", modules[0].Id)

	require.Equal(t, http.StatusCreated, call(t, s, http.MethodPost, "/modules", map[string]any{
		"id": "image.pro", "category": "image", "version": "2", "active": true,
	}, nil))
	var module model.ModuleCapability
	require.Equal(t, http.StatusOK, call(t, s, http.MethodGet, "/modules/image.pro", nil, &module))
	require.Equal(t, model.ENDPOINT_INTERNAL, module.EndpointType)
	require.Equal(t, http.StatusBadRequest, call(t, s, http.MethodPost, "/modules", map[string]any{"id": "x"}, nil))
}
