package memory

import (
	"context"
	"sort"
	"sync"

	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence"
)

type memoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]*model.Job
	jobSeq   map[string]int64
	lastSeq  int64
	drafts   map[string]*model.WorkflowDraft
	modules  map[string]*model.ModuleCapability
	projects map[string]*model.Project
}

var _ persistence.JobStorage = new(memoryStore)
var _ persistence.DraftStorage = new(memoryStore)
var _ persistence.ModuleStorage = new(memoryStore)
var _ persistence.ProjectStorage = new(memoryStore)

func newMemoryStore() *memoryStore {
	return &memoryStore{
		jobs:     make(map[string]*model.Job),
		jobSeq:   make(map[string]int64),
		drafts:   make(map[string]*model.WorkflowDraft),
		modules:  make(map[string]*model.ModuleCapability),
		projects: make(map[string]*model.Project),
	}
}

// NewStorage returns a process local storage with in-memory queues.
func NewStorage() *persistence.Storage {
	store := newMemoryStore()
	return &persistence.Storage{
		Jobs:       store,
		Drafts:     store,
		Modules:    store,
		Projects:   store,
		Queue:      NewQueue(),
		DelayQueue: NewDelayQueue(),
	}
}

func (s *memoryStore) CreateJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Id]; ok {
		return persistence.StorageLayerError{Message: "duplicate job id " + job.Id}
	}
	s.jobs[job.Id] = job.Clone()
	s.lastSeq++
	s.jobSeq[job.Id] = s.lastSeq
	return nil
}

func (s *memoryStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, api.NotFoundError{Kind: "job", Id: id}
	}
	return job.Clone(), nil
}

func (s *memoryStore) ListJobsByProject(ctx context.Context, projectId string) ([]*model.Job, error) {
	return s.listJobs(func(j *model.Job) bool { return j.ProjectId == projectId }), nil
}

func (s *memoryStore) ListJobsByDraft(ctx context.Context, draftId string) ([]*model.Job, error) {
	return s.listJobs(func(j *model.Job) bool { return j.DraftId == draftId }), nil
}

func (s *memoryStore) listJobs(match func(*model.Job) bool) []*model.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Job, 0)
	for _, job := range s.jobs {
		if match(job) {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.jobSeq[out[i].Id] < s.jobSeq[out[j].Id]
	})
	return out
}

func (s *memoryStore) CompareAndSwapJob(ctx context.Context, job *model.Job, expectedStatus model.JobStatus, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.Id]
	if !ok {
		return false, api.NotFoundError{Kind: "job", Id: job.Id}
	}
	if current.Status != expectedStatus || current.Version != expectedVersion {
		return false, nil
	}
	s.jobs[job.Id] = job.Clone()
	return true, nil
}

func (s *memoryStore) CreateDraft(ctx context.Context, draft *model.WorkflowDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[draft.Id]; ok {
		return persistence.StorageLayerError{Message: "duplicate draft id " + draft.Id}
	}
	s.drafts[draft.Id] = cloneDraft(draft)
	return nil
}

func (s *memoryStore) GetDraft(ctx context.Context, id string) (*model.WorkflowDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	draft, ok := s.drafts[id]
	if !ok {
		return nil, api.NotFoundError{Kind: "workflow draft", Id: id}
	}
	return cloneDraft(draft), nil
}

func (s *memoryStore) CompareAndSwapDraft(ctx context.Context, draft *model.WorkflowDraft, expectedStatus model.DraftStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.drafts[draft.Id]
	if !ok {
		return false, api.NotFoundError{Kind: "workflow draft", Id: draft.Id}
	}
	if current.Status != expectedStatus {
		return false, nil
	}
	s.drafts[draft.Id] = cloneDraft(draft)
	return true, nil
}

func (s *memoryStore) SaveModule(ctx context.Context, module *model.ModuleCapability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *module
	s.modules[module.Id] = &m
	return nil
}

func (s *memoryStore) GetModule(ctx context.Context, id string) (*model.ModuleCapability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	module, ok := s.modules[id]
	if !ok {
		return nil, api.NotFoundError{Kind: "module", Id: id}
	}
	m := *module
	return &m, nil
}

func (s *memoryStore) ListModules(ctx context.Context) ([]*model.ModuleCapability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ModuleCapability, 0, len(s.modules))
	for _, module := range s.modules {
		m := *module
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (s *memoryStore) CreateProject(ctx context.Context, project *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[project.Id]; ok {
		return persistence.StorageLayerError{Message: "duplicate project id " + project.Id}
	}
	p := *project
	s.projects[project.Id] = &p
	return nil
}

func (s *memoryStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	project, ok := s.projects[id]
	if !ok {
		return nil, api.NotFoundError{Kind: "project", Id: id}
	}
	p := *project
	return &p, nil
}

func cloneDraft(d *model.WorkflowDraft) *model.WorkflowDraft {
	c := *d
	c.Steps = append([]model.WorkflowStep(nil), d.Steps...)
	return &c
}
