package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/mohitkumar/mediaflow/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

func (e StorageLayerError) GRPCStatus() *status.Status {
	return status.New(codes.Internal, e.Error())
}

const RETRY_QUEUE string = "retry"
const TIMEOUT_QUEUE string = "timeout"

// JobStorage persists jobs. Every mutation after creation goes through
// CompareAndSwapJob so concurrent transitions on one job never overwrite each
// other.
type JobStorage interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobsByProject(ctx context.Context, projectId string) ([]*model.Job, error)
	ListJobsByDraft(ctx context.Context, draftId string) ([]*model.Job, error)
	// CompareAndSwapJob stores job only if the stored copy still has the
	// expected status and version. It reports false when the guard failed.
	CompareAndSwapJob(ctx context.Context, job *model.Job, expectedStatus model.JobStatus, expectedVersion int64) (bool, error)
}

type DraftStorage interface {
	CreateDraft(ctx context.Context, draft *model.WorkflowDraft) error
	GetDraft(ctx context.Context, id string) (*model.WorkflowDraft, error)
	CompareAndSwapDraft(ctx context.Context, draft *model.WorkflowDraft, expectedStatus model.DraftStatus) (bool, error)
}

type ModuleStorage interface {
	SaveModule(ctx context.Context, module *model.ModuleCapability) error
	GetModule(ctx context.Context, id string) (*model.ModuleCapability, error)
	ListModules(ctx context.Context) ([]*model.ModuleCapability, error)
}

type ProjectStorage interface {
	CreateProject(ctx context.Context, project *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
}

type Queue interface {
	Push(ctx context.Context, queueName string, partitionKey string, message []byte) error
	Pop(ctx context.Context, queueName string, batchSize int) ([]string, error)
}

type DelayQueue interface {
	PushWithDelay(ctx context.Context, queueName string, delay time.Duration, message []byte) error
	// Pop removes and returns every message whose delay has elapsed.
	Pop(ctx context.Context, queueName string) ([]string, error)
}

// Storage groups the stores one process runs against.
type Storage struct {
	Jobs       JobStorage
	Drafts     DraftStorage
	Modules    ModuleStorage
	Projects   ProjectStorage
	Queue      Queue
	DelayQueue DelayQueue
	closers    []func() error
}

func (s *Storage) AddCloser(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Storage) Close() error {
	var first error
	for _, fn := range s.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
