package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence"
)

// PostgresStore keeps jobs, drafts, modules and projects in postgres. Job and
// draft transitions are conditional updates on the prior status.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ persistence.JobStorage = new(PostgresStore)
var _ persistence.DraftStorage = new(PostgresStore)
var _ persistence.ModuleStorage = new(PostgresStore)
var _ persistence.ProjectStorage = new(PostgresStore)

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect opens a pool and creates the tables when missing.
func Connect(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return wrap(err)
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return persistence.StorageLayerError{Message: err.Error()}
}

const jobColumns = `id, project_id, draft_id, module_id, operation, status, priority, input_payload,
	output_payload, error_message, retry_count, max_retries, version, queued_at, started_at, finished_at`

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.Job) error {
	_, err := s.db.Exec(ctx, `INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		job.Id, job.ProjectId, job.DraftId, job.ModuleId, string(job.Operation), string(job.Status),
		job.Priority, job.InputPayload, job.OutputPayload, job.ErrorMessage, job.RetryCount,
		job.MaxRetries, job.Version, job.QueuedAt, job.StartedAt, job.FinishedAt)
	return wrap(err)
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var job model.Job
	var operation, status string
	err := row.Scan(&job.Id, &job.ProjectId, &job.DraftId, &job.ModuleId, &operation, &status,
		&job.Priority, &job.InputPayload, &job.OutputPayload, &job.ErrorMessage, &job.RetryCount,
		&job.MaxRetries, &job.Version, &job.QueuedAt, &job.StartedAt, &job.FinishedAt)
	if err != nil {
		return nil, err
	}
	job.Operation = model.Operation(operation)
	job.Status = model.JobStatus(status)
	return &job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.NotFoundError{Kind: "job", Id: id}
		}
		return nil, wrap(err)
	}
	return job, nil
}

func (s *PostgresStore) ListJobsByProject(ctx context.Context, projectId string) ([]*model.Job, error) {
	return s.listJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE project_id = $1 ORDER BY seq`, projectId)
}

func (s *PostgresStore) ListJobsByDraft(ctx context.Context, draftId string) ([]*model.Job, error) {
	return s.listJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE draft_id = $1 ORDER BY seq`, draftId)
}

func (s *PostgresStore) listJobs(ctx context.Context, query string, arg string) ([]*model.Job, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	jobs := make([]*model.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, wrap(err)
		}
		jobs = append(jobs, job)
	}
	return jobs, wrap(rows.Err())
}

func (s *PostgresStore) CompareAndSwapJob(ctx context.Context, job *model.Job, expectedStatus model.JobStatus, expectedVersion int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE jobs SET status = $1, output_payload = $2, error_message = $3,
		retry_count = $4, version = $5, started_at = $6, finished_at = $7, priority = $8
		WHERE id = $9 AND status = $10 AND version = $11`,
		string(job.Status), job.OutputPayload, job.ErrorMessage, job.RetryCount, job.Version,
		job.StartedAt, job.FinishedAt, job.Priority, job.Id, string(expectedStatus), expectedVersion)
	if err != nil {
		return false, wrap(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.GetJob(ctx, job.Id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) CreateDraft(ctx context.Context, draft *model.WorkflowDraft) error {
	steps, err := json.Marshal(draft.Steps)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO workflow_drafts (id, idea_id, project_id, steps, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		draft.Id, draft.IdeaId, draft.ProjectId, steps, string(draft.Status), draft.Metadata, draft.CreatedAt, draft.UpdatedAt)
	return wrap(err)
}

func (s *PostgresStore) GetDraft(ctx context.Context, id string) (*model.WorkflowDraft, error) {
	var draft model.WorkflowDraft
	var steps []byte
	var status string
	err := s.db.QueryRow(ctx, `SELECT id, idea_id, project_id, steps, status, metadata, created_at, updated_at
		FROM workflow_drafts WHERE id = $1`, id).
		Scan(&draft.Id, &draft.IdeaId, &draft.ProjectId, &steps, &status, &draft.Metadata, &draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.NotFoundError{Kind: "workflow draft", Id: id}
		}
		return nil, wrap(err)
	}
	if err := json.Unmarshal(steps, &draft.Steps); err != nil {
		return nil, err
	}
	draft.Status = model.DraftStatus(status)
	return &draft, nil
}

func (s *PostgresStore) CompareAndSwapDraft(ctx context.Context, draft *model.WorkflowDraft, expectedStatus model.DraftStatus) (bool, error) {
	steps, err := json.Marshal(draft.Steps)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `UPDATE workflow_drafts SET steps = $1, status = $2, metadata = $3, project_id = $4, updated_at = $5
		WHERE id = $6 AND status = $7`,
		steps, string(draft.Status), draft.Metadata, draft.ProjectId, draft.UpdatedAt, draft.Id, string(expectedStatus))
	if err != nil {
		return false, wrap(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.GetDraft(ctx, draft.Id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) SaveModule(ctx context.Context, module *model.ModuleCapability) error {
	data, err := json.Marshal(module)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO modules (id, category, active, capability, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET category = EXCLUDED.category, active = EXCLUDED.active,
			capability = EXCLUDED.capability, updated_at = EXCLUDED.updated_at`,
		module.Id, module.Category, module.Active, data, time.Now().UTC())
	return wrap(err)
}

func (s *PostgresStore) GetModule(ctx context.Context, id string) (*model.ModuleCapability, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT capability FROM modules WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.NotFoundError{Kind: "module", Id: id}
		}
		return nil, wrap(err)
	}
	var module model.ModuleCapability
	if err := json.Unmarshal(data, &module); err != nil {
		return nil, err
	}
	return &module, nil
}

func (s *PostgresStore) ListModules(ctx context.Context) ([]*model.ModuleCapability, error) {
	rows, err := s.db.Query(ctx, `SELECT capability FROM modules ORDER BY id`)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	modules := make([]*model.ModuleCapability, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, wrap(err)
		}
		var module model.ModuleCapability
		if err := json.Unmarshal(data, &module); err != nil {
			return nil, err
		}
		modules = append(modules, &module)
	}
	return modules, wrap(rows.Err())
}

func (s *PostgresStore) CreateProject(ctx context.Context, project *model.Project) error {
	_, err := s.db.Exec(ctx, `INSERT INTO projects (id, name, owner_id, metadata, created_at) VALUES ($1, $2, $3, $4, $5)`,
		project.Id, project.Name, project.OwnerId, project.Metadata, project.CreatedAt)
	return wrap(err)
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var project model.Project
	err := s.db.QueryRow(ctx, `SELECT id, name, owner_id, metadata, created_at FROM projects WHERE id = $1`, id).
		Scan(&project.Id, &project.Name, &project.OwnerId, &project.Metadata, &project.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, api.NotFoundError{Kind: "project", Id: id}
		}
		return nil, wrap(err)
	}
	return &project, nil
}
