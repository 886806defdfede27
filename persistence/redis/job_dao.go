package redis

import (
	"context"
	"errors"

	rd "github.com/go-redis/redis/v9"
	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence"
	"go.uber.org/zap"
)

const JOB_KEY string = "JOB"
const PROJECT_JOBS_KEY string = "PROJECT_JOBS"
const DRAFT_JOBS_KEY string = "DRAFT_JOBS"
const JOB_SEQUENCE_KEY string = "JOB_SEQUENCE"

type redisJobDao struct {
	*baseDao
	codec recordCodec[model.Job]
}

var _ persistence.JobStorage = new(redisJobDao)

func NewRedisJobDao(baseDao *baseDao) *redisJobDao {
	return &redisJobDao{
		baseDao: baseDao,
	}
}

// createJobScript stores the job and adds it to its indexes in one step. The
// index score is a namespace wide sequence so listings follow creation order.
//
// KEYS: job, sequence, project index, optional draft index
// ARGV: encoded job, job id
var createJobScript = rd.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
local seq = redis.call('INCR', KEYS[2])
redis.call('SET', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[3], seq, ARGV[2])
if KEYS[4] then
	redis.call('ZADD', KEYS[4], seq, ARGV[2])
end
return 1
`)

func (r *redisJobDao) CreateJob(ctx context.Context, job *model.Job) error {
	data, err := r.codec.encode(*job)
	if err != nil {
		return err
	}
	keys := []string{
		r.getNamespaceKey(JOB_KEY, job.Id),
		r.getNamespaceKey(JOB_SEQUENCE_KEY),
		r.getNamespaceKey(PROJECT_JOBS_KEY, job.ProjectId),
	}
	if len(job.DraftId) != 0 {
		keys = append(keys, r.getNamespaceKey(DRAFT_JOBS_KEY, job.DraftId))
	}
	created, err := createJobScript.Run(ctx, r.redisClient, keys, data, job.Id).Int()
	if err != nil {
		logger.Error("error while saving job", zap.String("jobId", job.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if created == 0 {
		return persistence.StorageLayerError{Message: "duplicate job id " + job.Id}
	}
	return nil
}

func (r *redisJobDao) GetJob(ctx context.Context, id string) (*model.Job, error) {
	data, err := r.redisClient.Get(ctx, r.getNamespaceKey(JOB_KEY, id)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, api.NotFoundError{Kind: "job", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return r.codec.decode([]byte(data))
}

func (r *redisJobDao) ListJobsByProject(ctx context.Context, projectId string) ([]*model.Job, error) {
	return r.listJobs(ctx, r.getNamespaceKey(PROJECT_JOBS_KEY, projectId))
}

func (r *redisJobDao) ListJobsByDraft(ctx context.Context, draftId string) ([]*model.Job, error) {
	return r.listJobs(ctx, r.getNamespaceKey(DRAFT_JOBS_KEY, draftId))
}

func (r *redisJobDao) listJobs(ctx context.Context, indexKey string) ([]*model.Job, error) {
	ids, err := r.redisClient.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil && !errors.Is(err, rd.Nil) {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]*model.Job, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.getNamespaceKey(JOB_KEY, id))
	}
	values, err := r.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		job, err := r.codec.decode([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

func (r *redisJobDao) CompareAndSwapJob(ctx context.Context, job *model.Job, expectedStatus model.JobStatus, expectedVersion int64) (bool, error) {
	key := r.getNamespaceKey(JOB_KEY, job.Id)
	data, err := r.codec.encode(*job)
	if err != nil {
		return false, err
	}
	swapped := false
	err = r.redisClient.Watch(ctx, func(tx *rd.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, rd.Nil) {
				return api.NotFoundError{Kind: "job", Id: job.Id}
			}
			return err
		}
		stored, err := r.codec.decode([]byte(current))
		if err != nil {
			return err
		}
		if stored.Status != expectedStatus || stored.Version != expectedVersion {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}, key)
	if err != nil {
		if errors.Is(err, rd.TxFailedErr) {
			return false, nil
		}
		if api.IsNotFound(err) {
			return false, err
		}
		return false, persistence.StorageLayerError{Message: err.Error()}
	}
	return swapped, nil
}
