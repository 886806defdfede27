package redis

import (
	"context"
	"errors"
	"sort"

	rd "github.com/go-redis/redis/v9"
	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence"
)

const MODULE_KEY string = "MODULE"
const PROJECT_KEY string = "PROJECT"

type redisModuleDao struct {
	*baseDao
	codec recordCodec[model.ModuleCapability]
}

var _ persistence.ModuleStorage = new(redisModuleDao)

func NewRedisModuleDao(baseDao *baseDao) *redisModuleDao {
	return &redisModuleDao{
		baseDao: baseDao,
	}
}

func (r *redisModuleDao) SaveModule(ctx context.Context, module *model.ModuleCapability) error {
	data, err := r.codec.encode(*module)
	if err != nil {
		return err
	}
	if err := r.redisClient.HSet(ctx, r.getNamespaceKey(MODULE_KEY), []string{module.Id, string(data)}).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (r *redisModuleDao) GetModule(ctx context.Context, id string) (*model.ModuleCapability, error) {
	data, err := r.redisClient.HGet(ctx, r.getNamespaceKey(MODULE_KEY), id).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, api.NotFoundError{Kind: "module", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return r.codec.decode([]byte(data))
}

func (r *redisModuleDao) ListModules(ctx context.Context) ([]*model.ModuleCapability, error) {
	values, err := r.redisClient.HGetAll(ctx, r.getNamespaceKey(MODULE_KEY)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]*model.ModuleCapability, 0, len(values))
	for _, v := range values {
		module, err := r.codec.decode([]byte(v))
		if err != nil {
			return nil, err
		}
		out = append(out, module)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

type redisProjectDao struct {
	*baseDao
	codec recordCodec[model.Project]
}

var _ persistence.ProjectStorage = new(redisProjectDao)

func NewRedisProjectDao(baseDao *baseDao) *redisProjectDao {
	return &redisProjectDao{
		baseDao: baseDao,
	}
}

func (r *redisProjectDao) CreateProject(ctx context.Context, project *model.Project) error {
	data, err := r.codec.encode(*project)
	if err != nil {
		return err
	}
	created, err := r.redisClient.SetNX(ctx, r.getNamespaceKey(PROJECT_KEY, project.Id), data, 0).Result()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if !created {
		return persistence.StorageLayerError{Message: "duplicate project id " + project.Id}
	}
	return nil
}

func (r *redisProjectDao) GetProject(ctx context.Context, id string) (*model.Project, error) {
	data, err := r.redisClient.Get(ctx, r.getNamespaceKey(PROJECT_KEY, id)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, api.NotFoundError{Kind: "project", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return r.codec.decode([]byte(data))
}
