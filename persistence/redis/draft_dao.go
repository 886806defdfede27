package redis

import (
	"context"
	"errors"

	rd "github.com/go-redis/redis/v9"
	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence"
)

const DRAFT_KEY string = "DRAFT"

type redisDraftDao struct {
	*baseDao
	codec recordCodec[model.WorkflowDraft]
}

var _ persistence.DraftStorage = new(redisDraftDao)

func NewRedisDraftDao(baseDao *baseDao) *redisDraftDao {
	return &redisDraftDao{
		baseDao: baseDao,
	}
}

func (r *redisDraftDao) CreateDraft(ctx context.Context, draft *model.WorkflowDraft) error {
	data, err := r.codec.encode(*draft)
	if err != nil {
		return err
	}
	created, err := r.redisClient.SetNX(ctx, r.getNamespaceKey(DRAFT_KEY, draft.Id), data, 0).Result()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if !created {
		return persistence.StorageLayerError{Message: "duplicate draft id " + draft.Id}
	}
	return nil
}

func (r *redisDraftDao) GetDraft(ctx context.Context, id string) (*model.WorkflowDraft, error) {
	data, err := r.redisClient.Get(ctx, r.getNamespaceKey(DRAFT_KEY, id)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, api.NotFoundError{Kind: "workflow draft", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return r.codec.decode([]byte(data))
}

func (r *redisDraftDao) CompareAndSwapDraft(ctx context.Context, draft *model.WorkflowDraft, expectedStatus model.DraftStatus) (bool, error) {
	key := r.getNamespaceKey(DRAFT_KEY, draft.Id)
	data, err := r.codec.encode(*draft)
	if err != nil {
		return false, err
	}
	swapped := false
	err = r.redisClient.Watch(ctx, func(tx *rd.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, rd.Nil) {
				return api.NotFoundError{Kind: "workflow draft", Id: draft.Id}
			}
			return err
		}
		stored, err := r.codec.decode([]byte(current))
		if err != nil {
			return err
		}
		if stored.Status != expectedStatus {
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
