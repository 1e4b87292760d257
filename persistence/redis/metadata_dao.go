package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence"
	"github.com/convoflow/convoflow/util"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const FLOWDEF_KEY = "flowdef"
const FLOWDEF_IDS_KEY = "flowdef:ids"

var _ persistence.MetadataDao = new(redisMetadataDao)

type redisMetadataDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.FlowDef]
}

func NewRedisMetadataDao(base baseDao) *redisMetadataDao {
	return &redisMetadataDao{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.FlowDef](),
	}
}

// Save bumps the version under WATCH so two concurrent saves can not share
// one version number. Each version keeps an immutable snapshot for sessions
// pinned to it.
func (rm *redisMetadataDao) Save(def *model.FlowDef) (*model.FlowDef, error) {
	ctx := context.Background()
	key := rm.getNamespaceKey(FLOWDEF_KEY, def.Id)

	txn := func(tx *rd.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, rd.Nil) {
			return err
		}
		version := 0
		status := model.FLOW_STATUS_DRAFT
		if err == nil {
			existing, derr := rm.encoderDecoder.Decode([]byte(current))
			if derr != nil {
				return derr
			}
			version = existing.Version
			status = existing.Status
		}
		def.Version = version + 1
		def.Status = status
		if def.Status == "" {
			def.Status = model.FLOW_STATUS_DRAFT
		}
		data, err := rm.encoderDecoder.Encode(*def)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.Set(ctx, rm.versionKey(def.Id, def.Version), data, 0)
			pipe.SAdd(ctx, rm.getNamespaceKey(FLOWDEF_IDS_KEY), def.Id)
			return nil
		})
		return err
	}

	for i := 0; i < activateRetries; i++ {
		err := rm.redisClient.Watch(ctx, txn, key)
		if err == nil {
			return def, nil
		}
		if errors.Is(err, rd.TxFailedErr) {
			continue
		}
		logger.Error("error in saving flow definition", zap.String("flowId", def.Id), zap.Error(err))
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	return nil, model.StorageLayerError{Message: "flow definition save transaction kept failing"}
}

func (rm *redisMetadataDao) Get(flowId string) (*model.FlowDef, error) {
	ctx := context.Background()
	data, err := rm.redisClient.Get(ctx, rm.getNamespaceKey(FLOWDEF_KEY, flowId)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, model.ValidationError{Message: fmt.Sprintf("flow %s not found", flowId)}
		}
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	return rm.encoderDecoder.Decode([]byte(data))
}

func (rm *redisMetadataDao) GetVersion(flowId string, version int) (*model.FlowDef, error) {
	ctx := context.Background()
	data, err := rm.redisClient.Get(ctx, rm.versionKey(flowId, version)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, model.ValidationError{Message: fmt.Sprintf("flow %s version %d not found", flowId, version)}
		}
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	return rm.encoderDecoder.Decode([]byte(data))
}

func (rm *redisMetadataDao) Publish(flowId string) (*model.FlowDef, error) {
	def, err := rm.Get(flowId)
	if err != nil {
		return nil, err
	}
	def.Status = model.FLOW_STATUS_PUBLISHED
	data, err := rm.encoderDecoder.Encode(*def)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	pipe := rm.redisClient.TxPipeline()
	pipe.Set(ctx, rm.getNamespaceKey(FLOWDEF_KEY, flowId), data, 0)
	pipe.Set(ctx, rm.versionKey(flowId, def.Version), data, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	return def, nil
}

func (rm *redisMetadataDao) Delete(flowId string) error {
	ctx := context.Background()
	pipe := rm.redisClient.TxPipeline()
	pipe.Del(ctx, rm.getNamespaceKey(FLOWDEF_KEY, flowId))
	pipe.SRem(ctx, rm.getNamespaceKey(FLOWDEF_IDS_KEY), flowId)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rm *redisMetadataDao) List() ([]*model.FlowDef, error) {
	ctx := context.Background()
	ids, err := rm.redisClient.SMembers(ctx, rm.getNamespaceKey(FLOWDEF_IDS_KEY)).Result()
	if err != nil {
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	defs := make([]*model.FlowDef, 0, len(ids))
	for _, id := range ids {
		def, err := rm.Get(id)
		if err != nil {
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (rm *redisMetadataDao) versionKey(flowId string, version int) string {
	return rm.getNamespaceKey(FLOWDEF_KEY, flowId, "v", strconv.Itoa(version))
}
