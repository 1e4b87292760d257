package redis

import (
	"context"
	"errors"
	"time"

	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence"
	"github.com/convoflow/convoflow/util"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const VARIABLE_KEY = "var"
const VARIABLE_PARTITIONS_KEY = "var:partitions"

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

var _ persistence.VariableDao = new(redisVariableDao)

type redisVariableDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.Value]
}

func NewRedisVariableDao(base baseDao) *redisVariableDao {
	return &redisVariableDao{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.Value](),
	}
}

func (rv *redisVariableDao) Set(partition string, key string, v model.Value) error {
	ctx := context.Background()
	data, err := rv.encoderDecoder.Encode(v)
	if err != nil {
		return err
	}
	pipe := rv.redisClient.TxPipeline()
	pipe.HSet(ctx, rv.getNamespaceKey(VARIABLE_KEY, partition), key, data)
	pipe.SAdd(ctx, rv.getNamespaceKey(VARIABLE_PARTITIONS_KEY), partition)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("error in saving variable", zap.String("partition", partition), zap.String("key", key), zap.Error(err))
		return model.StorageLayerError{Message: err.Error()}
	}
	return nil
}

// Get treats an expired entry as absent and removes it lazily.
func (rv *redisVariableDao) Get(partition string, key string) (*model.Value, bool, error) {
	ctx := context.Background()
	data, err := rv.redisClient.HGet(ctx, rv.getNamespaceKey(VARIABLE_KEY, partition), key).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, false, nil
		}
		return nil, false, model.StorageLayerError{Message: err.Error()}
	}
	v, err := rv.encoderDecoder.Decode([]byte(data))
	if err != nil {
		return nil, false, err
	}
	if v.ExpiresAt > 0 && v.ExpiresAt <= nowMillis() {
		rv.redisClient.HDel(ctx, rv.getNamespaceKey(VARIABLE_KEY, partition), key)
		return nil, false, nil
	}
	return v, true, nil
}

func (rv *redisVariableDao) All(partition string) (map[string]model.Value, error) {
	ctx := context.Background()
	raw, err := rv.redisClient.HGetAll(ctx, rv.getNamespaceKey(VARIABLE_KEY, partition)).Result()
	if err != nil {
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	out := make(map[string]model.Value, len(raw))
	now := nowMillis()
	for key, data := range raw {
		v, err := rv.encoderDecoder.Decode([]byte(data))
		if err != nil {
			continue
		}
		if v.ExpiresAt > 0 && v.ExpiresAt <= now {
			rv.redisClient.HDel(ctx, rv.getNamespaceKey(VARIABLE_KEY, partition), key)
			continue
		}
		out[key] = *v
	}
	return out, nil
}

func (rv *redisVariableDao) Delete(partition string, key string) error {
	ctx := context.Background()
	if err := rv.redisClient.HDel(ctx, rv.getNamespaceKey(VARIABLE_KEY, partition), key).Err(); err != nil {
		return model.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rv *redisVariableDao) ClearPartition(partition string) error {
	ctx := context.Background()
	if err := rv.redisClient.Del(ctx, rv.getNamespaceKey(VARIABLE_KEY, partition)).Err(); err != nil {
		return model.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rv *redisVariableDao) SweepExpired() (int, error) {
	ctx := context.Background()
	partitions, err := rv.redisClient.SMembers(ctx, rv.getNamespaceKey(VARIABLE_PARTITIONS_KEY)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return 0, nil
		}
		return 0, model.StorageLayerError{Message: err.Error()}
	}
	swept := 0
	now := nowMillis()
	for _, partition := range partitions {
		raw, err := rv.redisClient.HGetAll(ctx, rv.getNamespaceKey(VARIABLE_KEY, partition)).Result()
		if err != nil {
			continue
		}
		for key, data := range raw {
			v, err := rv.encoderDecoder.Decode([]byte(data))
			if err != nil {
				continue
			}
			if v.ExpiresAt > 0 && v.ExpiresAt <= now {
				rv.redisClient.HDel(ctx, rv.getNamespaceKey(VARIABLE_KEY, partition), key)
				swept++
			}
		}
		if len(raw) == 0 {
			rv.redisClient.SRem(ctx, rv.getNamespaceKey(VARIABLE_PARTITIONS_KEY), partition)
		}
	}
	return swept, nil
}
