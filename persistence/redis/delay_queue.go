package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const QUEUE_KEY = "queue"

var _ persistence.DelayQueue = new(redisDelayQueue)

type redisDelayQueue struct {
	baseDao
}

func NewRedisDelayQueue(base baseDao) *redisDelayQueue {
	return &redisDelayQueue{baseDao: base}
}

func (rq *redisDelayQueue) PushWithDelay(queueName string, delay time.Duration, message []byte) error {
	queueName = rq.getNamespaceKey(QUEUE_KEY, queueName)
	ctx := context.Background()
	fireAt := time.Now().Add(delay).UnixMilli()
	member := rd.Z{
		Score:  float64(fireAt),
		Member: message,
	}
	err := rq.redisClient.ZAdd(ctx, queueName, member).Err()
	if err != nil {
		logger.Error("error while push to delay queue", zap.String("queue", queueName), zap.Error(err))
		return model.StorageLayerError{Message: err.Error()}
	}
	return nil
}

// Pop returns every message whose deadline has passed and removes them in
// the same pipeline.
func (rq *redisDelayQueue) Pop(queueName string) ([]string, error) {
	queueName = rq.getNamespaceKey(QUEUE_KEY, queueName)
	ctx := context.Background()
	currentTime := time.Now().UnixMilli()
	pipe := rq.redisClient.Pipeline()

	opt := &rd.ZRangeBy{
		Min: strconv.Itoa(0),
		Max: strconv.FormatInt(currentTime, 10),
	}
	zr := pipe.ZRangeByScore(ctx, queueName, opt)
	pipe.ZRemRangeByScore(ctx, queueName, strconv.Itoa(0), strconv.FormatInt(currentTime, 10))

	_, err := pipe.Exec(ctx)
	if err != nil {
		logger.Error("error while pop from delay queue", zap.String("queue", queueName), zap.Error(err))
		return nil, model.StorageLayerError{Message: err.Error()}
	}

	res, err := zr.Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []string{}, nil
		}
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	return res, nil
}
