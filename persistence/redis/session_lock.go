package redis

import (
	"context"
	"time"

	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence"
	"github.com/google/uuid"
)

const SESSION_LOCK_KEY = "session:lock"

// releaseScript deletes the lock only when the caller still owns it, so an
// expired-and-reacquired lock is never released by the old owner.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

var _ persistence.SessionLock = new(redisSessionLock)

type redisSessionLock struct {
	baseDao
}

func NewRedisSessionLock(base baseDao) *redisSessionLock {
	return &redisSessionLock{baseDao: base}
}

func (rl *redisSessionLock) Acquire(sessionId string, ttl time.Duration) (string, bool, error) {
	ctx := context.Background()
	token := uuid.New().String()
	ok, err := rl.redisClient.SetNX(ctx, rl.getNamespaceKey(SESSION_LOCK_KEY, sessionId), token, ttl).Result()
	if err != nil {
		return "", false, model.StorageLayerError{Message: err.Error()}
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (rl *redisSessionLock) Release(sessionId string, token string) error {
	ctx := context.Background()
	err := rl.redisClient.Eval(ctx, releaseScript, []string{rl.getNamespaceKey(SESSION_LOCK_KEY, sessionId)}, token).Err()
	if err != nil {
		return model.StorageLayerError{Message: err.Error()}
	}
	return nil
}
