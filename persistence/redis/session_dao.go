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

const SESSION_KEY = "session"
const SESSION_ACTIVE_KEY = "session:active"
const SESSION_ACTIVITY_KEY = "session:activity"
const SESSION_FLOW_KEY = "session:flow"

var _ persistence.SessionDao = new(redisSessionDao)

type redisSessionDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.FlowSession]
}

func NewRedisSessionDao(base baseDao) *redisSessionDao {
	return &redisSessionDao{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.FlowSession](),
	}
}

func (rs *redisSessionDao) Save(sess *model.FlowSession) error {
	ctx := context.Background()
	data, err := rs.encoderDecoder.Encode(*sess)
	if err != nil {
		return err
	}
	pipe := rs.redisClient.TxPipeline()
	pipe.Set(ctx, rs.getNamespaceKey(SESSION_KEY, sess.Id), data, 0)
	if sess.Status.Terminal() {
		pipe.ZRem(ctx, rs.getNamespaceKey(SESSION_ACTIVITY_KEY), sess.Id)
	} else {
		pipe.ZAdd(ctx, rs.getNamespaceKey(SESSION_ACTIVITY_KEY), rd.Z{
			Score:  float64(sess.LastActivityAt),
			Member: sess.Id,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("error in saving session", zap.String("sessionId", sess.Id), zap.Error(err))
		return model.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rs *redisSessionDao) Get(sessionId string) (*model.FlowSession, error) {
	ctx := context.Background()
	data, err := rs.redisClient.Get(ctx, rs.getNamespaceKey(SESSION_KEY, sessionId)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, model.SessionNotFoundError{SessionId: sessionId}
		}
		logger.Error("error in getting session", zap.String("sessionId", sessionId), zap.Error(err))
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	return rs.encoderDecoder.Decode([]byte(data))
}

func (rs *redisSessionDao) CreateActive(sess *model.FlowSession) error {
	ctx := context.Background()
	pairKey := rs.getNamespaceKey(SESSION_ACTIVE_KEY, sess.ConversationId, sess.FlowId)
	ok, err := rs.redisClient.SetNX(ctx, pairKey, sess.Id, 0).Result()
	if err != nil {
		return model.StorageLayerError{Message: err.Error()}
	}
	if !ok {
		return model.ConflictError{Message: fmt.Sprintf("conversation %s already has a running session for flow %s", sess.ConversationId, sess.FlowId)}
	}
	if err := rs.Save(sess); err != nil {
		return err
	}
	if err := rs.redisClient.ZAdd(ctx, rs.getNamespaceKey(SESSION_FLOW_KEY, sess.FlowId), rd.Z{
		Score:  float64(sess.StartedAt),
		Member: sess.Id,
	}).Err(); err != nil {
		return model.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rs *redisSessionDao) GetActiveSessionId(conversationId string, flowId string) (string, bool, error) {
	ctx := context.Background()
	sessionId, err := rs.redisClient.Get(ctx, rs.getNamespaceKey(SESSION_ACTIVE_KEY, conversationId, flowId)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return "", false, nil
		}
		return "", false, model.StorageLayerError{Message: err.Error()}
	}
	return sessionId, true, nil
}

func (rs *redisSessionDao) Terminate(sess *model.FlowSession) error {
	ctx := context.Background()
	data, err := rs.encoderDecoder.Encode(*sess)
	if err != nil {
		return err
	}
	pipe := rs.redisClient.TxPipeline()
	pipe.Set(ctx, rs.getNamespaceKey(SESSION_KEY, sess.Id), data, 0)
	pipe.ZRem(ctx, rs.getNamespaceKey(SESSION_ACTIVITY_KEY), sess.Id)
	pipe.Del(ctx, rs.getNamespaceKey(SESSION_ACTIVE_KEY, sess.ConversationId, sess.FlowId))
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("error in terminating session", zap.String("sessionId", sess.Id), zap.Error(err))
		return model.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rs *redisSessionDao) IdleSessionIds(olderThanMillis int64, limit int) ([]string, error) {
	ctx := context.Background()
	opt := &rd.ZRangeBy{
		Min:   "0",
		Max:   strconv.FormatInt(olderThanMillis, 10),
		Count: int64(limit),
	}
	ids, err := rs.redisClient.ZRangeByScore(ctx, rs.getNamespaceKey(SESSION_ACTIVITY_KEY), opt).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []string{}, nil
		}
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	return ids, nil
}

func (rs *redisSessionDao) RecentByFlow(flowId string, limit int) ([]*model.FlowSession, error) {
	ctx := context.Background()
	ids, err := rs.redisClient.ZRevRange(ctx, rs.getNamespaceKey(SESSION_FLOW_KEY, flowId), 0, int64(limit-1)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	sessions := make([]*model.FlowSession, 0, len(ids))
	for _, id := range ids {
		sess, err := rs.Get(id)
		if err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}
