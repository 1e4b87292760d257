package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence"
	"github.com/convoflow/convoflow/util"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const ASSIGNMENT_KEY = "assignment"
const ASSIGNMENT_CHANNEL_KEY = "assignment:channel"
const ASSIGNMENT_FLOW_KEY = "assignment:flow"

const activateRetries = 3

var _ persistence.AssignmentDao = new(redisAssignmentDao)

type redisAssignmentDao struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.FlowAssignment]
}

func NewRedisAssignmentDao(base baseDao) *redisAssignmentDao {
	return &redisAssignmentDao{
		baseDao:        base,
		encoderDecoder: util.NewJsonEncoderDecoder[model.FlowAssignment](),
	}
}

func (ra *redisAssignmentDao) Save(a *model.FlowAssignment) error {
	ctx := context.Background()
	data, err := ra.encoderDecoder.Encode(*a)
	if err != nil {
		return err
	}
	if err := ra.redisClient.Set(ctx, ra.getNamespaceKey(ASSIGNMENT_KEY, a.Id), data, 0).Err(); err != nil {
		logger.Error("error in saving assignment", zap.String("assignmentId", a.Id), zap.Error(err))
		return model.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (ra *redisAssignmentDao) Get(id string) (*model.FlowAssignment, error) {
	ctx := context.Background()
	data, err := ra.redisClient.Get(ctx, ra.getNamespaceKey(ASSIGNMENT_KEY, id)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, model.ValidationError{Message: fmt.Sprintf("assignment %s not found", id)}
		}
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	return ra.encoderDecoder.Decode([]byte(data))
}

func (ra *redisAssignmentDao) GetActiveByChannel(channelId string) (*model.FlowAssignment, bool, error) {
	return ra.getByBinding(ra.getNamespaceKey(ASSIGNMENT_CHANNEL_KEY, channelId))
}

func (ra *redisAssignmentDao) GetActiveByFlow(flowId string) (*model.FlowAssignment, bool, error) {
	return ra.getByBinding(ra.getNamespaceKey(ASSIGNMENT_FLOW_KEY, flowId))
}

func (ra *redisAssignmentDao) getByBinding(bindingKey string) (*model.FlowAssignment, bool, error) {
	ctx := context.Background()
	id, err := ra.redisClient.Get(ctx, bindingKey).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, false, nil
		}
		return nil, false, model.StorageLayerError{Message: err.Error()}
	}
	a, err := ra.Get(id)
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// Activate runs the invariant check and the binding writes in one WATCH
// transaction, closing the race between two concurrent activations.
func (ra *redisAssignmentDao) Activate(id string) (*model.FlowAssignment, error) {
	a, err := ra.Get(id)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	channelKey := ra.getNamespaceKey(ASSIGNMENT_CHANNEL_KEY, a.ChannelId)
	flowKey := ra.getNamespaceKey(ASSIGNMENT_FLOW_KEY, a.FlowId)

	txn := func(tx *rd.Tx) error {
		flowBound, err := tx.Get(ctx, flowKey).Result()
		if err != nil && !errors.Is(err, rd.Nil) {
			return err
		}
		if err == nil && flowBound != id {
			return model.ConflictError{Message: fmt.Sprintf("flow %s is already active on another channel", a.FlowId)}
		}

		channelBound, err := tx.Get(ctx, channelKey).Result()
		if err != nil && !errors.Is(err, rd.Nil) {
			return err
		}
		var displaced *model.FlowAssignment
		if err == nil && channelBound != id {
			displaced, err = ra.Get(channelBound)
			if err != nil {
				return err
			}
		}

		a.Active = true
		a.UpdatedAt = nowMillis()
		data, err := ra.encoderDecoder.Encode(*a)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, ra.getNamespaceKey(ASSIGNMENT_KEY, a.Id), data, 0)
			pipe.Set(ctx, channelKey, a.Id, 0)
			pipe.Set(ctx, flowKey, a.Id, 0)
			if displaced != nil {
				displaced.Active = false
				displaced.UpdatedAt = nowMillis()
				dd, err := ra.encoderDecoder.Encode(*displaced)
				if err != nil {
					return err
				}
				pipe.Set(ctx, ra.getNamespaceKey(ASSIGNMENT_KEY, displaced.Id), dd, 0)
				pipe.Del(ctx, ra.getNamespaceKey(ASSIGNMENT_FLOW_KEY, displaced.FlowId))
			}
			return nil
		})
		return err
	}

	for i := 0; i < activateRetries; i++ {
		err := ra.redisClient.Watch(ctx, txn, channelKey, flowKey)
		if err == nil {
			return a, nil
		}
		if errors.Is(err, rd.TxFailedErr) {
			continue
		}
		var conflict model.ConflictError
		if errors.As(err, &conflict) {
			return nil, conflict
		}
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	return nil, model.ConflictError{Message: fmt.Sprintf("assignment %s activation lost the race, try again", id)}
}

func (ra *redisAssignmentDao) Deactivate(id string) (*model.FlowAssignment, error) {
	a, err := ra.Get(id)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	channelKey := ra.getNamespaceKey(ASSIGNMENT_CHANNEL_KEY, a.ChannelId)
	flowKey := ra.getNamespaceKey(ASSIGNMENT_FLOW_KEY, a.FlowId)

	txn := func(tx *rd.Tx) error {
		a.Active = false
		a.UpdatedAt = nowMillis()
		data, err := ra.encoderDecoder.Encode(*a)
		if err != nil {
			return err
		}
		channelBound, _ := tx.Get(ctx, channelKey).Result()
		flowBound, _ := tx.Get(ctx, flowKey).Result()
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, ra.getNamespaceKey(ASSIGNMENT_KEY, a.Id), data, 0)
			if channelBound == id {
				pipe.Del(ctx, channelKey)
			}
			if flowBound == id {
				pipe.Del(ctx, flowKey)
			}
			return nil
		})
		return err
	}

	for i := 0; i < activateRetries; i++ {
		err := ra.redisClient.Watch(ctx, txn, channelKey, flowKey)
		if err == nil {
			return a, nil
		}
		if errors.Is(err, rd.TxFailedErr) {
			continue
		}
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	return nil, model.StorageLayerError{Message: "deactivation transaction kept failing"}
}
