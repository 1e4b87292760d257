package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence"
	"github.com/convoflow/convoflow/util"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const EXECUTION_KEY = "exec"
const EXECUTION_STEPS_KEY = "exec:steps"
const DROPOFF_KEY = "dropoff"

var _ persistence.ExecutionDao = new(redisExecutionDao)

type redisExecutionDao struct {
	baseDao
	execEncDec util.EncoderDecoder[model.FlowExecution]
	stepEncDec util.EncoderDecoder[model.StepExecution]
}

func NewRedisExecutionDao(base baseDao) *redisExecutionDao {
	return &redisExecutionDao{
		baseDao:    base,
		execEncDec: util.NewJsonEncoderDecoder[model.FlowExecution](),
		stepEncDec: util.NewJsonEncoderDecoder[model.StepExecution](),
	}
}

func (re *redisExecutionDao) save(exec *model.FlowExecution) error {
	ctx := context.Background()
	data, err := re.execEncDec.Encode(*exec)
	if err != nil {
		return err
	}
	if err := re.redisClient.Set(ctx, re.getNamespaceKey(EXECUTION_KEY, exec.SessionId), data, 0).Err(); err != nil {
		logger.Error("error in saving execution", zap.String("sessionId", exec.SessionId), zap.Error(err))
		return model.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (re *redisExecutionDao) Open(exec *model.FlowExecution) error {
	return re.save(exec)
}

func (re *redisExecutionDao) GetBySession(sessionId string) (*model.FlowExecution, error) {
	ctx := context.Background()
	data, err := re.redisClient.Get(ctx, re.getNamespaceKey(EXECUTION_KEY, sessionId)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, model.SessionNotFoundError{SessionId: sessionId}
		}
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	return re.execEncDec.Decode([]byte(data))
}

func (re *redisExecutionDao) AppendPath(sessionId string, nodeId string) error {
	exec, err := re.GetBySession(sessionId)
	if err != nil {
		return err
	}
	exec.Path = append(exec.Path, nodeId)
	return re.save(exec)
}

func (re *redisExecutionDao) AppendStep(sessionId string, step *model.StepExecution) (int, error) {
	ctx := context.Background()
	data, err := re.stepEncDec.Encode(*step)
	if err != nil {
		return 0, err
	}
	n, err := re.redisClient.RPush(ctx, re.getNamespaceKey(EXECUTION_STEPS_KEY, sessionId), data).Result()
	if err != nil {
		return 0, model.StorageLayerError{Message: err.Error()}
	}
	return int(n) - 1, nil
}

func (re *redisExecutionDao) FinalizeStep(sessionId string, index int, status model.StepStatus, errMsg string, durationMillis int64) error {
	ctx := context.Background()
	key := re.getNamespaceKey(EXECUTION_STEPS_KEY, sessionId)
	data, err := re.redisClient.LIndex(ctx, key, int64(index)).Result()
	if err != nil {
		return model.StorageLayerError{Message: err.Error()}
	}
	step, err := re.stepEncDec.Decode([]byte(data))
	if err != nil {
		return err
	}
	step.Status = status
	step.Error = errMsg
	step.DurationMillis = durationMillis
	updated, err := re.stepEncDec.Encode(*step)
	if err != nil {
		return err
	}
	if err := re.redisClient.LSet(ctx, key, int64(index), updated).Err(); err != nil {
		return model.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (re *redisExecutionDao) Steps(sessionId string) ([]*model.StepExecution, error) {
	ctx := context.Background()
	raw, err := re.redisClient.LRange(ctx, re.getNamespaceKey(EXECUTION_STEPS_KEY, sessionId), 0, -1).Result()
	if err != nil {
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	steps := make([]*model.StepExecution, 0, len(raw))
	for _, data := range raw {
		step, err := re.stepEncDec.Decode([]byte(data))
		if err != nil {
			continue
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// Finalize is idempotent: the first terminal transition wins and later
// sweeps never double-count.
func (re *redisExecutionDao) Finalize(sessionId string, status model.SessionStatus, completedAt int64, requiredNodes int) (bool, error) {
	exec, err := re.GetBySession(sessionId)
	if err != nil {
		return false, err
	}
	if exec.Finalized {
		return false, nil
	}
	steps, err := re.Steps(sessionId)
	if err != nil {
		return false, err
	}
	completed := make(map[string]bool)
	for _, step := range steps {
		if step.Status == model.STEP_COMPLETED {
			completed[step.NodeId] = true
		}
	}
	exec.Finalized = true
	exec.Status = status
	exec.CompletedAt = completedAt
	exec.CompletedNodes = len(completed)
	if requiredNodes > 0 {
		exec.RequiredNodes = requiredNodes
	}
	if exec.RequiredNodes > 0 {
		exec.CompletionRate = float64(exec.CompletedNodes) / float64(exec.RequiredNodes)
	}
	if err := re.save(exec); err != nil {
		return false, err
	}
	return true, nil
}

func (re *redisExecutionDao) IncrDropoff(flowId string, nodeId string, field string) error {
	ctx := context.Background()
	err := re.redisClient.HIncrBy(ctx, re.getNamespaceKey(DROPOFF_KEY, flowId), fmt.Sprintf("%s:%s", nodeId, field), 1).Err()
	if err != nil {
		return model.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (re *redisExecutionDao) Dropoff(flowId string) ([]model.NodeDropoff, error) {
	ctx := context.Background()
	raw, err := re.redisClient.HGetAll(ctx, re.getNamespaceKey(DROPOFF_KEY, flowId)).Result()
	if err != nil {
		return nil, model.StorageLayerError{Message: err.Error()}
	}
	byNode := make(map[string]*model.NodeDropoff)
	for field, value := range raw {
		idx := strings.LastIndex(field, ":")
		if idx <= 0 {
			continue
		}
		nodeId, counter := field[:idx], field[idx+1:]
		d, ok := byNode[nodeId]
		if !ok {
			d = &model.NodeDropoff{NodeId: nodeId}
			byNode[nodeId] = d
		}
		var count int64
		fmt.Sscanf(value, "%d", &count)
		switch counter {
		case persistence.DROPOFF_REACHED:
			d.Reached = count
		case persistence.DROPOFF_FAILED:
			d.Failed = count
		case persistence.DROPOFF_SKIPPED:
			d.Skipped = count
		}
	}
	out := make([]model.NodeDropoff, 0, len(byNode))
	for _, d := range byNode {
		if d.Reached > 0 {
			d.Rate = float64(d.Failed+d.Skipped) / float64(d.Reached)
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeId < out[j].NodeId })
	return out, nil
}
