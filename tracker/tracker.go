package tracker

import (
	"time"

	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tracker records the audit trail of a session run and maintains per-node
// dropoff counters per flow. Recording failures never fail the run; they are
// logged and the session carries on.
type Tracker struct {
	dao persistence.ExecutionDao
}

func NewTracker(dao persistence.ExecutionDao) *Tracker {
	return &Tracker{dao: dao}
}

func (t *Tracker) OpenExecution(sess *model.FlowSession) {
	exec := &model.FlowExecution{
		Id:          uuid.New().String(),
		SessionId:   sess.Id,
		FlowId:      sess.FlowId,
		FlowVersion: sess.FlowVersion,
		Path:        []string{},
		Status:      model.SESSION_ACTIVE,
		StartedAt:   time.Now().UnixMilli(),
	}
	if err := t.dao.Open(exec); err != nil {
		logger.Error("error opening execution record", zap.String("sessionId", sess.Id), zap.Error(err))
	}
}

// StepStarted appends a running step row and counts the node as reached.
// The returned index feeds the matching terminal update.
func (t *Tracker) StepStarted(sess *model.FlowSession, nodeId string, kind string) int {
	if err := t.dao.AppendPath(sess.Id, nodeId); err != nil {
		logger.Error("error appending execution path", zap.String("sessionId", sess.Id), zap.Error(err))
	}
	index, err := t.dao.AppendStep(sess.Id, &model.StepExecution{
		NodeId:    nodeId,
		Kind:      kind,
		Status:    model.STEP_RUNNING,
		StartedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		logger.Error("error appending step record", zap.String("sessionId", sess.Id), zap.Error(err))
		return -1
	}
	if err := t.dao.IncrDropoff(sess.FlowId, nodeId, persistence.DROPOFF_REACHED); err != nil {
		logger.Error("error counting reached node", zap.String("flowId", sess.FlowId), zap.Error(err))
	}
	return index
}

func (t *Tracker) StepCompleted(sess *model.FlowSession, index int, startedAt time.Time) {
	t.finalizeStep(sess, index, model.STEP_COMPLETED, "", startedAt)
}

func (t *Tracker) StepFailed(sess *model.FlowSession, nodeId string, index int, errMsg string, startedAt time.Time) {
	t.finalizeStep(sess, index, model.STEP_FAILED, errMsg, startedAt)
	if err := t.dao.IncrDropoff(sess.FlowId, nodeId, persistence.DROPOFF_FAILED); err != nil {
		logger.Error("error counting failed node", zap.String("flowId", sess.FlowId), zap.Error(err))
	}
}

// StepSkipped records a branch head that a condition evaluated but did not
// take. The row carries no duration; the node never executed.
func (t *Tracker) StepSkipped(sess *model.FlowSession, nodeId string, kind string) {
	if _, err := t.dao.AppendStep(sess.Id, &model.StepExecution{
		NodeId:    nodeId,
		Kind:      kind,
		Status:    model.STEP_SKIPPED,
		StartedAt: time.Now().UnixMilli(),
	}); err != nil {
		logger.Error("error appending skipped step record", zap.String("sessionId", sess.Id), zap.Error(err))
	}
	if err := t.dao.IncrDropoff(sess.FlowId, nodeId, persistence.DROPOFF_REACHED); err != nil {
		logger.Error("error counting skipped node", zap.String("flowId", sess.FlowId), zap.Error(err))
	}
	if err := t.dao.IncrDropoff(sess.FlowId, nodeId, persistence.DROPOFF_SKIPPED); err != nil {
		logger.Error("error counting skipped node", zap.String("flowId", sess.FlowId), zap.Error(err))
	}
}

// Finalize stamps the terminal status on the execution record exactly once.
// Sweeper and engine may race to terminate a session; the loser's call is a
// no-op.
func (t *Tracker) Finalize(sess *model.FlowSession, requiredNodes int) bool {
	first, err := t.dao.Finalize(sess.Id, sess.Status, time.Now().UnixMilli(), requiredNodes)
	if err != nil {
		logger.Error("error finalizing execution record", zap.String("sessionId", sess.Id), zap.Error(err))
		return false
	}
	return first
}

func (t *Tracker) Execution(sessionId string) (*model.FlowExecution, error) {
	return t.dao.GetBySession(sessionId)
}

func (t *Tracker) Steps(sessionId string) ([]*model.StepExecution, error) {
	return t.dao.Steps(sessionId)
}

func (t *Tracker) Dropoff(flowId string) ([]model.NodeDropoff, error) {
	return t.dao.Dropoff(flowId)
}

func (t *Tracker) finalizeStep(sess *model.FlowSession, index int, status model.StepStatus, errMsg string, startedAt time.Time) {
	if index < 0 {
		return
	}
	duration := time.Since(startedAt).Milliseconds()
	if err := t.dao.FinalizeStep(sess.Id, index, status, errMsg, duration); err != nil {
		logger.Error("error finalizing step record", zap.String("sessionId", sess.Id), zap.Error(err))
	}
}
