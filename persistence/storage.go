package persistence

import (
	"time"

	"github.com/convoflow/convoflow/model"
)

type SessionDao interface {
	Save(sess *model.FlowSession) error
	Get(sessionId string) (*model.FlowSession, error)
	// CreateActive persists a new session and claims the (conversation, flow)
	// active pair; a second claim for the same pair fails with ConflictError.
	CreateActive(sess *model.FlowSession) error
	GetActiveSessionId(conversationId string, flowId string) (string, bool, error)
	// Terminate saves the terminal state and releases the active pair plus
	// the activity index in one shot.
	Terminate(sess *model.FlowSession) error
	IdleSessionIds(olderThanMillis int64, limit int) ([]string, error)
	RecentByFlow(flowId string, limit int) ([]*model.FlowSession, error)
}

// SessionLock is the advisory lock serializing step execution per session.
type SessionLock interface {
	Acquire(sessionId string, ttl time.Duration) (string, bool, error)
	Release(sessionId string, token string) error
}

type AssignmentDao interface {
	Save(a *model.FlowAssignment) error
	Get(id string) (*model.FlowAssignment, error)
	GetActiveByChannel(channelId string) (*model.FlowAssignment, bool, error)
	GetActiveByFlow(flowId string) (*model.FlowAssignment, bool, error)
	// Activate atomically enforces both uniqueness invariants and deactivates
	// any other assignment on the same channel.
	Activate(id string) (*model.FlowAssignment, error)
	Deactivate(id string) (*model.FlowAssignment, error)
}

type VariableDao interface {
	Set(partition string, key string, v model.Value) error
	Get(partition string, key string) (*model.Value, bool, error)
	All(partition string) (map[string]model.Value, error)
	Delete(partition string, key string) error
	ClearPartition(partition string) error
	SweepExpired() (int, error)
}

type ExecutionDao interface {
	Open(exec *model.FlowExecution) error
	GetBySession(sessionId string) (*model.FlowExecution, error)
	AppendPath(sessionId string, nodeId string) error
	// AppendStep records a running step row and returns its index for the
	// later terminal update.
	AppendStep(sessionId string, step *model.StepExecution) (int, error)
	FinalizeStep(sessionId string, index int, status model.StepStatus, errMsg string, durationMillis int64) error
	Steps(sessionId string) ([]*model.StepExecution, error)
	// Finalize attaches the terminal status once; later calls are no-ops.
	Finalize(sessionId string, status model.SessionStatus, completedAt int64, requiredNodes int) (bool, error)
	IncrDropoff(flowId string, nodeId string, field string) error
	Dropoff(flowId string) ([]model.NodeDropoff, error)
}

type MetadataDao interface {
	// Save upserts a definition, bumping the stored version by one.
	Save(def *model.FlowDef) (*model.FlowDef, error)
	Get(flowId string) (*model.FlowDef, error)
	GetVersion(flowId string, version int) (*model.FlowDef, error)
	Publish(flowId string) (*model.FlowDef, error)
	Delete(flowId string) error
	List() ([]*model.FlowDef, error)
}

type DelayQueue interface {
	PushWithDelay(queueName string, delay time.Duration, message []byte) error
	Pop(queueName string) ([]string, error)
}

const QUEUE_DELAY = "delay"

const DROPOFF_REACHED = "reached"
const DROPOFF_FAILED = "failed"
const DROPOFF_SKIPPED = "skipped"
