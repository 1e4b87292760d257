package assignment

import (
	"fmt"
	"time"

	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/metadata"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager binds flows to channels under two global invariants: at most one
// active assignment per channel and at most one per flow.
type Manager struct {
	dao      persistence.AssignmentDao
	metadata metadata.Service
}

func NewManager(dao persistence.AssignmentDao, metadataService metadata.Service) *Manager {
	return &Manager{
		dao:      dao,
		metadata: metadataService,
	}
}

// Create binds a published flow to a channel and activates the binding.
// It fails with ConflictError when the channel already runs a different
// flow or the flow is already active on a different channel.
func (m *Manager) Create(flowId string, channelId string) (*model.FlowAssignment, error) {
	def, err := m.metadata.GetFlowDef(flowId)
	if err != nil {
		return nil, err
	}
	if def.Status != model.FLOW_STATUS_PUBLISHED {
		return nil, model.ValidationError{Message: fmt.Sprintf("flow %s must be published before assignment", flowId)}
	}
	if existing, ok, err := m.dao.GetActiveByChannel(channelId); err != nil {
		return nil, err
	} else if ok && existing.FlowId != flowId {
		return nil, model.ConflictError{Message: fmt.Sprintf("channel %s already runs flow %s", channelId, existing.FlowId)}
	}
	if existing, ok, err := m.dao.GetActiveByFlow(flowId); err != nil {
		return nil, err
	} else if ok && existing.ChannelId != channelId {
		return nil, model.ConflictError{Message: fmt.Sprintf("flow %s is already active on channel %s", flowId, existing.ChannelId)}
	}

	a := &model.FlowAssignment{
		Id:        uuid.New().String(),
		FlowId:    flowId,
		ChannelId: channelId,
		CreatedAt: time.Now().UnixMilli(),
		UpdatedAt: time.Now().UnixMilli(),
	}
	if err := m.dao.Save(a); err != nil {
		return nil, err
	}
	activated, err := m.dao.Activate(a.Id)
	if err != nil {
		return nil, err
	}
	logger.Info("flow assigned to channel", zap.String("flowId", flowId), zap.String("channelId", channelId))
	return activated, nil
}

// SetActive toggles a binding. Activation atomically deactivates any other
// assignment on the same channel and rejects when the flow is active
// elsewhere; the invariant check and the write happen in one transaction.
func (m *Manager) SetActive(assignmentId string, active bool) (*model.FlowAssignment, error) {
	if active {
		return m.dao.Activate(assignmentId)
	}
	return m.dao.Deactivate(assignmentId)
}

func (m *Manager) Get(assignmentId string) (*model.FlowAssignment, error) {
	return m.dao.Get(assignmentId)
}

func (m *Manager) ResolveChannel(channelId string) (*model.FlowAssignment, bool, error) {
	return m.dao.GetActiveByChannel(channelId)
}
