package session

import (
	"errors"
	"time"

	"github.com/convoflow/convoflow/assignment"
	"github.com/convoflow/convoflow/engine"
	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/metadata"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence"
	"github.com/convoflow/convoflow/variable"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config struct {
	IdleTTL        time.Duration
	SweepBatchSize int
}

func DefaultConfig() Config {
	return Config{
		IdleTTL:        24 * time.Hour,
		SweepBatchSize: 100,
	}
}

// Manager is the trigger-facing surface of the engine. It routes inbound
// events to the session that should consume them, creating one when the
// channel's assigned flow has no active session for the conversation.
type Manager struct {
	conf        Config
	sessions    persistence.SessionDao
	assignments *assignment.Manager
	metadata    metadata.Service
	engine      *engine.Engine
	vars        *variable.Store
}

func NewManager(conf Config, sessions persistence.SessionDao, assignments *assignment.Manager,
	metadataService metadata.Service, eng *engine.Engine, vars *variable.Store) *Manager {
	return &Manager{
		conf:        conf,
		sessions:    sessions,
		assignments: assignments,
		metadata:    metadataService,
		engine:      eng,
		vars:        vars,
	}
}

// HandleTrigger is the single inbound entry point. The channel's active
// assignment picks the flow; an existing session for the (conversation, flow)
// pair consumes the event, otherwise a new session starts from the root.
// A trigger on a channel with no active assignment is dropped.
func (m *Manager) HandleTrigger(event *model.TriggerEvent) (*model.FlowSession, error) {
	assigned, ok, err := m.assignments.ResolveChannel(event.ChannelId)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Debug("no active flow on channel, trigger dropped", zap.String("channelId", event.ChannelId))
		return nil, nil
	}

	sessionId, exists, err := m.sessions.GetActiveSessionId(event.ConversationId, assigned.FlowId)
	if err != nil {
		return nil, err
	}
	if exists {
		return m.dispatchToExisting(sessionId, event)
	}
	return m.startSession(assigned.FlowId, event)
}

// dispatchToExisting feeds the event to a live session. Input-waits consume
// any payload; event-waits only consume a matching event name; delay-waits
// ignore inbound traffic and wait for the timer.
func (m *Manager) dispatchToExisting(sessionId string, event *model.TriggerEvent) (*model.FlowSession, error) {
	sess, err := m.sessions.Get(sessionId)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case model.SESSION_ACTIVE, model.SESSION_PAUSED:
		return sess, nil
	case model.SESSION_WAITING:
	default:
		return nil, model.ExpiredSessionError{SessionId: sessionId, Status: sess.Status}
	}

	switch sess.WaitReason {
	case model.WAIT_REASON_INPUT:
		return m.engine.Run(sessionId, event.Payload, true)
	case model.WAIT_REASON_EVENT:
		if name, _ := event.Payload["event"].(string); name == sess.WaitEvent {
			return m.engine.Run(sessionId, event.Payload, true)
		}
		logger.Debug("session waiting on different event, trigger ignored",
			zap.String("sessionId", sessionId), zap.String("waitEvent", sess.WaitEvent))
		return sess, nil
	default:
		return sess, nil
	}
}

func (m *Manager) startSession(flowId string, event *model.TriggerEvent) (*model.FlowSession, error) {
	fl, def, err := m.metadata.GetPublished(flowId)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	sess := &model.FlowSession{
		Id:             uuid.New().String(),
		FlowId:         def.Id,
		FlowVersion:    def.Version,
		ConversationId: event.ConversationId,
		ContactId:      event.ContactId,
		CompanyId:      event.CompanyId,
		ChannelId:      event.ChannelId,
		Status:         model.SESSION_ACTIVE,
		CurrentNodeId:  fl.Root,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := m.sessions.CreateActive(sess); err != nil {
		// A concurrent trigger won the race; route this event to the winner.
		if errors.As(err, &model.ConflictError{}) {
			if sessionId, exists, gerr := m.sessions.GetActiveSessionId(event.ConversationId, def.Id); gerr == nil && exists {
				return m.dispatchToExisting(sessionId, event)
			}
		}
		return nil, err
	}
	if err := m.seedVariables(sess, event); err != nil {
		return nil, err
	}
	logger.Info("session started", zap.String("sessionId", sess.Id),
		zap.String("flowId", def.Id), zap.Int("flowVersion", def.Version))
	return m.engine.Start(sess.Id, event.Payload)
}

// seedVariables exposes the trigger context to predicates and templates
// before the first node runs. Conversation-bound values live at flow scope
// and die with the session; contact identity is seeded at user scope and
// survives it.
func (m *Manager) seedVariables(sess *model.FlowSession, event *model.TriggerEvent) error {
	flowSeed := map[string]any{
		"trigger":        event.Payload,
		"conversationId": event.ConversationId,
		"channelId":      event.ChannelId,
		"channelType":    event.ChannelType,
	}
	for key, value := range flowSeed {
		if err := m.vars.Set(sess, key, value, model.SCOPE_FLOW, "", 0); err != nil {
			return err
		}
	}
	userSeed := map[string]any{
		"contactId": event.ContactId,
		"companyId": event.CompanyId,
	}
	for key, value := range userSeed {
		if err := m.vars.Set(sess, key, value, model.SCOPE_USER, "", 0); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) Get(sessionId string) (*model.FlowSession, error) {
	return m.sessions.Get(sessionId)
}

func (m *Manager) RecentByFlow(flowId string, limit int) ([]*model.FlowSession, error) {
	return m.sessions.RecentByFlow(flowId, limit)
}

// Resume is the direct resume surface for a waiting session, bypassing
// channel routing. Resuming an active session is a no-op; a terminal one
// fails with ExpiredSessionError.
func (m *Manager) Resume(sessionId string, input map[string]any) (*model.FlowSession, error) {
	return m.engine.Run(sessionId, input, true)
}

func (m *Manager) ResumePaused(sessionId string) (*model.FlowSession, error) {
	return m.engine.ResumePaused(sessionId)
}

func (m *Manager) Cancel(sessionId string) (*model.FlowSession, error) {
	return m.engine.Cancel(sessionId)
}

// ExpireIdle times out sessions whose last activity predates the idle TTL.
// Each candidate is re-checked under its lock, so replicas sweeping
// concurrently expire a session exactly once.
func (m *Manager) ExpireIdle() int {
	cutoff := time.Now().Add(-m.conf.IdleTTL).UnixMilli()
	ids, err := m.sessions.IdleSessionIds(cutoff, m.conf.SweepBatchSize)
	if err != nil {
		logger.Error("error listing idle sessions", zap.Error(err))
		return 0
	}
	expired := 0
	for _, id := range ids {
		ok, err := m.engine.Timeout(id)
		if err != nil {
			logger.Error("error expiring idle session", zap.String("sessionId", id), zap.Error(err))
			continue
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		logger.Info("idle sessions expired", zap.Int("count", expired))
	}
	return expired
}
