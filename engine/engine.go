package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/convoflow/convoflow/channel"
	"github.com/convoflow/convoflow/flow"
	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/metadata"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/node"
	"github.com/convoflow/convoflow/persistence"
	"github.com/convoflow/convoflow/tracker"
	"github.com/convoflow/convoflow/util"
	"github.com/convoflow/convoflow/variable"
	"go.uber.org/zap"
)

type Config struct {
	LockTTL          time.Duration
	LockAttempts     int
	LockRetryDelay   time.Duration
	RetryAttempts    int
	RetryBackoffBase time.Duration
	SandboxTimeout   time.Duration
	WebhookTimeout   time.Duration
	MaxStepsPerRun   int
}

func DefaultConfig() Config {
	return Config{
		LockTTL:          30 * time.Second,
		LockAttempts:     3,
		LockRetryDelay:   50 * time.Millisecond,
		RetryAttempts:    3,
		RetryBackoffBase: 200 * time.Millisecond,
		SandboxTimeout:   5 * time.Second,
		WebhookTimeout:   10 * time.Second,
		MaxStepsPerRun:   200,
	}
}

// Engine advances one session at a time under its advisory lock. It walks the
// compiled graph from the session cursor, applies handler effects, and stops
// on a suspension, a pause or a terminal transition.
type Engine struct {
	conf      Config
	sessions  persistence.SessionDao
	locks     persistence.SessionLock
	delayQ    persistence.DelayQueue
	vars      *variable.Store
	tracker   *tracker.Tracker
	metadata  metadata.Service
	adapter   channel.Adapter
	resumeEnc util.EncoderDecoder[ResumeMessage]
}

// ResumeMessage is the delay queue payload scheduling a future resumption.
type ResumeMessage struct {
	SessionId string `json:"sessionId"`
	NodeId    string `json:"nodeId"`
}

func NewEngine(conf Config, sessions persistence.SessionDao, locks persistence.SessionLock,
	delayQ persistence.DelayQueue, vars *variable.Store, tr *tracker.Tracker,
	metadataService metadata.Service, adapter channel.Adapter) *Engine {
	return &Engine{
		conf:      conf,
		sessions:  sessions,
		locks:     locks,
		delayQ:    delayQ,
		vars:      vars,
		tracker:   tr,
		metadata:  metadataService,
		adapter:   adapter,
		resumeEnc: util.NewJsonEncoderDecoder[ResumeMessage](),
	}
}

// Run executes the session from its current cursor until it suspends, pauses
// or terminates. When resume is set the first node executed sees the resume
// pass, so a delay node transitions instead of suspending again.
func (e *Engine) Run(sessionId string, input map[string]any, resume bool) (*model.FlowSession, error) {
	token, err := e.acquire(sessionId)
	if err != nil {
		return nil, err
	}
	defer e.release(sessionId, token)

	sess, err := e.sessions.Get(sessionId)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, model.ExpiredSessionError{SessionId: sessionId, Status: sess.Status}
	}
	if sess.Status != model.SESSION_WAITING {
		// Resuming an active or paused session is an idempotent no-op; a
		// paused session only moves through the explicit operator resume.
		return sess, nil
	}

	fl, err := e.metadata.GetFlow(sess.FlowId, sess.FlowVersion)
	if err != nil {
		return nil, err
	}

	sess.Status = model.SESSION_ACTIVE
	sess.WaitReason = ""
	sess.WaitEvent = ""
	if err := e.touch(sess); err != nil {
		return nil, err
	}
	return e.runLoop(sess, fl, input, resume)
}

// Start begins a freshly created session from the root node. The caller has
// already persisted it through CreateActive.
func (e *Engine) Start(sessionId string, input map[string]any) (*model.FlowSession, error) {
	token, err := e.acquire(sessionId)
	if err != nil {
		return nil, err
	}
	defer e.release(sessionId, token)

	sess, err := e.sessions.Get(sessionId)
	if err != nil {
		return nil, err
	}
	fl, err := e.metadata.GetFlow(sess.FlowId, sess.FlowVersion)
	if err != nil {
		return nil, err
	}
	e.tracker.OpenExecution(sess)
	return e.runLoop(sess, fl, input, false)
}

// ResumePaused is the operator path out of a pause. It clears the recorded
// error and re-executes the node the session paused on.
func (e *Engine) ResumePaused(sessionId string) (*model.FlowSession, error) {
	token, err := e.acquire(sessionId)
	if err != nil {
		return nil, err
	}
	defer e.release(sessionId, token)

	sess, err := e.sessions.Get(sessionId)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, model.ExpiredSessionError{SessionId: sessionId, Status: sess.Status}
	}
	if sess.Status != model.SESSION_PAUSED {
		return sess, nil
	}
	fl, err := e.metadata.GetFlow(sess.FlowId, sess.FlowVersion)
	if err != nil {
		return nil, err
	}
	sess.Status = model.SESSION_ACTIVE
	sess.LastError = ""
	if err := e.touch(sess); err != nil {
		return nil, err
	}
	return e.runLoop(sess, fl, nil, false)
}

// Cancel force-terminates a session from any non-terminal state.
func (e *Engine) Cancel(sessionId string) (*model.FlowSession, error) {
	token, err := e.acquire(sessionId)
	if err != nil {
		return nil, err
	}
	defer e.release(sessionId, token)

	sess, err := e.sessions.Get(sessionId)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, model.ExpiredSessionError{SessionId: sessionId, Status: sess.Status}
	}
	fl, err := e.metadata.GetFlow(sess.FlowId, sess.FlowVersion)
	if err != nil {
		return nil, err
	}
	if err := e.terminate(sess, fl, model.SESSION_CANCELLED); err != nil {
		return nil, err
	}
	return sess, nil
}

// Timeout expires an idle session. Every non-terminal session can time out,
// paused ones included; a session another sweeper already terminated is left
// alone.
func (e *Engine) Timeout(sessionId string) (bool, error) {
	token, err := e.acquire(sessionId)
	if err != nil {
		return false, err
	}
	defer e.release(sessionId, token)

	sess, err := e.sessions.Get(sessionId)
	if err != nil {
		if errors.As(err, &model.SessionNotFoundError{}) {
			return false, nil
		}
		return false, err
	}
	if sess.Status.Terminal() {
		return false, nil
	}
	fl, err := e.metadata.GetFlow(sess.FlowId, sess.FlowVersion)
	if err != nil {
		return false, err
	}
	if err := e.terminate(sess, fl, model.SESSION_TIMEOUT); err != nil {
		return false, err
	}
	return true, nil
}

// ResumePayload encodes a delay queue entry for a suspended session.
func (e *Engine) ResumePayload(sessionId string, nodeId string) ([]byte, error) {
	return e.resumeEnc.Encode(ResumeMessage{SessionId: sessionId, NodeId: nodeId})
}

func (e *Engine) DecodeResume(data []byte) (*ResumeMessage, error) {
	return e.resumeEnc.Decode(data)
}

func (e *Engine) runLoop(sess *model.FlowSession, fl *flow.Flow, input map[string]any, resume bool) (*model.FlowSession, error) {
	for steps := 0; steps < e.conf.MaxStepsPerRun; steps++ {
		n, ok := fl.Nodes[sess.CurrentNodeId]
		if !ok {
			return sess, e.pause(sess, fmt.Sprintf("node %s not found in flow %s", sess.CurrentNodeId, fl.Id))
		}

		snapshot, err := e.vars.Snapshot(sess)
		if err != nil {
			return sess, e.pause(sess, err.Error())
		}
		ctx := node.Context{
			Session:        sess,
			Input:          input,
			Vars:           snapshot,
			Resume:         resume && steps == 0,
			SandboxTimeout: e.conf.SandboxTimeout,
			WebhookTimeout: e.conf.WebhookTimeout,
		}

		startedAt := time.Now()
		index := e.tracker.StepStarted(sess, n.GetId(), n.GetKind())
		result, err := e.executeWithRetry(n, ctx)
		if err != nil {
			e.tracker.StepFailed(sess, n.GetId(), index, err.Error(), startedAt)
			logger.Error("node execution failed", zap.String("sessionId", sess.Id),
				zap.String("nodeId", n.GetId()), zap.Error(err))
			return sess, e.pause(sess, err.Error())
		}

		if err := e.applyEffects(sess, result.Effects); err != nil {
			e.tracker.StepFailed(sess, n.GetId(), index, err.Error(), startedAt)
			return sess, e.pause(sess, err.Error())
		}
		e.tracker.StepCompleted(sess, index, startedAt)
		for _, skipped := range result.Skipped {
			kind := ""
			if sn, ok := fl.Nodes[skipped]; ok {
				kind = sn.GetKind()
			}
			e.tracker.StepSkipped(sess, skipped, kind)
		}

		if result.Suspend != nil {
			return sess, e.suspend(sess, n.GetId(), result.Suspend)
		}
		if len(result.NextNodeId) == 0 {
			return sess, e.terminate(sess, fl, model.SESSION_COMPLETED)
		}
		sess.CurrentNodeId = result.NextNodeId
		if err := e.touch(sess); err != nil {
			return sess, err
		}
	}
	return sess, e.pause(sess, fmt.Sprintf("run exceeded %d steps, possible cycle", e.conf.MaxStepsPerRun))
}

// executeWithRetry retries transient failures with exponential backoff.
// Webhook nodes carry their own retry budget; everything else uses the engine
// default. Fatal errors never retry.
func (e *Engine) executeWithRetry(n node.Node, ctx node.Context) (*node.Result, error) {
	attempts := e.conf.RetryAttempts
	if rc, ok := n.(interface{ RetryCount() int }); ok && rc.RetryCount() > 0 {
		attempts = rc.RetryCount()
	}
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(e.conf.RetryBackoffBase * (1 << (attempt - 1)))
		}
		result, err := n.Execute(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !errors.As(err, &model.TransientExternalError{}) {
			return nil, err
		}
		logger.Warn("transient node failure, retrying", zap.String("nodeId", n.GetId()),
			zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, model.FatalNodeError{NodeId: n.GetId(), Message: fmt.Sprintf("retries exhausted: %v", lastErr)}
}

func (e *Engine) applyEffects(sess *model.FlowSession, effects []node.Effect) error {
	for _, effect := range effects {
		switch effect.Kind {
		case node.EFFECT_SEND, node.EFFECT_HANDOFF:
			if err := e.adapter.Send(*effect.Message); err != nil {
				return model.TransientExternalError{Message: fmt.Sprintf("channel send failed: %v", err)}
			}
		case node.EFFECT_SET_VARIABLE:
			w := effect.Variable
			if err := e.vars.Set(sess, w.Key, w.Value, w.Scope, w.NodeId, w.TTLSeconds); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) suspend(sess *model.FlowSession, nodeId string, s *node.Suspension) error {
	sess.Status = model.SESSION_WAITING
	sess.WaitReason = s.Reason
	sess.WaitEvent = s.Event
	if err := e.touch(sess); err != nil {
		return err
	}
	if s.ResumeAt > 0 {
		payload, err := e.ResumePayload(sess.Id, nodeId)
		if err != nil {
			return err
		}
		delay := time.Until(time.UnixMilli(s.ResumeAt))
		if delay < 0 {
			delay = 0
		}
		if err := e.delayQ.PushWithDelay(persistence.QUEUE_DELAY, delay, payload); err != nil {
			return err
		}
	}
	logger.Debug("session suspended", zap.String("sessionId", sess.Id),
		zap.String("reason", s.Reason), zap.String("nodeId", nodeId))
	return nil
}

func (e *Engine) pause(sess *model.FlowSession, reason string) error {
	sess.Status = model.SESSION_PAUSED
	sess.LastError = reason
	return e.touch(sess)
}

func (e *Engine) terminate(sess *model.FlowSession, fl *flow.Flow, status model.SessionStatus) error {
	sess.Status = status
	sess.CompletedAt = time.Now().UnixMilli()
	sess.LastActivityAt = sess.CompletedAt
	if err := e.sessions.Terminate(sess); err != nil {
		return err
	}
	e.tracker.Finalize(sess, fl.Required)
	e.cleanupSessionVars(sess, fl)
	logger.Info("session terminated", zap.String("sessionId", sess.Id), zap.String("status", string(status)))
	return nil
}

// cleanupSessionVars drops the partitions that die with the session. User and
// company partitions stay; they are shared beyond this run.
func (e *Engine) cleanupSessionVars(sess *model.FlowSession, fl *flow.Flow) {
	if err := e.vars.ClearScope(sess, model.SCOPE_SESSION); err != nil {
		logger.Error("error clearing session variables", zap.String("sessionId", sess.Id), zap.Error(err))
	}
	if err := e.vars.ClearScope(sess, model.SCOPE_FLOW); err != nil {
		logger.Error("error clearing flow variables", zap.String("sessionId", sess.Id), zap.Error(err))
	}
	for nodeId := range fl.Nodes {
		if err := e.vars.ClearNodeScope(sess, nodeId); err != nil {
			logger.Error("error clearing node variables", zap.String("sessionId", sess.Id), zap.Error(err))
		}
	}
}

func (e *Engine) touch(sess *model.FlowSession) error {
	sess.LastActivityAt = time.Now().UnixMilli()
	return e.sessions.Save(sess)
}

func (e *Engine) acquire(sessionId string) (string, error) {
	for attempt := 0; attempt < e.conf.LockAttempts; attempt++ {
		token, ok, err := e.locks.Acquire(sessionId, e.conf.LockTTL)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		time.Sleep(e.conf.LockRetryDelay)
	}
	return "", model.SessionLockedError{SessionId: sessionId}
}

func (e *Engine) release(sessionId string, token string) {
	if err := e.locks.Release(sessionId, token); err != nil {
		logger.Error("error releasing session lock", zap.String("sessionId", sessionId), zap.Error(err))
	}
}
