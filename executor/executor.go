package executor

import (
	"errors"
	"sync"
	"time"

	"github.com/convoflow/convoflow/engine"
	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence"
	"github.com/convoflow/convoflow/session"
	"github.com/convoflow/convoflow/util"
	"go.uber.org/zap"
)

type Config struct {
	DelayPollInterval time.Duration
	IdleSweepInterval time.Duration
	VarSweepInterval  time.Duration
}

func DefaultConfig() Config {
	return Config{
		DelayPollInterval: 1 * time.Second,
		IdleSweepInterval: 1 * time.Minute,
		VarSweepInterval:  5 * time.Minute,
	}
}

// Executor runs the background loops: due-delay resumption, idle session
// expiry and expired variable sweeping. Every loop is safe to run on several
// replicas at once; the delay queue pop is atomic and session work re-checks
// state under the session lock.
type Executor struct {
	delayPoller *util.TickWorker
	idleSweeper *util.TickWorker
	varSweeper  *util.TickWorker

	delayQ   persistence.DelayQueue
	vars     persistence.VariableDao
	sessions *session.Manager
	engine   *engine.Engine
}

func NewExecutor(conf Config, delayQ persistence.DelayQueue, vars persistence.VariableDao,
	sessions *session.Manager, eng *engine.Engine, wg *sync.WaitGroup) *Executor {
	ex := &Executor{
		delayQ:   delayQ,
		vars:     vars,
		sessions: sessions,
		engine:   eng,
	}
	ex.delayPoller = util.NewTickWorker("delay-poller", conf.DelayPollInterval, ex.pollDelays, wg)
	ex.idleSweeper = util.NewTickWorker("idle-sweeper", conf.IdleSweepInterval, ex.sweepIdle, wg)
	ex.varSweeper = util.NewTickWorker("variable-sweeper", conf.VarSweepInterval, ex.sweepVariables, wg)
	return ex
}

func (ex *Executor) Start() {
	ex.delayPoller.Start()
	ex.idleSweeper.Start()
	ex.varSweeper.Start()
}

func (ex *Executor) Stop() {
	ex.delayPoller.Stop()
	ex.idleSweeper.Stop()
	ex.varSweeper.Stop()
}

// pollDelays pops due resume messages and re-enters the engine. A message
// for a session that already moved past the suspended node is stale, for
// example an event-wait that resumed before its timeout, and is dropped.
func (ex *Executor) pollDelays() {
	messages, err := ex.delayQ.Pop(persistence.QUEUE_DELAY)
	if err != nil {
		logger.Error("error polling delay queue", zap.Error(err))
		return
	}
	for _, raw := range messages {
		msg, err := ex.engine.DecodeResume([]byte(raw))
		if err != nil {
			logger.Error("malformed delay queue message", zap.Error(err))
			continue
		}
		sess, err := ex.sessions.Get(msg.SessionId)
		if err != nil {
			if !errors.As(err, &model.SessionNotFoundError{}) {
				logger.Error("error loading session for resume", zap.String("sessionId", msg.SessionId), zap.Error(err))
			}
			continue
		}
		if sess.Status != model.SESSION_WAITING || sess.CurrentNodeId != msg.NodeId {
			continue
		}
		if _, err := ex.engine.Run(msg.SessionId, nil, true); err != nil {
			if errors.As(err, &model.SessionLockedError{}) || errors.As(err, &model.ExpiredSessionError{}) {
				continue
			}
			logger.Error("error resuming delayed session", zap.String("sessionId", msg.SessionId), zap.Error(err))
		}
	}
}

func (ex *Executor) sweepIdle() {
	ex.sessions.ExpireIdle()
}

func (ex *Executor) sweepVariables() {
	count, err := ex.vars.SweepExpired()
	if err != nil {
		logger.Error("error sweeping expired variables", zap.Error(err))
		return
	}
	if count > 0 {
		logger.Debug("expired variables swept", zap.Int("count", count))
	}
}
