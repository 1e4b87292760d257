package agent

import (
	"sync"

	"github.com/convoflow/convoflow/assignment"
	"github.com/convoflow/convoflow/channel"
	"github.com/convoflow/convoflow/config"
	"github.com/convoflow/convoflow/engine"
	"github.com/convoflow/convoflow/executor"
	"github.com/convoflow/convoflow/logger"
	"github.com/convoflow/convoflow/metadata"
	"github.com/convoflow/convoflow/persistence/redis"
	"github.com/convoflow/convoflow/rest"
	"github.com/convoflow/convoflow/session"
	"github.com/convoflow/convoflow/tracker"
	"github.com/convoflow/convoflow/variable"
)

// Agent wires the whole runtime and owns its lifecycle.
type Agent struct {
	Config config.Config

	storage         *redis.Storage
	metadataService metadata.Service
	assignments     *assignment.Manager
	vars            *variable.Store
	tracker         *tracker.Tracker
	engine          *engine.Engine
	sessions        *session.Manager
	executor        *executor.Executor
	httpServer      *rest.Server
	adapter         channel.Adapter

	shutdown     bool
	shutdowns    chan struct{}
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

func New(conf config.Config, adapter channel.Adapter) (*Agent, error) {
	a := &Agent{
		Config:    conf,
		adapter:   adapter,
		shutdowns: make(chan struct{}),
	}
	setup := []func() error{
		a.setupStorage,
		a.setupServices,
		a.setupExecutor,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	a.storage = redis.NewStorage(redis.Config{
		Addrs:     a.Config.RedisConfig.Addrs,
		Namespace: a.Config.RedisConfig.Namespace,
	})
	return nil
}

func (a *Agent) setupServices() error {
	a.metadataService = metadata.NewService(a.storage.Metadata)
	a.assignments = assignment.NewManager(a.storage.Assignments, a.metadataService)
	a.vars = variable.NewStore(a.storage.Variables)
	a.tracker = tracker.NewTracker(a.storage.Executions)
	if a.adapter == nil {
		a.adapter = channel.NewLoggingAdapter()
	}
	a.engine = engine.NewEngine(a.Config.EngineConfig, a.storage.Sessions, a.storage.Locks,
		a.storage.DelayQueue, a.vars, a.tracker, a.metadataService, a.adapter)
	a.sessions = session.NewManager(a.Config.SessionConfig, a.storage.Sessions, a.assignments,
		a.metadataService, a.engine, a.vars)
	return nil
}

func (a *Agent) setupExecutor() error {
	a.executor = executor.NewExecutor(a.Config.ExecutorConfig, a.storage.DelayQueue,
		a.storage.Variables, a.sessions, a.engine, &a.wg)
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.metadataService, a.assignments,
		a.sessions, a.tracker, a.vars)
	return err
}

func (a *Agent) Start() error {
	a.executor.Start()
	go func() {
		if err := a.httpServer.Start(); err != nil {
			_ = a.Shutdown()
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	close(a.shutdowns)

	shutdown := []func() error{
		func() error {
			a.executor.Stop()
			return nil
		},
		a.httpServer.Stop,
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	return nil
}
