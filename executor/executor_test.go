package executor

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/convoflow/convoflow/assignment"
	"github.com/convoflow/convoflow/engine"
	"github.com/convoflow/convoflow/metadata"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence"
	"github.com/convoflow/convoflow/persistence/redis"
	"github.com/convoflow/convoflow/session"
	"github.com/convoflow/convoflow/tracker"
	"github.com/convoflow/convoflow/variable"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type nopAdapter struct{}

func (nopAdapter) Send(msg model.OutboundMessage) error { return nil }

type testRig struct {
	executor *Executor
	manager  *session.Manager
	engine   *engine.Engine
	storage  *redis.Storage
	svc      metadata.Service
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	srv := miniredis.RunT(t)
	client := rd.NewClient(&rd.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	storage := redis.NewStorageWithClient(client, "test")
	svc := metadata.NewService(storage.Metadata)
	assignments := assignment.NewManager(storage.Assignments, svc)
	vars := variable.NewStore(storage.Variables)
	tr := tracker.NewTracker(storage.Executions)

	eng := engine.NewEngine(engine.DefaultConfig(), storage.Sessions, storage.Locks,
		storage.DelayQueue, vars, tr, svc, nopAdapter{})
	manager := session.NewManager(session.DefaultConfig(), storage.Sessions, assignments, svc, eng, vars)

	var wg sync.WaitGroup
	ex := NewExecutor(DefaultConfig(), storage.DelayQueue, storage.Variables, manager, eng, &wg)
	return &testRig{executor: ex, manager: manager, engine: eng, storage: storage, svc: svc}
}

func (r *testRig) startDelayedSession(t *testing.T) *model.FlowSession {
	t.Helper()
	def := &model.FlowDef{
		Id:       "delayed",
		Name:     "Delayed",
		RootNode: "wait",
		Nodes: []model.NodeDef{
			{Id: "wait", Kind: model.NODE_KIND_DELAY, Next: "bye",
				Delay: &model.DelayDef{Seconds: 3600}},
			{Id: "bye", Kind: model.NODE_KIND_MESSAGE,
				Message: &model.MessageDef{Content: "bye"}},
		},
	}
	_, err := r.svc.SaveFlow(def)
	require.NoError(t, err)
	published, err := r.svc.PublishFlow(def.Id)
	require.NoError(t, err)

	now := time.Now().UnixMilli()
	sess := &model.FlowSession{
		Id:             "s1",
		FlowId:         published.Id,
		FlowVersion:    published.Version,
		ConversationId: "c1",
		ContactId:      "contact-1",
		CompanyId:      "company-1",
		ChannelId:      "ch1",
		Status:         model.SESSION_ACTIVE,
		CurrentNodeId:  "wait",
		StartedAt:      now,
		LastActivityAt: now,
	}
	require.NoError(t, r.storage.Sessions.CreateActive(sess))

	got, err := r.engine.Start(sess.Id, nil)
	require.NoError(t, err)
	require.Equal(t, model.SESSION_WAITING, got.Status)
	return got
}

func TestPollDelaysResumesDueSession(t *testing.T) {
	rig := newTestRig(t)
	sess := rig.startDelayedSession(t)

	// make the parked resume message due now
	payload, err := rig.engine.ResumePayload(sess.Id, "wait")
	require.NoError(t, err)
	require.NoError(t, rig.storage.DelayQueue.PushWithDelay(persistence.QUEUE_DELAY, 0, payload))
	time.Sleep(5 * time.Millisecond)

	rig.executor.pollDelays()

	got, err := rig.manager.Get(sess.Id)
	require.NoError(t, err)
	require.Equal(t, model.SESSION_COMPLETED, got.Status)
}

func TestPollDelaysDropsStaleMessage(t *testing.T) {
	rig := newTestRig(t)
	sess := rig.startDelayedSession(t)

	// a message for a node the session is no longer parked on is ignored
	payload, err := rig.engine.ResumePayload(sess.Id, "some-old-node")
	require.NoError(t, err)
	require.NoError(t, rig.storage.DelayQueue.PushWithDelay(persistence.QUEUE_DELAY, 0, payload))
	time.Sleep(5 * time.Millisecond)

	rig.executor.pollDelays()

	got, err := rig.manager.Get(sess.Id)
	require.NoError(t, err)
	require.Equal(t, model.SESSION_WAITING, got.Status)
}

func TestSweepVariablesRemovesExpired(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t, rig.storage.Variables.Set("f:s1", "stale", model.Value{
		Type:      model.VALUE_TYPE_STRING,
		Data:      "old",
		ExpiresAt: time.Now().Add(-1 * time.Second).UnixMilli(),
	}))

	rig.executor.sweepVariables()

	_, ok, err := rig.storage.Variables.Get("f:s1", "stale")
	require.NoError(t, err)
	require.False(t, ok)
}
