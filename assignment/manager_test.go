package assignment

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/convoflow/convoflow/metadata"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence/redis"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, metadata.Service) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := rd.NewClient(&rd.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	storage := redis.NewStorageWithClient(client, "test")
	svc := metadata.NewService(storage.Metadata)
	return NewManager(storage.Assignments, svc), svc
}

func publishedFlow(t *testing.T, svc metadata.Service, id string) {
	t.Helper()
	_, err := svc.SaveFlow(&model.FlowDef{
		Id:       id,
		Name:     id,
		RootNode: "greet",
		Nodes: []model.NodeDef{
			{Id: "greet", Kind: model.NODE_KIND_MESSAGE, Message: &model.MessageDef{Content: "hi"}},
		},
	})
	require.NoError(t, err)
	_, err = svc.PublishFlow(id)
	require.NoError(t, err)
}

func TestManager(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, m *Manager, svc metadata.Service){
		"test create binds published flow":     testCreateBinds,
		"test draft flow rejected":             testDraftRejected,
		"test busy channel conflicts":          testBusyChannel,
		"test flow active elsewhere conflicts": testFlowElsewhere,
		"test rebind after deactivation":       testRebind,
	} {
		t.Run(scenario, func(t *testing.T) {
			m, svc := newTestManager(t)
			fn(t, m, svc)
		})
	}
}

func testCreateBinds(t *testing.T, m *Manager, svc metadata.Service) {
	publishedFlow(t, svc, "f1")

	a, err := m.Create("f1", "ch1")
	require.NoError(t, err)
	require.True(t, a.Active)

	resolved, ok, err := m.ResolveChannel("ch1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "f1", resolved.FlowId)
}

func testDraftRejected(t *testing.T, m *Manager, svc metadata.Service) {
	_, err := svc.SaveFlow(&model.FlowDef{
		Id:       "draft",
		Name:     "draft",
		RootNode: "greet",
		Nodes: []model.NodeDef{
			{Id: "greet", Kind: model.NODE_KIND_MESSAGE, Message: &model.MessageDef{Content: "hi"}},
		},
	})
	require.NoError(t, err)

	_, err = m.Create("draft", "ch1")
	require.Error(t, err)
	require.IsType(t, model.ValidationError{}, err)
}

func testBusyChannel(t *testing.T, m *Manager, svc metadata.Service) {
	publishedFlow(t, svc, "f1")
	publishedFlow(t, svc, "f2")

	_, err := m.Create("f1", "ch1")
	require.NoError(t, err)

	_, err = m.Create("f2", "ch1")
	require.Error(t, err)
	require.IsType(t, model.ConflictError{}, err)
}

func testFlowElsewhere(t *testing.T, m *Manager, svc metadata.Service) {
	publishedFlow(t, svc, "f1")

	_, err := m.Create("f1", "ch1")
	require.NoError(t, err)

	_, err = m.Create("f1", "ch2")
	require.Error(t, err)
	require.IsType(t, model.ConflictError{}, err)
}

func testRebind(t *testing.T, m *Manager, svc metadata.Service) {
	publishedFlow(t, svc, "f1")
	publishedFlow(t, svc, "f2")

	a1, err := m.Create("f1", "ch1")
	require.NoError(t, err)

	_, err = m.SetActive(a1.Id, false)
	require.NoError(t, err)

	// the channel is free again
	a2, err := m.Create("f2", "ch1")
	require.NoError(t, err)
	require.True(t, a2.Active)

	// reactivating the first displaces the second on the channel
	reactivated, err := m.SetActive(a1.Id, true)
	require.NoError(t, err)
	require.True(t, reactivated.Active)

	resolved, ok, err := m.ResolveChannel("ch1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "f1", resolved.FlowId)

	displaced, err := m.Get(a2.Id)
	require.NoError(t, err)
	require.False(t, displaced.Active)
}
