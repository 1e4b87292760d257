package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

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

func newTestServer(t *testing.T) (*Server, *redis.Storage, metadata.Service) {
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
	sessions := session.NewManager(session.DefaultConfig(), storage.Sessions, assignments, svc, eng, vars)

	s, err := NewServer(0, svc, assignments, sessions, tr, vars)
	require.NoError(t, err)
	return s, storage, svc
}

func TestDropoffOwnerFilter(t *testing.T) {
	s, storage, svc := newTestServer(t)
	_, err := svc.SaveFlow(&model.FlowDef{
		Id:        "f1",
		Name:      "F1",
		CompanyId: "acme",
		RootNode:  "greet",
		Nodes: []model.NodeDef{
			{Id: "greet", Kind: model.NODE_KIND_MESSAGE, Message: &model.MessageDef{Content: "hi"}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, storage.Executions.IncrDropoff("f1", "greet", persistence.DROPOFF_REACHED))

	ts := httptest.NewServer(s.Handler)
	defer ts.Close()

	// unfiltered report
	res, err := http.Get(ts.URL + "/flow/f1/dropoff")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var report []model.NodeDropoff
	require.NoError(t, json.NewDecoder(res.Body).Decode(&report))
	res.Body.Close()
	require.Len(t, report, 1)
	require.Equal(t, "greet", report[0].NodeId)
	require.Equal(t, int64(1), report[0].Reached)

	// matching owner sees the report
	res, err = http.Get(ts.URL + "/flow/f1/dropoff?companyId=acme")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	// a foreign owner does not
	res, err = http.Get(ts.URL + "/flow/f1/dropoff?companyId=other")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	res.Body.Close()
}
