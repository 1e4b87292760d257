package redis

import (
	"errors"
	"testing"

	"github.com/convoflow/convoflow/model"
	"github.com/stretchr/testify/require"
)

func newTestAssignment(id string, flowId string, channelId string) *model.FlowAssignment {
	return &model.FlowAssignment{
		Id:        id,
		FlowId:    flowId,
		ChannelId: channelId,
	}
}

func TestAssignmentDao(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, dao *redisAssignmentDao){
		"test activate binds channel and flow":    testActivateBinds,
		"test flow active elsewhere conflicts":    testActivateFlowConflict,
		"test new channel binding displaces old":  testActivateDisplaces,
		"test deactivate releases both bindings":  testDeactivate,
		"test activate is idempotent for same id": testActivateIdempotent,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewRedisAssignmentDao(testBaseDao(t)))
		})
	}
}

func testActivateBinds(t *testing.T, dao *redisAssignmentDao) {
	require.NoError(t, dao.Save(newTestAssignment("a1", "f1", "ch1")))

	a, err := dao.Activate("a1")
	require.NoError(t, err)
	require.True(t, a.Active)

	byChannel, ok, err := dao.GetActiveByChannel("ch1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a1", byChannel.Id)

	byFlow, ok, err := dao.GetActiveByFlow("f1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a1", byFlow.Id)
}

func testActivateFlowConflict(t *testing.T, dao *redisAssignmentDao) {
	require.NoError(t, dao.Save(newTestAssignment("a1", "f1", "ch1")))
	require.NoError(t, dao.Save(newTestAssignment("a2", "f1", "ch2")))

	_, err := dao.Activate("a1")
	require.NoError(t, err)

	_, err = dao.Activate("a2")
	require.Error(t, err)
	require.True(t, errors.As(err, &model.ConflictError{}))
}

func testActivateDisplaces(t *testing.T, dao *redisAssignmentDao) {
	require.NoError(t, dao.Save(newTestAssignment("a1", "f1", "ch1")))
	require.NoError(t, dao.Save(newTestAssignment("a2", "f2", "ch1")))

	_, err := dao.Activate("a1")
	require.NoError(t, err)
	_, err = dao.Activate("a2")
	require.NoError(t, err)

	byChannel, ok, err := dao.GetActiveByChannel("ch1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a2", byChannel.Id)

	displaced, err := dao.Get("a1")
	require.NoError(t, err)
	require.False(t, displaced.Active)

	_, ok, err = dao.GetActiveByFlow("f1")
	require.NoError(t, err)
	require.False(t, ok)
}

func testDeactivate(t *testing.T, dao *redisAssignmentDao) {
	require.NoError(t, dao.Save(newTestAssignment("a1", "f1", "ch1")))
	_, err := dao.Activate("a1")
	require.NoError(t, err)

	a, err := dao.Deactivate("a1")
	require.NoError(t, err)
	require.False(t, a.Active)

	_, ok, err := dao.GetActiveByChannel("ch1")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = dao.GetActiveByFlow("f1")
	require.NoError(t, err)
	require.False(t, ok)
}

func testActivateIdempotent(t *testing.T, dao *redisAssignmentDao) {
	require.NoError(t, dao.Save(newTestAssignment("a1", "f1", "ch1")))
	_, err := dao.Activate("a1")
	require.NoError(t, err)
	a, err := dao.Activate("a1")
	require.NoError(t, err)
	require.True(t, a.Active)
}
