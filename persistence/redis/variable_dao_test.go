package redis

import (
	"testing"
	"time"

	"github.com/convoflow/convoflow/model"
	"github.com/stretchr/testify/require"
)

func TestVariableDao(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, dao *redisVariableDao){
		"test set and get":             testVariableSetGet,
		"test expired entry is absent": testVariableLazyEviction,
		"test clear partition":         testVariableClearPartition,
		"test sweep removes expired":   testVariableSweep,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewRedisVariableDao(testBaseDao(t)))
		})
	}
}

func testVariableSetGet(t *testing.T, dao *redisVariableDao) {
	require.NoError(t, dao.Set("f:s1", "email", model.Value{Type: model.VALUE_TYPE_STRING, Data: "a@b.c"}))

	v, ok, err := dao.Get("f:s1", "email")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a@b.c", v.Data)

	_, ok, err = dao.Get("f:s1", "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func testVariableLazyEviction(t *testing.T, dao *redisVariableDao) {
	expiring := model.Value{
		Type:      model.VALUE_TYPE_STRING,
		Data:      "gone soon",
		ExpiresAt: time.Now().Add(50 * time.Millisecond).UnixMilli(),
	}
	require.NoError(t, dao.Set("f:s1", "temp", expiring))

	_, ok, err := dao.Get("f:s1", "temp")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok, err = dao.Get("f:s1", "temp")
	require.NoError(t, err)
	require.False(t, ok)

	all, err := dao.All("f:s1")
	require.NoError(t, err)
	require.Empty(t, all)
}

func testVariableClearPartition(t *testing.T, dao *redisVariableDao) {
	require.NoError(t, dao.Set("s:s1", "a", model.Value{Type: model.VALUE_TYPE_NUMBER, Data: 1}))
	require.NoError(t, dao.Set("s:s1", "b", model.Value{Type: model.VALUE_TYPE_NUMBER, Data: 2}))
	require.NoError(t, dao.Set("u:contact-1", "keep", model.Value{Type: model.VALUE_TYPE_NUMBER, Data: 3}))

	require.NoError(t, dao.ClearPartition("s:s1"))

	all, err := dao.All("s:s1")
	require.NoError(t, err)
	require.Empty(t, all)

	kept, err := dao.All("u:contact-1")
	require.NoError(t, err)
	require.Len(t, kept, 1)
}

func testVariableSweep(t *testing.T, dao *redisVariableDao) {
	require.NoError(t, dao.Set("f:s1", "stale", model.Value{
		Type:      model.VALUE_TYPE_STRING,
		Data:      "old",
		ExpiresAt: time.Now().Add(-1 * time.Second).UnixMilli(),
	}))
	require.NoError(t, dao.Set("f:s1", "live", model.Value{Type: model.VALUE_TYPE_STRING, Data: "new"}))

	swept, err := dao.SweepExpired()
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	all, err := dao.All("f:s1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Contains(t, all, "live")
}
