package redis

import (
	"testing"
	"time"

	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence"
	"github.com/stretchr/testify/require"
)

func newTestExecution(sessionId string) *model.FlowExecution {
	return &model.FlowExecution{
		Id:        "e1",
		SessionId: sessionId,
		FlowId:    "f1",
		Path:      []string{},
		Status:    model.SESSION_ACTIVE,
		StartedAt: time.Now().UnixMilli(),
	}
}

func TestExecutionDao(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, dao *redisExecutionDao){
		"test open and get":              testExecutionOpenGet,
		"test path and steps append":     testExecutionSteps,
		"test finalize once":             testExecutionFinalizeOnce,
		"test completion rate":           testExecutionCompletionRate,
		"test dropoff counters and rate": testExecutionDropoff,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, NewRedisExecutionDao(testBaseDao(t)))
		})
	}
}

func testExecutionOpenGet(t *testing.T, dao *redisExecutionDao) {
	require.NoError(t, dao.Open(newTestExecution("s1")))

	exec, err := dao.GetBySession("s1")
	require.NoError(t, err)
	require.Equal(t, "f1", exec.FlowId)
	require.False(t, exec.Finalized)
}

func testExecutionSteps(t *testing.T, dao *redisExecutionDao) {
	require.NoError(t, dao.Open(newTestExecution("s1")))
	require.NoError(t, dao.AppendPath("s1", "greet"))
	require.NoError(t, dao.AppendPath("s1", "branch"))

	i0, err := dao.AppendStep("s1", &model.StepExecution{NodeId: "greet", Status: model.STEP_RUNNING})
	require.NoError(t, err)
	require.Equal(t, 0, i0)
	i1, err := dao.AppendStep("s1", &model.StepExecution{NodeId: "branch", Status: model.STEP_RUNNING})
	require.NoError(t, err)
	require.Equal(t, 1, i1)

	require.NoError(t, dao.FinalizeStep("s1", i0, model.STEP_COMPLETED, "", 12))
	require.NoError(t, dao.FinalizeStep("s1", i1, model.STEP_FAILED, "boom", 5))

	exec, err := dao.GetBySession("s1")
	require.NoError(t, err)
	require.Equal(t, []string{"greet", "branch"}, exec.Path)

	steps, err := dao.Steps("s1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, model.STEP_COMPLETED, steps[0].Status)
	require.Equal(t, int64(12), steps[0].DurationMillis)
	require.Equal(t, model.STEP_FAILED, steps[1].Status)
	require.Equal(t, "boom", steps[1].Error)
}

func testExecutionFinalizeOnce(t *testing.T, dao *redisExecutionDao) {
	require.NoError(t, dao.Open(newTestExecution("s1")))

	first, err := dao.Finalize("s1", model.SESSION_COMPLETED, time.Now().UnixMilli(), 3)
	require.NoError(t, err)
	require.True(t, first)

	second, err := dao.Finalize("s1", model.SESSION_TIMEOUT, time.Now().UnixMilli(), 3)
	require.NoError(t, err)
	require.False(t, second)

	exec, err := dao.GetBySession("s1")
	require.NoError(t, err)
	require.Equal(t, model.SESSION_COMPLETED, exec.Status)
}

func testExecutionCompletionRate(t *testing.T, dao *redisExecutionDao) {
	require.NoError(t, dao.Open(newTestExecution("s1")))
	i0, _ := dao.AppendStep("s1", &model.StepExecution{NodeId: "greet", Status: model.STEP_RUNNING})
	require.NoError(t, dao.FinalizeStep("s1", i0, model.STEP_COMPLETED, "", 1))
	// same node completed twice counts once
	i1, _ := dao.AppendStep("s1", &model.StepExecution{NodeId: "greet", Status: model.STEP_RUNNING})
	require.NoError(t, dao.FinalizeStep("s1", i1, model.STEP_COMPLETED, "", 1))
	i2, _ := dao.AppendStep("s1", &model.StepExecution{NodeId: "branch", Status: model.STEP_RUNNING})
	require.NoError(t, dao.FinalizeStep("s1", i2, model.STEP_FAILED, "boom", 1))

	_, err := dao.Finalize("s1", model.SESSION_COMPLETED, time.Now().UnixMilli(), 4)
	require.NoError(t, err)

	exec, err := dao.GetBySession("s1")
	require.NoError(t, err)
	require.Equal(t, 1, exec.CompletedNodes)
	require.InDelta(t, 0.25, exec.CompletionRate, 0.0001)
}

func testExecutionDropoff(t *testing.T, dao *redisExecutionDao) {
	for i := 0; i < 4; i++ {
		require.NoError(t, dao.IncrDropoff("f1", "branch", persistence.DROPOFF_REACHED))
	}
	require.NoError(t, dao.IncrDropoff("f1", "branch", persistence.DROPOFF_FAILED))
	require.NoError(t, dao.IncrDropoff("f1", "adult", persistence.DROPOFF_REACHED))
	require.NoError(t, dao.IncrDropoff("f1", "adult", persistence.DROPOFF_SKIPPED))

	report, err := dao.Dropoff("f1")
	require.NoError(t, err)
	require.Len(t, report, 2)

	require.Equal(t, "adult", report[0].NodeId)
	require.Equal(t, int64(1), report[0].Skipped)
	require.InDelta(t, 1.0, report[0].Rate, 0.0001)

	require.Equal(t, "branch", report[1].NodeId)
	require.Equal(t, int64(4), report[1].Reached)
	require.Equal(t, int64(1), report[1].Failed)
	require.InDelta(t, 0.25, report[1].Rate, 0.0001)
}
