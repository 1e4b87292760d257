package node

import (
	"testing"
	"time"

	"github.com/convoflow/convoflow/model"
	"github.com/stretchr/testify/require"
)

func delayDef(d model.DelayDef) model.NodeDef {
	return model.NodeDef{
		Id:    "wait",
		Kind:  model.NODE_KIND_DELAY,
		Next:  "after",
		Delay: &d,
	}
}

func TestDelayNode(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"test timed delay suspends with deadline": func(t *testing.T) {
			n := NewDelayNode(delayDef(model.DelayDef{Seconds: 60}))
			res, err := n.Execute(Context{})
			require.NoError(t, err)
			require.NotNil(t, res.Suspend)
			require.Equal(t, model.WAIT_REASON_DELAY, res.Suspend.Reason)
			require.Greater(t, res.Suspend.ResumeAt, time.Now().UnixMilli())
		},
		"test event wait suspends on event name": func(t *testing.T) {
			n := NewDelayNode(delayDef(model.DelayDef{Event: "payment_done"}))
			res, err := n.Execute(Context{})
			require.NoError(t, err)
			require.NotNil(t, res.Suspend)
			require.Equal(t, model.WAIT_REASON_EVENT, res.Suspend.Reason)
			require.Equal(t, "payment_done", res.Suspend.Event)
			require.Zero(t, res.Suspend.ResumeAt)
		},
		"test event wait with timeout carries deadline": func(t *testing.T) {
			n := NewDelayNode(delayDef(model.DelayDef{Event: "payment_done", TimeoutSeconds: 30}))
			res, err := n.Execute(Context{})
			require.NoError(t, err)
			require.Greater(t, res.Suspend.ResumeAt, time.Now().UnixMilli())
		},
		"test resume pass transitions instead of suspending": func(t *testing.T) {
			n := NewDelayNode(delayDef(model.DelayDef{Seconds: 60}))
			res, err := n.Execute(Context{Resume: true})
			require.NoError(t, err)
			require.Nil(t, res.Suspend)
			require.Equal(t, "after", res.NextNodeId)
		},
		"test validate rejects empty payload": func(t *testing.T) {
			n := NewDelayNode(delayDef(model.DelayDef{}))
			require.Error(t, n.Validate())
		},
	} {
		t.Run(scenario, fn)
	}
}
