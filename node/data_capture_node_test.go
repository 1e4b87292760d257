package node

import (
	"testing"

	"github.com/convoflow/convoflow/model"
	"github.com/stretchr/testify/require"
)

func captureDef(fields ...model.CaptureField) model.NodeDef {
	return model.NodeDef{
		Id:      "ask-email",
		Kind:    model.NODE_KIND_DATA_CAPTURE,
		Next:    "after",
		Capture: &model.CaptureDef{Fields: fields},
	}
}

func TestDataCaptureNode(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"test missing required field suspends": func(t *testing.T) {
			n := NewDataCaptureNode(captureDef(model.CaptureField{Key: "email", Required: true}))
			res, err := n.Execute(Context{Input: map[string]any{"text": "hi"}})
			require.NoError(t, err)
			require.NotNil(t, res.Suspend)
			require.Equal(t, model.WAIT_REASON_INPUT, res.Suspend.Reason)
			require.Empty(t, res.Effects)
		},
		"test present field captured and transitions": func(t *testing.T) {
			n := NewDataCaptureNode(captureDef(model.CaptureField{Key: "email", Required: true}))
			res, err := n.Execute(Context{Input: map[string]any{"email": "a@b.c"}})
			require.NoError(t, err)
			require.Nil(t, res.Suspend)
			require.Equal(t, "after", res.NextNodeId)
			require.Len(t, res.Effects, 1)
			require.Equal(t, EFFECT_SET_VARIABLE, res.Effects[0].Kind)
			require.Equal(t, "email", res.Effects[0].Variable.Key)
			require.Equal(t, "a@b.c", res.Effects[0].Variable.Value)
			require.Equal(t, model.SCOPE_FLOW, res.Effects[0].Variable.Scope)
		},
		"test optional field missing is skipped": func(t *testing.T) {
			n := NewDataCaptureNode(captureDef(
				model.CaptureField{Key: "email", Required: true},
				model.CaptureField{Key: "phone"},
			))
			res, err := n.Execute(Context{Input: map[string]any{"email": "a@b.c"}})
			require.NoError(t, err)
			require.Nil(t, res.Suspend)
			require.Len(t, res.Effects, 1)
		},
		"test jsonpath field extraction": func(t *testing.T) {
			n := NewDataCaptureNode(captureDef(model.CaptureField{Key: "city", Path: "$.address.city", Required: true}))
			res, err := n.Execute(Context{Input: map[string]any{"address": map[string]any{"city": "pune"}}})
			require.NoError(t, err)
			require.Nil(t, res.Suspend)
			require.Equal(t, "pune", res.Effects[0].Variable.Value)
		},
		"test declared scope and ttl carried": func(t *testing.T) {
			n := NewDataCaptureNode(captureDef(model.CaptureField{Key: "email", Required: true, Scope: model.SCOPE_USER, TTLSeconds: 60}))
			res, err := n.Execute(Context{Input: map[string]any{"email": "a@b.c"}})
			require.NoError(t, err)
			require.Equal(t, model.SCOPE_USER, res.Effects[0].Variable.Scope)
			require.Equal(t, 60, res.Effects[0].Variable.TTLSeconds)
		},
	} {
		t.Run(scenario, fn)
	}
}
