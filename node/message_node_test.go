package node

import (
	"testing"

	"github.com/convoflow/convoflow/model"
	"github.com/stretchr/testify/require"
)

func testSession() *model.FlowSession {
	return &model.FlowSession{
		Id:             "s1",
		ConversationId: "c1",
		ChannelId:      "ch1",
	}
}

func TestMessageNode(t *testing.T) {
	def := model.NodeDef{
		Id:      "greet",
		Kind:    model.NODE_KIND_MESSAGE,
		Next:    "after",
		Message: &model.MessageDef{Content: "hello {$.name}"},
	}
	n := NewMessageNode(def)
	require.NoError(t, n.Validate())

	res, err := n.Execute(Context{
		Session: testSession(),
		Vars:    map[string]any{"name": "alice"},
	})
	require.NoError(t, err)
	require.Equal(t, "after", res.NextNodeId)
	require.Len(t, res.Effects, 1)
	require.Equal(t, EFFECT_SEND, res.Effects[0].Kind)
	require.Equal(t, "hello alice", res.Effects[0].Message.Content)
	require.Equal(t, "c1", res.Effects[0].Message.ConversationId)
	require.Equal(t, model.OUTBOUND_TYPE_MESSAGE, res.Effects[0].Message.Type)
}

func TestHandoffNode(t *testing.T) {
	def := model.NodeDef{
		Id:      "human",
		Kind:    model.NODE_KIND_HANDOFF,
		Message: &model.MessageDef{Content: "transferring you"},
	}
	n := NewHandoffNode(def)

	res, err := n.Execute(Context{Session: testSession()})
	require.NoError(t, err)
	require.Empty(t, res.NextNodeId)
	require.Equal(t, EFFECT_HANDOFF, res.Effects[0].Kind)
	require.Equal(t, model.OUTBOUND_TYPE_HANDOFF, res.Effects[0].Message.Type)
}
