package node

import (
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/util"
)

var _ Node = new(handoffNode)

type handoffNode struct {
	baseNode
	def *model.MessageDef
}

func NewHandoffNode(def model.NodeDef) *handoffNode {
	return &handoffNode{
		baseNode: newBaseNode(def),
		def:      def.Message,
	}
}

func (n *handoffNode) Validate() error {
	return nil
}

// Execute ends automated execution and hands the conversation to a human
// operator. The transition target is always empty so the engine completes
// the session.
func (n *handoffNode) Execute(ctx Context) (*Result, error) {
	content := ""
	if n.def != nil {
		content = util.ResolveTemplate(ctx.Vars, n.def.Content)
	}
	return &Result{
		NextNodeId: "",
		Effects: []Effect{{
			Kind: EFFECT_HANDOFF,
			Message: &model.OutboundMessage{
				ConversationId: ctx.Session.ConversationId,
				ChannelId:      ctx.Session.ChannelId,
				Content:        content,
				Type:           model.OUTBOUND_TYPE_HANDOFF,
			},
		}},
	}, nil
}
