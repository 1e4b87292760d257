package node

import (
	"fmt"

	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/util"
)

var _ Node = new(messageNode)

type messageNode struct {
	baseNode
	def *model.MessageDef
}

func NewMessageNode(def model.NodeDef) *messageNode {
	return &messageNode{
		baseNode: newBaseNode(def),
		def:      def.Message,
	}
}

func (n *messageNode) Validate() error {
	if n.def == nil || len(n.def.Content) == 0 {
		return fmt.Errorf("node %s: message content can not be empty", n.id)
	}
	return nil
}

func (n *messageNode) Execute(ctx Context) (*Result, error) {
	content := util.ResolveTemplate(ctx.Vars, n.def.Content)
	msgType := model.OUTBOUND_TYPE_MESSAGE
	if len(n.def.ContentType) != 0 {
		msgType = n.def.ContentType
	}
	return &Result{
		NextNodeId: n.next,
		Effects: []Effect{{
			Kind: EFFECT_SEND,
			Message: &model.OutboundMessage{
				ConversationId: ctx.Session.ConversationId,
				ChannelId:      ctx.Session.ChannelId,
				Content:        content,
				Type:           msgType,
			},
		}},
	}, nil
}
