package node

import (
	"fmt"
	"time"

	"github.com/convoflow/convoflow/model"
)

var _ Node = new(delayNode)

type delayNode struct {
	baseNode
	def *model.DelayDef
}

func NewDelayNode(def model.NodeDef) *delayNode {
	return &delayNode{
		baseNode: newBaseNode(def),
		def:      def.Delay,
	}
}

func (n *delayNode) Validate() error {
	if n.def == nil {
		return fmt.Errorf("node %s: delay payload can not be empty", n.id)
	}
	if n.def.Seconds <= 0 && len(n.def.Event) == 0 {
		return fmt.Errorf("node %s: delay needs either seconds or an event", n.id)
	}
	return nil
}

// Execute suspends until either a wall-clock deadline or an external event.
// On the resumption pass the node transitions straight to its next node.
func (n *delayNode) Execute(ctx Context) (*Result, error) {
	if ctx.Resume {
		return &Result{NextNodeId: n.next}, nil
	}
	if len(n.def.Event) != 0 {
		s := &Suspension{Reason: model.WAIT_REASON_EVENT, Event: n.def.Event}
		if n.def.TimeoutSeconds > 0 {
			s.ResumeAt = time.Now().Add(time.Duration(n.def.TimeoutSeconds) * time.Second).UnixMilli()
		}
		return &Result{Suspend: s}, nil
	}
	resumeAt := time.Now().Add(time.Duration(n.def.Seconds) * time.Second).UnixMilli()
	return &Result{Suspend: &Suspension{Reason: model.WAIT_REASON_DELAY, ResumeAt: resumeAt}}, nil
}
