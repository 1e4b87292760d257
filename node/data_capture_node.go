package node

import (
	"fmt"

	"github.com/convoflow/convoflow/model"
	"github.com/oliveagle/jsonpath"
)

var _ Node = new(dataCaptureNode)

type dataCaptureNode struct {
	baseNode
	def *model.CaptureDef
}

func NewDataCaptureNode(def model.NodeDef) *dataCaptureNode {
	return &dataCaptureNode{
		baseNode: newBaseNode(def),
		def:      def.Capture,
	}
}

func (n *dataCaptureNode) Validate() error {
	if n.def == nil || len(n.def.Fields) == 0 {
		return fmt.Errorf("node %s: data_capture should declare at least one field", n.id)
	}
	for _, f := range n.def.Fields {
		if len(f.Key) == 0 {
			return fmt.Errorf("node %s: capture field key can not be empty", n.id)
		}
		if len(f.Scope) != 0 && !model.ValidScope(f.Scope) {
			return fmt.Errorf("node %s: capture field %s has invalid scope %s", n.id, f.Key, f.Scope)
		}
	}
	return nil
}

// Execute extracts declared fields from the inbound payload. A missing
// required field suspends the session until the next inbound event carries
// it; the step then re-executes against the new input.
func (n *dataCaptureNode) Execute(ctx Context) (*Result, error) {
	effects := make([]Effect, 0, len(n.def.Fields))
	for _, f := range n.def.Fields {
		value, ok := lookupField(ctx.Input, f)
		if !ok {
			if f.Required {
				return &Result{Suspend: &Suspension{Reason: model.WAIT_REASON_INPUT}}, nil
			}
			continue
		}
		scope := f.Scope
		if len(scope) == 0 {
			scope = model.SCOPE_FLOW
		}
		effects = append(effects, Effect{
			Kind: EFFECT_SET_VARIABLE,
			Variable: &VarWrite{
				Key:        f.Key,
				Value:      value,
				Scope:      scope,
				NodeId:     n.id,
				TTLSeconds: f.TTLSeconds,
			},
		})
	}
	return &Result{NextNodeId: n.next, Effects: effects}, nil
}

func lookupField(input map[string]any, f model.CaptureField) (any, bool) {
	if input == nil {
		return nil, false
	}
	path := f.Path
	if len(path) == 0 {
		if v, ok := input[f.Key]; ok {
			return v, true
		}
		return nil, false
	}
	value, err := jsonpath.JsonPathLookup(input, path)
	if err != nil || value == nil {
		return nil, false
	}
	return value, true
}
