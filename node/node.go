package node

import (
	"fmt"
	"time"

	"github.com/convoflow/convoflow/model"
)

// Context carries everything a handler may read. Handlers are pure with
// respect to it: all writes come back as effects.
type Context struct {
	Session        *model.FlowSession
	Input          map[string]any
	Vars           map[string]any
	Resume         bool
	SandboxTimeout time.Duration
	WebhookTimeout time.Duration
}

type EffectKind string

const EFFECT_SEND EffectKind = "send"
const EFFECT_SET_VARIABLE EffectKind = "set_variable"
const EFFECT_HANDOFF EffectKind = "handoff"

type Effect struct {
	Kind     EffectKind
	Message  *model.OutboundMessage
	Variable *VarWrite
}

type VarWrite struct {
	Key        string
	Value      any
	Scope      model.VarScope
	NodeId     string
	TTLSeconds int
}

// Suspension tells the engine to park the session instead of advancing.
type Suspension struct {
	Reason   string
	ResumeAt int64
	Event    string
}

// Result is what a handler returns on success: either a transition to
// NextNodeId (empty means the graph is complete) or a suspension. Skipped
// lists candidate branch heads that were not taken.
type Result struct {
	NextNodeId string
	Skipped    []string
	Effects    []Effect
	Suspend    *Suspension
}

type Node interface {
	GetId() string
	GetKind() string
	GetNext() string
	Validate() error
	Execute(ctx Context) (*Result, error)
}

var _ Node = new(baseNode)

type baseNode struct {
	id   string
	kind string
	next string
}

func newBaseNode(def model.NodeDef) baseNode {
	return baseNode{
		id:   def.Id,
		kind: def.Kind,
		next: def.Next,
	}
}

func (bn *baseNode) GetId() string {
	return bn.id
}

func (bn *baseNode) GetKind() string {
	return bn.kind
}

func (bn *baseNode) GetNext() string {
	return bn.next
}

func (bn *baseNode) Execute(ctx Context) (*Result, error) {
	return nil, fmt.Errorf("node %s: can not execute", bn.id)
}

func (bn *baseNode) Validate() error {
	return fmt.Errorf("node %s: implementation for kind %s not found", bn.id, bn.kind)
}

type builder func(def model.NodeDef) Node

var builders = map[string]builder{
	model.NODE_KIND_MESSAGE:        func(def model.NodeDef) Node { return NewMessageNode(def) },
	model.NODE_KIND_CONDITION:      func(def model.NodeDef) Node { return NewConditionNode(def) },
	model.NODE_KIND_DATA_CAPTURE:   func(def model.NodeDef) Node { return NewDataCaptureNode(def) },
	model.NODE_KIND_CODE_EXECUTION: func(def model.NodeDef) Node { return NewCodeExecutionNode(def) },
	model.NODE_KIND_DELAY:          func(def model.NodeDef) Node { return NewDelayNode(def) },
	model.NODE_KIND_HANDOFF:        func(def model.NodeDef) Node { return NewHandoffNode(def) },
	model.NODE_KIND_WEBHOOK:        func(def model.NodeDef) Node { return NewWebhookNode(def) },
}

func ValidKind(kind string) bool {
	_, ok := builders[kind]
	return ok
}

// Build dispatches on the node kind through the static builder table.
func Build(def model.NodeDef) (Node, error) {
	b, ok := builders[def.Kind]
	if !ok {
		return nil, model.ValidationError{Message: fmt.Sprintf("node %s has unknown kind %s", def.Id, def.Kind)}
	}
	n := b(def)
	if err := n.Validate(); err != nil {
		return nil, model.ValidationError{Message: err.Error()}
	}
	return n, nil
}
