package flow

import (
	"fmt"

	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/node"
)

// Flow is an immutable compiled graph snapshot. Sessions pin the version
// they started against, so a compiled flow is never mutated.
type Flow struct {
	Id       string
	Version  int
	Root     string
	Nodes    map[string]node.Node
	Required int
}

// Compile validates a definition and builds the typed node graph.
func Compile(def *model.FlowDef) (*Flow, error) {
	if err := Validate(def); err != nil {
		return nil, err
	}
	nodes := make(map[string]node.Node, len(def.Nodes))
	for _, nd := range def.Nodes {
		n, err := node.Build(nd)
		if err != nil {
			return nil, err
		}
		nodes[nd.Id] = n
	}
	f := &Flow{
		Id:      def.Id,
		Version: def.Version,
		Root:    def.RootNode,
		Nodes:   nodes,
	}
	f.Required = len(f.reachable())
	return f, nil
}

// Validate checks the graph shape without building handlers: unique node
// ids, known targets for every edge, a declared default edge on every
// condition node and a reachable root.
func Validate(def *model.FlowDef) error {
	if def == nil || len(def.Nodes) == 0 {
		return model.ValidationError{Message: "flow has no nodes"}
	}
	if len(def.RootNode) == 0 {
		return model.ValidationError{Message: "flow has no root node"}
	}
	ids := make(map[string]bool, len(def.Nodes))
	for _, nd := range def.Nodes {
		if len(nd.Id) == 0 {
			return model.ValidationError{Message: "node has empty id"}
		}
		if ids[nd.Id] {
			return model.ValidationError{Message: fmt.Sprintf("node id %s is duplicate", nd.Id)}
		}
		ids[nd.Id] = true
		if !node.ValidKind(nd.Kind) {
			return model.ValidationError{Message: fmt.Sprintf("node %s has unknown kind %s", nd.Id, nd.Kind)}
		}
	}
	if !ids[def.RootNode] {
		return model.ValidationError{Message: fmt.Sprintf("root node %s not defined in flow", def.RootNode)}
	}
	for _, nd := range def.Nodes {
		if len(nd.Next) != 0 && !ids[nd.Next] {
			return model.ValidationError{Message: fmt.Sprintf("node %s points to unknown node %s", nd.Id, nd.Next)}
		}
		for i, edge := range nd.Edges {
			if len(edge.Next) != 0 && !ids[edge.Next] {
				return model.ValidationError{Message: fmt.Sprintf("node %s edge %d points to unknown node %s", nd.Id, i, edge.Next)}
			}
		}
		if nd.Kind == model.NODE_KIND_CONDITION && len(nd.Next) == 0 {
			return model.ValidationError{Message: fmt.Sprintf("condition node %s has no default edge", nd.Id)}
		}
	}
	return nil
}

// reachable walks every edge from the root. The count is the denominator of
// the completion rate computed on finalization.
func (f *Flow) reachable() map[string]bool {
	seen := make(map[string]bool)
	stack := []string{f.Root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		n, ok := f.Nodes[id]
		if !ok {
			continue
		}
		seen[id] = true
		if next := n.GetNext(); len(next) != 0 {
			stack = append(stack, next)
		}
		for _, edge := range f.EdgesOf(id) {
			stack = append(stack, edge.Next)
		}
	}
	return seen
}

// EdgesOf exposes condition edges for graph walks; non-condition nodes have
// none.
func (f *Flow) EdgesOf(id string) []model.EdgeDef {
	n, ok := f.Nodes[id]
	if !ok {
		return nil
	}
	type edged interface {
		Edges() []model.EdgeDef
	}
	if e, ok := n.(edged); ok {
		return e.Edges()
	}
	return nil
}
