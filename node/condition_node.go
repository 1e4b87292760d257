package node

import (
	"fmt"
	"strings"

	"github.com/convoflow/convoflow/model"
	"github.com/oliveagle/jsonpath"
)

var validOperators = map[string]bool{
	"eq":       true,
	"neq":      true,
	"gt":       true,
	"gte":      true,
	"lt":       true,
	"lte":      true,
	"contains": true,
	"exists":   true,
}

var _ Node = new(conditionNode)

type conditionNode struct {
	baseNode
	edges []model.EdgeDef
}

func NewConditionNode(def model.NodeDef) *conditionNode {
	return &conditionNode{
		baseNode: newBaseNode(def),
		edges:    def.Edges,
	}
}

func (n *conditionNode) Edges() []model.EdgeDef {
	return n.edges
}

func (n *conditionNode) Validate() error {
	if len(n.edges) == 0 {
		return fmt.Errorf("node %s: condition should have at least one edge", n.id)
	}
	for i, edge := range n.edges {
		if !strings.HasPrefix(edge.Expression, "$") {
			return fmt.Errorf("node %s: edge %d expression should be a jsonpath starting with $", n.id, i)
		}
		if _, err := jsonpath.Compile(edge.Expression); err != nil {
			return fmt.Errorf("node %s: edge %d expression is not a valid jsonpath", n.id, i)
		}
		if !validOperators[edge.Operator] {
			return fmt.Errorf("node %s: edge %d has unknown operator %s", n.id, i, edge.Operator)
		}
		if len(edge.Next) == 0 {
			return fmt.Errorf("node %s: edge %d has no next node", n.id, i)
		}
	}
	return nil
}

// Execute evaluates edges in definition order, first match wins. The node's
// default edge is taken when nothing matches; a missing default is a fatal
// step failure. Branch heads that were candidates but not taken come back in
// Skipped.
func (n *conditionNode) Execute(ctx Context) (*Result, error) {
	matched := -1
	for i, edge := range n.edges {
		ok, err := evalEdge(ctx.Vars, edge)
		if err != nil {
			continue
		}
		if ok {
			matched = i
			break
		}
	}
	candidates := make([]string, 0, len(n.edges)+1)
	for _, edge := range n.edges {
		candidates = append(candidates, edge.Next)
	}
	if len(n.next) != 0 {
		candidates = append(candidates, n.next)
	}
	var nextId string
	if matched >= 0 {
		nextId = n.edges[matched].Next
	} else {
		if len(n.next) == 0 {
			return nil, model.FatalNodeError{NodeId: n.id, Message: "no edge matched and no default edge declared"}
		}
		nextId = n.next
	}
	skipped := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != nextId {
			skipped = append(skipped, c)
		}
	}
	return &Result{NextNodeId: nextId, Skipped: skipped}, nil
}

func evalEdge(vars map[string]any, edge model.EdgeDef) (bool, error) {
	value, err := jsonpath.JsonPathLookup(vars, edge.Expression)
	if edge.Operator == "exists" {
		return err == nil && value != nil, nil
	}
	if err != nil {
		return false, err
	}
	switch edge.Operator {
	case "eq":
		return equalValues(value, edge.Value), nil
	case "neq":
		return !equalValues(value, edge.Value), nil
	case "contains":
		return strings.Contains(fmt.Sprintf("%v", value), fmt.Sprintf("%v", edge.Value)), nil
	}
	left, lok := asNumber(value)
	right, rok := asNumber(edge.Value)
	if !lok || !rok {
		return false, fmt.Errorf("operator %s needs numeric operands", edge.Operator)
	}
	switch edge.Operator {
	case "gt":
		return left > right, nil
	case "gte":
		return left >= right, nil
	case "lt":
		return left < right, nil
	case "lte":
		return left <= right, nil
	}
	return false, fmt.Errorf("unknown operator %s", edge.Operator)
}

func equalValues(a, b any) bool {
	an, aok := asNumber(a)
	bn, bok := asNumber(b)
	if aok && bok {
		return an == bn
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
