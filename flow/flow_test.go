package flow

import (
	"testing"

	"github.com/convoflow/convoflow/model"
	"github.com/stretchr/testify/require"
)

func validDef() *model.FlowDef {
	return &model.FlowDef{
		Id:       "onboarding",
		Name:     "Onboarding",
		RootNode: "greet",
		Nodes: []model.NodeDef{
			{Id: "greet", Kind: model.NODE_KIND_MESSAGE, Next: "branch",
				Message: &model.MessageDef{Content: "welcome"}},
			{Id: "branch", Kind: model.NODE_KIND_CONDITION, Next: "minor",
				Edges: []model.EdgeDef{{Expression: "$.age", Operator: "gte", Value: 18, Next: "adult"}}},
			{Id: "adult", Kind: model.NODE_KIND_MESSAGE,
				Message: &model.MessageDef{Content: "adult path"}},
			{Id: "minor", Kind: model.NODE_KIND_MESSAGE,
				Message: &model.MessageDef{Content: "minor path"}},
		},
	}
}

func TestCompile(t *testing.T) {
	fl, err := Compile(validDef())
	require.NoError(t, err)
	require.Equal(t, "greet", fl.Root)
	require.Len(t, fl.Nodes, 4)
	require.Equal(t, 4, fl.Required)
	require.Len(t, fl.EdgesOf("branch"), 1)
	require.Empty(t, fl.EdgesOf("greet"))
}

func TestCompileCountsOnlyReachable(t *testing.T) {
	def := validDef()
	def.Nodes = append(def.Nodes, model.NodeDef{
		Id: "orphan", Kind: model.NODE_KIND_MESSAGE,
		Message: &model.MessageDef{Content: "never reached"},
	})
	fl, err := Compile(def)
	require.NoError(t, err)
	require.Equal(t, 4, fl.Required)
}

func TestValidate(t *testing.T) {
	for scenario, mutate := range map[string]func(def *model.FlowDef){
		"no nodes": func(def *model.FlowDef) {
			def.Nodes = nil
		},
		"no root": func(def *model.FlowDef) {
			def.RootNode = ""
		},
		"root not defined": func(def *model.FlowDef) {
			def.RootNode = "ghost"
		},
		"duplicate node id": func(def *model.FlowDef) {
			def.Nodes = append(def.Nodes, def.Nodes[0])
		},
		"unknown kind": func(def *model.FlowDef) {
			def.Nodes[0].Kind = "teleport"
		},
		"next points nowhere": func(def *model.FlowDef) {
			def.Nodes[0].Next = "ghost"
		},
		"edge points nowhere": func(def *model.FlowDef) {
			def.Nodes[1].Edges[0].Next = "ghost"
		},
		"condition without default": func(def *model.FlowDef) {
			def.Nodes[1].Next = ""
		},
		"invalid node payload": func(def *model.FlowDef) {
			def.Nodes[0].Message = nil
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			def := validDef()
			mutate(def)
			_, err := Compile(def)
			require.Error(t, err)
			require.IsType(t, model.ValidationError{}, err)
		})
	}
}
