package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveTemplate(t *testing.T) {
	data := map[string]any{
		"name": "alice",
		"age":  22,
		"address": map[string]any{
			"city": "pune",
		},
	}
	for scenario, fn := range map[string]func(t *testing.T){
		"test simple token": func(t *testing.T) {
			out := ResolveTemplate(data, "hello {$.name}")
			require.Equal(t, "hello alice", out)
		},
		"test nested token": func(t *testing.T) {
			out := ResolveTemplate(data, "city is {$.address.city}")
			require.Equal(t, "city is pune", out)
		},
		"test multiple tokens": func(t *testing.T) {
			out := ResolveTemplate(data, "{$.name} is {$.age}")
			require.Equal(t, "alice is 22", out)
		},
		"test unresolvable token renders empty": func(t *testing.T) {
			out := ResolveTemplate(data, "hello {$.missing}!")
			require.Equal(t, "hello !", out)
		},
		"test non jsonpath token untouched": func(t *testing.T) {
			out := ResolveTemplate(data, "literal {braces} stay")
			require.Equal(t, "literal {braces} stay", out)
		},
	} {
		t.Run(scenario, fn)
	}
}

func TestResolveParams(t *testing.T) {
	data := map[string]any{
		"age":  22,
		"name": "alice",
	}
	params := map[string]any{
		"typed":   "{$.age}",
		"inline":  "age={$.age}",
		"nested":  map[string]any{"who": "{$.name}"},
		"listed":  []any{"{$.age}", "static"},
		"literal": 42,
	}
	out := ResolveParams(data, params)
	require.Equal(t, 22, out["typed"])
	require.Equal(t, "age=22", out["inline"])
	require.Equal(t, map[string]any{"who": "alice"}, out["nested"])
	require.Equal(t, []any{22, "static"}, out["listed"])
	require.Equal(t, 42, out["literal"])
}
