package model

type VarScope string

const SCOPE_SESSION VarScope = "session"
const SCOPE_NODE VarScope = "node"
const SCOPE_FLOW VarScope = "flow"
const SCOPE_USER VarScope = "user"
const SCOPE_GLOBAL VarScope = "global"

// ScopeChain is the resolution order, nearest scope first.
var ScopeChain = []VarScope{SCOPE_SESSION, SCOPE_NODE, SCOPE_FLOW, SCOPE_USER, SCOPE_GLOBAL}

func ValidScope(s VarScope) bool {
	for _, sc := range ScopeChain {
		if sc == s {
			return true
		}
	}
	return false
}

type ValueType string

const VALUE_TYPE_STRING ValueType = "string"
const VALUE_TYPE_NUMBER ValueType = "number"
const VALUE_TYPE_BOOLEAN ValueType = "boolean"
const VALUE_TYPE_OBJECT ValueType = "object"
const VALUE_TYPE_ARRAY ValueType = "array"

type Value struct {
	Type      ValueType `json:"type"`
	Data      any       `json:"data"`
	ExpiresAt int64     `json:"expiresAt,omitempty"`
}

func TypeOf(v any) ValueType {
	switch v.(type) {
	case string:
		return VALUE_TYPE_STRING
	case bool:
		return VALUE_TYPE_BOOLEAN
	case int, int32, int64, float32, float64:
		return VALUE_TYPE_NUMBER
	case []any:
		return VALUE_TYPE_ARRAY
	default:
		return VALUE_TYPE_OBJECT
	}
}
