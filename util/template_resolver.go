package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenRe = regexp.MustCompile(`{(.*?)}`)

// ResolveTemplate replaces {$.path} tokens in tpl with values looked up by
// jsonpath in data. Unresolvable tokens render as an empty string.
func ResolveTemplate(data map[string]any, tpl string) string {
	tokens := tokenRe.FindAllString(tpl, -1)
	out := tpl
	for _, token := range tokens {
		tmatch := strings.ReplaceAll(token, "{", "")
		tmatch = strings.ReplaceAll(tmatch, "}", "")
		if !strings.HasPrefix(tmatch, "$") {
			continue
		}
		value, err := jsonpath.JsonPathLookup(data, tmatch)
		if err != nil {
			out = strings.ReplaceAll(out, token, "")
			continue
		}
		out = strings.ReplaceAll(out, token, fmt.Sprintf("%v", value))
	}
	return out
}

// ResolveParams resolves {$.path} tokens in every string value of params,
// recursing into nested maps and lists.
func ResolveParams(data map[string]any, params map[string]any) map[string]any {
	output := make(map[string]any)
	for k, v := range params {
		switch tv := v.(type) {
		case map[string]any:
			output[k] = ResolveParams(data, tv)
		case string:
			output[k] = resolveValue(data, tv)
		case []any:
			output[k] = resolveList(data, tv)
		default:
			output[k] = v
		}
	}
	return output
}

func resolveList(data map[string]any, list []any) []any {
	output := make([]any, 0, len(list))
	for _, v := range list {
		switch tv := v.(type) {
		case map[string]any:
			output = append(output, ResolveParams(data, tv))
		case string:
			output = append(output, resolveValue(data, tv))
		case []any:
			output = append(output, resolveList(data, tv))
		default:
			output = append(output, v)
		}
	}
	return output
}

// resolveValue keeps the looked-up type when the whole string is one token,
// so numbers and objects survive interpolation into webhook bodies.
func resolveValue(data map[string]any, s string) any {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{$") && strings.HasSuffix(trimmed, "}") && strings.Count(trimmed, "{") == 1 {
		tmatch := strings.TrimSuffix(strings.TrimPrefix(trimmed, "{"), "}")
		value, err := jsonpath.JsonPathLookup(data, tmatch)
		if err != nil {
			return ""
		}
		return value
	}
	return ResolveTemplate(data, s)
}
