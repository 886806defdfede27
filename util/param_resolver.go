package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenPattern = regexp.MustCompile("{(.*?)}")

// ResolveParams replaces {$.path} tokens in string values with the value found
// at that json path in data. A string made of a single token keeps the type of
// the referenced value. Unresolvable tokens are left as they are.
func ResolveParams(data map[string]any, params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	output := make(map[string]any, len(params))
	resolveParams(data, params, output)
	return output
}

func resolveParams(data map[string]any, params map[string]any, output map[string]any) {
	for k, v := range params {
		switch val := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			output[k] = out
			resolveParams(data, val, out)
		case string:
			output[k] = resolveString(data, val)
		case []any:
			output[k] = resolveList(data, val)
		default:
			output[k] = v
		}
	}
}

func resolveList(data map[string]any, list []any) []any {
	output := make([]any, 0, len(list))
	for _, v := range list {
		switch val := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			resolveParams(data, val, out)
			output = append(output, out)
		case string:
			output = append(output, resolveString(data, val))
		case []any:
			output = append(output, resolveList(data, val))
		default:
			output = append(output, v)
		}
	}
	return output
}

func resolveString(data map[string]any, s string) any {
	tokens := tokenPattern.FindAllString(s, -1)
	if len(tokens) == 0 {
		return s
	}
	tokenMap := make(map[string]any)
	for _, token := range tokens {
		path := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
		if !strings.HasPrefix(path, "$") {
			continue
		}
		value, err := jsonpath.JsonPathLookup(data, path)
		if err != nil {
			continue
		}
		tokenMap[token] = value
	}
	if len(tokens) == 1 && tokens[0] == s {
		if value, ok := tokenMap[s]; ok {
			return value
		}
		return s
	}
	out := s
	for t, tv := range tokenMap {
		out = strings.ReplaceAll(out, t, fmt.Sprintf("%v", tv))
	}
	return out
}
