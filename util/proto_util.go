package util

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

func ConvertToStruct(data map[string]any) (*structpb.Struct, error) {
	if data == nil {
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
	}
	return structpb.NewStruct(normalize(data).(map[string]any))
}

func ConvertFromStruct(data *structpb.Struct) map[string]any {
	if data == nil {
		return nil
	}
	return data.AsMap()
}

func StringField(data *structpb.Struct, key string) string {
	if data == nil {
		return ""
	}
	v, ok := data.Fields[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// normalize converts values structpb can not take (typed slices, ints wrapped
// in other map types) into their generic json forms.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []map[string]any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, normalize(item))
		}
		return out
	case []string:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, item)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, normalize(item))
		}
		return out
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case map[string]float64:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out
	}
	return v
}
