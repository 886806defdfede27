package provider

import (
	"github.com/mohitkumar/mediaflow/model"
)

// DefaultCosts are the USD base prices per action used when a module does not
// declare a cost profile.
var DefaultCosts = map[string]map[string]float64{
	model.CATEGORY_IMAGE: {
		"generate": 0.04,
		"edit":     0.06,
		"upscale":  0.02,
	},
	model.CATEGORY_VIDEO: {
		"generate":     0.05,
		"edit":         0.03,
		"subtitle":     0.01,
		"multi_export": 0.02,
	},
	model.CATEGORY_AUDIO: {
		"stems":    0.01,
		"analyze":  0.005,
		"remaster": 0.01,
		"tab":      0.01,
	},
	model.CATEGORY_MUSIC: {
		"generate": 0.02,
	},
	model.CATEGORY_PUBLISHER: {
		"upload":        0,
		"schedule":      0,
		"fetch_metrics": 0,
	},
}

// EstimateCost prices one operation. Video generate and edit are billed per
// second, audio stems, analyze and remaster per minute, music per second.
func EstimateCost(op model.Operation, input map[string]any, costProfile map[string]float64) float64 {
	category, action := op.Category(), op.Action()
	base, ok := costProfile[action]
	if !ok {
		base = DefaultCosts[category][action]
	}
	duration := durationOf(input)
	if duration <= 0 {
		return base
	}
	switch category {
	case model.CATEGORY_VIDEO:
		if action == "generate" || action == "edit" {
			return base * duration
		}
	case model.CATEGORY_AUDIO:
		if action == "stems" || action == "analyze" || action == "remaster" {
			return base * duration / 60
		}
	case model.CATEGORY_MUSIC:
		return base * duration
	}
	return base
}

func durationOf(input map[string]any) float64 {
	switch v := input["duration_seconds"].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return 0
}
