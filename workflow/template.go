package workflow

import "github.com/mohitkumar/mediaflow/model"

const PROMPT_PARAM = "{$.metadata.prompt}"

func step(module string, action string, params map[string]any) model.WorkflowStep {
	return model.WorkflowStep{Module: module, Action: action, Params: params}
}

func prompted() map[string]any {
	return map[string]any{"prompt": PROMPT_PARAM}
}

func templateFor(ideaType string) []model.WorkflowStep {
	switch ideaType {
	case model.CATEGORY_IMAGE:
		return []model.WorkflowStep{
			step(model.CATEGORY_IMAGE, "generate", prompted()),
			step(model.CATEGORY_IMAGE, "upscale", map[string]any{"scale": 2}),
		}
	case model.CATEGORY_VIDEO:
		return []model.WorkflowStep{
			step(model.CATEGORY_VIDEO, "generate", prompted()),
			step(model.CATEGORY_VIDEO, "subtitle", map[string]any{"auto": true}),
		}
	case model.CATEGORY_MUSIC:
		return []model.WorkflowStep{
			step(model.CATEGORY_MUSIC, "generate", prompted()),
		}
	}
	return []model.WorkflowStep{
		step(model.CATEGORY_IMAGE, "generate", prompted()),
		step(model.CATEGORY_VIDEO, "generate", prompted()),
		step(model.CATEGORY_MUSIC, "generate", prompted()),
	}
}
