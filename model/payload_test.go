package model

import (
	"testing"

	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/stretchr/testify/require"
)

func TestOperationMapping(t *testing.T) {
	require.Equal(t, IMAGE_GENERATE, OperationFor("image", "generate"))
	require.Equal(t, IMAGE_UPSCALE, OperationFor("image.basic", "upscale"))
	require.Equal(t, PUBLISHER_FETCH_METRICS, OperationFor("publisher", "fetch_metrics"))
	require.Equal(t, "image.generate", IMAGE_GENERATE.Channel())
	require.Equal(t, "video.multi_export", VIDEO_MULTI_EXPORT.Channel())
	require.Equal(t, "publisher", PUBLISHER_FETCH_METRICS.Category())
	require.Equal(t, "fetch_metrics", PUBLISHER_FETCH_METRICS.Action())
	require.Equal(t, "", Operation("CUSTOM").Action())
}

func TestValidatePayload(t *testing.T) {
	for scenario, tc := range map[string]struct {
		op    Operation
		input map[string]any
		field string
	}{
		"image generate ok":          {op: IMAGE_GENERATE, input: map[string]any{"prompt": "fox", "width": 512}},
		"image generate empty":       {op: IMAGE_GENERATE, input: nil},
		"image dimension":            {op: IMAGE_GENERATE, input: map[string]any{"height": 8000}, field: "height"},
		"image wrong type":           {op: IMAGE_GENERATE, input: map[string]any{"width": "wide"}, field: "input_payload"},
		"image edit type":            {op: IMAGE_EDIT, input: map[string]any{"edit_type": "blur"}, field: "edit_type"},
		"upscale scale":              {op: IMAGE_UPSCALE, input: map[string]any{"scale": 5}, field: "scale"},
		"upscale default":            {op: IMAGE_UPSCALE, input: map[string]any{"scale": 2}},
		"video aspect ratio":         {op: VIDEO_GENERATE, input: map[string]any{"aspect_ratio": "2:1"}, field: "aspect_ratio"},
		"video edit needs operation": {op: VIDEO_EDIT, input: map[string]any{}, field: "operations"},
		"video edit op type":         {op: VIDEO_EDIT, input: map[string]any{"operations": []any{map[string]any{"start": 1}}}, field: "operations[0].type"},
		"multi export":               {op: VIDEO_MULTI_EXPORT, input: map[string]any{"aspect_ratios": []any{"16:9", "9:16"}}},
		"multi export bad ratio":     {op: VIDEO_MULTI_EXPORT, input: map[string]any{"aspect_ratios": []any{"3:1"}}, field: "aspect_ratios"},
		"stems":                      {op: AUDIO_STEMS, input: map[string]any{"stems": []any{"kazoo"}}, field: "stems"},
		"schedule needs time":        {op: PUBLISHER_SCHEDULE, input: map[string]any{"title": "launch"}, field: "scheduled_time"},
		"schedule ok":                {op: PUBLISHER_SCHEDULE, input: map[string]any{"title": "launch", "scheduled_time": "2026-01-02T15:04:05Z"}},
		"metrics needs post":         {op: PUBLISHER_FETCH_METRICS, input: map[string]any{}, field: "external_post_id"},
		"unknown operation":          {op: Operation("CUSTOM_THING"), input: map[string]any{"anything": 1}},
	} {
		t.Run(scenario, func(t *testing.T) {
			err := ValidatePayload(tc.op, tc.input)
			if len(tc.field) == 0 {
				require.NoError(t, err)
				return
			}
			var verr api.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestDecodePayloadExtensions(t *testing.T) {
	p, ext, err := DecodePayload(IMAGE_GENERATE, map[string]any{"prompt": "fox", "seed": 42})
	require.NoError(t, err)
	require.Equal(t, "fox", p.(*ImageGenerateInput).Prompt)
	require.Equal(t, map[string]any{"seed": 42}, ext)

	p, ext, err = DecodePayload(PUBLISHER_SCHEDULE, map[string]any{"title": "t", "scheduled_time": "2026-01-02T15:04:05Z", "extra": true})
	require.NoError(t, err)
	require.Equal(t, "t", p.(*PublisherScheduleInput).Title)
	require.Equal(t, map[string]any{"extra": true}, ext)

	p, ext, err = DecodePayload(Operation("CUSTOM"), map[string]any{"a": 1})
	require.NoError(t, err)
	require.Nil(t, p)
	require.Equal(t, map[string]any{"a": 1}, ext)
}
