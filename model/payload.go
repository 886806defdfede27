package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	api "github.com/mohitkumar/mediaflow/api/v1"
)

type Operation string

const IMAGE_GENERATE Operation = "IMAGE_GENERATE"
const IMAGE_EDIT Operation = "IMAGE_EDIT"
const IMAGE_UPSCALE Operation = "IMAGE_UPSCALE"
const VIDEO_GENERATE Operation = "VIDEO_GENERATE"
const VIDEO_EDIT Operation = "VIDEO_EDIT"
const VIDEO_SUBTITLE Operation = "VIDEO_SUBTITLE"
const VIDEO_MULTI_EXPORT Operation = "VIDEO_MULTI_EXPORT"
const AUDIO_STEMS Operation = "AUDIO_STEMS"
const AUDIO_ANALYZE Operation = "AUDIO_ANALYZE"
const AUDIO_REMASTER Operation = "AUDIO_REMASTER"
const AUDIO_TAB Operation = "AUDIO_TAB"
const MUSIC_GENERATE Operation = "MUSIC_GENERATE"
const PUBLISHER_UPLOAD Operation = "PUBLISHER_UPLOAD"
const PUBLISHER_SCHEDULE Operation = "PUBLISHER_SCHEDULE"
const PUBLISHER_FETCH_METRICS Operation = "PUBLISHER_FETCH_METRICS"

// OperationFor maps a workflow step onto an operation type. The module may be
// a bare category ("image") or a module id ("image.basic").
func OperationFor(module string, action string) Operation {
	category := strings.SplitN(module, ".", 2)[0]
	return Operation(strings.ToUpper(category + "_" + action))
}

// Channel is the queue name an operation is dispatched on, e.g.
// IMAGE_GENERATE -> image.generate.
func (op Operation) Channel() string {
	return strings.Replace(strings.ToLower(string(op)), "_", ".", 1)
}

func (op Operation) Category() string {
	return strings.SplitN(strings.ToLower(string(op)), "_", 2)[0]
}

func (op Operation) Action() string {
	parts := strings.SplitN(strings.ToLower(string(op)), "_", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// Payload is the typed input of a well-known operation. Content fields such
// as prompts and asset paths are optional: in a workflow step they are often
// filled in at execute time by templating against the draft's metadata.
// Validate rejects wrong types, out of range numbers and unknown enum values.
type Payload interface {
	Validate() error
}

type ImageGenerateInput struct {
	Prompt         string `json:"prompt"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Style          string `json:"style,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Provider       string `json:"provider,omitempty"`
}

func (in *ImageGenerateInput) Validate() error {
	if err := validateDimension("width", in.Width); err != nil {
		return err
	}
	return validateDimension("height", in.Height)
}

type ImageEditInput struct {
	ImagePath string `json:"image_path"`
	Prompt    string `json:"prompt"`
	MaskPath  string `json:"mask_path,omitempty"`
	EditType  string `json:"edit_type,omitempty"`
}

var validEditTypes = []string{"inpaint", "outpainting", "remove", "add"}

func (in *ImageEditInput) Validate() error {
	if len(in.EditType) != 0 && !contains(validEditTypes, in.EditType) {
		return api.ValidationError{Field: "edit_type", Reason: fmt.Sprintf("must be one of %v", validEditTypes)}
	}
	return nil
}

type ImageUpscaleInput struct {
	ImagePath string `json:"image_path,omitempty"`
	Scale     int    `json:"scale,omitempty"`
}

func (in *ImageUpscaleInput) Validate() error {
	switch in.Scale {
	case 0, 2, 3, 4:
		return nil
	}
	return api.ValidationError{Field: "scale", Reason: "must be 2, 3 or 4"}
}

type VideoGenerateInput struct {
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	Style           string `json:"style,omitempty"`
}

var validAspectRatios = []string{"16:9", "9:16", "1:1", "4:5"}

func (in *VideoGenerateInput) Validate() error {
	if in.DurationSeconds < 0 || in.DurationSeconds > 600 {
		return api.ValidationError{Field: "duration_seconds", Reason: "must be between 0 and 600"}
	}
	if len(in.AspectRatio) != 0 && !contains(validAspectRatios, in.AspectRatio) {
		return api.ValidationError{Field: "aspect_ratio", Reason: fmt.Sprintf("must be one of %v", validAspectRatios)}
	}
	return nil
}

type VideoEditInput struct {
	VideoPath  string           `json:"video_path,omitempty"`
	Operations []map[string]any `json:"operations"`
}

func (in *VideoEditInput) Validate() error {
	if len(in.Operations) == 0 {
		return api.ValidationError{Field: "operations", Reason: "at least one edit operation required"}
	}
	for i, op := range in.Operations {
		if _, ok := op["type"].(string); !ok {
			return api.ValidationError{Field: fmt.Sprintf("operations[%d].type", i), Reason: "required"}
		}
	}
	return nil
}

type VideoSubtitleInput struct {
	VideoPath string `json:"video_path,omitempty"`
	Language  string `json:"language,omitempty"`
	Auto      bool   `json:"auto,omitempty"`
}

func (in *VideoSubtitleInput) Validate() error {
	return nil
}

type VideoMultiExportInput struct {
	VideoPath    string   `json:"video_path,omitempty"`
	AspectRatios []string `json:"aspect_ratios"`
}

func (in *VideoMultiExportInput) Validate() error {
	if len(in.AspectRatios) == 0 {
		return api.ValidationError{Field: "aspect_ratios", Reason: "required"}
	}
	for _, ar := range in.AspectRatios {
		if !contains(validAspectRatios, ar) {
			return api.ValidationError{Field: "aspect_ratios", Reason: fmt.Sprintf("%s is not one of %v", ar, validAspectRatios)}
		}
	}
	return nil
}

type AudioStemsInput struct {
	AudioPath string   `json:"audio_path,omitempty"`
	Stems     []string `json:"stems,omitempty"`
}

var validStems = []string{"vocal", "drums", "bass", "other"}

func (in *AudioStemsInput) Validate() error {
	for _, stem := range in.Stems {
		if !contains(validStems, stem) {
			return api.ValidationError{Field: "stems", Reason: fmt.Sprintf("%s is not one of %v", stem, validStems)}
		}
	}
	return nil
}

type AudioAnalyzeInput struct {
	AudioPath string `json:"audio_path,omitempty"`
}

func (in *AudioAnalyzeInput) Validate() error {
	return nil
}

type AudioRemasterInput struct {
	AudioPath  string           `json:"audio_path,omitempty"`
	Operations []map[string]any `json:"operations,omitempty"`
}

func (in *AudioRemasterInput) Validate() error {
	for i, op := range in.Operations {
		if _, ok := op["type"].(string); !ok {
			return api.ValidationError{Field: fmt.Sprintf("operations[%d].type", i), Reason: "required"}
		}
	}
	return nil
}

type AudioTabInput struct {
	AudioPath  string `json:"audio_path,omitempty"`
	Instrument string `json:"instrument,omitempty"`
}

func (in *AudioTabInput) Validate() error {
	return nil
}

type MusicGenerateInput struct {
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Genre           string `json:"genre,omitempty"`
	Mood            string `json:"mood,omitempty"`
}

func (in *MusicGenerateInput) Validate() error {
	if in.DurationSeconds < 0 {
		return api.ValidationError{Field: "duration_seconds", Reason: "must not be negative"}
	}
	return nil
}

type PublisherUploadInput struct {
	AssetPath   string         `json:"asset_path"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Platform    string         `json:"platform,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (in *PublisherUploadInput) Validate() error {
	if len(in.Title) > 200 {
		return api.ValidationError{Field: "title", Reason: "must be at most 200 characters"}
	}
	return nil
}

type PublisherScheduleInput struct {
	PublisherUploadInput
	ScheduledTime time.Time `json:"scheduled_time"`
}

func (in *PublisherScheduleInput) Validate() error {
	if err := in.PublisherUploadInput.Validate(); err != nil {
		return err
	}
	if in.ScheduledTime.IsZero() {
		return api.ValidationError{Field: "scheduled_time", Reason: "required"}
	}
	return nil
}

type PublisherFetchMetricsInput struct {
	ExternalPostId string `json:"external_post_id"`
	Platform       string `json:"platform,omitempty"`
}

func (in *PublisherFetchMetricsInput) Validate() error {
	if len(in.ExternalPostId) == 0 {
		return api.ValidationError{Field: "external_post_id", Reason: "required"}
	}
	return nil
}

var payloadTypes = map[Operation]func() Payload{
	IMAGE_GENERATE:          func() Payload { return &ImageGenerateInput{} },
	IMAGE_EDIT:              func() Payload { return &ImageEditInput{} },
	IMAGE_UPSCALE:           func() Payload { return &ImageUpscaleInput{} },
	VIDEO_GENERATE:          func() Payload { return &VideoGenerateInput{} },
	VIDEO_EDIT:              func() Payload { return &VideoEditInput{} },
	VIDEO_SUBTITLE:          func() Payload { return &VideoSubtitleInput{} },
	VIDEO_MULTI_EXPORT:      func() Payload { return &VideoMultiExportInput{} },
	AUDIO_STEMS:             func() Payload { return &AudioStemsInput{} },
	AUDIO_ANALYZE:           func() Payload { return &AudioAnalyzeInput{} },
	AUDIO_REMASTER:          func() Payload { return &AudioRemasterInput{} },
	AUDIO_TAB:               func() Payload { return &AudioTabInput{} },
	MUSIC_GENERATE:          func() Payload { return &MusicGenerateInput{} },
	PUBLISHER_UPLOAD:        func() Payload { return &PublisherUploadInput{} },
	PUBLISHER_SCHEDULE:      func() Payload { return &PublisherScheduleInput{} },
	PUBLISHER_FETCH_METRICS: func() Payload { return &PublisherFetchMetricsInput{} },
}

// WellKnownOperations lists the operations with a typed payload, sorted.
func WellKnownOperations() []Operation {
	ops := make([]Operation, 0, len(payloadTypes))
	for op := range payloadTypes {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

func IsWellKnown(op Operation) bool {
	_, ok := payloadTypes[op]
	return ok
}

// DecodePayload turns an opaque input map into the typed payload of a
// well-known operation. Keys the schema does not declare are returned as
// extensions. Unknown operations yield a nil payload and the whole map as
// extensions.
func DecodePayload(op Operation, input map[string]any) (Payload, map[string]any, error) {
	newPayload, ok := payloadTypes[op]
	if !ok {
		return nil, input, nil
	}
	p := newPayload()
	data, err := json.Marshal(input)
	if err != nil {
		return nil, nil, api.ValidationError{Field: "input_payload", Reason: err.Error()}
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, nil, api.ValidationError{Field: "input_payload", Reason: err.Error()}
	}
	known := jsonFields(reflect.TypeOf(p).Elem())
	extensions := make(map[string]any)
	for k, v := range input {
		if _, ok := known[k]; !ok {
			extensions[k] = v
		}
	}
	return p, extensions, nil
}

func ValidatePayload(op Operation, input map[string]any) error {
	p, _, err := DecodePayload(op, input)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	return p.Validate()
}

func jsonFields(t reflect.Type) map[string]struct{} {
	out := make(map[string]struct{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			for k := range jsonFields(f.Type) {
				out[k] = struct{}{}
			}
			continue
		}
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if len(name) == 0 || name == "-" {
			continue
		}
		out[name] = struct{}{}
	}
	return out
}

func validateDimension(field string, v int) error {
	if v == 0 {
		return nil
	}
	if v < 64 || v > 4096 {
		return api.ValidationError{Field: field, Reason: "must be between 64 and 4096"}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
