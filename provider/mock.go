package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/mediaflow/model"
)

// Mock providers return deterministic mock:// assets without doing any work.

type MockImageProvider struct{}

func (MockImageProvider) Generate(ctx context.Context, in *model.ImageGenerateInput) (*ImageResult, error) {
	return &ImageResult{ImageURL: mockURL("image", "png"), Width: orDefault(in.Width, 1024), Height: orDefault(in.Height, 1024), Format: "png"}, nil
}

func (MockImageProvider) Edit(ctx context.Context, in *model.ImageEditInput) (*ImageResult, error) {
	return &ImageResult{ImageURL: mockURL("image", "png"), Width: 1024, Height: 1024, Format: "png"}, nil
}

func (MockImageProvider) Upscale(ctx context.Context, in *model.ImageUpscaleInput) (*ImageResult, error) {
	scale := orDefault(in.Scale, 2)
	return &ImageResult{ImageURL: mockURL("image", "png"), Width: 1024 * scale, Height: 1024 * scale, Format: "png"}, nil
}

type MockVideoProvider struct{}

func (MockVideoProvider) Generate(ctx context.Context, in *model.VideoGenerateInput) (*VideoResult, error) {
	ratio := in.AspectRatio
	if len(ratio) == 0 {
		ratio = "16:9"
	}
	return &VideoResult{VideoURL: mockURL("video", "mp4"), DurationSeconds: orDefault(in.DurationSeconds, 10), Format: "mp4", AspectRatio: ratio}, nil
}

func (MockVideoProvider) Edit(ctx context.Context, in *model.VideoEditInput) (*VideoResult, error) {
	return &VideoResult{VideoURL: mockURL("video", "mp4"), Format: "mp4"}, nil
}

func (MockVideoProvider) Subtitle(ctx context.Context, in *model.VideoSubtitleInput) (*VideoResult, error) {
	return &VideoResult{VideoURL: mockURL("video", "mp4"), Format: "mp4"}, nil
}

func (MockVideoProvider) MultiExport(ctx context.Context, in *model.VideoMultiExportInput) (*VideoResult, error) {
	exports := make(map[string]string, len(in.AspectRatios))
	for _, ar := range in.AspectRatios {
		exports[ar] = mockURL("video", "mp4")
	}
	return &VideoResult{Format: "mp4", Exports: exports}, nil
}

type MockAudioProvider struct{}

func (MockAudioProvider) SeparateStems(ctx context.Context, in *model.AudioStemsInput) (*AudioResult, error) {
	stems := in.Stems
	if len(stems) == 0 {
		stems = validStems
	}
	out := make(map[string]string, len(stems))
	for _, s := range stems {
		out[s] = mockURL("audio", "wav")
	}
	return &AudioResult{Format: "wav", Stems: out}, nil
}

func (MockAudioProvider) Analyze(ctx context.Context, in *model.AudioAnalyzeInput) (*AudioResult, error) {
	return &AudioResult{Format: "wav", Analysis: map[string]any{"bpm": 120, "key": "C major", "time_signature": "4/4"}}, nil
}

func (MockAudioProvider) GenerateMusic(ctx context.Context, in *model.MusicGenerateInput) (*AudioResult, error) {
	return &AudioResult{AudioURL: mockURL("audio", "mp3"), Format: "mp3"}, nil
}

func (MockAudioProvider) Remaster(ctx context.Context, in *model.AudioRemasterInput) (*AudioResult, error) {
	return &AudioResult{AudioURL: mockURL("audio", "wav"), Format: "wav"}, nil
}

func (MockAudioProvider) GenerateTab(ctx context.Context, in *model.AudioTabInput) (*AudioResult, error) {
	return &AudioResult{Format: "txt", Tab: "e|---0---|"}, nil
}

var validStems = []string{"vocal", "drums", "bass", "other"}

type MockPublisher struct {
	Platform string
}

func (p MockPublisher) Upload(ctx context.Context, in *model.PublisherUploadInput) (*PublishResult, error) {
	id := uuid.NewString()
	return &PublishResult{ExternalPostId: id, URL: fmt.Sprintf("mock://%s/%s", p.platform(in.Platform), id), PublishedTime: time.Now()}, nil
}

func (p MockPublisher) Schedule(ctx context.Context, in *model.PublisherScheduleInput) (*PublishResult, error) {
	id := uuid.NewString()
	return &PublishResult{ExternalPostId: id, URL: fmt.Sprintf("mock://%s/%s", p.platform(in.Platform), id), PublishedTime: in.ScheduledTime}, nil
}

func (p MockPublisher) FetchMetrics(ctx context.Context, in *model.PublisherFetchMetricsInput) (*MetricsResult, error) {
	return &MetricsResult{}, nil
}

func (p MockPublisher) platform(requested string) string {
	if len(requested) != 0 {
		return requested
	}
	if len(p.Platform) != 0 {
		return p.Platform
	}
	return "mock"
}

func mockURL(kind string, ext string) string {
	return fmt.Sprintf("mock://%s/%s.%s", kind, uuid.NewString(), ext)
}

func orDefault(v int, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// MockSet serves every category with a mock provider.
func MockSet() Set {
	audio := AudioCapability(MockAudioProvider{})
	return Set{
		model.CATEGORY_IMAGE:     ImageCapability(MockImageProvider{}),
		model.CATEGORY_VIDEO:     VideoCapability(MockVideoProvider{}),
		model.CATEGORY_AUDIO:     audio,
		model.CATEGORY_MUSIC:     audio,
		model.CATEGORY_PUBLISHER: PublisherCapability(MockPublisher{}),
	}
}

// MockModules are the registry entries matching MockSet.
func MockModules() []model.ModuleCapability {
	module := func(category string, ops []string, inputs []string, outputs []string) model.ModuleCapability {
		return model.ModuleCapability{
			Id:           category + ".basic",
			Name:         "Mock " + category + " provider",
			Category:     category,
			Version:      "1.0",
			Active:       true,
			Operations:   ops,
			InputTypes:   inputs,
			OutputTypes:  outputs,
			MaxBatch:     1,
			CostProfile:  DefaultCosts[category],
			EndpointType: model.ENDPOINT_INTERNAL,
		}
	}
	return []model.ModuleCapability{
		module(model.CATEGORY_IMAGE, []string{"generate", "edit", "upscale"}, []string{"text", "image"}, []string{"image"}),
		module(model.CATEGORY_VIDEO, []string{"generate", "edit", "subtitle", "multi_export"}, []string{"text", "video"}, []string{"video"}),
		module(model.CATEGORY_AUDIO, []string{"stems", "analyze", "remaster", "tab"}, []string{"audio"}, []string{"audio", "text"}),
		module(model.CATEGORY_MUSIC, []string{"generate"}, []string{"text"}, []string{"audio"}),
		module(model.CATEGORY_PUBLISHER, []string{"upload", "schedule", "fetch_metrics"}, []string{"image", "video", "audio"}, []string{"post"}),
	}
}
