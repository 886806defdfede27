// Package provider defines one capability interface per module category and
// the Capability variant the executor dispatches operations through.
package provider

import (
	"context"
	"fmt"
	"time"

	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/model"
)

type ImageResult struct {
	ImageURL string
	Width    int
	Height   int
	Format   string
}

func (r *ImageResult) Output() map[string]any {
	return map[string]any{
		"image_url": r.ImageURL,
		"width":     r.Width,
		"height":    r.Height,
		"format":    r.Format,
	}
}

type VideoResult struct {
	VideoURL        string
	DurationSeconds int
	Format          string
	AspectRatio     string
	Exports         map[string]string
}

func (r *VideoResult) Output() map[string]any {
	out := map[string]any{
		"video_url":        r.VideoURL,
		"duration_seconds": r.DurationSeconds,
		"format":           r.Format,
		"aspect_ratio":     r.AspectRatio,
	}
	if len(r.Exports) != 0 {
		exports := make(map[string]any, len(r.Exports))
		for k, v := range r.Exports {
			exports[k] = v
		}
		out["exports"] = exports
	}
	return out
}

type AudioResult struct {
	AudioURL string
	Format   string
	Stems    map[string]string
	Analysis map[string]any
	Tab      string
}

func (r *AudioResult) Output() map[string]any {
	out := map[string]any{
		"audio_url": r.AudioURL,
		"format":    r.Format,
	}
	if len(r.Stems) != 0 {
		stems := make(map[string]any, len(r.Stems))
		for k, v := range r.Stems {
			stems[k] = v
		}
		out["stems"] = stems
	}
	if r.Analysis != nil {
		out["analysis"] = r.Analysis
	}
	if len(r.Tab) != 0 {
		out["tab"] = r.Tab
	}
	return out
}

type PublishResult struct {
	ExternalPostId string
	URL            string
	PublishedTime  time.Time
}

func (r *PublishResult) Output() map[string]any {
	return map[string]any{
		"external_post_id": r.ExternalPostId,
		"url":              r.URL,
		"published_time":   r.PublishedTime.UTC().Format(time.RFC3339),
	}
}

type MetricsResult struct {
	Views            int
	Likes            int
	Comments         int
	Shares           int
	WatchTimeSeconds float64
	CTR              float64
	EngagementRate   float64
	EstimatedRevenue float64
}

func (r *MetricsResult) Output() map[string]any {
	return map[string]any{
		"views":              r.Views,
		"likes":              r.Likes,
		"comments":           r.Comments,
		"shares":             r.Shares,
		"watch_time_seconds": r.WatchTimeSeconds,
		"ctr":                r.CTR,
		"engagement_rate":    r.EngagementRate,
		"estimated_revenue":  r.EstimatedRevenue,
	}
}

type ImageProvider interface {
	Generate(ctx context.Context, in *model.ImageGenerateInput) (*ImageResult, error)
	Edit(ctx context.Context, in *model.ImageEditInput) (*ImageResult, error)
	Upscale(ctx context.Context, in *model.ImageUpscaleInput) (*ImageResult, error)
}

type VideoProvider interface {
	Generate(ctx context.Context, in *model.VideoGenerateInput) (*VideoResult, error)
	Edit(ctx context.Context, in *model.VideoEditInput) (*VideoResult, error)
	Subtitle(ctx context.Context, in *model.VideoSubtitleInput) (*VideoResult, error)
	MultiExport(ctx context.Context, in *model.VideoMultiExportInput) (*VideoResult, error)
}

type AudioProvider interface {
	SeparateStems(ctx context.Context, in *model.AudioStemsInput) (*AudioResult, error)
	Analyze(ctx context.Context, in *model.AudioAnalyzeInput) (*AudioResult, error)
	GenerateMusic(ctx context.Context, in *model.MusicGenerateInput) (*AudioResult, error)
	Remaster(ctx context.Context, in *model.AudioRemasterInput) (*AudioResult, error)
	GenerateTab(ctx context.Context, in *model.AudioTabInput) (*AudioResult, error)
}

type Publisher interface {
	Upload(ctx context.Context, in *model.PublisherUploadInput) (*PublishResult, error)
	Schedule(ctx context.Context, in *model.PublisherScheduleInput) (*PublishResult, error)
	FetchMetrics(ctx context.Context, in *model.PublisherFetchMetricsInput) (*MetricsResult, error)
}

type Kind string

const KIND_IMAGE Kind = "image"
const KIND_VIDEO Kind = "video"
const KIND_AUDIO Kind = "audio"
const KIND_PUBLISHER Kind = "publisher"

// Capability is exactly one of the provider interfaces, tagged by Kind.
type Capability struct {
	Kind      Kind
	image     ImageProvider
	video     VideoProvider
	audio     AudioProvider
	publisher Publisher
}

func ImageCapability(p ImageProvider) Capability {
	return Capability{Kind: KIND_IMAGE, image: p}
}

func VideoCapability(p VideoProvider) Capability {
	return Capability{Kind: KIND_VIDEO, video: p}
}

func AudioCapability(p AudioProvider) Capability {
	return Capability{Kind: KIND_AUDIO, audio: p}
}

func PublisherCapability(p Publisher) Capability {
	return Capability{Kind: KIND_PUBLISHER, publisher: p}
}

type outputter interface {
	Output() map[string]any
}

// Execute decodes input into the operation's typed payload and runs it on the
// wrapped provider.
func (c Capability) Execute(ctx context.Context, op model.Operation, input map[string]any) (map[string]any, error) {
	payload, _, err := model.DecodePayload(op, input)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, api.ValidationError{Field: "type", Reason: fmt.Sprintf("operation %s has no provider", op)}
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	res, err := c.run(ctx, op, payload)
	if err != nil {
		return nil, err
	}
	return res.Output(), nil
}

func (c Capability) run(ctx context.Context, op model.Operation, payload model.Payload) (outputter, error) {
	switch c.Kind {
	case KIND_IMAGE:
		switch in := payload.(type) {
		case *model.ImageGenerateInput:
			return c.image.Generate(ctx, in)
		case *model.ImageEditInput:
			return c.image.Edit(ctx, in)
		case *model.ImageUpscaleInput:
			return c.image.Upscale(ctx, in)
		}
	case KIND_VIDEO:
		switch in := payload.(type) {
		case *model.VideoGenerateInput:
			return c.video.Generate(ctx, in)
		case *model.VideoEditInput:
			return c.video.Edit(ctx, in)
		case *model.VideoSubtitleInput:
			return c.video.Subtitle(ctx, in)
		case *model.VideoMultiExportInput:
			return c.video.MultiExport(ctx, in)
		}
	case KIND_AUDIO:
		switch in := payload.(type) {
		case *model.AudioStemsInput:
			return c.audio.SeparateStems(ctx, in)
		case *model.AudioAnalyzeInput:
			return c.audio.Analyze(ctx, in)
		case *model.MusicGenerateInput:
			return c.audio.GenerateMusic(ctx, in)
		case *model.AudioRemasterInput:
			return c.audio.Remaster(ctx, in)
		case *model.AudioTabInput:
			return c.audio.GenerateTab(ctx, in)
		}
	case KIND_PUBLISHER:
		switch in := payload.(type) {
		case *model.PublisherUploadInput:
			return c.publisher.Upload(ctx, in)
		case *model.PublisherScheduleInput:
			return c.publisher.Schedule(ctx, in)
		case *model.PublisherFetchMetricsInput:
			return c.publisher.FetchMetrics(ctx, in)
		}
	}
	return nil, api.ValidationError{Field: "type", Reason: fmt.Sprintf("%s provider can not run %s", c.Kind, op)}
}

// Set maps module categories onto capabilities.
type Set map[string]Capability

func (s Set) For(category string) (Capability, bool) {
	c, ok := s[category]
	return c, ok
}
