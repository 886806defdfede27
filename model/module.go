package model

import "time"

type EndpointType string

const ENDPOINT_INTERNAL EndpointType = "internal"
const ENDPOINT_EXTERNAL EndpointType = "external"

const CATEGORY_IMAGE = "image"
const CATEGORY_VIDEO = "video"
const CATEGORY_AUDIO = "audio"
const CATEGORY_MUSIC = "music"
const CATEGORY_PUBLISHER = "publisher"
const CATEGORY_GENERIC = "generic"

type ModuleCapability struct {
	Id             string             `json:"id" yaml:"id"`
	Name           string             `json:"name" yaml:"name"`
	Category       string             `json:"category" yaml:"category"`
	Version        string             `json:"version" yaml:"version"`
	Active         bool               `json:"active" yaml:"active"`
	Operations     []string           `json:"operations" yaml:"operations"`
	InputTypes     []string           `json:"input_types" yaml:"input_types"`
	OutputTypes    []string           `json:"output_types" yaml:"output_types"`
	MaxBatch       int                `json:"max_batch" yaml:"max_batch"`
	CostProfile    map[string]float64 `json:"cost_profile" yaml:"cost_profile"`
	Endpoint       string             `json:"endpoint" yaml:"endpoint"`
	EndpointType   EndpointType       `json:"endpoint_type" yaml:"endpoint_type"`
	TimeoutSeconds int                `json:"timeout_seconds" yaml:"timeout_seconds"`
	CreatedAt      time.Time          `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time          `json:"updated_at" yaml:"-"`
}

func (m *ModuleCapability) Supports(action string) bool {
	if len(m.Operations) == 0 {
		return true
	}
	for _, op := range m.Operations {
		if op == action {
			return true
		}
	}
	return false
}

// Route is what the dispatcher needs to hand a job to its executor.
type Route struct {
	ModuleId       string       `json:"module_id"`
	Category       string       `json:"category"`
	Endpoint       string       `json:"endpoint"`
	EndpointType   EndpointType `json:"endpoint_type"`
	TimeoutSeconds int          `json:"timeout_seconds"`
}
