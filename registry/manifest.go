package registry

import (
	"context"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/model"
	"go.uber.org/zap"
)

// Manifest is the YAML document used to seed the registry at startup:
//
//	modules:
//	  - id: image.basic
//	    category: image
//	    version: "1.0"
//	    active: true
//	    operations: [generate, edit, upscale]
type Manifest struct {
	Modules []model.ModuleCapability `yaml:"modules"`
}

func ParseManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// RegisterAll registers every module and stops on the first invalid one.
func (r *ModuleRegistry) RegisterAll(ctx context.Context, modules []model.ModuleCapability) error {
	for _, m := range modules {
		if _, err := r.Register(ctx, m); err != nil {
			logger.Error("error registering module", zap.String("moduleId", m.Id), zap.Error(err))
			return err
		}
	}
	return nil
}
